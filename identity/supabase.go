// Package identity resolves Supabase access tokens to invoicing actors.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/nedpals/supabase-go"

	"github.com/walaka/erp/invoicing"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrMissingUserID      = errors.New("missing user id in token")
	ErrMissingEnvironment = errors.New("no environment for user")
)

// Directory is the server side record of users. When configured it is
// the only source of a user's environment and role. *model.Store
// satisfies it.
type Directory interface {
	Membership(ctx context.Context, userID string) (invoicing.Membership, error)
}

// UserFetcher asks Supabase for the user behind a token. *supabase.Auth
// satisfies it.
type UserFetcher interface {
	User(ctx context.Context, userToken string) (*supabase.User, error)
}

// Resolver turns a bearer token into an Actor. With a JWT secret tokens are
// verified locally, otherwise the Supabase auth API is asked.
//
// The environment is never taken from user_metadata, which every user can
// change. With a Directory it comes from the users table; without one only
// the server controlled app_metadata claim is used.
type Resolver struct {
	secret    []byte
	remote    UserFetcher
	directory Directory
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDirectory resolves environment and role through d.
func WithDirectory(d Directory) Option {
	return func(r *Resolver) { r.directory = d }
}

// NewResolver builds a resolver for the project at url. Either jwtSecret or
// url and anonKey must be set.
func NewResolver(url, anonKey, jwtSecret string, opts ...Option) (*Resolver, error) {
	r := &Resolver{}
	for _, o := range opts {
		o(r)
	}
	if jwtSecret != "" {
		r.secret = []byte(jwtSecret)
	}
	if url != "" {
		client := supabase.CreateClient(url, anonKey)
		if client == nil {
			return nil, fmt.Errorf("create supabase client for %s", url)
		}
		r.remote = client.Auth
	}
	if r.secret == nil && r.remote == nil {
		return nil, errors.New("identity: neither jwt secret nor supabase url configured")
	}
	return r, nil
}

// NewRemoteResolver uses fetcher for every token.
func NewRemoteResolver(fetcher UserFetcher, opts ...Option) *Resolver {
	r := &Resolver{remote: fetcher}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve validates token and returns the actor it belongs to.
func (r *Resolver) Resolve(ctx context.Context, token string) (invoicing.Actor, error) {
	var (
		a   invoicing.Actor
		err error
	)
	if r.secret != nil {
		a, err = r.resolveLocal(token)
	} else {
		a, err = r.resolveRemote(ctx, token)
	}
	if err != nil {
		return invoicing.Actor{}, err
	}
	if r.directory != nil {
		m, err := r.directory.Membership(ctx, a.UserID)
		if err != nil {
			return invoicing.Actor{}, fmt.Errorf("%w: %v", ErrMissingEnvironment, err)
		}
		a.EnvironmentID = m.EnvironmentID
		a.Role = m.Role
	}
	return checkActor(a)
}

func (r *Resolver) resolveLocal(token string) (invoicing.Actor, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return invoicing.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return invoicing.Actor{}, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return invoicing.Actor{}, ErrMissingUserID
	}
	email, _ := claims["email"].(string)

	return invoicing.Actor{
		UserID:        sub,
		Email:         email,
		EnvironmentID: metadataString(claims["app_metadata"], "environment_id"),
		Role:          metadataString(claims["app_metadata"], "role"),
	}, nil
}

func (r *Resolver) resolveRemote(ctx context.Context, token string) (invoicing.Actor, error) {
	user, err := r.remote.User(ctx, token)
	if err != nil {
		return invoicing.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if user == nil || user.ID == "" {
		return invoicing.Actor{}, ErrMissingUserID
	}
	// the auth API does not expose app_metadata, the environment needs a Directory
	return invoicing.Actor{UserID: user.ID, Email: user.Email}, nil
}

func metadataString(raw any, key string) string {
	m, ok := raw.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func checkActor(a invoicing.Actor) (invoicing.Actor, error) {
	if a.EnvironmentID == "" {
		return invoicing.Actor{}, ErrMissingEnvironment
	}
	if _, err := uuid.Parse(a.EnvironmentID); err != nil {
		return invoicing.Actor{}, fmt.Errorf("%w: environment_id %q is not a uuid", ErrInvalidToken, a.EnvironmentID)
	}
	switch a.Role {
	case invoicing.RoleAdmin, invoicing.RoleEditor, invoicing.RoleViewer:
	case "":
		a.Role = invoicing.RoleEditor
	default:
		a.Role = invoicing.RoleViewer
	}
	return a, nil
}
