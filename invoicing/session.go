package invoicing

import (
	"context"
	"fmt"
)

// Roles of a user within an environment. Viewers only read.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// Actor is the authenticated principal of a request. UserID is empty for
// machine tokens that are not bound to a user; such sessions may read and
// allocate but not change invoice status.
type Actor struct {
	UserID        string
	Email         string
	EnvironmentID string
	Role          string
}

// CanWrite reports whether the actor may change data.
func (a Actor) CanWrite() bool { return a.Role != RoleViewer }

// IsAdmin reports whether the actor manages the users of its environment.
func (a Actor) IsAdmin() bool { return a.UserID != "" && a.Role == RoleAdmin }

// Membership is the server side record of which environment a user works
// in and with which role.
type Membership struct {
	UserID        string
	EnvironmentID string
	Role          string
}

// SystemActor is used by background jobs such as the overdue sweep.
func SystemActor(environmentID string) Actor {
	return Actor{UserID: "system", EnvironmentID: environmentID, Role: RoleEditor}
}

type actorKey struct{}

// WithActor returns a copy of ctx carrying a.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext returns the actor stored by WithActor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// Identity answers who is acting and for which tenant.
type Identity interface {
	CurrentUser(ctx context.Context) (Actor, error)
	CurrentEnvironment(ctx context.Context) (string, error)
}

// ContextIdentity reads the actor placed into the context by the transport layer.
type ContextIdentity struct{}

func (ContextIdentity) CurrentUser(ctx context.Context) (Actor, error) {
	a, ok := ActorFromContext(ctx)
	if !ok || a.UserID == "" {
		return Actor{}, ErrAuthentication
	}
	return a, nil
}

func (ContextIdentity) CurrentEnvironment(ctx context.Context) (string, error) {
	a, ok := ActorFromContext(ctx)
	if !ok || a.EnvironmentID == "" {
		return "", ErrNoEnvironment
	}
	return a.EnvironmentID, nil
}

func currentEnvironment(ctx context.Context, id Identity) (string, error) {
	env, err := id.CurrentEnvironment(ctx)
	if err != nil {
		return "", err
	}
	if env == "" {
		return "", fmt.Errorf("%w: empty environment id", ErrNoEnvironment)
	}
	return env, nil
}
