// controller/middleware_api.go
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/walaka/erp/invoicing"
	"github.com/walaka/erp/model"
)

// Token scopes. A read token acts as a viewer.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
)

// APIAuthMiddleware accepts Supabase access tokens (JWTs) and API tokens
// and stores the resulting actor in the request context. Viewers only get
// GET and HEAD.
func (ctrl *controller) APIAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if auth == "" {
				return &appError{Code: "UNAUTHORIZED", Status: http.StatusUnauthorized,
					Err: invoicing.ErrAuthentication, Public: "Provide an Authorization header."}
			}
			parts := strings.SplitN(auth, " ", 2)
			if len(parts) != 2 || (!strings.EqualFold(parts[0], "Bearer") && !strings.EqualFold(parts[0], "Api-Key")) {
				return &appError{Code: "UNAUTHORIZED", Status: http.StatusUnauthorized,
					Err: invoicing.ErrAuthentication, Public: "Use Bearer or Api-Key."}
			}
			token := strings.TrimSpace(parts[1])
			ctx := c.Request().Context()

			var actor invoicing.Actor
			if strings.Count(token, ".") == 2 && ctrl.identity != nil {
				a, err := ctrl.identity.Resolve(ctx, token)
				if err != nil {
					return &appError{Code: "UNAUTHORIZED", Status: http.StatusUnauthorized, Err: err}
				}
				actor = a
			} else {
				rec, err := ctrl.model.ValidateAPIToken(ctx, token)
				if err != nil {
					return &appError{Code: "UNAUTHORIZED", Status: http.StatusUnauthorized, Err: err}
				}
				actor = invoicing.Actor{EnvironmentID: rec.EnvironmentID, Role: tokenRole(rec.Scope)}
				if rec.UserID != nil {
					actor.UserID = *rec.UserID
					if err := ctrl.applyMembership(ctx, &actor); err != nil {
						return &appError{Code: "UNAUTHORIZED", Status: http.StatusUnauthorized, Err: err}
					}
				}
			}

			if !actor.CanWrite() && !safeMethod(c.Request().Method) {
				return &appError{Code: "FORBIDDEN", Status: http.StatusForbidden,
					Err: invoicing.ErrAuthentication, Public: "This credential is read only."}
			}

			c.SetRequest(c.Request().WithContext(invoicing.WithActor(ctx, actor)))
			if l, ok := c.Get("logger").(*slog.Logger); ok {
				c.Set("logger", l.With("environment_id", actor.EnvironmentID, "user_id", actor.UserID))
			}
			return next(c)
		}
	}
}

// apiActor returns the actor placed by APIAuthMiddleware.
func apiActor(c echo.Context) invoicing.Actor {
	a, _ := invoicing.ActorFromContext(c.Request().Context())
	return a
}

func apiEnv(c echo.Context) string {
	return apiActor(c).EnvironmentID
}

// applyMembership limits a user bound token to what its user may do. A read
// token stays read only. Tokens of users without a record keep their scope.
func (ctrl *controller) applyMembership(ctx context.Context, a *invoicing.Actor) error {
	m, err := ctrl.model.Membership(ctx, a.UserID)
	switch {
	case errors.Is(err, model.ErrUserNotFound):
		return nil
	case err != nil:
		return err
	case m.EnvironmentID != a.EnvironmentID:
		return fmt.Errorf("%w: token and user environment differ", invoicing.ErrAuthentication)
	}
	if a.Role != invoicing.RoleViewer {
		a.Role = m.Role
	}
	return nil
}

func tokenRole(scope string) string {
	if strings.TrimSpace(scope) == ScopeRead {
		return invoicing.RoleViewer
	}
	return invoicing.RoleEditor
}

func safeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}
