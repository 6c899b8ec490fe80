// controller/api_tokens.go
package controller

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/walaka/erp/model"
)

var errTokenWithoutUser = errors.New("machine tokens cannot issue tokens")

type createTokenReq struct {
	Name      string     `json:"name" validate:"required,max=100"`
	Scope     string     `json:"scope" validate:"omitempty,oneof=read write"`
	ExpiresAt *time.Time `json:"expires_at"`
	// BindUser ties the token to the calling user so it may change invoice status.
	BindUser bool `json:"bind_user"`
}

type createTokenResp struct {
	ID     uint   `json:"id" xml:"id"`
	Prefix string `json:"prefix" xml:"prefix"`
	Token  string `json:"token" xml:"token"` // shown only once
}

type APIToken struct {
	ID         uint       `json:"id" xml:"id"`
	Name       string     `json:"name" xml:"name"`
	Prefix     string     `json:"prefix" xml:"prefix"`
	Scope      string     `json:"scope,omitempty" xml:"scope,omitempty"`
	UserBound  bool       `json:"user_bound" xml:"user_bound"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" xml:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" xml:"last_used_at,omitempty"`
	Disabled   bool       `json:"disabled" xml:"disabled"`
	CreatedAt  time.Time  `json:"created_at" xml:"created_at"`
}

type APITokenList struct {
	XMLName    struct{}   `json:"-" xml:"tokens"`
	Items      []APIToken `json:"items" xml:"token"`
	NextCursor string     `json:"next_cursor,omitempty" xml:"next_cursor,omitempty"`
}

// apiCreateToken issues a new token. Only users may issue tokens, machine
// tokens cannot create further ones.
func (ctrl *controller) apiCreateToken(c echo.Context) error {
	actor := apiActor(c)
	if actor.UserID == "" {
		return &appError{Code: "FORBIDDEN", Status: http.StatusForbidden, Err: errTokenWithoutUser}
	}
	var req createTokenReq
	if err := bindValid(c, &req); err != nil {
		return err
	}
	var userID *string
	if req.BindUser {
		userID = &actor.UserID
	}
	token, rec, err := ctrl.model.CreateAPIToken(c.Request().Context(), actor.EnvironmentID, userID, req.Name, req.Scope, req.ExpiresAt)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, createTokenResp{
		ID: rec.ID, Prefix: rec.TokenPrefix, Token: token,
	})
}

func (ctrl *controller) apiListTokens(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	rows, next, err := ctrl.model.ListAPITokens(c.Request().Context(), apiEnv(c), limit, c.QueryParam("cursor"))
	if err != nil {
		return err
	}
	items := lo.Map(rows, func(t model.APIToken, _ int) APIToken {
		return APIToken{
			ID:         t.ID,
			Name:       t.Name,
			Prefix:     t.TokenPrefix,
			Scope:      t.Scope,
			UserBound:  t.UserID != nil,
			ExpiresAt:  t.ExpiresAt,
			LastUsedAt: t.LastUsedAt,
			Disabled:   t.Disabled,
			CreatedAt:  t.CreatedAt,
		}
	})
	return respond(c, http.StatusOK, APITokenList{Items: items, NextCursor: next})
}

func (ctrl *controller) apiRevokeToken(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return ErrInvalid(err, "invalid id")
	}
	if err := ctrl.model.RevokeAPIToken(c.Request().Context(), apiEnv(c), uint(id)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
