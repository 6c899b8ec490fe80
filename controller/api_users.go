// controller/api_users.go
package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/walaka/erp/model"
)

var (
	errNotAdmin   = errors.New("user administration requires the admin role")
	errDeleteSelf = errors.New("users cannot remove themselves")
)

type userRequest struct {
	ID       string `json:"id" validate:"required,max=64"` // Supabase auth uid
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"max=100"`
	Role     string `json:"role" validate:"omitempty,oneof=admin editor viewer"`
}

type userAccessRequest struct {
	Role   string `json:"role" validate:"omitempty,oneof=admin editor viewer"`
	Status string `json:"status" validate:"omitempty,oneof=active disabled"`
}

// requireAdmin guards the user routes.
func requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !apiActor(c).IsAdmin() {
			return &appError{Code: "FORBIDDEN", Status: http.StatusForbidden, Err: errNotAdmin,
				Public: "Only administrators can manage users."}
		}
		return next(c)
	}
}

func (ctrl *controller) apiUserList(c echo.Context) error {
	users, err := ctrl.model.ListUsers(c.Request().Context(), apiEnv(c))
	if err != nil {
		return err
	}
	out := APIUserList{Items: make([]APIUser, len(users))}
	for i := range users {
		out.Items[i] = toAPIUser(&users[i])
	}
	return respond(c, http.StatusOK, out)
}

// apiUserCreate adds a child user to the environment of the caller.
func (ctrl *controller) apiUserCreate(c echo.Context) error {
	var req userRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	actor := apiActor(c)
	parent := actor.UserID
	u := &model.User{
		ID:            req.ID,
		EnvironmentID: actor.EnvironmentID,
		CreatedBy:     &parent,
		Email:         req.Email,
		Username:      req.Username,
		Role:          req.Role,
	}
	if err := ctrl.model.CreateUser(c.Request().Context(), u); err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderLocation, "/api/v1/users/"+u.ID)
	return respond(c, http.StatusCreated, toAPIUser(u))
}

func (ctrl *controller) apiUserUpdate(c echo.Context) error {
	var req userAccessRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	env := apiEnv(c)
	id := c.Param("id")
	if err := ctrl.model.UpdateUserAccess(ctx, env, id, req.Role, req.Status); err != nil {
		return err
	}
	u, err := ctrl.model.LoadUser(ctx, id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, toAPIUser(u))
}

func (ctrl *controller) apiUserDelete(c echo.Context) error {
	actor := apiActor(c)
	id := c.Param("id")
	if id == actor.UserID {
		return &appError{Code: "FORBIDDEN", Status: http.StatusForbidden, Err: errDeleteSelf,
			Public: "You cannot remove your own account."}
	}
	if err := ctrl.model.DeleteUser(c.Request().Context(), actor.EnvironmentID, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
