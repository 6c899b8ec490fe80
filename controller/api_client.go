// controller/api_client.go
package controller

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/walaka/erp/model"
)

type clientRequest struct {
	Name           string `json:"name" validate:"required,max=200"`
	CustomerNumber string `json:"customer_number" validate:"max=50"`
	TaxID          string `json:"tax_id" validate:"max=50"`
	Email          string `json:"email" validate:"omitempty,email"`
	Phone          string `json:"phone"`
	Address1       string `json:"address1"`
	Address2       string `json:"address2"`
	City           string `json:"city"`
	ZIP            string `json:"zip"`
	Country        string `json:"country"`
	Notes          string `json:"notes"`
}

func (r *clientRequest) apply(c *model.Client) {
	c.Name = r.Name
	c.CustomerNumber = r.CustomerNumber
	c.TaxID = r.TaxID
	c.Email = r.Email
	c.Phone = r.Phone
	c.Address1 = r.Address1
	c.Address2 = r.Address2
	c.City = r.City
	c.ZIP = r.ZIP
	c.Country = r.Country
	c.Notes = r.Notes
}

func clientID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, ErrInvalid(err, "invalid id")
	}
	return uint(id), nil
}

func (ctrl *controller) apiClientList(c echo.Context) error {
	clients, err := ctrl.model.ListClients(c.Request().Context(), apiEnv(c), c.QueryParam("q"))
	if err != nil {
		return err
	}
	out := APIClientList{Items: make([]APIClient, len(clients)), Total: len(clients)}
	for i := range clients {
		out.Items[i] = toAPIClient(&clients[i])
	}
	return respond(c, http.StatusOK, out)
}

func (ctrl *controller) apiClientCreate(c echo.Context) error {
	var req clientRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	cl := &model.Client{EnvironmentID: apiEnv(c)}
	req.apply(cl)
	if err := ctrl.model.SaveClient(c.Request().Context(), cl); err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderLocation, "/api/v1/clients/"+strconv.FormatUint(uint64(cl.ID), 10))
	return respond(c, http.StatusCreated, toAPIClient(cl))
}

func (ctrl *controller) apiClientGet(c echo.Context) error {
	id, err := clientID(c)
	if err != nil {
		return err
	}
	cl, err := ctrl.model.LoadClient(c.Request().Context(), apiEnv(c), id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, toAPIClient(cl))
}

func (ctrl *controller) apiClientUpdate(c echo.Context) error {
	id, err := clientID(c)
	if err != nil {
		return err
	}
	var req clientRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	env := apiEnv(c)
	cl := &model.Client{EnvironmentID: env}
	cl.ID = id
	req.apply(cl)
	if err := ctrl.model.SaveClient(ctx, cl); err != nil {
		return err
	}
	saved, err := ctrl.model.LoadClient(ctx, env, id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, toAPIClient(saved))
}

func (ctrl *controller) apiClientDelete(c echo.Context) error {
	id, err := clientID(c)
	if err != nil {
		return err
	}
	if err := ctrl.model.DeleteClient(c.Request().Context(), apiEnv(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
