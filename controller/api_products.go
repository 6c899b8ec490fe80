// controller/api_products.go
package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/walaka/erp/model"
)

var errNegativeProduct = errors.New("negative price or vat rate")

type productRequest struct {
	Description string          `json:"description" validate:"required,max=500"`
	UnitCode    string          `json:"unit_code" validate:"omitempty,max=10"`
	Price       decimal.Decimal `json:"price"`
	TaxRate     decimal.Decimal `json:"vat_rate"`
	TaxCode     string          `json:"tax_code" validate:"omitempty,oneof=NOR ISE"`
	Industry    string          `json:"industry" validate:"max=100"`
}

func (r *productRequest) apply(p *model.Product) {
	p.Description = r.Description
	p.UnitCode = r.UnitCode
	p.Price = r.Price
	p.TaxRate = r.TaxRate
	p.TaxCode = r.TaxCode
	p.Industry = r.Industry
}

func (ctrl *controller) apiProductList(c echo.Context) error {
	var q model.ProductQuery
	if err := listQueryDecoder().Decode(&q, c.QueryParams()); err != nil {
		return ErrInvalid(err, "invalid query params")
	}
	if q.TaxRate != "" {
		if _, err := decimal.NewFromString(q.TaxRate); err != nil {
			return ErrInvalid(err, "vat_rate must be a number")
		}
	}
	products, err := ctrl.model.ListProducts(c.Request().Context(), apiEnv(c), q)
	if err != nil {
		return err
	}
	out := APIProductList{Items: make([]APIProduct, len(products)), Total: len(products)}
	for i := range products {
		out.Items[i] = toAPIProduct(&products[i])
	}
	return respond(c, http.StatusOK, out)
}

func (ctrl *controller) apiProductCreate(c echo.Context) error {
	var req productRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	if req.Price.IsNegative() || req.TaxRate.IsNegative() {
		return ErrInvalid(errNegativeProduct, "price and vat_rate must not be negative")
	}
	p := &model.Product{EnvironmentID: apiEnv(c)}
	req.apply(p)
	if err := ctrl.model.SaveProduct(c.Request().Context(), p); err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderLocation, "/api/v1/products/"+strconv.FormatUint(uint64(p.ID), 10))
	return respond(c, http.StatusCreated, toAPIProduct(p))
}

func (ctrl *controller) apiProductGet(c echo.Context) error {
	id, err := clientID(c)
	if err != nil {
		return err
	}
	p, err := ctrl.model.LoadProduct(c.Request().Context(), apiEnv(c), id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, toAPIProduct(p))
}

func (ctrl *controller) apiProductUpdate(c echo.Context) error {
	id, err := clientID(c)
	if err != nil {
		return err
	}
	var req productRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	if req.Price.IsNegative() || req.TaxRate.IsNegative() {
		return ErrInvalid(errNegativeProduct, "price and vat_rate must not be negative")
	}
	ctx := c.Request().Context()
	env := apiEnv(c)
	p := &model.Product{EnvironmentID: env}
	p.ID = id
	req.apply(p)
	if err := ctrl.model.SaveProduct(ctx, p); err != nil {
		return err
	}
	saved, err := ctrl.model.LoadProduct(ctx, env, id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, toAPIProduct(saved))
}

func (ctrl *controller) apiProductDelete(c echo.Context) error {
	id, err := clientID(c)
	if err != nil {
		return err
	}
	if err := ctrl.model.DeleteProduct(c.Request().Context(), apiEnv(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
