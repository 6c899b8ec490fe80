// controller/api_receipts.go
package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/walaka/erp/model"
)

var errNegativeAmount = errors.New("negative receipt amount")

type receiptRequest struct {
	InvoiceNumber string          `json:"invoice_number" validate:"required,max=64"`
	Amount        decimal.Decimal `json:"amount"` // zero receipts the open balance
	PaymentDate   string          `json:"payment_date" validate:"omitempty,datetime=2006-01-02"`
	PaymentMethod string          `json:"payment_method" validate:"max=50"`
	Reference     string          `json:"reference" validate:"max=100"`
	Notes         string          `json:"notes"`
}

func (ctrl *controller) apiReceiptList(c echo.Context) error {
	receipts, err := ctrl.model.ListReceipts(c.Request().Context(), apiEnv(c), c.QueryParam("invoice"))
	if err != nil {
		return err
	}
	out := APIReceiptList{Items: make([]APIReceipt, len(receipts))}
	for i := range receipts {
		out.Items[i] = toAPIReceipt(&receipts[i])
	}
	return respond(c, http.StatusOK, out)
}

func (ctrl *controller) apiReceiptCreate(c echo.Context) error {
	var req receiptRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	if req.Amount.IsNegative() {
		return ErrInvalid(errNegativeAmount, "amount must not be negative")
	}
	ctx := c.Request().Context()
	actor := apiActor(c)
	rc := &model.Receipt{
		EnvironmentID: actor.EnvironmentID,
		InvoiceNumber: req.InvoiceNumber,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		Reference:     req.Reference,
		Notes:         req.Notes,
		CreatedBy:     actor.UserID,
	}
	if t, err := time.Parse(apiDate, req.PaymentDate); err == nil {
		rc.PaymentDate = t
	}

	_, err := ctrl.receipts.AllocateAndCreate(ctx, func(ctx context.Context, number string) error {
		rc.Number = number
		return ctrl.model.CreateReceipt(ctx, rc)
	})
	if err != nil {
		return err
	}
	created, err := ctrl.model.LoadReceipt(ctx, actor.EnvironmentID, rc.Number)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderLocation, "/api/v1/receipts/"+created.Number)
	return respond(c, http.StatusCreated, toAPIReceipt(created))
}

func (ctrl *controller) apiReceiptGet(c echo.Context) error {
	rc, err := ctrl.model.LoadReceipt(c.Request().Context(), apiEnv(c), c.Param("number"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, toAPIReceipt(rc))
}
