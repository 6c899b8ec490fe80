// controller/api_invoice.go
package controller

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/form/v4"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/walaka/erp/invoicing"
	"github.com/walaka/erp/model"
)

type invoiceItemRequest struct {
	ProductID   uint             `json:"product_id"`
	Description string           `json:"description" validate:"required_without=ProductID"`
	UnitCode    string           `json:"unit_code" validate:"omitempty,max=10"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	VATRate     *decimal.Decimal `json:"vat_rate"`
}

type invoiceRequest struct {
	DocumentType    string               `json:"document_type" validate:"omitempty,oneof=invoice credit_note debit_note"`
	ClientID        uint                 `json:"client_id" validate:"required"`
	Currency        string               `json:"currency" validate:"omitempty,len=3"`
	IssueDate       string               `json:"issue_date" validate:"omitempty,datetime=2006-01-02"`
	DueDate         string               `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Notes           string               `json:"notes"`
	ExemptionReason string               `json:"exemption_reason"`
	RelatedInvoice  string               `json:"related_invoice" validate:"required_if=DocumentType credit_note,required_if=DocumentType debit_note,max=64"`
	Reason          string               `json:"reason" validate:"required_if=DocumentType credit_note,required_if=DocumentType debit_note"`
	Items           []invoiceItemRequest `json:"items" validate:"required,min=1,dive"`
}

// toModel fills inv from the request. Missing dates fall back to today and
// the payment term of the environment.
func (r *invoiceRequest) toModel(inv *model.Invoice, settings *model.Settings, defaultCurrency string, now time.Time) {
	inv.ClientID = r.ClientID
	inv.Currency = r.Currency
	if inv.Currency == "" {
		inv.Currency = defaultCurrency
	}
	inv.Notes = r.Notes
	inv.ExemptionReason = r.ExemptionReason
	if r.DocumentType != "" {
		inv.DocumentType = model.DocumentType(r.DocumentType)
	}
	inv.RelatedInvoiceNumber = r.RelatedInvoice
	inv.Reason = r.Reason

	inv.IssueDate = now.Truncate(24 * time.Hour)
	if t, err := time.Parse(apiDate, r.IssueDate); err == nil {
		inv.IssueDate = t
	}
	inv.DueDate = inv.IssueDate.AddDate(0, 0, settings.PaymentTermDays)
	if t, err := time.Parse(apiDate, r.DueDate); err == nil {
		inv.DueDate = t
	}

	inv.Items = lo.Map(r.Items, func(it invoiceItemRequest, i int) model.InvoiceItem {
		item := model.InvoiceItem{
			Position:    i + 1,
			Description: it.Description,
			UnitCode:    it.UnitCode,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		}
		if it.VATRate != nil {
			item.VATRate = *it.VATRate
		}
		return item
	})
}

// fillProducts completes the lines of inv that name a catalog product.
func (ctrl *controller) fillProducts(ctx context.Context, env string, r *invoiceRequest, inv *model.Invoice) error {
	for i, it := range r.Items {
		if it.ProductID == 0 {
			continue
		}
		p, err := ctrl.model.LoadProduct(ctx, env, it.ProductID)
		if err != nil {
			return err
		}
		inv.Items[i].FillFromProduct(p, it.VATRate != nil)
	}
	return nil
}

func (ctrl *controller) allocatorFor(dt model.DocumentType) *invoicing.Allocator {
	if a, ok := ctrl.allocators[dt]; ok {
		return a
	}
	return ctrl.allocators[model.DocumentInvoice]
}

func (ctrl *controller) defaultCurrency() string {
	if ctrl.model.Config == nil {
		return "MZN"
	}
	return ctrl.model.Config.Currency()
}

func listQueryDecoder() *form.Decoder {
	dec := form.NewDecoder()
	dec.RegisterCustomTypeFunc(func(vals []string) (interface{}, error) {
		if vals[0] == "" {
			return time.Time{}, nil
		}
		return time.Parse(apiDate, vals[0])
	}, time.Time{})
	return dec
}

func (ctrl *controller) apiInvoiceList(c echo.Context) error {
	var q model.InvoiceListQuery
	if err := listQueryDecoder().Decode(&q, c.QueryParams()); err != nil {
		return ErrInvalid(err, "invalid query params")
	}
	if q.Status != "" {
		if _, err := invoicing.ParseStatus(q.Status); err != nil {
			return err
		}
	}
	invs, next, err := ctrl.model.ListInvoices(c.Request().Context(), apiEnv(c), q)
	if err != nil {
		return err
	}
	items := make([]APIInvoice, len(invs))
	for i := range invs {
		items[i] = ctrl.toAPIInvoice(&invs[i], false)
	}
	return respond(c, http.StatusOK, APIInvoiceList{Items: items, NextCursor: next})
}

func (ctrl *controller) apiInvoiceCreate(c echo.Context) error {
	var req invoiceRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	actor := apiActor(c)
	settings, err := ctrl.model.LoadSettings(ctx, actor.EnvironmentID)
	if err != nil {
		return err
	}

	inv := &model.Invoice{EnvironmentID: actor.EnvironmentID, DocumentType: model.DocumentInvoice, CreatedBy: actor.UserID}
	req.toModel(inv, settings, ctrl.defaultCurrency(), time.Now())
	if err := ctrl.fillProducts(ctx, actor.EnvironmentID, &req, inv); err != nil {
		return err
	}

	_, err = ctrl.allocatorFor(inv.DocumentType).AllocateAndCreate(ctx, func(ctx context.Context, number string) error {
		inv.Number = number
		return ctrl.model.CreateInvoice(ctx, inv)
	})
	if err != nil {
		return err
	}
	created, err := ctrl.model.LoadInvoice(ctx, actor.EnvironmentID, inv.Number)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderLocation, "/api/v1/invoices/"+created.Number)
	return respond(c, http.StatusCreated, ctrl.toAPIInvoice(created, true))
}

type nextNumberResponse struct {
	XMLName struct{} `json:"-" xml:"next_number"`
	Number  string   `json:"number" xml:"number"`
}

// apiInvoiceNextNumber previews the number the next invoice would get. The
// number is not reserved.
func (ctrl *controller) apiInvoiceNextNumber(c echo.Context) error {
	dt := model.DocumentType(c.QueryParam("document_type"))
	n, err := ctrl.allocatorFor(dt).Allocate(c.Request().Context())
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, nextNumberResponse{Number: n})
}

func (ctrl *controller) apiInvoiceGet(c echo.Context) error {
	inv, err := ctrl.model.LoadInvoice(c.Request().Context(), apiEnv(c), c.Param("number"))
	if err != nil {
		return err
	}
	c.Response().Header().Set("ETag",
		`W/"inv-`+strconv.FormatUint(uint64(inv.ID), 10)+
			`-`+strconv.FormatInt(inv.UpdatedAt.Unix(), 10)+`"`)
	return respond(c, http.StatusOK, ctrl.toAPIInvoice(inv, true))
}

func (ctrl *controller) apiInvoiceUpdate(c echo.Context) error {
	var req invoiceRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	env := apiEnv(c)
	cur, err := ctrl.model.LoadInvoice(ctx, env, c.Param("number"))
	if err != nil {
		return err
	}
	settings, err := ctrl.model.LoadSettings(ctx, env)
	if err != nil {
		return err
	}
	// the document type and the related invoice are fixed by the number
	req.DocumentType = string(cur.DocumentType)
	req.RelatedInvoice = cur.RelatedInvoiceNumber
	if req.Reason == "" {
		req.Reason = cur.Reason
	}
	req.toModel(cur, settings, ctrl.defaultCurrency(), time.Now())
	if err := ctrl.fillProducts(ctx, env, &req, cur); err != nil {
		return err
	}
	if err := ctrl.model.UpdateInvoice(ctx, cur, ctrl.transitions); err != nil {
		return err
	}
	inv, err := ctrl.model.LoadInvoice(ctx, env, cur.Number)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, ctrl.toAPIInvoice(inv, true))
}

func (ctrl *controller) apiInvoiceDelete(c echo.Context) error {
	ctx := c.Request().Context()
	actor := apiActor(c)
	if err := ctrl.model.DeleteInvoice(ctx, actor.EnvironmentID, c.Param("number"), actor.UserID, ctrl.transitions); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (ctrl *controller) apiInvoiceDuplicate(c echo.Context) error {
	ctx := c.Request().Context()
	actor := apiActor(c)
	src, err := ctrl.model.LoadInvoice(ctx, actor.EnvironmentID, c.Param("number"))
	if err != nil {
		return err
	}
	cp := src.Duplicate(time.Now().Truncate(24 * time.Hour))
	cp.CreatedBy = actor.UserID

	_, err = ctrl.allocatorFor(cp.DocumentType).AllocateAndCreate(ctx, func(ctx context.Context, number string) error {
		cp.Number = number
		return ctrl.model.CreateInvoice(ctx, cp)
	})
	if err != nil {
		return err
	}
	inv, err := ctrl.model.LoadInvoice(ctx, actor.EnvironmentID, cp.Number)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderLocation, "/api/v1/invoices/"+inv.Number)
	return respond(c, http.StatusCreated, ctrl.toAPIInvoice(inv, true))
}

func (ctrl *controller) statusManager(ctx context.Context, number string) (*invoicing.StatusManager, error) {
	m := invoicing.NewStatusManager(ctrl.model, invoicing.ContextIdentity{}, ctrl.publisher,
		invoicing.WithTransitions(ctrl.transitions),
		invoicing.WithStatusLogger(ctrl.logger))
	if err := m.Initialize(ctx, number); err != nil {
		return nil, err
	}
	return m, nil
}

func (ctrl *controller) apiInvoiceStatus(c echo.Context) error {
	number := c.Param("number")
	m, err := ctrl.statusManager(c.Request().Context(), number)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, APIStatus{Number: number, View: m.View()})
}

type statusRequest struct {
	Status           string `json:"status" validate:"required"`
	PaymentMethod    string `json:"payment_method" validate:"max=50"`
	PaymentReference string `json:"payment_reference" validate:"max=100"`
}

func (ctrl *controller) apiInvoiceUpdateStatus(c echo.Context) error {
	var req statusRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	target, err := invoicing.ParseStatus(req.Status)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	number := c.Param("number")
	m, err := ctrl.statusManager(ctx, number)
	if err != nil {
		return err
	}
	err = m.UpdateStatus(ctx, target, invoicing.PaymentMetadata{
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: req.PaymentReference,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, APIStatus{Number: number, View: m.View()})
}

func (ctrl *controller) apiInvoiceTimeline(c echo.Context) error {
	ctx := c.Request().Context()
	env := apiEnv(c)
	number := c.Param("number")
	// a timeline of a deleted invoice is still readable; unknown numbers are not
	events, err := ctrl.model.LoadTimeline(ctx, env, number)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return &invoicing.NotFoundError{EnvironmentID: env, InvoiceNumber: number}
	}
	out := APITimeline{Number: number}
	for i := range events {
		ev := &events[i]
		out.Events = append(out.Events, APITimelineEvent{
			Title:    ev.Title,
			Active:   ev.Active,
			Date:     ev.Date,
			Ago:      timeagoEnglish.Format(ev.Date),
			Status:   ev.Status,
			ActorID:  ev.ActorID,
			Metadata: ev.MetadataMap(),
		})
	}
	return respond(c, http.StatusOK, out)
}
