package controller

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/walaka/erp/invoicing"
	"github.com/walaka/erp/model"
)

type APIError struct {
	XMLName   struct{} `json:"-" xml:"error"`
	Code      string   `json:"code" xml:"code"`
	Message   string   `json:"message" xml:"message"`
	RequestID string   `json:"request_id,omitempty" xml:"request_id,omitempty"`
}

func wantsXML(c echo.Context) bool {
	if c.QueryParam("format") == "xml" {
		return true
	}
	accept := c.Request().Header.Get(echo.HeaderAccept)
	return strings.Contains(accept, "application/xml") || strings.Contains(accept, "text/xml")
}

func respond(c echo.Context, status int, v any) error {
	if wantsXML(c) {
		return c.XML(status, v)
	}
	return c.JSON(status, v)
}

const apiDate = "2006-01-02"

// ---- DTOs for invoices ----
type APIInvoiceItem struct {
	Position    int    `json:"position" xml:"position"`
	ProductID   *uint  `json:"product_id,omitempty" xml:"product_id,omitempty"`
	Description string `json:"description" xml:"description"`
	UnitCode    string `json:"unit_code" xml:"unit_code"`
	Quantity    string `json:"quantity" xml:"quantity"`
	UnitPrice   string `json:"unit_price" xml:"unit_price"`
	VATRate     string `json:"vat_rate" xml:"vat_rate"`
	LineTotal   string `json:"line_total" xml:"line_total"`
}

type APIVATAmount struct {
	Rate   string `json:"rate" xml:"rate"`
	Base   string `json:"base" xml:"base"`
	Amount string `json:"amount" xml:"amount"`
}

type APIInvoice struct {
	XMLName          struct{}              `json:"-" xml:"invoice"`
	ID               uint                  `json:"id" xml:"id"`
	Number           string                `json:"number" xml:"number"`
	DocumentType     string                `json:"document_type" xml:"document_type"`
	Status           string                `json:"status" xml:"status"`
	View             *invoicing.StatusView `json:"view,omitempty" xml:"view,omitempty"`
	ClientID         uint                  `json:"client_id" xml:"client_id"`
	ClientName       string                `json:"client_name,omitempty" xml:"client_name,omitempty"`
	Currency         string                `json:"currency" xml:"currency"`
	IssueDate        string                `json:"issue_date" xml:"issue_date"`
	DueDate          string                `json:"due_date" xml:"due_date"`
	Subtotal         string                `json:"subtotal" xml:"subtotal"`
	TotalVAT         string                `json:"total_vat" xml:"total_vat"`
	Total            string                `json:"total" xml:"total"`
	Notes            string                `json:"notes,omitempty" xml:"notes,omitempty"`
	ExemptionReason  string                `json:"exemption_reason,omitempty" xml:"exemption_reason,omitempty"`
	RelatedInvoice   string                `json:"related_invoice,omitempty" xml:"related_invoice,omitempty"`
	Reason           string                `json:"reason,omitempty" xml:"reason,omitempty"`
	SentDate         *time.Time            `json:"sent_date,omitempty" xml:"sent_date,omitempty"`
	PaymentDate      *time.Time            `json:"payment_date,omitempty" xml:"payment_date,omitempty"`
	PaymentMethod    string                `json:"payment_method,omitempty" xml:"payment_method,omitempty"`
	PaymentReference string                `json:"payment_reference,omitempty" xml:"payment_reference,omitempty"`
	Overdue          bool                  `json:"overdue" xml:"overdue"`
	Items            []APIInvoiceItem      `json:"items,omitempty" xml:"items>item,omitempty"`
	VATAmounts       []APIVATAmount        `json:"vat_amounts,omitempty" xml:"vat_amounts>vat,omitempty"`
	CreatedAt        time.Time             `json:"created_at" xml:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at" xml:"updated_at"`
}

type APIInvoiceList struct {
	XMLName    struct{}     `json:"-" xml:"invoices"`
	Items      []APIInvoice `json:"items" xml:"invoice"`
	NextCursor string       `json:"next_cursor,omitempty" xml:"next_cursor,omitempty"`
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(apiDate)
}

// toAPIInvoice converts inv. Items and the status view are only included
// with details.
func (ctrl *controller) toAPIInvoice(inv *model.Invoice, details bool) APIInvoice {
	out := APIInvoice{
		ID:               inv.ID,
		Number:           inv.Number,
		DocumentType:     string(inv.DocumentType),
		Status:           string(inv.Status),
		ClientID:         inv.ClientID,
		ClientName:       inv.Client.Name,
		Currency:         inv.Currency,
		IssueDate:        formatDate(inv.IssueDate),
		DueDate:          formatDate(inv.DueDate),
		Subtotal:         inv.Subtotal.StringFixed(2),
		TotalVAT:         inv.TotalVAT.StringFixed(2),
		Total:            inv.Total.StringFixed(2),
		Notes:            inv.Notes,
		ExemptionReason:  inv.ExemptionReason,
		RelatedInvoice:   inv.RelatedInvoiceNumber,
		Reason:           inv.Reason,
		SentDate:         inv.SentDate,
		PaymentDate:      inv.PaymentDate,
		PaymentMethod:    inv.PaymentMethod,
		PaymentReference: inv.PaymentReference,
		Overdue:          inv.IsOverdue(time.Now()),
		CreatedAt:        inv.CreatedAt,
		UpdatedAt:        inv.UpdatedAt,
	}
	if !details {
		return out
	}
	view := ctrl.transitions.View(inv.Status)
	out.View = &view
	out.Items = lo.Map(inv.Items, func(it model.InvoiceItem, _ int) APIInvoiceItem {
		return APIInvoiceItem{
			Position:    it.Position,
			ProductID:   it.ProductID,
			Description: it.Description,
			UnitCode:    it.UnitCode,
			Quantity:    it.Quantity.String(),
			UnitPrice:   it.UnitPrice.String(),
			VATRate:     it.VATRate.String(),
			LineTotal:   it.LineTotal.StringFixed(2),
		}
	})
	out.VATAmounts = lo.Map(inv.VATAmounts, func(v model.VATAmount, _ int) APIVATAmount {
		return APIVATAmount{Rate: v.Rate.String(), Base: v.Base.StringFixed(2), Amount: v.Amount.StringFixed(2)}
	})
	return out
}

// ---- DTOs for status and timeline ----
type APIStatus struct {
	XMLName struct{}             `json:"-" xml:"status"`
	Number  string               `json:"number" xml:"number"`
	View    invoicing.StatusView `json:"view" xml:"view"`
}

type APITimelineEvent struct {
	Title    string            `json:"title" xml:"title"`
	Active   bool              `json:"active" xml:"active"`
	Date     time.Time         `json:"date" xml:"date"`
	Ago      string            `json:"ago" xml:"ago"`
	Status   string            `json:"status,omitempty" xml:"status,omitempty"`
	ActorID  string            `json:"actor_id,omitempty" xml:"actor_id,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty" xml:"-"`
}

type APITimeline struct {
	XMLName struct{}           `json:"-" xml:"timeline"`
	Number  string             `json:"number" xml:"number"`
	Events  []APITimelineEvent `json:"events" xml:"event"`
}

// ---- DTOs for clients ----
type APIClient struct {
	XMLName        struct{} `json:"-" xml:"client"`
	ID             uint     `json:"id" xml:"id"`
	Name           string   `json:"name" xml:"name"`
	CustomerNumber string   `json:"customer_number,omitempty" xml:"customer_number,omitempty"`
	TaxID          string   `json:"tax_id,omitempty" xml:"tax_id,omitempty"`
	Email          string   `json:"email,omitempty" xml:"email,omitempty"`
	Phone          string   `json:"phone,omitempty" xml:"phone,omitempty"`
	Address1       string   `json:"address1,omitempty" xml:"address1,omitempty"`
	Address2       string   `json:"address2,omitempty" xml:"address2,omitempty"`
	City           string   `json:"city,omitempty" xml:"city,omitempty"`
	ZIP            string   `json:"zip,omitempty" xml:"zip,omitempty"`
	Country        string   `json:"country,omitempty" xml:"country,omitempty"`
	Notes          string   `json:"notes,omitempty" xml:"notes,omitempty"`
}

type APIClientList struct {
	XMLName struct{}    `json:"-" xml:"clients"`
	Items   []APIClient `json:"items" xml:"client"`
	Total   int         `json:"total" xml:"total"`
}

func toAPIClient(c *model.Client) APIClient {
	return APIClient{
		ID:             c.ID,
		Name:           c.Name,
		CustomerNumber: c.CustomerNumber,
		TaxID:          c.TaxID,
		Email:          c.Email,
		Phone:          c.Phone,
		Address1:       c.Address1,
		Address2:       c.Address2,
		City:           c.City,
		ZIP:            c.ZIP,
		Country:        c.Country,
		Notes:          c.Notes,
	}
}

// ---- DTOs for products ----
type APIProduct struct {
	XMLName     struct{} `json:"-" xml:"product"`
	ID          uint     `json:"id" xml:"id"`
	Description string   `json:"description" xml:"description"`
	UnitCode    string   `json:"unit_code" xml:"unit_code"`
	Price       string   `json:"price" xml:"price"`
	TaxRate     string   `json:"vat_rate" xml:"vat_rate"`
	TaxCode     string   `json:"tax_code" xml:"tax_code"`
	Industry    string   `json:"industry,omitempty" xml:"industry,omitempty"`
}

type APIProductList struct {
	XMLName struct{}     `json:"-" xml:"products"`
	Items   []APIProduct `json:"items" xml:"product"`
	Total   int          `json:"total" xml:"total"`
}

func toAPIProduct(p *model.Product) APIProduct {
	return APIProduct{
		ID:          p.ID,
		Description: p.Description,
		UnitCode:    p.UnitCode,
		Price:       p.Price.String(),
		TaxRate:     p.TaxRate.String(),
		TaxCode:     p.TaxCode,
		Industry:    p.Industry,
	}
}

// ---- DTOs for receipts ----
type APIReceipt struct {
	XMLName       struct{}  `json:"-" xml:"receipt"`
	Number        string    `json:"number" xml:"number"`
	InvoiceNumber string    `json:"invoice_number" xml:"invoice_number"`
	ClientID      uint      `json:"client_id" xml:"client_id"`
	ClientName    string    `json:"client_name,omitempty" xml:"client_name,omitempty"`
	PaymentDate   string    `json:"payment_date" xml:"payment_date"`
	Amount        string    `json:"amount" xml:"amount"`
	Currency      string    `json:"currency" xml:"currency"`
	PaymentMethod string    `json:"payment_method,omitempty" xml:"payment_method,omitempty"`
	Reference     string    `json:"reference,omitempty" xml:"reference,omitempty"`
	Notes         string    `json:"notes,omitempty" xml:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at" xml:"created_at"`
}

type APIReceiptList struct {
	XMLName struct{}     `json:"-" xml:"receipts"`
	Items   []APIReceipt `json:"items" xml:"receipt"`
}

func toAPIReceipt(rc *model.Receipt) APIReceipt {
	return APIReceipt{
		Number:        rc.Number,
		InvoiceNumber: rc.InvoiceNumber,
		ClientID:      rc.ClientID,
		ClientName:    rc.Invoice.Client.Name,
		PaymentDate:   formatDate(rc.PaymentDate),
		Amount:        rc.Amount.StringFixed(2),
		Currency:      rc.Currency,
		PaymentMethod: rc.PaymentMethod,
		Reference:     rc.Reference,
		Notes:         rc.Notes,
		CreatedAt:     rc.CreatedAt,
	}
}

// ---- DTOs for users ----
type APIUser struct {
	XMLName   struct{}  `json:"-" xml:"user"`
	ID        string    `json:"id" xml:"id"`
	Email     string    `json:"email" xml:"email"`
	Username  string    `json:"username,omitempty" xml:"username,omitempty"`
	Role      string    `json:"role" xml:"role"`
	Status    string    `json:"status" xml:"status"`
	CreatedBy string    `json:"created_by,omitempty" xml:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at" xml:"created_at"`
}

type APIUserList struct {
	XMLName struct{}  `json:"-" xml:"users"`
	Items   []APIUser `json:"items" xml:"user"`
}

func toAPIUser(u *model.User) APIUser {
	return APIUser{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Role:      u.Role,
		Status:    u.Status,
		CreatedBy: lo.FromPtr(u.CreatedBy),
		CreatedAt: u.CreatedAt,
	}
}
