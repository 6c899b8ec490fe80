package model

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/walaka/erp/invoicing"
)

// DocumentType distinguishes invoices from credit and debit notes. Each type
// has its own number sequence.
type DocumentType string

const (
	DocumentInvoice    DocumentType = "invoice"
	DocumentCreditNote DocumentType = "credit_note"
	DocumentDebitNote  DocumentType = "debit_note"
)

// DocumentTypes lists all known document types.
var DocumentTypes = []DocumentType{DocumentInvoice, DocumentCreditNote, DocumentDebitNote}

// DefaultPrefix is used when config.toml does not name a prefix.
func (dt DocumentType) DefaultPrefix() string {
	switch dt {
	case DocumentCreditNote:
		return "NC"
	case DocumentDebitNote:
		return "ND"
	default:
		return invoicing.DefaultPrefix
	}
}

// IsNote reports whether the document corrects another invoice.
func (dt DocumentType) IsNote() bool {
	return dt == DocumentCreditNote || dt == DocumentDebitNote
}

// SAFTCode is the InvoiceType of the SAF-T audit file.
func (dt DocumentType) SAFTCode() string {
	switch dt {
	case DocumentCreditNote:
		return "NC"
	case DocumentDebitNote:
		return "ND"
	default:
		return "FT"
	}
}

// EInvoiceTypeCode is the UNTDID 1001 document code.
func (dt DocumentType) EInvoiceTypeCode() int {
	switch dt {
	case DocumentCreditNote:
		return 381
	case DocumentDebitNote:
		return 383
	default:
		return 380
	}
}

// Invoice is a tenant scoped sales document. Number is unique per
// environment, also across soft deleted rows.
type Invoice struct {
	gorm.Model
	EnvironmentID   string           `gorm:"size:64;not null;uniqueIndex:ux_invoices_env_number,priority:1;index:idx_invoices_env_status,priority:1"`
	Number          string           `gorm:"size:64;not null;uniqueIndex:ux_invoices_env_number,priority:2"`
	DocumentType    DocumentType     `gorm:"size:20;not null;default:invoice"`
	ClientID        uint             `gorm:"index"`
	Client          Client           `gorm:"constraint:OnDelete:RESTRICT"`
	Currency        string           `gorm:"size:3"`
	IssueDate       time.Time        `gorm:"index"`
	DueDate         time.Time        `gorm:"index"`
	Items           []InvoiceItem    `gorm:"constraint:OnDelete:CASCADE"`
	Subtotal        decimal.Decimal  `gorm:"type:decimal(20,8)"`
	TotalVAT        decimal.Decimal  `gorm:"type:decimal(20,8)"`
	Total           decimal.Decimal  `gorm:"type:decimal(20,8)"`
	Status          invoicing.Status `gorm:"type:text;not null;default:pending;check:status IN ('pending','sent','paid','overdue','cancelled');index:idx_invoices_env_status,priority:2"`
	Notes           string
	ExemptionReason string
	// credit and debit notes name the invoice they correct
	RelatedInvoiceNumber string `gorm:"size:64;index"`
	Reason               string
	SentDate             *time.Time
	PaymentDate          *time.Time
	PaymentMethod        string      `gorm:"size:50"`
	PaymentReference     string      `gorm:"size:100"`
	PaidBy               string      `gorm:"size:64"`
	CreatedBy            string      `gorm:"size:64"`
	VATAmounts           []VATAmount `gorm:"-"`
}

// VATAmount collects the tax for one rate.
type VATAmount struct {
	Rate   decimal.Decimal
	Base   decimal.Decimal
	Amount decimal.Decimal
}

// InvoiceItem is one line of an invoice.
type InvoiceItem struct {
	ID          uint `gorm:"primarykey"`
	CreatedAt   time.Time
	InvoiceID   uint `gorm:"index"`
	ProductID   *uint
	Position    int
	Description string
	UnitCode    string          `gorm:"size:10"`
	Quantity    decimal.Decimal `gorm:"type:decimal(20,8)"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,8)"`
	VATRate     decimal.Decimal `gorm:"type:decimal(20,8)"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(20,8)"`
}

func (InvoiceItem) TableName() string { return "invoice_items" }

var hundred = decimal.NewFromInt(100)

// RecomputeTotals derives line totals, the VAT breakdown and the invoice
// totals from the items. Amounts are rounded to two decimals per line.
func (inv *Invoice) RecomputeTotals() {
	inv.VATAmounts = inv.VATAmounts[:0]
	byRate := map[string]*VATAmount{}
	subtotal := decimal.Zero
	vat := decimal.Zero

	for i := range inv.Items {
		it := &inv.Items[i]
		if it.Position == 0 {
			it.Position = i + 1
		}
		if it.UnitCode == "" {
			it.UnitCode = "C62"
		}
		it.LineTotal = it.Quantity.Mul(it.UnitPrice).Round(2)
		lineVAT := it.LineTotal.Mul(it.VATRate).Div(hundred).Round(2)

		subtotal = subtotal.Add(it.LineTotal)
		vat = vat.Add(lineVAT)

		k := it.VATRate.String()
		if _, ok := byRate[k]; !ok {
			byRate[k] = &VATAmount{Rate: it.VATRate, Base: decimal.Zero, Amount: decimal.Zero}
		}
		byRate[k].Base = byRate[k].Base.Add(it.LineTotal)
		byRate[k].Amount = byRate[k].Amount.Add(lineVAT)
	}

	for _, v := range byRate {
		inv.VATAmounts = append(inv.VATAmounts, *v)
	}
	sort.Slice(inv.VATAmounts, func(i, j int) bool {
		return inv.VATAmounts[i].Rate.LessThan(inv.VATAmounts[j].Rate)
	})

	inv.Subtotal = subtotal
	inv.TotalVAT = vat
	inv.Total = subtotal.Add(vat)
}

// Validate checks what the database cannot.
func (inv *Invoice) Validate() error {
	if inv.EnvironmentID == "" {
		return fmt.Errorf("invoice: %w", invoicing.ErrNoEnvironment)
	}
	if inv.Number == "" {
		return fmt.Errorf("invoice: number missing")
	}
	if inv.ClientID == 0 {
		return fmt.Errorf("invoice %s: %w", inv.Number, ErrClientNotFound)
	}
	if inv.DocumentType.IsNote() {
		if inv.RelatedInvoiceNumber == "" {
			return fmt.Errorf("%s %s: %w: number missing", inv.DocumentType, inv.Number, ErrRelatedInvoice)
		}
		if inv.Reason == "" {
			return fmt.Errorf("%s %s: reason missing", inv.DocumentType, inv.Number)
		}
	} else if inv.RelatedInvoiceNumber != "" {
		return fmt.Errorf("invoice %s: %w: only credit and debit notes refer to an invoice", inv.Number, ErrRelatedInvoice)
	}
	if !inv.DueDate.IsZero() && inv.DueDate.Before(inv.IssueDate) {
		return fmt.Errorf("invoice %s: due date before issue date", inv.Number)
	}
	for _, it := range inv.Items {
		if it.Quantity.IsNegative() {
			return fmt.Errorf("invoice %s: item %d has a negative quantity", inv.Number, it.Position)
		}
	}
	return nil
}

// IsOverdue reports whether the invoice is open and past its due date.
func (inv *Invoice) IsOverdue(now time.Time) bool {
	if inv.Status != invoicing.StatusPending && inv.Status != invoicing.StatusSent {
		return false
	}
	return invoicing.IsOverdue(inv.DueDate, now)
}
