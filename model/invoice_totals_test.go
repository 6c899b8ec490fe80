package model_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/walaka/erp/fixtures"
	"github.com/walaka/erp/invoicing"
	"github.com/walaka/erp/model"
)

func TestInvoice_RecomputeTotals(t *testing.T) {
	tests := []struct {
		name         string
		items        []model.InvoiceItem
		wantNet      string
		wantGross    string
		wantTaxCount int
	}{
		{
			name:         "empty invoice",
			items:        nil,
			wantNet:      "0",
			wantGross:    "0",
			wantTaxCount: 0,
		},
		{
			name:         "single item 16% VAT",
			items:        []model.InvoiceItem{fixtures.Item(1, "Serviço", 1, 100, 16)},
			wantNet:      "100",
			wantGross:    "116",
			wantTaxCount: 1,
		},
		{
			name:         "multiple items same rate",
			items:        fixtures.SampleItems(),
			wantNet:      "18500", // 8*1500 + 2*750 + 5000
			wantGross:    "21460", // 18500 * 1.16
			wantTaxCount: 1,
		},
		{
			name: "mixed rates",
			items: []model.InvoiceItem{
				fixtures.Item(1, "Normal", 1, 100, 16),
				fixtures.Item(2, "Reduzida", 1, 100, 5),
			},
			wantNet:      "200",
			wantGross:    "221",
			wantTaxCount: 2,
		},
		{
			name:         "exempt",
			items:        fixtures.ExemptItems(),
			wantNet:      "2500",
			wantGross:    "2500",
			wantTaxCount: 1,
		},
		{
			name:         "line totals rounded to cents",
			items:        []model.InvoiceItem{fixtures.Item(1, "Peso", 0.333, 10, 0)},
			wantNet:      "3.33",
			wantGross:    "3.33",
			wantTaxCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := fixtures.Invoice(fixtures.WithInvoiceItems(tt.items...))
			inv.RecomputeTotals()

			if !inv.Subtotal.Equal(decimal.RequireFromString(tt.wantNet)) {
				t.Errorf("Subtotal = %s, want %s", inv.Subtotal, tt.wantNet)
			}
			if !inv.Total.Equal(decimal.RequireFromString(tt.wantGross)) {
				t.Errorf("Total = %s, want %s", inv.Total, tt.wantGross)
			}
			if len(inv.VATAmounts) != tt.wantTaxCount {
				t.Errorf("len(VATAmounts) = %d, want %d", len(inv.VATAmounts), tt.wantTaxCount)
			}
		})
	}
}

func TestInvoice_RecomputeTotals_SortsRates(t *testing.T) {
	inv := fixtures.Invoice(fixtures.WithInvoiceItems(
		fixtures.Item(1, "A", 1, 100, 16),
		fixtures.Item(2, "B", 1, 100, 0),
		fixtures.Item(3, "C", 1, 100, 5),
	))
	inv.RecomputeTotals()

	want := []int64{0, 5, 16}
	for i, v := range inv.VATAmounts {
		if !v.Rate.Equal(decimal.NewFromInt(want[i])) {
			t.Errorf("VATAmounts[%d].Rate = %s, want %d", i, v.Rate, want[i])
		}
	}
	if inv.Items[0].UnitCode != "C62" {
		t.Errorf("UnitCode = %q, want default C62", inv.Items[0].UnitCode)
	}
}

func TestInvoice_Validate(t *testing.T) {
	issue := time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		inv     *model.Invoice
		wantErr bool
	}{
		{"valid", fixtures.Invoice(fixtures.WithInvoiceClientID(1)), false},
		{"missing client", fixtures.Invoice(), true},
		{"missing environment", fixtures.Invoice(fixtures.WithInvoiceClientID(1), fixtures.WithInvoiceEnvironment("")), true},
		{"missing number", fixtures.Invoice(fixtures.WithInvoiceClientID(1), fixtures.WithInvoiceNumber("")), true},
		{"due before issue", fixtures.Invoice(fixtures.WithInvoiceClientID(1), fixtures.WithInvoiceDates(issue, issue.AddDate(0, 0, -1))), true},
		{"negative quantity", fixtures.Invoice(fixtures.WithInvoiceClientID(1), fixtures.WithInvoiceItems(fixtures.Item(1, "X", -1, 10, 16))), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.inv.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInvoice_IsOverdue(t *testing.T) {
	due := time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)
	inv := fixtures.Invoice(fixtures.WithInvoiceDates(due.AddDate(0, 0, -30), due))

	if inv.IsOverdue(due.Add(23 * time.Hour)) {
		t.Error("invoice must not be overdue on its due day")
	}
	if !inv.IsOverdue(due.AddDate(0, 0, 1)) {
		t.Error("invoice should be overdue the day after the due date")
	}
	inv.Status = invoicing.StatusPaid
	if inv.IsOverdue(due.AddDate(0, 1, 0)) {
		t.Error("paid invoice is never overdue")
	}
}

func TestInvoice_Duplicate(t *testing.T) {
	issue := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	inv := fixtures.Invoice(
		fixtures.WithInvoiceClientID(3),
		fixtures.WithInvoiceStatus(invoicing.StatusPaid),
		fixtures.WithInvoiceDates(issue, issue.AddDate(0, 0, 15)),
		fixtures.WithInvoiceItems(fixtures.SampleItems()...),
	)
	inv.RecomputeTotals()

	newIssue := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	cp := inv.Duplicate(newIssue)

	if cp.Number != "" {
		t.Errorf("Number = %q, want empty", cp.Number)
	}
	if cp.Status != invoicing.StatusPending {
		t.Errorf("Status = %q, want pending", cp.Status)
	}
	if !cp.DueDate.Equal(newIssue.AddDate(0, 0, 15)) {
		t.Errorf("DueDate = %v, want issue + 15 days", cp.DueDate)
	}
	if !cp.Total.Equal(inv.Total) {
		t.Errorf("Total = %s, want %s", cp.Total, inv.Total)
	}
	if len(cp.Items) != len(inv.Items) {
		t.Fatalf("len(Items) = %d, want %d", len(cp.Items), len(inv.Items))
	}
}
