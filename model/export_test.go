package model_test

import (
	"bytes"
	"context"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/walaka/erp/fixtures"
	"github.com/walaka/erp/invoicing"
	"github.com/walaka/erp/model"
)

func TestWriteEInvoice(t *testing.T) {
	store := fixtures.NewTestStore(t)
	data := fixtures.SeedTestData(t, store)

	var buf bytes.Buffer
	if err := store.WriteEInvoice(context.Background(), fixtures.DefaultEnvironmentID, data.Invoice.Number, &buf); err != nil {
		t.Fatalf("WriteEInvoice failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{data.Invoice.Number, "Walaka Serviços Lda", "Machava Comércio", "MZN"} {
		if !strings.Contains(out, want) {
			t.Errorf("e-invoice XML lacks %q", want)
		}
	}
}

func TestWriteEInvoice_NotFound(t *testing.T) {
	store := fixtures.NewTestStore(t)
	var buf bytes.Buffer
	err := store.WriteEInvoice(context.Background(), fixtures.DefaultEnvironmentID, "INV-2025-00404", &buf)
	if err == nil {
		t.Fatal("WriteEInvoice should fail for a missing invoice")
	}
}

type saftDoc struct {
	Header struct {
		TaxRegistrationNumber string
		StartDate             string
		EndDate               string
		CurrencyCode          string
	}
	MasterFiles struct {
		Customer []struct {
			CustomerID string
		}
		TaxTable struct {
			TaxTableEntry []struct {
				TaxCode string
			}
		}
	}
	SourceDocuments struct {
		SalesInvoices struct {
			NumberOfEntries int
			TotalDebit      string
			TotalCredit     string
			Invoice         []struct {
				InvoiceNo      string
				DocumentStatus struct{ InvoiceStatus string }
				Hash           string
				Line           []struct {
					ProductCode  string
					DebitAmount  string
					CreditAmount string
					References   struct {
						Reference string
						Reason    string
					}
					Tax struct{ TaxCode string }
				}
			}
		}
		Payments struct {
			NumberOfEntries int
			TotalCredit     string
			Payment         []struct {
				PaymentRefNo  string
				PaymentType   string
				PaymentMethod struct{ PaymentMechanism string }
				Line          []struct {
					SourceDocumentID struct{ OriginatingON string }
					CreditAmount     string
				}
			}
		}
	}
}

func TestWriteSAFT(t *testing.T) {
	store := fixtures.NewTestStore(t)
	data := fixtures.SeedTestData(t, store)
	ctx := context.Background()

	exempt := fixtures.Invoice(
		fixtures.WithInvoiceNumber("INV-2025-00002"),
		fixtures.WithInvoiceClientID(data.Client.ID),
		fixtures.WithInvoiceItems(fixtures.ExemptItems()...),
	)
	credit := fixtures.Invoice(
		fixtures.WithInvoiceNumber("NC-2025-00001"),
		fixtures.WithInvoiceType(model.DocumentCreditNote),
		fixtures.WithRelatedInvoice("INV-2025-00001", "Devolução parcial"),
		fixtures.WithInvoiceClientID(data.Client.ID),
		fixtures.WithInvoiceItems(fixtures.Item(1, "Devolução", 1, 500, 16)),
	)
	outside := fixtures.Invoice(
		fixtures.WithInvoiceNumber("INV-2025-00003"),
		fixtures.WithInvoiceClientID(data.Client.ID),
		fixtures.WithInvoiceDates(time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC), time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
	)
	for _, inv := range []*model.Invoice{exempt, credit, outside} {
		if err := store.CreateInvoice(ctx, inv); err != nil {
			t.Fatalf("CreateInvoice %s failed: %v", inv.Number, err)
		}
	}
	cancel := invoicing.BuildStatusChange(fixtures.DefaultEnvironmentID, exempt.Number,
		invoicing.StatusPending, invoicing.StatusCancelled, invoicing.PaymentMetadata{},
		invoicing.Actor{UserID: fixtures.DefaultUserID}, time.Now())
	if err := store.ApplyStatusChange(ctx, cancel); err != nil {
		t.Fatalf("ApplyStatusChange failed: %v", err)
	}
	fixtures.MarkPaid(t, store, data.Invoice.Number)
	rc := &model.Receipt{
		EnvironmentID: fixtures.DefaultEnvironmentID,
		Number:        "REC-2025-00001",
		InvoiceNumber: data.Invoice.Number,
		Amount:        decimal.NewFromInt(10000),
		PaymentDate:   time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC),
		CreatedBy:     fixtures.DefaultUserID,
	}
	if err := store.CreateReceipt(ctx, rc); err != nil {
		t.Fatalf("CreateReceipt failed: %v", err)
	}

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	var buf bytes.Buffer
	if err := store.WriteSAFT(ctx, fixtures.DefaultEnvironmentID, from, to, &buf); err != nil {
		t.Fatalf("WriteSAFT failed: %v", err)
	}
	if !strings.Contains(buf.String(), `xmlns="urn:OECD:StandardAuditFile-Tax:MZ_1.0"`) {
		t.Error("SAF-T lacks the MZ namespace")
	}

	var doc saftDoc
	if err := xml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("SAF-T is not well formed: %v", err)
	}
	if doc.Header.TaxRegistrationNumber != "400123456" {
		t.Errorf("TaxRegistrationNumber = %q", doc.Header.TaxRegistrationNumber)
	}
	if doc.Header.StartDate != "2025-03-01" || doc.Header.EndDate != "2025-03-31" {
		t.Errorf("period = %s..%s", doc.Header.StartDate, doc.Header.EndDate)
	}

	si := doc.SourceDocuments.SalesInvoices
	if si.NumberOfEntries != 3 {
		t.Fatalf("NumberOfEntries = %d, want 3", si.NumberOfEntries)
	}
	// the cancelled exempt invoice does not count, sales are credits
	if si.TotalCredit != "18500.00" {
		t.Errorf("TotalCredit = %s, want 18500.00", si.TotalCredit)
	}
	if si.TotalDebit != "500.00" {
		t.Errorf("TotalDebit = %s, want 500.00", si.TotalDebit)
	}
	if len(doc.MasterFiles.Customer) != 1 {
		t.Errorf("len(Customer) = %d, want 1", len(doc.MasterFiles.Customer))
	}
	if n := len(doc.MasterFiles.TaxTable.TaxTableEntry); n != 2 {
		t.Errorf("len(TaxTableEntry) = %d, want 2 (ISE and NOR)", n)
	}

	byNo := map[string]int{}
	for i, inv := range si.Invoice {
		byNo[inv.InvoiceNo] = i
		if inv.Hash == "" {
			t.Errorf("%s has no hash", inv.InvoiceNo)
		}
	}
	if i, ok := byNo["FT INV-2025-00002"]; !ok || si.Invoice[i].DocumentStatus.InvoiceStatus != "A" {
		t.Errorf("cancelled invoice should be annulled")
	} else if si.Invoice[i].Line[0].Tax.TaxCode != "ISE" {
		t.Errorf("exempt line TaxCode = %q, want ISE", si.Invoice[i].Line[0].Tax.TaxCode)
	}
	if i, ok := byNo["FT INV-2025-00001"]; !ok || si.Invoice[i].Line[0].CreditAmount != "12000.00" {
		t.Errorf("invoice line should carry a credit amount")
	}
	i, ok := byNo["NC NC-2025-00001"]
	if !ok {
		t.Fatal("credit note missing")
	}
	line := si.Invoice[i].Line[0]
	if line.DebitAmount != "500.00" {
		t.Errorf("credit note line DebitAmount = %q, want 500.00", line.DebitAmount)
	}
	if line.References.Reference != "FT INV-2025-00001" || line.References.Reason != "Devolução parcial" {
		t.Errorf("References = %+v", line.References)
	}

	pay := doc.SourceDocuments.Payments
	if pay.NumberOfEntries != 1 || pay.TotalCredit != "10000.00" {
		t.Fatalf("Payments = %d / %s, want 1 / 10000.00", pay.NumberOfEntries, pay.TotalCredit)
	}
	p := pay.Payment[0]
	if p.PaymentRefNo != "RG REC-2025-00001" || p.PaymentType != "RG" {
		t.Errorf("payment = %s %s", p.PaymentRefNo, p.PaymentType)
	}
	if p.PaymentMethod.PaymentMechanism != "OU" {
		t.Errorf("PaymentMechanism = %q, want OU for mpesa", p.PaymentMethod.PaymentMechanism)
	}
	if p.Line[0].SourceDocumentID.OriginatingON != "FT INV-2025-00001" {
		t.Errorf("OriginatingON = %q", p.Line[0].SourceDocumentID.OriginatingON)
	}
}
