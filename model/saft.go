package model

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/walaka/erp/invoicing"
)

const saftNamespace = "urn:OECD:StandardAuditFile-Tax:MZ_1.0"

// SAF-T MZ audit file, reduced to sales invoices.
type saftAuditFile struct {
	XMLName         xml.Name            `xml:"AuditFile"`
	Xmlns           string              `xml:"xmlns,attr"`
	Header          saftHeader          `xml:"Header"`
	MasterFiles     saftMasterFiles     `xml:"MasterFiles"`
	SourceDocuments saftSourceDocuments `xml:"SourceDocuments"`
}

type saftHeader struct {
	AuditFileVersion          string      `xml:"AuditFileVersion"`
	CompanyID                 string      `xml:"CompanyID"`
	TaxRegistrationNumber     string      `xml:"TaxRegistrationNumber"`
	TaxAccountingBasis        string      `xml:"TaxAccountingBasis"`
	CompanyName               string      `xml:"CompanyName"`
	CompanyAddress            saftAddress `xml:"CompanyAddress"`
	FiscalYear                int         `xml:"FiscalYear"`
	StartDate                 string      `xml:"StartDate"`
	EndDate                   string      `xml:"EndDate"`
	CurrencyCode              string      `xml:"CurrencyCode"`
	DateCreated               string      `xml:"DateCreated"`
	TaxEntity                 string      `xml:"TaxEntity"`
	ProductCompanyTaxID       string      `xml:"ProductCompanyTaxID"`
	SoftwareCertificateNumber string      `xml:"SoftwareCertificateNumber"`
	ProductID                 string      `xml:"ProductID"`
	ProductVersion            string      `xml:"ProductVersion"`
}

type saftAddress struct {
	AddressDetail string `xml:"AddressDetail"`
	City          string `xml:"City,omitempty"`
	PostalCode    string `xml:"PostalCode,omitempty"`
	Country       string `xml:"Country"`
}

type saftMasterFiles struct {
	Customers []saftCustomer     `xml:"Customer"`
	TaxTable  []saftTaxTableItem `xml:"TaxTable>TaxTableEntry"`
}

type saftCustomer struct {
	CustomerID     string      `xml:"CustomerID"`
	AccountID      string      `xml:"AccountID"`
	CustomerTaxID  string      `xml:"CustomerTaxID"`
	CompanyName    string      `xml:"CompanyName"`
	BillingAddress saftAddress `xml:"BillingAddress"`
	Email          string      `xml:"Email,omitempty"`
	Telephone      string      `xml:"Telephone,omitempty"`
}

type saftTaxTableItem struct {
	TaxType          string `xml:"TaxType"`
	TaxCountryRegion string `xml:"TaxCountryRegion"`
	TaxCode          string `xml:"TaxCode"`
	Description      string `xml:"Description"`
	TaxPercentage    string `xml:"TaxPercentage"`
}

type saftSourceDocuments struct {
	SalesInvoices saftSalesInvoices `xml:"SalesInvoices"`
	Payments      *saftPayments     `xml:"Payments,omitempty"`
}

type saftSalesInvoices struct {
	NumberOfEntries int           `xml:"NumberOfEntries"`
	TotalDebit      string        `xml:"TotalDebit"`
	TotalCredit     string        `xml:"TotalCredit"`
	Invoices        []saftInvoice `xml:"Invoice"`
}

type saftInvoice struct {
	InvoiceNo       string             `xml:"InvoiceNo"`
	DocumentStatus  saftDocumentStatus `xml:"DocumentStatus"`
	Hash            string             `xml:"Hash"`
	HashControl     string             `xml:"HashControl"`
	Period          int                `xml:"Period"`
	InvoiceDate     string             `xml:"InvoiceDate"`
	InvoiceType     string             `xml:"InvoiceType"`
	SystemEntryDate string             `xml:"SystemEntryDate"`
	CustomerID      string             `xml:"CustomerID"`
	Lines           []saftLine         `xml:"Line"`
	DocumentTotals  saftDocumentTotals `xml:"DocumentTotals"`
}

type saftDocumentStatus struct {
	InvoiceStatus     string `xml:"InvoiceStatus"`
	InvoiceStatusDate string `xml:"InvoiceStatusDate"`
	SourceID          string `xml:"SourceID"`
	SourceBilling     string `xml:"SourceBilling"`
}

type saftLine struct {
	LineNumber         int             `xml:"LineNumber"`
	ProductCode        string          `xml:"ProductCode"`
	ProductDescription string          `xml:"ProductDescription"`
	Quantity           string          `xml:"Quantity"`
	UnitOfMeasure      string          `xml:"UnitOfMeasure"`
	UnitPrice          string          `xml:"UnitPrice"`
	TaxPointDate       string          `xml:"TaxPointDate"`
	Description        string          `xml:"Description"`
	DebitAmount        string          `xml:"DebitAmount,omitempty"`
	CreditAmount       string          `xml:"CreditAmount,omitempty"`
	References         *saftReferences `xml:"References,omitempty"`
	Tax                saftTax         `xml:"Tax"`
	TaxExemptionReason string          `xml:"TaxExemptionReason,omitempty"`
}

// saftReferences points a credit or debit note line at the corrected invoice.
type saftReferences struct {
	Reference string `xml:"Reference"`
	Reason    string `xml:"Reason,omitempty"`
}

type saftPayments struct {
	NumberOfEntries int           `xml:"NumberOfEntries"`
	TotalDebit      string        `xml:"TotalDebit"`
	TotalCredit     string        `xml:"TotalCredit"`
	Payments        []saftPayment `xml:"Payment"`
}

type saftPayment struct {
	PaymentRefNo    string            `xml:"PaymentRefNo"`
	Period          int               `xml:"Period"`
	TransactionDate string            `xml:"TransactionDate"`
	PaymentType     string            `xml:"PaymentType"`
	DocumentStatus  saftPaymentStatus `xml:"DocumentStatus"`
	PaymentMethod   saftPaymentMethod `xml:"PaymentMethod"`
	SourceID        string            `xml:"SourceID"`
	SystemEntryDate string            `xml:"SystemEntryDate"`
	CustomerID      string            `xml:"CustomerID"`
	Lines           []saftPaymentLine `xml:"Line"`
	DocumentTotals  saftPaymentTotals `xml:"DocumentTotals"`
}

type saftPaymentStatus struct {
	PaymentStatus     string `xml:"PaymentStatus"`
	PaymentStatusDate string `xml:"PaymentStatusDate"`
	SourceID          string `xml:"SourceID"`
	SourcePayment     string `xml:"SourcePayment"`
}

type saftPaymentMethod struct {
	PaymentMechanism string `xml:"PaymentMechanism"`
	PaymentAmount    string `xml:"PaymentAmount"`
	PaymentDate      string `xml:"PaymentDate"`
}

type saftPaymentLine struct {
	LineNumber       int                  `xml:"LineNumber"`
	SourceDocumentID saftSourceDocumentID `xml:"SourceDocumentID"`
	CreditAmount     string               `xml:"CreditAmount"`
}

type saftSourceDocumentID struct {
	OriginatingON string `xml:"OriginatingON"`
	InvoiceDate   string `xml:"InvoiceDate"`
}

type saftPaymentTotals struct {
	TaxPayable string `xml:"TaxPayable"`
	NetTotal   string `xml:"NetTotal"`
	GrossTotal string `xml:"GrossTotal"`
}

type saftTax struct {
	TaxType          string `xml:"TaxType"`
	TaxCountryRegion string `xml:"TaxCountryRegion"`
	TaxCode          string `xml:"TaxCode"`
	TaxPercentage    string `xml:"TaxPercentage"`
}

type saftDocumentTotals struct {
	TaxPayable string `xml:"TaxPayable"`
	NetTotal   string `xml:"NetTotal"`
	GrossTotal string `xml:"GrossTotal"`
}

// saftTaxCode maps a VAT rate to the Mozambican tax code.
func saftTaxCode(rate decimal.Decimal) string {
	switch {
	case rate.IsZero():
		return "ISE"
	case rate.Equal(decimal.NewFromInt(16)):
		return "NOR"
	case rate.Equal(decimal.NewFromInt(5)):
		return "RED"
	default:
		return "OUT"
	}
}

// saftInvoiceStatus maps the lifecycle status to N (normal) or A (annulled).
func saftInvoiceStatus(s invoicing.Status) string {
	if s == invoicing.StatusCancelled {
		return "A"
	}
	return "N"
}

// saftPaymentMechanism maps the payment method to the SAF-T mechanism code.
func saftPaymentMechanism(method string) string {
	switch strings.ToLower(method) {
	case "cash", "numerario":
		return "NU"
	case "card", "cartao":
		return "CD"
	case "cheque", "check":
		return "CH"
	case "bank_transfer", "transfer", "transferencia":
		return "TB"
	default:
		return "OU"
	}
}

// saftDocumentNo is the number of a source document with its type code.
func saftDocumentNo(dt DocumentType, number string) string {
	return dt.SAFTCode() + " " + number
}

func saftAmount(d decimal.Decimal) string { return d.StringFixed(2) }

func saftDate(t time.Time) string { return t.Format("2006-01-02") }

func saftDateTime(t time.Time) string { return t.Format("2006-01-02T15:04:05") }

// saftHash chains the document signature over date, entry time, number,
// gross total and the previous hash.
func saftHash(inv *Invoice, previous string) string {
	msg := fmt.Sprintf("%s;%s;%s;%s;%s",
		saftDate(inv.IssueDate), saftDateTime(inv.CreatedAt), inv.Number, saftAmount(inv.Total), previous)
	sum := sha1.Sum([]byte(msg))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func customerID(c Client) string {
	if c.CustomerNumber != "" {
		return c.CustomerNumber
	}
	if c.TaxID != "" {
		return "CUST" + c.TaxID
	}
	return fmt.Sprintf("CUST%d", c.ID)
}

// BuildSAFT assembles the audit file of the invoices issued in [from, to).
func (s *Store) BuildSAFT(ctx context.Context, env string, from, to time.Time, now time.Time) (*saftAuditFile, error) {
	settings, err := s.LoadSettings(ctx, env)
	if err != nil {
		return nil, err
	}
	invs, err := s.InvoicesInPeriod(ctx, env, from, to)
	if err != nil {
		return nil, err
	}

	currency := s.Config.Currency()
	if len(invs) > 0 && invs[0].Currency != "" {
		currency = invs[0].Currency
	}
	af := &saftAuditFile{
		Xmlns: saftNamespace,
		Header: saftHeader{
			AuditFileVersion:      "1.0",
			CompanyID:             settings.TaxID,
			TaxRegistrationNumber: settings.TaxID,
			TaxAccountingBasis:    "F",
			CompanyName:           settings.CompanyName,
			CompanyAddress: saftAddress{
				AddressDetail: settings.Address1,
				City:          settings.City,
				PostalCode:    settings.ZIP,
				Country:       countryID(settings.CountryCode),
			},
			FiscalYear:                from.Year(),
			StartDate:                 saftDate(from),
			EndDate:                   saftDate(to.AddDate(0, 0, -1)),
			CurrencyCode:              currency,
			DateCreated:               saftDate(now),
			TaxEntity:                 "Global",
			ProductCompanyTaxID:       settings.SoftwareCertificate,
			SoftwareCertificateNumber: settings.SoftwareCertificate,
			ProductID:                 "WALAKA ERP",
			ProductVersion:            "1.0",
		},
	}

	customers := map[uint]bool{}
	addCustomer := func(c Client) {
		if customers[c.ID] {
			return
		}
		customers[c.ID] = true
		af.MasterFiles.Customers = append(af.MasterFiles.Customers, saftCustomer{
			CustomerID:    customerID(c),
			AccountID:     "ACC" + customerID(c),
			CustomerTaxID: c.TaxID,
			CompanyName:   c.Name,
			BillingAddress: saftAddress{
				AddressDetail: c.Address1,
				City:          c.City,
				PostalCode:    c.ZIP,
				Country:       countryID(c.Country),
			},
			Email:     c.Email,
			Telephone: c.Phone,
		})
	}
	rates := map[string]decimal.Decimal{}
	totalCredit, totalDebit := decimal.Zero, decimal.Zero
	previousHash := ""

	for i := range invs {
		inv := &invs[i]
		addCustomer(inv.Client)

		statusDate := inv.UpdatedAt
		doc := saftInvoice{
			InvoiceNo: saftDocumentNo(inv.DocumentType, inv.Number),
			DocumentStatus: saftDocumentStatus{
				InvoiceStatus:     saftInvoiceStatus(inv.Status),
				InvoiceStatusDate: saftDateTime(statusDate),
				SourceID:          inv.CreatedBy,
				SourceBilling:     "P",
			},
			Hash:            saftHash(inv, previousHash),
			HashControl:     "1",
			Period:          int(inv.IssueDate.Month()),
			InvoiceDate:     saftDate(inv.IssueDate),
			InvoiceType:     inv.DocumentType.SAFTCode(),
			SystemEntryDate: saftDateTime(inv.CreatedAt),
			CustomerID:      customerID(inv.Client),
			DocumentTotals: saftDocumentTotals{
				TaxPayable: saftAmount(inv.TotalVAT),
				NetTotal:   saftAmount(inv.Subtotal),
				GrossTotal: saftAmount(inv.Total),
			},
		}
		previousHash = doc.Hash

		credit := inv.DocumentType != DocumentCreditNote
		var refs *saftReferences
		if inv.DocumentType.IsNote() {
			refs = &saftReferences{
				Reference: saftDocumentNo(DocumentInvoice, inv.RelatedInvoiceNumber),
				Reason:    inv.Reason,
			}
		}
		for _, it := range inv.Items {
			rates[it.VATRate.String()] = it.VATRate
			line := saftLine{
				LineNumber:         it.Position,
				ProductCode:        productCode(it),
				ProductDescription: it.Description,
				Quantity:           it.Quantity.String(),
				UnitOfMeasure:      it.UnitCode,
				UnitPrice:          saftAmount(it.UnitPrice),
				TaxPointDate:       saftDate(inv.IssueDate),
				Description:        it.Description,
				References:         refs,
				Tax: saftTax{
					TaxType:          "IVA",
					TaxCountryRegion: "MZ",
					TaxCode:          saftTaxCode(it.VATRate),
					TaxPercentage:    it.VATRate.String(),
				},
			}
			if credit {
				line.CreditAmount = saftAmount(it.LineTotal)
			} else {
				line.DebitAmount = saftAmount(it.LineTotal)
			}
			if it.VATRate.IsZero() {
				line.TaxExemptionReason = "M99"
			}
			doc.Lines = append(doc.Lines, line)
		}

		// annulled documents do not count towards the totals
		if inv.Status != invoicing.StatusCancelled {
			if credit {
				totalCredit = totalCredit.Add(inv.Subtotal)
			} else {
				totalDebit = totalDebit.Add(inv.Subtotal)
			}
		}
		af.SourceDocuments.SalesInvoices.Invoices = append(af.SourceDocuments.SalesInvoices.Invoices, doc)
	}

	keys := make([]string, 0, len(rates))
	for k := range rates {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return rates[keys[i]].LessThan(rates[keys[j]]) })
	for _, k := range keys {
		af.MasterFiles.TaxTable = append(af.MasterFiles.TaxTable, saftTaxTableItem{
			TaxType:          "IVA",
			TaxCountryRegion: "MZ",
			TaxCode:          saftTaxCode(rates[k]),
			Description:      "IVA " + k + "%",
			TaxPercentage:    k,
		})
	}

	si := &af.SourceDocuments.SalesInvoices
	si.NumberOfEntries = len(si.Invoices)
	si.TotalCredit = saftAmount(totalCredit)
	si.TotalDebit = saftAmount(totalDebit)

	receipts, err := s.ReceiptsInPeriod(ctx, env, from, to)
	if err != nil {
		return nil, err
	}
	if len(receipts) > 0 {
		for _, rc := range receipts {
			addCustomer(rc.Invoice.Client)
		}
		af.SourceDocuments.Payments = saftPaymentsOf(receipts)
	}
	return af, nil
}

func productCode(it InvoiceItem) string {
	if it.ProductID != nil {
		return fmt.Sprintf("P%d", *it.ProductID)
	}
	return fmt.Sprintf("PROD%03d", it.Position)
}

// saftPaymentsOf lists receipts as RG payment documents.
func saftPaymentsOf(receipts []Receipt) *saftPayments {
	p := &saftPayments{}
	total := decimal.Zero
	for _, rc := range receipts {
		amount := saftAmount(rc.Amount)
		p.Payments = append(p.Payments, saftPayment{
			PaymentRefNo:    "RG " + rc.Number,
			Period:          int(rc.PaymentDate.Month()),
			TransactionDate: saftDate(rc.PaymentDate),
			PaymentType:     "RG",
			DocumentStatus: saftPaymentStatus{
				PaymentStatus:     "N",
				PaymentStatusDate: saftDateTime(rc.CreatedAt),
				SourceID:          rc.CreatedBy,
				SourcePayment:     "P",
			},
			PaymentMethod: saftPaymentMethod{
				PaymentMechanism: saftPaymentMechanism(rc.PaymentMethod),
				PaymentAmount:    amount,
				PaymentDate:      saftDate(rc.PaymentDate),
			},
			SourceID:        rc.CreatedBy,
			SystemEntryDate: saftDateTime(rc.CreatedAt),
			CustomerID:      customerID(rc.Invoice.Client),
			Lines: []saftPaymentLine{{
				LineNumber: 1,
				SourceDocumentID: saftSourceDocumentID{
					OriginatingON: saftDocumentNo(rc.Invoice.DocumentType, rc.InvoiceNumber),
					InvoiceDate:   saftDate(rc.Invoice.IssueDate),
				},
				CreditAmount: amount,
			}},
			DocumentTotals: saftPaymentTotals{
				TaxPayable: saftAmount(decimal.Zero),
				NetTotal:   amount,
				GrossTotal: amount,
			},
		})
		total = total.Add(rc.Amount)
	}
	p.NumberOfEntries = len(p.Payments)
	p.TotalDebit = saftAmount(decimal.Zero)
	p.TotalCredit = saftAmount(total)
	return p
}

// WriteSAFT writes the SAF-T audit file of [from, to) to w.
func (s *Store) WriteSAFT(ctx context.Context, env string, from, to time.Time, w io.Writer) error {
	af, err := s.BuildSAFT(ctx, env, from, to, time.Now())
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(af); err != nil {
		return fmt.Errorf("encode saf-t: %w", err)
	}
	return enc.Flush()
}
