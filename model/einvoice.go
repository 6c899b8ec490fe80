package model

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/biter777/countries"
	"github.com/speedata/einvoice"
)

// countryID returns the two letter alpha code for a country name or code.
func countryID(country string) string {
	country = strings.TrimSpace(country)
	if country == "" {
		return "MZ"
	}
	if c := countries.ByName(country); c != countries.Unknown {
		return c.Alpha2()
	}
	return "MZ" // default
}

func taxCategory(it InvoiceItem) string {
	if it.VATRate.IsZero() {
		return "E"
	}
	return "S"
}

// WriteEInvoice renders the invoice as EN 16931 cross industry invoice XML.
func (s *Store) WriteEInvoice(ctx context.Context, env, number string, w io.Writer) error {
	inv, err := s.LoadInvoice(ctx, env, number)
	if err != nil {
		return err
	}
	settings, err := s.LoadSettings(ctx, env)
	if err != nil {
		return err
	}
	return buildEInvoice(inv, settings).Write(w)
}

func buildEInvoice(inv *Invoice, settings *Settings) *einvoice.Invoice {
	client := inv.Client
	zi := &einvoice.Invoice{
		InvoiceNumber:       inv.Number,
		InvoiceTypeCode:     einvoice.CodeDocument(inv.DocumentType.EInvoiceTypeCode()),
		Profile:             einvoice.CProfileEN16931,
		InvoiceDate:         inv.IssueDate,
		OccurrenceDateTime:  inv.IssueDate,
		InvoiceCurrencyCode: inv.Currency,
		TaxCurrencyCode:     inv.Currency,
		Seller: einvoice.Party{
			Name:              settings.CompanyName,
			VATaxRegistration: settings.TaxID,
			PostalAddress: &einvoice.PostalAddress{
				Line1:        settings.Address1,
				Line2:        settings.Address2,
				City:         settings.City,
				PostcodeCode: settings.ZIP,
				CountryID:    countryID(settings.CountryCode),
			},
			DefinedTradeContact: []einvoice.DefinedTradeContact{{
				PersonName: settings.InvoiceContact,
				EMail:      settings.InvoiceEMail,
			}},
		},
		Buyer: einvoice.Party{
			Name: client.Name,
			PostalAddress: &einvoice.PostalAddress{
				Line1:        client.Address1,
				Line2:        client.Address2,
				City:         client.City,
				PostcodeCode: client.ZIP,
				CountryID:    countryID(client.Country),
			},
			DefinedTradeContact: []einvoice.DefinedTradeContact{{
				PersonName: client.Name,
				EMail:      client.Email,
			}},
			VATaxRegistration: client.TaxID,
		},
		PaymentMeans: []einvoice.PaymentMeans{
			{
				TypeCode:                                      30,
				PayeePartyCreditorFinancialAccountIBAN:        settings.BankIBAN,
				PayeePartyCreditorFinancialAccountName:        settings.BankName,
				PayeeSpecifiedCreditorFinancialInstitutionBIC: settings.BankBIC,
			},
		},
		SpecifiedTradePaymentTerms: []einvoice.SpecifiedTradePaymentTerms{{
			DueDate: inv.DueDate,
		}},
	}
	if inv.Notes != "" {
		zi.Notes = []einvoice.Note{{Text: inv.Notes}}
	}

	for _, it := range inv.Items {
		zi.InvoiceLines = append(zi.InvoiceLines, einvoice.InvoiceLine{
			LineID:                   fmt.Sprintf("%d", it.Position),
			ItemName:                 it.Description,
			BilledQuantity:           it.Quantity,
			BilledQuantityUnit:       it.UnitCode,
			NetPrice:                 it.UnitPrice,
			TaxRateApplicablePercent: it.VATRate,
			Total:                    it.LineTotal,
			TaxTypeCode:              "VAT",
			TaxCategoryCode:          taxCategory(it),
		})
	}
	reason := inv.ExemptionReason
	if reason == "" {
		reason = "Isento nos termos do Código do IVA"
	}
	zi.UpdateApplicableTradeTax(map[string]string{"E": reason})
	zi.UpdateTotals()
	return zi
}
