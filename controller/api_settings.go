// controller/api_settings.go
package controller

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/walaka/erp/model"
)

type APISettings struct {
	XMLName             struct{} `json:"-" xml:"settings"`
	CompanyName         string   `json:"company_name" xml:"company_name" validate:"required"`
	TaxID               string   `json:"tax_id" xml:"tax_id" validate:"max=50"`
	InvoiceContact      string   `json:"invoice_contact" xml:"invoice_contact"`
	InvoiceEMail        string   `json:"invoice_email" xml:"invoice_email" validate:"omitempty,email"`
	Address1            string   `json:"address1" xml:"address1"`
	Address2            string   `json:"address2" xml:"address2"`
	City                string   `json:"city" xml:"city"`
	ZIP                 string   `json:"zip" xml:"zip"`
	CountryCode         string   `json:"country_code" xml:"country_code"`
	BankIBAN            string   `json:"bank_iban" xml:"bank_iban"`
	BankName            string   `json:"bank_name" xml:"bank_name"`
	BankBIC             string   `json:"bank_bic" xml:"bank_bic"`
	PaymentTermDays     int      `json:"payment_term_days" xml:"payment_term_days" validate:"gte=0,lte=365"`
	SoftwareCertificate string   `json:"software_certificate" xml:"software_certificate"`
}

func toAPISettings(s *model.Settings) APISettings {
	return APISettings{
		CompanyName:         s.CompanyName,
		TaxID:               s.TaxID,
		InvoiceContact:      s.InvoiceContact,
		InvoiceEMail:        s.InvoiceEMail,
		Address1:            s.Address1,
		Address2:            s.Address2,
		City:                s.City,
		ZIP:                 s.ZIP,
		CountryCode:         s.CountryCode,
		BankIBAN:            s.BankIBAN,
		BankName:            s.BankName,
		BankBIC:             s.BankBIC,
		PaymentTermDays:     s.PaymentTermDays,
		SoftwareCertificate: s.SoftwareCertificate,
	}
}

func (ctrl *controller) apiSettingsGet(c echo.Context) error {
	st, err := ctrl.model.LoadSettings(c.Request().Context(), apiEnv(c))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, toAPISettings(st))
}

func (ctrl *controller) apiSettingsUpdate(c echo.Context) error {
	var req APISettings
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	st, err := ctrl.model.LoadSettings(ctx, apiEnv(c))
	if err != nil {
		return err
	}
	st.CompanyName = req.CompanyName
	st.TaxID = req.TaxID
	st.InvoiceContact = req.InvoiceContact
	st.InvoiceEMail = req.InvoiceEMail
	st.Address1 = req.Address1
	st.Address2 = req.Address2
	st.City = req.City
	st.ZIP = req.ZIP
	st.CountryCode = req.CountryCode
	st.BankIBAN = req.BankIBAN
	st.BankName = req.BankName
	st.BankBIC = req.BankBIC
	st.PaymentTermDays = req.PaymentTermDays
	st.SoftwareCertificate = req.SoftwareCertificate
	if err := ctrl.model.SaveSettings(ctx, st); err != nil {
		return err
	}
	return respond(c, http.StatusOK, toAPISettings(st))
}
