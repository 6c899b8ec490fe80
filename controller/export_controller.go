package controller

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// exportPeriod reads from/to (YYYY-MM-DD, to exclusive). Without
// parameters the current calendar year is used.
func exportPeriod(c echo.Context, now time.Time) (time.Time, time.Time, error) {
	from := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)
	if s := c.QueryParam("from"); s != "" {
		t, err := time.Parse(apiDate, s)
		if err != nil {
			return from, to, ErrInvalid(err, "from must be YYYY-MM-DD")
		}
		from = t
	}
	if s := c.QueryParam("to"); s != "" {
		t, err := time.Parse(apiDate, s)
		if err != nil {
			return from, to, ErrInvalid(err, "to must be YYYY-MM-DD")
		}
		to = t
	}
	if !to.After(from) {
		return from, to, ErrInvalid(fmt.Errorf("empty period %s..%s", from, to), "to must be after from")
	}
	return from, to, nil
}

// apiExportCSV writes the invoices of a period as semicolon separated CSV
// with a UTF-8 BOM so that spreadsheet programs detect the encoding.
func (ctrl *controller) apiExportCSV(c echo.Context) error {
	from, to, err := exportPeriod(c, time.Now())
	if err != nil {
		return err
	}
	invs, err := ctrl.model.InvoicesInPeriod(c.Request().Context(), apiEnv(c), from, to)
	if err != nil {
		return err
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition, `attachment; filename="invoices.csv"`)
	res.WriteHeader(http.StatusOK)
	if _, err := res.Write([]byte("\ufeff")); err != nil {
		return err
	}

	w := csv.NewWriter(res)
	w.Comma = ';'
	_ = w.Write([]string{"number", "type", "issue_date", "due_date", "client", "tax_id",
		"currency", "subtotal", "vat", "total", "status", "payment_date", "payment_method"})
	for i := range invs {
		inv := &invs[i]
		paid := ""
		if inv.PaymentDate != nil {
			paid = inv.PaymentDate.Format(apiDate)
		}
		_ = w.Write([]string{
			inv.Number,
			string(inv.DocumentType),
			formatDate(inv.IssueDate),
			formatDate(inv.DueDate),
			inv.Client.Name,
			inv.Client.TaxID,
			inv.Currency,
			inv.Subtotal.StringFixed(2),
			inv.TotalVAT.StringFixed(2),
			inv.Total.StringFixed(2),
			ctrl.transitions.View(inv.Status).Label,
			paid,
			inv.PaymentMethod,
		})
	}
	w.Flush()
	return w.Error()
}

func (ctrl *controller) apiExportSAFT(c echo.Context) error {
	from, to, err := exportPeriod(c, time.Now())
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := ctrl.model.WriteSAFT(c.Request().Context(), apiEnv(c), from, to, &buf); err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="saft_%s_%s.xml"`, from.Format("20060102"), to.Format("20060102")))
	return c.Blob(http.StatusOK, echo.MIMEApplicationXMLCharsetUTF8, buf.Bytes())
}

func (ctrl *controller) apiInvoiceEInvoice(c echo.Context) error {
	number := c.Param("number")
	var buf bytes.Buffer
	if err := ctrl.model.WriteEInvoice(c.Request().Context(), apiEnv(c), number, &buf); err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.xml"`, number))
	return c.Blob(http.StatusOK, echo.MIMEApplicationXMLCharsetUTF8, buf.Bytes())
}
