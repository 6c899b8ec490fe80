package controller

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/walaka/erp/model"
)

type APIStatusMetric struct {
	Status string `json:"status" xml:"status"`
	Label  string `json:"label" xml:"label"`
	Color  string `json:"color" xml:"color"`
	Count  int64  `json:"count" xml:"count"`
	Total  string `json:"total" xml:"total"`
}

type APIDashboard struct {
	XMLName     struct{}          `json:"-" xml:"dashboard"`
	Statuses    []APIStatusMetric `json:"statuses" xml:"statuses>status"`
	Invoices    int64             `json:"invoices" xml:"invoices"`
	Outstanding string            `json:"outstanding" xml:"outstanding"`
	Paid        string            `json:"paid" xml:"paid"`
}

func (ctrl *controller) apiDashboard(c echo.Context) error {
	rows, err := ctrl.model.InvoiceMetrics(c.Request().Context(), apiEnv(c))
	if err != nil {
		return err
	}
	out := APIDashboard{
		Statuses: lo.Map(rows, func(m model.StatusMetric, _ int) APIStatusMetric {
			v := ctrl.transitions.View(m.Status)
			return APIStatusMetric{
				Status: string(m.Status),
				Label:  v.Label,
				Color:  v.Color,
				Count:  m.Count,
				Total:  m.Total.StringFixed(2),
			}
		}),
	}
	outstanding, paid := decimal.Zero, decimal.Zero
	for _, m := range rows {
		out.Invoices += m.Count
		switch {
		case m.Status == "paid":
			paid = paid.Add(m.Total)
		case m.Status != "cancelled":
			outstanding = outstanding.Add(m.Total)
		}
	}
	out.Outstanding = outstanding.StringFixed(2)
	out.Paid = paid.StringFixed(2)
	return respond(c, http.StatusOK, out)
}
