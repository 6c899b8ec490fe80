package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/walaka/erp/invoicing"
	"github.com/walaka/erp/model"
)

// InvoiceLoader loads the invoice an event refers to.
type InvoiceLoader interface {
	LoadInvoice(ctx context.Context, env, number string) (*model.Invoice, error)
	LoadSettings(ctx context.Context, env string) (*model.Settings, error)
}

// Notifier emails the client when an invoice was sent, paid or cancelled.
type Notifier struct {
	Loader InvoiceLoader
	Sender Sender
	Logger *slog.Logger
}

// HandleStatusChanged is meant to be subscribed to the event bus.
func (n *Notifier) HandleStatusChanged(ctx context.Context, ev invoicing.StatusChanged) error {
	switch ev.To {
	case invoicing.StatusSent, invoicing.StatusPaid, invoicing.StatusCancelled:
	default:
		return nil
	}
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}

	inv, err := n.Loader.LoadInvoice(ctx, ev.EnvironmentID, ev.InvoiceNumber)
	if err != nil {
		return fmt.Errorf("notify %s: %w", ev.InvoiceNumber, err)
	}
	if inv.Client.Email == "" {
		logger.Debug("client has no email, not notifying", "invoice", ev.InvoiceNumber)
		return nil
	}
	settings, err := n.Loader.LoadSettings(ctx, ev.EnvironmentID)
	if err != nil {
		return fmt.Errorf("notify %s: %w", ev.InvoiceNumber, err)
	}

	subject, body := compose(ev.To, inv, settings)
	if err := n.Sender.Send(ctx, inv.Client.Email, subject, body); err != nil {
		return fmt.Errorf("notify %s: %w", ev.InvoiceNumber, err)
	}
	logger.Info("client notified", "invoice", ev.InvoiceNumber, "status", ev.To)
	return nil
}

func compose(s invoicing.Status, inv *model.Invoice, settings *model.Settings) (string, string) {
	company := settings.CompanyName
	if company == "" {
		company = "WALAKA"
	}
	amount := inv.Total.StringFixed(2) + " " + inv.Currency

	var subject string
	var b strings.Builder
	fmt.Fprintf(&b, "Caro(a) %s,\n\n", inv.Client.Name)
	switch s {
	case invoicing.StatusSent:
		subject = fmt.Sprintf("Factura %s de %s", inv.Number, company)
		fmt.Fprintf(&b, "segue a factura %s no valor de %s, com vencimento em %s.\n",
			inv.Number, amount, inv.DueDate.Format("02/01/2006"))
	case invoicing.StatusPaid:
		subject = fmt.Sprintf("Pagamento recebido: factura %s", inv.Number)
		fmt.Fprintf(&b, "confirmamos a recepção do pagamento de %s referente à factura %s.\n", amount, inv.Number)
		if inv.PaymentReference != "" {
			fmt.Fprintf(&b, "Referência: %s\n", inv.PaymentReference)
		}
	case invoicing.StatusCancelled:
		subject = fmt.Sprintf("Factura %s anulada", inv.Number)
		fmt.Fprintf(&b, "a factura %s no valor de %s foi anulada.\n", inv.Number, amount)
	}
	fmt.Fprintf(&b, "\nCom os melhores cumprimentos,\n%s\n", company)
	return subject, b.String()
}
