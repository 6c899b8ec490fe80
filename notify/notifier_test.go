package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walaka/erp/invoicing"
	"github.com/walaka/erp/model"
)

type sentMail struct{ to, subject, body string }

type fakeSender struct {
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to, subject, body})
	return nil
}

type fakeLoader struct {
	inv *model.Invoice
	err error
}

func (f fakeLoader) LoadInvoice(_ context.Context, env, number string) (*model.Invoice, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.inv, nil
}

func (f fakeLoader) LoadSettings(_ context.Context, env string) (*model.Settings, error) {
	return &model.Settings{EnvironmentID: env, CompanyName: "Walaka Serviços"}, nil
}

func testInvoice() *model.Invoice {
	return &model.Invoice{
		Number:           "INV-2025-00007",
		Currency:         "MZN",
		Total:            decimal.RequireFromString("1160"),
		PaymentReference: "MP-991",
		Client:           model.Client{Name: "Machava Comércio", Email: "contas@machava.co.mz"},
	}
}

func TestNotifier_Paid(t *testing.T) {
	sender := &fakeSender{}
	n := &Notifier{Loader: fakeLoader{inv: testInvoice()}, Sender: sender}

	err := n.HandleStatusChanged(context.Background(), invoicing.StatusChanged{
		EnvironmentID: "env", InvoiceNumber: "INV-2025-00007", To: invoicing.StatusPaid,
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "contas@machava.co.mz", sender.sent[0].to)
	assert.Contains(t, sender.sent[0].subject, "INV-2025-00007")
	assert.Contains(t, sender.sent[0].body, "1160.00 MZN")
	assert.Contains(t, sender.sent[0].body, "MP-991")
	assert.Contains(t, sender.sent[0].body, "Walaka Serviços")
}

func TestNotifier_IgnoredStatuses(t *testing.T) {
	sender := &fakeSender{}
	n := &Notifier{Loader: fakeLoader{err: errors.New("must not load")}, Sender: sender}

	for _, s := range []invoicing.Status{invoicing.StatusPending, invoicing.StatusOverdue} {
		require.NoError(t, n.HandleStatusChanged(context.Background(), invoicing.StatusChanged{To: s}))
	}
	assert.Empty(t, sender.sent)
}

func TestNotifier_NoEmail(t *testing.T) {
	inv := testInvoice()
	inv.Client.Email = ""
	sender := &fakeSender{}
	n := &Notifier{Loader: fakeLoader{inv: inv}, Sender: sender}

	require.NoError(t, n.HandleStatusChanged(context.Background(), invoicing.StatusChanged{To: invoicing.StatusCancelled}))
	assert.Empty(t, sender.sent)
}

func TestNotifier_Errors(t *testing.T) {
	n := &Notifier{Loader: fakeLoader{err: invoicing.ErrNotFound}, Sender: &fakeSender{}}
	err := n.HandleStatusChanged(context.Background(), invoicing.StatusChanged{To: invoicing.StatusSent})
	assert.ErrorIs(t, err, invoicing.ErrNotFound)

	boom := errors.New("mailjet unavailable")
	n = &Notifier{Loader: fakeLoader{inv: testInvoice()}, Sender: &fakeSender{err: boom}}
	err = n.HandleStatusChanged(context.Background(), invoicing.StatusChanged{To: invoicing.StatusSent})
	assert.ErrorIs(t, err, boom)
}

func TestNewSender(t *testing.T) {
	assert.IsType(t, LogSender{}, NewSender("development", "key", "secret", "a@b.c", "A"))
	assert.IsType(t, &MailjetSender{}, NewSender("production", "key", "secret", "a@b.c", "A"))
	assert.IsType(t, LogSender{}, NewSender("production", "", "", "", ""))
}
