// Package notify emails clients about changes of their invoices.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mailjet/mailjet-apiv3-go"
)

// Sender delivers one plain text email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// MailjetSender sends through the Mailjet v3.1 API.
type MailjetSender struct {
	client   *mailjet.Client
	from     string
	fromName string
}

func NewMailjetSender(apiKey, secret, from, fromName string) *MailjetSender {
	return &MailjetSender{
		client:   mailjet.NewMailjetClient(apiKey, secret),
		from:     from,
		fromName: fromName,
	}
}

func (m *MailjetSender) Send(ctx context.Context, to, subject, body string) error {
	messagesInfo := []mailjet.InfoMessagesV31{
		{
			From: &mailjet.RecipientV31{
				Email: m.from,
				Name:  m.fromName,
			},
			To: &mailjet.RecipientsV31{
				mailjet.RecipientV31{
					Email: to,
				},
			},
			Subject:  subject,
			TextPart: body,
		},
	}
	messages := mailjet.MessagesV31{Info: messagesInfo}
	if _, err := m.client.SendMailV31(&messages); err != nil {
		return fmt.Errorf("mailjet: %w", err)
	}
	return nil
}

// LogSender only logs; used outside production.
type LogSender struct {
	Logger *slog.Logger
}

func (l LogSender) Send(_ context.Context, to, subject, body string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("sending email", "to", to, "subject", subject, "body", body)
	return nil
}

// NewSender returns a Mailjet sender in production and a LogSender otherwise.
func NewSender(mode, apiKey, secret, from, fromName string) Sender {
	if mode == "production" && apiKey != "" {
		return NewMailjetSender(apiKey, secret, from, fromName)
	}
	return LogSender{}
}
