package invoicing

import (
	"context"
	"time"
)

// NumberStore is the read side used by the Allocator. Implementations must
// include soft-deleted invoices: a number once used stays reserved.
type NumberStore interface {
	// LastInvoiceNumber returns the greatest number starting with prefix for
	// the environment, or "" when there is none.
	LastInvoiceNumber(ctx context.Context, environmentID, prefix string) (string, error)
	InvoiceNumberExists(ctx context.Context, environmentID, number string) (bool, error)
}

// StatusStore persists status changes.
type StatusStore interface {
	// LoadInvoiceStatus returns ErrNotFound (possibly wrapped) for unknown invoices.
	LoadInvoiceStatus(ctx context.Context, environmentID, number string) (Status, error)
	// ApplyStatusChange must update the invoice only while its status still
	// equals change.From and must insert change.Event in the same
	// transaction. A lost race is reported as ErrStatusConflict.
	ApplyStatusChange(ctx context.Context, change StatusChange) error
}

// Publisher receives domain events after a successful write.
type Publisher interface {
	PublishStatusChanged(ctx context.Context, ev StatusChanged) error
}

// TimelineEntry is one append-only row of an invoice history.
type TimelineEntry struct {
	InvoiceNumber string
	Title         string
	Active        bool
	Date          time.Time
	Status        Status
	ActorID       string
	Metadata      map[string]string
}

// StatusChange is the full payload of one status update.
type StatusChange struct {
	EnvironmentID string
	InvoiceNumber string
	From          Status
	To            Status

	SentDate         *time.Time
	PaymentDate      *time.Time
	PaymentMethod    string
	PaymentReference string
	PaidBy           string

	Event TimelineEntry
}

// Fields returns the column updates of the change, keyed by column name.
func (c StatusChange) Fields() map[string]any {
	f := map[string]any{"status": c.To}
	if c.SentDate != nil {
		f["sent_date"] = *c.SentDate
	}
	if c.PaymentDate != nil {
		f["payment_date"] = *c.PaymentDate
		f["payment_method"] = c.PaymentMethod
		f["payment_reference"] = c.PaymentReference
		f["paid_by"] = c.PaidBy
	}
	return f
}

// StatusChanged is published after a status change was committed.
type StatusChanged struct {
	EnvironmentID string     `json:"environment_id"`
	InvoiceNumber string     `json:"invoice_number"`
	From          Status     `json:"from"`
	To            Status     `json:"to"`
	ActorID       string     `json:"actor_id"`
	At            time.Time  `json:"at"`
	View          StatusView `json:"view"`
}
