package invoicing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultPaymentMethod is recorded when a payment is registered without a method.
const DefaultPaymentMethod = "manual"

// PaymentMetadata is the optional input of a transition to paid.
type PaymentMetadata struct {
	PaymentMethod    string
	PaymentReference string
}

// BuildStatusChange assembles the write for moving an invoice from one
// status to another. Moving to paid stamps the payment date, method and
// reference, moving to sent stamps the sent date. Every change carries
// exactly one timeline entry.
func BuildStatusChange(env, number string, from, to Status, meta PaymentMetadata, actor Actor, now time.Time) StatusChange {
	change := StatusChange{
		EnvironmentID: env,
		InvoiceNumber: number,
		From:          from,
		To:            to,
		Event: TimelineEntry{
			InvoiceNumber: number,
			Title:         TimelineTitle(to),
			Active:        true,
			Date:          now,
			Status:        to,
			ActorID:       actor.UserID,
			Metadata: map[string]string{
				"user_id": actor.UserID,
				"date":    now.UTC().Format(time.RFC3339),
				"from":    string(from),
			},
		},
	}
	switch to {
	case StatusPaid:
		method := meta.PaymentMethod
		if method == "" {
			method = DefaultPaymentMethod
		}
		change.PaymentDate = &now
		change.PaymentMethod = method
		change.PaymentReference = meta.PaymentReference
		change.PaidBy = actor.UserID
		change.Event.Metadata["payment_method"] = method
		if meta.PaymentReference != "" {
			change.Event.Metadata["payment_reference"] = meta.PaymentReference
		}
	case StatusSent:
		change.SentDate = &now
	}
	return change
}

// StatusManager drives the status of a single invoice. It is not safe for
// concurrent use; create one per invoice and request.
type StatusManager struct {
	store     StatusStore
	identity  Identity
	publisher Publisher
	table     TransitionTable
	now       func() time.Time
	logger    *slog.Logger

	environmentID string
	invoiceNumber string
	current       Status
	initialized   bool
}

// StatusManagerOption configures a StatusManager.
type StatusManagerOption func(*StatusManager)

// WithTransitions replaces DefaultTransitions.
func WithTransitions(t TransitionTable) StatusManagerOption {
	return func(m *StatusManager) {
		if t != nil {
			m.table = t
		}
	}
}

// WithStatusClock replaces time.Now.
func WithStatusClock(now func() time.Time) StatusManagerOption {
	return func(m *StatusManager) { m.now = now }
}

// WithStatusLogger sets the logger.
func WithStatusLogger(l *slog.Logger) StatusManagerOption {
	return func(m *StatusManager) { m.logger = l }
}

// NewStatusManager wires a manager. publisher may be nil.
func NewStatusManager(store StatusStore, id Identity, publisher Publisher, opts ...StatusManagerOption) *StatusManager {
	m := &StatusManager{
		store:     store,
		identity:  id,
		publisher: publisher,
		table:     DefaultTransitions(),
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Initialize loads the current status of the invoice.
func (m *StatusManager) Initialize(ctx context.Context, invoiceNumber string) error {
	env, err := currentEnvironment(ctx, m.identity)
	if err != nil {
		return err
	}
	status, err := m.store.LoadInvoiceStatus(ctx, env, invoiceNumber)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &NotFoundError{EnvironmentID: env, InvoiceNumber: invoiceNumber}
		}
		return &PersistenceError{Op: "load invoice status", Err: err}
	}
	m.environmentID = env
	m.invoiceNumber = invoiceNumber
	m.current = status
	m.initialized = true
	return nil
}

// Current returns the last known status.
func (m *StatusManager) Current() Status { return m.current }

// View returns the presentation state of the current status.
func (m *StatusManager) View() StatusView { return m.table.View(m.current) }

// CanTransitionTo reports whether the table allows moving to s.
func (m *StatusManager) CanTransitionTo(s Status) bool {
	return m.table.Allows(m.current, s)
}

// UpdateStatus validates and persists a move to s. The status and its
// timeline entry are written atomically; on success the in-memory status
// follows and a StatusChanged event is published.
func (m *StatusManager) UpdateStatus(ctx context.Context, s Status, meta PaymentMetadata) error {
	if !m.initialized {
		return ErrNotInitialized
	}
	if !m.CanTransitionTo(s) {
		return &InvalidTransitionError{From: m.current, To: s}
	}
	actor, err := m.identity.CurrentUser(ctx)
	if err != nil {
		if errors.Is(err, ErrAuthentication) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	if actor.UserID == "" {
		return ErrAuthentication
	}

	now := m.now()
	change := BuildStatusChange(m.environmentID, m.invoiceNumber, m.current, s, meta, actor, now)
	if err := m.store.ApplyStatusChange(ctx, change); err != nil {
		m.logger.Error("status change failed",
			"environment_id", m.environmentID, "invoice", m.invoiceNumber,
			"from", m.current, "to", s, "error", err)
		return &PersistenceError{Op: "update invoice status", Err: err}
	}

	from := m.current
	m.current = s
	m.logger.Info("invoice status changed",
		"environment_id", m.environmentID, "invoice", m.invoiceNumber,
		"from", from, "to", s, "user_id", actor.UserID)

	if m.publisher != nil {
		ev := StatusChanged{
			EnvironmentID: m.environmentID,
			InvoiceNumber: m.invoiceNumber,
			From:          from,
			To:            s,
			ActorID:       actor.UserID,
			At:            now,
			View:          m.table.View(s),
		}
		if err := m.publisher.PublishStatusChanged(ctx, ev); err != nil {
			m.logger.Warn("publish status change", "invoice", m.invoiceNumber, "error", err)
		}
	}
	return nil
}
