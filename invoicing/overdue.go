package invoicing

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// InvoiceRef identifies an invoice across tenants.
type InvoiceRef struct {
	EnvironmentID string
	Number        string
}

// DueInvoiceFinder lists invoices in one of the given statuses whose due
// date lies before the cutoff.
type DueInvoiceFinder interface {
	DueInvoices(ctx context.Context, before time.Time, statuses []Status) ([]InvoiceRef, error)
}

// IsOverdue reports whether an invoice due at due is past due at now. The
// due day itself is not overdue.
func IsOverdue(due, now time.Time) bool {
	y, m, d := due.Date()
	endOfDueDay := time.Date(y, m, d, 0, 0, 0, 0, due.Location()).AddDate(0, 0, 1)
	return !now.Before(endOfDueDay)
}

// OverdueSweeper moves every open invoice past its due date to overdue. Each
// move goes through a StatusManager acting as the system user, so the
// transition table, the conditional update and the timeline apply as for
// interactive changes.
type OverdueSweeper struct {
	Finder    DueInvoiceFinder
	Store     StatusStore
	Publisher Publisher
	Table     TransitionTable
	Now       func() time.Time
	Logger    *slog.Logger
}

// SweepResult counts what a sweep did.
type SweepResult struct {
	Checked int
	Marked  int
	Skipped int
	Failed  int
}

// Run performs one sweep. Individual failures are logged and counted; only a
// failure to list candidates aborts the sweep.
func (s *OverdueSweeper) Run(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	table := s.Table
	if table == nil {
		table = DefaultTransitions()
	}

	// only statuses that may actually become overdue under the table
	candidates := []Status{}
	for _, st := range []Status{StatusPending, StatusSent} {
		if table.Allows(st, StatusOverdue) {
			candidates = append(candidates, st)
		}
	}
	if len(candidates) == 0 {
		return res, nil
	}

	y, m, d := now().Date()
	startOfToday := time.Date(y, m, d, 0, 0, 0, 0, now().Location())
	refs, err := s.Finder.DueInvoices(ctx, startOfToday, candidates)
	if err != nil {
		return res, &PersistenceError{Op: "list due invoices", Err: err}
	}

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Checked++
		actx := WithActor(ctx, SystemActor(ref.EnvironmentID))
		mgr := NewStatusManager(s.Store, ContextIdentity{}, s.Publisher,
			WithTransitions(table), WithStatusClock(now), WithStatusLogger(logger))
		if err := mgr.Initialize(actx, ref.Number); err != nil {
			res.Failed++
			logger.Warn("overdue sweep: load invoice", "environment_id", ref.EnvironmentID, "invoice", ref.Number, "error", err)
			continue
		}
		if !mgr.CanTransitionTo(StatusOverdue) || mgr.Current() == StatusOverdue {
			res.Skipped++
			continue
		}
		if err := mgr.UpdateStatus(actx, StatusOverdue, PaymentMetadata{}); err != nil {
			if errors.Is(err, ErrStatusConflict) {
				res.Skipped++
				continue
			}
			res.Failed++
			logger.Warn("overdue sweep: update", "environment_id", ref.EnvironmentID, "invoice", ref.Number, "error", err)
			continue
		}
		res.Marked++
	}
	logger.Info("overdue sweep done", "checked", res.Checked, "marked", res.Marked, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}
