package invoicing

import (
	"fmt"

	"github.com/samber/lo"
)

// TransitionTable maps a source status to the statuses it may move to.
// A status without an entry has no outgoing transitions.
type TransitionTable map[Status][]Status

// DefaultTransitions returns the table the product has always shipped with.
// It is deliberately permissive: paid and cancelled invoices can be reopened,
// and "sent" is neither a source nor a target, so it is only reachable with a
// customised table.
func DefaultTransitions() TransitionTable {
	return TransitionTable{
		StatusPending:   {StatusPending, StatusPaid, StatusOverdue, StatusCancelled},
		StatusPaid:      {StatusPending, StatusPaid, StatusOverdue, StatusCancelled},
		StatusOverdue:   {StatusPending, StatusPaid, StatusOverdue, StatusCancelled},
		StatusCancelled: {StatusPending, StatusPaid, StatusOverdue},
	}
}

// ParseTransitionTable builds a table from its configuration form, e.g.
//
//	[Invoice.Transitions]
//	pending = ["sent", "paid", "cancelled"]
//
// An empty map yields DefaultTransitions.
func ParseTransitionTable(raw map[string][]string) (TransitionTable, error) {
	if len(raw) == 0 {
		return DefaultTransitions(), nil
	}
	table := make(TransitionTable, len(raw))
	for from, targets := range raw {
		src, err := ParseStatus(from)
		if err != nil {
			return nil, fmt.Errorf("transition table: %w", err)
		}
		dst := make([]Status, 0, len(targets))
		for _, t := range targets {
			s, err := ParseStatus(t)
			if err != nil {
				return nil, fmt.Errorf("transition table %s: %w", src, err)
			}
			dst = append(dst, s)
		}
		table[src] = lo.Uniq(dst)
	}
	return table, nil
}

// Allows reports whether from -> to is an edge of the table.
func (t TransitionTable) Allows(from, to Status) bool {
	return lo.Contains(t[from], to)
}

// Targets returns the allowed destinations of from in enum order.
func (t TransitionTable) Targets(from Status) []Status {
	out := lo.Filter(AllStatuses, func(s Status, _ int) bool {
		return t.Allows(from, s)
	})
	return out
}

// View computes the presentation state of an invoice in status s.
func (t TransitionTable) View(s Status) StatusView {
	style, ok := statusStyles[s]
	if !ok {
		style = statusStyle{label: string(s), icon: "fa-question-circle", color: "gray"}
	}
	return StatusView{
		Status:      s,
		Label:       style.label,
		Icon:        style.icon,
		Color:       style.color,
		CanEdit:     style.editable,
		CanDelete:   style.editable,
		CanMarkPaid: s != StatusPaid && t.Allows(s, StatusPaid),
		Next:        t.Targets(s),
	}
}
