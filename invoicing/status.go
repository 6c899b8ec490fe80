package invoicing

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusPaid      Status = "paid"
	StatusOverdue   Status = "overdue"
	StatusCancelled Status = "cancelled"
)

// AllStatuses lists the enum in display order.
var AllStatuses = []Status{StatusPending, StatusSent, StatusPaid, StatusOverdue, StatusCancelled}

// Valid reports whether s is one of the five known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// ParseStatus accepts the lowercase wire value, ignoring surrounding blanks and case.
func ParseStatus(in string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(in)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, in)
	}
	return s, nil
}

// TimelineTitle is the title written to the invoice timeline when an invoice
// enters s.
func TimelineTitle(s Status) string {
	switch s {
	case StatusPending:
		return "Invoice Pending"
	case StatusSent:
		return "Invoice Sent to Client"
	case StatusPaid:
		return "Payment Received"
	case StatusOverdue:
		return "Invoice Overdue"
	case StatusCancelled:
		return "Invoice Cancelled"
	default:
		return "Status Updated"
	}
}

// TitleInvoiceCreated is the first timeline entry of every invoice.
const TitleInvoiceCreated = "Invoice Created"

// StatusView is the derived presentation state of an invoice. It replaces the
// direct UI mutations of the old front end: subscribers render from it.
type StatusView struct {
	Status      Status   `json:"status" xml:"status"`
	Label       string   `json:"label" xml:"label"`
	Icon        string   `json:"icon" xml:"icon"`
	Color       string   `json:"color" xml:"color"`
	CanEdit     bool     `json:"can_edit" xml:"can_edit"`
	CanDelete   bool     `json:"can_delete" xml:"can_delete"`
	CanMarkPaid bool     `json:"can_mark_paid" xml:"can_mark_paid"`
	Next        []Status `json:"next" xml:"next>status"`
}

type statusStyle struct {
	label, icon, color string
	editable           bool
}

var statusStyles = map[Status]statusStyle{
	StatusPending:   {"Pending", "fa-clock", "blue", true},
	StatusSent:      {"Sent", "fa-paper-plane", "orange", false},
	StatusPaid:      {"Paid", "fa-check-circle", "green", false},
	StatusOverdue:   {"Overdue", "fa-exclamation-circle", "red", false},
	StatusCancelled: {"Cancelled", "fa-ban", "gray", false},
}
