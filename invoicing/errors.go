package invoicing

import (
	"errors"
	"fmt"
)

// Sentinel errors, use with errors.Is.
var (
	// ErrAllocation is returned when no invoice number could be produced.
	ErrAllocation = errors.New("invoice number allocation failed")

	// ErrUniquenessConflict signals that a number is already taken. Stores
	// return it when the (environment, number) unique index rejects an
	// insert; callers retry with a fresh number.
	ErrUniquenessConflict = errors.New("invoice number already in use")

	// ErrNotFound is returned when an invoice does not exist for the tenant.
	ErrNotFound = errors.New("invoice not found")

	// ErrInvalidTransition is returned when the transition table rejects a status change.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAuthentication is returned when no user is attached to the session.
	ErrAuthentication = errors.New("user not authenticated")

	// ErrPersistence wraps every failed store write.
	ErrPersistence = errors.New("persistence failed")

	// ErrStatusConflict is returned by a store when the conditional status
	// update matched no row because another writer changed the status first.
	ErrStatusConflict = errors.New("invoice status changed concurrently")

	// ErrNoEnvironment is returned when the session carries no tenant.
	ErrNoEnvironment = errors.New("no environment in session")

	// ErrNotInitialized is returned when a StatusManager is used before Initialize.
	ErrNotInitialized = errors.New("status manager not initialized")

	// ErrUnknownStatus is returned when parsing a status outside the enum.
	ErrUnknownStatus = errors.New("unknown invoice status")
)

// AllocationError describes why Allocate gave up.
type AllocationError struct {
	Reason string
	Err    error
}

func (e *AllocationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("allocate invoice number: %s", e.Reason)
	}
	return fmt.Sprintf("allocate invoice number: %s: %v", e.Reason, e.Err)
}

// Unwrap exposes both ErrAllocation and the underlying cause.
func (e *AllocationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAllocation}
	}
	return []error{ErrAllocation, e.Err}
}

// NotFoundError names the invoice that could not be loaded.
type NotFoundError struct {
	EnvironmentID string
	InvoiceNumber string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("invoice %s not found", e.InvoiceNumber)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidTransitionError carries the rejected edge.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %q -> %q", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// PersistenceError wraps a store failure with the operation that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// IsClientError reports whether err was caused by the caller's input or session.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrAuthentication) ||
		errors.Is(err, ErrUnknownStatus) ||
		errors.Is(err, ErrNoEnvironment)
}

// IsRetryable reports whether repeating the operation might succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUniquenessConflict) || errors.Is(err, ErrStatusConflict)
}
