/*
Package invoicing holds the invoice lifecycle rules of the ERP.

TWO COMPONENTS:

	Allocator      hands out per-tenant invoice numbers PREFIX-YEAR-SEQUENCE
	               (INV-2025-00001) derived from the greatest existing number.
	StatusManager  moves one invoice through pending, sent, paid, overdue and
	               cancelled according to a TransitionTable.

Both talk to storage through the small interfaces in store.go and learn the
acting user and tenant through Identity, usually ContextIdentity reading the
Actor the HTTP layer put into the request context. Nothing in this package
knows about SQL, HTTP or templates.

NUMBER UNIQUENESS:

The allocator checks candidates before returning them and serialises calls on
the same instance. That is not enough across processes, so stores keep a
unique index on (environment, number) and report violations as
ErrUniquenessConflict; AllocateAndCreate then allocates again.

STATUS CHANGES:

UpdateStatus validates the edge, requires an authenticated user, builds the
payload (payment data for paid) and asks the store for one atomic write that
is conditional on the status still being the one that was loaded. The write
includes the timeline entry. Successful changes are published as
StatusChanged events carrying the recomputed StatusView.
*/
package invoicing
