package invoicing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultPrefix is used when no prefix is configured.
const DefaultPrefix = "INV"

// DefaultMaxAttempts bounds the collision loop and the create retries.
const DefaultMaxAttempts = 5

var trailingDigits = regexp.MustCompile(`-(\d+)$`)

// FormatNumber renders PREFIX-YEAR-SEQUENCE with a five digit, zero padded
// sequence. Sequences above 99999 simply get wider.
func FormatNumber(prefix string, year, seq int) string {
	return fmt.Sprintf("%s-%d-%05d", prefix, year, seq)
}

// NextSequence returns the sequence following last, or 1 when last carries
// no trailing digits.
func NextSequence(last string) int {
	m := trailingDigits.FindStringSubmatch(last)
	if m == nil {
		return 1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 1
	}
	return n + 1
}

// Allocator produces the next free invoice number of a tenant for the
// current calendar year. It does not write invoices; see AllocateAndCreate.
//
// Allocations within one Allocator are serialised. Across processes two
// allocators may hand out the same number; the store's unique index and the
// retry in AllocateAndCreate resolve that.
type Allocator struct {
	store       NumberStore
	identity    Identity
	prefix      string
	maxAttempts int
	now         func() time.Time
	logger      *slog.Logger

	// single slot semaphore, honours context cancellation unlike a mutex
	busy chan struct{}
}

// AllocatorOption configures an Allocator.
type AllocatorOption func(*Allocator)

// WithPrefix sets the number prefix, e.g. "INV" or "NC".
func WithPrefix(p string) AllocatorOption {
	return func(a *Allocator) {
		if p != "" {
			a.prefix = p
		}
	}
}

// WithMaxAttempts bounds the number of candidates tried per allocation.
func WithMaxAttempts(n int) AllocatorOption {
	return func(a *Allocator) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) AllocatorOption {
	return func(a *Allocator) { a.now = now }
}

// WithAllocatorLogger sets the logger.
func WithAllocatorLogger(l *slog.Logger) AllocatorOption {
	return func(a *Allocator) { a.logger = l }
}

// NewAllocator returns an Allocator reading from store on behalf of the
// session identified by id.
func NewAllocator(store NumberStore, id Identity, opts ...AllocatorOption) *Allocator {
	a := &Allocator{
		store:       store,
		identity:    id,
		prefix:      DefaultPrefix,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
		logger:      slog.Default(),
		busy:        make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Prefix returns the configured prefix.
func (a *Allocator) Prefix() string { return a.prefix }

// Allocate returns a number that did not exist at the time of the check.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	select {
	case a.busy <- struct{}{}:
	case <-ctx.Done():
		return "", &AllocationError{Reason: "waiting for running allocation", Err: ctx.Err()}
	}
	defer func() { <-a.busy }()

	env, err := currentEnvironment(ctx, a.identity)
	if err != nil {
		return "", &AllocationError{Reason: "tenant unavailable", Err: err}
	}

	year := a.now().Year()
	prefix := fmt.Sprintf("%s-%d-", a.prefix, year)

	last, err := a.store.LastInvoiceNumber(ctx, env, prefix)
	if err != nil {
		return "", &AllocationError{Reason: "read last invoice number", Err: err}
	}
	seq := NextSequence(last)

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		candidate := FormatNumber(a.prefix, year, seq)
		exists, err := a.store.InvoiceNumberExists(ctx, env, candidate)
		if err != nil {
			return "", &AllocationError{Reason: "check invoice number", Err: err}
		}
		if !exists {
			a.logger.Debug("invoice number allocated", "environment_id", env, "number", candidate, "attempt", attempt)
			return candidate, nil
		}
		a.logger.Warn("invoice number collision", "environment_id", env, "number", candidate, "attempt", attempt)
		seq++
	}
	return "", &AllocationError{
		Reason: fmt.Sprintf("no free number after %d attempts", a.maxAttempts),
		Err:    ErrUniquenessConflict,
	}
}

// AllocateAndCreate allocates a number and hands it to create. When create
// reports ErrUniquenessConflict (another process inserted the same number
// in between) a fresh number is allocated, up to the configured number of
// attempts. Any other error from create is returned unchanged.
func (a *Allocator) AllocateAndCreate(ctx context.Context, create func(ctx context.Context, number string) error) (string, error) {
	var number string
	op := func() error {
		n, err := a.Allocate(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := create(ctx, n); err != nil {
			if errors.Is(err, ErrUniquenessConflict) {
				a.logger.Warn("invoice number taken on insert, retrying", "number", n)
				return err
			}
			return backoff.Permanent(err)
		}
		number = n
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(a.maxAttempts-1)), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		var ae *AllocationError
		if !errors.As(err, &ae) && errors.Is(err, ErrUniquenessConflict) {
			return "", &AllocationError{Reason: "number taken on every insert attempt", Err: err}
		}
		return "", err
	}
	return number, nil
}
