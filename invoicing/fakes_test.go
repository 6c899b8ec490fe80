package invoicing

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// memStore is an in-memory NumberStore, StatusStore and DueInvoiceFinder.
type memStore struct {
	mu       sync.Mutex
	numbers  map[string][]string // environment -> numbers
	statuses map[string]Status   // environment/number -> status
	due      map[string]time.Time
	changes  []StatusChange

	// test hooks
	lastErr    error
	existsErr  error
	applyErr   error
	forceExist map[string]bool
	existCalls int
	applyCalls int
}

func newMemStore() *memStore {
	return &memStore{
		numbers:    map[string][]string{},
		statuses:   map[string]Status{},
		due:        map[string]time.Time{},
		forceExist: map[string]bool{},
	}
}

func key(env, number string) string { return env + "/" + number }

func (s *memStore) addInvoice(env, number string, st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.numbers[env] = append(s.numbers[env], number)
	s.statuses[key(env, number)] = st
}

func (s *memStore) LastInvoiceNumber(_ context.Context, env, prefix string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastErr != nil {
		return "", s.lastErr
	}
	var matching []string
	for _, n := range s.numbers[env] {
		if strings.HasPrefix(n, prefix) {
			matching = append(matching, n)
		}
	}
	if len(matching) == 0 {
		return "", nil
	}
	sort.Slice(matching, func(i, j int) bool {
		if len(matching[i]) != len(matching[j]) {
			return len(matching[i]) < len(matching[j])
		}
		return matching[i] < matching[j]
	})
	return matching[len(matching)-1], nil
}

func (s *memStore) InvoiceNumberExists(_ context.Context, env, number string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.existCalls++
	if s.existsErr != nil {
		return false, s.existsErr
	}
	if s.forceExist[number] {
		return true, nil
	}
	_, ok := s.statuses[key(env, number)]
	return ok, nil
}

func (s *memStore) LoadInvoiceStatus(_ context.Context, env, number string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[key(env, number)]
	if !ok {
		return "", ErrNotFound
	}
	return st, nil
}

func (s *memStore) ApplyStatusChange(_ context.Context, c StatusChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyCalls++
	if s.applyErr != nil {
		return s.applyErr
	}
	k := key(c.EnvironmentID, c.InvoiceNumber)
	if s.statuses[k] != c.From {
		return ErrStatusConflict
	}
	s.statuses[k] = c.To
	s.changes = append(s.changes, c)
	return nil
}

func (s *memStore) DueInvoices(_ context.Context, before time.Time, statuses []Status) ([]InvoiceRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []InvoiceRef
	for k, due := range s.due {
		if !due.Before(before) {
			continue
		}
		for _, st := range statuses {
			if s.statuses[k] == st {
				env, number, _ := strings.Cut(k, "/")
				out = append(out, InvoiceRef{EnvironmentID: env, Number: number})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []StatusChanged
}

func (p *recordingPublisher) PublishStatusChanged(_ context.Context, ev StatusChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

const testEnv = "6f1c2a4e-2b1d-4c55-9a7e-0d3f1b2c9e10"

func userCtx() context.Context {
	return WithActor(context.Background(), Actor{UserID: "user-1", Email: "ana@example.co.mz", EnvironmentID: testEnv})
}

func fixedClock(y int, m time.Month, d int) func() time.Time {
	return func() time.Time { return time.Date(y, m, d, 10, 0, 0, 0, time.UTC) }
}
