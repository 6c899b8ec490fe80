package invoicing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsOverdue(t *testing.T) {
	due := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	assert.False(t, IsOverdue(due, time.Date(2025, 3, 30, 23, 0, 0, 0, time.UTC)))
	assert.False(t, IsOverdue(due, time.Date(2025, 3, 31, 18, 0, 0, 0, time.UTC)))
	assert.True(t, IsOverdue(due, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)))
}

func TestOverdueSweeper(t *testing.T) {
	store := newMemStore()
	store.addInvoice(testEnv, "INV-2025-00001", StatusPending)
	store.addInvoice(testEnv, "INV-2025-00002", StatusPending)
	store.addInvoice(testEnv, "INV-2025-00003", StatusPaid)
	store.addInvoice("env-b", "INV-2025-00001", StatusPending)

	store.due[key(testEnv, "INV-2025-00001")] = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	store.due[key(testEnv, "INV-2025-00002")] = time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC) // today
	store.due[key(testEnv, "INV-2025-00003")] = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	store.due[key("env-b", "INV-2025-00001")] = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	pub := &recordingPublisher{}
	sw := &OverdueSweeper{
		Finder:    store,
		Store:     store,
		Publisher: pub,
		Now:       fixedClock(2025, time.May, 20),
	}
	res, err := sw.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Checked)
	assert.Equal(t, 2, res.Marked)

	s, _ := store.LoadInvoiceStatus(context.Background(), testEnv, "INV-2025-00001")
	assert.Equal(t, StatusOverdue, s)
	s, _ = store.LoadInvoiceStatus(context.Background(), testEnv, "INV-2025-00002")
	assert.Equal(t, StatusPending, s)
	s, _ = store.LoadInvoiceStatus(context.Background(), "env-b", "INV-2025-00001")
	assert.Equal(t, StatusOverdue, s)

	require.Len(t, store.changes, 2)
	for _, c := range store.changes {
		assert.Equal(t, "system", c.Event.ActorID)
		assert.Equal(t, "Invoice Overdue", c.Event.Title)
	}
	assert.Len(t, pub.events, 2)
}

func TestOverdueSweeper_TableWithoutOverdue(t *testing.T) {
	store := newMemStore()
	store.addInvoice(testEnv, "INV-2025-00001", StatusPending)
	store.due[key(testEnv, "INV-2025-00001")] = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	sw := &OverdueSweeper{
		Finder: store,
		Store:  store,
		Table:  TransitionTable{StatusPending: {StatusPaid}},
	}
	res, err := sw.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Checked)
	assert.Empty(t, store.changes)
}
