package coordinator

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPersistQueue_AppliesInOrder(t *testing.T) {
	q := newPersistQueue(testLogger(), nil)

	var mu sync.Mutex
	var applied []int
	for i := 0; i < 50; i++ {
		i := i
		require.NoError(t, q.Submit("op", func(ctx context.Context) error {
			mu.Lock()
			applied = append(applied, i)
			mu.Unlock()
			return nil
		}))
	}
	q.Close()

	require.Len(t, applied, 50)
	for i, got := range applied {
		assert.Equal(t, i, got)
	}
}

func TestPersistQueue_CloseDrains(t *testing.T) {
	q := newPersistQueue(testLogger(), nil)

	done := false
	require.NoError(t, q.Submit("op", func(ctx context.Context) error {
		done = true
		return nil
	}))
	q.Close()

	// Close returns only after every queued op ran.
	assert.True(t, done)

	// Idempotent.
	q.Close()
}

func TestPersistQueue_RejectsAfterClose(t *testing.T) {
	q := newPersistQueue(testLogger(), nil)
	q.Close()

	err := q.Submit("op", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, errQueueClosed)
}

func TestPersistQueue_ReportsResults(t *testing.T) {
	var mu sync.Mutex
	results := make(map[string]error)
	q := newPersistQueue(testLogger(), func(kind string, err error) {
		mu.Lock()
		results[kind] = err
		mu.Unlock()
	})

	require.NoError(t, q.Submit("ok", func(ctx context.Context) error { return nil }))
	require.NoError(t, q.Submit("bad", func(ctx context.Context) error { return assert.AnError }))
	q.Close()

	assert.NoError(t, results["ok"])
	assert.ErrorIs(t, results["bad"], assert.AnError)
}
