package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wapair/session-backend/interfaces"
)

// countingSource is a KeySource that counts Load calls.
type countingSource struct {
	mu       sync.Mutex
	loads    int
	snapshot interfaces.KeyStoreSnapshot
}

func (s *countingSource) Load(ctx context.Context) (interfaces.Credentials, interfaces.KeyStoreSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	return interfaces.EmptyCredentials(), s.snapshot.Clone(), nil
}

func (s *countingSource) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func TestKeyCache_SeededHitsSkipSource(t *testing.T) {
	source := &countingSource{}
	cache := NewKeyCache(source, interfaces.KeyStoreSnapshot{
		interfaces.KeyTypePreKey: {"1": []byte("pk-1")},
	}, nil, testLogger())

	got, err := cache.GetKeys(context.Background(), interfaces.KeyTypePreKey, []string{"1"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"1": []byte("pk-1")}, got)
	assert.Equal(t, 0, source.loadCount())
}

func TestKeyCache_MissRefreshesOnce(t *testing.T) {
	source := &countingSource{snapshot: interfaces.KeyStoreSnapshot{
		interfaces.KeyTypeSession: {"peer": []byte("sess")},
	}}
	cache := NewKeyCache(source, nil, nil, testLogger())
	ctx := context.Background()

	got, err := cache.GetKeys(ctx, interfaces.KeyTypeSession, []string{"peer", "absent"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"peer": []byte("sess")}, got)
	assert.Equal(t, 1, source.loadCount())

	// Both the hit and the known-absent id are now cached; no further loads.
	got, err = cache.GetKeys(ctx, interfaces.KeyTypeSession, []string{"peer", "absent"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"peer": []byte("sess")}, got)
	assert.Equal(t, 1, source.loadCount())
}

func TestKeyCache_SetReadYourWrites(t *testing.T) {
	source := &countingSource{}
	cache := NewKeyCache(source, nil, nil, testLogger())
	ctx := context.Background()

	cache.Set(interfaces.KeyTypePreKey, "5", []byte("pk-5"))

	got, err := cache.GetKeys(ctx, interfaces.KeyTypePreKey, []string{"5"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"5": []byte("pk-5")}, got)
	assert.Equal(t, 0, source.loadCount())

	// nil blob deletes; the id becomes known-absent without a store hit.
	cache.Set(interfaces.KeyTypePreKey, "5", nil)
	got, err = cache.GetKeys(ctx, interfaces.KeyTypePreKey, []string{"5"})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, source.loadCount())
}

func TestKeyCache_DeleteNotResurrectedByRefresh(t *testing.T) {
	// The store still holds the entry: its delete is queued but not applied.
	source := &countingSource{snapshot: interfaces.KeyStoreSnapshot{
		interfaces.KeyTypePreKey:  {"1": []byte("pk-1")},
		interfaces.KeyTypeSession: {"peer": []byte("sess")},
	}}
	cache := NewKeyCache(source, interfaces.KeyStoreSnapshot{
		interfaces.KeyTypePreKey: {"1": []byte("pk-1")},
	}, nil, testLogger())
	ctx := context.Background()

	cache.Set(interfaces.KeyTypePreKey, "1", nil)

	// An unrelated miss pulls the full snapshot back in.
	got, err := cache.GetKeys(ctx, interfaces.KeyTypeSession, []string{"peer"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"peer": []byte("sess")}, got)
	require.Equal(t, 1, source.loadCount())

	// The local delete still wins over the stale store copy.
	got, err = cache.GetKeys(ctx, interfaces.KeyTypePreKey, []string{"1"})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, source.loadCount())
}

func TestKeyCache_SetBatchPersistsOnce(t *testing.T) {
	var persisted []interfaces.KeyDelta
	cache := NewKeyCache(&countingSource{}, nil, func(delta interfaces.KeyDelta) {
		persisted = append(persisted, delta)
	}, testLogger())

	delta := interfaces.KeyDelta{
		interfaces.KeyTypePreKey:  {"1": []byte("a"), "2": []byte("b")},
		interfaces.KeyTypeSession: {"peer": []byte("c")},
	}
	cache.SetBatch(delta)

	// One event batch, one persistence call.
	require.Len(t, persisted, 1)
	assert.Equal(t, delta, persisted[0])
}
