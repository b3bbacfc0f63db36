package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/wapair/session-backend/interfaces"
)

// KeySource is the read side of a credential store used by the cache.
type KeySource interface {
	Load(ctx context.Context) (interfaces.Credentials, interfaces.KeyStoreSnapshot, error)
}

// PersistFunc receives key deltas for durable persistence. The cache calls it
// after updating memory, so in-process readers see writes immediately while
// durability is handled on the caller's sequential write queue.
type PersistFunc func(delta interfaces.KeyDelta)

// KeyCache is a write-through cache over the credential store's key lookups.
// The protocol handshake performs many small latency-sensitive key reads;
// the cache keeps those in memory and leaves the durable store as the
// durability backstop.
type KeyCache struct {
	mu      sync.RWMutex
	entries map[interfaces.KeyType]map[string][]byte
	misses  map[interfaces.KeyType]map[string]bool

	source  KeySource
	persist PersistFunc
	log     *slog.Logger
}

// NewKeyCache creates a key cache seeded with an already-loaded snapshot.
// persist may be nil when durability is handled elsewhere (tests).
func NewKeyCache(source KeySource, seed interfaces.KeyStoreSnapshot, persist PersistFunc, log *slog.Logger) *KeyCache {
	entries := make(map[interfaces.KeyType]map[string][]byte)
	for t, bucket := range seed.Clone() {
		entries[t] = bucket
	}
	return &KeyCache{
		entries: entries,
		misses:  make(map[interfaces.KeyType]map[string]bool),
		source:  source,
		persist: persist,
		log:     log,
	}
}

// GetKeys returns the requested key blobs. Cached entries are served
// directly; on any miss the full snapshot is refreshed from the source once
// and the union returned. Store failures surface unchanged.
func (c *KeyCache) GetKeys(ctx context.Context, keyType interfaces.KeyType, ids []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(ids))

	c.mu.RLock()
	missing := c.collectLocked(keyType, ids, out)
	c.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}

	// Misses go to the durable store; refresh the whole namespace so repeated
	// lookups of absent ids don't re-fetch.
	_, snapshot, err := c.source.Load(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for t, bucket := range snapshot {
		if c.entries[t] == nil {
			c.entries[t] = make(map[string][]byte, len(bucket))
		}
		for id, blob := range bucket {
			if _, ok := c.entries[t][id]; ok {
				continue
			}
			// An id in misses was deleted here and the delete may still be
			// queued; the stale store copy must not resurrect it.
			if c.misses[t][id] {
				continue
			}
			c.entries[t][id] = blob
		}
	}
	for _, id := range missing {
		if _, ok := c.entries[keyType][id]; !ok {
			if c.misses[keyType] == nil {
				c.misses[keyType] = make(map[string]bool)
			}
			c.misses[keyType][id] = true
		}
	}
	c.collectLocked(keyType, ids, out)
	c.mu.Unlock()

	return out, nil
}

// Set updates a single cache entry (nil blob deletes) and enqueues the same
// delta for persistence. Reads from this process observe the write
// immediately.
func (c *KeyCache) Set(keyType interfaces.KeyType, id string, blob []byte) {
	c.SetBatch(interfaces.KeyDelta{keyType: {id: blob}})
}

// SetBatch applies a delta to the cache and enqueues it for persistence as a
// single merge, preserving the batching the protocol client chose.
func (c *KeyCache) SetBatch(delta interfaces.KeyDelta) {
	c.mu.Lock()
	for keyType, entries := range delta {
		for id, blob := range entries {
			if blob == nil {
				delete(c.entries[keyType], id)
				if c.misses[keyType] == nil {
					c.misses[keyType] = make(map[string]bool)
				}
				c.misses[keyType][id] = true
				continue
			}
			if c.entries[keyType] == nil {
				c.entries[keyType] = make(map[string][]byte)
			}
			c.entries[keyType][id] = blob
			delete(c.misses[keyType], id)
		}
	}
	c.mu.Unlock()

	if c.persist != nil {
		c.persist(delta)
	}
}

// collectLocked copies cached hits for ids into out and returns the ids that
// are neither cached nor known-absent. Callers hold at least a read lock.
func (c *KeyCache) collectLocked(keyType interfaces.KeyType, ids []string, out map[string][]byte) []string {
	var missing []string
	for _, id := range ids {
		if blob, ok := c.entries[keyType][id]; ok {
			out[id] = blob
			continue
		}
		if c.misses[keyType][id] {
			continue
		}
		missing = append(missing, id)
	}
	return missing
}
