package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fxamacker/cbor/v2"

	"github.com/wapair/session-backend/interfaces"
)

// Record ids within the durable store. Credentials live in a single record
// overwritten wholesale; key material is split into one record per namespace
// so a key rotation never rewrites the credentials blob.
const (
	credsRecordID   = "creds"
	keyRecordPrefix = "keys/"
)

// CredentialStore persists session credentials and signal-protocol key
// material through a RecordStore. Key buckets are CBOR-encoded: key blobs are
// raw bytes and CBOR carries them without base64 inflation.
type CredentialStore struct {
	records interfaces.RecordStore
	log     *slog.Logger
}

// NewCredentialStore wraps a record store with the session record layout.
func NewCredentialStore(records interfaces.RecordStore, log *slog.Logger) *CredentialStore {
	return &CredentialStore{
		records: records,
		log:     log,
	}
}

// Load fetches the credentials record and every key namespace record.
// Absent records yield empty defaults so a first run starts from a clean
// slate; transport failures surface as ErrStoreUnavailable.
func (s *CredentialStore) Load(ctx context.Context) (interfaces.Credentials, interfaces.KeyStoreSnapshot, error) {
	creds := interfaces.EmptyCredentials()

	raw, err := s.records.Get(ctx, credsRecordID)
	switch {
	case err == nil:
		creds = interfaces.Credentials(raw)
	case errors.Is(err, interfaces.ErrRecordNotFound):
		// First run.
	default:
		return nil, nil, err
	}

	keys := make(interfaces.KeyStoreSnapshot)
	for _, keyType := range interfaces.KnownKeyTypes {
		bucket, err := s.loadBucket(ctx, keyType)
		if err != nil {
			return nil, nil, err
		}
		if len(bucket) > 0 {
			keys[keyType] = bucket
		}
	}

	s.log.Debug("Loaded session state",
		slog.Bool("registered", !creds.IsEmpty()),
		slog.Int("keyNamespaces", len(keys)))

	return creds, keys, nil
}

// SaveCredentials overwrites the credentials record wholesale.
func (s *CredentialStore) SaveCredentials(ctx context.Context, creds interfaces.Credentials) error {
	if err := s.records.Put(ctx, credsRecordID, []byte(creds)); err != nil {
		return err
	}
	s.log.Debug("Persisted credentials", slog.Int("size", len(creds)))
	return nil
}

// MergeKeys folds a delta into the persisted key material. For each touched
// namespace the bucket is read, mutated in memory, and written back with a
// single Put, so partial merges are never observable. A nil blob removes the
// entry.
func (s *CredentialStore) MergeKeys(ctx context.Context, delta interfaces.KeyDelta) error {
	for keyType, entries := range delta {
		if len(entries) == 0 {
			continue
		}
		if !keyType.Valid() {
			return fmt.Errorf("unknown key namespace: %q", keyType)
		}

		bucket, err := s.loadBucket(ctx, keyType)
		if err != nil {
			return err
		}

		for id, blob := range entries {
			if blob == nil {
				delete(bucket, id)
			} else {
				bucket[id] = blob
			}
		}

		if err := s.storeBucket(ctx, keyType, bucket); err != nil {
			return err
		}

		s.log.Debug("Merged key delta",
			slog.String("type", string(keyType)),
			slog.Int("deltaEntries", len(entries)),
			slog.Int("bucketSize", len(bucket)))
	}
	return nil
}

// Close releases the underlying record store.
func (s *CredentialStore) Close() error {
	return s.records.Close()
}

func (s *CredentialStore) loadBucket(ctx context.Context, keyType interfaces.KeyType) (map[string][]byte, error) {
	raw, err := s.records.Get(ctx, keyRecordPrefix+string(keyType))
	if errors.Is(err, interfaces.ErrRecordNotFound) {
		return make(map[string][]byte), nil
	}
	if err != nil {
		return nil, err
	}

	var bucket map[string][]byte
	if err := cbor.Unmarshal(raw, &bucket); err != nil {
		return nil, fmt.Errorf("corrupt key record %q: %w", keyType, err)
	}
	if bucket == nil {
		bucket = make(map[string][]byte)
	}
	return bucket, nil
}

func (s *CredentialStore) storeBucket(ctx context.Context, keyType interfaces.KeyType, bucket map[string][]byte) error {
	if len(bucket) == 0 {
		return s.records.Delete(ctx, keyRecordPrefix+string(keyType))
	}

	raw, err := cbor.Marshal(bucket)
	if err != nil {
		return fmt.Errorf("encode key record %q: %w", keyType, err)
	}
	return s.records.Put(ctx, keyRecordPrefix+string(keyType), raw)
}
