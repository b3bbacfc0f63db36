package store

import (
	"context"
	"fmt"
	"log/slog"

	bolt "go.etcd.io/bbolt"

	"github.com/wapair/session-backend/interfaces"
)

const recordsBucket = "records"

// BoltStore implements a record store on an embedded bbolt database. It is
// the default for single-host deployments that want durability without an
// external service.
type BoltStore struct {
	db          *bolt.DB
	log         *slog.Logger
	locationURI string
}

// NewBoltStore opens (creating if necessary) the bbolt database at path.
func NewBoltStore(path string, log *slog.Logger) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(recordsBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}

	return &BoltStore{
		db:          db,
		log:         log,
		locationURI: fmt.Sprintf("bolt://%s", path),
	}, nil
}

func (s *BoltStore) Get(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(recordsBucket)).Get([]byte(id))
		if raw == nil {
			return interfaces.ErrRecordNotFound
		}
		// The slice is only valid inside the transaction.
		data = make([]byte, len(raw))
		copy(data, raw)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *BoltStore) Put(ctx context.Context, id string, data []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(recordsBucket)).Put([]byte(id), data)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *BoltStore) Delete(ctx context.Context, id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(recordsBucket)).Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *BoltStore) Available(ctx context.Context) bool {
	return s.db != nil
}

func (s *BoltStore) Name() string {
	return "bolt"
}

func (s *BoltStore) LocationURI() string {
	return s.locationURI
}

// Close closes the database file.
func (s *BoltStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
