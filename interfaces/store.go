package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

var (
	// ErrRecordNotFound is returned when a requested record does not exist
	// in the durable store.
	ErrRecordNotFound = errors.New("record not found")

	// ErrStoreUnavailable is returned when the durable store cannot be
	// reached at load, save, or merge time. This could be due to network
	// issues, authentication failures, or service outages.
	ErrStoreUnavailable = errors.New("durable store unavailable")

	// ErrInvalidStoreURI is returned when a store location URI is malformed
	// or uses an unsupported scheme.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidStoreURI = errors.New("invalid store location URI")
)

// StoreLocation represents a parsed durable-store URI.
type StoreLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname
	Path   string     // Resource path
	Query  url.Values // Query parameters
	Auth   string     // Authentication info
}

// NewStoreLocation creates a store location from a URI string with validation.
func NewStoreLocation(uri string) (StoreLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StoreLocation{}, fmt.Errorf("%w: %v", ErrInvalidStoreURI, err)
	}

	switch parsed.Scheme {
	case "file", "bolt", "vault", "s3":
		// Valid scheme
	default:
		return StoreLocation{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidStoreURI, parsed.Scheme)
	}

	var auth string
	if parsed.User != nil {
		auth = parsed.User.String()
	}

	return StoreLocation{
		Raw:    uri,
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		Auth:   auth,
	}, nil
}

// String returns the original URI string.
func (loc StoreLocation) String() string {
	return loc.Raw
}

// GetParam returns a query parameter value.
func (loc StoreLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// RecordStore provides keyed durable record persistence. Records are small
// mutable documents addressed by id; the backing service may be a local file
// tree, an embedded database, or a remote secret store.
type RecordStore interface {
	// Get retrieves a record by id. Returns ErrRecordNotFound if absent.
	Get(ctx context.Context, id string) ([]byte, error)

	// Put inserts or replaces a record. The write must be observable as a
	// single upsert; readers never see a partially written record.
	Put(ctx context.Context, id string, data []byte) error

	// Delete removes a record. Deleting an absent record is not an error.
	Delete(ctx context.Context, id string) error

	// Available checks if the store is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this store.
	LocationURI() string

	// Close releases the store connection. Safe to call more than once.
	Close() error
}

// RecordStoreFactory creates record stores from location URIs.
type RecordStoreFactory interface {
	// StoreFor creates a record store from a URI.
	// Supports file://, bolt://, vault://, s3://
	StoreFor(location StoreLocation) (RecordStore, error)
}

// CredentialStore persists the two logical records of a session: the
// credentials blob and the signal-protocol key material. Together the two
// records are sufficient to resume the session without re-pairing.
type CredentialStore interface {
	// Load fetches both records, substituting empty defaults when absent.
	Load(ctx context.Context) (Credentials, KeyStoreSnapshot, error)

	// SaveCredentials upserts the credentials record wholesale. Replays
	// with identical input are no-ops from the caller's perspective.
	SaveCredentials(ctx context.Context, creds Credentials) error

	// MergeKeys folds a delta into the persisted key material. Each touched
	// namespace is applied as a single record upsert so partial merges are
	// never observable.
	MergeKeys(ctx context.Context, delta KeyDelta) error

	// Close releases the underlying record store.
	Close() error
}
