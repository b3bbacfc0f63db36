package store

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/wapair/session-backend/interfaces"
)

// RecordStoreFactory creates record stores from location URIs.
type RecordStoreFactory struct {
	log *slog.Logger
}

// NewRecordStoreFactory creates a new factory instance.
func NewRecordStoreFactory(logger *slog.Logger) *RecordStoreFactory {
	return &RecordStoreFactory{log: logger}
}

// StoreFor creates a record store from a location URI.
// The URI format should be [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - file:// - local filesystem directory
//   - bolt:// - embedded bbolt database file
//   - vault:// - HashiCorp Vault KV v2 secrets engine
//   - s3:// - Amazon S3 or compatible object storage
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (f *RecordStoreFactory) StoreFor(loc interfaces.StoreLocation) (interfaces.RecordStore, error) {
	switch strings.ToLower(loc.Scheme) {
	case "file":
		return f.createFileStore(loc)
	case "bolt":
		return f.createBoltStore(loc)
	case "vault":
		return f.createVaultStore(loc)
	case "s3":
		return f.createS3Store(loc)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidStoreURI, loc.Scheme)
	}
}

func (f *RecordStoreFactory) createFileStore(loc interfaces.StoreLocation) (interfaces.RecordStore, error) {
	// file://relative/path parses the first segment as host; rejoin it.
	dir := filepath.Join(loc.Host, loc.Path)
	if dir == "" {
		return nil, fmt.Errorf("%w: file URI has no path", interfaces.ErrInvalidStoreURI)
	}
	return NewFileStore(dir, f.log)
}

func (f *RecordStoreFactory) createBoltStore(loc interfaces.StoreLocation) (interfaces.RecordStore, error) {
	path := filepath.Join(loc.Host, loc.Path)
	if path == "" {
		return nil, fmt.Errorf("%w: bolt URI has no path", interfaces.ErrInvalidStoreURI)
	}
	return NewBoltStore(path, f.log)
}

func (f *RecordStoreFactory) createVaultStore(loc interfaces.StoreLocation) (interfaces.RecordStore, error) {
	if loc.Host == "" {
		return nil, fmt.Errorf("%w: vault URI has no host", interfaces.ErrInvalidStoreURI)
	}

	// Path is <mount>/<dataPath...>; default mount "secret".
	mountPath := "secret"
	dataPath := "sessions"
	if parts := strings.SplitN(strings.Trim(loc.Path, "/"), "/", 2); parts[0] != "" {
		mountPath = parts[0]
		if len(parts) > 1 {
			dataPath = parts[1]
		}
	}

	scheme := "https"
	if loc.GetParam("insecure") == "true" {
		scheme = "http"
	}
	address := fmt.Sprintf("%s://%s", scheme, loc.Host)

	return NewVaultStore(address, mountPath, dataPath, loc.Auth, f.log)
}

func (f *RecordStoreFactory) createS3Store(loc interfaces.StoreLocation) (interfaces.RecordStore, error) {
	if loc.Host == "" {
		return nil, fmt.Errorf("%w: s3 URI has no bucket", interfaces.ErrInvalidStoreURI)
	}

	region := loc.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if loc.Auth != "" {
		if creds := strings.SplitN(loc.Auth, ":", 2); len(creds) == 2 {
			accessKey = creds[0]
			secretKey = creds[1]
		}
	}

	return NewS3Store(
		loc.Host,
		strings.TrimPrefix(loc.Path, "/"),
		region,
		loc.GetParam("endpoint"),
		accessKey,
		secretKey,
		f.log,
	)
}
