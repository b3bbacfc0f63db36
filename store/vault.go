package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"

	"github.com/wapair/session-backend/interfaces"
)

// VaultStore implements a record store using HashiCorp Vault's KV v2 secrets
// engine. Session key material is exactly the kind of secret Vault is built
// to hold; the record blob is stored base64-encoded under a single field.
type VaultStore struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultStore creates a Vault-backed record store.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: path within the mount (e.g. "sessions")
//   - token: Vault token; falls back to the VAULT_TOKEN environment variable
//   - log: structured logger for operational insights
func NewVaultStore(address, mountPath, dataPath, token string, log *slog.Logger) (*VaultStore, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.Timeout = 30 * time.Second

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if token == "" {
		token = os.Getenv("VAULT_TOKEN")
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.TrimSuffix(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultStore{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", address, mountPath, dataPath),
	}, nil
}

func (s *VaultStore) Get(ctx context.Context, id string) ([]byte, error) {
	path := s.recordPath(id)

	secret, err := s.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		s.log.Error("Failed to read from Vault",
			slog.String("path", path), "err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}

	if secret == nil || secret.Data == nil {
		return nil, interfaces.ErrRecordNotFound
	}

	// KV v2 nests the payload under "data".
	inner, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, interfaces.ErrRecordNotFound
	}
	encoded, ok := inner["record"].(string)
	if !ok {
		s.log.Error("Invalid record format in Vault response", slog.String("path", path))
		return nil, fmt.Errorf("%w: malformed record at %s", interfaces.ErrStoreUnavailable, path)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt record at %s: %v", interfaces.ErrStoreUnavailable, path, err)
	}
	return data, nil
}

func (s *VaultStore) Put(ctx context.Context, id string, data []byte) error {
	path := s.recordPath(id)

	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"record": base64.StdEncoding.EncodeToString(data),
		},
	}

	if _, err := s.client.Logical().WriteWithContext(ctx, path, payload); err != nil {
		s.log.Error("Failed to write to Vault",
			slog.String("path", path), "err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *VaultStore) Delete(ctx context.Context, id string) error {
	path := s.recordPath(id)

	if _, err := s.client.Logical().DeleteWithContext(ctx, path); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *VaultStore) Available(ctx context.Context) bool {
	health, err := s.client.Sys().HealthWithContext(ctx)
	return err == nil && health != nil && health.Initialized && !health.Sealed
}

func (s *VaultStore) Name() string {
	return "vault"
}

func (s *VaultStore) LocationURI() string {
	return s.locationURI
}

// Close is a no-op; the Vault client holds no persistent connection.
func (s *VaultStore) Close() error {
	return nil
}

func (s *VaultStore) recordPath(id string) string {
	// Record ids may contain slashes; escape each segment so the Vault path
	// stays flat and predictable.
	return fmt.Sprintf("%s/data/%s/%s", s.mountPath, s.dataPath, url.PathEscape(id))
}
