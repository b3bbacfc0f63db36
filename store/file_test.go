package store

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wapair/session-backend/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileStore_RoundTrip(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "file-store-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	store, err := NewFileStore(tempDir, testLogger())
	require.NoError(t, err)

	ctx := context.Background()

	// Missing record
	_, err = store.Get(ctx, "creds")
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)

	// Put then get
	require.NoError(t, store.Put(ctx, "creds", []byte(`{"registered":true}`)))
	data, err := store.Get(ctx, "creds")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"registered":true}`), data)

	// Overwrite
	require.NoError(t, store.Put(ctx, "creds", []byte(`{}`)))
	data, err = store.Get(ctx, "creds")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{}`), data)

	// Delete, then delete again (absent is not an error)
	require.NoError(t, store.Delete(ctx, "creds"))
	require.NoError(t, store.Delete(ctx, "creds"))
	_, err = store.Get(ctx, "creds")
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
}

func TestFileStore_NestedIDs(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "file-store-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	store, err := NewFileStore(tempDir, testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "keys/pre-key", []byte("bucket")))

	data, err := store.Get(ctx, "keys/pre-key")
	require.NoError(t, err)
	assert.Equal(t, []byte("bucket"), data)

	// The slash maps to a subdirectory.
	_, err = os.Stat(filepath.Join(tempDir, "keys", "pre-key"))
	assert.NoError(t, err)
}

func TestFileStore_RejectsBadIDs(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "file-store-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	store, err := NewFileStore(tempDir, testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.Get(ctx, "")
	assert.Error(t, err)
	_, err = store.Get(ctx, "../outside")
	assert.Error(t, err)
	assert.Error(t, store.Put(ctx, "../outside", []byte("x")))
}

func TestFileStore_Available(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "file-store-*")
	require.NoError(t, err)

	store, err := NewFileStore(tempDir, testLogger())
	require.NoError(t, err)
	assert.True(t, store.Available(context.Background()))

	require.NoError(t, os.RemoveAll(tempDir))
	assert.False(t, store.Available(context.Background()))
}
