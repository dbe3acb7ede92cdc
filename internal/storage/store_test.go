package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cajero/internal/core"
)

// exerciseBlobStore runs the behaviour every BlobStore must share.
func exerciseBlobStore(t *testing.T, store BlobStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.ReadBlob(ctx, "missing")
	assert.ErrorIs(t, err, ErrBlobNotFound)

	require.NoError(t, store.WriteBlob(ctx, "acct", []byte(`{"v":1}`)))
	got, err := store.ReadBlob(ctx, "acct")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(got))

	require.NoError(t, store.WriteBlob(ctx, "acct", []byte(`{"v":2}`)))
	got, err = store.ReadBlob(ctx, "acct")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(got))

	repo := NewRepository(store, WithKey("repo"))
	acct := repo.Load(ctx)
	assert.True(t, acct.Equal(core.SeedAccount()))
	assert.True(t, repo.Load(ctx).Equal(acct))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	exerciseBlobStore(t, store)

	// Returned slices are copies.
	ctx := context.Background()
	require.NoError(t, store.WriteBlob(ctx, "k", []byte("abc")))
	b, err := store.ReadBlob(ctx, "k")
	require.NoError(t, err)
	b[0] = 'x'
	again, _ := store.ReadBlob(ctx, "k")
	assert.Equal(t, "abc", string(again))
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	exerciseBlobStore(t, store)

	_, err = os.Stat(filepath.Join(dir, "acct.json"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "temp files must not survive a write")
	}
}

func TestFileStoreRejectsPathKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	assert.Error(t, store.WriteBlob(ctx, "../escape", []byte("x")))
	_, err = store.ReadBlob(ctx, "a/b")
	assert.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "cajero.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Ping(context.Background()))
	exerciseBlobStore(t, store)
}

func TestSQLiteStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cajero.db")

	first, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, first.WriteBlob(ctx, "acct", []byte("persisted")))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer second.Close()
	got, err := second.ReadBlob(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(got))
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	store, err := NewRedisStore(context.Background(), RedisConfig{Addrs: []string{addr}, Prefix: "cajero-test"})
	require.NoError(t, err)
	defer store.Close()
	exerciseBlobStore(t, store)
}

func TestNewRedisStoreRequiresAddress(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisConfig{})
	assert.Error(t, err)
}
