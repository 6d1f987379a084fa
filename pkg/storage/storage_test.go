package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{name: "local filesystem", config: Config{Type: "fs", Path: t.TempDir()}},
		{name: "memory", config: Config{Type: "memory"}},
		{name: "unsupported", config: Config{Type: "ftp"}, wantErr: "unsupported storage type: ftp"},
		{name: "s3 without bucket", config: Config{Type: "s3"}, wantErr: "storage.bucket must be specified for s3"},
		{name: "gcs without bucket", config: Config{Type: "gcs"}, wantErr: "storage.bucket must be specified for gcs"},
		{name: "redis without address", config: Config{Type: "redis"}, wantErr: "storage.address must be specified for redis"},
		{name: "postgres without dsn", config: Config{Type: "postgres"}, wantErr: "storage.dsn must be specified for postgres"},
		{name: "mongo without dsn", config: Config{Type: "mongo"}, wantErr: "storage.dsn must be specified for mongo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := New(context.Background(), tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, err.Error())
				return
			}
			require.NoError(t, err)
			require.NotNil(t, store)
			assert.NoError(t, store.Close())
		})
	}
}

// exerciseStore runs the Store contract against any backend.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	data, found, err := store.Get(ctx, "discovery/checkpoint.json")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, data)

	exists, err := store.Exists(ctx, "discovery/checkpoint.json")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Put(ctx, "discovery/checkpoint.json", []byte(`{"phase":"discover_riders"}`)))
	require.NoError(t, store.Put(ctx, "discovery/checkpoint.json", []byte(`{"phase":"fetch_results"}`)))

	data, found, err = store.Get(ctx, "discovery/checkpoint.json")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"phase":"fetch_results"}`, string(data))

	exists, err = store.Exists(ctx, "discovery/checkpoint.json")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Delete(ctx, "discovery/checkpoint.json"))
	require.NoError(t, store.Delete(ctx, "discovery/checkpoint.json"), "deleting an absent key is a no-op")

	_, found, err = store.Get(ctx, "discovery/checkpoint.json")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_ErrorHooks(t *testing.T) {
	store := NewMemoryStore()
	boom := errors.New("connection reset")
	store.GetErr = func(key string) error { return boom }

	_, found, err := store.Get(context.Background(), "k")
	assert.ErrorIs(t, err, boom)
	assert.False(t, found)
}

func TestMemoryStore_PutWithTTL(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, PutWithTTL(ctx, store, "a", []byte("1"), time.Hour))
	assert.Equal(t, time.Hour, store.TTL("a"))

	require.NoError(t, store.Put(ctx, "a", []byte("2")))
	assert.Zero(t, store.TTL("a"), "plain put clears expiry")
}

func TestPutWithTTL_FallsBackToPut(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, PutWithTTL(context.Background(), store, "x.json", []byte("{}"), time.Hour))
	exists, err := store.Exists(context.Background(), "x.json")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFSStore(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestFSStore_NestedKeys(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir)
	require.NoError(t, err)

	key := "raw/events/4242/results.json"
	require.NoError(t, store.Put(context.Background(), key, []byte(`{"event_id":"4242"}`)))

	data, err := os.ReadFile(filepath.Join(dir, "raw", "events", "4242", "results.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event_id":"4242"}`, string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "raw", "events", "4242"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are renamed away")
}

func TestFSStore_RejectsTraversal(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"../escape.json", "a/../../escape.json", "..", "/etc/passwd", "."} {
		t.Run(key, func(t *testing.T) {
			assert.Error(t, store.Put(context.Background(), key, []byte("x")))
		})
	}
}

func TestFSStore_DotPrefixedSegment(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), "..cache/x.json", []byte("{}")))
	_, err = os.Stat(filepath.Join(dir, "..cache", "x.json"))
	assert.NoError(t, err)
}

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "a/b", joinKey("a", "b"))
	assert.Equal(t, "a/b", joinKey("a/", "b"))
	assert.Equal(t, "b", joinKey("", "b"))
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(context.Background(), Config{Path: filepath.Join(t.TempDir(), "objects.sqlite")})
	require.NoError(t, err)
	defer store.Close()
	exerciseStore(t, store)
}
