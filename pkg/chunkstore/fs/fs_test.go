package fs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/dittogrid/pkg/chunkstore"
	storetesting "github.com/marmos91/dittogrid/pkg/chunkstore/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, dir string) *Store {
	t.Helper()
	store, err := New(context.Background(), Config{BasePath: dir})
	require.NoError(t, err)
	return store
}

func TestFSStore(t *testing.T) {
	suite := &storetesting.StoreTestSuite{
		NewKV: func(t *testing.T) chunkstore.KV {
			return newStore(t, t.TempDir())
		},
	}
	suite.Run(t)
}

func TestFSStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := newStore(t, dir)
	require.NoError(t, store.Put(ctx, "f/fs/report.pdf", []byte("{}")))
	require.NoError(t, store.Close())

	store = newStore(t, dir)
	defer func() { _ = store.Close() }()

	got, err := store.Get(ctx, "f/fs/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), got)
}

func TestFSStore_KeyAndPrefixCoexist(t *testing.T) {
	store := newStore(t, t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a", []byte("1")))
	require.NoError(t, store.Put(ctx, "a/b", []byte("2")))
	require.NoError(t, store.Put(ctx, "a-c", []byte("3")))

	var keys []string
	require.NoError(t, store.List(ctx, "", func(key string) error {
		keys = append(keys, key)
		return nil
	}))
	assert.Equal(t, []string{"a", "a-c", "a/b"}, keys)
}

func TestFSStore_UnsafeNames(t *testing.T) {
	store := newStore(t, t.TempDir())
	ctx := context.Background()

	for _, key := range []string{"f/fs/..", "f/fs/.", "f/fs/", "f/fs/ünï cödé\x00"} {
		require.NoError(t, store.Put(ctx, key, []byte(key)), key)
		got, err := store.Get(ctx, key)
		require.NoError(t, err, key)
		assert.Equal(t, key, string(got))
	}

	_, err := store.Get(ctx, "f/fs/"+strings.Repeat("x", maxSegment+1))
	assert.ErrorIs(t, err, chunkstore.ErrInvalidName)
}

func TestFSStore_DeletePrunesDirectories(t *testing.T) {
	dir := t.TempDir()
	store := newStore(t, dir)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "c/fs/id/0000000000", []byte("x")))
	require.NoError(t, store.Delete(ctx, "c/fs/id/0000000000"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFSStore_ListMissingPrefix(t *testing.T) {
	store := newStore(t, t.TempDir())

	called := false
	require.NoError(t, store.List(context.Background(), "c/none/", func(string) error {
		called = true
		return nil
	}))
	assert.False(t, called)
}

func TestFSStore_Closed(t *testing.T) {
	store := newStore(t, t.TempDir())
	require.NoError(t, store.Close())

	_, err := store.Get(context.Background(), "f/fs/a")
	assert.ErrorIs(t, err, chunkstore.ErrClosed)
	assert.ErrorIs(t, store.Put(context.Background(), "f/fs/a", nil), chunkstore.ErrClosed)
}

func TestFSStore_PathRequired(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(ctx, Config{BasePath: filepath.Join(t.TempDir(), "x")})
	assert.ErrorIs(t, err, context.Canceled)
}
