package badger

import (
	"context"
	"testing"

	"github.com/marmos91/dittogrid/pkg/chunkstore"
	storetesting "github.com/marmos91/dittogrid/pkg/chunkstore/testing"
	"github.com/stretchr/testify/require"
)

func TestBadgerStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping badger suite in short mode")
	}

	suite := &storetesting.StoreTestSuite{
		NewKV: func(t *testing.T) chunkstore.KV {
			store, err := New(context.Background(), Config{
				Path:             t.TempDir(),
				BlockCacheSizeMB: 8,
				IndexCacheSizeMB: 8,
			})
			require.NoError(t, err)
			return store
		},
	}
	suite.Run(t)
}

func TestBadgerStore_InMemory(t *testing.T) {
	store, err := New(context.Background(), Config{InMemory: true, BlockCacheSizeMB: 8, IndexCacheSizeMB: 8})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "f/fs/a", []byte("{}")))

	_, err = store.Get(ctx, "f/fs/b")
	require.ErrorIs(t, err, chunkstore.ErrKeyNotFound)
}

func TestBadgerStore_PathRequired(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}
