package testing

import (
	"testing"

	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunKVTests checks the raw backend contract the layout engine relies on.
func (suite *StoreTestSuite) RunKVTests(t *testing.T) {
	t.Run("PutGet", suite.testKVPutGet)
	t.Run("GetMissing", suite.testKVGetMissing)
	t.Run("DeleteIdempotent", suite.testKVDeleteIdempotent)
	t.Run("ListPrefixOrdered", suite.testKVListPrefixOrdered)
}

func (suite *StoreTestSuite) newKV(t *testing.T) chunkstore.KV {
	t.Helper()
	kv := suite.NewKV(t)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func (suite *StoreTestSuite) testKVPutGet(t *testing.T) {
	kv := suite.newKV(t)
	ctx := testContext()

	buf := []byte("chunk payload")
	require.NoError(t, kv.Put(ctx, "c/fs/a/0000000000", buf))

	// Mutating the caller's buffer must not affect the stored value.
	buf[0] = 'X'

	got, err := kv.Get(ctx, "c/fs/a/0000000000")
	require.NoError(t, err)
	assert.Equal(t, []byte("chunk payload"), got)
}

func (suite *StoreTestSuite) testKVGetMissing(t *testing.T) {
	kv := suite.newKV(t)

	_, err := kv.Get(testContext(), "f/fs/missing")
	AssertErrorIs(t, chunkstore.ErrKeyNotFound, err)
}

func (suite *StoreTestSuite) testKVDeleteIdempotent(t *testing.T) {
	kv := suite.newKV(t)
	ctx := testContext()

	require.NoError(t, kv.Put(ctx, "f/fs/a", []byte("{}")))
	require.NoError(t, kv.Delete(ctx, "f/fs/a"))
	require.NoError(t, kv.Delete(ctx, "f/fs/a"))

	_, err := kv.Get(ctx, "f/fs/a")
	AssertErrorIs(t, chunkstore.ErrKeyNotFound, err)
}

func (suite *StoreTestSuite) testKVListPrefixOrdered(t *testing.T) {
	kv := suite.newKV(t)
	ctx := testContext()

	for _, key := range []string{"c/fs/b/0000000002", "c/fs/b/0000000000", "c/fs/b/0000000001", "c/fs/c/0000000000", "f/fs/b"} {
		require.NoError(t, kv.Put(ctx, key, []byte("x")))
	}

	var keys []string
	require.NoError(t, kv.List(ctx, "c/fs/b/", func(key string) error {
		keys = append(keys, key)
		return nil
	}))

	assert.Equal(t, []string{"c/fs/b/0000000000", "c/fs/b/0000000001", "c/fs/b/0000000002"}, keys)
}
