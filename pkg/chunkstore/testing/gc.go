package testing

import (
	"testing"

	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunGCTests executes orphan collection tests.
func (suite *StoreTestSuite) RunGCTests(t *testing.T) {
	t.Run("AbandonedWriterCollected", suite.testGCAbandonedWriter)
	t.Run("InProgressWriterKept", suite.testGCInProgressWriter)
	t.Run("DryRunKeepsChunks", suite.testGCDryRun)
}

// abandonWrite stores two full chunks and closes the session without
// committing, leaving orphaned chunks behind.
func abandonWrite(t *testing.T, db chunkstore.Database, name string) {
	t.Helper()
	sess, err := db.Connect(testContext())
	require.NoError(t, err)

	f, err := sess.Open(testContext(), name, chunkstore.ModeOverwrite, chunkstore.Options{ChunkSize: 4})
	require.NoError(t, err)
	require.NoError(t, f.Write(testContext(), []byte("12345678")))
	require.NoError(t, sess.Close())
}

func (suite *StoreTestSuite) testGCAbandonedWriter(t *testing.T) {
	kv := suite.NewKV(t)
	db := chunkstore.NewDatabase(kv)
	t.Cleanup(func() { _ = db.Close() })

	sess, err := db.Connect(testContext())
	require.NoError(t, err)
	mustPut(t, sess, "kept", chunkstore.ModeOverwrite, []byte("keep me"), chunkstore.Options{ChunkSize: 4})

	abandonWrite(t, db, "lost")

	n, err := db.CollectOrphans(testContext(), chunkstore.DefaultRoot, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, countChunks(t, kv, chunkstore.DefaultRoot))
	assert.Equal(t, []byte("keep me"), mustRead(t, sess, "kept", ""))
}

func (suite *StoreTestSuite) testGCInProgressWriter(t *testing.T) {
	db, sess := suite.newSession(t)

	f, err := sess.Open(testContext(), "pending", chunkstore.ModeOverwrite, chunkstore.Options{ChunkSize: 2})
	require.NoError(t, err)
	require.NoError(t, f.Write(testContext(), []byte("abcd")))

	n, err := db.CollectOrphans(testContext(), chunkstore.DefaultRoot, false)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.Close(testContext())
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), mustRead(t, sess, "pending", ""))
}

func (suite *StoreTestSuite) testGCDryRun(t *testing.T) {
	kv := suite.NewKV(t)
	db := chunkstore.NewDatabase(kv)
	t.Cleanup(func() { _ = db.Close() })

	abandonWrite(t, db, "lost")

	n, err := db.CollectOrphans(testContext(), chunkstore.DefaultRoot, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, countChunks(t, kv, chunkstore.DefaultRoot))
}
