package testing

import (
	"testing"

	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunUnlinkTests executes unlink tests.
func (suite *StoreTestSuite) RunUnlinkTests(t *testing.T) {
	t.Run("RemovesDocumentAndChunks", suite.testUnlinkRemoves)
	t.Run("Missing", suite.testUnlinkMissing)
	t.Run("OtherRootUntouched", suite.testUnlinkOtherRoot)
}

func (suite *StoreTestSuite) testUnlinkRemoves(t *testing.T) {
	kv := suite.NewKV(t)
	db := chunkstore.NewDatabase(kv)
	t.Cleanup(func() { _ = db.Close() })
	sess, err := db.Connect(testContext())
	require.NoError(t, err)

	mustPut(t, sess, "gone", chunkstore.ModeOverwrite, generateTestData(50), chunkstore.Options{ChunkSize: 8})
	require.Equal(t, 7, countChunks(t, kv, chunkstore.DefaultRoot))

	require.NoError(t, sess.Unlink(testContext(), "gone", ""))

	assertExists(t, sess, "gone", "", false)
	assert.Zero(t, countChunks(t, kv, chunkstore.DefaultRoot))
}

func (suite *StoreTestSuite) testUnlinkMissing(t *testing.T) {
	_, sess := suite.newSession(t)

	AssertErrorIs(t, chunkstore.ErrNotFound, sess.Unlink(testContext(), "never", ""))
}

func (suite *StoreTestSuite) testUnlinkOtherRoot(t *testing.T) {
	_, sess := suite.newSession(t)

	mustPut(t, sess, "same", chunkstore.ModeOverwrite, []byte("fs"), chunkstore.Options{})
	mustPut(t, sess, "same", chunkstore.ModeOverwrite, []byte("img"), chunkstore.Options{Root: "images"})

	require.NoError(t, sess.Unlink(testContext(), "same", "images"))

	assertExists(t, sess, "same", "images", false)
	assert.Equal(t, []byte("fs"), mustRead(t, sess, "same", ""))
}
