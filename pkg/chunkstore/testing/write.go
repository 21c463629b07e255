package testing

import (
	"bytes"
	"testing"

	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunWriteTests executes open/write/close tests.
func (suite *StoreTestSuite) RunWriteTests(t *testing.T) {
	t.Run("Overwrite_CreatesFile", suite.testOverwriteCreates)
	t.Run("Overwrite_ReplacesContent", suite.testOverwriteReplaces)
	t.Run("Overwrite_VisibleOnlyAfterCommit", suite.testOverwriteVisibleAfterCommit)
	t.Run("Append_CreatesFile", suite.testAppendCreates)
	t.Run("Append_ExtendsPartialChunk", suite.testAppendExtends)
	t.Run("Append_KeepsChunkSize", suite.testAppendKeepsChunkSize)
	t.Run("Write_SplitsIntoChunks", suite.testWriteSplitsChunks)
	t.Run("Write_ManySmallWrites", suite.testManySmallWrites)
	t.Run("Write_ReadModeRejected", suite.testWriteReadModeRejected)
	t.Run("Open_InvalidMode", suite.testOpenInvalidMode)
	t.Run("Open_ReadMissing", suite.testOpenReadMissing)
	t.Run("Close_Twice", suite.testCloseTwice)
	t.Run("Session_ClosedRejects", suite.testSessionClosed)
}

func (suite *StoreTestSuite) testOverwriteCreates(t *testing.T) {
	_, sess := suite.newSession(t)

	data := []byte("Hello John")
	info := mustPut(t, sess, "Test", chunkstore.ModeOverwrite, data, chunkstore.Options{})

	assert.Equal(t, "Test", info.Name)
	assert.Equal(t, chunkstore.DefaultRoot, info.Root)
	assert.Equal(t, int64(len(data)), info.Length)
	assert.Equal(t, chunkstore.DefaultChunkSize, info.ChunkSize)
	assert.Equal(t, chunkstore.DefaultContentType, info.ContentType)
	assert.Equal(t, md5Hex(data), info.MD5)
	assert.False(t, info.UploadDate.IsZero())
	assert.NotEmpty(t, info.ID)

	assertExists(t, sess, "Test", "", true)
	assert.Equal(t, data, mustRead(t, sess, "Test", ""))
}

func (suite *StoreTestSuite) testOverwriteReplaces(t *testing.T) {
	db, sess := suite.newSession(t)
	opts := chunkstore.Options{ChunkSize: 4}

	first := mustPut(t, sess, "doc", chunkstore.ModeOverwrite, []byte("first version"), opts)
	second := mustPut(t, sess, "doc", chunkstore.ModeOverwrite, []byte("v2"), opts)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, []byte("v2"), mustRead(t, sess, "doc", ""))

	// Chunks of the replaced version are gone.
	n, err := db.CollectOrphans(testContext(), chunkstore.DefaultRoot, true)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func (suite *StoreTestSuite) testOverwriteVisibleAfterCommit(t *testing.T) {
	_, sess := suite.newSession(t)

	mustPut(t, sess, "doc", chunkstore.ModeOverwrite, []byte("old"), chunkstore.Options{})

	f, err := sess.Open(testContext(), "doc", chunkstore.ModeOverwrite, chunkstore.Options{})
	require.NoError(t, err)
	require.NoError(t, f.Write(testContext(), []byte("new content")))

	assert.Equal(t, []byte("old"), mustRead(t, sess, "doc", ""))

	_, err = f.Close(testContext())
	require.NoError(t, err)
	assert.Equal(t, []byte("new content"), mustRead(t, sess, "doc", ""))
}

func (suite *StoreTestSuite) testAppendCreates(t *testing.T) {
	_, sess := suite.newSession(t)

	info := mustPut(t, sess, "log", chunkstore.ModeAppend, []byte("line1\n"), chunkstore.Options{Root: "logs"})

	assert.Equal(t, "logs", info.Root)
	assert.Equal(t, []byte("line1\n"), mustRead(t, sess, "log", "logs"))
	assertExists(t, sess, "log", "", false)
}

func (suite *StoreTestSuite) testAppendExtends(t *testing.T) {
	_, sess := suite.newSession(t)
	opts := chunkstore.Options{ChunkSize: 4}

	first := mustPut(t, sess, "log", chunkstore.ModeAppend, []byte("abcdef"), opts)
	second := mustPut(t, sess, "log", chunkstore.ModeAppend, []byte("ghij"), opts)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(10), second.Length)
	assert.Equal(t, []byte("abcdefghij"), mustRead(t, sess, "log", ""))
	assert.Equal(t, md5Hex([]byte("abcdefghij")), second.MD5)
}

func (suite *StoreTestSuite) testAppendKeepsChunkSize(t *testing.T) {
	_, sess := suite.newSession(t)

	mustPut(t, sess, "log", chunkstore.ModeOverwrite, []byte("abc"), chunkstore.Options{ChunkSize: 2})
	info := mustPut(t, sess, "log", chunkstore.ModeAppend, []byte("de"), chunkstore.Options{ChunkSize: 64})

	assert.Equal(t, 2, info.ChunkSize)
	assert.Equal(t, 3, info.NumChunks())
	assert.Equal(t, []byte("abcde"), mustRead(t, sess, "log", ""))
}

func (suite *StoreTestSuite) testWriteSplitsChunks(t *testing.T) {
	kv := suite.NewKV(t)
	db := chunkstore.NewDatabase(kv)
	t.Cleanup(func() { _ = db.Close() })

	sess, err := db.Connect(testContext())
	require.NoError(t, err)

	data := generateTestData(10)
	info := mustPut(t, sess, "split", chunkstore.ModeOverwrite, data, chunkstore.Options{ChunkSize: 3, Root: "split"})

	assert.Equal(t, 4, info.NumChunks())
	assert.Equal(t, 4, countChunks(t, kv, "split"))

	start, end := info.ChunkBounds(3)
	assert.Equal(t, int64(9), start)
	assert.Equal(t, int64(10), end)
}

func (suite *StoreTestSuite) testManySmallWrites(t *testing.T) {
	_, sess := suite.newSession(t)

	f, err := sess.Open(testContext(), "small", chunkstore.ModeOverwrite, chunkstore.Options{ChunkSize: 5})
	require.NoError(t, err)

	var expected bytes.Buffer
	for i := 0; i < 23; i++ {
		b := []byte{byte('a' + i)}
		expected.Write(b)
		require.NoError(t, f.Write(testContext(), b))
	}
	info, err := f.Close(testContext())
	require.NoError(t, err)

	assert.Equal(t, int64(23), info.Length)
	assert.Equal(t, expected.Bytes(), mustRead(t, sess, "small", ""))
}

func (suite *StoreTestSuite) testWriteReadModeRejected(t *testing.T) {
	_, sess := suite.newSession(t)
	mustPut(t, sess, "ro", chunkstore.ModeOverwrite, []byte("x"), chunkstore.Options{})

	f, err := sess.Open(testContext(), "ro", chunkstore.ModeRead, chunkstore.Options{})
	require.NoError(t, err)

	AssertErrorIs(t, chunkstore.ErrNotWritable, f.Write(testContext(), []byte("y")))
	_, err = f.Close(testContext())
	require.NoError(t, err)
}

func (suite *StoreTestSuite) testOpenInvalidMode(t *testing.T) {
	_, sess := suite.newSession(t)

	_, err := sess.Open(testContext(), "x", chunkstore.Mode("rw"), chunkstore.Options{})
	AssertErrorIs(t, chunkstore.ErrInvalidMode, err)
}

func (suite *StoreTestSuite) testOpenReadMissing(t *testing.T) {
	_, sess := suite.newSession(t)

	_, err := sess.Open(testContext(), "missing", chunkstore.ModeRead, chunkstore.Options{})
	AssertErrorIs(t, chunkstore.ErrNotFound, err)
}

func (suite *StoreTestSuite) testCloseTwice(t *testing.T) {
	_, sess := suite.newSession(t)

	f, err := sess.Open(testContext(), "twice", chunkstore.ModeOverwrite, chunkstore.Options{})
	require.NoError(t, err)
	_, err = f.Close(testContext())
	require.NoError(t, err)

	_, err = f.Close(testContext())
	AssertErrorIs(t, chunkstore.ErrClosed, err)
	AssertErrorIs(t, chunkstore.ErrClosed, f.Write(testContext(), []byte("late")))
}

func (suite *StoreTestSuite) testSessionClosed(t *testing.T) {
	_, sess := suite.newSession(t)
	require.NoError(t, sess.Close())

	_, err := sess.Exists(testContext(), "x", "")
	AssertErrorIs(t, chunkstore.ErrClosed, err)
	_, err = sess.Open(testContext(), "x", chunkstore.ModeOverwrite, chunkstore.Options{})
	AssertErrorIs(t, chunkstore.ErrClosed, err)
}
