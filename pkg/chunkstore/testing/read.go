package testing

import (
	"testing"

	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunReadTests executes ranged read tests.
func (suite *StoreTestSuite) RunReadTests(t *testing.T) {
	t.Run("WholeFile", suite.testReadWholeFile)
	t.Run("RangeAcrossChunks", suite.testReadRangeAcrossChunks)
	t.Run("ChunkSizedSteps", suite.testReadChunkSizedSteps)
	t.Run("LengthClamped", suite.testReadLengthClamped)
	t.Run("OffsetAtEnd", suite.testReadOffsetAtEnd)
	t.Run("OffsetPastEnd", suite.testReadOffsetPastEnd)
	t.Run("Missing", suite.testReadMissing)
	t.Run("EmptyFile", suite.testReadEmptyFile)
	t.Run("List", suite.testList)
}

func (suite *StoreTestSuite) testReadWholeFile(t *testing.T) {
	_, sess := suite.newSession(t)
	data := generateTestData(1000)
	mustPut(t, sess, "whole", chunkstore.ModeOverwrite, data, chunkstore.Options{ChunkSize: 64})

	assert.Equal(t, data, mustRead(t, sess, "whole", ""))
}

func (suite *StoreTestSuite) testReadRangeAcrossChunks(t *testing.T) {
	_, sess := suite.newSession(t)
	data := generateTestData(100)
	mustPut(t, sess, "range", chunkstore.ModeOverwrite, data, chunkstore.Options{ChunkSize: 16})

	got, err := sess.Read(testContext(), "range", 40, 10, chunkstore.Options{})
	require.NoError(t, err)
	assert.Equal(t, data[10:50], got)
}

func (suite *StoreTestSuite) testReadChunkSizedSteps(t *testing.T) {
	_, sess := suite.newSession(t)
	data := []byte("Hello World!!")
	mustPut(t, sess, "steps", chunkstore.ModeOverwrite, data, chunkstore.Options{ChunkSize: 3})

	var (
		parts [][]byte
		head  int64
	)
	for head < int64(len(data)) {
		n := min(int64(3), int64(len(data))-head)
		part, err := sess.Read(testContext(), "steps", n, head, chunkstore.Options{})
		require.NoError(t, err)
		parts = append(parts, part)
		head += int64(len(part))
	}

	require.Len(t, parts, 5)
	assert.Equal(t, []byte("!"), parts[4])
}

func (suite *StoreTestSuite) testReadLengthClamped(t *testing.T) {
	_, sess := suite.newSession(t)
	mustPut(t, sess, "clamp", chunkstore.ModeOverwrite, []byte("0123456789"), chunkstore.Options{ChunkSize: 4})

	got, err := sess.Read(testContext(), "clamp", 100, 7, chunkstore.Options{})
	require.NoError(t, err)
	assert.Equal(t, []byte("789"), got)
}

func (suite *StoreTestSuite) testReadOffsetAtEnd(t *testing.T) {
	_, sess := suite.newSession(t)
	mustPut(t, sess, "end", chunkstore.ModeOverwrite, []byte("abc"), chunkstore.Options{})

	got, err := sess.Read(testContext(), "end", 10, 3, chunkstore.Options{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func (suite *StoreTestSuite) testReadOffsetPastEnd(t *testing.T) {
	_, sess := suite.newSession(t)
	mustPut(t, sess, "past", chunkstore.ModeOverwrite, []byte("abc"), chunkstore.Options{})

	_, err := sess.Read(testContext(), "past", 1, 4, chunkstore.Options{})
	AssertErrorIs(t, chunkstore.ErrInvalidRange, err)

	_, err = sess.Read(testContext(), "past", 1, -1, chunkstore.Options{})
	AssertErrorIs(t, chunkstore.ErrInvalidRange, err)
}

func (suite *StoreTestSuite) testReadMissing(t *testing.T) {
	_, sess := suite.newSession(t)

	_, err := sess.Read(testContext(), "missing", 0, 0, chunkstore.Options{})
	AssertErrorIs(t, chunkstore.ErrNotFound, err)
}

func (suite *StoreTestSuite) testReadEmptyFile(t *testing.T) {
	_, sess := suite.newSession(t)
	info := mustPut(t, sess, "empty", chunkstore.ModeOverwrite, nil, chunkstore.Options{})

	assert.Equal(t, int64(0), info.Length)
	assert.Equal(t, 0, info.NumChunks())
	assert.Empty(t, mustRead(t, sess, "empty", ""))
}

func (suite *StoreTestSuite) testList(t *testing.T) {
	_, sess := suite.newSession(t)
	lister, ok := sess.(chunkstore.Lister)
	if !ok {
		t.Skip("Session does not implement Lister")
	}

	mustPut(t, sess, "b", chunkstore.ModeOverwrite, []byte("2"), chunkstore.Options{})
	mustPut(t, sess, "a/nested", chunkstore.ModeOverwrite, []byte("1"), chunkstore.Options{})
	mustPut(t, sess, "other", chunkstore.ModeOverwrite, []byte("3"), chunkstore.Options{Root: "images"})

	files, err := lister.List(testContext(), "")
	require.NoError(t, err)
	require.Len(t, files, 2)

	names := []string{files[0].Name, files[1].Name}
	assert.ElementsMatch(t, []string{"a/nested", "b"}, names)
}
