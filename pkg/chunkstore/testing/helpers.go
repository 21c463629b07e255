package testing

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorIs checks if the error matches the expected error using errors.Is.
func AssertErrorIs(t *testing.T, expected error, actual error) {
	t.Helper()
	if !errors.Is(actual, expected) {
		t.Errorf("Expected error %v, got %v", expected, actual)
	}
}

// mustPut writes data to name in one open/write/close cycle.
func mustPut(t *testing.T, sess chunkstore.Session, name string, mode chunkstore.Mode, data []byte, opts chunkstore.Options) chunkstore.FileInfo {
	t.Helper()
	f, err := sess.Open(testContext(), name, mode, opts)
	require.NoError(t, err, "Open should succeed")
	require.NoError(t, f.Write(testContext(), data), "Write should succeed")
	info, err := f.Close(testContext())
	require.NoError(t, err, "Close should succeed")
	return info
}

// mustRead reads the whole file.
func mustRead(t *testing.T, sess chunkstore.Session, name, root string) []byte {
	t.Helper()
	data, err := sess.Read(testContext(), name, 0, 0, chunkstore.Options{Root: root})
	require.NoError(t, err, "Read should succeed")
	return data
}

// assertExists checks file existence.
func assertExists(t *testing.T, sess chunkstore.Session, name, root string, expected bool) {
	t.Helper()
	exists, err := sess.Exists(testContext(), name, root)
	require.NoError(t, err, "Exists should not error")
	assert.Equal(t, expected, exists, "File existence mismatch")
}

// countChunks counts chunk keys stored for a root.
func countChunks(t *testing.T, kv chunkstore.KV, root string) int {
	t.Helper()
	n := 0
	err := kv.List(testContext(), "c/"+root+"/", func(string) error {
		n++
		return nil
	})
	require.NoError(t, err)
	return n
}

// md5Hex returns the hex md5 of data.
func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// generateTestData creates test data of specified size.
func generateTestData(size int) []byte {
	data := make([]byte, size)
	for i := 0; i < size; i++ {
		data[i] = byte(i % 251)
	}
	return data
}
