package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittogrid/pkg/chunkstore"
)

// StoreTestSuite is a conformance suite for chunk store backends.
//
// It drives the chunk layout engine over the KV returned by NewKV, so every
// backend is checked against the same file semantics: chunking, append,
// overwrite, ranges, unlink and orphan collection.
//
// Usage:
//
//	func TestBoltStore(t *testing.T) {
//	    suite := &storetesting.StoreTestSuite{
//	        NewKV: func(t *testing.T) chunkstore.KV {
//	            return mustOpen(t)
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewKV creates a fresh, empty backend for each test. The suite closes
	// it through the database when the test ends.
	NewKV func(t *testing.T) chunkstore.KV
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("KV", suite.RunKVTests)
	t.Run("Write", suite.RunWriteTests)
	t.Run("Read", suite.RunReadTests)
	t.Run("Unlink", suite.RunUnlinkTests)
	t.Run("GarbageCollection", suite.RunGCTests)
}

// newDatabase wraps a fresh backend and registers its cleanup.
func (suite *StoreTestSuite) newDatabase(t *testing.T) *chunkstore.KVDatabase {
	t.Helper()
	db := chunkstore.NewDatabase(suite.NewKV(t))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// newSession returns a connected session on a fresh database.
func (suite *StoreTestSuite) newSession(t *testing.T) (*chunkstore.KVDatabase, chunkstore.Session) {
	t.Helper()
	db := suite.newDatabase(t)
	sess, err := db.Connect(testContext())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })
	return db, sess
}

// testContext returns a standard test context.
func testContext() context.Context {
	return context.Background()
}
