package chunkstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/marmos91/dittogrid/pkg/chunkstore/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMetrics struct {
	mu    sync.Mutex
	ops   map[string]int
	bytes map[string]int64
}

func (m *recordingMetrics) ObserveOperation(op string, _ time.Duration, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[op]++
}

func (m *recordingMetrics) RecordBytes(op string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytes[op] += n
}

func TestDatabase_MetricsAndClock(t *testing.T) {
	ctx := context.Background()
	m := &recordingMetrics{ops: map[string]int{}, bytes: map[string]int64{}}
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	db := memory.NewDatabase(chunkstore.WithMetrics(m), chunkstore.WithClock(func() time.Time { return fixed }))
	defer func() { _ = db.Close() }()

	sess, err := db.Connect(ctx)
	require.NoError(t, err)

	f, err := sess.Open(ctx, "hello", chunkstore.ModeOverwrite, chunkstore.Options{})
	require.NoError(t, err)
	require.NoError(t, f.Write(ctx, []byte("Hello John")))
	info, err := f.Close(ctx)
	require.NoError(t, err)
	assert.Equal(t, fixed, info.UploadDate)

	_, err = sess.Read(ctx, "hello", 0, 0, chunkstore.Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, m.ops["open"])
	assert.Equal(t, 1, m.ops["write"])
	assert.Equal(t, 1, m.ops["commit"])
	assert.Equal(t, 1, m.ops["read"])
	assert.Equal(t, int64(10), m.bytes["write"])
	assert.Equal(t, int64(10), m.bytes["read"])
}

func TestDatabase_ClosedRejectsConnect(t *testing.T) {
	db := memory.NewDatabase()
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err := db.Connect(context.Background())
	assert.ErrorIs(t, err, chunkstore.ErrClosed)
}

func TestDatabase_ConnectHonoursContext(t *testing.T) {
	db := memory.NewDatabase()
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := db.Connect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDatabase_SessionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	db := memory.NewDatabase()
	defer func() { _ = db.Close() }()

	a, err := db.Connect(ctx)
	require.NoError(t, err)
	b, err := db.Connect(ctx)
	require.NoError(t, err)

	require.NoError(t, a.Close())

	_, err = a.Exists(ctx, "x", "")
	assert.ErrorIs(t, err, chunkstore.ErrClosed)

	exists, err := b.Exists(ctx, "x", "")
	require.NoError(t, err)
	assert.False(t, exists)
}
