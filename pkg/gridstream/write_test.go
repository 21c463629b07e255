package gridstream

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittogrid/internal/gridtest"
	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/marmos91/dittogrid/pkg/connection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWrite(t *testing.T, db *gridtest.Database, name string, opts WriteOptions) (*WriteStream, *collector) {
	t.Helper()
	s, err := NewWriteStream(db, name, opts)
	require.NoError(t, err)
	return s, collect(s)
}

func filterWrites(ops []string) []string {
	var writes []string
	for _, op := range ops {
		if strings.HasPrefix(op, "write:") {
			writes = append(writes, strings.TrimPrefix(op, "write:"))
		}
	}
	return writes
}

func TestWriteStream_RejectsReadMode(t *testing.T) {
	_, err := NewWriteStream(gridtest.New(), "f", WriteOptions{Mode: chunkstore.ModeRead})
	assert.ErrorIs(t, err, ErrWrongDirection)

	_, err = NewWriteStream(gridtest.New(), "f", WriteOptions{Mode: "x"})
	assert.ErrorIs(t, err, chunkstore.ErrInvalidMode)
}

func TestWriteStream_WritesLandInOrder(t *testing.T) {
	db := gridtest.New()
	db.SetLatency("write", 2*time.Millisecond)

	s, c := newWrite(t, db, "f", WriteOptions{ChunkSize: 4})
	require.NoError(t, s.Open(testContext(t)))

	parts := []string{"al", "pha", "-", "be", "ta", "-gamma"}
	for _, p := range parts {
		n, err := s.WriteString(p)
		require.NoError(t, err)
		assert.Equal(t, len(p), n)
	}
	require.NoError(t, s.End(nil))
	require.NoError(t, s.Wait(testContext(t)))

	assert.Equal(t, parts, filterWrites(db.Ops()))
	assert.Equal(t, 1, db.MaxConcurrent())
	assert.Equal(t, "alpha-beta-gamma", readFile(t, db, "f"))
	assert.Equal(t, int64(16), s.Written())

	info := s.Info()
	assert.Equal(t, int64(16), info.Length)
	assert.Equal(t, 4, info.ChunkSize)
	assert.NotEmpty(t, info.MD5)
	assert.Equal(t, []EventKind{EventOpen, EventClose}, c.Kinds())
}

func TestWriteStream_EndWithFinalChunk(t *testing.T) {
	db := gridtest.New()
	s, _ := newWrite(t, db, "f", WriteOptions{})
	require.NoError(t, s.Open(testContext(t)))

	_, err := s.Write([]byte("Hello "))
	require.NoError(t, err)
	require.NoError(t, s.End([]byte("John")))
	require.NoError(t, s.Wait(testContext(t)))

	assert.Equal(t, "Hello John", readFile(t, db, "f"))
}

func TestWriteStream_WritesBeforeOpenAreQueued(t *testing.T) {
	db := gridtest.New()
	s, _ := newWrite(t, db, "f", WriteOptions{})

	_, err := s.WriteString("early ")
	require.NoError(t, err)
	_, err = s.WriteString("bird")
	require.NoError(t, err)
	assert.Equal(t, 3, s.Outstanding(), "open plus two writes")
	assert.Equal(t, StateCreated, s.State())

	require.NoError(t, s.Open(testContext(t)))
	require.NoError(t, s.End(nil))
	require.NoError(t, s.Wait(testContext(t)))

	assert.Equal(t, "early bird", readFile(t, db, "f"))
}

func TestWriteStream_CallerBufferIsCopied(t *testing.T) {
	db := gridtest.New()
	s, _ := newWrite(t, db, "f", WriteOptions{})

	buf := []byte("first")
	_, err := s.Write(buf)
	require.NoError(t, err)
	copy(buf, "XXXXX")

	require.NoError(t, s.Open(testContext(t)))
	require.NoError(t, s.Close())
	assert.Equal(t, "first", readFile(t, db, "f"))
}

func TestWriteStream_DestroySoonWaitsForQueuedWrites(t *testing.T) {
	for _, m := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("writes=%d", m), func(t *testing.T) {
			db := gridtest.New()
			rng := rand.New(rand.NewSource(int64(m)))
			db.SetLatency("write", time.Duration(1+rng.Intn(4))*time.Millisecond)

			s, c := newWrite(t, db, "f", WriteOptions{ChunkSize: 3})
			require.NoError(t, s.Open(testContext(t)))

			var want strings.Builder
			for i := 0; i < m; i++ {
				part := fmt.Sprintf("[%d]", i)
				want.WriteString(part)
				_, err := s.WriteString(part)
				require.NoError(t, err)
			}

			var (
				mu             sync.Mutex
				writtenAtClose int64
			)
			s.On(EventClose, func(Event) {
				mu.Lock()
				writtenAtClose = s.Written()
				mu.Unlock()
			})

			s.DestroySoon()
			require.NoError(t, s.Wait(testContext(t)))

			mu.Lock()
			assert.Equal(t, int64(want.Len()), writtenAtClose, "every write must land before close")
			mu.Unlock()
			assert.Equal(t, want.String(), readFile(t, db, "f"))
			assert.Equal(t, 1, c.count(EventClose))
			assert.Empty(t, c.Errors())
		})
	}
}

func TestWriteStream_DestroySoonWithoutWrites(t *testing.T) {
	db := gridtest.New()
	release := db.HoldConnect()
	defer release()

	s, c := newWrite(t, db, "f", WriteOptions{})
	require.NoError(t, s.Open(testContext(t)))

	s.DestroySoon()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("stream without writes must close immediately")
	}
	assert.Equal(t, 1, c.count(EventClose))
}

func TestWriteStream_DestroyDropsQueuedWrites(t *testing.T) {
	db := gridtest.New()
	s, c := newWrite(t, db, "f", WriteOptions{})

	_, err := s.WriteString("never lands")
	require.NoError(t, err)

	require.NoError(t, s.Destroy())
	assert.Equal(t, StateClosed, s.State())
	assert.False(t, s.Writable())
	assert.Equal(t, int64(0), s.Written())
	assert.Equal(t, 1, c.count(EventClose))

	_, err = s.WriteString("late")
	assert.ErrorIs(t, err, ErrNotWritable)
	assert.ErrorIs(t, s.End(nil), ErrNotWritable)
	assert.Empty(t, filterWrites(db.Ops()))
}

func TestWriteStream_DestroyCommitsLandedWrites(t *testing.T) {
	db := gridtest.New()
	s, _ := newWrite(t, db, "f", WriteOptions{})
	require.NoError(t, s.Open(testContext(t)))

	_, err := s.WriteString("landed")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Written() == 6 }, time.Second, time.Millisecond)

	require.NoError(t, s.Destroy())
	assert.Equal(t, "landed", readFile(t, db, "f"))
	assert.Equal(t, int64(6), s.Info().Length)
}

func TestWriteStream_AbortKeepsPreviousContent(t *testing.T) {
	db := gridtest.New()
	writeFile(t, db, "f", "old", 4)

	s, c := newWrite(t, db, "f", WriteOptions{})
	require.NoError(t, s.Open(testContext(t)))
	_, err := s.WriteString("new content")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Written() == 11 }, time.Second, time.Millisecond)

	boom := errors.New("client went away")
	s.Abort(boom)

	err = s.Wait(testContext(t))
	assert.ErrorIs(t, err, ErrWrite)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, c.Errors(), 1)
	assert.Equal(t, "old", readFile(t, db, "f"))
}

func TestWriteStream_WriteAfterEnd(t *testing.T) {
	db := gridtest.New()
	s, _ := newWrite(t, db, "f", WriteOptions{})
	require.NoError(t, s.Open(testContext(t)))
	require.NoError(t, s.End([]byte("x")))

	_, err := s.Write([]byte("y"))
	assert.ErrorIs(t, err, ErrNotWritable)
	assert.ErrorIs(t, s.End(nil), ErrNotWritable)
	require.NoError(t, s.Wait(testContext(t)))
	assert.Equal(t, "x", readFile(t, db, "f"))
}

type label string

func (l label) String() string { return "label:" + string(l) }

func TestWriteStream_WriteValue(t *testing.T) {
	db := gridtest.New()
	s, _ := newWrite(t, db, "f", WriteOptions{ChunkSize: 2})
	require.NoError(t, s.Open(testContext(t)))

	_, err := s.WriteValue([]byte("a"))
	require.NoError(t, err)
	_, err = s.WriteValue("b")
	require.NoError(t, err)
	_, err = s.WriteValue(label("c"))
	require.NoError(t, err)
	n, err := s.WriteValue(strings.NewReader("defgh"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	_, err = s.WriteValue(42)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	require.NoError(t, s.Close())
	assert.Equal(t, "ablabel:cdefgh", readFile(t, db, "f"))
	assert.Equal(t, []string{"a", "b", "label:c", "de", "fg", "h"}, filterWrites(db.Ops()))
}

func TestWriteStream_AppendExtendsFile(t *testing.T) {
	db := gridtest.New()
	writeFile(t, db, "log", "line1\n", 4)

	s, _ := newWrite(t, db, "log", WriteOptions{Mode: chunkstore.ModeAppend})
	require.NoError(t, s.Open(testContext(t)))
	_, err := s.WriteString("line2\n")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Equal(t, "line1\nline2\n", readFile(t, db, "log"))
	assert.Equal(t, 4, s.Info().ChunkSize)
}

func TestWriteStream_ConnectionFailure(t *testing.T) {
	db := gridtest.New()
	boom := errors.New("refused")
	db.FailConnect(boom)

	s, c := newWrite(t, db, "f", WriteOptions{})
	_, err := s.WriteString("data")
	require.NoError(t, err)
	require.NoError(t, s.Open(testContext(t)))

	err = s.Wait(testContext(t))
	assert.ErrorIs(t, err, connection.ErrConnection)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, c.Errors(), 1)
	assert.Equal(t, 1, c.count(EventClose))
	assert.False(t, s.Writable())
}

func TestWriteStream_OpenTwice(t *testing.T) {
	s, _ := newWrite(t, gridtest.New(), "f", WriteOptions{})
	require.NoError(t, s.Open(testContext(t)))
	assert.ErrorIs(t, s.Open(context.Background()), ErrAlreadyOpen)
	require.NoError(t, s.Close())
}

type streamMetrics struct {
	mu     sync.Mutex
	opened map[string]int
	closed map[string]int
	bytes  map[string]int
}

func newStreamMetrics() *streamMetrics {
	return &streamMetrics{opened: map[string]int{}, closed: map[string]int{}, bytes: map[string]int{}}
}

func (m *streamMetrics) StreamOpened(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened[dir]++
}

func (m *streamMetrics) StreamClosed(dir string, _ time.Duration, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed[dir]++
}

func (m *streamMetrics) RecordBytes(dir string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytes[dir] += n
}

func TestStreams_Metrics(t *testing.T) {
	db := gridtest.New()
	m := newStreamMetrics()

	w, _ := newWrite(t, db, "f", WriteOptions{Metrics: m, ChunkSize: 2})
	require.NoError(t, w.Open(testContext(t)))
	_, err := w.WriteString("hello")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := NewReadStream(db, "f", ReadOptions{Metrics: m})
	require.NoError(t, err)
	require.NoError(t, r.Open(testContext(t)))
	require.NoError(t, r.Wait(testContext(t)))

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, map[string]int{DirectionRead: 1, DirectionWrite: 1}, m.opened)
	assert.Equal(t, map[string]int{DirectionRead: 1, DirectionWrite: 1}, m.closed)
	assert.Equal(t, map[string]int{DirectionRead: 5, DirectionWrite: 5}, m.bytes)
}
