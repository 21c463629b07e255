package connection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittogrid/internal/gridtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transitions struct {
	mu     sync.Mutex
	states []State
	errs   []error
}

func (tr *transitions) watch(s State, err error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.states = append(tr.states, s)
	tr.errs = append(tr.errs, err)
}

func (tr *transitions) snapshot() []State {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]State(nil), tr.states...)
}

func TestHandle_OpenIsAsynchronous(t *testing.T) {
	db := gridtest.New()
	release := db.HoldConnect()

	h := New(db, "test")
	done := make(chan error, 1)
	h.Open(context.Background(), func(err error) { done <- err })

	assert.Equal(t, Connecting, h.State())
	_, err := h.Session()
	assert.ErrorIs(t, err, ErrNotConnected)

	release()
	require.NoError(t, <-done)
	assert.Equal(t, Connected, h.State())

	sess, err := h.Session()
	require.NoError(t, err)
	assert.NotNil(t, sess)
}

func TestHandle_WatchersSeeTransitions(t *testing.T) {
	db := gridtest.New()
	h := New(db, "test")
	tr := &transitions{}
	h.Watch(tr.watch)

	require.NoError(t, h.Connect(context.Background()))
	require.NoError(t, h.Close())

	assert.Equal(t, []State{Connecting, Connected, Disconnected}, tr.snapshot())
}

func TestHandle_OpenFailure(t *testing.T) {
	db := gridtest.New()
	boom := errors.New("dial refused")
	db.FailConnect(boom)

	h := New(db, "test")
	tr := &transitions{}
	h.Watch(tr.watch)

	err := h.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, Disconnected, h.State())
	assert.ErrorIs(t, h.Err(), ErrConnection)

	tr.mu.Lock()
	assert.ErrorIs(t, tr.errs[len(tr.errs)-1], ErrConnection)
	tr.mu.Unlock()

	// A later successful open clears the recorded failure.
	db.FailConnect(nil)
	require.NoError(t, h.Connect(context.Background()))
	assert.NoError(t, h.Err())
}

func TestHandle_OpenWhileConnectingJoins(t *testing.T) {
	db := gridtest.New()
	release := db.HoldConnect()
	h := New(db, "test")

	var wg sync.WaitGroup
	wg.Add(2)
	h.Open(context.Background(), func(err error) { assert.NoError(t, err); wg.Done() })
	h.Open(context.Background(), func(err error) { assert.NoError(t, err); wg.Done() })

	release()
	wg.Wait()
	assert.Equal(t, 1, db.Connects())

	// Already connected: callback fires immediately.
	called := false
	h.Open(context.Background(), func(err error) { called = err == nil })
	assert.True(t, called)
}

func TestHandle_CloseWhileConnecting(t *testing.T) {
	db := gridtest.New()
	release := db.HoldConnect()
	h := New(db, "test")

	done := make(chan error, 1)
	h.Open(context.Background(), func(err error) { done <- err })
	require.NoError(t, h.Close())

	err := <-done
	assert.ErrorIs(t, err, ErrConnection)

	release()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, Disconnected, h.State())
}

func TestHandle_CloseDisconnectedIsNoop(t *testing.T) {
	h := New(gridtest.New(), "test")
	assert.NoError(t, h.Close())
	assert.Equal(t, Disconnected, h.State())
}

func TestHandle_ReopenAfterClose(t *testing.T) {
	db := gridtest.New()
	h := New(db, "test")

	require.NoError(t, h.Connect(context.Background()))
	first, _ := h.Session()
	require.NoError(t, h.Close())
	require.NoError(t, h.Connect(context.Background()))
	second, _ := h.Session()

	assert.NotSame(t, first, second)
	assert.Equal(t, 2, db.Connects())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "unknown", State(42).String())
}
