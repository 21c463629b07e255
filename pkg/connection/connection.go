// Package connection manages the lifecycle of one logical connection to a
// chunk database.
//
// A Handle is owned by exactly one file service or stream; it is never
// shared. Opening is asynchronous: Open returns immediately and reports the
// outcome through a callback and through state-change watchers, which is how
// the operation queue learns it may start draining.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/marmos91/dittogrid/internal/logger"
	"github.com/marmos91/dittogrid/pkg/chunkstore"
)

// State is the connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

var (
	// ErrConnection wraps every failure to open or close a connection.
	ErrConnection = errors.New("connection error")

	// ErrNotConnected is returned by Session when the handle is not connected.
	ErrNotConnected = errors.New("not connected")
)

// Watcher observes state transitions. err is set only when a transition to
// Disconnected was caused by a failed open.
type Watcher func(state State, err error)

// Handle owns one session to a chunk database.
//
// Thread Safety: Safe for concurrent use. Watchers and callbacks run without
// the internal lock held and may call back into the handle.
type Handle struct {
	db   chunkstore.Database
	name string

	mu       sync.Mutex
	state    State
	session  chunkstore.Session
	lastErr  error
	gen      uint64 // bumped by Close to orphan in-flight opens
	waiters  []func(error)
	watchers []Watcher
}

// New creates a disconnected handle over db. name is used in log lines.
func New(db chunkstore.Database, name string) *Handle {
	return &Handle{db: db, name: name}
}

// State returns the current state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err returns the error of the last failed open, or nil. It is cleared by
// the next Open and by Close.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

// Session returns the live session, or ErrNotConnected.
func (h *Handle) Session() (chunkstore.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != Connected {
		return nil, ErrNotConnected
	}
	return h.session, nil
}

// Watch registers fn for every subsequent state transition.
func (h *Handle) Watch(fn Watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.watchers = append(h.watchers, fn)
}

// Open starts connecting in the background and returns immediately.
//
// cb, if not nil, is called once the attempt settles: with nil on success or
// an error wrapping ErrConnection on failure. Calling Open while already
// connecting joins the pending attempt; calling it while connected invokes
// cb with nil right away.
func (h *Handle) Open(ctx context.Context, cb func(error)) {
	h.mu.Lock()
	switch h.state {
	case Connected:
		h.mu.Unlock()
		if cb != nil {
			cb(nil)
		}
		return
	case Connecting:
		if cb != nil {
			h.waiters = append(h.waiters, cb)
		}
		h.mu.Unlock()
		return
	}

	h.state = Connecting
	h.lastErr = nil
	if cb != nil {
		h.waiters = append(h.waiters, cb)
	}
	gen := h.gen
	watchers := h.snapshotWatchers()
	h.mu.Unlock()

	notify(watchers, Connecting, nil)
	logger.Debug("Connection %s: connecting", h.name)

	go h.connect(ctx, gen)
}

func (h *Handle) connect(ctx context.Context, gen uint64) {
	sess, err := h.db.Connect(ctx)

	h.mu.Lock()
	if gen != h.gen {
		// Closed while connecting; the session is not ours any more.
		h.mu.Unlock()
		if sess != nil {
			_ = sess.Close()
		}
		return
	}

	var next State
	if err != nil {
		err = fmt.Errorf("%s: %w: %w", h.name, ErrConnection, err)
		next = Disconnected
		h.lastErr = err
	} else {
		next = Connected
		h.session = sess
	}
	h.state = next
	waiters := h.waiters
	h.waiters = nil
	watchers := h.snapshotWatchers()
	h.mu.Unlock()

	if err != nil {
		logger.Warn("Connection %s: open failed: %v", h.name, err)
	} else {
		logger.Debug("Connection %s: connected", h.name)
	}

	notify(watchers, next, err)
	for _, cb := range waiters {
		cb(err)
	}
}

// Connect opens the handle and blocks until the attempt settles or ctx is
// done.
func (h *Handle) Connect(ctx context.Context) error {
	done := make(chan error, 1)
	h.Open(ctx, func(err error) { done <- err })

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears down the session and returns to Disconnected. Closing a
// disconnected handle is a no-op. A pending open is abandoned; its waiters
// receive ErrConnection.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.state == Disconnected {
		h.lastErr = nil
		h.mu.Unlock()
		return nil
	}

	sess := h.session
	h.session = nil
	h.state = Disconnected
	h.lastErr = nil
	h.gen++
	waiters := h.waiters
	h.waiters = nil
	watchers := h.snapshotWatchers()
	h.mu.Unlock()

	var err error
	if sess != nil {
		if cerr := sess.Close(); cerr != nil {
			err = fmt.Errorf("%s: %w: %w", h.name, ErrConnection, cerr)
		}
	}

	logger.Debug("Connection %s: closed", h.name)
	notify(watchers, Disconnected, nil)

	abandoned := fmt.Errorf("%s: %w: closed while connecting", h.name, ErrConnection)
	for _, cb := range waiters {
		cb(abandoned)
	}
	return err
}

func (h *Handle) snapshotWatchers() []Watcher {
	return append([]Watcher(nil), h.watchers...)
}

func notify(watchers []Watcher, state State, err error) {
	for _, w := range watchers {
		w(state, err)
	}
}
