// Package opqueue implements the single-flight FIFO operation queue that
// serializes every operation issued through one connection.
//
// The queue is an explicit state machine with two states:
//
//	Idle ──dequeue-and-start──▶ Executing(entry) ──done()──▶ Idle
//
// It leaves Executing only when the running operation calls the done
// function it was handed. Returning from the operation function does not
// count: operations are asynchronous and may finish their store work long
// after they return. At most one operation runs at a time and operations
// run in submission order. None is skipped or run twice.
//
// The queue drives itself when the connection reports Connected, and after
// every completion. When the connection fails to open, queued operations are
// still run one by one but receive the connection error instead of a
// session.
package opqueue

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/dittogrid/internal/logger"
	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/marmos91/dittogrid/pkg/connection"
)

// Op is one queued unit of work.
//
// sess is the live session, or nil when the connection failed to open; in
// that case connErr carries the failure and the operation must report it
// through its own result. done must be called exactly once when all of the
// operation's work has finished; later calls are ignored.
type Op func(ctx context.Context, sess chunkstore.Session, connErr error, done func())

type entry struct {
	id        uint64
	name      string
	op        Op
	submitted time.Time
}

// Queue is a single-flight FIFO bound to one connection handle.
//
// Thread Safety: Safe for concurrent use. Operations run on their own
// goroutine and may call Submit reentrantly; such submissions are appended
// behind everything already queued.
type Queue struct {
	ctx     context.Context
	name    string
	conn    *connection.Handle
	metrics Metrics

	mu        sync.Mutex
	entries   []*entry
	executing *entry // nil means Idle
	started   time.Time
	nextID    uint64
	listeners []func()
}

// New creates a queue for conn. ctx is handed to every operation; name
// labels log lines and metrics. A nil metrics disables collection.
func New(ctx context.Context, name string, conn *connection.Handle, metrics Metrics) *Queue {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	q := &Queue{
		ctx:     ctx,
		name:    name,
		conn:    conn,
		metrics: metrics,
	}

	conn.Watch(func(state connection.State, err error) {
		if state == connection.Connected || err != nil {
			q.Drive()
		}
	})

	return q
}

// Submit appends op to the queue and drives it. It returns the entry id.
func (q *Queue) Submit(name string, op Op) uint64 {
	q.mu.Lock()
	q.nextID++
	e := &entry{id: q.nextID, name: name, op: op, submitted: time.Now()}
	q.entries = append(q.entries, e)
	depth := len(q.entries)
	q.mu.Unlock()

	q.metrics.RecordSubmit(q.name)
	q.metrics.SetDepth(q.name, depth)
	logger.Debug("Queue %s: submitted #%d %s (depth=%d)", q.name, e.id, name, depth)

	q.Drive()
	return e.id
}

// Drive starts the head entry if the queue is idle and the connection is
// usable: either connected, or failed to open (the entry then receives the
// failure).
func (q *Queue) Drive() {
	q.mu.Lock()
	if q.executing != nil || len(q.entries) == 0 {
		q.mu.Unlock()
		return
	}

	sess, err := q.conn.Session()
	var connErr error
	if err != nil {
		connErr = q.conn.Err()
		if connErr == nil {
			// Disconnected or still connecting: wait for a transition.
			q.mu.Unlock()
			return
		}
		sess = nil
	}

	e := q.entries[0]
	q.entries[0] = nil
	q.entries = q.entries[1:]
	q.executing = e
	q.started = time.Now()
	depth := len(q.entries)
	q.mu.Unlock()

	q.metrics.SetDepth(q.name, depth)
	q.metrics.ObserveWait(q.name, e.name, q.started.Sub(e.submitted))
	logger.Debug("Queue %s: executing #%d %s", q.name, e.id, e.name)

	var once sync.Once
	done := func() {
		once.Do(func() { q.complete(e) })
	}

	go e.op(q.ctx, sess, connErr, done)
}

// complete is the only transition out of Executing.
func (q *Queue) complete(e *entry) {
	q.mu.Lock()
	if q.executing != e {
		q.mu.Unlock()
		logger.Warn("Queue %s: completion for #%d %s while not executing it", q.name, e.id, e.name)
		return
	}
	q.executing = nil
	ran := time.Since(q.started)
	listeners := q.listeners
	q.listeners = nil
	q.mu.Unlock()

	q.metrics.ObserveRun(q.name, e.name, ran)
	logger.Debug("Queue %s: completed #%d %s in %s", q.name, e.id, e.name, ran)

	for _, fn := range listeners {
		fn()
	}

	q.Drive()
}

// AfterNextCompletion registers fn to run once, right after the next
// operation completes and before the following one starts. It returns false
// without registering when nothing is queued or executing, so callers can
// act immediately instead of waiting forever.
func (q *Queue) AfterNextCompletion(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.executing == nil && len(q.entries) == 0 {
		return false
	}
	q.listeners = append(q.listeners, fn)
	return true
}

// Len returns the number of entries waiting to execute.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Outstanding returns waiting plus executing entries.
func (q *Queue) Outstanding() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.entries)
	if q.executing != nil {
		n++
	}
	return n
}

// Busy reports whether an operation is executing.
func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.executing != nil
}

// Name returns the queue label.
func (q *Queue) Name() string {
	return q.name
}
