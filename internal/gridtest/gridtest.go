// Package gridtest provides a controllable chunk database for tests: it
// wraps the in-memory backend and lets a test delay or fail connections,
// slow down individual session calls and observe the order in which the
// store saw them.
package gridtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/marmos91/dittogrid/pkg/chunkstore/memory"
)

// Call is one observed session call.
type Call struct {
	Op    string
	Name  string
	Start time.Time
	End   time.Time
}

// Database wraps an in-memory chunk database.
type Database struct {
	*chunkstore.KVDatabase

	mu          sync.Mutex
	connectErr  error
	connectGate chan struct{}
	latency     map[string]time.Duration
	calls       []Call
	connects    int
	active      int
	maxActive   int
}

var _ chunkstore.Database = (*Database)(nil)

// New returns a fresh controllable database.
func New() *Database {
	return &Database{
		KVDatabase: memory.NewDatabase(),
		latency:    make(map[string]time.Duration),
	}
}

// FailConnect makes every subsequent Connect fail with err (nil restores).
func (d *Database) FailConnect(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectErr = err
}

// HoldConnect blocks Connect until the returned function is called.
func (d *Database) HoldConnect() (release func()) {
	gate := make(chan struct{})
	d.mu.Lock()
	d.connectGate = gate
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			if d.connectGate == gate {
				d.connectGate = nil
			}
			d.mu.Unlock()
			close(gate)
		})
	}
}

// SetLatency delays every session call of kind op ("exists", "open",
// "read", "write", "close", "unlink").
func (d *Database) SetLatency(op string, latency time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latency[op] = latency
}

// Calls returns the observed session calls in completion order.
func (d *Database) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// Ops returns "op:name" for every observed call.
func (d *Database) Ops() []string {
	calls := d.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op + ":" + c.Name
	}
	return ops
}

// Connects returns how many sessions were opened successfully.
func (d *Database) Connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

// MaxConcurrent returns the largest number of overlapping session calls seen.
func (d *Database) MaxConcurrent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxActive
}

// Connect honours FailConnect and HoldConnect before delegating.
func (d *Database) Connect(ctx context.Context) (chunkstore.Session, error) {
	d.mu.Lock()
	gate := d.connectGate
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	err := d.connectErr
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	sess, err := d.KVDatabase.Connect(ctx)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.connects++
	d.mu.Unlock()
	return &session{Session: sess, db: d}, nil
}

func (d *Database) enter(op string) (time.Time, time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active++
	if d.active > d.maxActive {
		d.maxActive = d.active
	}
	return time.Now(), d.latency[op]
}

func (d *Database) leave(op, name string, start time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active--
	d.calls = append(d.calls, Call{Op: op, Name: name, Start: start, End: time.Now()})
}

func (d *Database) track(op, name string) func() {
	start, latency := d.enter(op)
	if latency > 0 {
		time.Sleep(latency)
	}
	return func() { d.leave(op, name, start) }
}

type session struct {
	chunkstore.Session
	db *Database
}

func (s *session) Exists(ctx context.Context, name, root string) (bool, error) {
	defer s.db.track("exists", name)()
	return s.Session.Exists(ctx, name, root)
}

func (s *session) Open(ctx context.Context, name string, mode chunkstore.Mode, opts chunkstore.Options) (chunkstore.File, error) {
	defer s.db.track("open", name)()
	f, err := s.Session.Open(ctx, name, mode, opts)
	if err != nil {
		return nil, err
	}
	return &file{File: f, db: s.db}, nil
}

func (s *session) Read(ctx context.Context, name string, length, offset int64, opts chunkstore.Options) ([]byte, error) {
	defer s.db.track("read", fmt.Sprintf("%s@%d", name, offset))()
	return s.Session.Read(ctx, name, length, offset, opts)
}

func (s *session) Unlink(ctx context.Context, name, root string) error {
	defer s.db.track("unlink", name)()
	return s.Session.Unlink(ctx, name, root)
}

func (s *session) List(ctx context.Context, root string) ([]chunkstore.FileInfo, error) {
	lister, ok := s.Session.(chunkstore.Lister)
	if !ok {
		return nil, fmt.Errorf("session does not support listing")
	}
	return lister.List(ctx, root)
}

type file struct {
	chunkstore.File
	db *Database
}

func (f *file) Write(ctx context.Context, data []byte) error {
	defer f.db.track("write", string(data))()
	return f.File.Write(ctx, data)
}

func (f *file) Close(ctx context.Context) (chunkstore.FileInfo, error) {
	defer f.db.track("close", f.File.Info().Name)()
	return f.File.Close(ctx)
}
