package gridstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/marmos91/dittogrid/internal/logger"
	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/marmos91/dittogrid/pkg/connection"
	"github.com/marmos91/dittogrid/pkg/opqueue"
)

// WriteOptions configures a WriteStream.
type WriteOptions struct {
	// Mode is ModeOverwrite (default) or ModeAppend.
	Mode chunkstore.Mode

	// Root is the root collection (default: "fs").
	Root string

	// ChunkSize applies to new files (default: store default).
	ChunkSize int

	ContentType string
	Metadata    map[string]any

	// Metrics observes the stream. Nil disables it.
	Metrics Metrics

	// QueueMetrics observes the stream's write queue. Nil disables it.
	QueueMetrics opqueue.Metrics
}

// WriteStream writes one file through its own single-flight queue.
//
// The file open is the first queue entry; every Write adds one more. The
// stream therefore accepts writes before Open and they land, in order, once
// the connection is up.
//
// Thread Safety: Safe for concurrent use. Writes from different goroutines
// land in the order Write was called.
type WriteStream struct {
	emitter

	db      chunkstore.Database
	name    string
	opts    WriteOptions
	conn    *connection.Handle
	queue   *opqueue.Queue
	metrics Metrics

	mu       sync.Mutex
	ctx      context.Context
	state    State
	writable bool
	writes   int
	file     chunkstore.File
	info     chunkstore.FileInfo
	written  int64
	err      error
	opened   time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewWriteStream creates a write stream for name and queues the file open.
// Read mode is rejected with ErrWrongDirection.
func NewWriteStream(db chunkstore.Database, name string, opts WriteOptions) (*WriteStream, error) {
	if opts.Mode == "" {
		opts.Mode = chunkstore.ModeOverwrite
	}
	mode, err := chunkstore.ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	if !mode.Writable() {
		return nil, ErrWrongDirection
	}
	if opts.Root == "" {
		opts.Root = chunkstore.DefaultRoot
	}

	label := "write:" + opts.Root + "/" + name
	conn := connection.New(db, label)

	s := &WriteStream{
		db:       db,
		name:     name,
		opts:     opts,
		conn:     conn,
		queue:    opqueue.New(context.Background(), label, conn, opts.QueueMetrics),
		metrics:  orNoop(opts.Metrics),
		ctx:      context.Background(),
		writable: true,
		done:     make(chan struct{}),
	}
	s.queue.Submit("open", s.openFile)
	return s, nil
}

// Open connects in the background; the queued open and writes then run in
// order. ctx bounds every store call the stream makes.
func (s *WriteStream) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateCreated {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	s.state = StateOpening
	s.ctx = ctx
	s.opened = time.Now()
	s.mu.Unlock()

	s.metrics.StreamOpened(DirectionWrite)
	s.conn.Open(ctx, nil)
	return nil
}

func (s *WriteStream) storeContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *WriteStream) openFile(_ context.Context, sess chunkstore.Session, connErr error, done func()) {
	defer done()
	if connErr != nil {
		s.fail(connErr)
		return
	}

	ctx := s.storeContext()
	f, err := sess.Open(ctx, s.name, s.opts.Mode, chunkstore.Options{
		Root:        s.opts.Root,
		ChunkSize:   s.opts.ChunkSize,
		ContentType: s.opts.ContentType,
		Metadata:    s.opts.Metadata,
	})
	if err != nil {
		s.fail(fmt.Errorf("%w: open %s/%s: %w", ErrWrite, s.opts.Root, s.name, err))
		return
	}

	s.mu.Lock()
	if s.state == StateClosed {
		// Destroyed while opening; the session close abandoned f.
		s.mu.Unlock()
		return
	}
	s.file = f
	s.info = f.Info()
	if s.state == StateOpening {
		s.state = StateActive
		if !s.writable {
			s.state = StateDraining
		}
	}
	s.mu.Unlock()

	logger.Debug("Write stream %s/%s: open (mode=%s)", s.opts.Root, s.name, s.opts.Mode)
	s.emit(Event{Kind: EventOpen})
}

// Write queues a copy of p. It never waits for the store; failures are
// reported through EventError. It returns ErrNotWritable after End or
// Destroy.
func (s *WriteStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	if !s.writable {
		s.mu.Unlock()
		return 0, ErrNotWritable
	}
	s.writes++
	s.mu.Unlock()

	s.enqueue(append([]byte(nil), p...))
	return len(p), nil
}

// WriteString queues s as bytes.
func (s *WriteStream) WriteString(str string) (int, error) {
	return s.Write([]byte(str))
}

// WriteValue queues a byte-like value: []byte, string, fmt.Stringer or
// io.Reader. Any other type fails with ErrInvalidPayload.
func (s *WriteStream) WriteValue(v any) (int64, error) {
	switch v := v.(type) {
	case []byte:
		n, err := s.Write(v)
		return int64(n), err
	case string:
		n, err := s.WriteString(v)
		return int64(n), err
	case fmt.Stringer:
		n, err := s.WriteString(v.String())
		return int64(n), err
	case io.Reader:
		return s.ReadFrom(v)
	default:
		return 0, fmt.Errorf("got %T: %w", v, ErrInvalidPayload)
	}
}

// ReadFrom queues the content of r in chunk-sized writes.
func (s *WriteStream) ReadFrom(r io.Reader) (int64, error) {
	size := s.opts.ChunkSize
	if size <= 0 {
		size = chunkstore.DefaultChunkSize
	}

	var total int64
	buf := make([]byte, size)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if _, werr := s.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

func (s *WriteStream) enqueue(data []byte) {
	s.queue.Submit("write", func(_ context.Context, _ chunkstore.Session, connErr error, done func()) {
		defer done()
		if connErr != nil {
			s.fail(connErr)
			return
		}

		s.mu.Lock()
		f, ctx := s.file, s.ctx
		s.mu.Unlock()
		if f == nil {
			// Closed or failed before this write ran.
			return
		}

		if err := f.Write(ctx, data); err != nil {
			s.fail(fmt.Errorf("%w: %s/%s: %w", ErrWrite, s.opts.Root, s.name, err))
			return
		}

		s.mu.Lock()
		s.written += int64(len(data))
		s.mu.Unlock()
		s.metrics.RecordBytes(DirectionWrite, len(data))
	})
}

// End queues an optional final write followed by the commit and close.
func (s *WriteStream) End(p []byte) error {
	s.mu.Lock()
	if !s.writable {
		s.mu.Unlock()
		return ErrNotWritable
	}
	s.writable = false
	if s.state == StateActive {
		s.state = StateDraining
	}
	if len(p) > 0 {
		s.writes++
	}
	s.mu.Unlock()

	if len(p) > 0 {
		s.enqueue(append([]byte(nil), p...))
	}

	s.queue.Submit("close", func(_ context.Context, _ chunkstore.Session, connErr error, done func()) {
		defer done()
		if connErr != nil {
			s.fail(connErr)
			return
		}
		if err := s.commit(); err != nil {
			s.fail(err)
			return
		}
		_ = s.Destroy()
	})
	return nil
}

// commit closes the file handle, which stores the document.
func (s *WriteStream) commit() error {
	s.mu.Lock()
	f, ctx := s.file, s.ctx
	s.file = nil
	s.mu.Unlock()

	if f == nil {
		return nil
	}

	info, err := f.Close(ctx)
	if err != nil {
		return fmt.Errorf("%w: commit %s/%s: %w", ErrWrite, s.opts.Root, s.name, err)
	}

	s.mu.Lock()
	s.info = info
	s.mu.Unlock()
	logger.Debug("Write stream %s/%s: committed %d bytes md5=%s", info.Root, info.Name, info.Length, info.MD5)
	return nil
}

// Destroy stops the stream now: it commits whatever writes have landed,
// closes the connection and emits EventClose. Queued writes that have not
// run are dropped and a write in flight is not waited for. After a failure
// nothing is committed.
func (s *WriteStream) Destroy() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.writable = false
		failure := s.err
		s.mu.Unlock()

		if failure == nil {
			err = s.commit()
		}
		if cerr := s.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}

		s.mu.Lock()
		s.file = nil
		if err != nil && s.err == nil {
			s.err = err
		}
		failure = s.err
		s.mu.Unlock()

		s.metrics.StreamClosed(DirectionWrite, lifetime(s.opened), failure)
		logger.Debug("Write stream %s/%s: closed", s.opts.Root, s.name)
		s.emit(Event{Kind: EventClose})
		close(s.done)
	})
	return err
}

// DestroySoon closes the stream once every queued write has landed.
//
// With two or more entries outstanding it waits for one completion and
// checks again; with one outstanding it destroys after that entry
// completes. A stream that was never written to is destroyed immediately.
func (s *WriteStream) DestroySoon() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.writable = false
	if s.state == StateActive {
		s.state = StateDraining
	}
	writes := s.writes
	s.mu.Unlock()

	if writes == 0 {
		_ = s.Destroy()
		return
	}
	s.destroyAfterDrain()
}

func (s *WriteStream) destroyAfterDrain() {
	if s.queue.Outstanding() >= 2 {
		if s.queue.AfterNextCompletion(s.destroyAfterDrain) {
			return
		}
	} else if s.queue.AfterNextCompletion(func() { _ = s.Destroy() }) {
		return
	}
	_ = s.Destroy()
}

func (s *WriteStream) fail(err error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.writable = false
	s.err = err
	// Uncommitted; the session close abandons it.
	s.file = nil
	s.mu.Unlock()

	logger.Warn("Write stream %s/%s: %v", s.opts.Root, s.name, err)
	s.emit(Event{Kind: EventError, Err: err})
	_ = s.Destroy()
}

// Abort fails the stream with err. Nothing is committed: an overwrite leaves
// the previous content in place and the chunks written so far become orphans.
func (s *WriteStream) Abort(err error) {
	if err == nil {
		err = errors.New("aborted")
	}
	s.fail(fmt.Errorf("%w: %w", ErrWrite, err))
}

// Wait blocks until the stream closes and returns its error.
func (s *WriteStream) Wait(ctx context.Context) error {
	return wait(ctx, s)
}

// Close ends the stream and waits for the commit. It makes a WriteStream
// usable as an io.WriteCloser.
func (s *WriteStream) Close() error {
	if err := s.End(nil); err != nil && !errors.Is(err, ErrNotWritable) {
		return err
	}
	return s.Wait(s.storeContext())
}

// Done is closed once the stream has closed.
func (s *WriteStream) Done() <-chan struct{} {
	return s.done
}

// Err returns the error the stream failed with.
func (s *WriteStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// State returns the lifecycle state.
func (s *WriteStream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Writable reports whether Write still accepts data.
func (s *WriteStream) Writable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writable
}

// Written returns the number of bytes that have landed in the store.
func (s *WriteStream) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Info returns the file document; after close it is the committed one.
func (s *WriteStream) Info() chunkstore.FileInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Outstanding returns the number of queued plus running entries.
func (s *WriteStream) Outstanding() int {
	return s.queue.Outstanding()
}

var (
	_ io.WriteCloser  = (*WriteStream)(nil)
	_ io.StringWriter = (*WriteStream)(nil)
	_ io.ReaderFrom   = (*WriteStream)(nil)
)
