package gridstream

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/marmos91/dittogrid/internal/logger"
	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/marmos91/dittogrid/pkg/connection"
)

// ReadOptions configures a ReadStream.
type ReadOptions struct {
	// Root is the root collection (default: "fs").
	Root string

	// ChunkSize is the read size per cycle (default: the file's chunk size).
	ChunkSize int

	// Encoding, when set, decodes every chunk into Event.Text.
	Encoding Encoding

	// Paused opens the stream without issuing the first read.
	Paused bool

	// Offset is where reading starts.
	Offset int64

	// Length limits how many bytes are read (0: to end of file).
	Length int64

	// Metrics observes the stream. Nil disables it.
	Metrics Metrics
}

// ReadStream emits the content of one file as a sequence of chunks.
//
// Thread Safety: Safe for concurrent use. At most one read is in flight at a
// time; events are emitted from the goroutine that completed the read.
type ReadStream struct {
	emitter

	db      chunkstore.Database
	name    string
	opts    ReadOptions
	conn    *connection.Handle
	metrics Metrics

	mu        sync.Mutex
	ctx       context.Context
	state     State
	readable  bool
	paused    bool
	inFlight  bool
	sess      chunkstore.Session
	file      chunkstore.File
	info      chunkstore.FileInfo
	chunkSize int
	head      int64
	limit     int64
	dec       *decoder
	err       error
	opened    time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewReadStream creates a read stream over name. Nothing happens until Open.
func NewReadStream(db chunkstore.Database, name string, opts ReadOptions) (*ReadStream, error) {
	enc, err := ParseEncoding(string(opts.Encoding))
	if err != nil {
		return nil, err
	}
	if opts.Root == "" {
		opts.Root = chunkstore.DefaultRoot
	}
	if opts.Offset < 0 || opts.Length < 0 {
		return nil, fmt.Errorf("offset %d length %d: %w", opts.Offset, opts.Length, chunkstore.ErrInvalidRange)
	}

	return &ReadStream{
		db:      db,
		name:    name,
		opts:    opts,
		conn:    connection.New(db, "read:"+opts.Root+"/"+name),
		metrics: orNoop(opts.Metrics),
		paused:  opts.Paused,
		dec:     newDecoder(enc),
		done:    make(chan struct{}),
	}, nil
}

// Open connects and opens the file in the background. Reading starts as
// soon as the file is open unless the stream is paused. Failures are
// reported through EventError.
func (s *ReadStream) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateCreated {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	s.state = StateOpening
	s.ctx = ctx
	s.opened = time.Now()
	s.mu.Unlock()

	s.metrics.StreamOpened(DirectionRead)
	s.conn.Open(ctx, s.onConnect)
	return nil
}

func (s *ReadStream) onConnect(err error) {
	if err != nil {
		s.fail(err)
		return
	}

	sess, err := s.conn.Session()
	if err != nil {
		s.fail(fmt.Errorf("%w: %w", ErrConnection, err))
		return
	}

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	f, err := sess.Open(ctx, s.name, chunkstore.ModeRead, chunkstore.Options{Root: s.opts.Root})
	if err != nil {
		s.fail(fmt.Errorf("open %s/%s: %w", s.opts.Root, s.name, err))
		return
	}
	info := f.Info()

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		_, _ = f.Close(ctx)
		return
	}
	if s.opts.Offset > info.Length {
		s.mu.Unlock()
		_, _ = f.Close(ctx)
		s.fail(fmt.Errorf("offset %d for file of length %d: %w", s.opts.Offset, info.Length, chunkstore.ErrInvalidRange))
		return
	}

	s.sess = sess
	s.file = f
	s.info = info
	s.chunkSize = s.opts.ChunkSize
	if s.chunkSize <= 0 {
		s.chunkSize = info.ChunkSize
	}
	s.head = s.opts.Offset
	s.limit = info.Length
	if s.opts.Length > 0 && s.head+s.opts.Length < s.limit {
		s.limit = s.head + s.opts.Length
	}
	s.state = StateActive
	s.readable = true
	empty := s.head == s.limit
	s.mu.Unlock()

	logger.Debug("Read stream %s/%s: open (length=%d chunk=%d)", info.Root, info.Name, info.Length, s.chunkSize)
	s.emit(Event{Kind: EventOpen})

	if empty {
		s.finish()
		return
	}
	_ = s.advance()
}

// advance issues the next read unless the stream is paused or a read is
// already in flight.
func (s *ReadStream) advance() error {
	s.mu.Lock()
	if s.state == StateCreated || s.state == StateOpening {
		// Reading starts once the file is open.
		s.mu.Unlock()
		return nil
	}
	if !s.readable {
		s.mu.Unlock()
		return ErrNotReadable
	}
	if s.paused || s.inFlight {
		s.mu.Unlock()
		return nil
	}

	offset := s.head
	length := min(int64(s.chunkSize), s.limit-offset)
	s.inFlight = true
	sess, ctx := s.sess, s.ctx
	s.mu.Unlock()

	go s.read(ctx, sess, length, offset)
	return nil
}

func (s *ReadStream) read(ctx context.Context, sess chunkstore.Session, length, offset int64) {
	data, err := sess.Read(ctx, s.name, length, offset, chunkstore.Options{Root: s.opts.Root})

	s.mu.Lock()
	if s.state == StateClosed {
		// Destroyed while the read was in flight.
		s.inFlight = false
		s.mu.Unlock()
		return
	}
	if err == nil && len(data) == 0 {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		s.inFlight = false
		s.mu.Unlock()
		s.fail(fmt.Errorf("%w: %s/%s at %d: %w", ErrRead, s.opts.Root, s.name, offset, err))
		return
	}

	s.head += int64(len(data))
	ended := s.head >= s.limit
	text := s.dec.decode(data)
	if ended {
		// The last chunk carries any held-back text.
		text += s.dec.flush()
	}
	s.mu.Unlock()

	// inFlight stays set while listeners run, so a Resume from a listener
	// cannot start the next read before this chunk is delivered.
	s.metrics.RecordBytes(DirectionRead, len(data))
	s.emit(Event{Kind: EventData, Data: data, Text: text})

	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()

	if ended {
		s.finish()
		return
	}
	_ = s.advance()
}

// finish emits end, then closes the stream.
func (s *ReadStream) finish() {
	logger.Debug("Read stream %s/%s: end", s.opts.Root, s.name)
	s.emit(Event{Kind: EventEnd})
	_ = s.Destroy()
}

// Pause withholds the next read. A read already in flight still completes
// and is emitted.
func (s *ReadStream) Pause() {
	s.mu.Lock()
	if s.paused || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.paused = true
	s.mu.Unlock()

	s.emit(Event{Kind: EventPause})
}

// Resume clears the pause and issues the next read.
func (s *ReadStream) Resume() error {
	s.mu.Lock()
	if s.state == StateClosed || (s.state == StateActive && !s.readable) || s.err != nil {
		s.mu.Unlock()
		return ErrNotReadable
	}
	wasPaused := s.paused
	s.paused = false
	s.mu.Unlock()

	if wasPaused {
		s.emit(Event{Kind: EventResume})
	}
	return s.advance()
}

// SetEncoding changes the encoding applied to subsequent chunks.
func (s *ReadStream) SetEncoding(name string) error {
	enc, err := ParseEncoding(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dec = newDecoder(enc)
	return nil
}

// Encoding returns the current encoding.
func (s *ReadStream) Encoding() Encoding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dec.enc
}

// Destroy closes the file handle and the connection and emits EventClose.
func (s *ReadStream) Destroy() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.readable = false
		f, ctx := s.file, s.ctx
		s.file = nil
		s.sess = nil
		failure := s.err
		s.mu.Unlock()

		if f != nil {
			_, _ = f.Close(ctx)
		}
		err = s.conn.Close()

		s.metrics.StreamClosed(DirectionRead, lifetime(s.opened), failure)
		logger.Debug("Read stream %s/%s: closed", s.opts.Root, s.name)
		s.emit(Event{Kind: EventClose})
		close(s.done)
	})
	return err
}

func (s *ReadStream) fail(err error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.readable = false
	s.err = err
	s.mu.Unlock()

	logger.Warn("Read stream %s/%s: %v", s.opts.Root, s.name, err)
	s.emit(Event{Kind: EventError, Err: err})
	_ = s.Destroy()
}

// Pipe copies the stream into w, opening it first if needed, and returns
// once it has closed. With an encoding set the decoded text is written.
func (s *ReadStream) Pipe(ctx context.Context, w io.Writer) (int64, error) {
	var (
		mu       sync.Mutex
		n        int64
		writeErr error
		detached bool
	)

	s.On(EventData, func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		if writeErr != nil || detached {
			return
		}

		var (
			m   int
			err error
		)
		if s.Encoding() != EncodingNone {
			m, err = io.WriteString(w, ev.Text)
		} else {
			m, err = w.Write(ev.Data)
		}
		n += int64(m)
		if err != nil {
			writeErr = err
			go s.fail(fmt.Errorf("pipe: %w", err))
		}
	})

	if s.State() == StateCreated {
		if err := s.Open(ctx); err != nil {
			return 0, err
		}
	} else if s.Paused() {
		_ = s.Resume()
	}

	err := s.Wait(ctx)

	// A read still in flight after ctx ends must not reach w once Pipe has
	// returned. Taking mu also waits out a write already in progress.
	mu.Lock()
	defer mu.Unlock()
	detached = true
	if writeErr != nil {
		return n, writeErr
	}
	return n, err
}

// Wait blocks until the stream closes and returns its error.
func (s *ReadStream) Wait(ctx context.Context) error {
	return wait(ctx, s)
}

// Done is closed once the stream has closed.
func (s *ReadStream) Done() <-chan struct{} {
	return s.done
}

// Err returns the error the stream failed with.
func (s *ReadStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// State returns the lifecycle state.
func (s *ReadStream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateActive && s.paused {
		return StatePaused
	}
	return s.state
}

// Readable reports whether the stream can still produce data.
func (s *ReadStream) Readable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readable
}

// Paused reports whether reads are withheld.
func (s *ReadStream) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Head returns the offset of the next byte to read.
func (s *ReadStream) Head() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head
}

// Length returns the file length, known once the stream is open.
func (s *ReadStream) Length() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.Length
}

// Info returns the file document, known once the stream is open.
func (s *ReadStream) Info() chunkstore.FileInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}
