// Package gridfs provides whole-file operations over a chunk database.
//
// A Grid owns one connection handle and one operation queue. Every
// operation (put, get, delete, close and friends) is submitted to the queue
// as a single entry, so operations issued through one Grid reach the store
// in submission order, one at a time, even though each returns immediately
// with a Result.
//
// Usage:
//
//	grid := gridfs.New(ctx, db, gridfs.Config{})
//	grid.Open(ctx)
//
//	info, err := grid.Put(ctx, []byte("Hello John"), "Test", chunkstore.ModeOverwrite, nil).Wait(ctx)
//	data, err := grid.Get(ctx, "Test", nil).Wait(ctx)
//	_, err = grid.Delete(ctx, "Test").Wait(ctx)
package gridfs

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/dittogrid/internal/logger"
	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/marmos91/dittogrid/pkg/connection"
	"github.com/marmos91/dittogrid/pkg/opqueue"
)

var (
	// ErrNotFound is returned by Get, Delete and Stat for absent files.
	ErrNotFound = chunkstore.ErrNotFound

	// ErrInvalidPayload is returned by PutValue when the payload is not a
	// byte slice.
	ErrInvalidPayload = errors.New("payload is not a byte buffer")
)

// Config configures a Grid.
type Config struct {
	// Root is the root collection used when a call does not name one
	// (default: "fs").
	Root string

	// ChunkSize is the chunk size for new files (default: store default).
	ChunkSize int

	// ContentType is stored for new files without an explicit type.
	ContentType string

	// Metrics observes the grid's operation queue. Nil disables it.
	Metrics opqueue.Metrics
}

// PutOptions overrides Config for one Put.
type PutOptions struct {
	Root        string
	ChunkSize   int
	ContentType string
	Metadata    map[string]any
}

// GetOptions selects a byte range and root for one Get. A zero Length reads
// to the end of the file.
type GetOptions struct {
	Root   string
	Length int64
	Offset int64
}

// Grid is the file service.
//
// Thread Safety: Safe for concurrent use. Ordering is guaranteed only among
// calls made on the same Grid.
type Grid struct {
	db    chunkstore.Database
	conn  *connection.Handle
	queue *opqueue.Queue
	cfg   Config
}

// New creates a grid over db. The grid starts disconnected; operations
// submitted before Open are queued and run once the connection is up.
func New(ctx context.Context, db chunkstore.Database, cfg Config) *Grid {
	if cfg.Root == "" {
		cfg.Root = chunkstore.DefaultRoot
	}

	name := "grid:" + cfg.Root
	conn := connection.New(db, name)

	return &Grid{
		db:    db,
		conn:  conn,
		queue: opqueue.New(ctx, name, conn, cfg.Metrics),
		cfg:   cfg,
	}
}

// Root returns the default root collection.
func (g *Grid) Root() string {
	return g.cfg.Root
}

// State returns the connection state.
func (g *Grid) State() connection.State {
	return g.conn.State()
}

// Open establishes the connection in the background. The queue starts
// draining as soon as it is connected. The returned Result resolves with
// the connection outcome.
func (g *Grid) Open(ctx context.Context) *Result[struct{}] {
	res := newResult[struct{}]()
	g.conn.Open(ctx, func(err error) {
		res.resolve(struct{}{}, err)
	})
	return res
}

// Close queues a connection teardown behind every previously submitted
// operation. Operations submitted later wait for the next Open.
func (g *Grid) Close() *Result[struct{}] {
	res := newResult[struct{}]()
	g.queue.Submit("close", func(ctx context.Context, sess chunkstore.Session, connErr error, done func()) {
		defer done()
		if connErr != nil {
			res.resolve(struct{}{}, connErr)
			return
		}
		res.resolve(struct{}{}, g.conn.Close())
	})
	return res
}

func (g *Grid) root(root string) string {
	if root != "" {
		return root
	}
	return g.cfg.Root
}

// Put stores data under name, overwriting (ModeOverwrite) or extending
// (ModeAppend) any existing file. The Result carries the committed file
// document, including its MD5. data is copied, so the caller may reuse it
// as soon as Put returns.
func (g *Grid) Put(ctx context.Context, data []byte, name string, mode chunkstore.Mode, opts *PutOptions) *Result[chunkstore.FileInfo] {
	res := newResult[chunkstore.FileInfo]()
	data = append([]byte(nil), data...)
	if opts == nil {
		opts = &PutOptions{}
	}
	options := chunkstore.Options{
		Root:        g.root(opts.Root),
		ChunkSize:   opts.ChunkSize,
		ContentType: opts.ContentType,
		Metadata:    opts.Metadata,
	}
	if options.ChunkSize == 0 {
		options.ChunkSize = g.cfg.ChunkSize
	}
	if options.ContentType == "" {
		options.ContentType = g.cfg.ContentType
	}

	g.queue.Submit("put", func(_ context.Context, sess chunkstore.Session, connErr error, done func()) {
		defer done()
		if connErr != nil {
			res.resolve(chunkstore.FileInfo{}, connErr)
			return
		}
		if !mode.Writable() {
			res.resolve(chunkstore.FileInfo{}, fmt.Errorf("put %s with mode %q: %w", name, mode, chunkstore.ErrInvalidMode))
			return
		}
		res.resolve(put(ctx, sess, data, name, mode, options))
	})
	return res
}

func put(ctx context.Context, sess chunkstore.Session, data []byte, name string, mode chunkstore.Mode, options chunkstore.Options) (chunkstore.FileInfo, error) {
	f, err := sess.Open(ctx, name, mode, options)
	if err != nil {
		return chunkstore.FileInfo{}, fmt.Errorf("put %s: %w", name, err)
	}
	if err := f.Write(ctx, data); err != nil {
		return chunkstore.FileInfo{}, fmt.Errorf("put %s: %w", name, err)
	}
	info, err := f.Close(ctx)
	if err != nil {
		return chunkstore.FileInfo{}, fmt.Errorf("put %s: %w", name, err)
	}
	logger.Debug("Put %s/%s: %d bytes md5=%s", info.Root, info.Name, info.Length, info.MD5)
	return info, nil
}

// PutValue is Put for untyped payloads. Anything other than []byte fails
// with ErrInvalidPayload, delivered through the Result in queue order.
func (g *Grid) PutValue(ctx context.Context, value any, name string, mode chunkstore.Mode, opts *PutOptions) *Result[chunkstore.FileInfo] {
	if data, ok := value.([]byte); ok {
		return g.Put(ctx, data, name, mode, opts)
	}

	res := newResult[chunkstore.FileInfo]()
	g.queue.Submit("put", func(_ context.Context, _ chunkstore.Session, _ error, done func()) {
		defer done()
		res.resolve(chunkstore.FileInfo{}, fmt.Errorf("put %s: got %T: %w", name, value, ErrInvalidPayload))
	})
	return res
}

// Get reads name. Absent files fail with ErrNotFound without any read being
// attempted.
func (g *Grid) Get(ctx context.Context, name string, opts *GetOptions) *Result[[]byte] {
	res := newResult[[]byte]()
	if opts == nil {
		opts = &GetOptions{}
	}
	root := g.root(opts.Root)

	g.queue.Submit("get", func(_ context.Context, sess chunkstore.Session, connErr error, done func()) {
		defer done()
		if connErr != nil {
			res.resolve(nil, connErr)
			return
		}

		exists, err := sess.Exists(ctx, name, root)
		if err != nil {
			res.resolve(nil, fmt.Errorf("get %s: %w", name, err))
			return
		}
		if !exists {
			res.resolve(nil, fmt.Errorf("get %s/%s: %w", root, name, ErrNotFound))
			return
		}

		data, err := sess.Read(ctx, name, opts.Length, opts.Offset, chunkstore.Options{Root: root})
		if err != nil {
			res.resolve(nil, fmt.Errorf("get %s: %w", name, err))
			return
		}
		res.resolve(data, nil)
	})
	return res
}

// Delete removes name from the grid's root. Deleting an absent file fails
// with ErrNotFound.
func (g *Grid) Delete(ctx context.Context, name string) *Result[struct{}] {
	res := newResult[struct{}]()
	root := g.cfg.Root

	g.queue.Submit("delete", func(_ context.Context, sess chunkstore.Session, connErr error, done func()) {
		defer done()
		if connErr != nil {
			res.resolve(struct{}{}, connErr)
			return
		}

		exists, err := sess.Exists(ctx, name, root)
		if err != nil {
			res.resolve(struct{}{}, fmt.Errorf("delete %s: %w", name, err))
			return
		}
		if !exists {
			res.resolve(struct{}{}, fmt.Errorf("delete %s/%s: %w", root, name, ErrNotFound))
			return
		}

		if err := sess.Unlink(ctx, name, root); err != nil {
			res.resolve(struct{}{}, fmt.Errorf("delete %s: %w", name, err))
			return
		}
		logger.Debug("Deleted %s/%s", root, name)
		res.resolve(struct{}{}, nil)
	})
	return res
}

// Exists reports whether name exists in the grid's root.
func (g *Grid) Exists(ctx context.Context, name string) *Result[bool] {
	res := newResult[bool]()
	root := g.cfg.Root

	g.queue.Submit("exists", func(_ context.Context, sess chunkstore.Session, connErr error, done func()) {
		defer done()
		if connErr != nil {
			res.resolve(false, connErr)
			return
		}
		res.resolve(sess.Exists(ctx, name, root))
	})
	return res
}

// Stat returns the file document of name in root (the grid's root when
// empty).
func (g *Grid) Stat(ctx context.Context, name, root string) *Result[chunkstore.FileInfo] {
	res := newResult[chunkstore.FileInfo]()
	root = g.root(root)

	g.queue.Submit("stat", func(_ context.Context, sess chunkstore.Session, connErr error, done func()) {
		defer done()
		if connErr != nil {
			res.resolve(chunkstore.FileInfo{}, connErr)
			return
		}

		f, err := sess.Open(ctx, name, chunkstore.ModeRead, chunkstore.Options{Root: root})
		if err != nil {
			res.resolve(chunkstore.FileInfo{}, fmt.Errorf("stat %s: %w", name, err))
			return
		}
		info := f.Info()
		_, _ = f.Close(ctx)
		res.resolve(info, nil)
	})
	return res
}

// List returns the files in root (the grid's root when empty). It fails
// when the store cannot enumerate files.
func (g *Grid) List(ctx context.Context, root string) *Result[[]chunkstore.FileInfo] {
	res := newResult[[]chunkstore.FileInfo]()
	root = g.root(root)

	g.queue.Submit("list", func(_ context.Context, sess chunkstore.Session, connErr error, done func()) {
		defer done()
		if connErr != nil {
			res.resolve(nil, connErr)
			return
		}

		lister, ok := sess.(chunkstore.Lister)
		if !ok {
			res.resolve(nil, fmt.Errorf("list %s: store does not support listing", root))
			return
		}
		res.resolve(lister.List(ctx, root))
	})
	return res
}
