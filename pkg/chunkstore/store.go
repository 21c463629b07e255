// Package chunkstore defines the chunk-addressable storage collaborator used by
// the grid: a database of named files, each stored as an ordered sequence of
// fixed-size chunks inside a root collection.
//
// The package provides two layers:
//   - The collaborator surface (Database, Session, File) consumed by the
//     connection handle, the file service and the streams.
//   - A chunk layout engine (NewDatabase) that implements that surface on top
//     of any ordered key/value backend (KV). Backends live in sub-packages:
//     memory, badger, bolt and s3.
package chunkstore

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultRoot is the root collection used when none is given.
	DefaultRoot = "fs"

	// DefaultChunkSize is the chunk size used for new files when none is given.
	DefaultChunkSize = 256 * 1024

	// DefaultContentType is stored for files created without a content type.
	DefaultContentType = "binary/octet-stream"
)

// ============================================================================
// Open Modes
// ============================================================================

// Mode selects how a file is opened.
type Mode string

const (
	// ModeRead opens an existing file for reading.
	ModeRead Mode = "r"

	// ModeOverwrite replaces the file content on commit. The file is created
	// when absent.
	ModeOverwrite Mode = "w"

	// ModeAppend extends the existing file content. The file is created when
	// absent.
	ModeAppend Mode = "w+"
)

// ParseMode converts a textual mode into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeRead, ModeOverwrite, ModeAppend:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("mode %q: %w", s, ErrInvalidMode)
	}
}

// Writable reports whether the mode allows writes.
func (m Mode) Writable() bool {
	return m == ModeOverwrite || m == ModeAppend
}

// ============================================================================
// Options and File Info
// ============================================================================

// Options carries the per-call file options.
//
// Zero values mean "use the default": see WithDefaults.
type Options struct {
	// Root is the root collection the file lives in.
	Root string

	// ChunkSize is the chunk size for newly created files. Ignored when
	// appending to an existing file, which keeps its own chunk size.
	ChunkSize int

	// ContentType is stored with the file on commit.
	ContentType string

	// Metadata is an arbitrary user mapping stored with the file.
	Metadata map[string]any
}

// WithDefaults returns a copy of o with zero fields filled in.
func (o Options) WithDefaults() Options {
	if o.Root == "" {
		o.Root = DefaultRoot
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ContentType == "" {
		o.ContentType = DefaultContentType
	}
	return o
}

// FileInfo is the metadata document stored for every file.
type FileInfo struct {
	ID          string         `json:"id"`
	Name        string         `json:"filename"`
	Root        string         `json:"root"`
	Length      int64          `json:"length"`
	ChunkSize   int            `json:"chunk_size"`
	ContentType string         `json:"content_type"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	UploadDate  time.Time      `json:"upload_date"`
	MD5         string         `json:"md5"`
}

// NumChunks returns the number of chunks covering the file.
func (f FileInfo) NumChunks() int {
	if f.Length == 0 || f.ChunkSize <= 0 {
		return 0
	}
	return int((f.Length + int64(f.ChunkSize) - 1) / int64(f.ChunkSize))
}

// ChunkBounds returns the byte range [start, end) covered by chunk i.
func (f FileInfo) ChunkBounds(i int) (start, end int64) {
	start = int64(i) * int64(f.ChunkSize)
	end = min(start+int64(f.ChunkSize), f.Length)
	return start, end
}

// ============================================================================
// Collaborator Interfaces
// ============================================================================

// Database is a chunk store that hands out independent sessions.
//
// Each connection handle owns exactly one session; sessions are never shared.
type Database interface {
	// Connect establishes a new session. It may block on I/O.
	Connect(ctx context.Context) (Session, error)

	// Close releases the database. Sessions still open become unusable.
	Close() error
}

// Session is one logical connection to a Database.
//
// All methods are safe for concurrent use, although the grid only issues one
// operation at a time per session.
type Session interface {
	// Exists reports whether a file with the given name exists in root.
	Exists(ctx context.Context, name, root string) (bool, error)

	// Open opens a file in the given mode.
	//
	// Read mode fails with ErrNotFound when the file is absent.
	Open(ctx context.Context, name string, mode Mode, opts Options) (File, error)

	// Read returns length bytes starting at offset. A length <= 0 reads to
	// the end of the file; a length past the end is clamped.
	Read(ctx context.Context, name string, length, offset int64, opts Options) ([]byte, error)

	// Unlink removes the file document and all of its chunks.
	Unlink(ctx context.Context, name, root string) error

	// Close ends the session. Uncommitted files opened through it are
	// abandoned.
	Close() error
}

// File is an open handle returned by Session.Open.
type File interface {
	// Info returns the current view of the file document.
	Info() FileInfo

	// Write appends data at the end of the file.
	Write(ctx context.Context, data []byte) error

	// Close flushes pending bytes and commits the file document for
	// writable handles. It returns the committed document.
	Close(ctx context.Context) (FileInfo, error)
}

// Lister is implemented by sessions that can enumerate a root collection.
type Lister interface {
	List(ctx context.Context, root string) ([]FileInfo, error)
}

// Collectable is implemented by databases that can remove orphaned chunks,
// that is chunks whose file document no longer references them.
type Collectable interface {
	// CollectOrphans removes orphaned chunks in root and returns how many
	// were found. With dryRun set nothing is deleted.
	CollectOrphans(ctx context.Context, root string, dryRun bool) (int, error)
}

// KV is the ordered key/value backend the chunk layout engine is built on.
type KV interface {
	// Get returns the value stored at key or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value at key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List calls fn for every key starting with prefix, in key order.
	// Returning an error from fn stops the iteration and is returned.
	List(ctx context.Context, prefix string, fn func(key string) error) error

	// Close releases backend resources.
	Close() error
}
