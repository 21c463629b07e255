package chunkstore

import "errors"

// ============================================================================
// Standard Chunk Store Errors
// ============================================================================

// These errors give every backend and every caller a shared vocabulary for
// common failures. Implementations wrap them with context:
//
//	return fmt.Errorf("file %s/%s: %w", root, name, chunkstore.ErrNotFound)
//
// and callers test them with errors.Is.

var (
	// ErrNotFound indicates the named file does not exist in the root collection.
	//
	// Returned by Open in read mode, Read and Unlink.
	//
	// Protocol Mapping:
	//   - HTTP: 404 Not Found
	ErrNotFound = errors.New("file not found")

	// ErrKeyNotFound is returned by KV backends when a key is absent.
	//
	// It never escapes the chunk layout engine: the engine translates it to
	// ErrNotFound where a file lookup was intended.
	ErrKeyNotFound = errors.New("key not found")

	// ErrClosed indicates the session, file handle or database was already closed.
	ErrClosed = errors.New("chunk store closed")

	// ErrInvalidRange indicates a read offset past the end of the file or a
	// negative offset.
	//
	// Protocol Mapping:
	//   - HTTP: 416 Range Not Satisfiable
	ErrInvalidRange = errors.New("invalid read range")

	// ErrInvalidMode indicates an open mode other than r, w or w+.
	ErrInvalidMode = errors.New("invalid open mode")

	// ErrNotWritable is returned by Write on a handle opened in read mode.
	ErrNotWritable = errors.New("file not opened for writing")

	// ErrInvalidName indicates an empty file name or a root containing a
	// path separator.
	ErrInvalidName = errors.New("invalid file name or root")
)
