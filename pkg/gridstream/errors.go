package gridstream

import (
	"errors"

	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/marmos91/dittogrid/pkg/connection"
)

var (
	// ErrNotFound is reported when a read stream opens an absent file.
	ErrNotFound = chunkstore.ErrNotFound

	// ErrConnection is reported when the stream's connection fails.
	ErrConnection = connection.ErrConnection

	// ErrNotWritable is returned by writes after End or Destroy.
	ErrNotWritable = chunkstore.ErrNotWritable

	// ErrNotReadable is returned by Resume on a failed or destroyed stream.
	ErrNotReadable = errors.New("stream is not readable")

	// ErrWrongDirection is returned when a write stream is created in read mode.
	ErrWrongDirection = errors.New("write stream cannot use read mode")

	// ErrInvalidEncoding is returned for encodings other than utf8, ascii and base64.
	ErrInvalidEncoding = errors.New("invalid encoding")

	// ErrInvalidPayload is returned by WriteValue for unsupported payload types.
	ErrInvalidPayload = errors.New("payload is not byte-like")

	// ErrAlreadyOpen is returned by Open on a stream that was opened before.
	ErrAlreadyOpen = errors.New("stream already opened")

	// ErrRead wraps store failures surfaced while reading.
	ErrRead = errors.New("read error")

	// ErrWrite wraps store failures surfaced while writing.
	ErrWrite = errors.New("write error")
)
