// Package gridstream provides streaming access to grid files.
//
// A ReadStream is a pull-based producer: it issues one sequential chunk read
// at a time, emits each chunk as an EventData, and ends and closes itself at
// end of file. Pause withholds the next read without cancelling the one in
// flight.
//
// A WriteStream is a push-based consumer: every write is queued on the
// stream's own single-flight operation queue, so writes land in order and
// one at a time. End and DestroySoon defer the close until queued writes
// have landed; Destroy closes right away.
//
// Both streams report asynchronous failures through EventError and then
// close. Only programmer errors (wrong direction, bad encoding, writing after
// end) are returned synchronously.
package gridstream

import (
	"context"
)

// Stream is the close contract shared by read and write streams.
type Stream interface {
	// Destroy releases the file handle and the connection and emits
	// EventClose. Later calls are no-ops.
	Destroy() error

	// Done is closed once the stream has closed.
	Done() <-chan struct{}

	// Err returns the error the stream failed with, if any.
	Err() error
}

var (
	_ Stream = (*ReadStream)(nil)
	_ Stream = (*WriteStream)(nil)
)

// State is the lifecycle state of a stream.
type State int

const (
	StateCreated State = iota
	StateOpening
	StateActive
	StatePaused
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateOpening:
		return "opening"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// wait blocks until done is closed or ctx ends.
func wait(ctx context.Context, s Stream) error {
	select {
	case <-s.Done():
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
