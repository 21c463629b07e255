package chunkstore

import "time"

// Metrics receives observations about chunk store operations.
//
// Implementations must be safe for concurrent use. A nil Metrics passed to
// WithMetrics disables collection.
type Metrics interface {
	// ObserveOperation records one session operation ("exists", "open",
	// "read", "write", "commit", "unlink", "list") with its outcome.
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records bytes moved by an operation ("read" or "write").
	RecordBytes(operation string, bytes int64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, time.Duration, error) {}
func (noopMetrics) RecordBytes(string, int64)                      {}
