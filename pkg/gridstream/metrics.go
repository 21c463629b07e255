package gridstream

import "time"

// Direction labels stream metrics.
const (
	DirectionRead  = "read"
	DirectionWrite = "write"
)

// Metrics observes stream lifecycles. Implementations must be safe for
// concurrent use.
type Metrics interface {
	// StreamOpened is called when a stream starts opening.
	StreamOpened(direction string)

	// StreamClosed is called once per stream with its lifetime and the
	// error it failed with, if any.
	StreamClosed(direction string, lifetime time.Duration, err error)

	// RecordBytes counts bytes moved through a stream.
	RecordBytes(direction string, n int)
}

type noopMetrics struct{}

func (noopMetrics) StreamOpened(string)                       {}
func (noopMetrics) StreamClosed(string, time.Duration, error) {}
func (noopMetrics) RecordBytes(string, int)                   {}

func orNoop(m Metrics) Metrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

func lifetime(opened time.Time) time.Duration {
	if opened.IsZero() {
		return 0
	}
	return time.Since(opened)
}
