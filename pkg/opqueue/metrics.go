package opqueue

import "time"

// Metrics receives queue observations. Implementations must be safe for
// concurrent use.
type Metrics interface {
	// RecordSubmit counts one submitted operation.
	RecordSubmit(queue string)

	// SetDepth reports how many operations wait behind the executing one.
	SetDepth(queue string, depth int)

	// ObserveWait records how long an operation waited before starting.
	ObserveWait(queue, op string, wait time.Duration)

	// ObserveRun records how long an operation took from start to done.
	ObserveRun(queue, op string, run time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RecordSubmit(string)                       {}
func (noopMetrics) SetDepth(string, int)                      {}
func (noopMetrics) ObserveWait(string, string, time.Duration) {}
func (noopMetrics) ObserveRun(string, string, time.Duration)  {}
