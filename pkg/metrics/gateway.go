package metrics

import "time"

// GatewayMetrics provides observability for the HTTP gateway.
//
// This interface is optional - if not provided to the gateway, a no-op
// implementation is used with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	gw := gateway.New(grid, db, config, prometheus.NewGatewayMetrics())
//
//	// Without metrics (no-op)
//	gw := gateway.New(grid, db, config, nil)
type GatewayMetrics interface {
	// RecordRequest records a completed request with its route name,
	// HTTP status and duration.
	RecordRequest(route string, status int, duration time.Duration)

	// RecordRequestStart increments the in-flight request gauge.
	RecordRequestStart(route string)

	// RecordRequestEnd decrements the in-flight request gauge.
	RecordRequestEnd(route string)

	// RecordBytesTransferred records bytes uploaded ("in") or downloaded ("out").
	RecordBytesTransferred(direction string, bytes int64)

	// RecordRateLimited counts requests rejected by the rate limiter.
	RecordRateLimited()
}

// NewNoopGatewayMetrics returns a GatewayMetrics that discards everything.
func NewNoopGatewayMetrics() GatewayMetrics {
	return noopGatewayMetrics{}
}

type noopGatewayMetrics struct{}

func (noopGatewayMetrics) RecordRequest(string, int, time.Duration) {}
func (noopGatewayMetrics) RecordRequestStart(string)                {}
func (noopGatewayMetrics) RecordRequestEnd(string)                  {}
func (noopGatewayMetrics) RecordBytesTransferred(string, int64)     {}
func (noopGatewayMetrics) RecordRateLimited()                       {}
