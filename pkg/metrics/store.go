package metrics

import (
	"time"

	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// storeMetrics is the Prometheus implementation of chunkstore.Metrics.
//
// It collects:
//   - Operation counts by operation and status (open, read, write, commit, ...)
//   - Operation latency
//   - Bytes read and written
//   - Errors by operation
type storeMetrics struct {
	backend           string
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
}

// NewStoreMetrics creates a Prometheus-backed chunkstore.Metrics labelled with
// the backend name (memory, badger, bolt, s3).
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// makes the database use its built-in no-op implementation.
func NewStoreMetrics(backend string) chunkstore.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newStoreMetrics(GetRegistry(), backend)
}

func newStoreMetrics(reg prometheus.Registerer, backend string) *storeMetrics {
	return &storeMetrics{
		backend: backend,
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittogrid_store_operations_total",
				Help: "Total number of chunk store operations by backend, operation and status",
			},
			[]string{"backend", "operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittogrid_store_operation_duration_seconds",
				Help: "Duration of chunk store operations in seconds",
				Buckets: []float64{
					0.0001, // 100µs
					0.001,  // 1ms
					0.005,  // 5ms
					0.025,  // 25ms
					0.1,    // 100ms
					0.5,    // 500ms
					2.5,    // 2.5s
					10.0,   // 10s
				},
			},
			[]string{"backend", "operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittogrid_store_bytes_total",
				Help: "Total bytes moved through the chunk store",
			},
			[]string{"backend", "operation"}, // read or write
		),
		errorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittogrid_store_errors_total",
				Help: "Total number of failed chunk store operations",
			},
			[]string{"backend", "operation"},
		),
	}
}

// ObserveOperation implements chunkstore.Metrics.ObserveOperation
func (m *storeMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	if err != nil {
		m.errorsTotal.WithLabelValues(m.backend, operation).Inc()
	}
	m.operationsTotal.WithLabelValues(m.backend, operation, statusOf(err)).Inc()
	m.operationDuration.WithLabelValues(m.backend, operation).Observe(duration.Seconds())
}

// RecordBytes implements chunkstore.Metrics.RecordBytes
func (m *storeMetrics) RecordBytes(operation string, bytes int64) {
	m.bytesTransferred.WithLabelValues(m.backend, operation).Add(float64(bytes))
}
