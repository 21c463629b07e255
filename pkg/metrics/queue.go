package metrics

import (
	"time"

	"github.com/marmos91/dittogrid/pkg/opqueue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// queueMetrics is the Prometheus implementation of opqueue.Metrics.
//
// Queue names are per grid or per stream ("grid:fs", "write:fs/name"), so
// they are reduced to their kind before being used as a label.
type queueMetrics struct {
	submitted   *prometheus.CounterVec
	depth       *prometheus.GaugeVec
	waitSeconds *prometheus.HistogramVec
	runSeconds  *prometheus.HistogramVec
}

// NewQueueMetrics creates a Prometheus-backed opqueue.Metrics.
//
// Returns nil if metrics are not enabled.
func NewQueueMetrics() opqueue.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newQueueMetrics(GetRegistry())
}

func newQueueMetrics(reg prometheus.Registerer) *queueMetrics {
	buckets := []float64{
		0.0001, // 100µs
		0.001,  // 1ms
		0.01,   // 10ms
		0.1,    // 100ms
		1,      // 1s
		10,     // 10s
	}

	return &queueMetrics{
		submitted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittogrid_queue_submitted_total",
				Help: "Total number of operations submitted to operation queues",
			},
			[]string{"queue"},
		),
		depth: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittogrid_queue_depth",
				Help: "Operations waiting in the most recently updated queue of each kind",
			},
			[]string{"queue"},
		),
		waitSeconds: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittogrid_queue_wait_seconds",
				Help:    "Time operations spent queued before starting",
				Buckets: buckets,
			},
			[]string{"queue", "operation"},
		),
		runSeconds: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittogrid_queue_run_seconds",
				Help:    "Time from operation start to its completion signal",
				Buckets: buckets,
			},
			[]string{"queue", "operation"},
		),
	}
}

// queueKind maps "grid:fs" to "grid" and "write:fs/a.txt" to "write".
func queueKind(name string) string {
	for i := 0; i < len(name); i++ {
		if name[i] == ':' {
			return name[:i]
		}
	}
	return name
}

func (m *queueMetrics) RecordSubmit(queue string) {
	m.submitted.WithLabelValues(queueKind(queue)).Inc()
}

func (m *queueMetrics) SetDepth(queue string, depth int) {
	m.depth.WithLabelValues(queueKind(queue)).Set(float64(depth))
}

func (m *queueMetrics) ObserveWait(queue, operation string, d time.Duration) {
	m.waitSeconds.WithLabelValues(queueKind(queue), operation).Observe(d.Seconds())
}

func (m *queueMetrics) ObserveRun(queue, operation string, d time.Duration) {
	m.runSeconds.WithLabelValues(queueKind(queue), operation).Observe(d.Seconds())
}
