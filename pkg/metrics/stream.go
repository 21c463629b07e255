package metrics

import (
	"time"

	"github.com/marmos91/dittogrid/pkg/gridstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// streamMetrics is the Prometheus implementation of gridstream.Metrics.
type streamMetrics struct {
	active   *prometheus.GaugeVec
	closed   *prometheus.CounterVec
	lifetime *prometheus.HistogramVec
	bytes    *prometheus.CounterVec
}

// NewStreamMetrics creates a Prometheus-backed gridstream.Metrics.
//
// Returns nil if metrics are not enabled.
func NewStreamMetrics() gridstream.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newStreamMetrics(GetRegistry())
}

func newStreamMetrics(reg prometheus.Registerer) *streamMetrics {
	return &streamMetrics{
		active: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittogrid_streams_active",
				Help: "Number of open streams by direction",
			},
			[]string{"direction"},
		),
		closed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittogrid_streams_closed_total",
				Help: "Total number of closed streams by direction and status",
			},
			[]string{"direction", "status"},
		),
		lifetime: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittogrid_stream_lifetime_seconds",
				Help: "Time from stream open to close",
				Buckets: []float64{
					0.001, // 1ms
					0.01,  // 10ms
					0.1,   // 100ms
					1,     // 1s
					10,    // 10s
					60,    // 1m
					600,   // 10m
				},
			},
			[]string{"direction"},
		),
		bytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittogrid_stream_bytes_total",
				Help: "Total bytes moved through streams",
			},
			[]string{"direction"},
		),
	}
}

func (m *streamMetrics) StreamOpened(direction string) {
	m.active.WithLabelValues(direction).Inc()
}

// StreamClosed is also called for streams destroyed before they were opened;
// those never incremented the gauge, so it is only decremented when lifetime
// is known.
func (m *streamMetrics) StreamClosed(direction string, lifetime time.Duration, err error) {
	if lifetime > 0 {
		m.active.WithLabelValues(direction).Dec()
		m.lifetime.WithLabelValues(direction).Observe(lifetime.Seconds())
	}
	m.closed.WithLabelValues(direction, statusOf(err)).Inc()
}

func (m *streamMetrics) RecordBytes(direction string, n int) {
	m.bytes.WithLabelValues(direction).Add(float64(n))
}
