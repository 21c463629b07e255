package metrics

import (
	"strconv"
	"time"

	"github.com/marmos91/dittogrid/pkg/gc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// gcMetrics is the Prometheus implementation of gc.Metrics.
type gcMetrics struct {
	runs     *prometheus.CounterVec
	orphans  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewGCMetrics creates a Prometheus-backed gc.Metrics.
//
// Returns nil if metrics are not enabled.
func NewGCMetrics() gc.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newGCMetrics(GetRegistry())
}

func newGCMetrics(reg prometheus.Registerer) *gcMetrics {
	return &gcMetrics{
		runs: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittogrid_gc_runs_total",
				Help: "Total number of orphan collection passes by root and status",
			},
			[]string{"root", "status"},
		),
		orphans: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittogrid_gc_orphaned_chunks_total",
				Help: "Orphaned chunks found, by root and whether the pass was a dry run",
			},
			[]string{"root", "dry_run"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittogrid_gc_duration_seconds",
				Help:    "Duration of one orphan collection pass",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"root"},
		),
	}
}

func (m *gcMetrics) RecordRun(root string, orphans int, duration time.Duration, dryRun bool, err error) {
	m.runs.WithLabelValues(root, statusOf(err)).Inc()
	m.duration.WithLabelValues(root).Observe(duration.Seconds())
	if err == nil {
		m.orphans.WithLabelValues(root, strconv.FormatBool(dryRun)).Add(float64(orphans))
	}
}
