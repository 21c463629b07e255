package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/dittogrid/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// gatewayMetrics is the Prometheus implementation of metrics.GatewayMetrics.
type gatewayMetrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec
	bytesTransferred *prometheus.CounterVec
	rateLimited      prometheus.Counter
}

// NewGatewayMetrics creates a new Prometheus-backed GatewayMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewGatewayMetrics() metrics.GatewayMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopGatewayMetrics()
	}
	return newGatewayMetrics(metrics.GetRegistry())
}

func newGatewayMetrics(reg prometheus.Registerer) *gatewayMetrics {
	return &gatewayMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittogrid_gateway_requests_total",
				Help: "Total number of gateway requests by route and status code",
			},
			[]string{"route", "code"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittogrid_gateway_request_duration_milliseconds",
				Help: "Duration of gateway requests in milliseconds",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"route"},
		),
		requestsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittogrid_gateway_requests_in_flight",
				Help: "Current number of gateway requests being processed",
			},
			[]string{"route"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittogrid_gateway_bytes_transferred_total",
				Help: "Total bytes uploaded and downloaded through the gateway",
			},
			[]string{"direction"},
		),
		rateLimited: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittogrid_gateway_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
		),
	}
}

func (m *gatewayMetrics) RecordRequest(route string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds() * 1000) // Convert to milliseconds
}

func (m *gatewayMetrics) RecordRequestStart(route string) {
	m.requestsInFlight.WithLabelValues(route).Inc()
}

func (m *gatewayMetrics) RecordRequestEnd(route string) {
	m.requestsInFlight.WithLabelValues(route).Dec()
}

func (m *gatewayMetrics) RecordBytesTransferred(direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *gatewayMetrics) RecordRateLimited() {
	m.rateLimited.Inc()
}
