package config

import (
	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/marmos91/dittogrid/pkg/gc"
	"github.com/marmos91/dittogrid/pkg/gridstream"
	"github.com/marmos91/dittogrid/pkg/metrics"
	promMetrics "github.com/marmos91/dittogrid/pkg/metrics/prometheus"
	"github.com/marmos91/dittogrid/pkg/opqueue"
)

// MetricsResult contains all metrics-related components created from configuration.
//
// Collectors other than GatewayMetrics are nil when metrics are disabled;
// every consumer treats nil as "no metrics".
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Store observes the chunk database
	Store chunkstore.Metrics

	// Queue observes grid operation queues
	Queue opqueue.Metrics

	// Streams observes read and write streams
	Streams gridstream.Metrics

	// GC observes orphan collection runs
	GC gc.Metrics

	// GatewayMetrics is the collector for the HTTP gateway (never nil, uses noop if disabled)
	GatewayMetrics metrics.GatewayMetrics
}

// DatabaseOptions returns the chunkstore options wiring the store collector.
func (r *MetricsResult) DatabaseOptions() []chunkstore.DatabaseOption {
	return []chunkstore.DatabaseOption{chunkstore.WithMetrics(r.Store)}
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns nil collectors and a no-op gateway collector (zero overhead)
//
// Parameters:
//   - cfg: The complete DittoGrid configuration
//
// Returns:
//   - MetricsResult containing all metrics components
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		// Metrics disabled - return no-op implementations
		return &MetricsResult{
			GatewayMetrics: metrics.NewNoopGatewayMetrics(),
		}
	}

	// Initialize global Prometheus registry
	metrics.InitRegistry()

	// Create metrics HTTP server
	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Metrics.Port,
	})

	return &MetricsResult{
		Server:         server,
		Store:          metrics.NewStoreMetrics(cfg.Store.Type),
		Queue:          metrics.NewQueueMetrics(),
		Streams:        metrics.NewStreamMetrics(),
		GC:             metrics.NewGCMetrics(),
		GatewayMetrics: promMetrics.NewGatewayMetrics(),
	}
}
