// Package gateway exposes a grid over HTTP.
//
// Routes:
//   - GET    /files            list the files of a root collection
//   - PUT    /files/{name}     streaming upload (?mode=w|w+)
//   - GET    /files/{name}     streaming download (?offset, ?length, ?encoding)
//   - HEAD   /files/{name}     file document as headers
//   - DELETE /files/{name}     remove a file
//   - GET    /healthz          liveness
//
// Every file route accepts ?root= and falls back to the configured root.
// Uploads and downloads go through gridstream streams; listing, stat and
// delete go through one gridfs.Grid per root collection.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/dittogrid/internal/logger"
	"github.com/marmos91/dittogrid/internal/ratelimiter"
	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/marmos91/dittogrid/pkg/gridfs"
	"github.com/marmos91/dittogrid/pkg/gridstream"
	"github.com/marmos91/dittogrid/pkg/metrics"
)

// Config configures the HTTP gateway.
type Config struct {
	// Enabled controls whether serve starts the gateway
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the TCP port to listen on (default: 8080)
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// ReadTimeout bounds reading a whole request, body included (default: 5m)
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"gte=0"`

	// WriteTimeout bounds writing a whole response (default: 5m)
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"gte=0"`

	// IdleTimeout closes idle keep-alive connections (default: 2m)
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"gte=0"`

	// RateLimit throttles requests across all clients (zero rate = unlimited)
	RateLimit ratelimiter.Config `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Minute
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Minute
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 2 * time.Minute
	}
}

// Options carries the collaborators of a Gateway. Zero values disable the
// corresponding feature.
type Options struct {
	// Grid holds the defaults for root collection, chunk size and content
	// type. Its Metrics observe the per-root grid queues.
	Grid gridfs.Config

	// Streams observes upload and download streams.
	Streams gridstream.Metrics

	// Metrics observes requests. Nil uses a no-op implementation.
	Metrics metrics.GatewayMetrics
}

// Gateway is the HTTP front end of a chunk database.
//
// Thread Safety: Safe for concurrent use.
type Gateway struct {
	db      chunkstore.Database
	config  Config
	opts    Options
	limiter *ratelimiter.Limiter
	metrics metrics.GatewayMetrics
	server  *http.Server

	mu       sync.Mutex
	grids    map[string]*gridfs.Grid
	listener net.Listener

	shutdownOnce sync.Once
}

// New creates a stopped gateway over db.
func New(db chunkstore.Database, config Config, opts Options) *Gateway {
	config.ApplyDefaults()
	if opts.Grid.Root == "" {
		opts.Grid.Root = chunkstore.DefaultRoot
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoopGatewayMetrics()
	}

	g := &Gateway{
		db:      db,
		config:  config,
		opts:    opts,
		limiter: ratelimiter.New(config.RateLimit),
		metrics: opts.Metrics,
		grids:   make(map[string]*gridfs.Grid),
	}
	g.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      g.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return g
}

// grid returns the grid serving root, creating and opening it on first use.
func (g *Gateway) grid(root string) *gridfs.Grid {
	if root == "" {
		root = g.opts.Grid.Root
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if grid, ok := g.grids[root]; ok {
		return grid
	}

	cfg := g.opts.Grid
	cfg.Root = root
	grid := gridfs.New(context.Background(), g.db, cfg)
	grid.Open(context.Background())
	g.grids[root] = grid
	logger.Debug("Gateway: opened grid for root %s", root)
	return grid
}

// Start listens on the configured port and serves until ctx is cancelled.
func (g *Gateway) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.server.Addr)
	if err != nil {
		return fmt.Errorf("gateway failed to listen on %s: %w", g.server.Addr, err)
	}
	return g.Serve(ctx, ln)
}

// Run is Start; it lets a server.Server manage the gateway.
func (g *Gateway) Run(ctx context.Context) error {
	return g.Start(ctx)
}

// Name identifies the gateway in server logs.
func (g *Gateway) Name() string {
	return "gateway"
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	g.mu.Lock()
	g.listener = ln
	g.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Gateway listening on %s", ln.Addr())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return g.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("gateway failed: %w", err)
	}
}

// Stop drains in-flight requests, then closes every grid. Safe to call more
// than once.
func (g *Gateway) Stop(ctx context.Context) error {
	var stopErr error
	g.shutdownOnce.Do(func() {
		if err := g.server.Shutdown(ctx); err != nil {
			stopErr = fmt.Errorf("gateway shutdown error: %w", err)
		}

		g.mu.Lock()
		grids := g.grids
		g.grids = make(map[string]*gridfs.Grid)
		g.mu.Unlock()

		for root, grid := range grids {
			if _, err := grid.Close().Wait(ctx); err != nil {
				logger.Warn("Gateway: closing grid %s: %v", root, err)
			}
		}
		logger.Info("Gateway stopped")
	})
	return stopErr
}

// Addr returns the bound address once serving, or nil.
func (g *Gateway) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return nil
	}
	return g.listener.Addr()
}

// Port returns the configured port.
func (g *Gateway) Port() int {
	return g.config.Port
}
