// Package gc removes orphaned chunks from a chunk store.
//
// A chunk is orphaned when no file document references its file ID. This
// happens when:
//   - An overwrite stream is destroyed before it commits
//   - The process dies in the middle of an upload
//   - A session is closed while a writable file is still open
//
// The collector works with any chunkstore.Database that also implements
// chunkstore.Collectable. Writers that have not committed yet are never swept.
package gc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittogrid/internal/logger"
	"github.com/marmos91/dittogrid/pkg/chunkstore"
)

// ErrNotCollectable is returned when the database cannot enumerate orphans.
var ErrNotCollectable = errors.New("chunk store does not support garbage collection")

// Config contains configuration for the garbage collector.
type Config struct {
	// Enabled controls whether periodic collection runs
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Interval is how often to run collection (default: 1h)
	Interval time.Duration `mapstructure:"interval" yaml:"interval" validate:"gte=0"`

	// DryRun logs what would be deleted without deleting anything
	DryRun bool `mapstructure:"dry_run" yaml:"dry_run"`

	// Roots lists the root collections to sweep (default: the grid root)
	Roots []string `mapstructure:"roots" yaml:"roots,omitempty" validate:"dive,required"`
}

// Metrics observes collection runs. Nil means no metrics.
type Metrics interface {
	RecordRun(root string, orphans int, duration time.Duration, dryRun bool, err error)
}

// Collector performs periodic orphan collection on one database.
//
// Thread Safety: Safe for concurrent use. Runs never overlap.
type Collector struct {
	store   chunkstore.Collectable
	config  Config
	metrics Metrics

	runMu sync.Mutex

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewCollector creates a collector for db. It is not started.
//
// Returns ErrNotCollectable if db does not implement chunkstore.Collectable.
func NewCollector(db chunkstore.Database, config Config, metrics Metrics) (*Collector, error) {
	store, ok := db.(chunkstore.Collectable)
	if !ok {
		return nil, ErrNotCollectable
	}

	if config.Interval == 0 {
		config.Interval = time.Hour
	}
	if len(config.Roots) == 0 {
		config.Roots = []string{chunkstore.DefaultRoot}
	}

	return &Collector{
		store:   store,
		config:  config,
		metrics: metrics,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins background collection. Subsequent calls are no-ops.
func (c *Collector) Start() {
	if !c.config.Enabled {
		logger.Info("Garbage collection disabled")
		return
	}

	c.startOnce.Do(func() {
		c.started.Store(true)
		logger.Info("Starting garbage collector: interval=%s roots=%v dry_run=%v",
			c.config.Interval, c.config.Roots, c.config.DryRun)
		go c.worker()
	})
}

// Stop signals the worker and waits for an in-progress run to finish or
// for ctx to expire. Safe to call multiple times.
func (c *Collector) Stop(ctx context.Context) error {
	if !c.started.Load() {
		return nil
	}

	c.stopOnce.Do(func() {
		logger.Info("Stopping garbage collector...")
		close(c.stopCh)
	})

	select {
	case <-c.doneCh:
		logger.Info("Garbage collector stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Garbage collector shutdown timeout")
		return ctx.Err()
	}
}

// Run starts background collection and blocks until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) error {
	c.Start()
	<-ctx.Done()
	return nil
}

// Name identifies the collector in server logs.
func (c *Collector) Name() string {
	return "gc"
}

// RunOnce sweeps every configured root immediately and blocks until done.
func (c *Collector) RunOnce(ctx context.Context) (*Stats, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	stats := &Stats{StartTime: time.Now(), DryRun: c.config.DryRun}
	defer func() { stats.EndTime = time.Now() }()

	for _, root := range c.config.Roots {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		start := time.Now()
		n, err := c.store.CollectOrphans(ctx, root, c.config.DryRun)
		if c.metrics != nil {
			c.metrics.RecordRun(root, n, time.Since(start), c.config.DryRun, err)
		}
		if err != nil {
			return stats, fmt.Errorf("collect orphans in %s: %w", root, err)
		}

		stats.Roots++
		stats.OrphanedCount += n
		if !c.config.DryRun {
			stats.DeletedCount += n
		}
		if n > 0 {
			logger.Debug("GC: root=%s orphans=%d dry_run=%v", root, n, c.config.DryRun)
		}
	}

	return stats, nil
}

func (c *Collector) worker() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			stats, err := c.RunOnce(ctx)
			cancel()

			if err != nil {
				logger.Error("Garbage collection failed: %v", err)
			} else {
				logger.Info("Garbage collection completed: %s", stats.Summary())
			}

		case <-c.stopCh:
			return
		}
	}
}

// Stats contains statistics from a collection run.
type Stats struct {
	StartTime     time.Time
	EndTime       time.Time
	DryRun        bool
	Roots         int // Roots swept
	OrphanedCount int // Orphaned chunks found
	DeletedCount  int // Orphaned chunks deleted (zero on dry runs)
}

// Duration returns the total collection duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the collection.
func (s *Stats) Summary() string {
	return fmt.Sprintf("roots=%d orphaned=%d deleted=%d dry_run=%v duration=%s",
		s.Roots, s.OrphanedCount, s.DeletedCount, s.DryRun, s.Duration())
}
