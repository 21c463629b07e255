package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittogrid/internal/logger"
)

// KVDatabase implements Database on top of a KV backend.
//
// It owns the chunk layout: file documents and chunks are stored under the
// keys described in keys.go. Sessions are cheap views over the shared
// backend; the backend itself is opened once and released by Close.
//
// Thread Safety: Safe for concurrent use.
type KVDatabase struct {
	kv      KV
	metrics Metrics
	now     func() time.Time

	mu      sync.Mutex
	closed  bool
	pending map[string]int // file id -> uncommitted writers
}

// DatabaseOption configures a KVDatabase.
type DatabaseOption func(*KVDatabase)

// WithMetrics sets the metrics sink. A nil value keeps the no-op sink.
func WithMetrics(m Metrics) DatabaseOption {
	return func(d *KVDatabase) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithClock overrides the clock used for upload dates.
func WithClock(now func() time.Time) DatabaseOption {
	return func(d *KVDatabase) {
		d.now = now
	}
}

// NewDatabase creates a chunk database over kv.
func NewDatabase(kv KV, opts ...DatabaseOption) *KVDatabase {
	d := &KVDatabase{
		kv:      kv,
		metrics: noopMetrics{},
		now:     time.Now,
		pending: make(map[string]int),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Connect returns a new session over the shared backend.
func (d *KVDatabase) Connect(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}

	return &session{
		db:      d,
		writers: make(map[*file]struct{}),
	}, nil
}

// Close closes the backend. It is safe to call more than once.
func (d *KVDatabase) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	return d.kv.Close()
}

func (d *KVDatabase) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *KVDatabase) trackWriter(id string) {
	d.mu.Lock()
	d.pending[id]++
	d.mu.Unlock()
}

func (d *KVDatabase) releaseWriter(id string) {
	d.mu.Lock()
	if d.pending[id] <= 1 {
		delete(d.pending, id)
	} else {
		d.pending[id]--
	}
	d.mu.Unlock()
}

// CollectOrphans removes chunks in root whose file id is neither referenced
// by a committed file document nor held by an in-progress writer.
//
// Orphans appear when a writer is abandoned before commit, for example when
// an overwrite stream is destroyed or the process dies mid-upload.
//
// Returns the number of orphaned chunks found (and, unless dryRun, deleted).
func (d *KVDatabase) CollectOrphans(ctx context.Context, root string, dryRun bool) (int, error) {
	if d.isClosed() {
		return 0, ErrClosed
	}

	// Step 1: collect live ids from file documents
	live := make(map[string]struct{})
	err := d.kv.List(ctx, filePrefix(root), func(key string) error {
		data, err := d.kv.Get(ctx, key)
		if errors.Is(err, ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		info, err := decodeInfo(data)
		if err != nil {
			logger.Warn("Skipping unreadable file document %s: %v", key, err)
			return nil
		}
		live[info.ID] = struct{}{}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list file documents in %s: %w", root, err)
	}

	// Step 2: snapshot writers that have not committed yet
	d.mu.Lock()
	for id := range d.pending {
		live[id] = struct{}{}
	}
	d.mu.Unlock()

	// Step 3: find chunks nobody references
	var orphans []string
	err = d.kv.List(ctx, chunkRootPrefix(root), func(key string) error {
		id, _, ok := parseChunkKey(root, key)
		if !ok {
			return nil
		}
		if _, referenced := live[id]; !referenced {
			orphans = append(orphans, key)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list chunks in %s: %w", root, err)
	}

	if dryRun {
		for _, key := range orphans {
			logger.Info("GC dry run: would delete orphaned chunk %s", key)
		}
		return len(orphans), nil
	}

	// Step 4: delete
	for _, key := range orphans {
		if err := d.kv.Delete(ctx, key); err != nil {
			return 0, fmt.Errorf("failed to delete orphaned chunk %s: %w", key, err)
		}
	}

	return len(orphans), nil
}

// deletePrefix removes every key under prefix.
//
// Keys are collected before deleting so backends never see a mutation
// during iteration.
func deletePrefix(ctx context.Context, kv KV, prefix string) error {
	var keys []string
	if err := kv.List(ctx, prefix, func(key string) error {
		keys = append(keys, key)
		return nil
	}); err != nil {
		return err
	}
	for _, key := range keys {
		if err := kv.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
