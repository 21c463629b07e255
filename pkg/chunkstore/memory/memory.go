// Package memory provides an in-memory KV backend for the chunk store.
//
// Data lives only for the lifetime of the process. It is the default backend
// for tests and for ephemeral grids.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/marmos91/dittogrid/pkg/chunkstore"
)

// Store is a map-backed chunkstore.KV.
//
// Values are copied on Put and on Get so callers can reuse their buffers.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

var _ chunkstore.KV = (*Store)(nil)

// Config is the memory backend configuration. It has no options yet; the
// type exists so the config factory treats every backend alike.
type Config struct{}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// NewDatabase is a shortcut for chunkstore.NewDatabase(New(), opts...).
func NewDatabase(opts ...chunkstore.DatabaseOption) *chunkstore.KVDatabase {
	return chunkstore.NewDatabase(New(), opts...)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, chunkstore.ErrClosed
	}
	value, ok := s.data[key]
	if !ok {
		return nil, chunkstore.ErrKeyNotFound
	}
	return append([]byte(nil), value...), nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return chunkstore.ErrClosed
	}
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return chunkstore.ErrClosed
	}
	delete(s.data, key)
	return nil
}

// List snapshots the matching keys under the read lock and then calls fn
// without holding it, so fn may call back into the store.
func (s *Store) List(ctx context.Context, prefix string, fn func(key string) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return chunkstore.ErrClosed
	}
	keys := make([]string, 0)
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(key); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.data = nil
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
