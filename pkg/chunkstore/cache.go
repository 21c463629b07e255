package chunkstore

import (
	"context"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// WithChunkCache keeps up to size recently used chunks in memory in front of
// the backend. File documents are never cached. A size <= 0 disables it.
//
// The cache is only coherent for writes made through this database; do not
// enable it when another process writes to the same backend.
func WithChunkCache(size int) DatabaseOption {
	return func(d *KVDatabase) {
		if size <= 0 {
			return
		}
		c, err := lru.New[string, []byte](size)
		if err != nil {
			panic(err)
		}
		d.kv = &cachedKV{KV: d.kv, chunks: c}
	}
}

// cachedKV serves chunk reads from an LRU cache.
//
// Chunk writers hold mu exclusively so a reader that missed the cache cannot
// repopulate it with a value older than a concurrent write.
type cachedKV struct {
	KV
	mu     sync.RWMutex
	chunks *lru.Cache[string, []byte]
}

func (c *cachedKV) Get(ctx context.Context, key string) ([]byte, error) {
	if !strings.HasPrefix(key, prefixChunk) {
		return c.KV.Get(ctx, key)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if v, ok := c.chunks.Get(key); ok {
		return append([]byte(nil), v...), nil
	}

	v, err := c.KV.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	c.chunks.Add(key, append([]byte(nil), v...))
	return v, nil
}

func (c *cachedKV) Put(ctx context.Context, key string, value []byte) error {
	if !strings.HasPrefix(key, prefixChunk) {
		return c.KV.Put(ctx, key, value)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.chunks.Remove(key)
	return c.KV.Put(ctx, key, value)
}

func (c *cachedKV) Delete(ctx context.Context, key string) error {
	if !strings.HasPrefix(key, prefixChunk) {
		return c.KV.Delete(ctx, key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.chunks.Remove(key)
	return c.KV.Delete(ctx, key)
}

func (c *cachedKV) Close() error {
	c.chunks.Purge()
	return c.KV.Close()
}
