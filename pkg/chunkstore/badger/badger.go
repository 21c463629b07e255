// Package badger provides a BadgerDB KV backend for the chunk store.
//
// Chunks are stored as values under the keys laid out by the chunk layout
// engine. Badger keeps keys sorted, so prefix scans visit chunks of one file
// in index order.
package badger

import (
	"context"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/dittogrid/pkg/chunkstore"
)

// Config configures the Badger backend.
type Config struct {
	// Path is the directory where BadgerDB stores its files.
	Path string `mapstructure:"path" validate:"required_unless=InMemory true"`

	// InMemory runs Badger without touching disk. Path is ignored.
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (default: 256).
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB is BadgerDB's index cache size in MB (default: 128).
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`

	// SyncWrites fsyncs every write before acknowledging it.
	SyncWrites bool `mapstructure:"sync_writes"`
}

// Store is a BadgerDB-backed chunkstore.KV.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db *badgerdb.DB
}

var _ chunkstore.KV = (*Store)(nil)

// New opens (or creates) the Badger database described by config.
func New(ctx context.Context, config Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badgerdb.Options
	if config.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if config.Path == "" {
			return nil, fmt.Errorf("badger: path is required")
		}
		opts = badgerdb.DefaultOptions(config.Path)
	}

	// Chunks are opaque user bytes; compressing them is left to the caller.
	opts = opts.WithLoggingLevel(badgerdb.WARNING)
	opts = opts.WithCompression(options.None)
	opts = opts.WithSyncWrites(config.SyncWrites)

	blockCacheMB := config.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 256
	}
	indexCacheMB := config.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 128
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)
	opts = opts.WithIndexCacheSize(indexCacheMB << 20)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.Path, err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, chunkstore.ErrKeyNotFound
	}
	if errors.Is(err, badgerdb.ErrDBClosed) {
		return nil, chunkstore.ErrClosed
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if errors.Is(err, badgerdb.ErrDBClosed) {
		return chunkstore.ErrClosed
	}
	if err != nil {
		return fmt.Errorf("badger put %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(key))
	})
	if errors.Is(err, badgerdb.ErrDBClosed) {
		return chunkstore.ErrClosed
	}
	if err != nil {
		return fmt.Errorf("badger delete %s: %w", key, err)
	}
	return nil
}

// List iterates keys only; values are never loaded. Matching keys are
// collected inside the read transaction and fn runs after it ends, so fn
// may write to the store.
func (s *Store) List(ctx context.Context, prefix string, fn func(key string) error) error {
	var keys []string
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if errors.Is(err, badgerdb.ErrDBClosed) {
		return chunkstore.ErrClosed
	}
	if err != nil {
		return fmt.Errorf("badger list %s: %w", prefix, err)
	}

	for _, key := range keys {
		if err := fn(key); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
