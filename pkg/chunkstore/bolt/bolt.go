// Package bolt provides a bbolt KV backend for the chunk store.
//
// All keys live in a single bucket. bbolt keeps keys in byte order, which
// the chunk layout relies on for per-file prefix scans.
package bolt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/marmos91/dittogrid/pkg/chunkstore"
	bolt "go.etcd.io/bbolt"
)

const defaultBucket = "grid"

// Config configures the bbolt backend.
type Config struct {
	// Path is the database file.
	Path string `mapstructure:"path" validate:"required"`

	// Bucket holds every key (default: "grid").
	Bucket string `mapstructure:"bucket"`

	// Timeout bounds how long Open waits for the file lock (default: 1s).
	Timeout time.Duration `mapstructure:"timeout"`

	// NoSync skips fsync after each commit.
	NoSync bool `mapstructure:"no_sync"`
}

// Store is a bbolt-backed chunkstore.KV.
//
// Thread Safety: Safe for concurrent use. bbolt serializes writers.
type Store struct {
	db     *bolt.DB
	bucket []byte
}

var _ chunkstore.KV = (*Store)(nil)

// New opens (or creates) the bbolt file described by config.
func New(config Config) (*Store, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("bolt: path is required")
	}
	if config.Bucket == "" {
		config.Bucket = defaultBucket
	}
	if config.Timeout == 0 {
		config.Timeout = time.Second
	}

	db, err := bolt.Open(config.Path, 0o600, &bolt.Options{
		Timeout: config.Timeout,
		NoSync:  config.NoSync,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database %s: %w", config.Path, err)
	}

	bucket := []byte(config.Bucket)
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", config.Bucket, err)
	}

	return &Store{db: db, bucket: bucket}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(key))
		if v == nil {
			return chunkstore.ErrKeyNotFound
		}
		// v is only valid inside the transaction.
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return value, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("bolt put %s: %w", key, translate(err))
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("bolt delete %s: %w", key, translate(err))
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string, fn func(key string) error) error {
	p := []byte(prefix)

	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("bolt list %s: %w", prefix, translate(err))
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

func translate(err error) error {
	if err == bolt.ErrDatabaseNotOpen {
		return chunkstore.ErrClosed
	}
	return err
}
