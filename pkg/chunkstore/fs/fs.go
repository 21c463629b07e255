// Package fs provides a local filesystem KV backend for the chunk store.
//
// Every key is one file. The key's '/'-separated segments become nested
// directories, each segment hex-encoded so arbitrary file names and roots are
// filesystem-safe. Values are written to a temporary file and renamed into
// place, so a reader never observes a partially written chunk.
//
// Layout for key "c/fs/<id>/0000000001" under BasePath:
//
//	<BasePath>/_63/_6673/_<hex id>/_30303030303030303031.v
package fs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/marmos91/dittogrid/pkg/chunkstore"
)

// valueSuffix marks value files so a key can also be a directory prefix of
// another key ("a" and "a/b" may coexist).
const valueSuffix = ".v"

// maxSegment is the longest key segment that still fits a 255-byte file name
// once hex-encoded and suffixed.
const maxSegment = (255 - len(valueSuffix)) / 2

// Config configures the filesystem backend.
type Config struct {
	// BasePath is the directory holding the store. It is created if missing.
	BasePath string `mapstructure:"path" validate:"required"`

	// DirMode is the permission for created directories (default: 0755).
	DirMode os.FileMode `mapstructure:"dir_mode"`

	// FileMode is the permission for value files (default: 0644).
	FileMode os.FileMode `mapstructure:"file_mode"`

	// Sync fsyncs each value before it is renamed into place.
	Sync bool `mapstructure:"sync"`
}

// Store is a directory-tree chunkstore.KV.
//
// Thread Safety:
// Safe for concurrent use. Writers share a read lock while creating
// directories; pruning empty directories after a delete takes it exclusively.
type Store struct {
	config Config

	mu     sync.RWMutex
	closed bool
}

var _ chunkstore.KV = (*Store)(nil)

// New creates the base directory if needed and returns the store.
func New(ctx context.Context, config Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if config.BasePath == "" {
		return nil, errors.New("fs: path is required")
	}
	if config.DirMode == 0 {
		config.DirMode = 0o755
	}
	if config.FileMode == 0 {
		config.FileMode = 0o644
	}

	if err := os.MkdirAll(config.BasePath, config.DirMode); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Store{config: config}, nil
}

// pathFor maps a key to its value file.
func (s *Store) pathFor(key string) (string, error) {
	segments := strings.Split(key, "/")
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, s.config.BasePath)
	for i, seg := range segments {
		if len(seg) > maxSegment {
			return "", fmt.Errorf("key %q: segment longer than %d bytes: %w", key, maxSegment, chunkstore.ErrInvalidName)
		}
		enc := "_" + hex.EncodeToString([]byte(seg))
		if i == len(segments)-1 {
			enc += valueSuffix
		}
		parts = append(parts, enc)
	}
	return filepath.Join(parts...), nil
}

// keyFor is the inverse of pathFor for a path relative to BasePath.
func keyFor(rel string) (string, bool) {
	if !strings.HasSuffix(rel, valueSuffix) {
		return "", false
	}
	rel = strings.TrimSuffix(rel, valueSuffix)

	parts := strings.Split(filepath.ToSlash(rel), "/")
	segments := make([]string, len(parts))
	for i, p := range parts {
		if !strings.HasPrefix(p, "_") {
			return "", false
		}
		raw, err := hex.DecodeString(p[1:])
		if err != nil {
			return "", false
		}
		segments[i] = string(raw)
	}
	return strings.Join(segments, "/"), true
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	path, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, chunkstore.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.pathFor(key)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return chunkstore.ErrClosed
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, s.config.DirMode); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	// Temp names start with '.', which never decodes as a key.
	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if s.config.Sync {
		if err := tmp.Sync(); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("failed to sync %s: %w", key, err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", key, err)
	}
	if err := os.Chmod(tmpName, s.config.FileMode); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename %s into place: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.pathFor(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return chunkstore.ErrClosed
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	s.prune(filepath.Dir(path))
	return nil
}

// prune removes empty directories from dir up to, but excluding, BasePath.
// Caller must hold s.mu exclusively.
func (s *Store) prune(dir string) {
	base := filepath.Clean(s.config.BasePath)
	for dir != base && strings.HasPrefix(dir, base) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// List walks the deepest directory fully named by prefix, then filters and
// sorts the decoded keys. Hex-encoded directory order does not match key
// order across segment boundaries, hence the sort.
func (s *Store) List(ctx context.Context, prefix string, fn func(key string) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := s.config.BasePath
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		for _, seg := range strings.Split(prefix[:i], "/") {
			start = filepath.Join(start, "_"+hex.EncodeToString([]byte(seg)))
		}
	}

	var keys []string
	err := func() error {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.closed {
			return chunkstore.ErrClosed
		}

		return filepath.WalkDir(start, func(path string, d iofs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, iofs.ErrNotExist) {
					return nil
				}
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}

			rel, err := filepath.Rel(s.config.BasePath, path)
			if err != nil {
				return err
			}
			if key, ok := keyFor(rel); ok && strings.HasPrefix(key, prefix) {
				keys = append(keys, key)
			}
			return nil
		})
	}()
	if err != nil {
		return fmt.Errorf("fs list %s: %w", prefix, err)
	}

	sort.Strings(keys)
	for _, key := range keys {
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
	return nil
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return chunkstore.ErrClosed
	}
	return nil
}
