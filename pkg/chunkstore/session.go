package chunkstore

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// session is the Session handed out by KVDatabase.Connect.
type session struct {
	db *KVDatabase

	mu      sync.Mutex
	closed  bool
	writers map[*file]struct{}
}

var (
	_ Session = (*session)(nil)
	_ Lister  = (*session)(nil)
)

func (s *session) check() error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()

	if closed || s.db.isClosed() {
		return ErrClosed
	}
	return nil
}

func (s *session) observe(op string, start time.Time, err *error) {
	s.db.metrics.ObserveOperation(op, time.Since(start), *err)
}

// loadInfo fetches the file document for name in root.
func (s *session) loadInfo(ctx context.Context, name, root string) (FileInfo, error) {
	data, err := s.db.kv.Get(ctx, fileKey(root, name))
	if errors.Is(err, ErrKeyNotFound) {
		return FileInfo{}, fmt.Errorf("file %s/%s: %w", root, name, ErrNotFound)
	}
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to load file %s/%s: %w", root, name, err)
	}
	return decodeInfo(data)
}

// Exists reports whether name exists in root.
func (s *session) Exists(ctx context.Context, name, root string) (exists bool, err error) {
	defer s.observe("exists", time.Now(), &err)

	if err := s.check(); err != nil {
		return false, err
	}
	if root == "" {
		root = DefaultRoot
	}
	if err := validateNames(name, root); err != nil {
		return false, err
	}

	_, err = s.loadInfo(ctx, name, root)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Open opens name in the requested mode.
//
// Overwrite mode writes into a fresh file id and swaps the document on
// commit. Append mode extends the existing file in place, keeping its id and
// chunk size; when the file is absent it behaves like overwrite.
func (s *session) Open(ctx context.Context, name string, mode Mode, opts Options) (_ File, err error) {
	defer s.observe("open", time.Now(), &err)

	if err := s.check(); err != nil {
		return nil, err
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}

	requested := opts
	opts = opts.WithDefaults()
	if err := validateNames(name, opts.Root); err != nil {
		return nil, err
	}

	existing, err := s.loadInfo(ctx, name, opts.Root)
	found := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if mode == ModeRead {
		if !found {
			return nil, err
		}
		return &file{sess: s, mode: mode, info: existing}, nil
	}

	f := &file{
		sess: s,
		mode: mode,
		hash: md5.New(),
	}

	if mode == ModeAppend && found {
		f.info = existing
		if requested.ContentType != "" {
			f.info.ContentType = requested.ContentType
		}
		if requested.Metadata != nil {
			f.info.Metadata = requested.Metadata
		}
		if err := f.loadTail(ctx); err != nil {
			return nil, err
		}
	} else {
		f.info = FileInfo{
			ID:          uuid.NewString(),
			Name:        name,
			Root:        opts.Root,
			ChunkSize:   opts.ChunkSize,
			ContentType: opts.ContentType,
			Metadata:    opts.Metadata,
		}
		if found {
			prev := existing
			f.previous = &prev
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.writers[f] = struct{}{}
	s.mu.Unlock()
	s.db.trackWriter(f.info.ID)

	return f, nil
}

// Read returns up to length bytes of name starting at offset.
func (s *session) Read(ctx context.Context, name string, length, offset int64, opts Options) (data []byte, err error) {
	defer s.observe("read", time.Now(), &err)

	if err := s.check(); err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()
	if err := validateNames(name, opts.Root); err != nil {
		return nil, err
	}

	info, err := s.loadInfo(ctx, name, opts.Root)
	if err != nil {
		return nil, err
	}

	if offset < 0 || offset > info.Length {
		return nil, fmt.Errorf("offset %d for file of length %d: %w", offset, info.Length, ErrInvalidRange)
	}
	if length <= 0 || offset+length > info.Length {
		length = info.Length - offset
	}
	if length == 0 {
		return []byte{}, nil
	}

	cs := int64(info.ChunkSize)
	first := int(offset / cs)
	last := int((offset + length - 1) / cs)
	end := offset + length

	buf := make([]byte, 0, length)
	for i := first; i <= last; i++ {
		chunk, err := s.db.kv.Get(ctx, chunkKey(info.Root, info.ID, i))
		if err != nil {
			return nil, fmt.Errorf("failed to read chunk %d of %s/%s: %w", i, info.Root, info.Name, err)
		}

		start := int64(i) * cs
		lo := max(offset, start) - start
		hi := min(end, start+int64(len(chunk))) - start
		if lo >= hi {
			return nil, fmt.Errorf("chunk %d of %s/%s is shorter than expected", i, info.Root, info.Name)
		}
		buf = append(buf, chunk[lo:hi]...)
	}

	s.db.metrics.RecordBytes("read", int64(len(buf)))
	return buf, nil
}

// Unlink removes name and all of its chunks from root.
func (s *session) Unlink(ctx context.Context, name, root string) (err error) {
	defer s.observe("unlink", time.Now(), &err)

	if err := s.check(); err != nil {
		return err
	}
	if root == "" {
		root = DefaultRoot
	}
	if err := validateNames(name, root); err != nil {
		return err
	}

	info, err := s.loadInfo(ctx, name, root)
	if err != nil {
		return err
	}

	if err := deletePrefix(ctx, s.db.kv, chunkFilePrefix(root, info.ID)); err != nil {
		return fmt.Errorf("failed to delete chunks of %s/%s: %w", root, name, err)
	}
	if err := s.db.kv.Delete(ctx, fileKey(root, name)); err != nil {
		return fmt.Errorf("failed to delete file %s/%s: %w", root, name, err)
	}
	return nil
}

// List returns every committed file in root, ordered by key.
func (s *session) List(ctx context.Context, root string) (files []FileInfo, err error) {
	defer s.observe("list", time.Now(), &err)

	if err := s.check(); err != nil {
		return nil, err
	}
	if root == "" {
		root = DefaultRoot
	}
	if strings.Contains(root, "/") {
		return nil, fmt.Errorf("root %q: %w", root, ErrInvalidName)
	}

	err = s.db.kv.List(ctx, filePrefix(root), func(key string) error {
		data, err := s.db.kv.Get(ctx, key)
		if errors.Is(err, ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		info, err := decodeInfo(data)
		if err != nil {
			return err
		}
		files = append(files, info)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}
	return files, nil
}

// Close ends the session and abandons uncommitted writers.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	writers := s.writers
	s.writers = nil
	s.mu.Unlock()

	for f := range writers {
		f.abandon()
	}
	return nil
}

func (s *session) forget(f *file) {
	s.mu.Lock()
	if s.writers != nil {
		delete(s.writers, f)
	}
	s.mu.Unlock()
}
