package chunkstore

import (
	"context"
	"encoding/hex"
	"fmt"
	"hash"
	"sync"
	"time"

	"github.com/marmos91/dittogrid/internal/logger"
)

// file is the File handed out by session.Open.
//
// Writable handles buffer bytes until a whole chunk is available and store
// it immediately; only the trailing partial chunk stays in memory until
// Close. The content hash is computed incrementally over every byte of the
// resulting file.
type file struct {
	sess *session
	mode Mode

	mu       sync.Mutex
	info     FileInfo
	previous *FileInfo // overwrite only: version replaced on commit
	index    int       // index of the chunk held in pending
	pending  []byte
	hash     hash.Hash
	closed   bool
}

var _ File = (*file)(nil)

// Info returns a snapshot of the file document.
func (f *file) Info() FileInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info
}

// loadTail prepares an append handle: it hashes the existing content and
// reloads the trailing partial chunk so that new bytes continue filling it.
func (f *file) loadTail(ctx context.Context) error {
	if f.info.ChunkSize <= 0 {
		return fmt.Errorf("file %s/%s has invalid chunk size %d", f.info.Root, f.info.Name, f.info.ChunkSize)
	}

	kv := f.sess.db.kv
	n := f.info.NumChunks()
	f.index = int(f.info.Length / int64(f.info.ChunkSize))

	for i := 0; i < n; i++ {
		chunk, err := kv.Get(ctx, chunkKey(f.info.Root, f.info.ID, i))
		if err != nil {
			return fmt.Errorf("failed to load chunk %d of %s/%s for append: %w", i, f.info.Root, f.info.Name, err)
		}
		start, end := f.info.ChunkBounds(i)
		if int64(len(chunk)) > end-start {
			chunk = chunk[:end-start]
		}
		f.hash.Write(chunk)
		if i == f.index {
			f.pending = append([]byte(nil), chunk...)
		}
	}
	return nil
}

// Write appends data to the file.
func (f *file) Write(ctx context.Context, data []byte) (err error) {
	defer f.sess.observe("write", time.Now(), &err)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	if !f.mode.Writable() {
		return ErrNotWritable
	}
	if err := f.sess.check(); err != nil {
		return err
	}

	f.pending = append(f.pending, data...)
	cs := f.info.ChunkSize
	for len(f.pending) >= cs {
		if err := f.sess.db.kv.Put(ctx, chunkKey(f.info.Root, f.info.ID, f.index), f.pending[:cs]); err != nil {
			return fmt.Errorf("failed to store chunk %d of %s/%s: %w", f.index, f.info.Root, f.info.Name, err)
		}
		f.pending = append([]byte(nil), f.pending[cs:]...)
		f.index++
	}

	f.hash.Write(data)
	f.info.Length += int64(len(data))
	f.sess.db.metrics.RecordBytes("write", int64(len(data)))
	return nil
}

// Close commits a writable handle and returns the committed document.
// Closing a read handle only releases it.
func (f *file) Close(ctx context.Context) (_ FileInfo, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return f.info, ErrClosed
	}
	f.closed = true

	if !f.mode.Writable() {
		return f.info, nil
	}

	defer f.sess.observe("commit", time.Now(), &err)
	defer f.release()

	if err := f.sess.check(); err != nil {
		return f.info, err
	}

	kv := f.sess.db.kv

	// Step 1: flush the trailing partial chunk
	if len(f.pending) > 0 {
		if err := kv.Put(ctx, chunkKey(f.info.Root, f.info.ID, f.index), f.pending); err != nil {
			return f.info, fmt.Errorf("failed to store chunk %d of %s/%s: %w", f.index, f.info.Root, f.info.Name, err)
		}
	}

	// Step 2: commit the document
	f.info.UploadDate = f.sess.db.now().UTC()
	f.info.MD5 = hex.EncodeToString(f.hash.Sum(nil))
	doc, err := encodeInfo(f.info)
	if err != nil {
		return f.info, err
	}
	if err := kv.Put(ctx, fileKey(f.info.Root, f.info.Name), doc); err != nil {
		return f.info, fmt.Errorf("failed to commit file %s/%s: %w", f.info.Root, f.info.Name, err)
	}

	// Step 3: drop the replaced version
	if f.previous != nil && f.previous.ID != f.info.ID {
		if err := deletePrefix(ctx, kv, chunkFilePrefix(f.previous.Root, f.previous.ID)); err != nil {
			// Committed already; leftovers are swept by the collector.
			logger.Warn("Failed to delete replaced chunks of %s/%s: %v", f.info.Root, f.info.Name, err)
		}
	}

	return f.info, nil
}

// abandon drops an uncommitted writer when its session closes.
func (f *file) abandon() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	f.pending = nil
	f.sess.db.releaseWriter(f.info.ID)
	logger.Debug("Abandoned uncommitted write of %s/%s (%d bytes)", f.info.Root, f.info.Name, f.info.Length)
}

func (f *file) release() {
	f.sess.forget(f)
	f.sess.db.releaseWriter(f.info.ID)
}
