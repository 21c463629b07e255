package gridstream

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// writeFile stores data under name in the default root.
func writeFile(t *testing.T, db chunkstore.Database, name, data string, chunkSize int) chunkstore.FileInfo {
	t.Helper()
	ctx := testContext(t)

	sess, err := db.Connect(ctx)
	require.NoError(t, err)
	defer func() { _ = sess.Close() }()

	f, err := sess.Open(ctx, name, chunkstore.ModeOverwrite, chunkstore.Options{ChunkSize: chunkSize})
	require.NoError(t, err)
	require.NoError(t, f.Write(ctx, []byte(data)))
	info, err := f.Close(ctx)
	require.NoError(t, err)
	return info
}

// readFile returns the stored content of name, or fails the test.
func readFile(t *testing.T, db chunkstore.Database, name string) string {
	t.Helper()
	ctx := testContext(t)

	sess, err := db.Connect(ctx)
	require.NoError(t, err)
	defer func() { _ = sess.Close() }()

	data, err := sess.Read(ctx, name, 0, 0, chunkstore.Options{})
	require.NoError(t, err)
	return string(data)
}

// collector records every event a stream emits.
type collector struct {
	mu     sync.Mutex
	kinds  []EventKind
	chunks []string
	text   strings.Builder
	errs   []error
}

func collect(e interface {
	On(EventKind, Listener)
}) *collector {
	c := &collector{}
	for _, kind := range []EventKind{EventOpen, EventData, EventPause, EventResume, EventEnd, EventClose, EventError} {
		e.On(kind, c.record)
	}
	return c
}

func (c *collector) record(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.kinds = append(c.kinds, ev.Kind)
	switch ev.Kind {
	case EventData:
		if ev.Data != nil {
			c.chunks = append(c.chunks, string(ev.Data))
		}
		c.text.WriteString(ev.Text)
	case EventError:
		c.errs = append(c.errs, ev.Err)
	}
}

func (c *collector) Kinds() []EventKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]EventKind(nil), c.kinds...)
}

func (c *collector) Chunks() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.chunks...)
}

func (c *collector) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text.String()
}

func (c *collector) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.errs...)
}

func (c *collector) count(kind EventKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, k := range c.kinds {
		if k == kind {
			n++
		}
	}
	return n
}
