package gridfs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marmos91/dittogrid/internal/gridtest"
	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/marmos91/dittogrid/pkg/connection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func openGrid(t *testing.T, db *gridtest.Database, cfg Config) *Grid {
	t.Helper()
	ctx := testContext(t)
	g := New(context.Background(), db, cfg)
	_, err := g.Open(ctx).Wait(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = g.Close().Wait(context.Background()) })
	return g
}

func TestGrid_HelloJohn(t *testing.T) {
	ctx := testContext(t)
	g := openGrid(t, gridtest.New(), Config{})

	info, err := g.Put(ctx, []byte("Hello John"), "Test", chunkstore.ModeOverwrite, nil).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), info.Length)
	assert.Equal(t, "fs", info.Root)
	assert.Equal(t, "97a2438326f171fd885e3a16ebadb65c", info.MD5)

	data, err := g.Get(ctx, "Test", nil).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Hello John", string(data))

	_, err = g.Delete(ctx, "Test").Wait(ctx)
	require.NoError(t, err)

	_, err = g.Get(ctx, "Test", nil).Wait(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGrid_OperationsReachStoreInOrder(t *testing.T) {
	ctx := testContext(t)
	db := gridtest.New()
	db.SetLatency("write", 5*time.Millisecond)
	db.SetLatency("exists", 2*time.Millisecond)
	g := openGrid(t, db, Config{})

	put1 := g.Put(ctx, []byte("one"), "a", chunkstore.ModeOverwrite, nil)
	put2 := g.Put(ctx, []byte("two"), "b", chunkstore.ModeOverwrite, nil)
	get := g.Get(ctx, "a", nil)
	del := g.Delete(ctx, "b")

	_, err := put1.Wait(ctx)
	require.NoError(t, err)
	_, err = put2.Wait(ctx)
	require.NoError(t, err)
	data, err := get.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
	_, err = del.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"open:a", "write:one", "close:a",
		"open:b", "write:two", "close:b",
		"exists:a", "read:a@0",
		"exists:b", "unlink:b",
	}, db.Ops())
	assert.Equal(t, 1, db.MaxConcurrent())
}

func TestGrid_NotFoundPerformsNoMutation(t *testing.T) {
	ctx := testContext(t)
	db := gridtest.New()
	g := openGrid(t, db, Config{})

	_, err := g.Get(ctx, "missing", nil).Wait(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = g.Delete(ctx, "missing").Wait(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []string{"exists:missing", "exists:missing"}, db.Ops())
}

func TestGrid_DeleteTwiceFails(t *testing.T) {
	ctx := testContext(t)
	g := openGrid(t, gridtest.New(), Config{})

	_, err := g.Put(ctx, []byte("x"), "once", chunkstore.ModeOverwrite, nil).Wait(ctx)
	require.NoError(t, err)
	_, err = g.Delete(ctx, "once").Wait(ctx)
	require.NoError(t, err)
	_, err = g.Delete(ctx, "once").Wait(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGrid_QueuedBeforeOpen(t *testing.T) {
	ctx := testContext(t)
	db := gridtest.New()
	g := New(context.Background(), db, Config{})

	put := g.Put(ctx, []byte("early"), "early", chunkstore.ModeOverwrite, nil)
	select {
	case <-put.Done():
		t.Fatal("put resolved before the grid was opened")
	case <-time.After(20 * time.Millisecond):
	}

	_, err := g.Open(ctx).Wait(ctx)
	require.NoError(t, err)

	info, err := put.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Length)
	_, _ = g.Close().Wait(ctx)
}

func TestGrid_PutCopiesCallerBuffer(t *testing.T) {
	ctx := testContext(t)
	g := New(context.Background(), gridtest.New(), Config{})

	buf := []byte("Hello John")
	put := g.Put(ctx, buf, "hello", chunkstore.ModeOverwrite, nil)
	copy(buf, "XXXXXXXXXX")

	_, err := g.Open(ctx).Wait(ctx)
	require.NoError(t, err)
	_, err = put.Wait(ctx)
	require.NoError(t, err)

	data, err := g.Get(ctx, "hello", nil).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Hello John", string(data))
	_, _ = g.Close().Wait(ctx)
}

func TestGrid_CloseThenReopenResumes(t *testing.T) {
	ctx := testContext(t)
	db := gridtest.New()
	db.SetLatency("write", 5*time.Millisecond)
	g := New(context.Background(), db, Config{})
	_, err := g.Open(ctx).Wait(ctx)
	require.NoError(t, err)

	before := g.Put(ctx, []byte("before"), "f", chunkstore.ModeOverwrite, nil)
	closed := g.Close()
	after := g.Get(ctx, "f", nil)

	_, err = before.Wait(ctx)
	require.NoError(t, err, "close must wait for earlier operations")
	_, err = closed.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, connection.Disconnected, g.State())

	select {
	case <-after.Done():
		t.Fatal("operation submitted after close ran while disconnected")
	case <-time.After(20 * time.Millisecond):
	}

	_, err = g.Open(ctx).Wait(ctx)
	require.NoError(t, err)

	data, err := after.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "before", string(data))
	assert.Equal(t, 2, db.Connects())
	_, _ = g.Close().Wait(ctx)
}

func TestGrid_ConnectionFailureDeliveredThroughResults(t *testing.T) {
	ctx := testContext(t)
	db := gridtest.New()
	boom := errors.New("refused")
	db.FailConnect(boom)
	g := New(context.Background(), db, Config{})

	put := g.Put(ctx, []byte("x"), "x", chunkstore.ModeOverwrite, nil)
	get := g.Get(ctx, "x", nil)

	_, err := g.Open(ctx).Wait(ctx)
	require.ErrorIs(t, err, connection.ErrConnection)

	_, err = put.Wait(ctx)
	assert.ErrorIs(t, err, connection.ErrConnection)
	assert.ErrorIs(t, err, boom)

	_, err = get.Wait(ctx)
	assert.ErrorIs(t, err, connection.ErrConnection)
	assert.Empty(t, db.Ops())
}

func TestGrid_PutValueRejectsNonBytes(t *testing.T) {
	ctx := testContext(t)
	db := gridtest.New()
	g := openGrid(t, db, Config{})

	_, err := g.PutValue(ctx, "not bytes", "v", chunkstore.ModeOverwrite, nil).Wait(ctx)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	info, err := g.PutValue(ctx, []byte("bytes"), "v", chunkstore.ModeOverwrite, nil).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Length)
}

func TestGrid_PutRejectsReadMode(t *testing.T) {
	ctx := testContext(t)
	g := openGrid(t, gridtest.New(), Config{})

	_, err := g.Put(ctx, []byte("x"), "x", chunkstore.ModeRead, nil).Wait(ctx)
	assert.ErrorIs(t, err, chunkstore.ErrInvalidMode)
}

func TestGrid_AppendExtends(t *testing.T) {
	ctx := testContext(t)
	g := openGrid(t, gridtest.New(), Config{ChunkSize: 4})

	first, err := g.Put(ctx, []byte("Hello"), "log", chunkstore.ModeAppend, nil).Wait(ctx)
	require.NoError(t, err)
	second, err := g.Put(ctx, []byte(" John"), "log", chunkstore.ModeAppend, &PutOptions{ChunkSize: 16}).Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 4, second.ChunkSize, "append keeps the chunk size of the existing file")
	assert.Equal(t, int64(10), second.Length)

	data, err := g.Get(ctx, "log", nil).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Hello John", string(data))
}

func TestGrid_GetRange(t *testing.T) {
	ctx := testContext(t)
	g := openGrid(t, gridtest.New(), Config{ChunkSize: 3})

	_, err := g.Put(ctx, []byte("abcdefghij"), "r", chunkstore.ModeOverwrite, nil).Wait(ctx)
	require.NoError(t, err)

	data, err := g.Get(ctx, "r", &GetOptions{Offset: 2, Length: 5}).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cdefg", string(data))

	data, err = g.Get(ctx, "r", &GetOptions{Offset: 7}).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hij", string(data))
}

func TestGrid_RootsAreIndependent(t *testing.T) {
	ctx := testContext(t)
	g := openGrid(t, gridtest.New(), Config{Root: "photos"})
	assert.Equal(t, "photos", g.Root())

	_, err := g.Put(ctx, []byte("a"), "same", chunkstore.ModeOverwrite, nil).Wait(ctx)
	require.NoError(t, err)
	_, err = g.Put(ctx, []byte("bb"), "same", chunkstore.ModeOverwrite, &PutOptions{Root: "other"}).Wait(ctx)
	require.NoError(t, err)

	data, err := g.Get(ctx, "same", nil).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))

	data, err = g.Get(ctx, "same", &GetOptions{Root: "other"}).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bb", string(data))
}

func TestGrid_StatExistsList(t *testing.T) {
	ctx := testContext(t)
	g := openGrid(t, gridtest.New(), Config{ContentType: "text/plain"})

	for _, name := range []string{"b", "a"} {
		_, err := g.Put(ctx, []byte(name), name, chunkstore.ModeOverwrite, &PutOptions{
			Metadata: map[string]any{"owner": "john"},
		}).Wait(ctx)
		require.NoError(t, err)
	}

	exists, err := g.Exists(ctx, "a").Wait(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = g.Exists(ctx, "zzz").Wait(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	info, err := g.Stat(ctx, "a", "").Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", info.ContentType)
	assert.Equal(t, "john", info.Metadata["owner"])

	_, err = g.Stat(ctx, "zzz", "").Wait(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	files, err := g.List(ctx, "").Wait(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a", files[0].Name)
	assert.Equal(t, "b", files[1].Name)
}

func TestResult_Then(t *testing.T) {
	r := newResult[int]()

	var got []int
	r.Then(func(v int, err error) { got = append(got, v) })
	assert.Nil(t, r.Err())

	r.resolve(7, nil)
	r.resolve(8, errors.New("ignored"))
	r.Then(func(v int, err error) { got = append(got, v*10) })

	assert.Equal(t, []int{7, 70}, got)
	assert.NoError(t, r.Err())

	v, err := r.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestResult_WaitHonoursContext(t *testing.T) {
	r := newResult[string]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
