package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newStoreMetrics(reg, "memory")

	m.ObserveOperation("read", 3*time.Millisecond, nil)
	m.ObserveOperation("read", time.Millisecond, errors.New("boom"))
	m.RecordBytes("write", 42)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("memory", "read", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("memory", "read", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsTotal.WithLabelValues("memory", "read")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.bytesTransferred.WithLabelValues("memory", "write")))
}

func TestQueueMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newQueueMetrics(reg)

	m.RecordSubmit("grid:fs")
	m.RecordSubmit("write:fs/a.txt")
	m.SetDepth("grid:photos", 3)
	m.ObserveWait("grid:fs", "put", time.Millisecond)
	m.ObserveRun("grid:fs", "put", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.submitted.WithLabelValues("grid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submitted.WithLabelValues("write")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.depth.WithLabelValues("grid")))
	assert.Equal(t, 2, testutil.CollectAndCount(reg, "dittogrid_queue_wait_seconds", "dittogrid_queue_run_seconds"))
}

func TestQueueKind(t *testing.T) {
	assert.Equal(t, "grid", queueKind("grid:fs"))
	assert.Equal(t, "read", queueKind("read:fs/a:b"))
	assert.Equal(t, "plain", queueKind("plain"))
}

func TestStreamMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newStreamMetrics(reg)

	m.StreamOpened("read")
	m.StreamOpened("write")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.active.WithLabelValues("read")))

	m.StreamClosed("read", time.Second, nil)
	m.StreamClosed("write", time.Second, errors.New("boom"))
	m.StreamClosed("write", 0, nil) // destroyed before open
	m.RecordBytes("read", 10)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.active.WithLabelValues("read")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.active.WithLabelValues("write")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.closed.WithLabelValues("write", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.closed.WithLabelValues("write", "success")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.bytes.WithLabelValues("read")))
}

func TestGCMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newGCMetrics(reg)

	m.RecordRun("fs", 3, time.Millisecond, false, nil)
	m.RecordRun("fs", 2, time.Millisecond, true, nil)
	m.RecordRun("photos", 7, time.Millisecond, false, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("fs", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("photos", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.orphans.WithLabelValues("fs", "false")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.orphans.WithLabelValues("fs", "true")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.orphans.WithLabelValues("photos", "false")))
}

func TestConstructorsDisabledWithoutRegistry(t *testing.T) {
	if IsEnabled() {
		t.Skip("registry initialised by another test")
	}
	assert.Nil(t, NewStoreMetrics("memory"))
	assert.Nil(t, NewQueueMetrics())
	assert.Nil(t, NewStreamMetrics())
	assert.Nil(t, NewGCMetrics())
	assert.NotNil(t, NewNoopGatewayMetrics())
}

func TestServerServesMetrics(t *testing.T) {
	InitRegistry()
	NewStoreMetrics("memory").ObserveOperation("open", time.Millisecond, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(ServerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "dittogrid_store_operations_total"))

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 9090, srv.Port())
}
