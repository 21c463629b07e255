package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/marmos91/dittogrid/internal/logger"
	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/marmos91/dittogrid/pkg/gridstream"
)

const (
	headerChunkSize = "X-Dittogrid-Chunk-Size"
	headerFileID    = "X-Dittogrid-File-Id"
)

// Handler returns the routed gateway handler without a listener.
func (g *Gateway) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(g.requestID, g.logRequests, g.instrument, g.rateLimit)

	router.HandleFunc("/healthz", g.health).Methods(http.MethodGet).Name("healthz")
	router.HandleFunc("/files", g.listFiles).Methods(http.MethodGet).Name("list")
	router.HandleFunc("/files/{name:.+}", g.putFile).Methods(http.MethodPut).Name("put")
	router.HandleFunc("/files/{name:.+}", g.headFile).Methods(http.MethodHead).Name("stat")
	router.HandleFunc("/files/{name:.+}", g.getFile).Methods(http.MethodGet).Name("get")
	router.HandleFunc("/files/{name:.+}", g.deleteFile).Methods(http.MethodDelete).Name("delete")

	return router
}

func (g *Gateway) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *Gateway) listFiles(w http.ResponseWriter, r *http.Request) {
	root := r.URL.Query().Get("root")

	files, err := g.grid(root).List(r.Context(), root).Wait(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if files == nil {
		files = []chunkstore.FileInfo{}
	}
	writeJSON(w, http.StatusOK, files)
}

func (g *Gateway) putFile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	query := r.URL.Query()

	mode := chunkstore.ModeOverwrite
	if m := query.Get("mode"); m != "" {
		parsed, err := chunkstore.ParseMode(m)
		if err != nil {
			writeError(w, r, err)
			return
		}
		mode = parsed
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = g.opts.Grid.ContentType
	}

	s, err := gridstream.NewWriteStream(g.db, name, gridstream.WriteOptions{
		Mode:         mode,
		Root:         g.rootOf(r),
		ChunkSize:    g.opts.Grid.ChunkSize,
		ContentType:  contentType,
		Metrics:      g.opts.Streams,
		QueueMetrics: g.opts.Grid.Metrics,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.Open(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}

	n, err := s.ReadFrom(r.Body)
	if err != nil {
		// A stream that already failed rejects further writes; report why.
		if serr := s.Err(); serr != nil {
			writeError(w, r, serr)
			return
		}
		s.Abort(err)
		_ = s.Wait(r.Context())
		writeError(w, r, fmt.Errorf("upload %s: %w: %w", name, errBadRequest, err))
		return
	}
	if err := s.Close(); err != nil {
		writeError(w, r, err)
		return
	}
	g.metrics.RecordBytesTransferred("in", n)

	info := s.Info()
	setFileHeaders(w, info)
	writeJSON(w, http.StatusCreated, info)
}

func (g *Gateway) headFile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	root := r.URL.Query().Get("root")

	info, err := g.grid(root).Stat(r.Context(), name, root).Wait(r.Context())
	if err != nil {
		w.WriteHeader(statusFor(err))
		return
	}

	setFileHeaders(w, info)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Length, 10))
	w.WriteHeader(http.StatusOK)
}

func (g *Gateway) getFile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	query := r.URL.Query()

	offset, err := parseInt(query.Get("offset"))
	if err != nil {
		writeError(w, r, fmt.Errorf("offset: %w", err))
		return
	}
	length, err := parseInt(query.Get("length"))
	if err != nil {
		writeError(w, r, fmt.Errorf("length: %w", err))
		return
	}
	encoding, err := gridstream.ParseEncoding(query.Get("encoding"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	s, err := gridstream.NewReadStream(g.db, name, gridstream.ReadOptions{
		Root:     g.rootOf(r),
		Encoding: encoding,
		Offset:   offset,
		Length:   length,
		Metrics:  g.opts.Streams,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer func() { _ = s.Destroy() }()

	// Headers go out when the file is open, before the first chunk.
	var started atomic.Bool
	s.Once(gridstream.EventOpen, func(gridstream.Event) {
		info := s.Info()
		setFileHeaders(w, info)
		if encoding == gridstream.EncodingNone {
			w.Header().Set("Content-Length", strconv.FormatInt(rangeLength(info.Length, offset, length), 10))
		} else {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		}
		w.WriteHeader(http.StatusOK)
		started.Store(true)
	})

	n, err := s.Pipe(r.Context(), flushWriter{w})
	g.metrics.RecordBytesTransferred("out", n)
	if err != nil {
		if !started.Load() {
			writeError(w, r, err)
			return
		}
		logger.Warn("Gateway: download of %s aborted after %d bytes: %v", name, n, err)
	}
}

func (g *Gateway) deleteFile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	root := r.URL.Query().Get("root")

	if _, err := g.grid(root).Delete(r.Context(), name).Wait(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) rootOf(r *http.Request) string {
	if root := r.URL.Query().Get("root"); root != "" {
		return root
	}
	return g.opts.Grid.Root
}

func parseInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", errBadRequest, s)
	}
	return v, nil
}

// rangeLength returns how many bytes a read of length at offset yields.
func rangeLength(size, offset, length int64) int64 {
	end := size
	if length > 0 && offset+length < end {
		end = offset + length
	}
	if end < offset {
		return 0
	}
	return end - offset
}

func setFileHeaders(w http.ResponseWriter, info chunkstore.FileInfo) {
	h := w.Header()
	h.Set("Content-Type", info.ContentType)
	if info.MD5 != "" {
		h.Set("ETag", strconv.Quote(info.MD5))
	}
	if !info.UploadDate.IsZero() {
		h.Set("Last-Modified", info.UploadDate.UTC().Format(http.TimeFormat))
	}
	h.Set(headerChunkSize, strconv.Itoa(info.ChunkSize))
	h.Set(headerFileID, info.ID)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("Gateway: writing response: %v", err)
	}
}

// flushWriter pushes every chunk to the client as it is produced.
type flushWriter struct {
	w http.ResponseWriter
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if fl, ok := f.w.(http.Flusher); ok {
		fl.Flush()
	}
	return n, err
}

var errBadRequest = errors.New("bad request")

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
	Time      string `json:"time"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Gateway: %s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, errorBody{
		Error:     err.Error(),
		RequestID: RequestID(r.Context()),
		Time:      time.Now().UTC().Format(time.RFC3339),
	})
}
