// Package server exposes the engine's query surface over HTTP and SSE.
// It owns request parsing, filter validation and response framing; the
// engine behind it performs no I/O of its own.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/klauspost/compress/gzhttp"
	"github.com/tailview/tailview/internal/engine"
	"github.com/tailview/tailview/internal/model"
)

const defaultLimit = 100

// ViewerServer serves the log viewer API.
type ViewerServer struct {
	view   *engine.View
	webDir string
	auth   *authenticator
	srv    *http.Server
}

// New creates a server over view. webDir optionally serves static
// viewer assets; passwordHash (bcrypt) optionally gates the API.
func New(view *engine.View, webDir, passwordHash string) *ViewerServer {
	return &ViewerServer{
		view:   view,
		webDir: webDir,
		auth:   newAuthenticator(passwordHash),
	}
}

// Start runs the HTTP server until Shutdown or a listen error.
func (s *ViewerServer) Start(addr string) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/logger/api/login", s.handleLogin)
	mux.Handle("/logger/api/logs", s.auth.middleware(http.HandlerFunc(s.handleLogs)))
	mux.Handle("/logger/api/modules", s.auth.middleware(http.HandlerFunc(s.handleModules)))
	mux.Handle("/logger/api/stats", s.auth.middleware(http.HandlerFunc(s.handleStats)))
	mux.Handle("/logger/api/histogram", s.auth.middleware(http.HandlerFunc(s.handleHistogram)))
	mux.Handle("/logger/api/stream", s.auth.middleware(http.HandlerFunc(s.handleStream)))

	if s.webDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.webDir)))
	}

	s.srv = &http.Server{
		Addr:    addr,
		Handler: gzhttp.GzipHandler(cors(mux)),
	}

	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *ViewerServer) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

// cors allows the viewer to be developed against a separate origin.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// parseFilter builds the record filter from query parameters, rejecting
// unknown filter values before they reach the cache.
func parseFilter(r *http.Request) (engine.Filter, error) {
	q := r.URL.Query()
	return engine.NewFilter(q["level[]"], q["module[]"], q.Get("q"))
}

// parseLimit returns the limit parameter or its default.
func parseLimit(r *http.Request) (int, error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer, got %q", limitStr)
	}
	return limit, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("JSON encode error: %v", err)
	}
}

// handleLogs serves GET /logger/api/logs: paginated, filtered fetch.
func (s *ViewerServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var startID *int64
	if startStr := r.URL.Query().Get("start_log_id"); startStr != "" {
		start, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			http.Error(w, fmt.Sprintf("start_log_id must be an integer, got %q", startStr), http.StatusBadRequest)
			return
		}
		startID = &start
	}

	writeJSON(w, s.view.GetLogs(startID, limit, filter))
}

// handleModules serves GET /logger/api/modules: the category tree.
func (s *ViewerServer) handleModules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]any{"hierarchy": s.view.Hierarchy()})
}

// handleStats serves GET /logger/api/stats.
func (s *ViewerServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, s.view.Stats(filter))
}

// handleHistogram serves GET /logger/api/histogram: per-bucket counts
// over the resident window for the viewer's volume chart.
func (s *ViewerServer) handleHistogram(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	interval := int64(60)
	if intervalStr := r.URL.Query().Get("interval"); intervalStr != "" {
		v, err := strconv.ParseInt(intervalStr, 10, 64)
		if err != nil || v <= 0 {
			http.Error(w, fmt.Sprintf("interval must be a positive integer of seconds, got %q", intervalStr), http.StatusBadRequest)
			return
		}
		interval = v
	}

	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, s.view.Histogram(interval, filter))
}

// handleStream serves GET /logger/api/stream: server-sent events with
// cursor-based incremental delivery. Without last_log_id the stream
// starts with the most recent limit entries as backlog.
func (s *ViewerServer) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	lastID := s.view.NewestID() - int64(limit)
	if lastStr := r.URL.Query().Get("last_log_id"); lastStr != "" {
		v, err := strconv.ParseInt(lastStr, 10, 64)
		if err != nil {
			http.Error(w, fmt.Sprintf("last_log_id must be an integer, got %q", lastStr), http.StatusBadRequest)
			return
		}
		lastID = v
	}
	if lastID < -1 {
		lastID = -1
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	send := func(recs []model.Record) error {
		data, err := json.Marshal(recs)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	heartbeat := func() error {
		if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	cur := s.view.CursorAt(lastID)
	if err := s.view.Stream(r.Context(), cur, limit, send, heartbeat); err != nil {
		log.Printf("stream closed: %v", err)
	}
}
