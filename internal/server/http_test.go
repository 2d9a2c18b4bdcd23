package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tailview/tailview/internal/engine"
	"github.com/tailview/tailview/internal/model"
)

func newTestServer(passwordHash string) (*ViewerServer, *engine.Cache) {
	cache := engine.NewCache(100)
	return New(engine.NewView(cache), "", passwordHash), cache
}

func admit(c *engine.Cache, level, module, name, msg string) {
	c.Admit([]model.Record{model.NewStructured(map[string]any{
		"levelname": level,
		"module":    module,
		"name":      name,
		"message":   msg,
	})})
}

func get(t *testing.T, h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHandleLogs(t *testing.T) {
	s, cache := newTestServer("")
	admit(cache, "INFO", "auth", "login", "ok")
	admit(cache, "ERROR", "db", "query", "boom")
	admit(cache, "INFO", "auth", "login", "bye")

	var page struct {
		Logs    []map[string]any `json:"logs"`
		Total   int              `json:"total"`
		HasMore bool             `json:"hasMore"`
	}
	w := get(t, s.handleLogs, "/logger/api/logs?start_log_id=0&limit=10")
	decodeBody(t, w, &page)

	if len(page.Logs) != 3 || page.Total != 3 || page.HasMore {
		t.Fatalf("page = %+v", page)
	}
	if page.Logs[0]["_id"] != float64(0) || page.Logs[0]["message"] != "ok" {
		t.Errorf("first log = %v", page.Logs[0])
	}
}

func TestHandleLogsFiltered(t *testing.T) {
	s, cache := newTestServer("")
	admit(cache, "INFO", "auth", "login", "ok")
	admit(cache, "ERROR", "db", "query", "boom")

	var page struct {
		Logs []map[string]any `json:"logs"`
	}
	w := get(t, s.handleLogs, "/logger/api/logs?start_log_id=0&level[]=ERROR")
	decodeBody(t, w, &page)
	if len(page.Logs) != 1 || page.Logs[0]["message"] != "boom" {
		t.Errorf("filtered logs = %v", page.Logs)
	}
}

func TestHandleLogsBadParams(t *testing.T) {
	s, _ := newTestServer("")
	for name, target := range map[string]string{
		"bad limit":     "/logger/api/logs?limit=abc",
		"zero limit":    "/logger/api/logs?limit=0",
		"bad start":     "/logger/api/logs?start_log_id=abc",
		"unknown level": "/logger/api/logs?level[]=NOISE",
		"empty module":  "/logger/api/logs?module[]=",
	} {
		if w := get(t, s.handleLogs, target); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, w.Code)
		}
	}
}

func TestHandleLogsMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer("")
	w := httptest.NewRecorder()
	s.handleLogs(w, httptest.NewRequest(http.MethodPost, "/logger/api/logs", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestHandleModules(t *testing.T) {
	s, cache := newTestServer("")
	admit(cache, "INFO", "auth", "login", "a")
	admit(cache, "INFO", "auth", "logout", "b")

	var resp struct {
		Hierarchy map[string][]string `json:"hierarchy"`
	}
	decodeBody(t, get(t, s.handleModules, "/logger/api/modules"), &resp)

	if got := resp.Hierarchy["root"]; len(got) != 1 || got[0] != "auth" {
		t.Errorf("root = %v", got)
	}
	if got := resp.Hierarchy["auth"]; len(got) != 2 {
		t.Errorf("auth children = %v", got)
	}
}

func TestHandleStats(t *testing.T) {
	s, cache := newTestServer("")
	admit(cache, "INFO", "auth", "login", "a")
	admit(cache, "ERROR", "db", "query", "b")

	var stats struct {
		TotalEntries int            `json:"totalEntries"`
		LevelCounts  map[string]int `json:"levelCounts"`
	}
	decodeBody(t, get(t, s.handleStats, "/logger/api/stats"), &stats)
	if stats.TotalEntries != 2 || stats.LevelCounts["ERROR"] != 1 {
		t.Errorf("stats = %+v", stats)
	}

	decodeBody(t, get(t, s.handleStats, "/logger/api/stats?level[]=ERROR"), &stats)
	if stats.TotalEntries != 1 {
		t.Errorf("filtered stats = %+v", stats)
	}
}

func TestHandleHistogram(t *testing.T) {
	s, cache := newTestServer("")
	base := float64(1700000000)
	cache.Admit([]model.Record{
		model.NewStructured(map[string]any{"timestamp": base + 1, "message": "a"}),
		model.NewStructured(map[string]any{"timestamp": base + 61, "message": "b"}),
	})

	var points []struct {
		Time  int64 `json:"time"`
		Count int   `json:"count"`
	}
	decodeBody(t, get(t, s.handleHistogram, "/logger/api/histogram?interval=60"), &points)
	if len(points) != 2 || points[0].Count != 1 {
		t.Errorf("points = %v", points)
	}

	if w := get(t, s.handleHistogram, "/logger/api/histogram?interval=-5"); w.Code != http.StatusBadRequest {
		t.Errorf("negative interval: status = %d", w.Code)
	}
}

func TestHandleStream(t *testing.T) {
	s, cache := newTestServer("")
	admit(cache, "INFO", "auth", "login", "hello")
	admit(cache, "INFO", "auth", "login", "world")

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/logger/api/stream?last_log_id=-1", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.handleStream(w, req)
		close(done)
	}()

	// The first poll tick delivers the backlog; then shut the stream down.
	time.Sleep(700 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler did not stop on context cancel")
	}

	body := w.Body.String()
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(body, "data: ") || !strings.Contains(body, `"hello"`) || !strings.Contains(body, `"world"`) {
		t.Errorf("stream body = %q", body)
	}
}

func TestHandleStreamBadParams(t *testing.T) {
	s, _ := newTestServer("")
	if w := get(t, s.handleStream, "/logger/api/stream?last_log_id=abc"); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestAuthDisabledPassesThrough(t *testing.T) {
	s, _ := newTestServer("")
	h := s.auth.middleware(http.HandlerFunc(s.handleStats))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logger/api/stats", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAuthFlow(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	s, _ := newTestServer(string(hash))
	protected := s.auth.middleware(http.HandlerFunc(s.handleStats))

	// No token: rejected.
	w := httptest.NewRecorder()
	protected.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logger/api/stats", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", w.Code)
	}

	// Wrong password: rejected.
	w = httptest.NewRecorder()
	s.handleLogin(w, httptest.NewRequest(http.MethodPost, "/logger/api/login",
		strings.NewReader(`{"password":"wrong"}`)))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: status = %d", w.Code)
	}

	// Correct password yields a token.
	w = httptest.NewRecorder()
	s.handleLogin(w, httptest.NewRequest(http.MethodPost, "/logger/api/login",
		strings.NewReader(`{"password":"secret"}`)))
	var resp struct {
		Token string `json:"token"`
	}
	decodeBody(t, w, &resp)
	if resp.Token == "" {
		t.Fatal("empty token")
	}

	// Token in the Authorization header.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/logger/api/stats", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	protected.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("bearer token: status = %d", w.Code)
	}

	// Token in the query string, for EventSource clients.
	w = httptest.NewRecorder()
	protected.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logger/api/stats?token="+resp.Token, nil))
	if w.Code != http.StatusOK {
		t.Errorf("query token: status = %d", w.Code)
	}

	// Garbage token: rejected.
	w = httptest.NewRecorder()
	protected.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logger/api/stats?token=bogus", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bogus token: status = %d", w.Code)
	}
}

func TestLoginWhenAuthDisabled(t *testing.T) {
	s, _ := newTestServer("")
	w := httptest.NewRecorder()
	s.handleLogin(w, httptest.NewRequest(http.MethodPost, "/logger/api/login",
		strings.NewReader(`{"password":"x"}`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
