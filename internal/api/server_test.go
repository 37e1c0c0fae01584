package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"queue-monitor/internal/config"
	"queue-monitor/internal/listener"
	"queue-monitor/internal/models"
	"queue-monitor/internal/ratelimit"
	"queue-monitor/internal/store"
)

type stubLimiter struct {
	allow bool
	err   error
	seen  []string
}

func (l *stubLimiter) Allow(_ context.Context, producer string) (ratelimit.Decision, error) {
	l.seen = append(l.seen, producer)
	return ratelimit.Decision{Allowed: l.allow}, l.err
}

func newServer(t *testing.T, limiter Limiter) (*Server, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	cfg := config.Defaults()
	return New(cfg, st, listener.New(st, nil), limiter, nil), st
}

const startEvent = `{"event":"start","message":{"original":{"message_id":"m1","timestamp":1709283600,"body":"{}"},"target":["App\\Job","run"]}}`

func do(t *testing.T, s *Server, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newServer(t, nil)
	rec := do(t, s, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestPostEventRecords(t *testing.T) {
	s, st := newServer(t, nil)
	rec := do(t, s, http.MethodPost, "/events", startEvent, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	rows := st.Records()
	if len(rows) != 1 || rows[0].MessageID != "m1" || rows[0].Event != models.EventStart {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestPostEventInvalidJSON(t *testing.T) {
	s, st := newServer(t, nil)
	rec := do(t, s, http.MethodPost, "/events", "{", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(st.Records()) != 0 {
		t.Fatalf("nothing should be stored")
	}
}

func TestPostEventTooLarge(t *testing.T) {
	s, st := newServer(t, nil)
	body := `{"event":"start","padding":"` + strings.Repeat("x", maxEventBytes) + `"}`
	rec := do(t, s, http.MethodPost, "/events", body, nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if len(st.Records()) != 0 {
		t.Fatalf("nothing should be stored")
	}
}

func TestPostEventSwallowsInvalidNotification(t *testing.T) {
	s, st := newServer(t, nil)
	rec := do(t, s, http.MethodPost, "/events", `{"event":"start"}`, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(st.Records()) != 0 {
		t.Fatalf("nothing should be stored")
	}
}

func TestPostEventRateLimited(t *testing.T) {
	limiter := &stubLimiter{allow: false}
	s, st := newServer(t, limiter)
	rec := do(t, s, http.MethodPost, "/events", startEvent, map[string]string{"X-Producer-ID": "worker-7"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if len(limiter.seen) != 1 || limiter.seen[0] != "worker-7" {
		t.Fatalf("unexpected producer keys %v", limiter.seen)
	}
	if len(st.Records()) != 0 {
		t.Fatalf("nothing should be stored")
	}

	limiter = &stubLimiter{err: errors.New("redis down")}
	s, _ = newServer(t, limiter)
	if rec := do(t, s, http.MethodPost, "/events", startEvent, nil); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if limiter.seen[0] != "default" {
		t.Fatalf("expected default producer, got %v", limiter.seen)
	}
}

func TestEventKinds(t *testing.T) {
	s, _ := newServer(t, nil)
	rec := do(t, s, http.MethodGet, "/events/kinds", "", nil)
	var resp struct {
		Items []eventKind `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 7 {
		t.Fatalf("expected 7 kinds, got %d", len(resp.Items))
	}
	if resp.Items[0].Name != "Seen" || resp.Items[0].Terminal || resp.Items[6].Name != "Failure" || !resp.Items[6].Terminal {
		t.Fatalf("unexpected kinds %+v", resp.Items)
	}
}

func TestLastEventsAndStuck(t *testing.T) {
	s, st := newServer(t, nil)
	old := time.Now().UTC().Add(-2 * time.Hour)
	st.WithClock(func() time.Time { return old })
	for _, r := range []models.LogRecord{
		{MessageID: "stuck", MessageTimestamp: old, Event: models.EventStart, Content: "{}"},
		{MessageID: "done", MessageTimestamp: old, Event: models.EventStart, Content: "{}"},
		{MessageID: "done", MessageTimestamp: old, Event: models.EventSuccess, Content: "{}"},
	} {
		if _, err := st.Append(context.Background(), r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	rec := do(t, s, http.MethodGet, "/jobs/last-events", "", nil)
	var last struct {
		Items []models.LastEvent `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &last); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(last.Items) != 2 {
		t.Fatalf("expected 2 messages, got %+v", last.Items)
	}

	rec = do(t, s, http.MethodGet, "/jobs/stuck", "", nil)
	var stuck struct {
		Minutes int                `json:"minutes"`
		Count   int                `json:"count"`
		Items   []models.LastEvent `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stuck); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stuck.Minutes != config.DefaultLongJobInMinutes || stuck.Count != 1 || stuck.Items[0].MessageID != "stuck" {
		t.Fatalf("unexpected stuck response %+v", stuck)
	}

	rec = do(t, s, http.MethodGet, "/jobs/stuck?minutes=180", "", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &stuck); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stuck.Count != 0 {
		t.Fatalf("expected no stuck jobs over 180 minutes, got %d", stuck.Count)
	}
}

func TestStuckInvalidMinutes(t *testing.T) {
	s, _ := newServer(t, nil)
	for _, q := range []string{"abc", "0", "-5"} {
		if rec := do(t, s, http.MethodGet, "/jobs/stuck?minutes="+q, "", nil); rec.Code != http.StatusBadRequest {
			t.Fatalf("minutes=%s: expected 400, got %d", q, rec.Code)
		}
	}
}
