package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"queue-monitor/internal/config"
	"queue-monitor/internal/listener"
	"queue-monitor/internal/models"
	"queue-monitor/internal/monitor"
	"queue-monitor/internal/ratelimit"
	"queue-monitor/internal/store"
	"queue-monitor/internal/telemetry"
)

// maxEventBytes caps the body of a single ingested notification.
const maxEventBytes = 1 << 20

// Limiter decides whether a producer may submit another event.
type Limiter interface {
	Allow(ctx context.Context, producer string) (ratelimit.Decision, error)
}

// Server wires HTTP handlers for event ingestion and the operator read API.
type Server struct {
	cfg      config.Config
	store    store.LogStore
	listener *listener.Listener
	detector *monitor.Detector
	limiter  Limiter
	logger   *slog.Logger
}

// New constructs the API server. limiter may be nil.
func New(cfg config.Config, st store.LogStore, l *listener.Listener, limiter Limiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		store:    st,
		listener: l,
		detector: monitor.NewDetector(st),
		limiter:  limiter,
		logger:   logger,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/events", s.handleEvent)
	r.Get("/events/kinds", s.handleKinds)
	r.Get("/jobs/last-events", s.handleLastEvents)
	r.Get("/jobs/stuck", s.handleStuck)
	return r
}

// handleEvent accepts one lifecycle notification. Notifications that cannot
// be recorded are logged and still acknowledged so producers never retry
// because of the monitor.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var n listener.Notification
	r.Body = http.MaxBytesReader(w, r.Body, maxEventBytes)
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "event too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	producer := producerFromRequest(r)
	if s.limiter != nil {
		d, err := s.limiter.Allow(r.Context(), producer)
		if err != nil {
			s.logger.Error("rate limit check failed", "producer", producer, "error", err)
			writeError(w, http.StatusInternalServerError, "rate limit error")
			return
		}
		if !d.Allowed {
			telemetry.IngestRateLimited.Inc()
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
	}

	s.listener.Handle(r.Context(), n)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type eventKind struct {
	Rank     int    `json:"rank"`
	Name     string `json:"name"`
	Terminal bool   `json:"terminal"`
}

func (s *Server) handleKinds(w http.ResponseWriter, _ *http.Request) {
	options := models.EventOptions()
	kinds := make([]eventKind, 0, len(options))
	for rank, name := range options {
		kinds = append(kinds, eventKind{Rank: rank, Name: name, Terminal: models.IsTerminal(rank)})
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i].Rank < kinds[j].Rank })
	writeJSON(w, http.StatusOK, map[string]any{"items": kinds})
}

func (s *Server) handleLastEvents(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.LastEventPerMessage(r.Context())
	if err != nil {
		s.logger.Error("failed to read last events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read last events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleStuck(w http.ResponseWriter, r *http.Request) {
	minutes := s.cfg.LongJobInMinutes
	if raw := r.URL.Query().Get("minutes"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "minutes must be a positive integer")
			return
		}
		minutes = v
	}

	items, err := s.detector.Detect(r.Context(), minutes)
	if err != nil {
		s.logger.Error("failed to detect stuck jobs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to detect stuck jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"minutes":    minutes,
		"checked_at": time.Now().UTC(),
		"count":      len(items),
		"items":      items,
	})
}

func producerFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-Producer-ID"); v != "" {
		return v
	}
	return "default"
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
