// Package api exposes the HTTP interface for submitting scrape tasks.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tgstats/channel-harvester/internal/harvester"
	"github.com/tgstats/channel-harvester/internal/metrics"
	"github.com/tgstats/channel-harvester/internal/queue"
)

// Server wires HTTP handlers to the task queue. It only validates shape
// (non-empty list, parseable date) and enqueues; scraping failures surface
// in logs and the run ledger, never synchronously here.
type Server struct {
	router    chi.Router
	publisher queue.Publisher
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(publisher queue.Publisher, logger *zap.Logger) *Server {
	s := &Server{
		publisher: publisher,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/scrapes", s.submitScrapes)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type scrapeRequest struct {
	Channels []string `json:"channels"`
	FromDate string   `json:"from_date,omitempty"`
}

type scrapeResponse struct {
	Enqueued int `json:"enqueued"`
}

func (s *Server) submitScrapes(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Channels) == 0 {
		writeError(w, http.StatusBadRequest, "channels list must not be empty")
		return
	}
	if req.FromDate != "" {
		if _, err := time.Parse(harvester.DateLayout, req.FromDate); err != nil {
			writeError(w, http.StatusBadRequest, "from_date must be DD-MM-YYYY")
			return
		}
	}
	for _, name := range req.Channels {
		handle := harvester.NormalizeHandle(name)
		if !harvester.ValidHandle(handle) {
			writeError(w, http.StatusBadRequest, "invalid channel handle: "+name)
			return
		}
	}

	for _, name := range req.Channels {
		task := harvester.Task{
			Type:        harvester.TaskTypeScrape,
			ChannelName: harvester.NormalizeHandle(name),
			FromDate:    req.FromDate,
		}
		if err := s.publisher.Publish(r.Context(), task); err != nil {
			s.logger.Error("enqueue scrape task failed",
				zap.String("channel", task.ChannelName),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "failed to enqueue tasks")
			return
		}
	}

	writeJSON(w, http.StatusAccepted, scrapeResponse{Enqueued: len(req.Channels)})
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
