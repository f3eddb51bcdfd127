// Package api provides the read-only HTTP surface of caseflow: health,
// metrics, the case status query, case snapshots and consumer stats.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/debtdesk/caseflow/internal/app/consumer"
	"github.com/debtdesk/caseflow/internal/app/reconcile"
	"github.com/debtdesk/caseflow/internal/domain"
	"github.com/debtdesk/caseflow/internal/infra/observability"
)

// StatusQuerier answers the payment-eligibility query.
type StatusQuerier interface {
	CaseStatus(ctx context.Context, caseID string) (*reconcile.StatusView, error)
}

// Server is the caseflow HTTP API server.
type Server struct {
	status         StatusQuerier
	cases          domain.CaseStore
	history        domain.HistoryLog
	stats          func() consumer.Stats
	corsOrigins    []string
	metricsEnabled bool
	logger         *zap.Logger
}

// NewServer creates a new API server.
func NewServer(status StatusQuerier, cases domain.CaseStore, history domain.HistoryLog, logger *zap.Logger) *Server {
	return &Server{
		status:      status,
		cases:       cases,
		history:     history,
		corsOrigins: []string{"*"},
		logger:      observability.OrNop(logger).Named("api"),
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetConsumerStats exposes consumer counters at /api/v1/consumer/stats.
func (s *Server) SetConsumerStats(f func() consumer.Stats) { s.stats = f }

// SetCORSOrigins sets the allowed CORS origins.
func (s *Server) SetCORSOrigins(origins []string) { s.corsOrigins = origins }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cases/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetCase)
			r.Get("/status", s.handleCaseStatus)
			r.Get("/history", s.handleCaseHistory)
		})
		r.Get("/consumer/stats", s.handleConsumerStats)
	})

	return r
}

// ─── Handlers ───────────────────────────────────────────────────────────────

func (s *Server) handleCaseStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.status.CaseStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	c, err := s.cases.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCaseHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.cases.Get(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	entries, err := s.history.List(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"caseId":  id,
		"entries": entries,
	})
}

func (s *Server) handleConsumerStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeError(w, http.StatusServiceUnavailable, "consumer not running")
		return
	}
	writeJSON(w, http.StatusOK, s.stats())
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrCaseNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error("store read failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}
