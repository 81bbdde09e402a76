package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/cartridge/prioritized-replay/internal/checkpoint"
	"github.com/cartridge/prioritized-replay/internal/metrics"
	"github.com/cartridge/prioritized-replay/internal/service"
	"github.com/cartridge/prioritized-replay/internal/storage"
)

// Server exposes the admin endpoints of a replay buffer
type Server struct {
	backend     storage.Backend
	checkpoints *checkpoint.Manager
	logger      zerolog.Logger
	metrics     *metrics.Collector
}

// NewServer constructs a Server instance. checkpoints may be nil when
// checkpointing is not configured.
func NewServer(backend storage.Backend, checkpoints *checkpoint.Manager, logger zerolog.Logger, collector *metrics.Collector) *Server {
	return &Server{
		backend:     backend,
		checkpoints: checkpoints,
		logger:      logger,
		metrics:     collector,
	}
}

// Routes builds the admin HTTP router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(CorrelationID)
	r.Use(RequestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(RequestMetrics(s.metrics))

	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Post("/checkpoint", s.handleCheckpoint)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"size":   s.backend.Len(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.backend.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, service.StatsToProto(stats))
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	if s.checkpoints == nil || !s.checkpoints.Enabled() {
		s.writeError(w, http.StatusConflict, checkpoint.ErrNoStore.Error())
		return
	}

	cp, err := s.checkpoints.Save(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":       cp.ID,
		"saved_at": cp.SavedAt.Format(time.RFC3339Nano),
		"size":     cp.Snapshot.Size,
	})
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkpoint.ErrNoStore):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error().Err(err).Msg("Admin request failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}
