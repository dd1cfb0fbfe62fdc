// Package api exposes the trend panel over HTTP: the ranked trend
// view, the refresh trigger with streamed progress, playlist exports
// and buy links.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"trendpanel/internal/config"
	"trendpanel/internal/ingest"
	"trendpanel/internal/models"
	"trendpanel/internal/repository"
	"trendpanel/internal/scoring"
)

// RefreshRunner triggers one ingestion cycle.
type RefreshRunner interface {
	Run(ctx context.Context, region, genre string, progress ingest.ProgressFunc) (*models.RefreshReport, error)
}

type Server struct {
	repo   *repository.Repository
	runner RefreshRunner
	engine *scoring.Engine
	cfg    config.Config
	logger *zap.Logger
}

func NewServer(repo *repository.Repository, runner RefreshRunner, engine *scoring.Engine, cfg config.Config, logger *zap.Logger) *Server {
	return &Server{
		repo:   repo,
		runner: runner,
		engine: engine,
		cfg:    cfg,
		logger: logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestID)
	r.Use(s.recovery)
	r.Use(s.logRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Admin-Code"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/trends", s.handleTrends)
		r.Get("/trends/{trackID}/buy-links", s.handleBuyLinks)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/export", s.handleExport)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Ping(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
