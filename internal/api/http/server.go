// Package httpapi exposes the ops surface: health and a read-only view of
// active workflows. The engine itself has no wire protocol; approval events
// arrive in-process from the upstream event router.
package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/playlist-hub/playlist-hub/internal/application/engine"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	engine *engine.Engine
	logger zerolog.Logger
}

func NewServer(eng *engine.Engine, logger zerolog.Logger) *Server {
	return &Server{
		engine: eng,
		logger: logger.With().Str("service", "http").Logger(),
	}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/workflows", s.handleWorkflows)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "playlist-hub",
	})
}

func (s *Server) handleWorkflows(w http.ResponseWriter, r *http.Request) {
	active := s.engine.Active()
	sort.Slice(active, func(i, j int) bool { return active[i].WorkflowID < active[j].WorkflowID })
	writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(active),
		"workflows": active,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
