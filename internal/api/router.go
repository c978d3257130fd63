package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", s.handleHealth)

		// Agent endpoints
		r.Route("/agents", func(r chi.Router) {
			r.Get("/", s.handleListAgents)
			r.Post("/", s.handleCreateAgent)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetAgent)
				r.Patch("/", s.handleUpdateAgent)
				r.Post("/promote", s.handlePromoteAgent)
				r.Post("/pause", s.handlePauseAgent)
				r.Post("/resume", s.handleResumeAgent)
				r.Post("/retire", s.handleRetireAgent)
				r.Post("/execute", s.handleExecuteAgent)
				r.Get("/runs", s.handleListRuns)
				r.Get("/shadow-report", s.handleShadowReport)
			})
		})

		// Run endpoints
		r.Route("/runs/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetRun)
			r.Post("/resolve", s.handleResolveRun)
			r.Post("/confirm", s.handleConfirmRun)
		})

		// Pattern endpoints
		r.Route("/patterns", func(r chi.Router) {
			r.Get("/", s.handleListPatterns)
			r.Post("/", s.handleCreatePattern)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetPattern)
				r.Post("/suggest", s.handleSuggestPattern)
				r.Post("/accept", s.handleAcceptPattern)
				r.Post("/reject", s.handleRejectPattern)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"agents":  s.registry.AgentCount(),
	})
}
