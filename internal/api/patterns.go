package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shibinsp/task-assistant-ai/internal/automation"
)

// handleListPatterns returns detected patterns, with optional query filters.
//
// Query parameters:
//   - org_id: filter by organisation
//   - status: filter by pattern status (detected, suggested, accepted, rejected)
func (s *Server) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("org_id")
	if len(orgID) > maxQueryParamLen {
		writeBadRequest(w, "org_id exceeds maximum length")
		return
	}

	status := automation.PatternStatus(r.URL.Query().Get("status"))
	switch status {
	case "", automation.PatternDetected, automation.PatternSuggested,
		automation.PatternAccepted, automation.PatternRejected:
	default:
		writeBadRequest(w, "invalid pattern status")
		return
	}

	patterns, err := s.repo.ListPatterns(r.Context(), orgID, status)
	if err != nil {
		writeInternalError(w, "failed to list patterns")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"patterns": patterns, "count": len(patterns)})
}

// handleGetPattern returns a single pattern by ID.
func (s *Server) handleGetPattern(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid pattern ID")
		return
	}

	pattern, err := s.repo.GetPattern(r.Context(), id)
	if err != nil {
		if errors.Is(err, automation.ErrPatternNotFound) {
			writeNotFound(w, "pattern not found")
			return
		}
		writeInternalError(w, "failed to get pattern")
		return
	}

	writeJSON(w, http.StatusOK, pattern)
}

// handleCreatePattern records a newly detected automation pattern.
func (s *Server) handleCreatePattern(w http.ResponseWriter, r *http.Request) {
	var pattern automation.AutomationPattern
	if err := json.NewDecoder(r.Body).Decode(&pattern); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.patterns.Intake(r.Context(), &pattern); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, pattern)
}

// handleSuggestPattern moves a detected pattern to suggested.
func (s *Server) handleSuggestPattern(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid pattern ID")
		return
	}

	pattern, err := s.patterns.Suggest(r.Context(), id)
	if err != nil {
		s.writePatternError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pattern)
}

// acceptRequest is the request body for POST /patterns/{id}/accept.
type acceptRequest struct {
	CreatedBy string `json:"created_by"`
}

// handleAcceptPattern accepts a suggested pattern, spawning its agent.
func (s *Server) handleAcceptPattern(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid pattern ID")
		return
	}

	var req acceptRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	agent, err := s.patterns.Accept(r.Context(), id, req.CreatedBy)
	if err != nil {
		s.writePatternError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, agent)
}

// handleRejectPattern rejects a pattern. Rejection is terminal.
func (s *Server) handleRejectPattern(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid pattern ID")
		return
	}

	pattern, err := s.patterns.Reject(r.Context(), id)
	if err != nil {
		s.writePatternError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pattern)
}

// writePatternError maps pattern workflow errors to HTTP responses.
func (s *Server) writePatternError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, automation.ErrPatternNotFound):
		writeNotFound(w, "pattern not found")
	case errors.Is(err, automation.ErrPatternRejected),
		errors.Is(err, automation.ErrPatternNotSuggested),
		errors.Is(err, automation.ErrPatternHasAgent):
		writeConflict(w, err.Error())
	default:
		writeInternalError(w, "failed to update pattern")
	}
}
