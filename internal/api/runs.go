package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shibinsp/task-assistant-ai/internal/automation"
)

// handleGetRun returns a single run by ID.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid run ID")
		return
	}

	run, err := s.repo.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, automation.ErrRunNotFound) {
			writeNotFound(w, "run not found")
			return
		}
		writeInternalError(w, "failed to get run")
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// resolveRequest is the request body for POST /runs/{id}/resolve.
type resolveRequest struct {
	HumanAction automation.HumanAction `json:"human_action"`
}

// handleResolveRun reconciles a completed shadow run against the action a
// human actually took, updating the agent's shadow match rate.
func (s *Server) handleResolveRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid run ID")
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.HumanAction.Type == "" {
		writeBadRequest(w, "human_action.type is required")
		return
	}

	matched, err := s.shadow.ResolveShadowRun(r.Context(), id, req.HumanAction)
	if err != nil {
		switch {
		case errors.Is(err, automation.ErrRunNotFound):
			writeNotFound(w, "run not found")
		case errors.Is(err, automation.ErrRunNotShadow), errors.Is(err, automation.ErrRunNotComplete):
			writeConflict(w, err.Error())
		default:
			writeInternalError(w, "failed to resolve shadow run")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"run_id": id, "matched": matched})
}

// handleConfirmRun settles an awaiting_confirmation run from a supervised
// agent, crediting its success counters.
func (s *Server) handleConfirmRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid run ID")
		return
	}

	run, err := s.engine.ConfirmRun(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, automation.ErrRunNotFound):
			writeNotFound(w, "run not found")
		case errors.Is(err, automation.ErrRunNotAwaiting):
			writeConflict(w, err.Error())
		default:
			writeInternalError(w, "failed to confirm run")
		}
		return
	}

	writeJSON(w, http.StatusOK, run)
}
