package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shibinsp/task-assistant-ai/internal/automation"
)

// maxQueryParamLen limits query parameter length to prevent DoS via oversized URL params.
const maxQueryParamLen = 100

// handleListAgents returns all agents, optionally filtered by organisation.
//
// Query parameters:
//   - org_id: filter by organisation
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("org_id")
	if len(orgID) > maxQueryParamLen {
		writeBadRequest(w, "org_id exceeds maximum length")
		return
	}

	agents, err := s.registry.ListAgents(r.Context(), orgID)
	if err != nil {
		writeInternalError(w, "failed to list agents")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"agents": agents, "count": len(agents)})
}

// handleGetAgent returns a single agent by ID.
func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid agent ID")
		return
	}

	agent, err := s.registry.GetAgent(r.Context(), id)
	if err != nil {
		if errors.Is(err, automation.ErrAgentNotFound) {
			writeNotFound(w, "agent not found")
			return
		}
		writeInternalError(w, "failed to get agent")
		return
	}

	writeJSON(w, http.StatusOK, agent)
}

// handleCreateAgent creates a new agent in CREATED status.
func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var agent automation.AIAgent
	if err := json.NewDecoder(r.Body).Decode(&agent); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.registry.CreateAgent(r.Context(), &agent); err != nil {
		if errors.Is(err, automation.ErrInvalidAgent) || errors.Is(err, automation.ErrInvalidTrigger) ||
			errors.Is(err, automation.ErrInvalidAction) {
			writeBadRequest(w, err.Error())
			return
		}
		if errors.Is(err, automation.ErrAgentExists) {
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
			return
		}
		writeInternalError(w, "failed to create agent")
		return
	}

	writeJSON(w, http.StatusCreated, agent)
}

// updateAgentRequest is the request body for PATCH /agents/{id}. Only the
// declared fields are updatable; counters, shadow evidence, and approval
// metadata are owned by the engine and lifecycle services.
type updateAgentRequest struct {
	Name        *string                 `json:"name"`
	Description *string                 `json:"description"`
	Config      *automation.AgentConfig `json:"config"`
}

// handleUpdateAgent partially updates an agent's name, description, and
// config.
//
// Status is not updatable here; lifecycle moves go through the dedicated
// promote/pause/resume/retire endpoints so transition rules always apply.
func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid agent ID")
		return
	}

	existing, err := s.registry.GetAgent(r.Context(), id)
	if err != nil {
		if errors.Is(err, automation.ErrAgentNotFound) {
			writeNotFound(w, "agent not found")
			return
		}
		writeInternalError(w, "failed to get agent")
		return
	}

	var req updateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.Description != nil {
		existing.Description = req.Description
	}
	if req.Config != nil {
		existing.Config = *req.Config
	}

	if err := s.registry.UpdateAgent(r.Context(), existing); err != nil {
		if errors.Is(err, automation.ErrInvalidAgent) || errors.Is(err, automation.ErrInvalidTrigger) ||
			errors.Is(err, automation.ErrInvalidAction) {
			writeBadRequest(w, err.Error())
			return
		}
		writeInternalError(w, "failed to update agent")
		return
	}

	writeJSON(w, http.StatusOK, existing)
}

// promoteRequest is the request body for POST /agents/{id}/promote.
type promoteRequest struct {
	Target     string `json:"target"`
	ApprovedBy string `json:"approved_by"`
}

// handlePromoteAgent advances an agent along the rollout ladder.
//
// A promotion to SUPERVISED or LIVE from SHADOW is guarded by the shadow
// readiness thresholds; a rejection returns 409 with the current counters.
func (s *Server) handlePromoteAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid agent ID")
		return
	}

	var req promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Target == "" {
		writeBadRequest(w, "target status is required")
		return
	}

	agent, err := s.lifecycle.Promote(r.Context(), id, automation.AgentStatus(req.Target), req.ApprovedBy)
	if err != nil {
		var notReady *automation.PromotionNotReadyError
		if errors.As(err, &notReady) {
			writeJSON(w, http.StatusConflict, Error{
				Status:  http.StatusConflict,
				Code:    ErrCodeConflict,
				Message: notReady.Error(),
				Details: map[string]any{
					"shadow_runs":       notReady.ShadowRuns,
					"shadow_match_rate": notReady.MatchRate,
					"min_shadow_runs":   notReady.MinRuns,
					"min_match_rate":    notReady.MinRate,
				},
			})
			return
		}
		s.writeLifecycleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, agent)
}

// handlePauseAgent moves a SUPERVISED or LIVE agent to PAUSED.
func (s *Server) handlePauseAgent(w http.ResponseWriter, r *http.Request) {
	s.lifecycleMove(w, r, s.lifecycle.Pause)
}

// handleResumeAgent moves a PAUSED agent back to LIVE.
func (s *Server) handleResumeAgent(w http.ResponseWriter, r *http.Request) {
	s.lifecycleMove(w, r, s.lifecycle.Resume)
}

// handleRetireAgent permanently retires an agent.
func (s *Server) handleRetireAgent(w http.ResponseWriter, r *http.Request) {
	s.lifecycleMove(w, r, s.lifecycle.Retire)
}

// lifecycleMove runs a single-target lifecycle transition and writes the result.
func (s *Server) lifecycleMove(w http.ResponseWriter, r *http.Request, move func(ctx context.Context, agentID string) (*automation.AIAgent, error)) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid agent ID")
		return
	}

	agent, err := move(r.Context(), id)
	if err != nil {
		s.writeLifecycleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, agent)
}

// writeLifecycleError maps lifecycle errors to HTTP responses.
func (s *Server) writeLifecycleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, automation.ErrAgentNotFound):
		writeNotFound(w, "agent not found")
	case errors.Is(err, automation.ErrInvalidTransition):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		writeInternalError(w, "failed to transition agent")
	}
}

// handleExecuteAgent manually dispatches an agent.
//
// This is the only dispatch path for SUPERVISED agents; their runs complete
// as awaiting_confirmation and are settled via POST /runs/{id}/confirm.
// SHADOW agents execute as dry runs, LIVE agents execute normally.
func (s *Server) handleExecuteAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid agent ID")
		return
	}

	agent, err := s.registry.GetAgent(r.Context(), id)
	if err != nil {
		if errors.Is(err, automation.ErrAgentNotFound) {
			writeNotFound(w, "agent not found")
			return
		}
		writeInternalError(w, "failed to get agent")
		return
	}

	switch agent.Status {
	case automation.StatusShadow, automation.StatusSupervised, automation.StatusLive:
	default:
		writeError(w, http.StatusConflict, ErrCodeConflict, "agent is not executable in status "+string(agent.Status))
		return
	}

	isShadow := agent.Status == automation.StatusShadow
	// A non-nil run is returned even when execution failed; the run row
	// carries the recorded error, so surface it either way.
	run, _ := s.engine.ExecuteAgent(r.Context(), agent, automation.ManualTriggerData(), isShadow)
	if run == nil {
		writeInternalError(w, "failed to execute agent")
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// handleListRuns returns recent runs for an agent, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid agent ID")
		return
	}

	// Verify agent exists
	if _, err := s.registry.GetAgent(r.Context(), id); err != nil {
		if errors.Is(err, automation.ErrAgentNotFound) {
			writeNotFound(w, "agent not found")
			return
		}
		writeInternalError(w, "failed to get agent")
		return
	}

	const maxRuns = 50
	runs, err := s.repo.ListRuns(r.Context(), id, maxRuns)
	if err != nil {
		writeInternalError(w, "failed to list runs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// handleShadowReport returns shadow performance counters and readiness for an agent.
func (s *Server) handleShadowReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid agent ID")
		return
	}

	report, err := s.shadow.Report(r.Context(), id)
	if err != nil {
		if errors.Is(err, automation.ErrAgentNotFound) {
			writeNotFound(w, "agent not found")
			return
		}
		writeInternalError(w, "failed to build shadow report")
		return
	}

	writeJSON(w, http.StatusOK, report)
}
