package automation

import (
	"context"
	"strings"
	"time"
)

// ShadowReport summarizes an agent's shadow performance and promotion
// readiness for the management surface.
type ShadowReport struct {
	AgentID         string  `json:"agent_id"`
	ShadowRuns      int     `json:"shadow_runs"`
	ResolvedRuns    int     `json:"resolved_runs"`
	Matches         int     `json:"matches"`
	MatchRate       float64 `json:"match_rate"`
	MinShadowRuns   int     `json:"min_shadow_runs"`
	MinMatchRate    float64 `json:"min_match_rate"`
	ReadyForLive    bool    `json:"ready_for_live"`
	UnresolvedRuns  int     `json:"unresolved_runs"`
	ShadowStartedAt string  `json:"shadow_started_at,omitempty"`
}

// ShadowResolver reconciles shadow predictions against the human actions
// observed later. Resolution is an explicit operation: nothing inside the
// execution engine guesses at matches.
type ShadowResolver struct {
	repo     Repository
	registry *Registry
	cfg      PromotionConfig
	logger   Logger
}

// NewShadowResolver creates a shadow resolver. Zero-value thresholds in cfg
// fall back to the defaults.
func NewShadowResolver(repo Repository, registry *Registry, cfg PromotionConfig, logger Logger) *ShadowResolver {
	if cfg.MinShadowRuns <= 0 {
		cfg.MinShadowRuns = DefaultMinShadowRuns
	}
	if cfg.MinMatchRate <= 0 {
		cfg.MinMatchRate = DefaultMinMatchRate
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &ShadowResolver{
		repo:     repo,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
}

// ResolveShadowRun records the observed human action against a completed
// shadow run and reports whether the prediction matched. The agent's
// shadow_match_rate is then recomputed from the run log over resolved runs
// only, so unresolved runs never drag the ratio.
//
// A prediction matches when its action type and target both equal the
// human's (case-insensitive on type).
func (s *ShadowResolver) ResolveShadowRun(ctx context.Context, runID string, human HumanAction) (bool, error) {
	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return false, err
	}
	if !run.IsShadow {
		return false, ErrRunNotShadow
	}
	if run.CompletedAt == nil {
		return false, ErrRunNotComplete
	}

	matched := predictionMatches(run.Output, human)

	if err := s.repo.ResolveRun(ctx, runID, human, matched); err != nil {
		return false, err
	}

	rate, err := s.repo.RecomputeShadowMatchRate(ctx, run.AgentID)
	if err != nil {
		return false, err
	}
	if s.registry != nil {
		if _, reloadErr := s.registry.Reload(ctx, run.AgentID); reloadErr != nil {
			s.logger.Warn("cache reload failed after resolution", "agent_id", run.AgentID, "error", reloadErr)
		}
	}

	s.logger.Info("shadow run resolved",
		"run_id", runID,
		"agent_id", run.AgentID,
		"matched", matched,
		"match_rate", rate,
	)
	return matched, nil
}

// Report summarizes shadow performance and whether the agent currently
// clears the promotion guard.
func (s *ShadowResolver) Report(ctx context.Context, agentID string) (*ShadowReport, error) {
	agent, err := s.repo.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	resolved, matches, err := s.repo.ShadowStats(ctx, agentID)
	if err != nil {
		return nil, err
	}

	rate := 0.0
	if resolved > 0 {
		rate = float64(matches) / float64(resolved)
	}

	report := &ShadowReport{
		AgentID:        agent.ID,
		ShadowRuns:     agent.ShadowRuns,
		ResolvedRuns:   resolved,
		Matches:        matches,
		MatchRate:      rate,
		MinShadowRuns:  s.cfg.MinShadowRuns,
		MinMatchRate:   s.cfg.MinMatchRate,
		ReadyForLive:   agent.ShadowRuns >= s.cfg.MinShadowRuns && rate >= s.cfg.MinMatchRate,
		UnresolvedRuns: agent.ShadowRuns - resolved,
	}
	if agent.ShadowStartedAt != nil {
		report.ShadowStartedAt = agent.ShadowStartedAt.UTC().Format(time.RFC3339)
	}
	return report, nil
}

// predictionMatches compares the run's first predicted action against the
// observed human action.
func predictionMatches(output []ActionResult, human HumanAction) bool {
	if len(output) == 0 {
		return false
	}
	predicted := output[0]
	return strings.EqualFold(predicted.Type, human.Type) && predicted.Target == human.Target
}
