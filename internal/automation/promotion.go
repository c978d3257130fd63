package automation

import (
	"context"
	"fmt"
	"time"
)

// Default promotion guard thresholds.
const (
	DefaultMinShadowRuns = 10
	DefaultMinMatchRate  = 0.9
)

// PromotionConfig carries the shadow guard thresholds.
type PromotionConfig struct {
	MinShadowRuns int
	MinMatchRate  float64
}

// SchedulerControl is what the lifecycle needs from the scheduler: cron
// registration must follow status changes.
type SchedulerControl interface {
	Register(agent *AIAgent) error
	Unregister(agentID string)
}

// Lifecycle owns agent status transitions: promotion with the shadow guard,
// pause, resume, and retire. It is the only place agent status changes, so
// scheduler registration and the cache stay consistent with the store.
type Lifecycle struct {
	repo      Repository
	registry  *Registry
	scheduler SchedulerControl
	cfg       PromotionConfig
	logger    Logger
}

// NewLifecycle creates the lifecycle service. Zero-value thresholds in cfg
// fall back to the defaults.
func NewLifecycle(repo Repository, registry *Registry, scheduler SchedulerControl, cfg PromotionConfig, logger Logger) *Lifecycle {
	if cfg.MinShadowRuns <= 0 {
		cfg.MinShadowRuns = DefaultMinShadowRuns
	}
	if cfg.MinMatchRate <= 0 {
		cfg.MinMatchRate = DefaultMinMatchRate
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Lifecycle{
		repo:      repo,
		registry:  registry,
		scheduler: scheduler,
		cfg:       cfg,
		logger:    logger,
	}
}

// Promote raises an agent's autonomy level. Moving out of shadow into
// supervised or live requires the shadow guard: enough shadow runs and a
// high enough match rate over the resolved ones. A guard failure returns
// *PromotionNotReadyError with the current numbers and changes nothing.
func (l *Lifecycle) Promote(ctx context.Context, agentID string, target AgentStatus, approver string) (*AIAgent, error) {
	agent, err := l.repo.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(agent.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, agent.Status, target)
	}

	if agent.Status == StatusShadow && (target == StatusSupervised || target == StatusLive) {
		if agent.ShadowRuns < l.cfg.MinShadowRuns || agent.ShadowMatchRate < l.cfg.MinMatchRate {
			return nil, &PromotionNotReadyError{
				AgentID:    agent.ID,
				ShadowRuns: agent.ShadowRuns,
				MatchRate:  agent.ShadowMatchRate,
				MinRuns:    l.cfg.MinShadowRuns,
				MinRate:    l.cfg.MinMatchRate,
			}
		}
	}

	if target == StatusShadow && agent.ShadowStartedAt == nil {
		now := time.Now().UTC()
		agent.ShadowStartedAt = &now
	}
	if approver != "" {
		agent.ApprovedBy = &approver
	}

	return l.transition(ctx, agent, target)
}

// Pause suppresses dispatch while retaining configuration and run history.
func (l *Lifecycle) Pause(ctx context.Context, agentID string) (*AIAgent, error) {
	return l.move(ctx, agentID, StatusPaused)
}

// Resume returns a paused agent to live.
func (l *Lifecycle) Resume(ctx context.Context, agentID string) (*AIAgent, error) {
	return l.move(ctx, agentID, StatusLive)
}

// Retire permanently deactivates an agent. Terminal: retired agents have no
// outgoing transitions.
func (l *Lifecycle) Retire(ctx context.Context, agentID string) (*AIAgent, error) {
	return l.move(ctx, agentID, StatusRetired)
}

func (l *Lifecycle) move(ctx context.Context, agentID string, target AgentStatus) (*AIAgent, error) {
	agent, err := l.repo.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(agent.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, agent.Status, target)
	}
	return l.transition(ctx, agent, target)
}

// transition persists the status change, refreshes the cache, and brings
// scheduler registration in line with the new stage.
func (l *Lifecycle) transition(ctx context.Context, agent *AIAgent, target AgentStatus) (*AIAgent, error) {
	from := agent.Status
	agent.Status = target

	if err := l.repo.UpdateAgent(ctx, agent); err != nil {
		return nil, err
	}
	if l.registry != nil {
		if _, err := l.registry.Reload(ctx, agent.ID); err != nil {
			l.logger.Warn("cache reload failed after transition", "agent_id", agent.ID, "error", err)
		}
	}

	if l.scheduler != nil {
		switch {
		case target.IsDispatchable() && agent.ScheduleTrigger() != nil:
			if err := l.scheduler.Register(agent); err != nil {
				// Status change stands; the agent just has no schedule job
				// until its cron config is corrected.
				l.logger.Error("schedule registration failed", "agent_id", agent.ID, "error", err)
			}
		default:
			l.scheduler.Unregister(agent.ID)
		}
	}

	l.logger.Info("agent transitioned",
		"agent_id", agent.ID,
		"from", string(from),
		"to", string(target),
	)
	return agent, nil
}
