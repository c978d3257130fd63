package automation

import (
	"context"
	"encoding/json"
	"fmt"
)

// EventBridge feeds task lifecycle events into the dispatch path.
//
// The transport subscription is wired by the caller (the daemon subscribes
// the bridge's HandleEvent to the task event topics); the bridge itself only
// knows the dispatch rules: drop events outside the vocabulary, load the
// currently dispatchable agents, evaluate and execute each one with
// per-agent failure isolation.
type EventBridge struct {
	repo      Repository
	evaluator *Evaluator
	engine    *Engine
	logger    Logger
}

// NewEventBridge creates an event bridge.
func NewEventBridge(repo Repository, evaluator *Evaluator, engine *Engine, logger Logger) *EventBridge {
	if logger == nil {
		logger = noopLogger{}
	}
	return &EventBridge{
		repo:      repo,
		evaluator: evaluator,
		engine:    engine,
		logger:    logger,
	}
}

// HandleEvent dispatches one incoming task lifecycle event.
//
// Event types outside the trigger vocabulary are dropped with no further
// work. Agents are loaded fresh from the repository: status at dispatch time
// decides whether an agent runs, which is the enforcement point for "inert
// until promoted". A failure to load the agent list or to record a run
// aborts the whole batch; a single agent's evaluation or execution failure
// is logged and never stops its siblings.
func (b *EventBridge) HandleEvent(ctx context.Context, eventType string, payload []byte) error {
	if !IsAutomationEvent(eventType) {
		return nil
	}

	var eventData map[string]any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &eventData); err != nil {
			b.logger.Warn("unparseable event payload", "event_type", eventType, "error", err)
			eventData = nil
		}
	}

	agents, err := b.repo.ListAgentsByStatus(ctx, StatusShadow, StatusLive)
	if err != nil {
		return fmt.Errorf("loading dispatchable agents: %w", err)
	}

	dispatched := 0
	for i := range agents {
		agent := &agents[i]

		fire, triggerData := b.evaluator.EvaluateEvent(agent, eventType, eventData)
		if !fire {
			continue
		}

		run, execErr := b.engine.ExecuteAgent(ctx, agent, triggerData, agent.Status == StatusShadow)
		if execErr != nil {
			if run == nil {
				// No run row was created: the store itself is failing,
				// which aborts the batch rather than isolating the agent.
				return fmt.Errorf("recording run for agent %s: %w", agent.ID, execErr)
			}
			b.logger.Error("agent execution failed",
				"agent_id", agent.ID,
				"event_type", eventType,
				"error", execErr,
			)
			continue
		}
		dispatched++
	}

	b.logger.Debug("event dispatched",
		"event_type", eventType,
		"eligible", len(agents),
		"fired", dispatched,
	)
	return nil
}
