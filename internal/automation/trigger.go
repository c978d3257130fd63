package automation

import (
	"context"
	"fmt"
	"time"
)

// Evaluator decides whether an agent should fire and produces the
// self-contained trigger payload the execution engine acts on.
//
// Schedule triggers never pass through here: firing is owned by the
// scheduler's cron path, which invokes the engine directly.
type Evaluator struct {
	state  TaskStateProvider
	logger Logger
}

// NewEvaluator creates a trigger evaluator.
func NewEvaluator(state TaskStateProvider, logger Logger) *Evaluator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Evaluator{state: state, logger: logger}
}

// EvaluateEvent decides whether an incoming task lifecycle event fires the
// agent. The vocabulary check happens before any config inspection: this
// path runs once per event per agent, so unmatched events must be rejected
// cheaply.
func (e *Evaluator) EvaluateEvent(agent *AIAgent, eventType string, eventData map[string]any) (bool, TriggerData) {
	if !IsAutomationEvent(eventType) {
		return false, TriggerData{}
	}

	for _, trigger := range agent.Config.Triggers {
		if trigger.Type != TriggerEvent || trigger.Event != eventType {
			continue
		}
		return true, TriggerData{
			TriggerType: TriggerEvent,
			FiredAt:     time.Now().UTC(),
			EventType:   eventType,
			EventData:   eventData,
		}
	}
	return false, TriggerData{}
}

// EvaluateCondition evaluates the agent's first condition trigger against
// current organizational state. Only the first condition trigger counts per
// sweep tick; further triggers are not inspected once one is found.
func (e *Evaluator) EvaluateCondition(ctx context.Context, agent *AIAgent) (bool, TriggerData, error) {
	trigger := agent.ConditionTrigger()
	if trigger == nil {
		return false, TriggerData{}, nil
	}

	cond := trigger.Condition
	if cond == nil {
		return false, TriggerData{}, fmt.Errorf("%w: condition trigger without predicate", ErrTriggerEvaluation)
	}

	observed, err := e.state.CountTasks(ctx, agent.OrgID, cond.Metric, cond.WindowHours)
	if err != nil {
		return false, TriggerData{}, fmt.Errorf("%w: %v", ErrTriggerEvaluation, err)
	}

	fire, err := compare(observed, cond.Op, cond.Threshold)
	if err != nil {
		return false, TriggerData{}, err
	}
	if !fire {
		return false, TriggerData{}, nil
	}

	return true, TriggerData{
		TriggerType:     TriggerCondition,
		FiredAt:         time.Now().UTC(),
		ConditionMetric: cond.Metric,
		ConditionValue:  observed,
		Threshold:       cond.Threshold,
	}, nil
}

// ScheduleTriggerData builds the payload for a cron-driven dispatch. The
// evaluator is bypassed on this path; the scheduler calls the engine with
// this payload directly.
func ScheduleTriggerData(scheduledAt time.Time) TriggerData {
	at := scheduledAt.UTC()
	return TriggerData{
		TriggerType: TriggerSchedule,
		FiredAt:     at,
		ScheduledAt: &at,
	}
}

// ManualTriggerData builds the payload for an operator-initiated dispatch.
func ManualTriggerData() TriggerData {
	return TriggerData{
		TriggerType: TriggerManual,
		FiredAt:     time.Now().UTC(),
	}
}

func compare(observed float64, op string, threshold float64) (bool, error) {
	switch op {
	case "gt":
		return observed > threshold, nil
	case "gte":
		return observed >= threshold, nil
	case "lt":
		return observed < threshold, nil
	case "lte":
		return observed <= threshold, nil
	case "eq":
		return observed == threshold, nil
	default:
		return false, fmt.Errorf("%w: unknown op %q", ErrTriggerEvaluation, op)
	}
}
