package automation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Validation constants.
const (
	maxNameLength     = 100
	maxDescriptionLen = 500
	maxTriggers       = 10
	maxActions        = 20
	maxParameterKeys  = 20
	maxWindowHours    = 24 * 30 // 30 days
)

// Pre-computed validation sets for O(1) lookups.
var (
	validMetrics = map[string]struct{}{
		MetricTasksBlocked: {},
		MetricTasksOverdue: {},
		MetricTasksOpen:    {},
	}

	validOps = map[string]struct{}{
		"gt": {}, "gte": {}, "lt": {}, "lte": {}, "eq": {},
	}
)

// ValidateAgent performs comprehensive validation on an agent.
// Returns an error describing the first validation failure found.
//
// Trigger declarations are validated here, at save time, so a malformed
// cron expression or condition predicate is rejected before it can ever
// reach the scheduler or evaluator.
func ValidateAgent(a *AIAgent) error {
	if a == nil {
		return ErrInvalidAgent
	}

	if err := ValidateName(a.Name); err != nil {
		return err
	}

	if a.OrgID == "" {
		return fmt.Errorf("%w: org_id is required", ErrInvalidAgent)
	}

	if a.Description != nil && len(*a.Description) > maxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidAgent, maxDescriptionLen)
	}

	if _, ok := allowedTransitions[a.Status]; !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidAgent, a.Status)
	}

	if len(a.Config.Triggers) > maxTriggers {
		return fmt.Errorf("%w: exceeds maximum of %d triggers", ErrInvalidTrigger, maxTriggers)
	}
	for i, trigger := range a.Config.Triggers {
		if err := ValidateTrigger(trigger); err != nil {
			return fmt.Errorf("trigger[%d]: %w", i, err)
		}
	}

	if len(a.Config.Actions) > maxActions {
		return fmt.Errorf("%w: exceeds maximum of %d actions", ErrInvalidAction, maxActions)
	}
	for i, action := range a.Config.Actions {
		if err := ValidateAction(action); err != nil {
			return fmt.Errorf("action[%d]: %w", i, err)
		}
	}

	return nil
}

// ValidateName checks if an agent name is valid.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidAgent)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidAgent, maxNameLength)
	}
	return nil
}

// ValidateTrigger checks a single trigger declaration. Each variant must
// carry exactly its own fields.
func ValidateTrigger(t Trigger) error {
	switch t.Type {
	case TriggerSchedule:
		if t.Condition != nil || t.Event != "" {
			return fmt.Errorf("%w: schedule trigger carries condition/event fields", ErrInvalidTrigger)
		}
		if t.Cron == "" {
			return fmt.Errorf("%w: cron expression is required", ErrInvalidTrigger)
		}
		if _, err := cron.ParseStandard(t.Cron); err != nil {
			return fmt.Errorf("%w: cron %q: %v", ErrInvalidTrigger, t.Cron, err)
		}
		if t.Timezone != "" {
			if _, err := time.LoadLocation(t.Timezone); err != nil {
				return fmt.Errorf("%w: timezone %q: %v", ErrInvalidTrigger, t.Timezone, err)
			}
		}
		return nil

	case TriggerCondition:
		if t.Cron != "" || t.Timezone != "" || t.Event != "" {
			return fmt.Errorf("%w: condition trigger carries schedule/event fields", ErrInvalidTrigger)
		}
		if t.Condition == nil {
			return fmt.Errorf("%w: condition predicate is required", ErrInvalidTrigger)
		}
		if _, ok := validMetrics[t.Condition.Metric]; !ok {
			return fmt.Errorf("%w: unknown metric %q", ErrInvalidTrigger, t.Condition.Metric)
		}
		if _, ok := validOps[t.Condition.Op]; !ok {
			return fmt.Errorf("%w: unknown op %q", ErrInvalidTrigger, t.Condition.Op)
		}
		if t.Condition.WindowHours < 0 || t.Condition.WindowHours > maxWindowHours {
			return fmt.Errorf("%w: window_hours must be 0-%d", ErrInvalidTrigger, maxWindowHours)
		}
		return nil

	case TriggerEvent:
		if t.Cron != "" || t.Timezone != "" || t.Condition != nil {
			return fmt.Errorf("%w: event trigger carries schedule/condition fields", ErrInvalidTrigger)
		}
		if !IsAutomationEvent(t.Event) {
			return fmt.Errorf("%w: unknown event %q", ErrInvalidTrigger, t.Event)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown trigger type %q", ErrInvalidTrigger, t.Type)
	}
}

// ValidateAction checks if an action declaration is valid.
func ValidateAction(action Action) error {
	if action.Type == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidAction)
	}
	if action.Target == "" {
		return fmt.Errorf("%w: target is required", ErrInvalidAction)
	}
	if len(action.Parameters) > maxParameterKeys {
		return fmt.Errorf("%w: parameters exceeds %d keys", ErrInvalidAction, maxParameterKeys)
	}
	if action.EstimatedMinutesSaved < 0 {
		return fmt.Errorf("%w: estimated_minutes_saved cannot be negative", ErrInvalidAction)
	}
	return nil
}

// CronSpec builds the cron spec string for a schedule trigger, prefixing the
// timezone so per-agent timezones are honoured by the job runner. The
// fallback timezone is used when the trigger declares none.
func CronSpec(t *Trigger, fallbackTZ string) string {
	tz := t.Timezone
	if tz == "" {
		tz = fallbackTZ
	}
	if tz == "" || tz == "UTC" {
		return t.Cron
	}
	return "CRON_TZ=" + tz + " " + t.Cron
}

// GenerateID creates a new UUID for an agent, run, or pattern.
func GenerateID() string {
	return uuid.New().String()
}
