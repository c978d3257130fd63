package automation

import (
	"errors"
	"fmt"
)

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, automation.ErrAgentNotFound) {
//	    // handle not found case
//	}
var (
	// ErrAgentNotFound is returned when an agent ID does not exist.
	ErrAgentNotFound = errors.New("agent: not found")

	// ErrAgentExists is returned when creating an agent with an ID that already exists.
	ErrAgentExists = errors.New("agent: already exists")

	// ErrInvalidAgent is returned when agent validation fails.
	ErrInvalidAgent = errors.New("agent: invalid")

	// ErrInvalidTrigger is returned when a trigger declaration is invalid.
	ErrInvalidTrigger = errors.New("agent: invalid trigger")

	// ErrInvalidAction is returned when an action declaration is invalid.
	ErrInvalidAction = errors.New("agent: invalid action")

	// ErrInvalidTransition is returned when a lifecycle transition is not
	// permitted by the state machine.
	ErrInvalidTransition = errors.New("agent: invalid status transition")

	// ErrRunNotFound is returned when a run ID does not exist.
	ErrRunNotFound = errors.New("agent: run not found")

	// ErrRunNotShadow is returned when resolving a run that is not a shadow run.
	ErrRunNotShadow = errors.New("agent: run is not a shadow run")

	// ErrRunNotComplete is returned when acting on a run that has not finished.
	ErrRunNotComplete = errors.New("agent: run not complete")

	// ErrRunNotAwaiting is returned when confirming a run that is not
	// awaiting human confirmation.
	ErrRunNotAwaiting = errors.New("agent: run not awaiting confirmation")

	// ErrPatternNotFound is returned when a pattern ID does not exist.
	ErrPatternNotFound = errors.New("pattern: not found")

	// ErrPatternRejected is returned when mutating a rejected pattern.
	// Rejected patterns are immutable.
	ErrPatternRejected = errors.New("pattern: rejected")

	// ErrPatternNotSuggested is returned when accepting or rejecting a
	// pattern that has not been surfaced to a human yet.
	ErrPatternNotSuggested = errors.New("pattern: not in suggested state")

	// ErrPatternHasAgent is returned when accepting a pattern that already
	// spawned its agent.
	ErrPatternHasAgent = errors.New("pattern: agent already spawned")

	// ErrTriggerEvaluation is returned when trigger config cannot be
	// evaluated (malformed predicate, unknown metric). The agent is skipped;
	// the dispatch batch continues.
	ErrTriggerEvaluation = errors.New("agent: trigger evaluation failed")

	// ErrSchedulerRegistration is returned when a cron job cannot be
	// registered (invalid expression or timezone). The agent remains without
	// a live schedule job until its config is corrected.
	ErrSchedulerRegistration = errors.New("agent: scheduler registration failed")
)

// PromotionNotReadyError is returned when promoting a shadow agent that has
// not met the guard thresholds. It carries the current numbers so callers
// can report why.
type PromotionNotReadyError struct {
	AgentID    string
	ShadowRuns int
	MatchRate  float64
	MinRuns    int
	MinRate    float64
}

func (e *PromotionNotReadyError) Error() string {
	return fmt.Sprintf(
		"agent %s not ready for promotion: shadow_runs=%d (need %d), match_rate=%.2f (need %.2f)",
		e.AgentID, e.ShadowRuns, e.MinRuns, e.MatchRate, e.MinRate,
	)
}
