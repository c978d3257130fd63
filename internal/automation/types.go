package automation

import "time"

// AgentStatus represents an agent's lifecycle stage.
//
// The stage governs dispatch: only shadow and live agents are picked up by
// the scheduler sweep, per-agent cron jobs, and the event bridge. Supervised
// agents execute when dispatched but their runs wait for human confirmation.
type AgentStatus string

const (
	StatusCreated    AgentStatus = "created"
	StatusShadow     AgentStatus = "shadow"
	StatusSupervised AgentStatus = "supervised"
	StatusLive       AgentStatus = "live"
	StatusPaused     AgentStatus = "paused"
	StatusRetired    AgentStatus = "retired"
)

// allowedTransitions is the agent lifecycle state machine. Retired is
// terminal. The shadow promotion guard (minimum runs and match rate) is
// enforced by the Lifecycle service, not here.
var allowedTransitions = map[AgentStatus][]AgentStatus{
	StatusCreated:    {StatusShadow, StatusRetired},
	StatusSupervised: {StatusLive, StatusPaused, StatusRetired},
	StatusShadow:     {StatusSupervised, StatusLive, StatusRetired},
	StatusLive:       {StatusPaused, StatusRetired},
	StatusPaused:     {StatusLive, StatusSupervised, StatusRetired},
	StatusRetired:    {},
}

// CanTransition reports whether moving from one lifecycle stage to another
// is permitted by the state machine.
func CanTransition(from, to AgentStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsDispatchable reports whether agents in this stage are picked up by the
// sweep, cron jobs, and event bridge.
func (s AgentStatus) IsDispatchable() bool {
	return s == StatusShadow || s == StatusLive
}

// TriggerType discriminates the trigger variants in an agent's config.
type TriggerType string

const (
	TriggerSchedule  TriggerType = "schedule"
	TriggerCondition TriggerType = "condition"
	TriggerEvent     TriggerType = "event"

	// TriggerManual marks explicit operator-initiated dispatch. It never
	// appears in an agent's trigger config; only the management API uses it.
	TriggerManual TriggerType = "manual"
)

// Trigger is a tagged variant: exactly the fields for its Type are set.
// Validation at save time rejects mixed or incomplete variants.
type Trigger struct {
	Type TriggerType `json:"type"`

	// schedule: 5-field cron expression plus IANA timezone.
	Cron     string `json:"cron,omitempty"`
	Timezone string `json:"timezone,omitempty"`

	// condition: predicate over current organizational task state.
	Condition *Condition `json:"condition,omitempty"`

	// event: one of the fixed task lifecycle event vocabulary.
	Event string `json:"event,omitempty"`
}

// Condition is a declarative predicate evaluated by the periodic sweep,
// e.g. "more than 5 tasks blocked for over 24 hours".
type Condition struct {
	Metric      string  `json:"metric"` // tasks_blocked, tasks_overdue, tasks_open
	Op          string  `json:"op"`     // gt, gte, lt, lte, eq
	Threshold   float64 `json:"threshold"`
	WindowHours int     `json:"window_hours,omitempty"`
}

// Condition metrics the evaluator understands.
const (
	MetricTasksBlocked = "tasks_blocked"
	MetricTasksOverdue = "tasks_overdue"
	MetricTasksOpen    = "tasks_open"
)

// Task lifecycle events the event trigger vocabulary accepts.
const (
	EventTaskCreated   = "task_created"
	EventTaskCompleted = "task_completed"
	EventTaskBlocked   = "task_blocked"
	EventTaskAssigned  = "task_assigned"
	EventTaskUpdated   = "task_updated"
)

// automationEvents is the pre-computed vocabulary set for O(1) rejection of
// unrelated event types (the event path runs once per event per agent).
var automationEvents = map[string]struct{}{
	EventTaskCreated:   {},
	EventTaskCompleted: {},
	EventTaskBlocked:   {},
	EventTaskAssigned:  {},
	EventTaskUpdated:   {},
}

// IsAutomationEvent reports whether an event type belongs to the trigger
// vocabulary.
func IsAutomationEvent(eventType string) bool {
	_, ok := automationEvents[eventType]
	return ok
}

// Action declares one operation an agent performs when it fires. The engine
// never implements actions itself; it hands them to the injected executor.
type Action struct {
	// Kind of action (e.g. "send_reminder", "reassign_task").
	Type string `json:"type"`

	// Target entity (task ID, user ID, board — action-type specific).
	Target string `json:"target"`

	// Action-specific parameters.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Estimated human minutes saved per successful real run.
	EstimatedMinutesSaved int `json:"estimated_minutes_saved,omitempty"`
}

// Permission names a capability the agent is allowed to invoke.
type Permission string

// AgentConfig is the structured trigger/action/permission declaration
// persisted as JSON on the agent row. It doubles as a pattern's recipe.
type AgentConfig struct {
	Triggers    []Trigger    `json:"triggers"`
	Actions     []Action     `json:"actions"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// AIAgent is the governed automation unit.
//
// Counter fields (TotalRuns, SuccessfulRuns, ShadowRuns, ShadowMatchRate,
// HoursSavedTotal) are cached rollups of the run log, not a separate source
// of truth. They are updated with atomic SQL increments.
type AIAgent struct {
	// Identity
	ID    string `json:"id"`
	OrgID string `json:"org_id"`

	// Optional back-reference to the pattern this agent was spawned from.
	PatternID *string `json:"pattern_id,omitempty"`

	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`

	Status AgentStatus `json:"status"`
	Config AgentConfig `json:"config"`

	// Shadow-mode bookkeeping
	ShadowStartedAt *time.Time `json:"shadow_started_at,omitempty"`
	ShadowRuns      int        `json:"shadow_runs"`
	ShadowMatchRate float64    `json:"shadow_match_rate"`

	// Lifetime counters
	TotalRuns       int        `json:"total_runs"`
	SuccessfulRuns  int        `json:"successful_runs"`
	HoursSavedTotal float64    `json:"hours_saved_total"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`

	// Approval metadata
	CreatedBy  *string `json:"created_by,omitempty"`
	ApprovedBy *string `json:"approved_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScheduleTrigger returns the agent's schedule trigger, or nil.
func (a *AIAgent) ScheduleTrigger() *Trigger {
	for i := range a.Config.Triggers {
		if a.Config.Triggers[i].Type == TriggerSchedule {
			return &a.Config.Triggers[i]
		}
	}
	return nil
}

// ConditionTrigger returns the agent's first condition trigger, or nil.
// Only the first condition trigger is evaluated per sweep tick.
func (a *AIAgent) ConditionTrigger() *Trigger {
	for i := range a.Config.Triggers {
		if a.Config.Triggers[i].Type == TriggerCondition {
			return &a.Config.Triggers[i]
		}
	}
	return nil
}

// RunStatus represents the state of one agent execution.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"

	// RunAwaitingConfirmation marks a supervised run whose real action was
	// taken but whose outcome is not final until a human acknowledges it.
	RunAwaitingConfirmation RunStatus = "awaiting_confirmation"
)

// TriggerData is the self-contained payload a dispatch path hands to the
// execution engine. It must be sufficient to act without re-querying the
// evaluator.
type TriggerData struct {
	TriggerType TriggerType `json:"trigger_type"`
	FiredAt     time.Time   `json:"fired_at"`

	// schedule
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`

	// event
	EventType string         `json:"event_type,omitempty"`
	EventData map[string]any `json:"event_data,omitempty"`

	// condition
	ConditionMetric string  `json:"condition_metric,omitempty"`
	ConditionValue  float64 `json:"condition_value,omitempty"`
	Threshold       float64 `json:"threshold,omitempty"`
}

// ActionResult records one action outcome within a run. For shadow runs
// Applied is always false: the result is the predicted action, not a
// performed one.
type ActionResult struct {
	Type       string         `json:"type"`
	Target     string         `json:"target"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Applied    bool           `json:"applied"`
}

// HumanAction is the later-observed human decision a shadow run's prediction
// is reconciled against.
type HumanAction struct {
	Type   string `json:"type"`
	Target string `json:"target"`
}

// AgentRun is one execution record. Append-only: after creation only the
// completion fields (status, output, error, timing) and the shadow
// reconciliation fields (human_action, matched_human) are ever filled in.
type AgentRun struct {
	ID      string `json:"id"`
	AgentID string `json:"agent_id"`
	OrgID   string `json:"org_id"`

	Status RunStatus `json:"status"`

	Input        TriggerData    `json:"input"`
	Output       []ActionResult `json:"output,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`

	IsShadow bool `json:"is_shadow"`

	// Shadow reconciliation; nil until resolved.
	HumanAction  *HumanAction `json:"human_action,omitempty"`
	MatchedHuman *bool        `json:"matched_human,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  *int       `json:"duration_ms,omitempty"`
}

// PatternStatus represents an automation pattern's lifecycle stage.
type PatternStatus string

const (
	PatternDetected  PatternStatus = "detected"
	PatternSuggested PatternStatus = "suggested"
	PatternAccepted  PatternStatus = "accepted"
	PatternRejected  PatternStatus = "rejected" // terminal, immutable
)

// AutomationPattern is a detected candidate for automation, produced by the
// external pattern detector. An accepted pattern spawns at most one agent.
type AutomationPattern struct {
	ID    string `json:"id"`
	OrgID string `json:"org_id"`

	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`

	// Detection statistics
	FrequencyPerWeek    float64 `json:"frequency_per_week"`
	ConsistencyScore    float64 `json:"consistency_score"` // [0,1]
	AffectedUsers       int     `json:"affected_users"`
	ProjectedHoursSaved float64 `json:"projected_hours_saved"`
	Complexity          string  `json:"complexity"` // low, medium, high

	// Recipe the spawned agent is built from.
	Recipe AgentConfig `json:"recipe"`

	Status PatternStatus `json:"status"`

	// Back-reference to the spawned agent once accepted.
	AgentID *string `json:"agent_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates a complete independent copy of the agent.
// All map and slice fields are cloned so modifications to the copy
// do not affect the original. This is essential for cache isolation.
func (a *AIAgent) DeepCopy() *AIAgent {
	if a == nil {
		return nil
	}

	cpy := *a // Shallow copy of value fields

	cpy.PatternID = cloneStringPtr(a.PatternID)
	cpy.Description = cloneStringPtr(a.Description)
	cpy.CreatedBy = cloneStringPtr(a.CreatedBy)
	cpy.ApprovedBy = cloneStringPtr(a.ApprovedBy)
	cpy.ShadowStartedAt = cloneTimePtr(a.ShadowStartedAt)
	cpy.LastRunAt = cloneTimePtr(a.LastRunAt)
	cpy.Config = a.Config.deepCopy()

	return &cpy
}

func (c AgentConfig) deepCopy() AgentConfig {
	cpy := AgentConfig{}
	if c.Triggers != nil {
		cpy.Triggers = make([]Trigger, len(c.Triggers))
		for i, t := range c.Triggers {
			cpy.Triggers[i] = t
			if t.Condition != nil {
				cond := *t.Condition
				cpy.Triggers[i].Condition = &cond
			}
		}
	}
	if c.Actions != nil {
		cpy.Actions = make([]Action, len(c.Actions))
		for i, a := range c.Actions {
			cpy.Actions[i] = a
			if a.Parameters != nil {
				cpy.Actions[i].Parameters = deepCopyMap(a.Parameters)
			}
		}
	}
	if c.Permissions != nil {
		cpy.Permissions = append([]Permission(nil), c.Permissions...)
	}
	return cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v // Primitives are immutable
	}
}

// cloneStringPtr creates an independent copy of a *string.
func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// cloneTimePtr creates an independent copy of a *time.Time.
func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
