package automation

import (
	"context"
	"time"
)

// ActionRequest is handed to the injected action executor for one declared
// action. When DryRun is set the executor must compute its decision without
// any side effect against external systems.
type ActionRequest struct {
	AgentID     string
	OrgID       string
	Action      Action
	TriggerData TriggerData
	DryRun      bool
}

// ActionExecutor is the external capability that performs agent actions.
// The engine never implements a concrete action; it only orchestrates when
// and whether to call out, and whether the call is real or dry-run.
type ActionExecutor interface {
	Execute(ctx context.Context, req ActionRequest) (ActionResult, error)
}

// RunRecorder receives per-run telemetry. Satisfied by the InfluxDB client;
// may be nil when telemetry is disabled.
type RunRecorder interface {
	WriteRunMetric(agentID, orgID, status string, isShadow bool, durationMs int64, hoursSaved float64)
}

// minutesPerHour converts declared per-action savings to hours.
const minutesPerHour = 60.0

// defaultExecutionTimeout bounds one agent invocation when the config
// carries none. There is no mid-run cancellation beyond this context.
const defaultExecutionTimeout = 60 * time.Second

// Engine runs one agent invocation end to end.
//
// Every invocation creates exactly one run record: row created as `running`,
// actions performed (or predicted, in shadow mode), row finalized, agent
// counters bumped atomically. Duplicate-trigger suppression is not the
// engine's job; dispatch paths own at-least-once semantics.
//
// Thread Safety: ExecuteAgent is safe for concurrent use, including
// concurrent runs of the same agent.
type Engine struct {
	repo     Repository
	executor ActionExecutor
	metrics  RunRecorder
	logger   Logger
	timeout  time.Duration
}

// NewEngine creates an execution engine.
//
// Parameters:
//   - repo: Repository for the run log and counter rollups
//   - executor: External action capability (real and dry-run execution)
//   - metrics: Run telemetry sink (may be nil)
//   - logger: Logger instance (may be nil)
func NewEngine(repo Repository, executor ActionExecutor, metrics RunRecorder, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		repo:     repo,
		executor: executor,
		metrics:  metrics,
		logger:   logger,
		timeout:  defaultExecutionTimeout,
	}
}

// SetTimeout overrides the per-invocation execution timeout.
func (e *Engine) SetTimeout(d time.Duration) {
	if d > 0 {
		e.timeout = d
	}
}

// ExecuteAgent performs one invocation of the agent.
//
// In shadow mode every action runs dry: the predicted action lands in the
// run's output, nothing is applied, and the agent's shadow_runs counter is
// bumped alongside the lifetime counters. For supervised agents taking real
// action the run finalizes as awaiting_confirmation; ConfirmRun settles it.
//
// Failures finalize the run as failed with its error message; the error is
// also returned so dispatch loops can log it. A nil error guarantees the run
// completed and the counters moved.
func (e *Engine) ExecuteAgent(ctx context.Context, agent *AIAgent, trigger TriggerData, isShadow bool) (*AgentRun, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	started := time.Now().UTC()
	run := &AgentRun{
		ID:        GenerateID(),
		AgentID:   agent.ID,
		OrgID:     agent.OrgID,
		Status:    RunRunning,
		Input:     trigger,
		IsShadow:  isShadow,
		StartedAt: started,
	}

	if err := e.repo.CreateRun(ctx, run); err != nil {
		// No run row means no evidence of this fire attempt; bail before
		// touching the executor.
		e.logger.Error("failed to create run record", "agent_id", agent.ID, "error", err)
		return nil, err
	}

	e.logger.Info("agent execution started",
		"agent_id", agent.ID,
		"run_id", run.ID,
		"trigger_type", string(trigger.TriggerType),
		"is_shadow", isShadow,
	)

	var execErr error
	for _, action := range agent.Config.Actions {
		result, err := e.executor.Execute(ctx, ActionRequest{
			AgentID:     agent.ID,
			OrgID:       agent.OrgID,
			Action:      action,
			TriggerData: trigger,
			DryRun:      isShadow,
		})
		if err != nil {
			execErr = err
			break
		}
		run.Output = append(run.Output, result)
	}

	completed := time.Now().UTC()
	run.CompletedAt = &completed
	duration := int(completed.Sub(started).Milliseconds())
	run.DurationMS = &duration

	hoursSaved := 0.0
	switch {
	case execErr != nil:
		run.Status = RunFailed
		msg := execErr.Error()
		run.ErrorMessage = &msg
	case !isShadow && agent.Status == StatusSupervised:
		run.Status = RunAwaitingConfirmation
	default:
		run.Status = RunSuccess
		hoursSaved = declaredHoursSaved(agent.Config.Actions)
	}

	// A timed-out action leaves ctx expired; finalization must still land
	// or the run stays `running` forever and the counters never move.
	finalizeCtx := context.WithoutCancel(ctx)

	if err := e.repo.UpdateRun(finalizeCtx, run); err != nil {
		e.logger.Error("failed to finalize run record", "run_id", run.ID, "error", err)
	}

	outcome := RunOutcome{
		Status:      run.Status,
		IsShadow:    isShadow,
		HoursSaved:  hoursSaved,
		CompletedAt: completed,
	}
	if err := e.repo.RecordRunOutcome(finalizeCtx, agent.ID, outcome); err != nil {
		e.logger.Error("failed to record run outcome", "agent_id", agent.ID, "error", err)
	}

	if e.metrics != nil {
		e.metrics.WriteRunMetric(agent.ID, agent.OrgID, string(run.Status), isShadow, int64(duration), hoursSaved)
	}

	e.logger.Info("agent execution complete",
		"agent_id", agent.ID,
		"run_id", run.ID,
		"status", string(run.Status),
		"duration_ms", duration,
	)

	return run, execErr
}

// ConfirmRun settles a supervised run a human has acknowledged. The run
// moves to success and the agent is credited with the success and declared
// savings its completion withheld.
//
// The settle is conditional on the awaiting status, so concurrent confirms
// of the same run credit the agent at most once; the losers get
// ErrRunNotAwaiting.
func (e *Engine) ConfirmRun(ctx context.Context, runID string) (*AgentRun, error) {
	run, err := e.repo.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	settled, err := e.repo.SettleRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !settled {
		return nil, ErrRunNotAwaiting
	}
	run.Status = RunSuccess

	agent, err := e.repo.GetAgent(ctx, run.AgentID)
	if err != nil {
		return nil, err
	}
	if err := e.repo.ConfirmRunOutcome(ctx, agent.ID, declaredHoursSaved(agent.Config.Actions)); err != nil {
		return nil, err
	}

	e.logger.Info("supervised run confirmed", "run_id", run.ID, "agent_id", run.AgentID)
	return run, nil
}

// declaredHoursSaved sums the per-action savings estimates.
func declaredHoursSaved(actions []Action) float64 {
	total := 0.0
	for _, action := range actions {
		if action.EstimatedMinutesSaved > 0 {
			total += float64(action.EstimatedMinutesSaved) / minutesPerHour
		}
	}
	return total
}
