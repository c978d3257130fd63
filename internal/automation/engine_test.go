package automation

import (
	"context"
	"errors"
	"testing"
	"time"
)

// recordingExecutor implements ActionExecutor and records every request.
type recordingExecutor struct {
	requests []ActionRequest
	failOn   string // action type that returns an error
}

func (r *recordingExecutor) Execute(_ context.Context, req ActionRequest) (ActionResult, error) {
	r.requests = append(r.requests, req)
	if r.failOn != "" && req.Action.Type == r.failOn {
		return ActionResult{}, errors.New("worker unavailable")
	}
	return ActionResult{
		Type:    req.Action.Type,
		Target:  req.Action.Target,
		Applied: !req.DryRun,
	}, nil
}

func countRuns(t *testing.T, repo Repository, agentID string) int {
	t.Helper()
	runs, err := repo.ListRuns(context.Background(), agentID, 100)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	return len(runs)
}

func TestExecuteAgent_LiveSuccess(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	agent := testAgent("agent-1", StatusLive)
	if err := repo.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	exec := &recordingExecutor{}
	engine := NewEngine(repo, exec, nil, nil)

	run, err := engine.ExecuteAgent(ctx, agent, ManualTriggerData(), false)
	if err != nil {
		t.Fatalf("ExecuteAgent: %v", err)
	}

	if run.Status != RunSuccess {
		t.Errorf("status = %q, want %q", run.Status, RunSuccess)
	}
	if len(run.Output) != 1 || !run.Output[0].Applied {
		t.Errorf("output = %+v, want one applied action", run.Output)
	}
	if run.CompletedAt == nil || run.DurationMS == nil {
		t.Error("completion timing not recorded")
	}

	// Exactly one run row, counters moved, hours credited
	if got := countRuns(t, repo, "agent-1"); got != 1 {
		t.Errorf("run rows = %d, want 1", got)
	}
	reloaded, err := repo.GetAgent(ctx, "agent-1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if reloaded.TotalRuns != 1 || reloaded.SuccessfulRuns != 1 {
		t.Errorf("counters = total %d success %d, want 1/1", reloaded.TotalRuns, reloaded.SuccessfulRuns)
	}
	if reloaded.HoursSavedTotal != 0.5 { // 30 declared minutes
		t.Errorf("hours_saved_total = %v, want 0.5", reloaded.HoursSavedTotal)
	}
}

func TestExecuteAgent_ShadowDryRun(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	agent := testAgent("agent-1", StatusShadow)
	if err := repo.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	exec := &recordingExecutor{}
	engine := NewEngine(repo, exec, nil, nil)

	run, err := engine.ExecuteAgent(ctx, agent, ManualTriggerData(), true)
	if err != nil {
		t.Fatalf("ExecuteAgent: %v", err)
	}

	if !run.IsShadow {
		t.Error("run not marked as shadow")
	}
	if run.Status != RunSuccess {
		t.Errorf("status = %q, want %q", run.Status, RunSuccess)
	}
	if len(exec.requests) != 1 || !exec.requests[0].DryRun {
		t.Errorf("executor requests = %+v, want one dry run", exec.requests)
	}
	if len(run.Output) != 1 || run.Output[0].Applied {
		t.Errorf("output = %+v, want one unapplied prediction", run.Output)
	}

	reloaded, err := repo.GetAgent(ctx, "agent-1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if reloaded.ShadowRuns != 1 {
		t.Errorf("shadow_runs = %d, want 1", reloaded.ShadowRuns)
	}
	if reloaded.HoursSavedTotal != 0 {
		t.Errorf("hours_saved_total = %v, want 0 (shadow runs save nothing)", reloaded.HoursSavedTotal)
	}
}

func TestExecuteAgent_FailureRecorded(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	agent := testAgent("agent-1", StatusLive)
	if err := repo.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	exec := &recordingExecutor{failOn: "send_reminder"}
	engine := NewEngine(repo, exec, nil, nil)

	run, err := engine.ExecuteAgent(ctx, agent, ManualTriggerData(), false)
	if err == nil {
		t.Fatal("expected execution error")
	}
	if run == nil {
		t.Fatal("expected a run record even on failure")
	}
	if run.Status != RunFailed {
		t.Errorf("status = %q, want %q", run.Status, RunFailed)
	}
	if run.ErrorMessage == nil || *run.ErrorMessage != "worker unavailable" {
		t.Errorf("error_message = %v, want worker unavailable", run.ErrorMessage)
	}

	reloaded, err := repo.GetAgent(ctx, "agent-1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if reloaded.TotalRuns != 1 {
		t.Errorf("total_runs = %d, want 1 (failed runs still count)", reloaded.TotalRuns)
	}
	if reloaded.SuccessfulRuns != 0 {
		t.Errorf("successful_runs = %d, want 0", reloaded.SuccessfulRuns)
	}
}

func TestExecuteAgent_SupervisedAwaitsConfirmation(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	agent := testAgent("agent-1", StatusSupervised)
	if err := repo.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	exec := &recordingExecutor{}
	engine := NewEngine(repo, exec, nil, nil)

	run, err := engine.ExecuteAgent(ctx, agent, ManualTriggerData(), false)
	if err != nil {
		t.Fatalf("ExecuteAgent: %v", err)
	}
	if run.Status != RunAwaitingConfirmation {
		t.Fatalf("status = %q, want %q", run.Status, RunAwaitingConfirmation)
	}
	if exec.requests[0].DryRun {
		t.Error("supervised action ran dry; it must execute for real")
	}

	// Completion withheld the success credit
	mid, err := repo.GetAgent(ctx, "agent-1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if mid.TotalRuns != 1 || mid.SuccessfulRuns != 0 || mid.HoursSavedTotal != 0 {
		t.Errorf("pre-confirm counters = %d/%d/%v, want 1/0/0",
			mid.TotalRuns, mid.SuccessfulRuns, mid.HoursSavedTotal)
	}

	// Confirmation settles the run and credits the agent
	confirmed, err := engine.ConfirmRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("ConfirmRun: %v", err)
	}
	if confirmed.Status != RunSuccess {
		t.Errorf("confirmed status = %q, want %q", confirmed.Status, RunSuccess)
	}

	after, err := repo.GetAgent(ctx, "agent-1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if after.TotalRuns != 1 || after.SuccessfulRuns != 1 || after.HoursSavedTotal != 0.5 {
		t.Errorf("post-confirm counters = %d/%d/%v, want 1/1/0.5",
			after.TotalRuns, after.SuccessfulRuns, after.HoursSavedTotal)
	}
}

func TestConfirmRun_Guards(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	agent := testAgent("agent-1", StatusLive)
	if err := repo.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	engine := NewEngine(repo, &recordingExecutor{}, nil, nil)

	t.Run("missing run", func(t *testing.T) {
		_, err := engine.ConfirmRun(ctx, "missing")
		if !errors.Is(err, ErrRunNotFound) {
			t.Errorf("error = %v, want ErrRunNotFound", err)
		}
	})

	t.Run("run not awaiting", func(t *testing.T) {
		run, err := engine.ExecuteAgent(ctx, agent, ManualTriggerData(), false)
		if err != nil {
			t.Fatalf("ExecuteAgent: %v", err)
		}
		if _, err := engine.ConfirmRun(ctx, run.ID); !errors.Is(err, ErrRunNotAwaiting) {
			t.Errorf("error = %v, want ErrRunNotAwaiting", err)
		}
	})
}

func TestExecuteAgent_MetricsEmitted(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	agent := testAgent("agent-1", StatusLive)
	if err := repo.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	var recorded struct {
		agentID string
		status  string
		shadow  bool
		hours   float64
		calls   int
	}
	metrics := runRecorderFunc(func(agentID, _, status string, isShadow bool, _ int64, hoursSaved float64) {
		recorded.agentID = agentID
		recorded.status = status
		recorded.shadow = isShadow
		recorded.hours = hoursSaved
		recorded.calls++
	})

	engine := NewEngine(repo, &recordingExecutor{}, metrics, nil)
	if _, err := engine.ExecuteAgent(ctx, agent, ManualTriggerData(), false); err != nil {
		t.Fatalf("ExecuteAgent: %v", err)
	}

	if recorded.calls != 1 {
		t.Fatalf("metric calls = %d, want 1", recorded.calls)
	}
	if recorded.agentID != "agent-1" || recorded.status != string(RunSuccess) || recorded.shadow {
		t.Errorf("metric = %+v", recorded)
	}
	if recorded.hours != 0.5 {
		t.Errorf("metric hours = %v, want 0.5", recorded.hours)
	}
}

// runRecorderFunc adapts a func to the RunRecorder interface.
type runRecorderFunc func(agentID, orgID, status string, isShadow bool, durationMs int64, hoursSaved float64)

func (f runRecorderFunc) WriteRunMetric(agentID, orgID, status string, isShadow bool, durationMs int64, hoursSaved float64) {
	f(agentID, orgID, status, isShadow, durationMs, hoursSaved)
}

// slowExecutor blocks until the invocation context expires.
type slowExecutor struct{}

func (slowExecutor) Execute(ctx context.Context, _ ActionRequest) (ActionResult, error) {
	<-ctx.Done()
	return ActionResult{}, ctx.Err()
}

func TestExecuteAgent_TimeoutStillFinalizes(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	agent := testAgent("agent-1", StatusLive)
	if err := repo.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	engine := NewEngine(repo, slowExecutor{}, nil, nil)
	engine.SetTimeout(20 * time.Millisecond)

	run, err := engine.ExecuteAgent(ctx, agent, ManualTriggerData(), false)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}

	// The invocation context is long expired; the run must still have been
	// finalized as failed and the counters moved.
	stored, err := repo.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if stored.Status != RunFailed {
		t.Errorf("stored run status = %q, want %q", stored.Status, RunFailed)
	}
	if stored.ErrorMessage == nil {
		t.Error("timed-out run has no error message")
	}

	reloaded, err := repo.GetAgent(ctx, "agent-1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if reloaded.TotalRuns != 1 {
		t.Errorf("total_runs = %d, want 1", reloaded.TotalRuns)
	}
	if reloaded.SuccessfulRuns != 0 || reloaded.HoursSavedTotal != 0 {
		t.Errorf("success/hours = %d/%v, want 0/0", reloaded.SuccessfulRuns, reloaded.HoursSavedTotal)
	}
}

func TestConfirmRun_CreditsExactlyOnce(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	agent := testAgent("agent-1", StatusSupervised)
	if err := repo.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	engine := NewEngine(repo, &recordingExecutor{}, nil, nil)
	run, err := engine.ExecuteAgent(ctx, agent, ManualTriggerData(), false)
	if err != nil {
		t.Fatalf("ExecuteAgent: %v", err)
	}
	if run.Status != RunAwaitingConfirmation {
		t.Fatalf("run status = %q, want %q", run.Status, RunAwaitingConfirmation)
	}

	if _, err := engine.ConfirmRun(ctx, run.ID); err != nil {
		t.Fatalf("ConfirmRun: %v", err)
	}
	if _, err := engine.ConfirmRun(ctx, run.ID); !errors.Is(err, ErrRunNotAwaiting) {
		t.Fatalf("second confirm error = %v, want ErrRunNotAwaiting", err)
	}

	reloaded, err := repo.GetAgent(ctx, "agent-1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if reloaded.SuccessfulRuns != 1 {
		t.Errorf("successful_runs = %d, want exactly 1", reloaded.SuccessfulRuns)
	}
	if reloaded.HoursSavedTotal != 0.5 {
		t.Errorf("hours_saved_total = %v, want 0.5 credited once", reloaded.HoursSavedTotal)
	}

	// Cached counter equals the run-log recomputation
	count, err := repo.CountSuccessfulRuns(ctx, "agent-1")
	if err != nil {
		t.Fatalf("CountSuccessfulRuns: %v", err)
	}
	if count != reloaded.SuccessfulRuns {
		t.Errorf("run-log successes = %d, cached = %d", count, reloaded.SuccessfulRuns)
	}
}
