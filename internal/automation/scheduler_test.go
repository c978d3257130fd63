package automation

import (
	"context"
	"errors"
	"testing"
	"time"
)

// agentFailExecutor fails executions for one specific agent.
type agentFailExecutor struct {
	failAgent string
	executed  []string
}

func (a *agentFailExecutor) Execute(_ context.Context, req ActionRequest) (ActionResult, error) {
	a.executed = append(a.executed, req.AgentID)
	if req.AgentID == a.failAgent {
		return ActionResult{}, errors.New("worker unavailable")
	}
	return ActionResult{Type: req.Action.Type, Target: req.Action.Target, Applied: !req.DryRun}, nil
}

// failingListRepo wraps a Repository and fails agent-list loads, simulating
// an infrastructure failure underneath the batch paths.
type failingListRepo struct {
	Repository
}

func (f *failingListRepo) ListAgentsByStatus(_ context.Context, _ ...AgentStatus) ([]AIAgent, error) {
	return nil, errors.New("disk I/O error")
}

// failingRunRepo wraps a Repository and fails run creation, simulating a
// store failure mid-batch.
type failingRunRepo struct {
	Repository
}

func (f *failingRunRepo) CreateRun(_ context.Context, _ *AgentRun) error {
	return errors.New("disk I/O error")
}

func scheduleAgent(id string, cron string) *AIAgent {
	a := testAgent(id, StatusLive)
	a.Config.Triggers = []Trigger{{Type: TriggerSchedule, Cron: cron}}
	return a
}

func TestScheduler_RegisterIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	sched := NewScheduler(repo, NewEvaluator(&fakeTaskState{}, nil), NewEngine(repo, &recordingExecutor{}, nil, nil), nil)

	agent := scheduleAgent("agent-1", "0 9 * * *")
	if err := sched.Register(agent); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got := sched.JobCount(); got != 1 {
		t.Fatalf("jobs = %d, want 1", got)
	}

	// Re-registering with a new schedule replaces, never duplicates
	agent.Config.Triggers[0].Cron = "30 10 * * *"
	if err := sched.Register(agent); err != nil {
		t.Fatalf("Register (replace): %v", err)
	}
	if got := sched.JobCount(); got != 1 {
		t.Errorf("jobs after replace = %d, want 1", got)
	}

	// The surviving entry honors the second schedule, not the first
	sched.mu.Lock()
	entry := sched.cron.Entry(sched.entries["agent-1"])
	sched.mu.Unlock()
	if entry.Schedule == nil {
		t.Fatal("replaced entry has no schedule")
	}
	next := entry.Schedule.Next(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	if next.Hour() != 10 || next.Minute() != 30 {
		t.Errorf("next fire = %02d:%02d, want 10:30", next.Hour(), next.Minute())
	}

	sched.Unregister("agent-1")
	if got := sched.JobCount(); got != 0 {
		t.Errorf("jobs after unregister = %d, want 0", got)
	}

	// Unregister of an unknown agent is a no-op
	sched.Unregister("never-registered")
}

func TestScheduler_RegisterRejectsNonSchedule(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	sched := NewScheduler(repo, NewEvaluator(&fakeTaskState{}, nil), NewEngine(repo, &recordingExecutor{}, nil, nil), nil)

	err := sched.Register(testAgent("agent-1", StatusLive)) // event trigger only
	if !errors.Is(err, ErrSchedulerRegistration) {
		t.Errorf("error = %v, want ErrSchedulerRegistration", err)
	}
	if got := sched.JobCount(); got != 0 {
		t.Errorf("jobs = %d, want 0", got)
	}
}

func TestScheduler_StartRegistersPersistedAgents(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	for _, a := range []*AIAgent{
		scheduleAgent("agent-live", "0 9 * * *"),
		scheduleAgent("agent-paused", "0 9 * * *"),
		testAgent("agent-event", StatusLive),
	} {
		if err := repo.CreateAgent(ctx, a); err != nil {
			t.Fatalf("CreateAgent: %v", err)
		}
	}
	pausedAgent, err := repo.GetAgent(ctx, "agent-paused")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	pausedAgent.Status = StatusPaused
	if err := repo.UpdateAgent(ctx, pausedAgent); err != nil {
		t.Fatalf("UpdateAgent: %v", err)
	}

	sched := NewScheduler(repo, NewEvaluator(&fakeTaskState{}, nil), NewEngine(repo, &recordingExecutor{}, nil, nil), nil)
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop()

	// Only the live agent with a schedule trigger gets a cron job
	if got := sched.JobCount(); got != 1 {
		t.Errorf("jobs = %d, want 1", got)
	}
}

func TestScheduler_DispatchSkipsUndispatchableStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	agent := scheduleAgent("agent-1", "0 9 * * *")
	if err := repo.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	exec := &agentFailExecutor{}
	sched := NewScheduler(repo, NewEvaluator(&fakeTaskState{}, nil), NewEngine(repo, exec, nil, nil), nil)
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop()

	// Pause lands between registration and fire; the stale job must not run
	agent.Status = StatusPaused
	if err := repo.UpdateAgent(ctx, agent); err != nil {
		t.Fatalf("UpdateAgent: %v", err)
	}

	sched.dispatchScheduled("agent-1")

	if len(exec.executed) != 0 {
		t.Errorf("paused agent executed %d times, want 0", len(exec.executed))
	}
	if got := countRuns(t, repo, "agent-1"); got != 0 {
		t.Errorf("run rows = %d, want 0", got)
	}
}

func TestScheduler_SweepIsolatesAgentFailures(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	conditionAgent := func(id string) *AIAgent {
		a := testAgent(id, StatusLive)
		a.Config.Triggers = []Trigger{
			{Type: TriggerCondition, Condition: &Condition{
				Metric: MetricTasksBlocked, Op: "gt", Threshold: 0,
			}},
		}
		return a
	}
	for _, id := range []string{"agent-a", "agent-b", "agent-c"} {
		if err := repo.CreateAgent(ctx, conditionAgent(id)); err != nil {
			t.Fatalf("CreateAgent: %v", err)
		}
	}

	state := &fakeTaskState{counts: map[string]float64{MetricTasksBlocked: 3}}
	exec := &agentFailExecutor{failAgent: "agent-b"}
	sched := NewScheduler(repo, NewEvaluator(state, nil), NewEngine(repo, exec, nil, nil), nil)

	if err := sched.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	// Every agent was attempted despite agent-b failing
	if len(exec.executed) != 3 {
		t.Errorf("executions = %d, want 3 (failure must not stop the batch)", len(exec.executed))
	}
	for _, id := range []string{"agent-a", "agent-c"} {
		agent, err := repo.GetAgent(ctx, id)
		if err != nil {
			t.Fatalf("GetAgent: %v", err)
		}
		if agent.SuccessfulRuns != 1 {
			t.Errorf("%s successful_runs = %d, want 1", id, agent.SuccessfulRuns)
		}
	}
	failed, err := repo.GetAgent(ctx, "agent-b")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if failed.TotalRuns != 1 || failed.SuccessfulRuns != 0 {
		t.Errorf("agent-b counters = %d/%d, want 1/0", failed.TotalRuns, failed.SuccessfulRuns)
	}
}

func TestScheduler_SweepAbortsOnListFailure(t *testing.T) {
	db := setupTestDB(t)
	repo := &failingListRepo{Repository: NewSQLiteRepository(db)}
	sched := NewScheduler(repo, NewEvaluator(&fakeTaskState{}, nil), NewEngine(repo, &recordingExecutor{}, nil, nil), nil)

	err := sched.Sweep(context.Background())
	if err == nil {
		t.Fatal("expected sweep to abort when the agent list cannot be loaded")
	}
}

func TestScheduler_SweepAbortsOnRunStoreFailure(t *testing.T) {
	db := setupTestDB(t)
	base := NewSQLiteRepository(db)
	ctx := context.Background()

	agent := testAgent("agent-1", StatusLive)
	agent.Config.Triggers = []Trigger{
		{Type: TriggerCondition, Condition: &Condition{Metric: MetricTasksOpen, Op: "gt", Threshold: 0}},
	}
	if err := base.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	// The agent list loads, but the run log cannot be written: that is a
	// store failure, not an agent failure, and aborts the batch.
	repo := &failingRunRepo{Repository: base}
	exec := &recordingExecutor{}
	state := &fakeTaskState{counts: map[string]float64{MetricTasksOpen: 3}}
	sched := NewScheduler(repo, NewEvaluator(state, nil), NewEngine(repo, exec, nil, nil), nil)

	if err := sched.Sweep(ctx); err == nil {
		t.Fatal("expected sweep to abort when run creation fails")
	}
	if len(exec.requests) != 0 {
		t.Errorf("executions = %d, want 0 when no run row exists", len(exec.requests))
	}
}

func TestScheduler_SweepMetricsEmitted(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	agent := testAgent("agent-1", StatusLive)
	agent.Config.Triggers = []Trigger{
		{Type: TriggerCondition, Condition: &Condition{Metric: MetricTasksOpen, Op: "gt", Threshold: 0}},
	}
	if err := repo.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	state := &fakeTaskState{counts: map[string]float64{MetricTasksOpen: 2}}
	sched := NewScheduler(repo, NewEvaluator(state, nil), NewEngine(repo, &recordingExecutor{}, nil, nil), nil)

	var evaluated, dispatched int
	sched.SetSweepRecorder(sweepRecorderFunc(func(e, d int, _ int64) {
		evaluated, dispatched = e, d
	}))

	if err := sched.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if evaluated != 1 || dispatched != 1 {
		t.Errorf("sweep metric = %d evaluated / %d dispatched, want 1/1", evaluated, dispatched)
	}
}

// sweepRecorderFunc adapts a func to the SweepRecorder interface.
type sweepRecorderFunc func(evaluated, dispatched int, durationMs int64)

func (f sweepRecorderFunc) WriteSweepMetric(evaluated, dispatched int, durationMs int64) {
	f(evaluated, dispatched, durationMs)
}

func TestScheduler_SweepIntervalGuard(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	sched := NewScheduler(repo, NewEvaluator(&fakeTaskState{}, nil), NewEngine(repo, &recordingExecutor{}, nil, nil), nil)

	sched.SetSweepInterval(-5 * time.Second)
	if sched.sweepInterval != defaultSweepInterval {
		t.Errorf("negative interval accepted: %v", sched.sweepInterval)
	}

	sched.SetSweepInterval(time.Minute)
	if sched.sweepInterval != time.Minute {
		t.Errorf("interval = %v, want 1m", sched.sweepInterval)
	}
}
