package automation

import (
	"context"
	"errors"
	"testing"
	"time"
)

// recordingScheduler implements SchedulerControl and records calls.
type recordingScheduler struct {
	registered   []string
	unregistered []string
	registerErr  error
}

func (r *recordingScheduler) Register(agent *AIAgent) error {
	r.registered = append(r.registered, agent.ID)
	return r.registerErr
}

func (r *recordingScheduler) Unregister(agentID string) {
	r.unregistered = append(r.unregistered, agentID)
}

func newTestLifecycle(t *testing.T) (*Lifecycle, Repository, *recordingScheduler) {
	t.Helper()
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	registry := NewRegistry(repo)
	if err := registry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}
	sched := &recordingScheduler{}
	return NewLifecycle(repo, registry, sched, PromotionConfig{}, nil), repo, sched
}

func TestPromote_GuardBlocksUnderThreshold(t *testing.T) {
	lifecycle, repo, _ := newTestLifecycle(t)
	ctx := context.Background()

	agent := testAgent("agent-1", StatusShadow)
	if err := repo.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	// 9 resolved matching runs: a perfect rate still fails the run minimum
	seedResolvedShadowRuns(t, repo, "agent-1", 9, 9)

	_, err := lifecycle.Promote(ctx, "agent-1", StatusLive, "ops@example.com")
	var notReady *PromotionNotReadyError
	if !errors.As(err, &notReady) {
		t.Fatalf("error = %v, want *PromotionNotReadyError", err)
	}
	if notReady.ShadowRuns != 9 {
		t.Errorf("reported shadow_runs = %d, want 9", notReady.ShadowRuns)
	}
	if notReady.MatchRate != 1.0 {
		t.Errorf("reported match_rate = %v, want 1.0", notReady.MatchRate)
	}
	if notReady.MinRuns != DefaultMinShadowRuns || notReady.MinRate != DefaultMinMatchRate {
		t.Errorf("reported thresholds = %d/%v, want defaults", notReady.MinRuns, notReady.MinRate)
	}

	// Nothing changed
	got, err := repo.GetAgent(ctx, "agent-1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if got.Status != StatusShadow {
		t.Errorf("status = %q, want unchanged %q", got.Status, StatusShadow)
	}
}

func TestPromote_GuardBlocksLowMatchRate(t *testing.T) {
	lifecycle, repo, _ := newTestLifecycle(t)
	ctx := context.Background()

	if err := repo.CreateAgent(ctx, testAgent("agent-1", StatusShadow)); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	// 12 resolved runs but only half matched
	seedResolvedShadowRuns(t, repo, "agent-1", 12, 6)

	_, err := lifecycle.Promote(ctx, "agent-1", StatusSupervised, "")
	var notReady *PromotionNotReadyError
	if !errors.As(err, &notReady) {
		t.Fatalf("error = %v, want *PromotionNotReadyError", err)
	}
	if notReady.MatchRate != 0.5 {
		t.Errorf("reported match_rate = %v, want 0.5", notReady.MatchRate)
	}
}

func TestPromote_GuardPassesWhenReady(t *testing.T) {
	lifecycle, repo, _ := newTestLifecycle(t)
	ctx := context.Background()

	if err := repo.CreateAgent(ctx, testAgent("agent-1", StatusShadow)); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	seedResolvedShadowRuns(t, repo, "agent-1", 10, 10)

	agent, err := lifecycle.Promote(ctx, "agent-1", StatusLive, "ops@example.com")
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if agent.Status != StatusLive {
		t.Errorf("status = %q, want %q", agent.Status, StatusLive)
	}
	if agent.ApprovedBy == nil || *agent.ApprovedBy != "ops@example.com" {
		t.Errorf("approved_by = %v, want ops@example.com", agent.ApprovedBy)
	}
}

func TestPromote_ShadowEntrySetsStartTimestamp(t *testing.T) {
	lifecycle, repo, _ := newTestLifecycle(t)
	ctx := context.Background()

	if err := repo.CreateAgent(ctx, testAgent("agent-1", StatusCreated)); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	agent, err := lifecycle.Promote(ctx, "agent-1", StatusShadow, "")
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if agent.ShadowStartedAt == nil {
		t.Error("shadow_started_at not set on first entry to shadow")
	}
}

func TestPromote_InvalidTransitions(t *testing.T) {
	lifecycle, repo, _ := newTestLifecycle(t)
	ctx := context.Background()

	if err := repo.CreateAgent(ctx, testAgent("agent-created", StatusCreated)); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if err := repo.CreateAgent(ctx, testAgent("agent-retired", StatusRetired)); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	// CREATED cannot skip the ladder straight to LIVE
	if _, err := lifecycle.Promote(ctx, "agent-created", StatusLive, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("created->live error = %v, want ErrInvalidTransition", err)
	}

	// RETIRED is terminal
	if _, err := lifecycle.Promote(ctx, "agent-retired", StatusShadow, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("retired->shadow error = %v, want ErrInvalidTransition", err)
	}
	if _, err := lifecycle.Resume(ctx, "agent-retired"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("resume retired error = %v, want ErrInvalidTransition", err)
	}
}

func TestPauseResume(t *testing.T) {
	lifecycle, repo, _ := newTestLifecycle(t)
	ctx := context.Background()

	if err := repo.CreateAgent(ctx, testAgent("agent-1", StatusLive)); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	paused, err := lifecycle.Pause(ctx, "agent-1")
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if paused.Status != StatusPaused {
		t.Errorf("status = %q, want %q", paused.Status, StatusPaused)
	}

	resumed, err := lifecycle.Resume(ctx, "agent-1")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.Status != StatusLive {
		t.Errorf("status = %q, want %q", resumed.Status, StatusLive)
	}
}

func TestTransition_SchedulerFollowsStatus(t *testing.T) {
	lifecycle, repo, sched := newTestLifecycle(t)
	ctx := context.Background()

	agent := scheduleAgent("agent-1", "0 9 * * *")
	agent.Status = StatusLive
	if err := repo.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	// Pause removes the cron job
	if _, err := lifecycle.Pause(ctx, "agent-1"); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if len(sched.unregistered) != 1 || sched.unregistered[0] != "agent-1" {
		t.Errorf("unregistered = %v, want [agent-1]", sched.unregistered)
	}

	// Resume re-registers it
	if _, err := lifecycle.Resume(ctx, "agent-1"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if len(sched.registered) != 1 || sched.registered[0] != "agent-1" {
		t.Errorf("registered = %v, want [agent-1]", sched.registered)
	}
}

func TestTransition_RegistrationFailureDoesNotRevertStatus(t *testing.T) {
	lifecycle, repo, sched := newTestLifecycle(t)
	ctx := context.Background()

	agent := scheduleAgent("agent-1", "0 9 * * *")
	agent.Status = StatusPaused
	if err := repo.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	sched.registerErr = errors.New("cron rejected spec")

	resumed, err := lifecycle.Resume(ctx, "agent-1")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.Status != StatusLive {
		t.Errorf("status = %q, want %q despite registration failure", resumed.Status, StatusLive)
	}
}

// seedResolvedShadowRuns inserts completed, resolved shadow runs directly
// through the repository: total runs of which `matches` matched.
func seedResolvedShadowRuns(t *testing.T, repo Repository, agentID string, total, matches int) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < total; i++ {
		run := testRun(GenerateID(), agentID, true)
		if err := repo.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
		completed := time.Now().UTC()
		run.Status = RunSuccess
		run.CompletedAt = &completed
		if err := repo.UpdateRun(ctx, run); err != nil {
			t.Fatalf("UpdateRun: %v", err)
		}
		if err := repo.RecordRunOutcome(ctx, agentID, RunOutcome{
			Status: RunSuccess, IsShadow: true, CompletedAt: completed,
		}); err != nil {
			t.Fatalf("RecordRunOutcome: %v", err)
		}

		matched := i < matches
		human := HumanAction{Type: "send_reminder", Target: "task-owner"}
		if err := repo.ResolveRun(ctx, run.ID, human, matched); err != nil {
			t.Fatalf("ResolveRun: %v", err)
		}
	}

	if _, err := repo.RecomputeShadowMatchRate(ctx, agentID); err != nil {
		t.Fatalf("RecomputeShadowMatchRate: %v", err)
	}
}
