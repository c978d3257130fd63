package automation

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) (*Registry, Repository) {
	t.Helper()
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	registry := NewRegistry(repo)
	if err := registry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}
	return registry, repo
}

func TestRegistryCreateAgent_DefaultsAndValidation(t *testing.T) {
	registry, repo := newTestRegistry(t)
	ctx := context.Background()

	agent := testAgent("", "")
	if err := registry.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if agent.ID == "" {
		t.Error("ID not assigned")
	}
	if agent.Status != StatusCreated {
		t.Errorf("status = %q, want %q", agent.Status, StatusCreated)
	}

	// Persisted, not just cached
	if _, err := repo.GetAgent(ctx, agent.ID); err != nil {
		t.Errorf("agent not persisted: %v", err)
	}

	// Validation runs before the store is touched
	bad := testAgent("", "")
	bad.Name = ""
	if err := registry.CreateAgent(ctx, bad); !errors.Is(err, ErrInvalidAgent) {
		t.Errorf("error = %v, want ErrInvalidAgent", err)
	}
	if registry.AgentCount() != 1 {
		t.Errorf("cached agents = %d, want 1", registry.AgentCount())
	}
}

func TestRegistryGetAgent_ReturnsIsolatedCopy(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	if err := registry.CreateAgent(ctx, testAgent("agent-1", StatusCreated)); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	first, err := registry.GetAgent(ctx, "agent-1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}

	// Mutations on the copy must never leak into the cache
	first.Name = "renamed"
	first.Config.Actions[0].Target = "project-lead"
	first.Config.Triggers[0].Event = "task_completed"

	second, err := registry.GetAgent(ctx, "agent-1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if second.Name != "Blocked Task Nudger" {
		t.Errorf("cached name = %q, mutated through a copy", second.Name)
	}
	if second.Config.Triggers[0].Event != "task_blocked" {
		t.Errorf("cached trigger event = %q, mutated through a copy", second.Config.Triggers[0].Event)
	}
	if second.Config.Actions[0].Target != "task-owner" {
		t.Errorf("cached action target = %q, mutated through a copy", second.Config.Actions[0].Target)
	}
}

func TestRegistryGetAgent_Miss(t *testing.T) {
	registry, _ := newTestRegistry(t)
	if _, err := registry.GetAgent(context.Background(), "missing"); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("error = %v, want ErrAgentNotFound", err)
	}
}

func TestRegistryListAgents_OrgFilterAndOrder(t *testing.T) {
	registry, repo := newTestRegistry(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	for i, spec := range []struct {
		id  string
		org string
	}{
		{"agent-c", "org-1"},
		{"agent-a", "org-2"},
		{"agent-b", "org-1"},
	} {
		a := testAgent(spec.id, StatusCreated)
		a.OrgID = spec.org
		a.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if err := repo.CreateAgent(ctx, a); err != nil {
			t.Fatalf("CreateAgent: %v", err)
		}
	}
	if err := registry.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}

	all, err := registry.ListAgents(ctx, "")
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("agents = %d, want 3", len(all))
	}
	// Ordered by creation time, not ID
	if all[0].ID != "agent-c" || all[2].ID != "agent-b" {
		t.Errorf("order = [%s %s %s], want creation order", all[0].ID, all[1].ID, all[2].ID)
	}

	scoped, err := registry.ListAgents(ctx, "org-1")
	if err != nil {
		t.Fatalf("ListAgents(org-1): %v", err)
	}
	if len(scoped) != 2 {
		t.Errorf("org-1 agents = %d, want 2", len(scoped))
	}
	for _, a := range scoped {
		if a.OrgID != "org-1" {
			t.Errorf("agent %s leaked from %s", a.ID, a.OrgID)
		}
	}
}

func TestRegistryReload_PicksUpCounterChanges(t *testing.T) {
	registry, repo := newTestRegistry(t)
	ctx := context.Background()

	if err := registry.CreateAgent(ctx, testAgent("agent-1", StatusLive)); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	// A run outcome lands in the store behind the cache's back
	if err := repo.RecordRunOutcome(ctx, "agent-1", RunOutcome{
		Status: RunSuccess, HoursSaved: 0.5, CompletedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("RecordRunOutcome: %v", err)
	}

	stale, err := registry.GetAgent(ctx, "agent-1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if stale.TotalRuns != 0 {
		t.Fatalf("cache unexpectedly fresh before reload")
	}

	if _, err := registry.Reload(ctx, "agent-1"); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	fresh, err := registry.GetAgent(ctx, "agent-1")
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if fresh.TotalRuns != 1 || fresh.SuccessfulRuns != 1 {
		t.Errorf("counters after reload = %d/%d, want 1/1", fresh.TotalRuns, fresh.SuccessfulRuns)
	}
}
