package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// defaultSweepInterval paces the condition-trigger sweep when config
// carries no override.
const defaultSweepInterval = 5 * time.Minute

// Scheduler owns the two time-driven dispatch paths:
//
//   - a periodic sweep evaluating condition triggers for every dispatchable
//     agent, and
//   - one cron job per agent with a schedule trigger, keyed by agent id.
//
// Register and Unregister are the only mutation points of the job registry;
// registering an agent whose job already exists replaces it. The scheduler
// holds no independent source of truth: Start reconstructs the registry
// from persisted agent state before any dispatch happens, so crashing and
// restarting with zero in-flight jobs is correct.
//
// Thread Safety: all public methods are safe for concurrent use.
type Scheduler struct {
	repo      Repository
	evaluator *Evaluator
	engine    *Engine
	logger    Logger

	cron    *cron.Cron
	entries map[string]cron.EntryID // Job registry keyed by agent ID
	mu      sync.Mutex              // Protects entries

	sweepInterval time.Duration
	defaultTZ     string
	sweeps        SweepRecorder

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// SweepRecorder receives sweep-cycle telemetry. Satisfied by the InfluxDB
// client; may be nil.
type SweepRecorder interface {
	WriteSweepMetric(evaluated, dispatched int, durationMs int64)
}

// NewScheduler creates a scheduler.
func NewScheduler(repo Repository, evaluator *Evaluator, engine *Engine, logger Logger) *Scheduler {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Scheduler{
		repo:          repo,
		evaluator:     evaluator,
		engine:        engine,
		logger:        logger,
		cron:          cron.New(),
		entries:       make(map[string]cron.EntryID),
		sweepInterval: defaultSweepInterval,
	}
}

// SetSweepInterval overrides the condition sweep interval.
func (s *Scheduler) SetSweepInterval(d time.Duration) {
	if d > 0 {
		s.sweepInterval = d
	}
}

// SetDefaultTimezone sets the timezone applied to schedule triggers that
// declare none.
func (s *Scheduler) SetDefaultTimezone(tz string) {
	s.defaultTZ = tz
}

// SetSweepRecorder sets the sweep telemetry sink.
func (s *Scheduler) SetSweepRecorder(rec SweepRecorder) {
	s.sweeps = rec
}

// Start re-registers cron jobs from persisted agent state, starts the cron
// runner, and launches the sweep loop. Startup re-registration completes
// before any dispatch is accepted.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	agents, err := s.repo.ListAgentsByStatus(ctx, StatusShadow, StatusLive)
	if err != nil {
		return fmt.Errorf("loading agents for schedule registration: %w", err)
	}

	registered := 0
	for i := range agents {
		agent := &agents[i]
		if agent.ScheduleTrigger() == nil {
			continue
		}
		if regErr := s.Register(agent); regErr != nil {
			// A bad persisted cron spec must not keep the daemon down; the
			// agent simply has no schedule job until corrected.
			s.logger.Error("startup schedule registration failed", "agent_id", agent.ID, "error", regErr)
			continue
		}
		registered++
	}

	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	s.cron.Start()

	s.wg.Add(1)
	go s.sweepLoop()

	s.logger.Info("scheduler started",
		"cron_jobs", registered,
		"sweep_interval", s.sweepInterval.String(),
	)
	return nil
}

// Stop halts the cron runner and the sweep loop. In-flight runs are not
// awaited; runs left in `running` are reconciled on next startup.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	s.cron.Stop()
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Register creates (or replaces) the cron job for an agent's schedule
// trigger. Registration is idempotent per agent id: an existing job is
// removed before the new one is added, so the latest schedule always wins.
//
// Invalid cron expressions and timezones are rejected here, at registration
// time, never at first fire.
func (s *Scheduler) Register(agent *AIAgent) error {
	trigger := agent.ScheduleTrigger()
	if trigger == nil {
		return fmt.Errorf("%w: agent %s has no schedule trigger", ErrSchedulerRegistration, agent.ID)
	}

	spec := CronSpec(trigger, s.defaultTZ)
	agentID := agent.ID

	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, err := s.cron.AddFunc(spec, func() {
		s.dispatchScheduled(agentID)
	})
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrSchedulerRegistration, spec, err)
	}

	if existing, ok := s.entries[agentID]; ok {
		s.cron.Remove(existing)
	}
	s.entries[agentID] = entryID

	s.logger.Debug("cron job registered", "agent_id", agentID, "spec", spec)
	return nil
}

// Unregister removes an agent's cron job, if any. Safe to call for agents
// that never had one.
func (s *Scheduler) Unregister(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[agentID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, agentID)
		s.logger.Debug("cron job unregistered", "agent_id", agentID)
	}
}

// JobCount returns the number of registered cron jobs.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// dispatchScheduled runs when an agent's cron job fires. The agent is
// re-read so the status at the moment of firing decides whether it runs:
// a job racing a pause or retire must not execute.
func (s *Scheduler) dispatchScheduled(agentID string) {
	ctx := s.baseCtx
	scheduledAt := time.Now().UTC()

	agent, err := s.repo.GetAgent(ctx, agentID)
	if err != nil {
		s.logger.Error("scheduled dispatch failed to load agent", "agent_id", agentID, "error", err)
		return
	}
	if !agent.Status.IsDispatchable() {
		s.logger.Debug("scheduled dispatch skipped", "agent_id", agentID, "status", string(agent.Status))
		return
	}

	triggerData := ScheduleTriggerData(scheduledAt)
	if _, execErr := s.engine.ExecuteAgent(ctx, agent, triggerData, agent.Status == StatusShadow); execErr != nil {
		s.logger.Error("scheduled execution failed", "agent_id", agentID, "error", execErr)
	}
}

// sweepLoop drives the periodic condition sweep until Stop.
func (s *Scheduler) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.baseCtx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(s.baseCtx); err != nil {
				s.logger.Error("sweep aborted", "error", err)
			}
		}
	}
}

// Sweep evaluates the first condition trigger of every dispatchable agent
// and executes those that fire. One tick processes every eligible agent
// before completing. Per-agent evaluation and execution failures are logged
// and isolated; a failure to load the agent list or to record a run aborts
// the batch and is returned.
func (s *Scheduler) Sweep(ctx context.Context) error {
	started := time.Now()

	agents, err := s.repo.ListAgentsByStatus(ctx, StatusShadow, StatusLive)
	if err != nil {
		return fmt.Errorf("loading agents for sweep: %w", err)
	}

	dispatched := 0
	for i := range agents {
		agent := &agents[i]

		fire, triggerData, evalErr := s.evaluator.EvaluateCondition(ctx, agent)
		if evalErr != nil {
			s.logger.Error("condition evaluation failed", "agent_id", agent.ID, "error", evalErr)
			continue
		}
		if !fire {
			continue
		}

		run, execErr := s.engine.ExecuteAgent(ctx, agent, triggerData, agent.Status == StatusShadow)
		if execErr != nil {
			if run == nil {
				// No run row was created: the store itself is failing,
				// which aborts the batch rather than isolating the agent.
				return fmt.Errorf("recording run for agent %s: %w", agent.ID, execErr)
			}
			s.logger.Error("sweep execution failed", "agent_id", agent.ID, "error", execErr)
			continue
		}
		dispatched++
	}

	durationMs := time.Since(started).Milliseconds()
	if s.sweeps != nil {
		s.sweeps.WriteSweepMetric(len(agents), dispatched, durationMs)
	}

	s.logger.Debug("sweep complete",
		"evaluated", len(agents),
		"dispatched", dispatched,
		"duration_ms", durationMs,
	)
	return nil
}
