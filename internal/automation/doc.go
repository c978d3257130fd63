// Package automation provides the agent orchestration engine for the task
// assistant.
//
// An agent is a governed automation unit spawned from a detected work
// pattern. It declares triggers (cron schedule, polled condition, or task
// lifecycle event) and actions, and climbs a trust ladder from passive
// shadow observation to autonomous live execution.
//
// Architecture:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  Dispatch front-ends (never mutate counters)                 │
//	│                                                              │
//	│  ┌────────────┐  ┌──────────────────┐  ┌──────────────────┐ │
//	│  │ EventBridge │  │ Scheduler sweep  │  │ Scheduler cron   │ │
//	│  │ (bridge.go) │  │ (condition poll) │  │ (per-agent jobs) │ │
//	│  └──────┬─────┘  └────────┬─────────┘  └────────┬─────────┘ │
//	│         │                 │                      │           │
//	│         ▼                 ▼                      │           │
//	│  ┌─────────────────────────────┐                 │           │
//	│  │  Evaluator (trigger.go)     │   schedule path │           │
//	│  │  event + condition triggers │   bypasses the  │           │
//	│  └──────────────┬──────────────┘   evaluator     │           │
//	│                 │                                │           │
//	│                 ▼                                ▼           │
//	│  ┌──────────────────────────────────────────────────────┐   │
//	│  │  Engine (engine.go)                                   │   │
//	│  │  1. Create run row (running)                          │   │
//	│  │  2. Invoke ActionExecutor (dry-run when shadow)       │   │
//	│  │  3. Finalize run, bump counters atomically            │   │
//	│  └──────────────────────┬───────────────────────────────┘   │
//	│                         ▼                                    │
//	│  ┌──────────────┐  ┌──────────────┐                          │
//	│  │   Registry   │─▶│  Repository  │                          │
//	│  │ (registry.go)│  │(repository.go)│                         │
//	│  └──────────────┘  └──────────────┘                          │
//	└─────────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - AIAgent: Governed automation unit with lifecycle status and config
//   - AgentRun: Append-only execution record; ground truth for counters
//   - AutomationPattern: Detected candidate; accepted patterns spawn agents
//   - Lifecycle: Status transitions with the shadow promotion guard
//   - ShadowResolver: Reconciles shadow predictions against human actions
//
// # Dispatch Rules
//
// Only shadow and live agents are ever dispatched automatically. Shadow
// runs execute dry; live runs take real action; supervised agents run only
// on explicit manual dispatch and their runs wait for human confirmation.
// Agent-level failures are isolated per dispatch batch; a failure to load
// the agent list aborts the batch.
//
// # Thread Safety
//
// Registry, Engine, and Scheduler are safe for concurrent use. Overlapping
// runs of the same agent are permitted (at-least-once semantics); counter
// updates use atomic SQL increments so concurrent runs never lose updates.
package automation
