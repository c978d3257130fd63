// Package api implements the HTTP REST management surface for the agent daemon.
//
// This package provides:
//   - REST endpoints for agent CRUD and lifecycle moves (promote, pause,
//     resume, retire)
//   - Run history, manual dispatch, and supervised-run confirmation
//   - Shadow run resolution and per-agent shadow reports
//   - The pattern flow: intake, suggest, accept (spawning an agent), reject
//   - Middleware stack (request ID, logging, recovery, CORS, body size cap)
//
// # Architecture
//
// The API server sits between operators (the task assistant's admin surface)
// and the automation engine. Lifecycle moves go through the Lifecycle service
// so the promotion guard and scheduler registration stay consistent; the API
// itself never mutates agent status directly. Dispatch side effects flow out
// through the engine's action executor, not through this package.
//
// # Failure Mapping
//
// Domain sentinel errors map onto HTTP statuses: not-found errors become 404,
// invalid input becomes 400, and state conflicts (bad transitions, promotion
// guard failures, terminal patterns) become 409. Promotion guard failures
// carry the current shadow numbers in the error body so callers can display
// progress toward the thresholds.
package api
