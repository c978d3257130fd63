package automation

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TaskStateProvider answers the condition evaluator's questions about
// current organizational task state. Injected so tests can drive predicates
// without a database and so deployments can point at a different task store.
type TaskStateProvider interface {
	// CountTasks returns the current value of a condition metric for an
	// organization. windowHours scopes time-based metrics (e.g. blocked for
	// more than N hours); 0 means no window.
	CountTasks(ctx context.Context, orgID, metric string, windowHours int) (float64, error)
}

// SQLiteTaskState reads the task table the surrounding task service
// maintains in the shared database.
type SQLiteTaskState struct {
	db *sql.DB
}

// NewSQLiteTaskState creates a task state provider over the shared database.
func NewSQLiteTaskState(db *sql.DB) *SQLiteTaskState {
	return &SQLiteTaskState{db: db}
}

// Task statuses the metrics queries exclude as closed.
const closedTaskStatuses = `'done', 'cancelled'`

// CountTasks implements TaskStateProvider over the tasks table.
func (s *SQLiteTaskState) CountTasks(ctx context.Context, orgID, metric string, windowHours int) (float64, error) {
	now := time.Now().UTC()

	var query string
	args := []any{orgID}

	switch metric {
	case MetricTasksOpen:
		query = `SELECT COUNT(*) FROM tasks
			WHERE org_id = ? AND status NOT IN (` + closedTaskStatuses + `)`

	case MetricTasksBlocked:
		query = `SELECT COUNT(*) FROM tasks
			WHERE org_id = ? AND status = 'blocked'`
		if windowHours > 0 {
			cutoff := now.Add(-time.Duration(windowHours) * time.Hour)
			query += ` AND blocked_at IS NOT NULL AND blocked_at <= ?`
			args = append(args, cutoff.Format(time.RFC3339))
		}

	case MetricTasksOverdue:
		query = `SELECT COUNT(*) FROM tasks
			WHERE org_id = ? AND status NOT IN (` + closedTaskStatuses + `)
			AND due_at IS NOT NULL AND due_at < ?`
		args = append(args, now.Format(time.RFC3339))

	default:
		return 0, fmt.Errorf("%w: unknown metric %q", ErrTriggerEvaluation, metric)
	}

	var count float64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting %s: %w", metric, err)
	}
	return count, nil
}
