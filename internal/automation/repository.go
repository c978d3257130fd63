package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for agent, run, and pattern persistence.
// This abstraction allows different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Agent CRUD
	GetAgent(ctx context.Context, id string) (*AIAgent, error)
	ListAgents(ctx context.Context, orgID string) ([]AIAgent, error)
	ListAgentsByStatus(ctx context.Context, statuses ...AgentStatus) ([]AIAgent, error)
	CreateAgent(ctx context.Context, agent *AIAgent) error
	UpdateAgent(ctx context.Context, agent *AIAgent) error

	// Run log
	CreateRun(ctx context.Context, run *AgentRun) error
	UpdateRun(ctx context.Context, run *AgentRun) error
	GetRun(ctx context.Context, id string) (*AgentRun, error)
	ListRuns(ctx context.Context, agentID string, limit int) ([]AgentRun, error)
	MarkInterruptedRuns(ctx context.Context, reason string) (int, error)
	SettleRun(ctx context.Context, runID string) (bool, error)

	// Counter rollups. Implementations must use atomic increments, never
	// read-modify-write: concurrent runs of the same agent race on these.
	RecordRunOutcome(ctx context.Context, agentID string, outcome RunOutcome) error
	ConfirmRunOutcome(ctx context.Context, agentID string, hoursSaved float64) error
	CountSuccessfulRuns(ctx context.Context, agentID string) (int, error)

	// Shadow reconciliation
	ResolveRun(ctx context.Context, runID string, human HumanAction, matched bool) error
	ShadowStats(ctx context.Context, agentID string) (resolved, matches int, err error)
	RecomputeShadowMatchRate(ctx context.Context, agentID string) (float64, error)

	// Patterns
	GetPattern(ctx context.Context, id string) (*AutomationPattern, error)
	ListPatterns(ctx context.Context, orgID string, status PatternStatus) ([]AutomationPattern, error)
	CreatePattern(ctx context.Context, pattern *AutomationPattern) error
	UpdatePattern(ctx context.Context, pattern *AutomationPattern) error
}

// RunOutcome summarizes one finished run for the agent's cached counters.
type RunOutcome struct {
	Status      RunStatus
	IsShadow    bool
	HoursSaved  float64
	CompletedAt time.Time
}

// agentColumns is the SELECT column list for agent queries.
const agentColumns = `id, org_id, pattern_id, name, description, status, config,
			shadow_started_at, shadow_runs, shadow_match_rate,
			total_runs, successful_runs, hours_saved_total, last_run_at,
			created_by, approved_by, created_at, updated_at`

// runColumns is the SELECT column list for run queries.
const runColumns = `id, agent_id, org_id, status, input_data, output_data, error_message,
			is_shadow, human_action, matched_human, started_at, completed_at, duration_ms`

// patternColumns is the SELECT column list for pattern queries.
const patternColumns = `id, org_id, name, description, frequency_per_week, consistency_score,
			affected_users, projected_hours_saved, complexity, recipe, status,
			agent_id, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// ─── Agents ─────────────────────────────────────────────────────────────────

// GetAgent retrieves an agent by its unique identifier.
func (r *SQLiteRepository) GetAgent(ctx context.Context, id string) (*AIAgent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	agent, err := scanAgentRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("querying agent by id: %w", err)
	}
	return agent, nil
}

// ListAgents retrieves all agents, optionally scoped to an organization.
func (r *SQLiteRepository) ListAgents(ctx context.Context, orgID string) ([]AIAgent, error) {
	if orgID == "" {
		query := `SELECT ` + agentColumns + ` FROM agents ORDER BY created_at, id`
		return r.queryAgents(ctx, query)
	}
	query := `SELECT ` + agentColumns + ` FROM agents WHERE org_id = ? ORDER BY created_at, id`
	return r.queryAgents(ctx, query, orgID)
}

// ListAgentsByStatus retrieves all agents whose status is in the given set.
// This powers dispatch: the sweep and event bridge load shadow+live agents.
func (r *SQLiteRepository) ListAgentsByStatus(ctx context.Context, statuses ...AgentStatus) ([]AIAgent, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = placeholders[:len(placeholders)-1]
	query := `SELECT ` + agentColumns + ` FROM agents WHERE status IN (` + placeholders + `) ORDER BY created_at, id`

	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	return r.queryAgents(ctx, query, args...)
}

// CreateAgent inserts a new agent.
func (r *SQLiteRepository) CreateAgent(ctx context.Context, agent *AIAgent) error {
	configJSON, err := json.Marshal(agent.Config)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	now := time.Now().UTC()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now

	query := `
		INSERT INTO agents (
			id, org_id, pattern_id, name, description, status, config,
			shadow_started_at, shadow_runs, shadow_match_rate,
			total_runs, successful_runs, hours_saved_total, last_run_at,
			created_by, approved_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		agent.ID,
		agent.OrgID,
		nullableString(agent.PatternID),
		agent.Name,
		nullableString(agent.Description),
		string(agent.Status),
		string(configJSON),
		nullableTime(agent.ShadowStartedAt),
		agent.ShadowRuns,
		agent.ShadowMatchRate,
		agent.TotalRuns,
		agent.SuccessfulRuns,
		agent.HoursSavedTotal,
		nullableTime(agent.LastRunAt),
		nullableString(agent.CreatedBy),
		nullableString(agent.ApprovedBy),
		agent.CreatedAt.Format(time.RFC3339),
		agent.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrAgentExists
		}
		return fmt.Errorf("inserting agent: %w", err)
	}
	return nil
}

// UpdateAgent modifies an existing agent's configuration and status fields.
// Counter columns are excluded: those are only ever touched by the atomic
// increment methods, so a config update can never clobber a concurrent run's
// bookkeeping.
func (r *SQLiteRepository) UpdateAgent(ctx context.Context, agent *AIAgent) error {
	configJSON, err := json.Marshal(agent.Config)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	agent.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE agents SET
			name = ?, description = ?, status = ?, config = ?,
			shadow_started_at = ?, approved_by = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		agent.Name,
		nullableString(agent.Description),
		string(agent.Status),
		string(configJSON),
		nullableTime(agent.ShadowStartedAt),
		nullableString(agent.ApprovedBy),
		agent.UpdatedAt.Format(time.RFC3339),
		agent.ID,
	)
	if err != nil {
		return fmt.Errorf("updating agent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// ─── Run Log ────────────────────────────────────────────────────────────────

// CreateRun inserts a new run record.
func (r *SQLiteRepository) CreateRun(ctx context.Context, run *AgentRun) error {
	inputJSON, err := json.Marshal(run.Input)
	if err != nil {
		return fmt.Errorf("marshalling input: %w", err)
	}
	outputJSON, err := marshalOutput(run.Output)
	if err != nil {
		return fmt.Errorf("marshalling output: %w", err)
	}

	query := `
		INSERT INTO agent_runs (
			id, agent_id, org_id, status, input_data, output_data, error_message,
			is_shadow, human_action, matched_human, started_at, completed_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.AgentID,
		run.OrgID,
		string(run.Status),
		string(inputJSON),
		outputJSON,
		nullableString(run.ErrorMessage),
		boolToInt(run.IsShadow),
		marshalHumanAction(run.HumanAction),
		nullableBool(run.MatchedHuman),
		run.StartedAt.Format(time.RFC3339),
		nullableTime(run.CompletedAt),
		nullableInt(run.DurationMS),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// UpdateRun fills in a run's completion fields.
func (r *SQLiteRepository) UpdateRun(ctx context.Context, run *AgentRun) error {
	outputJSON, err := marshalOutput(run.Output)
	if err != nil {
		return fmt.Errorf("marshalling output: %w", err)
	}

	query := `
		UPDATE agent_runs SET
			status = ?, output_data = ?, error_message = ?,
			completed_at = ?, duration_ms = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		string(run.Status),
		outputJSON,
		nullableString(run.ErrorMessage),
		nullableTime(run.CompletedAt),
		nullableInt(run.DurationMS),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// SettleRun moves a run from awaiting_confirmation to success. The status
// check happens inside the UPDATE so concurrent settles of the same run
// succeed exactly once; the return value reports whether this call won.
func (r *SQLiteRepository) SettleRun(ctx context.Context, runID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE agent_runs SET status = ?
		WHERE id = ? AND status = ?`,
		string(RunSuccess), runID, string(RunAwaitingConfirmation),
	)
	if err != nil {
		return false, fmt.Errorf("settling run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// GetRun retrieves a run by ID.
func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*AgentRun, error) {
	query := `SELECT ` + runColumns + ` FROM agent_runs WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	run, err := scanRunRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves recent runs for an agent, newest first.
func (r *SQLiteRepository) ListRuns(ctx context.Context, agentID string, limit int) ([]AgentRun, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}

	query := `SELECT ` + runColumns + ` FROM agent_runs
		WHERE agent_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []AgentRun
	for rows.Next() {
		run, scanErr := scanRunRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning run: %w", scanErr)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// MarkInterruptedRuns marks every run still in `running` as failed. Runs
// surviving past a process restart are evidence of an interrupted execution;
// this is the startup recovery sweep.
func (r *SQLiteRepository) MarkInterruptedRuns(ctx context.Context, reason string) (int, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx, `
		UPDATE agent_runs SET
			status = ?, error_message = ?, completed_at = ?
		WHERE status = ?`,
		string(RunFailed), reason, now, string(RunRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("marking interrupted runs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return int(rowsAffected), nil
}

// ─── Counter Rollups ────────────────────────────────────────────────────────

// RecordRunOutcome bumps the agent's cached counters for one finished run.
// All increments happen in a single UPDATE so concurrent runs of the same
// agent cannot lose updates.
func (r *SQLiteRepository) RecordRunOutcome(ctx context.Context, agentID string, outcome RunOutcome) error {
	successInc := 0
	if outcome.Status == RunSuccess {
		successInc = 1
	}
	shadowInc := 0
	if outcome.IsShadow {
		shadowInc = 1
	}
	hours := 0.0
	if outcome.Status == RunSuccess && !outcome.IsShadow {
		hours = outcome.HoursSaved
	}

	completedAt := outcome.CompletedAt.UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx, `
		UPDATE agents SET
			total_runs = total_runs + 1,
			successful_runs = successful_runs + ?,
			shadow_runs = shadow_runs + ?,
			hours_saved_total = hours_saved_total + ?,
			last_run_at = ?,
			updated_at = ?
		WHERE id = ?`,
		successInc, shadowInc, hours, completedAt, completedAt, agentID,
	)
	if err != nil {
		return fmt.Errorf("recording run outcome: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// ConfirmRunOutcome credits a supervised run that a human has confirmed:
// the run already counted towards total_runs when it finished, so only the
// success counter and savings move now.
func (r *SQLiteRepository) ConfirmRunOutcome(ctx context.Context, agentID string, hoursSaved float64) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx, `
		UPDATE agents SET
			successful_runs = successful_runs + 1,
			hours_saved_total = hours_saved_total + ?,
			updated_at = ?
		WHERE id = ?`,
		hoursSaved, now, agentID,
	)
	if err != nil {
		return fmt.Errorf("confirming run outcome: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// CountSuccessfulRuns recomputes the success count from the run log. The
// agent's cached successful_runs counter must always equal this value.
func (r *SQLiteRepository) CountSuccessfulRuns(ctx context.Context, agentID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_runs WHERE agent_id = ? AND status = ?`,
		agentID, string(RunSuccess),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting successful runs: %w", err)
	}
	return count, nil
}

// ─── Shadow Reconciliation ──────────────────────────────────────────────────

// ResolveRun fills in a shadow run's human-action comparison fields.
func (r *SQLiteRepository) ResolveRun(ctx context.Context, runID string, human HumanAction, matched bool) error {
	humanJSON, err := json.Marshal(human)
	if err != nil {
		return fmt.Errorf("marshalling human action: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE agent_runs SET
			human_action = ?, matched_human = ?
		WHERE id = ? AND is_shadow = 1`,
		string(humanJSON), boolToInt(matched), runID,
	)
	if err != nil {
		return fmt.Errorf("resolving shadow run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// ShadowStats counts resolved shadow runs and matches from the run log.
// Unresolved shadow runs (matched_human still null) are excluded.
func (r *SQLiteRepository) ShadowStats(ctx context.Context, agentID string) (resolved, matches int, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(matched_human), 0)
		FROM agent_runs
		WHERE agent_id = ? AND is_shadow = 1 AND matched_human IS NOT NULL`,
		agentID,
	).Scan(&resolved, &matches)
	if err != nil {
		return 0, 0, fmt.Errorf("querying shadow stats: %w", err)
	}
	return resolved, matches, nil
}

// RecomputeShadowMatchRate derives the match rate from the run log and
// stores it on the agent. The rate is matches over resolved shadow runs
// only; with nothing resolved yet the rate is zero.
func (r *SQLiteRepository) RecomputeShadowMatchRate(ctx context.Context, agentID string) (float64, error) {
	resolved, matches, err := r.ShadowStats(ctx, agentID)
	if err != nil {
		return 0, err
	}

	rate := 0.0
	if resolved > 0 {
		rate = float64(matches) / float64(resolved)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		`UPDATE agents SET shadow_match_rate = ?, updated_at = ? WHERE id = ?`,
		rate, now, agentID,
	)
	if err != nil {
		return 0, fmt.Errorf("storing shadow match rate: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return 0, ErrAgentNotFound
	}
	return rate, nil
}

// ─── Patterns ───────────────────────────────────────────────────────────────

// GetPattern retrieves a pattern by ID.
func (r *SQLiteRepository) GetPattern(ctx context.Context, id string) (*AutomationPattern, error) {
	query := `SELECT ` + patternColumns + ` FROM automation_patterns WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	pattern, err := scanPatternRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPatternNotFound
		}
		return nil, fmt.Errorf("querying pattern: %w", err)
	}
	return pattern, nil
}

// ListPatterns retrieves patterns, optionally filtered by org and status.
func (r *SQLiteRepository) ListPatterns(ctx context.Context, orgID string, status PatternStatus) ([]AutomationPattern, error) {
	query := `SELECT ` + patternColumns + ` FROM automation_patterns`
	var conds []string
	var args []any
	if orgID != "" {
		conds = append(conds, "org_id = ?")
		args = append(args, orgID)
	}
	if status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(status))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying patterns: %w", err)
	}
	defer rows.Close()

	var patterns []AutomationPattern
	for rows.Next() {
		pattern, scanErr := scanPatternRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning pattern: %w", scanErr)
		}
		patterns = append(patterns, *pattern)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating patterns: %w", err)
	}
	return patterns, nil
}

// CreatePattern inserts a new pattern.
func (r *SQLiteRepository) CreatePattern(ctx context.Context, pattern *AutomationPattern) error {
	recipeJSON, err := json.Marshal(pattern.Recipe)
	if err != nil {
		return fmt.Errorf("marshalling recipe: %w", err)
	}

	now := time.Now().UTC()
	if pattern.CreatedAt.IsZero() {
		pattern.CreatedAt = now
	}
	pattern.UpdatedAt = now

	query := `
		INSERT INTO automation_patterns (
			id, org_id, name, description, frequency_per_week, consistency_score,
			affected_users, projected_hours_saved, complexity, recipe, status,
			agent_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		pattern.ID,
		pattern.OrgID,
		pattern.Name,
		nullableString(pattern.Description),
		pattern.FrequencyPerWeek,
		pattern.ConsistencyScore,
		pattern.AffectedUsers,
		pattern.ProjectedHoursSaved,
		pattern.Complexity,
		string(recipeJSON),
		string(pattern.Status),
		nullableString(pattern.AgentID),
		pattern.CreatedAt.Format(time.RFC3339),
		pattern.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting pattern: %w", err)
	}
	return nil
}

// UpdatePattern modifies an existing pattern.
func (r *SQLiteRepository) UpdatePattern(ctx context.Context, pattern *AutomationPattern) error {
	recipeJSON, err := json.Marshal(pattern.Recipe)
	if err != nil {
		return fmt.Errorf("marshalling recipe: %w", err)
	}

	pattern.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE automation_patterns SET
			name = ?, description = ?, frequency_per_week = ?, consistency_score = ?,
			affected_users = ?, projected_hours_saved = ?, complexity = ?,
			recipe = ?, status = ?, agent_id = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		pattern.Name,
		nullableString(pattern.Description),
		pattern.FrequencyPerWeek,
		pattern.ConsistencyScore,
		pattern.AffectedUsers,
		pattern.ProjectedHoursSaved,
		pattern.Complexity,
		string(recipeJSON),
		string(pattern.Status),
		nullableString(pattern.AgentID),
		pattern.UpdatedAt.Format(time.RFC3339),
		pattern.ID,
	)
	if err != nil {
		return fmt.Errorf("updating pattern: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPatternNotFound
	}
	return nil
}

// ─── Row Scanning Helpers ───────────────────────────────────────────────────

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgentRow(scanner rowScanner) (*AIAgent, error) {
	var a AIAgent
	var patternID, description, createdBy, approvedBy sql.NullString
	var shadowStartedAt, lastRunAt sql.NullString
	var status, configJSON string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&a.ID,
		&a.OrgID,
		&patternID,
		&a.Name,
		&description,
		&status,
		&configJSON,
		&shadowStartedAt,
		&a.ShadowRuns,
		&a.ShadowMatchRate,
		&a.TotalRuns,
		&a.SuccessfulRuns,
		&a.HoursSavedTotal,
		&lastRunAt,
		&createdBy,
		&approvedBy,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Status = AgentStatus(status)
	if patternID.Valid {
		a.PatternID = &patternID.String
	}
	if description.Valid {
		a.Description = &description.String
	}
	if createdBy.Valid {
		a.CreatedBy = &createdBy.String
	}
	if approvedBy.Valid {
		a.ApprovedBy = &approvedBy.String
	}
	a.ShadowStartedAt = parseNullableTime(shadowStartedAt)
	a.LastRunAt = parseNullableTime(lastRunAt)

	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		a.CreatedAt = t
	}
	if t, parseErr := time.Parse(time.RFC3339, updatedAt); parseErr == nil {
		a.UpdatedAt = t
	}

	if configJSON != "" && configJSON != "{}" {
		if jsonErr := json.Unmarshal([]byte(configJSON), &a.Config); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling config: %w", jsonErr)
		}
	}

	return &a, nil
}

func scanRunRow(scanner rowScanner) (*AgentRun, error) {
	var run AgentRun
	var inputJSON string
	var outputJSON, errorMessage, humanJSON sql.NullString
	var matchedHuman sql.NullInt64
	var isShadow int
	var status, startedAt string
	var completedAt sql.NullString
	var durationMS sql.NullInt64

	err := scanner.Scan(
		&run.ID,
		&run.AgentID,
		&run.OrgID,
		&status,
		&inputJSON,
		&outputJSON,
		&errorMessage,
		&isShadow,
		&humanJSON,
		&matchedHuman,
		&startedAt,
		&completedAt,
		&durationMS,
	)
	if err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	run.IsShadow = isShadow != 0

	if t, parseErr := time.Parse(time.RFC3339, startedAt); parseErr == nil {
		run.StartedAt = t
	}
	if completedAt.Valid {
		if t, parseErr := time.Parse(time.RFC3339, completedAt.String); parseErr == nil {
			run.CompletedAt = &t
		}
	}
	if errorMessage.Valid {
		run.ErrorMessage = &errorMessage.String
	}
	if durationMS.Valid {
		d := int(durationMS.Int64)
		run.DurationMS = &d
	}
	if matchedHuman.Valid {
		m := matchedHuman.Int64 != 0
		run.MatchedHuman = &m
	}

	if inputJSON != "" && inputJSON != "{}" {
		if jsonErr := json.Unmarshal([]byte(inputJSON), &run.Input); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling input: %w", jsonErr)
		}
	}
	if outputJSON.Valid && outputJSON.String != "" && outputJSON.String != "null" {
		if jsonErr := json.Unmarshal([]byte(outputJSON.String), &run.Output); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling output: %w", jsonErr)
		}
	}
	if humanJSON.Valid && humanJSON.String != "" && humanJSON.String != "null" {
		var human HumanAction
		if jsonErr := json.Unmarshal([]byte(humanJSON.String), &human); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling human action: %w", jsonErr)
		}
		run.HumanAction = &human
	}

	return &run, nil
}

func scanPatternRow(scanner rowScanner) (*AutomationPattern, error) {
	var p AutomationPattern
	var description, agentID sql.NullString
	var recipeJSON, status string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&p.ID,
		&p.OrgID,
		&p.Name,
		&description,
		&p.FrequencyPerWeek,
		&p.ConsistencyScore,
		&p.AffectedUsers,
		&p.ProjectedHoursSaved,
		&p.Complexity,
		&recipeJSON,
		&status,
		&agentID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Status = PatternStatus(status)
	if description.Valid {
		p.Description = &description.String
	}
	if agentID.Valid {
		p.AgentID = &agentID.String
	}
	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		p.CreatedAt = t
	}
	if t, parseErr := time.Parse(time.RFC3339, updatedAt); parseErr == nil {
		p.UpdatedAt = t
	}

	if recipeJSON != "" && recipeJSON != "{}" {
		if jsonErr := json.Unmarshal([]byte(recipeJSON), &p.Recipe); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling recipe: %w", jsonErr)
		}
	}

	return &p, nil
}

// queryAgents executes a query and returns a slice of agents.
func (r *SQLiteRepository) queryAgents(ctx context.Context, query string, args ...any) ([]AIAgent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []AIAgent
	for rows.Next() {
		agent, scanErr := scanAgentRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning agent: %w", scanErr)
		}
		agents = append(agents, *agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agents: %w", err)
	}
	return agents, nil
}

// ─── SQL Helpers ────────────────────────────────────────────────────────────

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func nullableInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func nullableBool(b *bool) sql.NullInt64 {
	if b == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(boolToInt(*b)), Valid: true}
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s.String); err == nil {
		return &t
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalOutput(output []ActionResult) (sql.NullString, error) {
	if len(output) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(output)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func marshalHumanAction(human *HumanAction) sql.NullString {
	if human == nil {
		return sql.NullString{}
	}
	data, err := json.Marshal(human)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
