// Package storage is the embedded relational persistence layer: a
// single SQLite file holding schedules, execution metrics, alert
// rules, fired alerts, aggregated rollups, notification channels, and
// live task snapshots.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/maumercado/task-queue-go/internal/alertengine"
	"github.com/maumercado/task-queue-go/internal/execmetrics"
	"github.com/maumercado/task-queue-go/internal/task"
)

const schemaVersion = 1

var ErrSchemaTooNew = errors.New("storage: database schema is newer than this binary supports")

// Store wraps the database connection used by every persisted
// component. All methods are safe for concurrent use; *sql.DB already
// pools and serializes access.
type Store struct {
	db *sql.DB
}

// Open creates the database file (and its parent directory) if
// missing, applies pragmas, and brings the schema up to date.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create db directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.configurePragmas(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) configurePragmas(ctx context.Context) error {
	for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA synchronous=NORMAL;"} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("storage: set pragma %q: %w", pragma, err)
		}
	}
	return nil
}

// migrate reads schema_version and brings the database to
// schemaVersion: creating everything from scratch on an empty
// database, no-op when already current, and failing loudly if the
// file was written by a newer binary.
func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		return fmt.Errorf("storage: create schema_version: %w", err)
	}

	var current int
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version;`).Scan(&current)
	if err != nil {
		return fmt.Errorf("storage: read schema version: %w", err)
	}
	if current > schemaVersion {
		return fmt.Errorf("%w: have %d, want %d", ErrSchemaTooNew, current, schemaVersion)
	}
	if current == schemaVersion {
		return tx.Commit()
	}

	for _, stmt := range createTableStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storage: create table: %w", err)
		}
	}
	for _, stmt := range createIndexStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storage: create index: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?);`, schemaVersion); err != nil {
		return fmt.Errorf("storage: record schema version: %w", err)
	}
	return tx.Commit()
}

var createTableStatements = []string{
	`CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		cron_expression TEXT NOT NULL,
		task_type TEXT NOT NULL,
		priority INTEGER NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		description TEXT,
		timezone TEXT NOT NULL DEFAULT 'UTC',
		parameters TEXT,
		max_retries INTEGER NOT NULL DEFAULT 0,
		timeout_seconds INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS task_metrics (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		task_name TEXT NOT NULL,
		task_type TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		duration_ms INTEGER,
		success INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		memory_usage_mb REAL,
		cpu_usage_percent REAL,
		created_at DATETIME NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS alert_rules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		task_type_filter TEXT,
		task_name_filter TEXT,
		condition_type TEXT NOT NULL,
		condition_config TEXT NOT NULL,
		severity INTEGER NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		cooldown_minutes INTEGER NOT NULL DEFAULT 0,
		notification_channels TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		rule_id TEXT NOT NULL REFERENCES alert_rules(id),
		rule_name TEXT NOT NULL,
		task_type TEXT,
		task_name TEXT,
		severity INTEGER NOT NULL,
		message TEXT NOT NULL,
		context TEXT,
		triggered_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		acknowledged INTEGER NOT NULL DEFAULT 0,
		acknowledged_at DATETIME,
		acknowledged_by TEXT,
		resolved INTEGER NOT NULL DEFAULT 0,
		resolved_at DATETIME,
		resolution_reason TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS aggregated_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_type TEXT NOT NULL,
		period_start DATETIME NOT NULL,
		period_end DATETIME NOT NULL,
		totals TEXT NOT NULL,
		rates TEXT NOT NULL,
		averages TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS notification_channels (
		name TEXT PRIMARY KEY,
		channel_type TEXT NOT NULL,
		config TEXT,
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS task_snapshots (
		task_id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		status TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);`,
}

var createIndexStatements = []string{
	`CREATE INDEX IF NOT EXISTS idx_task_metrics_type ON task_metrics(task_type);`,
	`CREATE INDEX IF NOT EXISTS idx_task_metrics_started ON task_metrics(started_at);`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_rule ON alerts(rule_id);`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_triggered ON alerts(triggered_at);`,
	`CREATE INDEX IF NOT EXISTS idx_aggregated_metrics_window ON aggregated_metrics(task_type, period_start, period_end);`,
	`CREATE INDEX IF NOT EXISTS idx_task_snapshots_status ON task_snapshots(status);`,
}

// --- task snapshots -------------------------------------------------

// SaveTaskSnapshot upserts the serialized state of a live task, used
// to rehydrate the queue's ready set on restart.
func (s *Store) SaveTaskSnapshot(ctx context.Context, t *task.Task) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("storage: marshal task snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_snapshots (task_id, payload, status, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET payload=excluded.payload, status=excluded.status, updated_at=excluded.updated_at;
	`, t.ID.String(), string(payload), t.Status.String(), time.Now().UTC())
	return err
}

// DeleteTaskSnapshot removes a snapshot once a task reaches a terminal
// status and no longer needs rehydration.
func (s *Store) DeleteTaskSnapshot(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM task_snapshots WHERE task_id = ?;`, id.String())
	return err
}

// LoadLiveSnapshots returns every non-terminal task snapshot, used to
// repopulate the queue on startup.
func (s *Store) LoadLiveSnapshots(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM task_snapshots
		WHERE status NOT IN ('completed', 'failed_permanently', 'cancelled');
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*task.Task
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var t task.Task
		if err := json.Unmarshal([]byte(payload), &t); err != nil {
			return nil, fmt.Errorf("storage: unmarshal task snapshot: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// --- task metrics -----------------------------------------------------

// SaveExecutionRecord persists one execution attempt, finished or still
// running (finished_at and duration_ms are then NULL).
func (s *Store) SaveExecutionRecord(ctx context.Context, r *execmetrics.ExecutionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO task_metrics
			(id, task_id, task_name, task_type, started_at, finished_at, duration_ms,
			 success, error_message, retry_count, memory_usage_mb, cpu_usage_percent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`,
		r.ID.String(), r.TaskID.String(), r.TaskName, r.TaskType,
		r.StartedAt, nullTime(r.FinishedAt), nullInt64(r.DurationMs),
		boolToInt(r.Success), r.ErrorMessage, r.RetryCount,
		nullFloat64(r.MemoryUsageMB), nullFloat64(r.CPUUsagePercent), time.Now().UTC(),
	)
	return err
}

type TaskMetricsFilter struct {
	TaskType string
	Start    *time.Time
	End      *time.Time
	Limit    int
}

// LoadTaskMetrics returns persisted execution records matching the
// filter, most recent first.
func (s *Store) LoadTaskMetrics(ctx context.Context, f TaskMetricsFilter) ([]*execmetrics.ExecutionRecord, error) {
	query := `SELECT id, task_id, task_name, task_type, started_at, finished_at, duration_ms,
		success, error_message, retry_count, memory_usage_mb, cpu_usage_percent FROM task_metrics WHERE 1=1`
	var args []any
	if f.TaskType != "" {
		query += ` AND task_type = ?`
		args = append(args, f.TaskType)
	}
	if f.Start != nil {
		query += ` AND started_at >= ?`
		args = append(args, *f.Start)
	}
	if f.End != nil {
		query += ` AND started_at <= ?`
		args = append(args, *f.End)
	}
	query += ` ORDER BY started_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*execmetrics.ExecutionRecord
	for rows.Next() {
		r, err := scanExecutionRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecutionRecord(row rowScanner) (*execmetrics.ExecutionRecord, error) {
	var (
		r                      execmetrics.ExecutionRecord
		id, taskID             string
		finishedAt             sql.NullTime
		durationMs             sql.NullInt64
		success                int
		memUsage, cpuUsage     sql.NullFloat64
	)
	if err := row.Scan(&id, &taskID, &r.TaskName, &r.TaskType, &r.StartedAt, &finishedAt,
		&durationMs, &success, &r.ErrorMessage, &r.RetryCount, &memUsage, &cpuUsage); err != nil {
		return nil, err
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("storage: parse execution id: %w", err)
	}
	parsedTaskID, err := uuid.Parse(taskID)
	if err != nil {
		return nil, fmt.Errorf("storage: parse task id: %w", err)
	}
	r.ID = parsedID
	r.TaskID = parsedTaskID
	r.Success = success != 0
	if finishedAt.Valid {
		r.FinishedAt = &finishedAt.Time
	}
	if durationMs.Valid {
		r.DurationMs = &durationMs.Int64
	}
	if memUsage.Valid {
		r.MemoryUsageMB = &memUsage.Float64
	}
	if cpuUsage.Valid {
		r.CPUUsagePercent = &cpuUsage.Float64
	}
	return &r, nil
}

// --- aggregated metrics -------------------------------------------

// SaveAggregatedMetrics persists a rollup for later inspection; the
// core never reads these back, they exist for external reporting.
func (s *Store) SaveAggregatedMetrics(ctx context.Context, m execmetrics.AggregatedMetrics) error {
	totals, err := json.Marshal(map[string]int{
		"total":      m.TotalExecutions,
		"successful": m.SuccessfulExecutions,
		"failed":     m.FailedExecutions,
		"retries":    m.TotalRetries,
	})
	if err != nil {
		return err
	}
	rates, err := json.Marshal(map[string]float64{"success_rate": m.SuccessRate})
	if err != nil {
		return err
	}
	averages, err := json.Marshal(map[string]float64{
		"duration_ms": m.AvgDurationMs,
		"memory_mb":   m.AvgMemoryUsageMB,
		"cpu_percent": m.AvgCPUUsagePercent,
	})
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO aggregated_metrics (task_type, period_start, period_end, totals, rates, averages)
		VALUES (?, ?, ?, ?, ?, ?);
	`, m.TaskType, m.PeriodStart, m.PeriodEnd, string(totals), string(rates), string(averages))
	return err
}

// --- alert rules ----------------------------------------------------

// SaveAlertRule upserts a rule definition.
func (s *Store) SaveAlertRule(ctx context.Context, r *alertengine.Rule) error {
	conditionConfig, err := json.Marshal(r.Condition)
	if err != nil {
		return err
	}
	channels, err := json.Marshal(r.Channels)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alert_rules
			(id, name, description, task_type_filter, task_name_filter, condition_type,
			 condition_config, severity, enabled, cooldown_minutes, notification_channels, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, description=excluded.description,
			task_type_filter=excluded.task_type_filter, task_name_filter=excluded.task_name_filter,
			condition_type=excluded.condition_type, condition_config=excluded.condition_config,
			severity=excluded.severity, enabled=excluded.enabled, cooldown_minutes=excluded.cooldown_minutes,
			notification_channels=excluded.notification_channels, updated_at=excluded.updated_at;
	`,
		r.ID.String(), r.Name, r.Description, r.TaskTypeFilter, r.TaskNameFilter, string(r.Condition.Type),
		string(conditionConfig), int(r.Severity), boolToInt(r.Enabled), r.CooldownMinutes,
		string(channels), r.CreatedAt, r.UpdatedAt,
	)
	return err
}

// LoadAlertRules returns every persisted rule, used to rehydrate the
// alert engine on startup.
func (s *Store) LoadAlertRules(ctx context.Context) ([]*alertengine.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, task_type_filter, task_name_filter, condition_config,
			severity, enabled, cooldown_minutes, notification_channels, created_at, updated_at
		FROM alert_rules;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*alertengine.Rule
	for rows.Next() {
		var (
			id, conditionConfig, channels string
			severity                      int
			enabled                       int
			r                             alertengine.Rule
		)
		if err := rows.Scan(&id, &r.Name, &r.Description, &r.TaskTypeFilter, &r.TaskNameFilter,
			&conditionConfig, &severity, &enabled, &r.CooldownMinutes, &channels, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("storage: parse rule id: %w", err)
		}
		r.ID = parsed
		r.Severity = alertengine.Severity(severity)
		r.Enabled = enabled != 0
		if err := json.Unmarshal([]byte(conditionConfig), &r.Condition); err != nil {
			return nil, fmt.Errorf("storage: unmarshal condition config: %w", err)
		}
		if err := json.Unmarshal([]byte(channels), &r.Channels); err != nil {
			return nil, fmt.Errorf("storage: unmarshal channels: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// --- alerts -----------------------------------------------------------

// SaveAlert upserts a fired alert, including acknowledgement and
// resolution state.
func (s *Store) SaveAlert(ctx context.Context, a *alertengine.Alert) error {
	contextJSON, err := json.Marshal(a.Context)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts
			(id, rule_id, rule_name, task_type, task_name, severity, message, context,
			 triggered_at, updated_at, acknowledged, acknowledged_at, acknowledged_by,
			 resolved, resolved_at, resolution_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			updated_at=excluded.updated_at, acknowledged=excluded.acknowledged,
			acknowledged_at=excluded.acknowledged_at, acknowledged_by=excluded.acknowledged_by,
			resolved=excluded.resolved, resolved_at=excluded.resolved_at, resolution_reason=excluded.resolution_reason;
	`,
		a.ID.String(), a.RuleID.String(), a.RuleName, a.TaskType, a.TaskName, int(a.Severity),
		a.Message, string(contextJSON), a.TriggeredAt, a.UpdatedAt, boolToInt(a.Acknowledged),
		nullTime(a.AcknowledgedAt), a.AcknowledgedBy, boolToInt(a.Resolved), nullTime(a.ResolvedAt), a.ResolutionReason,
	)
	return err
}

type AlertFilter struct {
	RuleID     *uuid.UUID
	ActiveOnly bool
	Limit      int
}

// LoadAlerts returns persisted alerts matching the filter, most
// recently triggered first.
func (s *Store) LoadAlerts(ctx context.Context, f AlertFilter) ([]*alertengine.Alert, error) {
	query := `SELECT id, rule_id, rule_name, task_type, task_name, severity, message, context,
		triggered_at, updated_at, acknowledged, acknowledged_at, acknowledged_by,
		resolved, resolved_at, resolution_reason FROM alerts WHERE 1=1`
	var args []any
	if f.RuleID != nil {
		query += ` AND rule_id = ?`
		args = append(args, f.RuleID.String())
	}
	if f.ActiveOnly {
		query += ` AND resolved = 0`
	}
	query += ` ORDER BY triggered_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*alertengine.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAlert(row rowScanner) (*alertengine.Alert, error) {
	var (
		a                                    alertengine.Alert
		id, ruleID, contextJSON              string
		severity                             int
		acknowledged, resolved               int
		acknowledgedAt, resolvedAt           sql.NullTime
	)
	if err := row.Scan(&id, &ruleID, &a.RuleName, &a.TaskType, &a.TaskName, &severity, &a.Message, &contextJSON,
		&a.TriggeredAt, &a.UpdatedAt, &acknowledged, &acknowledgedAt, &a.AcknowledgedBy,
		&resolved, &resolvedAt, &a.ResolutionReason); err != nil {
		return nil, err
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("storage: parse alert id: %w", err)
	}
	parsedRuleID, err := uuid.Parse(ruleID)
	if err != nil {
		return nil, fmt.Errorf("storage: parse rule id: %w", err)
	}
	a.ID = parsedID
	a.RuleID = parsedRuleID
	a.Severity = alertengine.Severity(severity)
	a.Acknowledged = acknowledged != 0
	a.Resolved = resolved != 0
	if acknowledgedAt.Valid {
		a.AcknowledgedAt = &acknowledgedAt.Time
	}
	if resolvedAt.Valid {
		a.ResolvedAt = &resolvedAt.Time
	}
	if contextJSON != "" {
		if err := json.Unmarshal([]byte(contextJSON), &a.Context); err != nil {
			return nil, fmt.Errorf("storage: unmarshal alert context: %w", err)
		}
	}
	return &a, nil
}

// --- notification channels ------------------------------------------

// NotificationChannelRow is the persisted shape of a notification
// destination.
type NotificationChannelRow struct {
	Name        string
	ChannelType string
	Config      map[string]any
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s *Store) SaveNotificationChannel(ctx context.Context, c NotificationChannelRow) error {
	config, err := json.Marshal(c.Config)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notification_channels (name, channel_type, config, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET channel_type=excluded.channel_type, config=excluded.config,
			enabled=excluded.enabled, updated_at=excluded.updated_at;
	`, c.Name, c.ChannelType, string(config), boolToInt(c.Enabled), c.CreatedAt, c.UpdatedAt)
	return err
}

func (s *Store) ListNotificationChannels(ctx context.Context) ([]NotificationChannelRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, channel_type, config, enabled, created_at, updated_at FROM notification_channels;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NotificationChannelRow
	for rows.Next() {
		var c NotificationChannelRow
		var config string
		var enabled int
		if err := rows.Scan(&c.Name, &c.ChannelType, &config, &enabled, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Enabled = enabled != 0
		if config != "" {
			if err := json.Unmarshal([]byte(config), &c.Config); err != nil {
				return nil, fmt.Errorf("storage: unmarshal channel config: %w", err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- schedules --------------------------------------------------------

// ScheduleRow is the persisted shape of a cron schedule entry.
type ScheduleRow struct {
	ID             string
	Name           string
	CronExpression string
	TaskType       string
	Priority       task.Priority
	Enabled        bool
	Description    string
	Timezone       string
	Parameters     map[string]any
	MaxRetries     int
	TimeoutSeconds int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (s *Store) SaveSchedule(ctx context.Context, r ScheduleRow) error {
	params, err := json.Marshal(r.Parameters)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schedules
			(id, name, cron_expression, task_type, priority, enabled, description, timezone,
			 parameters, max_retries, timeout_seconds, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, cron_expression=excluded.cron_expression, task_type=excluded.task_type,
			priority=excluded.priority, enabled=excluded.enabled, description=excluded.description,
			timezone=excluded.timezone, parameters=excluded.parameters, max_retries=excluded.max_retries,
			timeout_seconds=excluded.timeout_seconds, updated_at=excluded.updated_at;
	`, r.ID, r.Name, r.CronExpression, r.TaskType, int(r.Priority), boolToInt(r.Enabled), r.Description,
		r.Timezone, string(params), r.MaxRetries, r.TimeoutSeconds, r.CreatedAt, r.UpdatedAt)
	return err
}

func (s *Store) ListSchedules(ctx context.Context) ([]ScheduleRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, cron_expression, task_type, priority, enabled, description, timezone,
			parameters, max_retries, timeout_seconds, created_at, updated_at FROM schedules;
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScheduleRow
	for rows.Next() {
		var r ScheduleRow
		var priority, enabled int
		var params string
		if err := rows.Scan(&r.ID, &r.Name, &r.CronExpression, &r.TaskType, &priority, &enabled, &r.Description,
			&r.Timezone, &params, &r.MaxRetries, &r.TimeoutSeconds, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Priority = task.PriorityFromInt(priority)
		r.Enabled = enabled != 0
		if params != "" {
			if err := json.Unmarshal([]byte(params), &r.Parameters); err != nil {
				return nil, fmt.Errorf("storage: unmarshal schedule parameters: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- retention & stats -------------------------------------------------

// CleanupOldData deletes task_metrics older than the retention window
// and resolved alerts whose resolution predates it.
func (s *Store) CleanupOldData(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM task_metrics WHERE started_at < ?;`, cutoff); err != nil {
		return fmt.Errorf("storage: cleanup task_metrics: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE resolved = 1 AND resolved_at < ?;`, cutoff); err != nil {
		return fmt.Errorf("storage: cleanup alerts: %w", err)
	}
	return nil
}

// Stats returns row counts per table, surfaced by the admin/status
// interface.
func (s *Store) Stats(ctx context.Context) (map[string]int64, error) {
	tables := []string{"schedules", "task_metrics", "alert_rules", "alerts", "aggregated_metrics", "notification_channels", "task_snapshots"}
	out := make(map[string]int64, len(tables))
	for _, table := range tables {
		var count int64
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s;`, table)).Scan(&count); err != nil {
			return nil, fmt.Errorf("storage: count %s: %w", table, err)
		}
		out[table] = count
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func nullFloat64(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
