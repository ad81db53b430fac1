package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maumercado/task-queue-go/internal/alertengine"
	"github.com/maumercado/task-queue-go/internal/execmetrics"
	"github.com/maumercado/task-queue-go/internal/task"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orchestrator.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := openTestStore(t)
	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	for _, table := range []string{"schedules", "task_metrics", "alert_rules", "alerts", "aggregated_metrics", "notification_channels", "task_snapshots"} {
		assert.Contains(t, stats, table)
		assert.Equal(t, int64(0), stats[table])
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestrator.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
}

func TestTaskSnapshot_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tk := task.New("send-email", "email", task.PriorityHigh, task.NoRetry(), map[string]any{"to": "a@b.com"})
	require.NoError(t, s.SaveTaskSnapshot(ctx, tk))

	live, err := s.LoadLiveSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, tk.ID, live[0].ID)
	assert.Equal(t, tk.Type, live[0].Type)

	tk.Status = task.StatusCompleted
	require.NoError(t, s.SaveTaskSnapshot(ctx, tk))
	live, err = s.LoadLiveSnapshots(ctx)
	require.NoError(t, err)
	assert.Empty(t, live, "completed snapshots are excluded from rehydration")

	require.NoError(t, s.DeleteTaskSnapshot(ctx, tk.ID))
}

func TestExecutionRecord_SaveAndLoad(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	finished := time.Now().UTC()
	durationMs := int64(42)
	rec := &execmetrics.ExecutionRecord{
		ID:         uuid.New(),
		TaskID:     uuid.New(),
		TaskName:   "send-email",
		TaskType:   "email",
		StartedAt:  finished.Add(-time.Duration(durationMs) * time.Millisecond),
		FinishedAt: &finished,
		DurationMs: &durationMs,
		Success:    true,
		RetryCount: 1,
	}
	require.NoError(t, s.SaveExecutionRecord(ctx, rec))

	loaded, err := s.LoadTaskMetrics(ctx, TaskMetricsFilter{TaskType: "email", Limit: 10})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, rec.ID, loaded[0].ID)
	assert.True(t, loaded[0].Success)
	assert.Equal(t, int64(42), *loaded[0].DurationMs)
}

func TestAlertRule_SaveAndLoad(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rule := &alertengine.Rule{
		ID:              uuid.New(),
		Name:            "High Failure Rate",
		Condition:       alertengine.FailureRateCondition(50.0, 15, 5),
		Severity:        alertengine.SeverityHigh,
		Enabled:         true,
		CooldownMinutes: 30,
		Channels:        []string{"log"},
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	require.NoError(t, s.SaveAlertRule(ctx, rule))

	loaded, err := s.LoadAlertRules(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, rule.Name, loaded[0].Name)
	assert.Equal(t, rule.Condition, loaded[0].Condition)
	assert.Equal(t, []string{"log"}, loaded[0].Channels)
}

func TestAlert_SaveAndLoad_ActiveOnlyFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ruleID := uuid.New()
	require.NoError(t, s.SaveAlertRule(ctx, &alertengine.Rule{ID: ruleID, Name: "r",
		Condition: alertengine.ConsecutiveFailuresCondition(3), Severity: alertengine.SeverityMedium,
		Enabled: true, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}))
	active := &alertengine.Alert{ID: uuid.New(), RuleID: ruleID, RuleName: "r", Severity: alertengine.SeverityMedium,
		Message: "m", TriggeredAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	resolved := &alertengine.Alert{ID: uuid.New(), RuleID: ruleID, RuleName: "r", Severity: alertengine.SeverityMedium,
		Message: "m", TriggeredAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(), Resolved: true}

	require.NoError(t, s.SaveAlert(ctx, active))
	require.NoError(t, s.SaveAlert(ctx, resolved))

	all, err := s.LoadAlerts(ctx, AlertFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	activeOnly, err := s.LoadAlerts(ctx, AlertFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, activeOnly, 1)
	assert.Equal(t, active.ID, activeOnly[0].ID)
}

func TestCleanupOldData(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, 0, -40)
	rec := &execmetrics.ExecutionRecord{ID: uuid.New(), TaskID: uuid.New(), TaskName: "t", TaskType: "t", StartedAt: old, Success: true}
	require.NoError(t, s.SaveExecutionRecord(ctx, rec))

	require.NoError(t, s.CleanupOldData(ctx, 30))

	loaded, err := s.LoadTaskMetrics(ctx, TaskMetricsFilter{})
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSchedule_SaveAndLoad(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	row := ScheduleRow{
		ID: "nightly-report", Name: "Nightly Report", CronExpression: "0 0 2 * * *",
		TaskType: "report", Priority: task.PriorityNormal, Enabled: true, Timezone: "UTC",
		Parameters: map[string]any{"format": "pdf"}, MaxRetries: 3, TimeoutSeconds: 300,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SaveSchedule(ctx, row))

	loaded, err := s.ListSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, row.ID, loaded[0].ID)
	assert.Equal(t, "pdf", loaded[0].Parameters["format"])
}
