package monitor

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
	"github.com/maumercado/task-queue-go/internal/queue"
	"github.com/maumercado/task-queue-go/internal/schedule"
	"github.com/maumercado/task-queue-go/internal/storage"
	"github.com/maumercado/task-queue-go/internal/worker"
)

func newTestCoordinator(t *testing.T, cfg Config) (*Coordinator, *queue.Queue, *storage.Store) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "orchestrator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	pool := worker.NewPool()
	t.Cleanup(func() { pool.Shutdown(100 * time.Millisecond) })

	metricsEngine := execmetrics.NewEngine(0)
	q := queue.New(store, pool, metricsEngine, queue.Config{MaxWorkers: 4, TickInterval: 5 * time.Millisecond})
	require.NoError(t, q.Start(context.Background()))
	t.Cleanup(q.Stop)

	alertEngine := alertengine.NewEngine(metricsEngine, nil)
	ingest := schedule.NewIngest()

	c := New(store, q, metricsEngine, alertEngine, ingest, cfg)
	return c, q, store
}

func TestCoordinator_InstallsDefaultRulesOnce(t *testing.T) {
	c, _, store := newTestCoordinator(t, Config{
		AlertEvaluationInterval:    20 * time.Millisecond,
		MetricsPersistenceInterval: time.Hour,
		CleanupInterval:            time.Hour,
	})
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	rules, err := store.LoadAlertRules(context.Background())
	require.NoError(t, err)
	assert.Len(t, rules, 4)

	names := make(map[string]bool)
	for _, r := range rules {
		names[r.Name] = true
	}
	assert.True(t, names["High Failure Rate"])
	assert.True(t, names["Consecutive Failures"])
	assert.True(t, names["Long Execution Duration"])
	assert.True(t, names["High Retry Rate"])
}

func TestCoordinator_Health_CriticalWhenNotStarted(t *testing.T) {
	c, _, _ := newTestCoordinator(t, Config{})
	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HealthCritical, h.Status)
	assert.False(t, h.SchedulerRunning)
}

func TestCoordinator_Health_HealthyWhenRunningWithNoAlerts(t *testing.T) {
	c, _, _ := newTestCoordinator(t, Config{
		AlertEvaluationInterval:    time.Hour,
		MetricsPersistenceInterval: time.Hour,
		CleanupInterval:            time.Hour,
	})
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HealthHealthy, h.Status)
	assert.True(t, h.SchedulerRunning)
}

func TestCoordinator_RehydratesExistingRulesWithoutDuplicating(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "orchestrator.db"))
	require.NoError(t, err)
	defer store.Close()

	existing := &alertengine.Rule{
		Name:            "Custom Rule",
		Condition:       alertengine.ConsecutiveFailuresCondition(5),
		Severity:        alertengine.SeverityLow,
		Enabled:         true,
		CooldownMinutes: 10,
		Channels:        []string{"log"},
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	existing.ID = uuid.New()
	require.NoError(t, store.SaveAlertRule(context.Background(), existing))

	pool := worker.NewPool()
	defer pool.Shutdown(100 * time.Millisecond)
	metricsEngine := execmetrics.NewEngine(0)
	q := queue.New(store, pool, metricsEngine, queue.Config{MaxWorkers: 1, TickInterval: 5 * time.Millisecond})
	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	alertEngine := alertengine.NewEngine(metricsEngine, nil)
	c := New(store, q, metricsEngine, alertEngine, schedule.NewIngest(), Config{
		AlertEvaluationInterval: time.Hour, MetricsPersistenceInterval: time.Hour, CleanupInterval: time.Hour,
	})
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	rules, err := store.LoadAlertRules(context.Background())
	require.NoError(t, err)
	assert.Len(t, rules, 1, "an existing rule set must not be overwritten with the defaults")
	assert.Equal(t, 1, alertEngine.RuleCount())
}
