// Package monitor wires the queue, execution metrics, and alert
// engine together behind periodic background ticks, and reports
// overall health.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maumercado/task-queue-go/internal/alertengine"
	"github.com/maumercado/task-queue-go/internal/execmetrics"
	"github.com/maumercado/task-queue-go/internal/logger"
	"github.com/maumercado/task-queue-go/internal/metrics"
	"github.com/maumercado/task-queue-go/internal/queue"
	"github.com/maumercado/task-queue-go/internal/schedule"
	"github.com/maumercado/task-queue-go/internal/storage"
	"github.com/maumercado/task-queue-go/internal/task"
)

type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// Health is the read-only snapshot exposed by the admin surface.
type Health struct {
	Status            HealthStatus
	SchedulerRunning  bool
	ActiveAlerts      int
	QueuePending      int
	QueueRunning      int
	DatabaseRowCounts map[string]int64
}

type Config struct {
	AlertEvaluationInterval    time.Duration
	MetricsPersistenceInterval time.Duration
	CleanupInterval            time.Duration
	DataRetentionDays          int
	RecentOnFlush              int
}

// Coordinator owns the background ticks that bind the queue,
// execution metrics, and alert engine to persistence, plus the
// cron-driven schedule ingest.
type Coordinator struct {
	store   *storage.Store
	q       *queue.Queue
	metrics *execmetrics.Engine
	alerts  *alertengine.Engine
	ingest  *schedule.Ingest
	cfg     Config

	mu      sync.RWMutex
	running bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(store *storage.Store, q *queue.Queue, metricsEngine *execmetrics.Engine, alertEngine *alertengine.Engine, ingest *schedule.Ingest, cfg Config) *Coordinator {
	if cfg.AlertEvaluationInterval <= 0 {
		cfg.AlertEvaluationInterval = 60 * time.Second
	}
	if cfg.MetricsPersistenceInterval <= 0 {
		cfg.MetricsPersistenceInterval = 300 * time.Second
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 24 * time.Hour
	}
	if cfg.DataRetentionDays <= 0 {
		cfg.DataRetentionDays = 30
	}
	if cfg.RecentOnFlush <= 0 {
		cfg.RecentOnFlush = 100
	}
	return &Coordinator{
		store:   store,
		q:       q,
		metrics: metricsEngine,
		alerts:  alertEngine,
		ingest:  ingest,
		cfg:     cfg,
		stopCh:  make(chan struct{}),
	}
}

// Start installs the default alert rules (if none exist), then begins
// the three background ticks.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.installDefaultRulesIfEmpty(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	c.wg.Add(3)
	go c.tickLoop(ctx, c.cfg.AlertEvaluationInterval, c.evaluateAlerts)
	go c.tickLoop(ctx, c.cfg.MetricsPersistenceInterval, c.flushMetrics)
	go c.tickLoop(ctx, c.cfg.CleanupInterval, c.cleanupRetention)

	logger.WithComponent("monitor").Info().
		Dur("alert_interval", c.cfg.AlertEvaluationInterval).
		Dur("flush_interval", c.cfg.MetricsPersistenceInterval).
		Dur("cleanup_interval", c.cfg.CleanupInterval).
		Msg("monitoring coordinator started")
	return nil
}

func (c *Coordinator) Stop() {
	close(c.stopCh)
	c.wg.Wait()
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	logger.WithComponent("monitor").Info().Msg("monitoring coordinator stopped")
}

func (c *Coordinator) tickLoop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (c *Coordinator) evaluateAlerts(ctx context.Context) {
	log := logger.WithComponent("monitor")

	for _, cfg := range c.ingest.Due(time.Now().UTC()) {
		t := task.New(cfg.Name, cfg.TaskType, cfg.Priority, task.NoRetry(), cfg.Parameters)
		t.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		if _, err := c.q.Enqueue(ctx, t); err != nil {
			log.Error().Err(err).Str("schedule_id", cfg.ID).Msg("failed to enqueue due schedule")
		}
	}

	fired := c.alerts.EvaluateRules()
	for _, a := range fired {
		if err := c.store.SaveAlert(ctx, a); err != nil {
			log.Error().Err(err).Str("alert", a.ID.String()).Msg("failed to persist fired alert")
		}
	}
	metrics.SetAlertsActive(float64(len(c.alerts.ActiveAlerts())))
}

func (c *Coordinator) flushMetrics(ctx context.Context) {
	log := logger.WithComponent("monitor")
	for _, rec := range c.metrics.Recent(c.cfg.RecentOnFlush) {
		if err := c.store.SaveExecutionRecord(ctx, rec); err != nil {
			log.Error().Err(err).Str("record", rec.ID.String()).Msg("failed to flush execution record")
		}
	}
}

func (c *Coordinator) cleanupRetention(ctx context.Context) {
	log := logger.WithComponent("monitor")
	if err := c.store.CleanupOldData(ctx, c.cfg.DataRetentionDays); err != nil {
		log.Error().Err(err).Msg("retention cleanup failed")
	}
}

func (c *Coordinator) installDefaultRulesIfEmpty(ctx context.Context) error {
	existing, err := c.store.LoadAlertRules(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		for _, r := range existing {
			c.alerts.AddRule(r)
		}
		return nil
	}

	now := time.Now().UTC()
	defaults := []*alertengine.Rule{
		{
			Name:            "High Failure Rate",
			Condition:       alertengine.FailureRateCondition(50.0, 15, 5),
			Severity:        alertengine.SeverityHigh,
			Enabled:         true,
			CooldownMinutes: 30,
			Channels:        []string{"log"},
			CreatedAt:       now,
			UpdatedAt:       now,
		},
		{
			Name:            "Consecutive Failures",
			Condition:       alertengine.ConsecutiveFailuresCondition(3),
			Severity:        alertengine.SeverityCritical,
			Enabled:         true,
			CooldownMinutes: 30,
			Channels:        []string{"log"},
			CreatedAt:       now,
			UpdatedAt:       now,
		},
		{
			Name:            "Long Execution Duration",
			Condition:       alertengine.ExecutionDurationCondition(600, 2, 60),
			Severity:        alertengine.SeverityMedium,
			Enabled:         true,
			CooldownMinutes: 30,
			Channels:        []string{"log"},
			CreatedAt:       now,
			UpdatedAt:       now,
		},
		{
			Name:            "High Retry Rate",
			Condition:       alertengine.HighRetryRateCondition(2.0, 30, 3),
			Severity:        alertengine.SeverityMedium,
			Enabled:         true,
			CooldownMinutes: 30,
			Channels:        []string{"log"},
			CreatedAt:       now,
			UpdatedAt:       now,
		},
	}

	for _, r := range defaults {
		r.ID = uuid.New()
		c.alerts.AddRule(r)
		if err := c.store.SaveAlertRule(ctx, r); err != nil {
			return err
		}
	}
	logger.WithComponent("monitor").Info().Int("count", len(defaults)).Msg("installed default alert rules")
	return nil
}

// Health computes the overall status: critical if the coordinator
// isn't running, warning if running with at least one active alert,
// healthy otherwise.
func (c *Coordinator) Health(ctx context.Context) (Health, error) {
	c.mu.RLock()
	running := c.running
	c.mu.RUnlock()

	active := len(c.alerts.ActiveAlerts())
	stats := c.q.Stats()

	status := HealthHealthy
	switch {
	case !running:
		status = HealthCritical
	case active > 0:
		status = HealthWarning
	}

	rowCounts, err := c.store.Stats(ctx)
	if err != nil {
		return Health{}, err
	}

	return Health{
		Status:            status,
		SchedulerRunning:  running,
		ActiveAlerts:      active,
		QueuePending:      stats.Pending,
		QueueRunning:      stats.Running,
		DatabaseRowCounts: rowCounts,
	}, nil
}
