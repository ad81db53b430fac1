// Package execmetrics is a bounded in-memory ring of per-attempt
// execution records, with aggregation and a 75%-retention cleanup
// policy.
package execmetrics

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maumercado/task-queue-go/internal/metrics"
)

var ErrUnknownMetric = errors.New("execmetrics: unknown metric id")

// ExecutionRecord is one attempt of one task.
type ExecutionRecord struct {
	ID              uuid.UUID
	TaskID          uuid.UUID
	TaskName        string
	TaskType        string
	StartedAt       time.Time
	FinishedAt      *time.Time
	DurationMs      *int64
	Success         bool
	ErrorMessage    string
	RetryCount      int
	MemoryUsageMB   *float64
	CPUUsagePercent *float64
}

func (r *ExecutionRecord) finished() bool { return r.FinishedAt != nil }

// AggregatedMetrics summarizes executions of a task type over a
// window, computed on demand.
type AggregatedMetrics struct {
	TaskType             string
	PeriodStart          time.Time
	PeriodEnd            time.Time
	TotalExecutions      int
	SuccessfulExecutions int
	FailedExecutions     int
	SuccessRate          float64
	AvgDurationMs        float64
	MinDurationMs        float64
	MaxDurationMs        float64
	TotalRetries         int
	AvgMemoryUsageMB     float64
	AvgCPUUsagePercent   float64
}

// Engine is the in-memory execution ring.
type Engine struct {
	mu          sync.RWMutex
	records     map[uuid.UUID]*ExecutionRecord
	maxInMemory int
}

func NewEngine(maxInMemory int) *Engine {
	if maxInMemory <= 0 {
		maxInMemory = 10000
	}
	return &Engine{
		records:     make(map[uuid.UUID]*ExecutionRecord),
		maxInMemory: maxInMemory,
	}
}

// StartExecution begins tracking one attempt and returns its MetricId.
func (e *Engine) StartExecution(taskID uuid.UUID, name, taskType string) uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := uuid.New()
	e.records[id] = &ExecutionRecord{
		ID:        id,
		TaskID:    taskID,
		TaskName:  name,
		TaskType:  taskType,
		StartedAt: time.Now().UTC(),
	}
	metrics.RecordExecutionStart(taskType)

	if len(e.records) > e.maxInMemory {
		e.cleanupLocked()
	}
	return id
}

func (e *Engine) finish(id uuid.UUID, success bool, errMsg string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.records[id]
	if !ok {
		return ErrUnknownMetric
	}
	now := time.Now().UTC()
	rec.FinishedAt = &now
	rec.Success = success
	rec.ErrorMessage = errMsg
	ms := now.Sub(rec.StartedAt).Milliseconds()
	rec.DurationMs = &ms

	metrics.RecordExecutionFinish(rec.TaskType, success, float64(ms)/1000.0)
	return nil
}

func (e *Engine) MarkSuccess(id uuid.UUID) error { return e.finish(id, true, "") }

func (e *Engine) MarkFailure(id uuid.UUID, errMsg string) error { return e.finish(id, false, errMsg) }

// RecordRetry increments the retry counter on a record, whether or not
// it has been finished.
func (e *Engine) RecordRetry(id uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[id]
	if !ok {
		return ErrUnknownMetric
	}
	rec.RetryCount++
	metrics.RecordRetry(rec.TaskType)
	return nil
}

// UpdateResource records optional resource samples for a record.
func (e *Engine) UpdateResource(id uuid.UUID, memMB, cpuPct *float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.records[id]
	if !ok {
		return ErrUnknownMetric
	}
	if memMB != nil {
		rec.MemoryUsageMB = memMB
	}
	if cpuPct != nil {
		rec.CPUUsagePercent = cpuPct
	}
	return nil
}

func (e *Engine) Get(id uuid.UUID) (*ExecutionRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.records[id]
	return rec, ok
}

func (e *Engine) ByType(taskType string) []*ExecutionRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*ExecutionRecord
	for _, r := range e.records {
		if r.TaskType == taskType {
			out = append(out, r)
		}
	}
	sortByStartedDesc(out)
	return out
}

// Recent returns up to limit records ordered most-recent first.
func (e *Engine) Recent(limit int) []*ExecutionRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*ExecutionRecord, 0, len(e.records))
	for _, r := range e.records {
		out = append(out, r)
	}
	sortByStartedDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// InWindow returns finished records matching the type/name filters
// (empty = wildcard) with started_at within [since, now]. In-flight
// records are excluded, same as LastN and Aggregate, since Success is
// meaningless until finish() has run.
func (e *Engine) InWindow(taskTypeFilter, taskNameFilter string, since time.Time) []*ExecutionRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*ExecutionRecord
	for _, r := range e.records {
		if !matches(r, taskTypeFilter, taskNameFilter) || !r.finished() {
			continue
		}
		if r.StartedAt.Before(since) {
			continue
		}
		out = append(out, r)
	}
	sortByStartedDesc(out)
	return out
}

// LastN returns the most recent n records matching the filters,
// ordered most-recent first (used by the ConsecutiveFailures rule).
func (e *Engine) LastN(taskTypeFilter, taskNameFilter string, n int) []*ExecutionRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*ExecutionRecord
	for _, r := range e.records {
		if matches(r, taskTypeFilter, taskNameFilter) && r.finished() {
			out = append(out, r)
		}
	}
	sortByStartedDesc(out)
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func matches(r *ExecutionRecord, taskTypeFilter, taskNameFilter string) bool {
	if taskTypeFilter != "" && r.TaskType != taskTypeFilter {
		return false
	}
	if taskNameFilter != "" && r.TaskName != taskNameFilter {
		return false
	}
	return true
}

// Aggregate computes AggregatedMetrics for a type over [start, end]
// under a single read snapshot (deterministic).
func (e *Engine) Aggregate(taskType string, start, end time.Time) AggregatedMetrics {
	e.mu.RLock()
	defer e.mu.RUnlock()

	agg := AggregatedMetrics{TaskType: taskType, PeriodStart: start, PeriodEnd: end}
	var totalDuration, minDuration, maxDuration int64
	var memSum, cpuSum float64
	var memCount, cpuCount int
	first := true

	for _, r := range e.records {
		if r.TaskType != taskType || !r.finished() {
			continue
		}
		if r.StartedAt.Before(start) || r.StartedAt.After(end) {
			continue
		}
		agg.TotalExecutions++
		if r.Success {
			agg.SuccessfulExecutions++
		} else {
			agg.FailedExecutions++
		}
		agg.TotalRetries += r.RetryCount
		if r.DurationMs != nil {
			d := *r.DurationMs
			totalDuration += d
			if first || d < minDuration {
				minDuration = d
			}
			if first || d > maxDuration {
				maxDuration = d
			}
			first = false
		}
		if r.MemoryUsageMB != nil {
			memSum += *r.MemoryUsageMB
			memCount++
		}
		if r.CPUUsagePercent != nil {
			cpuSum += *r.CPUUsagePercent
			cpuCount++
		}
	}

	if agg.TotalExecutions > 0 {
		agg.SuccessRate = float64(agg.SuccessfulExecutions) / float64(agg.TotalExecutions) * 100
		agg.AvgDurationMs = float64(totalDuration) / float64(agg.TotalExecutions)
		agg.MinDurationMs = float64(minDuration)
		agg.MaxDurationMs = float64(maxDuration)
	}
	if memCount > 0 {
		agg.AvgMemoryUsageMB = memSum / float64(memCount)
	}
	if cpuCount > 0 {
		agg.AvgCPUUsagePercent = cpuSum / float64(cpuCount)
	}
	return agg
}

// cleanupLocked keeps the most-recent 75% of the
// ceiling by started_at, discard the rest. Caller holds e.mu.
func (e *Engine) cleanupLocked() {
	targetSize := e.maxInMemory * 3 / 4

	all := make([]*ExecutionRecord, 0, len(e.records))
	for _, r := range e.records {
		all = append(all, r)
	}
	sortByStartedDesc(all)

	if len(all) <= targetSize {
		return
	}

	keep := make(map[uuid.UUID]struct{}, targetSize)
	for _, r := range all[:targetSize] {
		keep[r.ID] = struct{}{}
	}
	for id := range e.records {
		if _, ok := keep[id]; !ok {
			delete(e.records, id)
		}
	}
}

func sortByStartedDesc(recs []*ExecutionRecord) {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].StartedAt.After(recs[j].StartedAt)
	})
}
