// Package queue is the task queue: an in-process task table plus
// a ready-set priority heap, driven by a single-threaded cooperative
// main loop that drains a command inbox, promotes due tasks, and hands
// ready work off to the worker pool.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maumercado/task-queue-go/internal/execmetrics"
	"github.com/maumercado/task-queue-go/internal/logger"
	"github.com/maumercado/task-queue-go/internal/metrics"
	"github.com/maumercado/task-queue-go/internal/storage"
	"github.com/maumercado/task-queue-go/internal/task"
	"github.com/maumercado/task-queue-go/internal/worker"
)

var ErrAlreadyStarted = errors.New("queue: already started")

// commandKind tags the inbox's command struct.
type commandKind int

const (
	cmdAdd commandKind = iota
	cmdCancel
)

type command struct {
	kind   commandKind
	task   *task.Task
	taskID uuid.UUID
	reply  chan error
}

// Stats is the point-in-time snapshot exposed by Stats().
type Stats struct {
	Total             int
	Pending           int
	Running           int
	Completed         int
	Failed            int
	FailedPermanently int
	Cancelled         int
	SuccessRate       float64
}

// Queue owns the task table, the ready heap, and the main loop that
// moves tasks between them.
type Queue struct {
	store   *storage.Store
	pool    *worker.Pool
	metrics *execmetrics.Engine
	execs   *executorRegistry

	maxWorkers   int
	maxQueueSize int64
	tickInterval time.Duration

	mu      sync.RWMutex
	tasks   map[uuid.UUID]*task.Task
	ready   readyHeap
	running map[uuid.UUID]uuid.UUID // task id -> worker pool unit id

	inbox   chan command
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
}

type Config struct {
	MaxWorkers   int
	MaxQueueSize int64
	TickInterval time.Duration
}

func New(store *storage.Store, pool *worker.Pool, metricsEngine *execmetrics.Engine, cfg Config) *Queue {
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = time.Second
	}
	return &Queue{
		store:        store,
		pool:         pool,
		metrics:      metricsEngine,
		execs:        newExecutorRegistry(),
		maxWorkers:   cfg.MaxWorkers,
		maxQueueSize: cfg.MaxQueueSize,
		tickInterval: tick,
		tasks:        make(map[uuid.UUID]*task.Task),
		running:      make(map[uuid.UUID]uuid.UUID),
		inbox:        make(chan command, 256),
		stopCh:       make(chan struct{}),
	}
}

// RegisterExecutor binds a task_type to the function that will run its
// attempts. One executor per type; a later call replaces the former.
func (q *Queue) RegisterExecutor(taskType string, fn ExecutorFunc) {
	q.execs.register(taskType, fn)
}

// Enqueue adds a new task, persisting it before acknowledging per the
// write-ahead contract.
func (q *Queue) Enqueue(ctx context.Context, t *task.Task) (uuid.UUID, error) {
	q.mu.RLock()
	full := q.maxQueueSize > 0 && int64(len(q.tasks)) >= q.maxQueueSize
	q.mu.RUnlock()
	if full {
		return uuid.Nil, task.ErrCapacityExceeded
	}

	if err := q.store.SaveTaskSnapshot(ctx, t); err != nil {
		return uuid.Nil, err
	}

	reply := make(chan error, 1)
	select {
	case q.inbox <- command{kind: cmdAdd, task: t, reply: reply}:
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}

	select {
	case err := <-reply:
		return t.ID, err
	case <-ctx.Done():
		return t.ID, ctx.Err()
	}
}

// Cancel marks a task Cancelled. A running attempt is asked to cancel
// via the worker pool but may finish before the cancel takes effect.
func (q *Queue) Cancel(ctx context.Context, id uuid.UUID) error {
	reply := make(chan error, 1)
	select {
	case q.inbox <- command{kind: cmdCancel, taskID: id, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Get(id uuid.UUID) (*task.Task, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	t, ok := q.tasks[id]
	return t, ok
}

// List returns a snapshot of tasks, optionally filtered by status.
func (q *Queue) List(status *task.Status) []*task.Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*task.Task, 0, len(q.tasks))
	for _, t := range q.tasks {
		if status != nil && t.Status != *status {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (q *Queue) Stats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var s Stats
	s.Total = len(q.tasks)
	for _, t := range q.tasks {
		switch t.Status {
		case task.StatusPending:
			s.Pending++
		case task.StatusRunning:
			s.Running++
		case task.StatusCompleted:
			s.Completed++
		case task.StatusFailed:
			s.Failed++
		case task.StatusFailedPermanently:
			s.FailedPermanently++
		case task.StatusCancelled:
			s.Cancelled++
		}
	}
	finished := s.Completed + s.FailedPermanently
	if finished > 0 {
		s.SuccessRate = float64(s.Completed) / float64(finished) * 100
	}
	return s
}

// Start rehydrates Pending/Failed tasks from storage and begins the
// main loop.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return ErrAlreadyStarted
	}
	q.started = true
	q.mu.Unlock()

	live, err := q.store.LoadLiveSnapshots(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	q.mu.Lock()
	for _, t := range live {
		q.tasks[t.ID] = t
		if t.Status == task.StatusPending && t.IsReady(now) {
			pushReady(&q.ready, t, now)
		}
	}
	q.mu.Unlock()

	q.wg.Add(1)
	go q.loop(ctx)

	logger.WithComponent("queue").Info().Int("rehydrated", len(live)).Dur("tick_interval", q.tickInterval).Msg("queue started")
	return nil
}

func (q *Queue) Stop() {
	close(q.stopCh)
	q.wg.Wait()
	logger.WithComponent("queue").Info().Msg("queue stopped")
}

func (q *Queue) loop(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case cmd := <-q.inbox:
			q.handleCommand(ctx, cmd)
		case <-ticker.C:
			q.tick(ctx)
		}
	}
}

func (q *Queue) handleCommand(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdAdd:
		q.mu.Lock()
		q.tasks[cmd.task.ID] = cmd.task
		now := time.Now().UTC()
		if cmd.task.IsReady(now) {
			pushReady(&q.ready, cmd.task, now)
		}
		q.mu.Unlock()
		cmd.reply <- nil

	case cmdCancel:
		q.mu.Lock()
		t, ok := q.tasks[cmd.taskID]
		if !ok {
			q.mu.Unlock()
			cmd.reply <- task.ErrTaskNotFound
			return
		}
		unitID, running := q.running[cmd.taskID]
		sm := task.NewStateMachine(t)
		err := sm.Cancel()
		q.mu.Unlock()

		if err == nil {
			_ = q.store.SaveTaskSnapshot(ctx, t)
			if running {
				_ = q.pool.Cancel(unitID)
			}
		}
		cmd.reply <- err
	}
}

// tick implements the three-step main loop: drain is handled by the
// select in loop(); here we promote due tasks and dispatch ready work.
func (q *Queue) tick(ctx context.Context) {
	now := time.Now().UTC()

	q.mu.Lock()
	for _, t := range q.tasks {
		if t.Status == task.StatusPending && t.IsReady(now) && !q.inReadyLocked(t.ID) {
			pushReady(&q.ready, t, now)
		}
	}

	available := q.maxWorkers - q.pool.Count()
	var dispatch []*task.Task
	for available > 0 && q.ready.Len() > 0 {
		id := popReady(&q.ready)
		t, ok := q.tasks[id]
		if !ok || t.Status != task.StatusPending {
			continue
		}
		sm := task.NewStateMachine(t)
		if err := sm.Start(); err != nil {
			continue
		}
		dispatch = append(dispatch, t)
		available--
	}
	q.updateQueueGaugesLocked()
	q.mu.Unlock()

	for _, t := range dispatch {
		t := t
		if err := q.store.SaveTaskSnapshot(ctx, t); err != nil {
			logger.WithTask(t.ID.String()).Error().Err(err).Msg("failed to persist task before dispatch")
		}
		q.dispatch(ctx, t)
	}

	metrics.SetTasksRunning(float64(q.pool.Count()))
}

// inReadyLocked is a linear scan acceptable at the scale this queue
// targets; callers hold q.mu.
func (q *Queue) inReadyLocked(id uuid.UUID) bool {
	for _, e := range q.ready {
		if e.taskID == id {
			return true
		}
	}
	return false
}

func (q *Queue) updateQueueGaugesLocked() {
	counts := map[string]int{}
	for _, e := range q.ready {
		t := q.tasks[e.taskID]
		if t != nil {
			counts[t.Priority.String()]++
		}
	}
	for _, p := range []task.Priority{task.PriorityCritical, task.PriorityHigh, task.PriorityNormal, task.PriorityLow} {
		metrics.SetTasksQueued(p.String(), float64(counts[p.String()]))
	}
}

func (q *Queue) dispatch(ctx context.Context, t *task.Task) {
	fn, ok := q.execs.lookup(t.Type)
	if !ok {
		q.finalizeMissingExecutor(ctx, t)
		return
	}

	metricID := q.metrics.StartExecution(t.ID, t.Name, t.Type)

	unitID, err := q.pool.Spawn(t.Name, t.Priority, t.Description, func(workCtx context.Context) error {
		runErr := runExecutor(workCtx, t.ID, t.Type, fn, t.Parameters, t.Timeout)
		q.completeAttempt(ctx, t, metricID, runErr)
		return runErr
	})
	if err != nil {
		q.completeAttempt(ctx, t, metricID, err)
		return
	}
	q.mu.Lock()
	q.running[t.ID] = unitID
	q.mu.Unlock()
}

// finalizeMissingExecutor fails a task outright rather than through the
// retry policy: a missing executor is a configuration error, not a
// transient attempt failure, so it is never worth retrying.
func (q *Queue) finalizeMissingExecutor(ctx context.Context, t *task.Task) {
	q.mu.Lock()
	t.Status = task.StatusFailedPermanently
	t.LastResult = task.LastResult{Kind: task.ResultFailed, Message: "no executor registered for task type " + t.Type}
	t.UpdatedAt = time.Now().UTC()
	q.mu.Unlock()

	_ = q.store.SaveTaskSnapshot(ctx, t)
	_ = q.store.DeleteTaskSnapshot(ctx, t.ID)
	logger.WithTask(t.ID.String()).Error().Str("type", t.Type).Msg("task has no registered executor")
}

// completeAttempt applies the state-machine transition under the
// queue lock, since t is the same pointer tick/Get/List/Stats read
// concurrently, then persists and records metrics outside the lock.
func (q *Queue) completeAttempt(ctx context.Context, t *task.Task, metricID uuid.UUID, runErr error) {
	now := time.Now().UTC()

	q.mu.Lock()
	sm := task.NewStateMachine(t)
	var retried bool
	if runErr == nil {
		_ = sm.Complete()
	} else {
		timedOut := errors.Is(runErr, context.DeadlineExceeded)
		if err := sm.MarkFailed(now, runErr.Error(), timedOut); err == nil {
			retried = t.Status == task.StatusPending
		}
	}
	delete(q.running, t.ID)
	terminal := t.Status.IsTerminal()
	q.mu.Unlock()

	if runErr == nil {
		_ = q.metrics.MarkSuccess(metricID)
	} else {
		_ = q.metrics.MarkFailure(metricID, runErr.Error())
		if retried {
			_ = q.metrics.RecordRetry(metricID)
		}
	}

	if err := q.store.SaveTaskSnapshot(ctx, t); err != nil {
		logger.WithTask(t.ID.String()).Error().Err(err).Msg("failed to persist task after attempt")
	}
	if rec, ok := q.metrics.Get(metricID); ok {
		if err := q.store.SaveExecutionRecord(ctx, rec); err != nil {
			logger.WithTask(t.ID.String()).Error().Err(err).Msg("failed to persist execution record")
		}
	}

	if terminal {
		_ = q.store.DeleteTaskSnapshot(ctx, t.ID)
	}
}
