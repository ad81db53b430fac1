package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maumercado/task-queue-go/internal/execmetrics"
	"github.com/maumercado/task-queue-go/internal/storage"
	"github.com/maumercado/task-queue-go/internal/task"
	"github.com/maumercado/task-queue-go/internal/worker"
)

func newTestQueue(t *testing.T, cfg Config) *Queue {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "orchestrator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	pool := worker.NewPool()
	t.Cleanup(func() { pool.Shutdown(100 * time.Millisecond) })

	if cfg.TickInterval == 0 {
		cfg.TickInterval = 10 * time.Millisecond
	}
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = 4
	}

	q := New(store, pool, execmetrics.NewEngine(0), cfg)
	require.NoError(t, q.Start(context.Background()))
	t.Cleanup(q.Stop)
	return q
}

func TestQueue_EnqueueAndComplete(t *testing.T) {
	q := newTestQueue(t, Config{})

	done := make(chan struct{})
	q.RegisterExecutor("noop", func(ctx context.Context, params map[string]any) error {
		close(done)
		return nil
	})

	tk := task.New("job-1", "noop", task.PriorityNormal, task.NoRetry(), nil)
	id, err := q.Enqueue(context.Background(), tk)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("executor never ran")
	}

	require.Eventually(t, func() bool {
		got, ok := q.Get(id)
		return ok && got.Status == task.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQueue_RetryThenSucceed(t *testing.T) {
	q := newTestQueue(t, Config{})

	var calls int
	q.RegisterExecutor("flaky", func(ctx context.Context, params map[string]any) error {
		calls++
		if calls < 2 {
			return errors.New("transient failure")
		}
		return nil
	})

	tk := task.New("job-2", "flaky", task.PriorityHigh, task.Fixed(5*time.Millisecond, 3), nil)
	id, err := q.Enqueue(context.Background(), tk)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, ok := q.Get(id)
		return ok && got.Status == task.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, calls)
}

func TestQueue_ExhaustsRetriesAndFailsPermanently(t *testing.T) {
	q := newTestQueue(t, Config{})

	q.RegisterExecutor("always-fails", func(ctx context.Context, params map[string]any) error {
		return errors.New("boom")
	})

	tk := task.New("job-3", "always-fails", task.PriorityLow, task.Fixed(5*time.Millisecond, 2), nil)
	id, err := q.Enqueue(context.Background(), tk)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, ok := q.Get(id)
		return ok && got.Status == task.StatusFailedPermanently
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQueue_MissingExecutorFailsImmediately(t *testing.T) {
	q := newTestQueue(t, Config{})

	tk := task.New("job-4", "unregistered", task.PriorityNormal, task.NoRetry(), nil)
	id, err := q.Enqueue(context.Background(), tk)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, ok := q.Get(id)
		return ok && got.Status == task.StatusFailedPermanently
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQueue_EnqueueRejectedAtCapacity(t *testing.T) {
	q := newTestQueue(t, Config{MaxQueueSize: 1, MaxWorkers: 0})

	blocked := make(chan struct{})
	q.RegisterExecutor("slow", func(ctx context.Context, params map[string]any) error {
		<-blocked
		return nil
	})

	first := task.New("job-5", "slow", task.PriorityNormal, task.NoRetry(), nil)
	_, err := q.Enqueue(context.Background(), first)
	require.NoError(t, err)

	second := task.New("job-6", "slow", task.PriorityNormal, task.NoRetry(), nil)
	_, err = q.Enqueue(context.Background(), second)
	assert.ErrorIs(t, err, task.ErrCapacityExceeded)

	close(blocked)
}

func TestQueue_CancelPendingTask(t *testing.T) {
	q := newTestQueue(t, Config{MaxWorkers: 0})

	tk := task.New("job-7", "whatever", task.PriorityNormal, task.NoRetry(), nil)
	id, err := q.Enqueue(context.Background(), tk)
	require.NoError(t, err)

	require.NoError(t, q.Cancel(context.Background(), id))

	got, ok := q.Get(id)
	require.True(t, ok)
	assert.Equal(t, task.StatusCancelled, got.Status)
}

func TestQueue_CancelUnknownTask(t *testing.T) {
	q := newTestQueue(t, Config{})
	err := q.Cancel(context.Background(), task.New("x", "y", task.PriorityNormal, task.NoRetry(), nil).ID)
	assert.ErrorIs(t, err, task.ErrTaskNotFound)
}

func TestQueue_PriorityOrdering(t *testing.T) {
	q := newTestQueue(t, Config{MaxWorkers: 1, TickInterval: 5 * time.Millisecond})

	var order []string
	orderDone := make(chan struct{})
	release := make(chan struct{})

	q.RegisterExecutor("ordered", func(ctx context.Context, params map[string]any) error {
		name, _ := params["name"].(string)
		order = append(order, name)
		if len(order) == 1 {
			<-release // hold the single worker slot until both tasks are enqueued
		}
		if len(order) == 3 {
			close(orderDone)
		}
		return nil
	})

	_, err := q.Enqueue(context.Background(), task.New("blocker", "ordered", task.PriorityLow, task.NoRetry(), map[string]any{"name": "blocker"}))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond) // let the blocker claim the only worker slot

	_, err = q.Enqueue(context.Background(), task.New("low", "ordered", task.PriorityLow, task.NoRetry(), map[string]any{"name": "low"}))
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), task.New("critical", "ordered", task.PriorityCritical, task.NoRetry(), map[string]any{"name": "critical"}))
	require.NoError(t, err)

	close(release)

	select {
	case <-orderDone:
	case <-time.After(2 * time.Second):
		t.Fatal("not all tasks ran")
	}

	require.Len(t, order, 3)
	assert.Equal(t, "blocker", order[0])
	assert.Equal(t, "critical", order[1], "a ready Critical task outranks a ready Low task once a worker frees up")
	assert.Equal(t, "low", order[2])
}

func TestQueue_Stats(t *testing.T) {
	q := newTestQueue(t, Config{})
	q.RegisterExecutor("noop", func(ctx context.Context, params map[string]any) error { return nil })

	_, err := q.Enqueue(context.Background(), task.New("a", "noop", task.PriorityNormal, task.NoRetry(), nil))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return q.Stats().Completed == 1
	}, 2*time.Second, 10*time.Millisecond)

	stats := q.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, float64(100), stats.SuccessRate)
}

func TestQueue_Rehydration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestrator.db")
	store, err := storage.Open(path)
	require.NoError(t, err)

	tk := task.New("pending-on-restart", "noop", task.PriorityNormal, task.NoRetry(), nil)
	require.NoError(t, store.SaveTaskSnapshot(context.Background(), tk))
	require.NoError(t, store.Close())

	store2, err := storage.Open(path)
	require.NoError(t, err)
	defer store2.Close()

	pool := worker.NewPool()
	defer pool.Shutdown(100 * time.Millisecond)

	done := make(chan struct{})
	q := New(store2, pool, execmetrics.NewEngine(0), Config{MaxWorkers: 2, TickInterval: 5 * time.Millisecond})
	q.RegisterExecutor("noop", func(ctx context.Context, params map[string]any) error {
		close(done)
		return nil
	})
	require.NoError(t, q.Start(context.Background()))
	defer q.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("rehydrated task never ran")
	}
}
