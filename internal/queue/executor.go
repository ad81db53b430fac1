package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/maumercado/task-queue-go/internal/logger"
)

// ExecutorFunc processes the parameters of one task attempt. The core
// does not interpret parameters; it only forwards them.
type ExecutorFunc func(ctx context.Context, parameters map[string]any) error

// executorRegistry maps task_type to its registered ExecutorFunc, one
// per type.
type executorRegistry struct {
	handlers map[string]ExecutorFunc
}

func newExecutorRegistry() *executorRegistry {
	return &executorRegistry{handlers: make(map[string]ExecutorFunc)}
}

func (r *executorRegistry) register(taskType string, fn ExecutorFunc) {
	r.handlers[taskType] = fn
}

func (r *executorRegistry) lookup(taskType string) (ExecutorFunc, bool) {
	fn, ok := r.handlers[taskType]
	return fn, ok
}

// runExecutor wraps a registered executor with panic recovery and the
// task's own timeout.
func runExecutor(ctx context.Context, taskID uuid.UUID, taskType string, fn ExecutorFunc, params map[string]any, timeout time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			logger.WithTask(taskID.String()).Error().
				Str("type", taskType).
				Interface("panic", r).
				Str("stack", string(stack)).
				Msg("executor panicked")
			err = fmt.Errorf("executor panicked: %v", r)
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err = fn(runCtx, params)
	duration := time.Since(start)

	log := logger.WithTask(taskID.String())
	switch {
	case err == nil:
		log.Debug().Str("type", taskType).Dur("duration", duration).Msg("executor succeeded")
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn().Str("type", taskType).Dur("duration", duration).Msg("executor timed out")
	default:
		log.Warn().Err(err).Str("type", taskType).Dur("duration", duration).Msg("executor failed")
	}
	return err
}
