package task

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a Task.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusFailedPermanently
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusFailedPermanently:
		return "failed_permanently"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func ParseStatus(s string) Status {
	switch s {
	case "pending":
		return StatusPending
	case "running":
		return StatusRunning
	case "completed":
		return StatusCompleted
	case "failed":
		return StatusFailed
	case "failed_permanently":
		return StatusFailedPermanently
	case "cancelled":
		return StatusCancelled
	default:
		return StatusPending
	}
}

// IsTerminal reports whether the status is one of the three terminal
// terminal states: Completed, FailedPermanently, Cancelled.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailedPermanently || s == StatusCancelled
}

var (
	ErrInvalidTransition = errors.New("task: invalid state transition")
	ErrTaskNotFound      = errors.New("task: not found")
	ErrTaskAlreadyExists = errors.New("task: already exists")
	ErrCapacityExceeded  = errors.New("task: queue at capacity")
	ErrNoExecutor        = errors.New("task: no executor registered for type")
)

// validTransitions enumerates the transitions allowed by the state
// machine's main loop and markFailed logic. Failed
// is a transient classification immediately resolved to Pending
// (retry) or FailedPermanently (exhausted); it never persists as a
// stable status on its own.
var validTransitions = map[Status][]Status{
	StatusPending:           {StatusRunning, StatusCancelled},
	StatusRunning:           {StatusCompleted, StatusFailed, StatusCancelled},
	StatusFailed:            {StatusPending, StatusFailedPermanently, StatusCancelled},
	StatusCompleted:         {},
	StatusFailedPermanently: {},
	StatusCancelled:         {},
}

func (s Status) CanTransitionTo(target Status) bool {
	for _, v := range validTransitions[s] {
		if v == target {
			return true
		}
	}
	return false
}

// StateMachine mutates a single Task's status, enforcing the
// transitions above.
type StateMachine struct {
	task *Task
}

func NewStateMachine(t *Task) *StateMachine {
	return &StateMachine{task: t}
}

func (sm *StateMachine) transition(target Status) error {
	if sm.task.Status.IsTerminal() {
		return ErrInvalidTransition
	}
	if !sm.task.Status.CanTransitionTo(target) {
		return ErrInvalidTransition
	}
	sm.task.Status = target
	sm.task.UpdatedAt = time.Now().UTC()
	return nil
}

// Start marks the task Running and records a new attempt.
func (sm *StateMachine) Start() error {
	if err := sm.transition(StatusRunning); err != nil {
		return err
	}
	sm.task.Attempts++
	return nil
}

// Complete marks the task Completed with a successful outcome.
func (sm *StateMachine) Complete() error {
	if err := sm.transition(StatusCompleted); err != nil {
		return err
	}
	sm.task.LastResult = LastResult{Kind: ResultSuccess}
	return nil
}

// Cancel marks the task Cancelled; terminal regardless of prior status
// except when already terminal.
func (sm *StateMachine) Cancel() error {
	if err := sm.transition(StatusCancelled); err != nil {
		return err
	}
	sm.task.LastResult = LastResult{Kind: ResultCancelled}
	return nil
}

// MarkFailed classifies the failure, then either schedules a retry
// (Pending with a bumped earliest_execute_at) or finalizes as
// FailedPermanently once the retry policy is exhausted.
func (sm *StateMachine) MarkFailed(now time.Time, msg string, timedOut bool) error {
	if err := sm.transition(StatusFailed); err != nil {
		return err
	}
	t := sm.task
	kind := ResultFailed
	if timedOut {
		kind = ResultTimedOut
	}
	t.LastResult = LastResult{Kind: kind, Message: msg}

	if t.RetryPolicy.AllowsAttempt(t.Attempts) {
		delay := t.RetryPolicy.NextDelay(t.Attempts)
		t.EarliestExecuteAt = now.Add(delay)
		return sm.transition(StatusPending)
	}
	return sm.transition(StatusFailedPermanently)
}
