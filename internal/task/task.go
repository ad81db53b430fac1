package task

import (
	"time"

	"github.com/google/uuid"
)

// Priority levels for ready-heap ordering. Higher values run first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// baseScore is the priority-tier contribution to the priority score.
func (p Priority) baseScore() int {
	switch p {
	case PriorityCritical:
		return 1000
	case PriorityHigh:
		return 750
	case PriorityNormal:
		return 500
	case PriorityLow:
		return 250
	default:
		return 500
	}
}

func ParsePriority(s string) Priority {
	switch s {
	case "low":
		return PriorityLow
	case "normal":
		return PriorityNormal
	case "high":
		return PriorityHigh
	case "critical":
		return PriorityCritical
	default:
		return PriorityNormal
	}
}

// PriorityFromInt converts an integer to Priority, clamping unknown values to Normal.
func PriorityFromInt(i int) Priority {
	if i < 0 || i > 3 {
		return PriorityNormal
	}
	return Priority(i)
}

// ResultKind tags the outcome of the most recent attempt.
type ResultKind int

const (
	ResultNone ResultKind = iota
	ResultSuccess
	ResultFailed
	ResultCancelled
	ResultTimedOut
)

// LastResult is the outcome of the task's most recent attempt.
type LastResult struct {
	Kind    ResultKind
	Message string
}

// Task is a unit of work tracked by the queue.
type Task struct {
	ID                uuid.UUID
	Name              string
	Description       string
	Type              string // task_type tag: selects the registered executor
	Priority          Priority
	Status            Status
	RetryPolicy       RetryPolicy
	Attempts          int
	CreatedAt         time.Time
	UpdatedAt         time.Time
	EarliestExecuteAt time.Time
	LastResult        LastResult
	Parameters        map[string]any
	Timeout           time.Duration
}

// DefaultTimeout is used when a task does not specify one.
const DefaultTimeout = 5 * time.Minute

// New creates a new Task in Pending status, ready to execute immediately.
func New(name, taskType string, priority Priority, policy RetryPolicy, params map[string]any) *Task {
	now := time.Now().UTC()
	timeout := DefaultTimeout
	return &Task{
		ID:                uuid.New(),
		Name:              name,
		Type:              taskType,
		Priority:          priority,
		Status:            StatusPending,
		RetryPolicy:       policy,
		Attempts:          0,
		CreatedAt:         now,
		UpdatedAt:         now,
		EarliestExecuteAt: now,
		Parameters:        params,
		Timeout:           timeout,
	}
}

// IsReady reports whether the task's earliest_execute_at has elapsed.
func (t *Task) IsReady(now time.Time) bool {
	return !t.EarliestExecuteAt.After(now)
}

// PriorityScore computes the heap key: base priority,
// plus a readiness bonus that decays with delay, minus a retry penalty.
func (t *Task) PriorityScore(now time.Time) int {
	score := t.Priority.baseScore()

	if t.IsReady(now) {
		score += 100
	} else {
		delaySeconds := int(t.EarliestExecuteAt.Sub(now).Seconds())
		minutesDelayed := delaySeconds / 60
		if minutesDelayed > 60 {
			minutesDelayed = 60
		}
		bonus := 100 - minutesDelayed
		if bonus < 0 {
			bonus = 0
		}
		score += bonus
	}

	score -= 10 * t.Attempts
	return score
}
