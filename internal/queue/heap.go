package queue

import (
	"container/heap"
	"time"

	"github.com/google/uuid"

	"github.com/maumercado/task-queue-go/internal/task"
)

// readyEntry is one heap element: a task id plus the priority score it
// had when pushed. The score is not recomputed while queued — a tick
// that finds a task newly ready pushes it fresh with a current score.
type readyEntry struct {
	taskID uuid.UUID
	score  int
	index  int
}

// readyHeap is a max-heap (highest score pops first) of ready task
// ids, per the queue's priority-score ordering. Ties are broken by
// container/heap's internal order, which callers must not rely on.
type readyHeap []*readyEntry

func (h readyHeap) Len() int { return len(h) }

func (h readyHeap) Less(i, j int) bool { return h[i].score > h[j].score }

func (h readyHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *readyHeap) Push(x any) {
	e := x.(*readyEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

func pushReady(h *readyHeap, t *task.Task, now time.Time) {
	heap.Push(h, &readyEntry{taskID: t.ID, score: t.PriorityScore(now)})
}

func popReady(h *readyHeap) uuid.UUID {
	e := heap.Pop(h).(*readyEntry)
	return e.taskID
}
