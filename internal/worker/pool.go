// Package worker implements a pool of lifecycle-managed goroutines
// with priority-ordered graceful shutdown.
package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/maumercado/task-queue-go/internal/logger"
	"github.com/maumercado/task-queue-go/internal/metrics"
	"github.com/maumercado/task-queue-go/internal/task"
)

var (
	ErrShuttingDown = errors.New("worker: pool is shutting down")
	ErrUnitNotFound = errors.New("worker: unit not found")
)

// Work is a resumable unit of execution. It must observe ctx
// cancellation (global shutdown or a per-unit cancel) and return
// promptly when asked to.
type Work func(ctx context.Context) error

type unit struct {
	id          uuid.UUID
	name        string
	description string
	priority    task.Priority
	cancel      context.CancelFunc
	done        chan struct{}
	startedAt   time.Time
}

// UnitInfo is the read-only view of a live unit returned by List/Get.
type UnitInfo struct {
	ID          uuid.UUID
	Name        string
	Description string
	Priority    task.Priority
	StartedAt   time.Time
}

// Pool spawns and tracks background execution units.
type Pool struct {
	globalCtx    context.Context
	globalCancel context.CancelFunc

	mu    sync.Mutex
	units map[uuid.UUID]*unit

	shuttingDown atomic.Bool
	wg           sync.WaitGroup
}

func NewPool() *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		globalCtx:    ctx,
		globalCancel: cancel,
		units:        make(map[uuid.UUID]*unit),
	}
}

// Spawn starts a new unit. It fails if the pool is already shutting
// down.
func (p *Pool) Spawn(name string, priority task.Priority, description string, work Work) (uuid.UUID, error) {
	if p.shuttingDown.Load() {
		return uuid.Nil, ErrShuttingDown
	}

	ctx, cancel := context.WithCancel(p.globalCtx)
	u := &unit{
		id:          uuid.New(),
		name:        name,
		description: description,
		priority:    priority,
		cancel:      cancel,
		done:        make(chan struct{}),
		startedAt:   time.Now().UTC(),
	}

	p.mu.Lock()
	// Re-check under the lock: shutdown may have begun between the
	// load above and acquiring it.
	if p.shuttingDown.Load() {
		p.mu.Unlock()
		cancel()
		return uuid.Nil, ErrShuttingDown
	}
	p.units[u.id] = u
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(u.done)
		defer p.remove(u.id)
		defer cancel()

		if err := work(ctx); err != nil {
			logger.WithComponent("worker_pool").Debug().
				Str("unit", u.name).Err(err).Msg("unit exited with error")
		}
	}()

	p.updateGauges()
	return u.id, nil
}

func (p *Pool) remove(id uuid.UUID) {
	p.mu.Lock()
	delete(p.units, id)
	p.mu.Unlock()
	p.updateGauges()
}

// Cancel sends a best-effort cancel signal to a live unit.
func (p *Pool) Cancel(id uuid.UUID) error {
	p.mu.Lock()
	u, ok := p.units[id]
	p.mu.Unlock()
	if !ok {
		return ErrUnitNotFound
	}
	u.cancel()
	return nil
}

func (p *Pool) Get(id uuid.UUID) (UnitInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.units[id]
	if !ok {
		return UnitInfo{}, false
	}
	return toInfo(u), true
}

func (p *Pool) List() []UnitInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]UnitInfo, 0, len(p.units))
	for _, u := range p.units {
		out = append(out, toInfo(u))
	}
	return out
}

func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.units)
}

func (p *Pool) IsShuttingDown() bool { return p.shuttingDown.Load() }

func toInfo(u *unit) UnitInfo {
	return UnitInfo{ID: u.id, Name: u.name, Description: u.description, Priority: u.priority, StartedAt: u.startedAt}
}

// priorityBudget computes the per-priority grace budget from a base
// timeout T: Critical=2T, High=T, Normal=T/2, Low=1s.
func priorityBudget(p task.Priority, base time.Duration) time.Duration {
	switch p {
	case task.PriorityCritical:
		return 2 * base
	case task.PriorityHigh:
		return base
	case task.PriorityNormal:
		return base / 2
	case task.PriorityLow:
		return 1 * time.Second
	default:
		return base
	}
}

var drainOrder = []task.Priority{task.PriorityCritical, task.PriorityHigh, task.PriorityNormal, task.PriorityLow}

// Shutdown begins the graceful drain. It is idempotent: a second call
// observes the flag already set and returns immediately.
func (p *Pool) Shutdown(baseTimeout time.Duration) {
	if !p.shuttingDown.CompareAndSwap(false, true) {
		return
	}

	log := logger.WithComponent("worker_pool")
	p.globalCancel()

	for _, prio := range drainOrder {
		group := p.unitsWithPriority(prio)
		if len(group) == 0 {
			continue
		}
		budget := priorityBudget(prio, baseTimeout)
		log.Info().Str("priority", prio.String()).Int("units", len(group)).Dur("budget", budget).Msg("draining priority group")
		p.drainGroup(group, budget)
	}

	// Final forced cleanup of any stragglers.
	p.mu.Lock()
	remaining := make([]*unit, 0, len(p.units))
	for _, u := range p.units {
		remaining = append(remaining, u)
	}
	p.mu.Unlock()
	for _, u := range remaining {
		u.cancel()
		p.remove(u.id)
	}
}

func (p *Pool) unitsWithPriority(prio task.Priority) []*unit {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*unit
	for _, u := range p.units {
		if u.priority == prio {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].startedAt.Before(out[j].startedAt) })
	return out
}

// drainGroup sends cancel to every unit in the group then waits up to
// budget for all of them to finish; stragglers are abandoned (Go
// cannot force-kill a goroutine, so "abort" means the pool stops
// waiting on and stops tracking it).
func (p *Pool) drainGroup(group []*unit, budget time.Duration) {
	for _, u := range group {
		u.cancel()
	}

	doneCh := make(chan uuid.UUID, len(group))
	for _, u := range group {
		go func(u *unit) {
			<-u.done
			doneCh <- u.id
		}(u)
	}

	deadline := time.NewTimer(budget)
	defer deadline.Stop()

	remaining := len(group)
	for remaining > 0 {
		select {
		case <-doneCh:
			remaining--
		case <-deadline.C:
			return // stragglers are cleaned up by the caller's final pass
		}
	}
}

func (p *Pool) updateGauges() {
	p.mu.Lock()
	counts := map[task.Priority]int{}
	for _, u := range p.units {
		counts[u.priority]++
	}
	p.mu.Unlock()
	for _, prio := range drainOrder {
		metrics.SetActiveWorkers(prio.String(), float64(counts[prio]))
	}
}
