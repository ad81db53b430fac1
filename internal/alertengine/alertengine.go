// Package alertengine evaluates user-defined rules against the
// metrics engine over trailing windows, deduplicated by a per-rule
// cooldown.
package alertengine

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maumercado/task-queue-go/internal/execmetrics"
)

type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

var ErrRuleNotFound = errors.New("alertengine: rule not found")
var ErrAlertNotFound = errors.New("alertengine: alert not found")

// Rule is an alert rule: a condition bound to filters, severity,
// destination channels, and a cooldown.
type Rule struct {
	ID               uuid.UUID
	Name             string
	Description      string
	TaskTypeFilter   string
	TaskNameFilter   string
	Condition        Condition
	Severity         Severity
	Enabled          bool
	CooldownMinutes  int
	Channels         []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Alert is a fired rule instance.
type Alert struct {
	ID               uuid.UUID
	RuleID           uuid.UUID
	RuleName         string
	TaskType         string
	TaskName         string
	Severity         Severity
	Message          string
	Context          map[string]any
	TriggeredAt      time.Time
	UpdatedAt        time.Time
	Acknowledged     bool
	AcknowledgedAt   *time.Time
	AcknowledgedBy   string
	Resolved         bool
	ResolvedAt       *time.Time
	ResolutionReason string
}

// Notifier dispatches a fired alert to one named destination channel.
// The log channel type is the only delivery mechanism implemented in
// this module; anything else is an external collaborator.
type Notifier interface {
	Notify(alert *Alert, channelName string)
}

// Engine owns alert rules and cooldown state in memory; persistence
// of new rules/alerts is the caller's responsibility, invoked from the
// monitoring coordinator's tick.
type Engine struct {
	metrics *execmetrics.Engine
	notify  Notifier

	rulesMu sync.RWMutex
	rules   map[uuid.UUID]*Rule

	cooldownMu sync.RWMutex
	lastFired  map[uuid.UUID]time.Time

	alertsMu sync.RWMutex
	alerts   map[uuid.UUID]*Alert
}

func NewEngine(metrics *execmetrics.Engine, notify Notifier) *Engine {
	return &Engine{
		metrics:   metrics,
		notify:    notify,
		rules:     make(map[uuid.UUID]*Rule),
		lastFired: make(map[uuid.UUID]time.Time),
		alerts:    make(map[uuid.UUID]*Alert),
	}
}

// AddRule registers a rule (used both for user-defined rules and for
// rehydration from storage on startup, and for installing the
// built-in default rules).
func (e *Engine) AddRule(r *Rule) {
	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()
	e.rules[r.ID] = r
}

func (e *Engine) RemoveRule(id uuid.UUID) error {
	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()
	if _, ok := e.rules[id]; !ok {
		return ErrRuleNotFound
	}
	delete(e.rules, id)
	return nil
}

func (e *Engine) ListRules() []*Rule {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	out := make([]*Rule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r)
	}
	return out
}

func (e *Engine) RuleCount() int {
	e.rulesMu.RLock()
	defer e.rulesMu.RUnlock()
	return len(e.rules)
}

func (e *Engine) ToggleRule(id uuid.UUID, enabled bool) error {
	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()
	r, ok := e.rules[id]
	if !ok {
		return ErrRuleNotFound
	}
	r.Enabled = enabled
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// EvaluateRules evaluates every enabled rule once and returns only the
// alerts that newly fired this pass (rules still in cooldown are
// skipped).
func (e *Engine) EvaluateRules() []*Alert {
	now := time.Now().UTC()

	e.rulesMu.RLock()
	rules := make([]*Rule, 0, len(e.rules))
	for _, r := range e.rules {
		rules = append(rules, r)
	}
	e.rulesMu.RUnlock()

	var fired []*Alert
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		if !e.cooldownElapsed(r.ID, r.CooldownMinutes, now) {
			continue
		}
		if !r.Condition.evaluate(e.metrics, r.TaskTypeFilter, r.TaskNameFilter, now) {
			continue
		}

		alert := &Alert{
			ID:          uuid.New(),
			RuleID:      r.ID,
			RuleName:    r.Name,
			TaskType:    r.TaskTypeFilter,
			TaskName:    r.TaskNameFilter,
			Severity:    r.Severity,
			Message:     conditionMessage(r),
			Context:     map[string]any{"condition": r.Condition.Type},
			TriggeredAt: now,
			UpdatedAt:   now,
		}

		e.recordFired(r.ID, now)
		e.storeAlert(alert)
		fired = append(fired, alert)

		for _, ch := range r.Channels {
			if e.notify != nil {
				e.notify.Notify(alert, ch)
			}
		}
	}
	return fired
}

func conditionMessage(r *Rule) string {
	switch r.Condition.Type {
	case ConditionFailureRate:
		return r.Name + ": failure rate threshold exceeded"
	case ConditionConsecutiveFailures:
		return r.Name + ": consecutive failure threshold exceeded"
	case ConditionExecutionDuration:
		return r.Name + ": execution duration threshold exceeded"
	case ConditionHighRetryRate:
		return r.Name + ": retry rate threshold exceeded"
	default:
		return r.Name + ": condition triggered"
	}
}

func (e *Engine) cooldownElapsed(ruleID uuid.UUID, cooldownMinutes int, now time.Time) bool {
	e.cooldownMu.RLock()
	last, ok := e.lastFired[ruleID]
	e.cooldownMu.RUnlock()
	if !ok {
		return true
	}
	return now.Sub(last) >= time.Duration(cooldownMinutes)*time.Minute
}

func (e *Engine) recordFired(ruleID uuid.UUID, at time.Time) {
	e.cooldownMu.Lock()
	e.lastFired[ruleID] = at
	e.cooldownMu.Unlock()
}

func (e *Engine) storeAlert(a *Alert) {
	e.alertsMu.Lock()
	e.alerts[a.ID] = a
	e.alertsMu.Unlock()
}

// ActiveAlerts returns unresolved alerts.
func (e *Engine) ActiveAlerts() []*Alert {
	e.alertsMu.RLock()
	defer e.alertsMu.RUnlock()
	var out []*Alert
	for _, a := range e.alerts {
		if !a.Resolved {
			out = append(out, a)
		}
	}
	return out
}

func (e *Engine) Acknowledge(id uuid.UUID, by string) error {
	e.alertsMu.Lock()
	defer e.alertsMu.Unlock()
	a, ok := e.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}
	now := time.Now().UTC()
	a.Acknowledged = true
	a.AcknowledgedAt = &now
	a.AcknowledgedBy = by
	a.UpdatedAt = now
	return nil
}

func (e *Engine) Resolve(id uuid.UUID, reason string) error {
	e.alertsMu.Lock()
	defer e.alertsMu.Unlock()
	a, ok := e.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}
	now := time.Now().UTC()
	a.Resolved = true
	a.ResolvedAt = &now
	a.ResolutionReason = reason
	a.UpdatedAt = now
	return nil
}
