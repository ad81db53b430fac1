package alertengine

import (
	"time"

	"github.com/maumercado/task-queue-go/internal/execmetrics"
)

// ConditionType tags which rule condition a Rule evaluates.
type ConditionType string

const (
	ConditionFailureRate         ConditionType = "failure_rate"
	ConditionConsecutiveFailures ConditionType = "consecutive_failures"
	ConditionExecutionDuration   ConditionType = "execution_duration"
	ConditionHighRetryRate       ConditionType = "high_retry_rate"
)

// Condition is the tagged union of rule conditions. Only the fields
// relevant to Type are read by evaluate.
type Condition struct {
	Type ConditionType

	// FailureRate / HighRetryRate
	WindowMinutes int
	MinExecutions int

	// FailureRate
	ThresholdPercent float64

	// ConsecutiveFailures
	Threshold int

	// ExecutionDuration
	ThresholdSeconds int
	Violations       int

	// HighRetryRate
	ThresholdRatio float64
}

func FailureRateCondition(thresholdPercent float64, windowMinutes, minExecutions int) Condition {
	return Condition{
		Type:             ConditionFailureRate,
		ThresholdPercent: thresholdPercent,
		WindowMinutes:    windowMinutes,
		MinExecutions:    minExecutions,
	}
}

func ConsecutiveFailuresCondition(threshold int) Condition {
	return Condition{Type: ConditionConsecutiveFailures, Threshold: threshold}
}

func ExecutionDurationCondition(thresholdSeconds, violations, windowMinutes int) Condition {
	return Condition{
		Type:             ConditionExecutionDuration,
		ThresholdSeconds: thresholdSeconds,
		Violations:       violations,
		WindowMinutes:    windowMinutes,
	}
}

func HighRetryRateCondition(thresholdRatio float64, windowMinutes, minExecutions int) Condition {
	return Condition{
		Type:           ConditionHighRetryRate,
		ThresholdRatio: thresholdRatio,
		WindowMinutes:  windowMinutes,
		MinExecutions:  minExecutions,
	}
}

// evaluate reports whether the condition fires now against the given
// execution metrics engine, for the task type/name filters on the
// owning rule (empty = wildcard).
func (c Condition) evaluate(m *execmetrics.Engine, typeFilter, nameFilter string, now time.Time) bool {
	switch c.Type {
	case ConditionFailureRate:
		window := now.Add(-time.Duration(c.WindowMinutes) * time.Minute)
		recs := m.InWindow(typeFilter, nameFilter, window)
		if len(recs) < c.MinExecutions {
			return false
		}
		failed := 0
		for _, r := range recs {
			if !r.Success {
				failed++
			}
		}
		rate := float64(failed) / float64(len(recs)) * 100
		return rate >= c.ThresholdPercent

	case ConditionConsecutiveFailures:
		recs := m.LastN(typeFilter, nameFilter, c.Threshold)
		if len(recs) < c.Threshold {
			return false
		}
		for _, r := range recs {
			if r.Success {
				return false
			}
		}
		return true

	case ConditionExecutionDuration:
		window := now.Add(-time.Duration(c.WindowMinutes) * time.Minute)
		recs := m.InWindow(typeFilter, nameFilter, window)
		violations := 0
		thresholdMs := int64(c.ThresholdSeconds) * 1000
		for _, r := range recs {
			if r.DurationMs != nil && *r.DurationMs >= thresholdMs {
				violations++
			}
		}
		return violations >= c.Violations

	case ConditionHighRetryRate:
		window := now.Add(-time.Duration(c.WindowMinutes) * time.Minute)
		recs := m.InWindow(typeFilter, nameFilter, window)
		if len(recs) < c.MinExecutions {
			return false
		}
		totalRetries := 0
		for _, r := range recs {
			totalRetries += r.RetryCount
		}
		ratio := float64(totalRetries) / float64(len(recs))
		return ratio >= c.ThresholdRatio

	default:
		return false
	}
}
