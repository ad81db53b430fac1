// Package schedule parses and evaluates cron-driven recurrences that
// produce tasks for the queue to run.
package schedule

import (
	"errors"
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/maumercado/task-queue-go/internal/task"
)

var cronParser = cronlib.NewParser(
	cronlib.Second | cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

var (
	ErrEmptyID        = errors.New("schedule: id must not be empty")
	ErrEmptyName      = errors.New("schedule: name must not be empty")
	ErrDuplicateID    = errors.New("schedule: duplicate id")
	ErrInvalidTimeout = errors.New("schedule: timeout_seconds must be > 0")
	ErrTooManyRetries = errors.New("schedule: max_retries exceeds the limit of 10")
)

const maxStrictMaxRetries = 10

// Config is a single cron-driven recurrence, validated before it can
// be ingested.
type Config struct {
	ID             string
	Name           string
	CronExpression string
	TaskType       string
	Priority       task.Priority
	Enabled        bool
	Description    string
	Timezone       string
	Parameters     map[string]any
	MaxRetries     int
	TimeoutSeconds int
}

// Validate checks the fields required of every schedule regardless of
// mode, then — under strict mode — the stricter bounds on timeout and
// retry count.
func (c Config) Validate(strict bool) error {
	if c.ID == "" {
		return ErrEmptyID
	}
	if c.Name == "" {
		return ErrEmptyName
	}
	if _, err := cronParser.Parse(c.CronExpression); err != nil {
		return fmt.Errorf("schedule %q: invalid cron expression %q: %w", c.ID, c.CronExpression, err)
	}
	tz := c.Timezone
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("schedule %q: unresolvable timezone %q: %w", c.ID, c.Timezone, err)
	}
	if strict {
		if c.TimeoutSeconds <= 0 {
			return fmt.Errorf("schedule %q: %w", c.ID, ErrInvalidTimeout)
		}
		if c.MaxRetries > maxStrictMaxRetries {
			return fmt.Errorf("schedule %q: %w", c.ID, ErrTooManyRetries)
		}
	}
	return nil
}

// ValidateSet validates every config and additionally rejects
// duplicate ids within the collection.
func ValidateSet(configs []Config, strict bool) error {
	seen := make(map[string]struct{}, len(configs))
	for _, c := range configs {
		if _, ok := seen[c.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, c.ID)
		}
		seen[c.ID] = struct{}{}
		if err := c.Validate(strict); err != nil {
			return err
		}
	}
	return nil
}

type entry struct {
	config   Config
	schedule cronlib.Schedule
	nextRun  time.Time
}

// Ingest tracks a set of compiled schedules and reports which are due
// on demand; it holds no goroutine or ticker of its own, leaving the
// tick cadence to its caller (the monitoring coordinator).
type Ingest struct {
	entries map[string]*entry
}

func NewIngest() *Ingest {
	return &Ingest{entries: make(map[string]*entry)}
}

// Load replaces the tracked set with configs, computing each one's
// first next-run time from now. Load returns the first validation
// error encountered and leaves the prior set unchanged.
func (ig *Ingest) Load(configs []Config, now time.Time) error {
	if err := ValidateSet(configs, true); err != nil {
		return err
	}

	entries := make(map[string]*entry, len(configs))
	for _, c := range configs {
		sched, loc, err := compile(c)
		if err != nil {
			return err
		}
		entries[c.ID] = &entry{config: c, schedule: sched, nextRun: sched.Next(now.In(loc))}
	}
	ig.entries = entries
	return nil
}

func compile(c Config) (cronlib.Schedule, *time.Location, error) {
	tz := c.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, nil, err
	}
	sched, err := cronParser.Parse(c.CronExpression)
	if err != nil {
		return nil, nil, err
	}
	return sched, loc, nil
}

// Due returns the configs whose next-run time has elapsed as of now,
// and advances each fired entry's next-run time.
func (ig *Ingest) Due(now time.Time) []Config {
	var due []Config
	for _, e := range ig.entries {
		if !e.config.Enabled {
			continue
		}
		if e.nextRun.After(now) {
			continue
		}
		due = append(due, e.config)
		e.nextRun = e.schedule.Next(now)
	}
	return due
}

// Get returns one schedule's config by id.
func (ig *Ingest) Get(id string) (Config, bool) {
	e, ok := ig.entries[id]
	if !ok {
		return Config{}, false
	}
	return e.config, true
}

// List returns every tracked schedule's config.
func (ig *Ingest) List() []Config {
	out := make([]Config, 0, len(ig.entries))
	for _, e := range ig.entries {
		out = append(out, e.config)
	}
	return out
}
