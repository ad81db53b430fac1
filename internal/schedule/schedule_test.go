package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maumercado/task-queue-go/internal/task"
)

func validConfig(id string) Config {
	return Config{
		ID:             id,
		Name:           "Nightly Report",
		CronExpression: "0 0 2 * * *",
		TaskType:       "report",
		Priority:       task.PriorityNormal,
		Enabled:        true,
		Timezone:       "UTC",
		MaxRetries:     3,
		TimeoutSeconds: 300,
	}
}

func TestConfig_Validate_RejectsEmptyID(t *testing.T) {
	c := validConfig("")
	assert.ErrorIs(t, c.Validate(true), ErrEmptyID)
}

func TestConfig_Validate_RejectsEmptyName(t *testing.T) {
	c := validConfig("x")
	c.Name = ""
	assert.ErrorIs(t, c.Validate(true), ErrEmptyName)
}

func TestConfig_Validate_RejectsBadCron(t *testing.T) {
	c := validConfig("x")
	c.CronExpression = "not a cron expression"
	assert.Error(t, c.Validate(true))
}

func TestConfig_Validate_RejectsBadTimezone(t *testing.T) {
	c := validConfig("x")
	c.Timezone = "Nowhere/Imaginary"
	assert.Error(t, c.Validate(true))
}

func TestConfig_Validate_StrictRejectsZeroTimeout(t *testing.T) {
	c := validConfig("x")
	c.TimeoutSeconds = 0
	assert.ErrorIs(t, c.Validate(true), ErrInvalidTimeout)
	assert.NoError(t, c.Validate(false), "non-strict mode does not enforce a positive timeout")
}

func TestConfig_Validate_StrictRejectsTooManyRetries(t *testing.T) {
	c := validConfig("x")
	c.MaxRetries = 11
	assert.ErrorIs(t, c.Validate(true), ErrTooManyRetries)
	assert.NoError(t, c.Validate(false))
}

func TestValidateSet_RejectsDuplicateIDs(t *testing.T) {
	configs := []Config{validConfig("daily"), validConfig("daily")}
	assert.ErrorIs(t, ValidateSet(configs, true), ErrDuplicateID)
}

func TestIngest_Load_RejectsInvalidSet(t *testing.T) {
	ig := NewIngest()
	bad := validConfig("x")
	bad.CronExpression = "garbage"
	err := ig.Load([]Config{bad}, time.Now())
	require.Error(t, err)
	assert.Empty(t, ig.List(), "a failed load must not replace the prior set")
}

func TestIngest_Due_FiresOnlyAfterNextRun(t *testing.T) {
	ig := NewIngest()
	c := validConfig("every-minute")
	c.CronExpression = "0 * * * * *" // top of every minute

	base := time.Date(2026, 1, 1, 12, 0, 30, 0, time.UTC)
	require.NoError(t, ig.Load([]Config{c}, base))

	assert.Empty(t, ig.Due(base.Add(10*time.Second)), "not yet due before the next minute boundary")

	due := ig.Due(base.Add(40 * time.Second))
	require.Len(t, due, 1)
	assert.Equal(t, "every-minute", due[0].ID)

	assert.Empty(t, ig.Due(base.Add(45*time.Second)), "already fired; next_run has advanced past this instant")
}

func TestIngest_Due_SkipsDisabled(t *testing.T) {
	ig := NewIngest()
	c := validConfig("off")
	c.Enabled = false
	c.CronExpression = "0 * * * * *"

	base := time.Date(2026, 1, 1, 12, 0, 30, 0, time.UTC)
	require.NoError(t, ig.Load([]Config{c}, base))

	assert.Empty(t, ig.Due(base.Add(time.Hour)))
}

func TestIngest_GetAndList(t *testing.T) {
	ig := NewIngest()
	c := validConfig("lookup-me")
	require.NoError(t, ig.Load([]Config{c}, time.Now()))

	got, ok := ig.Get("lookup-me")
	require.True(t, ok)
	assert.Equal(t, "Nightly Report", got.Name)

	_, ok = ig.Get("missing")
	assert.False(t, ok)

	assert.Len(t, ig.List(), 1)
}
