package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetViper isolates each test from global viper state, since Load
// configures the package-level singleton.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func chdirTemp(t *testing.T) {
	t.Helper()
	originalDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(originalDir) })
}

func TestLoad_DefaultsWithNoConfigFile(t *testing.T) {
	resetViper(t)
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, 50, cfg.Server.RateLimitRPS)

	assert.Equal(t, "taskorch.db", cfg.Database.Path)

	assert.Equal(t, 10, cfg.Worker.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Worker.ShutdownTimeout)

	assert.Equal(t, 1*time.Second, cfg.Queue.TickInterval)
	assert.Equal(t, int64(100000), cfg.Queue.MaxQueueSize)
	assert.Equal(t, 3, cfg.Queue.RetryMaxAttempts)
	assert.Equal(t, 1*time.Second, cfg.Queue.RetryInitialBackoff)
	assert.Equal(t, 5*time.Minute, cfg.Queue.RetryMaxBackoff)
	assert.Equal(t, 2.0, cfg.Queue.RetryBackoffFactor)

	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, 10000, cfg.Metrics.MaxInMemory)
	assert.Equal(t, 1000, cfg.Metrics.RecentOnFlush)

	assert.Equal(t, 60*time.Second, cfg.Monitoring.AlertEvaluationInterval)
	assert.Equal(t, 300*time.Second, cfg.Monitoring.MetricsPersistenceInterval)
	assert.Equal(t, 24*time.Hour, cfg.Monitoring.CleanupInterval)
	assert.Equal(t, 30, cfg.Monitoring.DataRetentionDays)

	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	resetViper(t)
	chdirTemp(t)

	t.Setenv("TASKORCH_SERVER_PORT", "9090")
	t.Setenv("TASKORCH_WORKER_CONCURRENCY", "25")
	t.Setenv("TASKORCH_LOGLEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Worker.Concurrency)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_ConfigFileOverridesDefaults(t *testing.T) {
	resetViper(t)
	chdirTemp(t)

	contents := []byte("server:\n  port: 7070\ndatabase:\n  path: custom.db\n")
	require.NoError(t, os.WriteFile("config.yaml", contents, 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "custom.db", cfg.Database.Path)
}
