package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process-wide configuration for the orchestrator,
// assembled from defaults, an optional YAML file, and environment
// variables prefixed TASKORCH_.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Worker     WorkerConfig
	Queue      QueueConfig
	Metrics    MetricsConfig
	Monitoring MonitoringConfig
	LogLevel   string
}

// ServerConfig controls the read-only admin/status HTTP surface.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimitRPS int // 0 disables rate limiting on the admin surface
}

// DatabaseConfig points at the embedded relational store.
type DatabaseConfig struct {
	Path string
}

// WorkerConfig sizes the worker pool and its shutdown budget.
type WorkerConfig struct {
	Concurrency     int
	ShutdownTimeout time.Duration // base T for the priority-tiered drain
}

// QueueConfig tunes the task queue's main loop and capacity. The Retry*
// fields are loaded with defaults but are not applied to submitted
// tasks; each task carries its own retry policy.
type QueueConfig struct {
	TickInterval        time.Duration
	MaxQueueSize        int64
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryBackoffFactor  float64
}

// MetricsConfig controls both the in-memory execution ring and
// the Prometheus exposition surface.
type MetricsConfig struct {
	Enabled        bool
	Path           string
	MaxInMemory    int
	RecentOnFlush  int
}

// MonitoringConfig drives the coordinator's background ticks.
type MonitoringConfig struct {
	AlertEvaluationInterval   time.Duration
	MetricsPersistenceInterval time.Duration
	CleanupInterval           time.Duration
	DataRetentionDays         int
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/taskorch")

	setDefaults()

	viper.SetEnvPrefix("TASKORCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8081)
	viper.SetDefault("server.readtimeout", 10*time.Second)
	viper.SetDefault("server.writetimeout", 10*time.Second)
	viper.SetDefault("server.idletimeout", 120*time.Second)
	viper.SetDefault("server.ratelimitrps", 50)

	viper.SetDefault("database.path", "taskorch.db")

	viper.SetDefault("worker.concurrency", 10)
	viper.SetDefault("worker.shutdowntimeout", 30*time.Second)

	viper.SetDefault("queue.tickinterval", 1*time.Second)
	viper.SetDefault("queue.maxqueuesize", 100000)
	viper.SetDefault("queue.retrymaxattempts", 3)
	viper.SetDefault("queue.retryinitialbackoff", 1*time.Second)
	viper.SetDefault("queue.retrymaxbackoff", 5*time.Minute)
	viper.SetDefault("queue.retrybackofffactor", 2.0)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("metrics.maxinmemory", 10000)
	viper.SetDefault("metrics.recentonflush", 1000)

	viper.SetDefault("monitoring.alertevaluationinterval", 60*time.Second)
	viper.SetDefault("monitoring.metricspersistenceinterval", 300*time.Second)
	viper.SetDefault("monitoring.cleanupinterval", 24*time.Hour)
	viper.SetDefault("monitoring.dataretentiondays", 30)

	viper.SetDefault("loglevel", "info")
}
