package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maumercado/task-queue-go/internal/alertengine"
	"github.com/maumercado/task-queue-go/internal/api"
	"github.com/maumercado/task-queue-go/internal/config"
	"github.com/maumercado/task-queue-go/internal/execmetrics"
	"github.com/maumercado/task-queue-go/internal/logger"
	"github.com/maumercado/task-queue-go/internal/monitor"
	"github.com/maumercado/task-queue-go/internal/queue"
	"github.com/maumercado/task-queue-go/internal/schedule"
	"github.com/maumercado/task-queue-go/internal/storage"
	"github.com/maumercado/task-queue-go/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")
	log := logger.Get()
	log.Info().Msg("starting orchestrator")

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer store.Close()

	metricsEngine := execmetrics.NewEngine(cfg.Metrics.MaxInMemory)
	pool := worker.NewPool()

	q := queue.New(store, pool, metricsEngine, queue.Config{
		MaxWorkers:   cfg.Worker.Concurrency,
		MaxQueueSize: cfg.Queue.MaxQueueSize,
		TickInterval: cfg.Queue.TickInterval,
	})
	registerExecutors(q)

	alertEngine := alertengine.NewEngine(metricsEngine, monitor.NewStoreNotifier(store))
	ingest := schedule.NewIngest()

	coordinator := monitor.New(store, q, metricsEngine, alertEngine, ingest, monitor.Config{
		AlertEvaluationInterval:    cfg.Monitoring.AlertEvaluationInterval,
		MetricsPersistenceInterval: cfg.Monitoring.MetricsPersistenceInterval,
		CleanupInterval:            cfg.Monitoring.CleanupInterval,
		DataRetentionDays:          cfg.Monitoring.DataRetentionDays,
		RecentOnFlush:              cfg.Metrics.RecentOnFlush,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start queue")
	}
	if err := coordinator.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start monitoring coordinator")
	}

	server := api.NewServer(cfg, coordinator, q, alertEngine, metricsEngine)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("admin http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("admin http server stopped unexpectedly")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down orchestrator")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("admin http server shutdown error")
	}

	coordinator.Stop()
	q.Stop()
	pool.Shutdown(cfg.Worker.ShutdownTimeout)

	log.Info().Msg("orchestrator stopped")
}

// registerExecutors binds the sample task types available out of the
// box. Real deployments register their own via queue.RegisterExecutor
// before calling Start.
func registerExecutors(q *queue.Queue) {
	q.RegisterExecutor("echo", echoExecutor)
	q.RegisterExecutor("sleep", sleepExecutor)
	q.RegisterExecutor("compute", computeExecutor)
	q.RegisterExecutor("fail", failExecutor)
}

func echoExecutor(ctx context.Context, parameters map[string]any) error {
	logger.WithComponent("executor").Info().Interface("parameters", parameters).Msg("echo")
	return nil
}

func sleepExecutor(ctx context.Context, parameters map[string]any) error {
	duration := time.Second
	if d, ok := parameters["duration_ms"].(float64); ok {
		duration = time.Duration(d) * time.Millisecond
	}
	select {
	case <-time.After(duration):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func computeExecutor(ctx context.Context, parameters map[string]any) error {
	iterations := 1_000_000
	if i, ok := parameters["iterations"].(float64); ok {
		iterations = int(i)
	}
	sum := 0
	for i := 0; i < iterations; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			sum += i
		}
	}
	_ = sum
	return nil
}

func failExecutor(ctx context.Context, parameters map[string]any) error {
	if rand.Float64() < 0.1 {
		return nil
	}
	return fmt.Errorf("intentional failure for testing")
}
