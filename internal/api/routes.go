// Package api exposes a minimal, read-only HTTP surface over the
// orchestrator: health, queue/metrics stats, active alerts, and the
// Prometheus exposition endpoint. It never mutates task or queue
// state — submission and cancellation belong to the process embedding
// this module, not to an external caller.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maumercado/task-queue-go/internal/alertengine"
	"github.com/maumercado/task-queue-go/internal/api/handlers"
	apiMiddleware "github.com/maumercado/task-queue-go/internal/api/middleware"
	"github.com/maumercado/task-queue-go/internal/config"
	"github.com/maumercado/task-queue-go/internal/execmetrics"
	"github.com/maumercado/task-queue-go/internal/monitor"
	"github.com/maumercado/task-queue-go/internal/queue"
)

// Server is the admin/status HTTP surface.
type Server struct {
	router       *chi.Mux
	config       *config.Config
	adminHandler *handlers.AdminHandler
}

func NewServer(cfg *config.Config, coordinator *monitor.Coordinator, q *queue.Queue, alertEngine *alertengine.Engine, metricsEngine *execmetrics.Engine) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		config:       cfg,
		adminHandler: handlers.NewAdminHandler(coordinator, q, alertEngine, metricsEngine),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(apiMiddleware.RequestMetrics())

	if s.config.Server.RateLimitRPS > 0 {
		s.router.Use(apiMiddleware.RateLimit(s.config.Server.RateLimitRPS))
	}
}

func (s *Server) setupRoutes() {
	s.router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))

		r.Get("/health", s.adminHandler.HealthCheck)
		r.Get("/stats", s.adminHandler.Stats)
		r.Get("/alerts", s.adminHandler.Alerts)
		r.Get("/metrics/recent", s.adminHandler.RecentMetrics)
	})

	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
}

// Router returns the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
