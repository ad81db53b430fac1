package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/maumercado/task-queue-go/internal/alertengine"
	"github.com/maumercado/task-queue-go/internal/execmetrics"
	"github.com/maumercado/task-queue-go/internal/logger"
	"github.com/maumercado/task-queue-go/internal/monitor"
	"github.com/maumercado/task-queue-go/internal/queue"
)

// AdminHandler serves the read-only admin and monitoring surface. It
// holds no business state of its own — every response is assembled
// from the coordinator, queue, and alert engine it wraps.
type AdminHandler struct {
	coordinator *monitor.Coordinator
	queue       *queue.Queue
	alerts      *alertengine.Engine
	metrics     *execmetrics.Engine
}

func NewAdminHandler(coordinator *monitor.Coordinator, q *queue.Queue, alertEngine *alertengine.Engine, metricsEngine *execmetrics.Engine) *AdminHandler {
	return &AdminHandler{
		coordinator: coordinator,
		queue:       q,
		alerts:      alertEngine,
		metrics:     metricsEngine,
	}
}

// HealthCheck handles GET /admin/health
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health, err := h.coordinator.Health(r.Context())
	if err != nil {
		logger.Error().Err(err).Msg("failed to compute health")
		h.respondError(w, http.StatusInternalServerError, "failed to compute health")
		return
	}

	status := http.StatusOK
	if health.Status == monitor.HealthCritical {
		status = http.StatusServiceUnavailable
	}

	h.respondJSON(w, status, health)
}

// Stats handles GET /admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	taskType := r.URL.Query().Get("task_type")
	windowMinutes := 60
	if raw := r.URL.Query().Get("window_minutes"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			windowMinutes = n
		}
	}

	resp := map[string]interface{}{
		"queue": h.queue.Stats(),
	}
	if taskType != "" {
		now := time.Now().UTC()
		resp["aggregated"] = h.metrics.Aggregate(taskType, now.Add(-time.Duration(windowMinutes)*time.Minute), now)
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// Alerts handles GET /admin/alerts
func (h *AdminHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  h.alerts.ListRules(),
		"active": h.alerts.ActiveAlerts(),
	})
}

// RecentMetrics handles GET /admin/metrics/recent
func (h *AdminHandler) RecentMetrics(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"records": h.metrics.Recent(limit),
	})
}

func (h *AdminHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *AdminHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}
