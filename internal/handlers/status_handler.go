package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/interfaces"
)

// StatusHandler serves health and status endpoints
type StatusHandler struct {
	probe     interfaces.HealthProbe
	inspector interfaces.WorkerInspector
	queue     interfaces.QueueManager
	scheduler interfaces.SchedulerService
	queueName string
	logger    arbor.ILogger
	startedAt time.Time
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(probe interfaces.HealthProbe, inspector interfaces.WorkerInspector, queue interfaces.QueueManager, scheduler interfaces.SchedulerService, queueName string, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		probe:     probe,
		inspector: inspector,
		queue:     queue,
		scheduler: scheduler,
		queueName: queueName,
		logger:    logger,
		startedAt: time.Now().UTC(),
	}
}

// Health handles GET /health
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": common.GetVersion(),
		"uptime":  time.Since(h.startedAt).String(),
	})
}

// Status handles GET /api/status with worker, queue and scheduler detail
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]interface{}{
		"status":            "ok",
		"version":           common.GetFullVersion(),
		"uptime":            time.Since(h.startedAt).String(),
		"workers_available": h.probe.WorkersAvailable(ctx),
	}

	if h.inspector != nil {
		if stats, err := h.inspector.Stats(ctx); err == nil {
			status["workers"] = stats
		}
	}
	if h.queue != nil {
		if qs, err := h.queue.Stats(ctx, h.queueName); err == nil {
			status["queue"] = qs
		}
	}
	if h.scheduler != nil {
		status["scheduled_jobs"] = h.scheduler.Jobs()
	}

	WriteJSON(w, http.StatusOK, status)
}
