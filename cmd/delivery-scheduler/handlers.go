package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/AnuragDani/juice-subscriptions/internal/logger"
)

// RunLister lists recorded sweep runs
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]SweepRun, error)
}

type healthReporter interface {
	Health() map[string]interface{}
}

// Handler handles HTTP requests for the scheduler
type Handler struct {
	scheduler *Scheduler
	runs      RunLister
	logger    *logger.Logger
}

// NewHandler creates a new handler instance
func NewHandler(scheduler *Scheduler, runs RunLister, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		scheduler: scheduler,
		runs:      runs,
		logger:    log,
	}
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := h.scheduler.Status()

	response := map[string]interface{}{
		"service":           "delivery-scheduler",
		"status":            "healthy",
		"scheduler_running": status.Running,
	}

	if hr, ok := h.runs.(healthReporter); ok {
		dbHealth := hr.Health()
		response["database"] = dbHealth
		if dbHealth["status"] != "healthy" {
			response["status"] = "degraded"
		}
	}

	respondJSON(w, http.StatusOK, response)
}

// GetSchedulerStatus handles GET /scheduler/status
func (h *Handler) GetSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.scheduler.Status())
}

// TriggerScheduler handles POST /scheduler/trigger
func (h *Handler) TriggerScheduler(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Manual sweep requested")

	// A manual sweep runs to completion even if the client disconnects
	run, err := h.scheduler.RunSweep(context.WithoutCancel(r.Context()), TriggerManual)
	if errors.Is(err, ErrSweepInProgress) {
		respondError(w, http.StatusConflict, err.Error(), "SWEEP_IN_PROGRESS")
		return
	}
	if err != nil {
		h.logger.Error("Error during manual sweep", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to run sweep", "TRIGGER_FAILED")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  run.Errors == 0,
		"message":  "Sweep completed",
		"run":      run,
		"duration": run.Duration().String(),
	})
}

// ListRuns handles GET /scheduler/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			respondError(w, http.StatusBadRequest, "limit must be between 1 and 100", "INVALID_LIMIT")
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("Error listing sweep runs", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to list sweep runs", "LIST_RUNS_FAILED")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"total": len(runs),
	})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message, code string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
