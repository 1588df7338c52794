// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"spinframe/internal/catalog"
	"spinframe/internal/logger"
	"spinframe/internal/resource"
	"spinframe/internal/scheduler"
	"spinframe/pkg/api"
)

// Scheduler is the job registry the API drives.
type Scheduler interface {
	Submit(ctx context.Context, req scheduler.Request) (string, error)
	Status(id string) (scheduler.Job, error)
	ListJobs() []scheduler.Job
	Metrics() scheduler.Metrics
	Cancel(id string) bool
}

// Inventory lists models with their sequences and runs model removal.
type Inventory interface {
	ListModels(ctx context.Context) ([]catalog.ModelStatus, error)
	DeleteModel(ctx context.Context, id string) ([]string, error)
}

// ResourceMonitor reports host resource pressure.
type ResourceMonitor interface {
	Snapshot(ctx context.Context) (resource.Snapshot, error)
}

// Pinger is checked by the readiness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	scheduler Scheduler
	inventory Inventory
	resources ResourceMonitor
	catalog   Pinger
	logger    *slog.Logger
}

// New creates a new Handlers instance.
func New(s Scheduler, inv Inventory, res ResourceMonitor, cat Pinger, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{
		scheduler: s,
		inventory: inv,
		resources: res,
		catalog:   cat,
		logger:    log,
	}
}

func (h *Handlers) log(r *http.Request) *slog.Logger {
	return logger.FromContext(r.Context(), h.logger)
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}
