// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"spinframe/internal/controller/handlers"
	"spinframe/internal/controller/middleware"
)

// Deps are the components served by the HTTP API.
type Deps struct {
	Scheduler handlers.Scheduler
	Inventory handlers.Inventory
	Resources handlers.ResourceMonitor
	Catalog   handlers.Pinger

	// Metrics serves the Prometheus scrape endpoint when set.
	Metrics http.Handler

	// Submissions per second per client, 0 = unlimited
	RateLimit      float64
	RateLimitBurst int

	Logger *slog.Logger
}

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server.
func New(addr string, deps Deps) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      NewHandler(deps),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// NewHandler builds the routed API handler.
func NewHandler(deps Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	h := handlers.New(deps.Scheduler, deps.Inventory, deps.Resources, deps.Catalog, log)
	rateMW := middleware.NewRateLimiter(deps.RateLimit, deps.RateLimitBurst).Middleware()

	mux := http.NewServeMux()

	// Generation jobs
	mux.Handle("POST /jobs", rateMW(http.HandlerFunc(h.SubmitJob)))
	mux.HandleFunc("GET /jobs", h.ListJobs)
	mux.HandleFunc("GET /jobs/{id}", h.GetJob)
	mux.HandleFunc("POST /jobs/{id}/cancel", h.CancelJob)

	// Catalog and host
	mux.HandleFunc("GET /models", h.ListModels)
	mux.HandleFunc("DELETE /models/{id}", h.DeleteModel)
	mux.HandleFunc("GET /resources", h.GetResources)

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	return middleware.RequestID(middleware.Logging(log)(mux))
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
