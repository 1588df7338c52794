package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"spinframe/internal/catalog"
	"spinframe/internal/resource"
	"spinframe/internal/scheduler"
)

// Mock scheduler
type mockScheduler struct {
	submitID  string
	submitErr error
	jobs      map[string]scheduler.Job
	order     []string
	metrics   scheduler.Metrics
	cancelOK  bool

	// Spies (to verify arguments passed by handlers)
	capturedRequest  *scheduler.Request
	capturedCancelID string
}

func (m *mockScheduler) Submit(ctx context.Context, req scheduler.Request) (string, error) {
	m.capturedRequest = &req
	if m.submitErr != nil {
		return "", m.submitErr
	}
	return m.submitID, nil
}

func (m *mockScheduler) Status(id string) (scheduler.Job, error) {
	j, ok := m.jobs[id]
	if !ok {
		return scheduler.Job{}, fmt.Errorf("%w: %s", scheduler.ErrJobNotFound, id)
	}
	return j, nil
}

func (m *mockScheduler) ListJobs() []scheduler.Job {
	out := make([]scheduler.Job, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.jobs[id])
	}
	return out
}

func (m *mockScheduler) Metrics() scheduler.Metrics { return m.metrics }

func (m *mockScheduler) Cancel(id string) bool {
	m.capturedCancelID = id
	return m.cancelOK
}

func (m *mockScheduler) addJob(j scheduler.Job) {
	if m.jobs == nil {
		m.jobs = map[string]scheduler.Job{}
	}
	m.jobs[j.ID] = j
	m.order = append(m.order, j.ID)
}

// Mock inventory
type mockInventory struct {
	models    []catalog.ModelStatus
	listErr   error
	removed   []string
	deleteErr error

	capturedDeleteID string
}

func (m *mockInventory) ListModels(ctx context.Context) ([]catalog.ModelStatus, error) {
	return m.models, m.listErr
}

func (m *mockInventory) DeleteModel(ctx context.Context, id string) ([]string, error) {
	m.capturedDeleteID = id
	return m.removed, m.deleteErr
}

// Mock resource monitor
type mockResources struct {
	snap resource.Snapshot
	err  error
}

func (m *mockResources) Snapshot(ctx context.Context) (resource.Snapshot, error) {
	return m.snap, m.err
}

// Mock catalog ping
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) Ping(ctx context.Context) error { return m.pingErr }

type testDeps struct {
	scheduler *mockScheduler
	inventory *mockInventory
	resources *mockResources
	catalog   *mockPinger
}

func newTestDeps() *testDeps {
	return &testDeps{
		scheduler: &mockScheduler{},
		inventory: &mockInventory{},
		resources: &mockResources{},
		catalog:   &mockPinger{},
	}
}

func (d *testDeps) handlers() *Handlers {
	return New(d.scheduler, d.inventory, d.resources, d.catalog, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// router mirrors the routes registered by the controller server.
func (d *testDeps) router() http.Handler {
	h := d.handlers()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /jobs", h.SubmitJob)
	mux.HandleFunc("GET /jobs", h.ListJobs)
	mux.HandleFunc("GET /jobs/{id}", h.GetJob)
	mux.HandleFunc("POST /jobs/{id}/cancel", h.CancelJob)
	mux.HandleFunc("GET /models", h.ListModels)
	mux.HandleFunc("DELETE /models/{id}", h.DeleteModel)
	mux.HandleFunc("GET /resources", h.GetResources)
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	return mux
}
