package scheduler

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"spinframe/internal/catalog"
	"spinframe/internal/events"
	"spinframe/internal/render"
	"spinframe/internal/resource"
	"spinframe/internal/sequence"
)

type fakeCatalog struct {
	models map[string]catalog.Model
	err    error
}

func newFakeCatalog(ids ...string) *fakeCatalog {
	c := &fakeCatalog{models: make(map[string]catalog.Model)}
	for _, id := range ids {
		c.models[id] = catalog.Model{ID: id, Name: id, File: id + ".glb"}
	}
	return c
}

func (c *fakeCatalog) GetModel(ctx context.Context, id string) (*catalog.Model, error) {
	if c.err != nil {
		return nil, c.err
	}
	m, ok := c.models[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrModelNotFound, id)
	}
	return &m, nil
}

type fakeResources struct {
	mu          sync.Mutex
	snap        resource.Snapshot
	err         error
	preflights  int
	onPreflight func(ctx context.Context)
}

func (r *fakeResources) Snapshot(ctx context.Context) (resource.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap, r.err
}

func (r *fakeResources) PreflightOptimize(ctx context.Context) {
	r.mu.Lock()
	r.preflights++
	hook := r.onPreflight
	r.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
}

func (r *fakeResources) setPreflightHook(fn func(ctx context.Context)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPreflight = fn
}

func (r *fakeResources) set(memory, disk resource.Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap = resource.Snapshot{MemoryPressure: memory, DiskPressure: disk}
}

func (r *fakeResources) preflightCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.preflights
}

// fakeRenderer returns a 1x1 image. hook, if set, runs first and may fail or block.
type fakeRenderer struct {
	calls atomic.Int32
	hook  func(ctx context.Context, req render.RenderRequest) error
}

func (r *fakeRenderer) Render(ctx context.Context, req render.RenderRequest) (image.Image, error) {
	r.calls.Add(1)
	if r.hook != nil {
		if err := r.hook(ctx, req); err != nil {
			return nil, err
		}
	}
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}

type fakeEncoder struct {
	format string
}

func (e fakeEncoder) Encode(ctx context.Context, img image.Image, quality int) ([]byte, error) {
	return []byte(fmt.Sprintf("%s:%d", e.format, quality)), nil
}

func fakeEncoders(formats ...string) render.Encoders {
	encs := make(render.Encoders, len(formats))
	for _, f := range formats {
		encs[f] = fakeEncoder{format: f}
	}
	return encs
}

// hookStore wraps a real store and calls afterWrite after every successful frame write.
type hookStore struct {
	*sequence.Store
	afterWrite func(model, material string, frame int, format string) error
}

func (h *hookStore) Write(model, material string, frame int, format string, data []byte) error {
	if err := h.Store.Write(model, material, frame, format, data); err != nil {
		return err
	}
	if h.afterWrite != nil {
		return h.afterWrite(model, material, frame, format)
	}
	return nil
}

func frames(n int) *int { return &n }

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types(jobID string) []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Type
	for _, e := range p.events {
		if e.JobID == jobID {
			out = append(out, e.Type)
		}
	}
	return out
}

type harness struct {
	sched     *Scheduler
	store     *hookStore
	renderer  *fakeRenderer
	catalog   *fakeCatalog
	resources *fakeResources
	publisher *recordingPublisher
	cancel    context.CancelFunc
}

type harnessOption func(cfg *Config, deps *Deps)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	seqStore, err := sequence.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	h := &harness{
		store:     &hookStore{Store: seqStore},
		renderer:  &fakeRenderer{},
		catalog:   newFakeCatalog("ring-01", "ring-02"),
		resources: &fakeResources{},
		publisher: &recordingPublisher{},
	}
	h.resources.set(resource.LevelNormal, resource.LevelNormal)

	cfg := Config{
		MaxConcurrentJobs: 1,
		MaxAttempts:       3,
		DefaultMaterials:  []string{"platinum", "rose-gold"},
		Defaults: Settings{
			FrameCount: 4,
			Size:       render.Size{Width: 64, Height: 64},
			Formats:    []string{"jpg"},
			Quality:    map[string]int{"jpg": 90, "webp": 85},
		},
		Generator: sequence.Generator{Name: "spinframe", Version: "test"},
	}
	deps := Deps{
		Catalog:   h.catalog,
		Renderer:  h.renderer,
		Encoders:  fakeEncoders("jpg", "webp", "png"),
		Store:     h.store,
		Resources: h.resources,
		Publisher: h.publisher,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}

	h.sched, err = New(cfg, deps)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return h
}

// start runs the dispatcher until the test ends.
func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.sched.Run(ctx)
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.sched.Done():
		case <-time.After(5 * time.Second):
			t.Error("scheduler did not stop")
		}
	})
}

func waitForStatus(t *testing.T, s *Scheduler, id string, want Status) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		job, err := s.Status(id)
		if err != nil {
			t.Fatalf("Status(%s) failed: %v", id, err)
		}
		if job.Status == want {
			return job
		}
		if job.Status.Terminal() || time.Now().After(deadline) {
			t.Fatalf("job %s: expected status %s, got %s (error %q)", id, want, job.Status, job.Error)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func checkInvariant(t *testing.T, m Metrics) {
	t.Helper()
	if m.ActiveJobs+m.QueueSize+m.CompletedJobs+m.FailedJobs > m.TotalJobs {
		t.Errorf("metrics invariant violated: %+v", m)
	}
}
