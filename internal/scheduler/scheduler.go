// Package scheduler turns generation requests into image sequences. It admits jobs
// against host resource pressure, runs them in FIFO order with bounded concurrency and
// exposes progress, cancellation and metrics.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"spinframe/internal/catalog"
	"spinframe/internal/events"
	"spinframe/internal/observability"
	"spinframe/internal/render"
	"spinframe/internal/resource"
	"spinframe/internal/sequence"
)

// ModelResolver looks up catalog models. catalog.Catalog satisfies it.
type ModelResolver interface {
	GetModel(ctx context.Context, id string) (*catalog.Model, error)
}

// ResourceGate provides admission snapshots and pre-job cleanup. *resource.Monitor satisfies it.
type ResourceGate interface {
	Snapshot(ctx context.Context) (resource.Snapshot, error)
	PreflightOptimize(ctx context.Context)
}

// Store persists frames and manifests. *sequence.Store satisfies it.
type Store interface {
	Exists(model, material string, frameCount int, formats []string) (bool, error)
	Write(model, material string, frame int, format string, data []byte) error
	WriteManifest(model, material string, m sequence.Manifest) error
}

// Config holds scheduler tuning.
type Config struct {
	MaxConcurrentJobs    int
	MaxRetainedJobs      int
	JobRetention         time.Duration
	MaxAttempts          int
	HousekeepingInterval time.Duration

	DefaultMaterials []string
	Defaults         Settings
	Limits           Limits

	Generator sequence.Generator
}

// Deps are the collaborators of the scheduler. Publisher, Metrics and Logger are optional.
type Deps struct {
	Catalog   ModelResolver
	Renderer  render.Renderer
	Encoders  render.Encoders
	Store     Store
	Resources ResourceGate
	Publisher events.Publisher
	Metrics   *observability.GenerationMetrics
	Logger    *slog.Logger
}

// Scheduler owns every job. All job state is guarded by mu; callers only ever
// receive snapshots.
type Scheduler struct {
	cfg       Config
	catalog   ModelResolver
	renderer  render.Renderer
	encoders  render.Encoders
	store     Store
	resources ResourceGate
	publisher events.Publisher
	metrics   *observability.GenerationMetrics
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.RWMutex
	jobs     map[string]*job
	order    []string
	queue    []*job
	counters Metrics

	// closed is set once Run has begun shutting down; Submit refuses new jobs from then on.
	closed bool

	wake chan struct{}
	done chan struct{}
}

// New creates a scheduler. Run must be called to start processing.
func New(cfg Config, deps Deps) (*Scheduler, error) {
	if deps.Catalog == nil || deps.Renderer == nil || deps.Store == nil || deps.Resources == nil {
		return nil, errors.New("scheduler requires a catalog, renderer, store and resource monitor")
	}
	if len(deps.Encoders) == 0 {
		return nil, errors.New("scheduler requires at least one encoder")
	}

	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 1
	}
	if cfg.MaxRetainedJobs <= 0 {
		cfg.MaxRetainedJobs = 100
	}
	if cfg.JobRetention <= 0 {
		cfg.JobRetention = time.Hour
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.HousekeepingInterval <= 0 {
		cfg.HousekeepingInterval = time.Minute
	}
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DefaultLimits()
	}
	if cfg.Defaults.FrameCount == 0 {
		cfg.Defaults = DefaultSettings()
	}
	if len(cfg.DefaultMaterials) == 0 {
		return nil, errors.New("scheduler requires a default material set")
	}
	if cfg.Generator.Name == "" {
		cfg.Generator = sequence.Generator{Name: "spinframe", Version: "dev"}
	}

	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		m, err := observability.NewGenerationMetrics(otel.Meter("spinframe/scheduler"))
		if err != nil {
			return nil, fmt.Errorf("create metrics: %w", err)
		}
		deps.Metrics = m
	}

	return &Scheduler{
		cfg:       cfg,
		catalog:   deps.Catalog,
		renderer:  deps.Renderer,
		encoders:  deps.Encoders,
		store:     deps.Store,
		resources: deps.Resources,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		tracer:    otel.Tracer("spinframe/scheduler"),
		logger:    deps.Logger,
		now:       time.Now,
		jobs:      make(map[string]*job),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Submit validates and admits a request and returns the new job id. It never waits
// for rendering. Refusals are returned as *AdmissionError.
func (s *Scheduler) Submit(ctx context.Context, req Request) (string, error) {
	normalized, aerr := s.normalize(req)
	if aerr != nil {
		return "", aerr
	}

	files := make(map[string]string, len(normalized.ModelIDs))
	for _, id := range normalized.ModelIDs {
		m, err := s.catalog.GetModel(ctx, id)
		if errors.Is(err, catalog.ErrModelNotFound) {
			return "", &AdmissionError{Reason: ReasonUnknownModel, Message: fmt.Sprintf("unknown model %q", id)}
		}
		if err != nil {
			return "", fmt.Errorf("resolve model %s: %w", id, err)
		}
		files[id] = m.File
	}

	snap, err := s.resources.Snapshot(ctx)
	if err != nil {
		s.logger.Warn("resource snapshot unavailable, admitting job", "error", err)
	} else if snap.Critical() {
		s.logger.Warn("submission rejected under resource pressure",
			"memory_pressure", snap.MemoryPressure,
			"disk_pressure", snap.DiskPressure,
		)
		return "", &AdmissionError{
			Reason:         ReasonResourcePressure,
			Message:        "host resources are under critical pressure",
			MemoryPressure: snap.MemoryPressure,
			DiskPressure:   snap.DiskPressure,
		}
	}

	j := &job{
		id:          uuid.NewString(),
		plan:        normalized,
		files:       files,
		status:      StatusPending,
		submittedAt: s.now(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrShuttingDown
	}
	s.jobs[j.id] = j
	s.order = append(s.order, j.id)
	s.queue = append(s.queue, j)
	s.counters.TotalJobs++
	snapshot := j.snapshot(s.now())
	s.mu.Unlock()

	s.logger.Info("job submitted",
		"job_id", j.id,
		"models", len(normalized.ModelIDs),
		"materials", len(normalized.Materials),
		"frames", normalized.Settings.FrameCount,
	)
	s.publish(ctx, events.JobSubmitted, snapshot, Pair{})
	s.triggerWake()
	return j.id, nil
}

// Status returns a snapshot of a job or ErrJobNotFound.
func (s *Scheduler) Status(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j.snapshot(s.now()), nil
}

// ListJobs returns snapshots of every retained job in submission order.
func (s *Scheduler) ListJobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([]Job, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id].snapshot(now))
	}
	return out
}

// Metrics returns a consistent snapshot of the scheduler counters.
func (s *Scheduler) Metrics() Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.counters
	m.QueueSize = len(s.queue)
	return m
}

// Cancel requests a job to stop. Pending jobs stop immediately; processing jobs stop
// at the next frame boundary. It returns false for unknown or finished jobs.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok || j.status.Terminal() {
		s.mu.Unlock()
		return false
	}

	if j.status == StatusProcessing {
		j.cancelRequested = true
		if j.cancel != nil {
			j.cancel()
		}
		s.mu.Unlock()
		s.logger.Info("cancellation requested", "job_id", id)
		return true
	}

	for i, queued := range s.queue {
		if queued == j {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
	s.finishLocked(j, StatusStopped, "")
	snapshot := j.snapshot(s.now())
	s.mu.Unlock()

	s.logger.Info("pending job stopped", "job_id", id)
	s.publish(context.Background(), events.JobStopped, snapshot, Pair{})
	s.metrics.JobFinished(context.Background(), string(StatusStopped))
	return true
}

// Run dispatches pending jobs until ctx is cancelled. On shutdown it waits for
// processing jobs to observe the cancellation and then closes Done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting", "max_concurrent_jobs", s.cfg.MaxConcurrentJobs)

	var wg sync.WaitGroup
	ticker := time.NewTicker(s.cfg.HousekeepingInterval)
	defer ticker.Stop()

	s.dispatch(ctx, &wg)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("context cancelled, waiting for processing jobs to stop")
			s.closeQueue()
			wg.Wait()
			close(s.done)
			return ctx.Err()

		case <-s.wake:
			s.dispatch(ctx, &wg)

		case <-ticker.C:
			s.mu.Lock()
			evicted := s.evictLocked(s.now())
			s.mu.Unlock()
			if evicted > 0 {
				s.logger.Debug("evicted finished jobs", "count", evicted)
			}
		}
	}
}

// closeQueue refuses further submissions and stops every job that never started.
func (s *Scheduler) closeQueue() {
	s.mu.Lock()
	s.closed = true
	queued := s.queue
	s.queue = nil
	stopped := make([]Job, 0, len(queued))
	for _, j := range queued {
		s.finishLocked(j, StatusStopped, "scheduler shut down before the job started")
		stopped = append(stopped, j.snapshot(s.now()))
	}
	s.mu.Unlock()

	for _, snap := range stopped {
		s.logger.Info("pending job stopped on shutdown", "job_id", snap.ID)
		s.metrics.JobFinished(context.Background(), string(StatusStopped))
		s.publish(context.Background(), events.JobStopped, snap, Pair{})
	}
}

// ModelInUse reports whether a pending or processing job references model.
func (s *Scheduler) ModelInUse(model string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, j := range s.jobs {
		if !j.status.Terminal() && j.references(model) {
			return true
		}
	}
	return false
}

// Done returns a channel that is closed when Run has fully stopped.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) triggerWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dispatch promotes pending jobs in FIFO order while slots are free.
func (s *Scheduler) dispatch(ctx context.Context, wg *sync.WaitGroup) {
	for {
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		if s.counters.ActiveJobs >= s.cfg.MaxConcurrentJobs || len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		j := s.queue[0]
		s.queue = s.queue[1:]

		jobCtx, cancel := context.WithCancel(ctx)
		j.cancel = cancel
		j.status = StatusProcessing
		j.startedAt = s.now()
		s.counters.ActiveJobs++
		s.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer cancel()
			defer s.triggerWake()
			s.runJob(ctx, jobCtx, j)
		}()
	}
}

// finishLocked moves j to a terminal status and updates the counters. Caller holds mu.
func (s *Scheduler) finishLocked(j *job, status Status, errMsg string) {
	if j.status == StatusProcessing {
		s.counters.ActiveJobs--
	}
	j.status = status
	j.err = errMsg
	j.finishedAt = s.now()
	j.hasCurrent = false
	j.cancel = nil

	switch status {
	case StatusCompleted:
		j.progress = 100
		s.counters.CompletedJobs++
	case StatusError:
		s.counters.FailedJobs++
	case StatusStopped:
		s.counters.StoppedJobs++
	}

	s.evictLocked(j.finishedAt)
}

// evictLocked drops finished jobs older than the retention window, then the oldest
// finished jobs while the registry is over capacity. Counters are not touched.
func (s *Scheduler) evictLocked(now time.Time) int {
	var finished []*job
	evicted := 0
	for _, id := range s.order {
		j := s.jobs[id]
		if !j.status.Terminal() {
			continue
		}
		if now.Sub(j.finishedAt) > s.cfg.JobRetention {
			delete(s.jobs, id)
			evicted++
			continue
		}
		finished = append(finished, j)
	}

	if over := len(s.jobs) - s.cfg.MaxRetainedJobs; over > 0 {
		sort.SliceStable(finished, func(a, b int) bool {
			return finished[a].finishedAt.Before(finished[b].finishedAt)
		})
		for i := 0; i < over && i < len(finished); i++ {
			delete(s.jobs, finished[i].id)
			evicted++
		}
	}

	if evicted > 0 {
		order := s.order[:0]
		for _, id := range s.order {
			if _, ok := s.jobs[id]; ok {
				order = append(order, id)
			}
		}
		s.order = order
	}
	return evicted
}

func (s *Scheduler) publish(ctx context.Context, t events.Type, j Job, p Pair) {
	e := events.Event{
		Type:           t,
		JobID:          j.ID,
		Status:         string(j.Status),
		Progress:       j.Progress,
		Model:          p.Model,
		Material:       p.Material,
		CompletedUnits: j.CompletedUnits,
		TotalUnits:     j.TotalUnits,
		Error:          j.Error,
		At:             s.now(),
	}
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish job event", "job_id", j.ID, "event", t, "error", err)
	}
}
