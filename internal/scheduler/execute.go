package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"spinframe/internal/events"
	"spinframe/internal/logger"
	"spinframe/internal/render"
	"spinframe/internal/sequence"
)

// runJob processes every pair of j. runCtx is handed to the primitives so a frame that
// has started always finishes; jobCtx is only checked between frames.
func (s *Scheduler) runJob(runCtx, jobCtx context.Context, j *job) {
	ctx := logger.WithJobID(runCtx, j.id)
	ctx, span := s.tracer.Start(ctx, "generation.job",
		trace.WithAttributes(
			attribute.String("job.id", j.id),
			attribute.Int("job.models", len(j.plan.ModelIDs)),
			attribute.Int("job.materials", len(j.plan.Materials)),
			attribute.Int("job.frame_count", j.plan.Settings.FrameCount),
		),
	)
	defer span.End()
	log := logger.FromContext(ctx, s.logger)

	s.resources.PreflightOptimize(ctx)

	s.mu.RLock()
	started := j.snapshot(s.now())
	s.mu.RUnlock()
	log.Info("job started")
	s.publish(ctx, events.JobStarted, started, Pair{})

	settings := j.plan.Settings
	var pending []Pair
	for _, p := range j.pairs() {
		complete, err := s.store.Exists(p.Model, p.Material, settings.FrameCount, settings.Formats)
		if err != nil {
			s.fail(ctx, span, j, fmt.Errorf("check %s: %w", sequence.DirName(p.Model, p.Material), err))
			return
		}
		if complete {
			s.skip(ctx, j, p, false)
			continue
		}
		pending = append(pending, p)
	}

	s.mu.Lock()
	j.totalUnits = len(pending) * settings.FrameCount
	s.mu.Unlock()

	for _, p := range pending {
		if jobCtx.Err() != nil {
			s.stop(ctx, j)
			return
		}

		// Another job may have completed the pair while this one was waiting.
		complete, err := s.store.Exists(p.Model, p.Material, settings.FrameCount, settings.Formats)
		if err != nil {
			s.fail(ctx, span, j, fmt.Errorf("check %s: %w", sequence.DirName(p.Model, p.Material), err))
			return
		}
		if complete {
			s.skip(ctx, j, p, true)
			continue
		}

		if err := s.processPair(ctx, jobCtx, j, p); err != nil {
			if errors.Is(err, errStopped) {
				s.stop(ctx, j)
				return
			}
			s.fail(ctx, span, j, err)
			return
		}
	}

	// A cancel accepted while the job was processing always ends in stopped, even when
	// no frame boundary was crossed afterwards.
	s.mu.Lock()
	if j.cancelRequested {
		s.mu.Unlock()
		s.stop(ctx, j)
		return
	}
	s.finishLocked(j, StatusCompleted, "")
	done := j.snapshot(s.now())
	s.mu.Unlock()

	log.Info("job completed", "units", done.CompletedUnits, "skipped_pairs", len(done.SkippedPairs))
	s.metrics.JobFinished(ctx, string(StatusCompleted))
	s.publish(ctx, events.JobCompleted, done, Pair{})
}

// skip records a pair whose sequence is already complete. late is true when the pair's
// units had already been counted in the job total.
func (s *Scheduler) skip(ctx context.Context, j *job, p Pair, late bool) {
	s.mu.Lock()
	j.skipped = append(j.skipped, p)
	if late {
		j.totalUnits -= j.plan.Settings.FrameCount
		j.updateProgress()
	}
	s.counters.SkippedPairs++
	s.mu.Unlock()

	logger.FromContext(ctx, s.logger).Info("sequence exists, skipping", "model", p.Model, "material", p.Material)
	s.metrics.PairSkipped(ctx)
}

func (s *Scheduler) stop(ctx context.Context, j *job) {
	s.mu.Lock()
	s.finishLocked(j, StatusStopped, "")
	snap := j.snapshot(s.now())
	s.mu.Unlock()

	logger.FromContext(ctx, s.logger).Info("job stopped", "completed_units", snap.CompletedUnits, "total_units", snap.TotalUnits)
	s.metrics.JobFinished(ctx, string(StatusStopped))
	s.publish(ctx, events.JobStopped, snap, Pair{})
}

func (s *Scheduler) fail(ctx context.Context, span trace.Span, j *job, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	s.mu.Lock()
	s.finishLocked(j, StatusError, err.Error())
	snap := j.snapshot(s.now())
	s.mu.Unlock()

	logger.FromContext(ctx, s.logger).Error("job failed", "error", err)
	s.metrics.JobFinished(ctx, string(StatusError))
	s.publish(ctx, events.JobFailed, snap, Pair{})
}

// processPair renders every frame of one sequence and writes its manifest.
func (s *Scheduler) processPair(ctx, jobCtx context.Context, j *job, p Pair) error {
	ctx, span := s.tracer.Start(ctx, "generation.pair",
		trace.WithAttributes(
			attribute.String("model", p.Model),
			attribute.String("material", p.Material),
		),
	)
	defer span.End()

	settings := j.plan.Settings
	for frame := 0; frame < settings.FrameCount; frame++ {
		if jobCtx.Err() != nil {
			return errStopped
		}

		s.mu.Lock()
		j.currentModel = p.Model
		j.currentMaterial = p.Material
		j.currentFrame = frame
		j.hasCurrent = true
		s.mu.Unlock()

		start := s.now()
		if err := s.renderUnit(ctx, j, p, frame); err != nil {
			if jobCtx.Err() != nil && errors.Is(err, context.Canceled) {
				return errStopped
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		elapsed := s.now().Sub(start)

		s.mu.Lock()
		j.completedUnits++
		j.unitTime += elapsed
		j.updateProgress()
		s.counters.UnitsRendered++
		s.mu.Unlock()
		s.metrics.UnitRendered(ctx, p.Model, elapsed)
	}

	// The directory may have been removed underneath the job, e.g. by a model deletion.
	complete, err := s.store.Exists(p.Model, p.Material, settings.FrameCount, settings.Formats)
	if err != nil {
		return fmt.Errorf("verify %s: %w", sequence.DirName(p.Model, p.Material), err)
	}
	if !complete {
		return fmt.Errorf("%w: %s", ErrIncompleteSequence, sequence.DirName(p.Model, p.Material))
	}

	manifest := sequence.Manifest{
		ModelID:           p.Model,
		MaterialID:        p.Material,
		FrameCount:        settings.FrameCount,
		RotationIncrement: sequence.RotationIncrement(settings.FrameCount),
		Formats:           append([]string(nil), settings.Formats...),
		ImageSize:         sequence.ImageSize{Width: settings.Size.Width, Height: settings.Size.Height},
		Quality:           settings.Quality,
		GeneratedAt:       s.now().UTC(),
		Generator:         s.cfg.Generator,
		JobID:             j.id,
	}
	if err := s.store.WriteManifest(p.Model, p.Material, manifest); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	s.mu.RLock()
	snap := j.snapshot(s.now())
	s.mu.RUnlock()
	logger.FromContext(ctx, s.logger).Info("sequence generated",
		"model", p.Model,
		"material", p.Material,
		"progress", snap.Progress,
	)
	s.publish(ctx, events.JobProgress, snap, p)
	return nil
}

// renderUnit renders one frame and writes it in every format, retrying transient
// primitive failures up to MaxAttempts in total.
func (s *Scheduler) renderUnit(ctx context.Context, j *job, p Pair, frame int) error {
	settings := j.plan.Settings
	req := render.RenderRequest{
		Model:      p.Model,
		ModelFile:  j.files[p.Model],
		Material:   p.Material,
		Frame:      frame,
		FrameCount: settings.FrameCount,
		Size:       settings.Size,
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		err := s.renderOnce(ctx, req, settings)
		if err == nil {
			return nil
		}
		lastErr = err
		if !render.IsTransient(err) || ctx.Err() != nil {
			return fmt.Errorf("frame %d of %s: %w", frame, sequence.DirName(p.Model, p.Material), err)
		}
		if attempt < s.cfg.MaxAttempts {
			logger.FromContext(ctx, s.logger).Warn("retrying frame",
				"model", p.Model,
				"material", p.Material,
				"frame", frame,
				"attempt", attempt,
				"error", err,
			)
			s.mu.Lock()
			s.counters.UnitsRetried++
			s.mu.Unlock()
			s.metrics.UnitRetried(ctx)
		}
	}
	return fmt.Errorf("frame %d of %s failed after %d attempts: %w",
		frame, sequence.DirName(p.Model, p.Material), s.cfg.MaxAttempts, lastErr)
}

func (s *Scheduler) renderOnce(ctx context.Context, req render.RenderRequest, settings Settings) error {
	started := time.Now()
	img, err := s.renderer.Render(ctx, req)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	for _, format := range settings.Formats {
		enc, ok := s.encoders.Lookup(format)
		if !ok {
			return fmt.Errorf("no encoder for format %s", format)
		}
		data, err := enc.Encode(ctx, img, settings.Quality[format])
		if err != nil {
			return fmt.Errorf("encode %s: %w", format, err)
		}
		if err := s.store.Write(req.Model, req.Material, req.Frame, format, data); err != nil {
			return fmt.Errorf("store %s: %w", format, err)
		}
	}

	logger.FromContext(ctx, s.logger).Debug("frame written",
		"model", req.Model,
		"material", req.Material,
		"frame", req.Frame,
		"duration", time.Since(started),
	)
	return nil
}
