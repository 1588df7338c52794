package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GenerationMetrics holds the instruments recorded by the job scheduler.
type GenerationMetrics struct {
	unitsRendered metric.Int64Counter
	unitsRetried  metric.Int64Counter
	pairsSkipped  metric.Int64Counter
	jobsFinished  metric.Int64Counter
	unitDuration  metric.Float64Histogram
}

// NewGenerationMetrics creates the scheduler instruments on meter.
func NewGenerationMetrics(meter metric.Meter) (*GenerationMetrics, error) {
	m := &GenerationMetrics{}
	var err error

	if m.unitsRendered, err = meter.Int64Counter("spinframe.units.rendered",
		metric.WithDescription("Frames rendered and encoded in every requested format")); err != nil {
		return nil, fmt.Errorf("create units.rendered counter: %w", err)
	}
	if m.unitsRetried, err = meter.Int64Counter("spinframe.units.retried",
		metric.WithDescription("Render or encode attempts retried after a transient failure")); err != nil {
		return nil, fmt.Errorf("create units.retried counter: %w", err)
	}
	if m.pairsSkipped, err = meter.Int64Counter("spinframe.pairs.skipped",
		metric.WithDescription("Model/material pairs skipped because a complete sequence exists")); err != nil {
		return nil, fmt.Errorf("create pairs.skipped counter: %w", err)
	}
	if m.jobsFinished, err = meter.Int64Counter("spinframe.jobs.finished",
		metric.WithDescription("Jobs that reached a terminal status")); err != nil {
		return nil, fmt.Errorf("create jobs.finished counter: %w", err)
	}
	if m.unitDuration, err = meter.Float64Histogram("spinframe.unit.duration",
		metric.WithDescription("Time to render and encode one frame"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create unit.duration histogram: %w", err)
	}
	return m, nil
}

func (m *GenerationMetrics) UnitRendered(ctx context.Context, model string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.unitsRendered.Add(ctx, 1, attrs)
	m.unitDuration.Record(ctx, d.Seconds(), attrs)
}

func (m *GenerationMetrics) UnitRetried(ctx context.Context) {
	m.unitsRetried.Add(ctx, 1)
}

func (m *GenerationMetrics) PairSkipped(ctx context.Context) {
	m.pairsSkipped.Add(ctx, 1)
}

func (m *GenerationMetrics) JobFinished(ctx context.Context, status string) {
	m.jobsFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// GaugeSources supplies the values of the observable gauges. Nil functions are skipped.
type GaugeSources struct {
	// Jobs returns the number of processing and pending jobs.
	Jobs func() (active, queued int64)
	// Resources returns the last memory usage percent and free disk bytes; ok is false
	// when no snapshot has been taken yet.
	Resources func() (memoryPercent float64, diskFree int64, ok bool)
}

// RegisterGauges registers observable gauges backed by src.
func RegisterGauges(meter metric.Meter, src GaugeSources) error {
	active, err := meter.Int64ObservableGauge("spinframe.jobs.active",
		metric.WithDescription("Jobs currently processing"))
	if err != nil {
		return fmt.Errorf("create jobs.active gauge: %w", err)
	}
	queued, err := meter.Int64ObservableGauge("spinframe.jobs.queued",
		metric.WithDescription("Jobs waiting for a processing slot"))
	if err != nil {
		return fmt.Errorf("create jobs.queued gauge: %w", err)
	}
	memory, err := meter.Float64ObservableGauge("spinframe.resource.memory_percent",
		metric.WithDescription("Host memory in use"), metric.WithUnit("%"))
	if err != nil {
		return fmt.Errorf("create resource.memory_percent gauge: %w", err)
	}
	disk, err := meter.Int64ObservableGauge("spinframe.resource.disk_free_bytes",
		metric.WithDescription("Free space on the sequences filesystem"), metric.WithUnit("By"))
	if err != nil {
		return fmt.Errorf("create resource.disk_free_bytes gauge: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		if src.Jobs != nil {
			a, q := src.Jobs()
			o.ObserveInt64(active, a)
			o.ObserveInt64(queued, q)
		}
		if src.Resources != nil {
			if mem, free, ok := src.Resources(); ok {
				o.ObserveFloat64(memory, mem)
				o.ObserveInt64(disk, free)
			}
		}
		return nil
	}, active, queued, memory, disk)
	if err != nil {
		return fmt.Errorf("register gauge callback: %w", err)
	}
	return nil
}
