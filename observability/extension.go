package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/quantfold/conductor/ext"
	"github.com/quantfold/conductor/id"
	"github.com/quantfold/conductor/job"
)

const meterName = "github.com/quantfold/conductor/observability"

// Compile-time interface checks.
var (
	_ ext.Extension    = (*MetricsExtension)(nil)
	_ ext.JobScheduled = (*MetricsExtension)(nil)
	_ ext.JobSucceeded = (*MetricsExtension)(nil)
	_ ext.JobFailed    = (*MetricsExtension)(nil)
	_ ext.JobRetrying  = (*MetricsExtension)(nil)
	_ ext.JobCancelled = (*MetricsExtension)(nil)
	_ ext.IdleOptimize = (*MetricsExtension)(nil)
	_ ext.CronFired    = (*MetricsExtension)(nil)
)

// QueueDepthFunc reports how many jobs are currently queued.
// scheduler.Scheduler's QueuedJobs length is the usual source.
type QueueDepthFunc func() int64

// MetricsExtension records scheduler lifecycle metrics. Register it as
// an extension to track schedule rates, per-outcome completion counts,
// retry counts, cron fires, idle-optimize triggers, and queue depth.
type MetricsExtension struct {
	scheduled   metric.Int64Counter
	succeeded   metric.Int64Counter
	failed      metric.Int64Counter
	retried     metric.Int64Counter
	cancelled   metric.Int64Counter
	cronFired   metric.Int64Counter
	idleFired   metric.Int64Counter
	jobDuration metric.Float64Histogram
}

// NewMetricsExtension creates a MetricsExtension on the global meter
// provider. queueDepth may be nil, in which case no depth gauge is
// registered.
func NewMetricsExtension(queueDepth QueueDepthFunc) (*MetricsExtension, error) {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName), queueDepth)
}

// NewMetricsExtensionWithMeter creates a MetricsExtension on an
// explicit meter.
func NewMetricsExtensionWithMeter(meter metric.Meter, queueDepth QueueDepthFunc) (*MetricsExtension, error) {
	m := &MetricsExtension{}

	var err error
	if m.scheduled, err = meter.Int64Counter("conductor.job.scheduled",
		metric.WithDescription("Jobs accepted into the queue"),
		metric.WithUnit("{job}")); err != nil {
		return nil, fmt.Errorf("observability: create counter: %w", err)
	}
	if m.succeeded, err = meter.Int64Counter("conductor.job.succeeded",
		metric.WithDescription("Jobs resolved successfully"),
		metric.WithUnit("{job}")); err != nil {
		return nil, fmt.Errorf("observability: create counter: %w", err)
	}
	if m.failed, err = meter.Int64Counter("conductor.job.failed",
		metric.WithDescription("Jobs failed with retry budget exhausted"),
		metric.WithUnit("{job}")); err != nil {
		return nil, fmt.Errorf("observability: create counter: %w", err)
	}
	if m.retried, err = meter.Int64Counter("conductor.job.retried",
		metric.WithDescription("Job attempts re-queued with backoff"),
		metric.WithUnit("{attempt}")); err != nil {
		return nil, fmt.Errorf("observability: create counter: %w", err)
	}
	if m.cancelled, err = meter.Int64Counter("conductor.job.cancelled",
		metric.WithDescription("Jobs deliberately stopped"),
		metric.WithUnit("{job}")); err != nil {
		return nil, fmt.Errorf("observability: create counter: %w", err)
	}
	if m.cronFired, err = meter.Int64Counter("conductor.cron.fired",
		metric.WithDescription("Cron entries that enqueued a job"),
		metric.WithUnit("{fire}")); err != nil {
		return nil, fmt.Errorf("observability: create counter: %w", err)
	}
	if m.idleFired, err = meter.Int64Counter("conductor.optimize.idle_triggered",
		metric.WithDescription("Optimize jobs scheduled by idle detection"),
		metric.WithUnit("{job}")); err != nil {
		return nil, fmt.Errorf("observability: create counter: %w", err)
	}
	if m.jobDuration, err = meter.Float64Histogram("conductor.job.duration",
		metric.WithDescription("Successful job duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("observability: create histogram: %w", err)
	}

	if queueDepth != nil {
		gauge, err := meter.Int64ObservableGauge("conductor.queue.depth",
			metric.WithDescription("Jobs currently queued"),
			metric.WithUnit("{job}"))
		if err != nil {
			return nil, fmt.Errorf("observability: create gauge: %w", err)
		}
		if _, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			o.ObserveInt64(gauge, queueDepth())
			return nil
		}, gauge); err != nil {
			return nil, fmt.Errorf("observability: register gauge callback: %w", err)
		}
	}

	return m, nil
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func typeAttr(j *job.Job) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("job.type", string(j.Type)))
}

// ── Job lifecycle hooks ─────────────────────────────

func (m *MetricsExtension) OnJobScheduled(ctx context.Context, j *job.Job) error {
	m.scheduled.Add(ctx, 1, typeAttr(j))
	return nil
}

func (m *MetricsExtension) OnJobSucceeded(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	m.succeeded.Add(ctx, 1, typeAttr(j))
	m.jobDuration.Record(ctx, elapsed.Seconds(), typeAttr(j))
	return nil
}

func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.failed.Add(ctx, 1, typeAttr(j))
	return nil
}

func (m *MetricsExtension) OnJobRetrying(ctx context.Context, j *job.Job, _ int, _ time.Time) error {
	m.retried.Add(ctx, 1, typeAttr(j))
	return nil
}

func (m *MetricsExtension) OnJobCancelled(ctx context.Context, j *job.Job, _ string) error {
	m.cancelled.Add(ctx, 1, typeAttr(j))
	return nil
}

func (m *MetricsExtension) OnIdleOptimize(ctx context.Context, j *job.Job) error {
	m.idleFired.Add(ctx, 1, typeAttr(j))
	return nil
}

func (m *MetricsExtension) OnCronFired(ctx context.Context, entryName string, _ id.JobID) error {
	m.cronFired.Add(ctx, 1, metric.WithAttributes(attribute.String("cron.entry", entryName)))
	return nil
}
