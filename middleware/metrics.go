package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/quantfold/conductor/job"
)

// meterName is the instrumentation scope name for conductor metrics.
const meterName = "github.com/quantfold/conductor"

// Metrics returns middleware that records per-attempt execution metrics
// using the global OTel MeterProvider. With none configured the OTel API
// hands back noop instruments and this middleware is a pass-through.
//
// Instruments:
//   - conductor.job.duration (Float64Histogram): attempt time in seconds,
//     attributes: job_type, status ("ok" or "error")
//   - conductor.job.attempts (Int64Counter): total attempts,
//     attributes: job_type, status ("ok" or "error")
func Metrics() Middleware {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Instruments are created once; OTel guarantees noop fallbacks on error.
	duration, dErr := meter.Float64Histogram(
		"conductor.job.duration",
		metric.WithDescription("Duration of a job attempt in seconds"),
		metric.WithUnit("s"),
	)
	_ = dErr

	attempts, aErr := meter.Int64Counter(
		"conductor.job.attempts",
		metric.WithDescription("Total number of job attempts"),
		metric.WithUnit("{attempt}"),
	)
	_ = aErr

	return func(ctx context.Context, j *job.Job, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("job_type", string(j.Type)),
			attribute.String("status", status),
		)

		duration.Record(ctx, elapsed, attrs)
		attempts.Add(ctx, 1, attrs)

		return err
	}
}
