package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/quantfold/conductor/job"
)

// tracerName is the instrumentation scope name for conductor tracing.
const tracerName = "github.com/quantfold/conductor"

// Tracing returns middleware that wraps each job attempt in an
// OpenTelemetry span. With no TracerProvider configured globally the noop
// tracer is used and this middleware is a pass-through.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "conductor.job.execute",
			trace.WithAttributes(
				attribute.String("conductor.job.id", j.ID.String()),
				attribute.String("conductor.job.type", string(j.Type)),
				attribute.Int("conductor.job.attempt", j.Attempts),
				attribute.Int("conductor.job.max_retries", j.MaxRetries),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
