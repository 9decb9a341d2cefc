// Package observability exports pipeline lifecycle metrics through
// OpenTelemetry: per-outcome job counters and a queue-depth gauge.
// Register [MetricsExtension] with the scheduler to record them.
package observability
