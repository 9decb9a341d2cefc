// Package ext defines the extension system for conductor. Extensions are
// notified of scheduler lifecycle events (job scheduled, started, retried,
// finished, …) and react to them: archiving, streaming, metrics.
//
// Each lifecycle hook is a separate interface so extensions opt in only to
// the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/quantfold/conductor/id"
	"github.com/quantfold/conductor/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobScheduled is called after a job enters the record store as queued.
type JobScheduled interface {
	OnJobScheduled(ctx context.Context, j *job.Job) error
}

// JobStarted is called when the scheduler begins executing a job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobSucceeded is called after a job's handler resolves normally.
type JobSucceeded interface {
	OnJobSucceeded(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobRetrying is called when an attempt fails but retry budget remains.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) error
}

// JobFailed is called when a job fails terminally (budget exhausted).
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobCancelled is called when a job reaches the cancelled state, whether it
// was still queued or its running handler observed the signal.
type JobCancelled interface {
	OnJobCancelled(ctx context.Context, j *job.Job, reason string) error
}

// ──────────────────────────────────────────────────
// Scheduler lifecycle hooks
// ──────────────────────────────────────────────────

// IdleOptimize is called when the idle timer auto-schedules an optimize pass.
type IdleOptimize interface {
	OnIdleOptimize(ctx context.Context, j *job.Job) error
}

// CronFired is called when a cron entry fires and enqueues a job.
type CronFired interface {
	OnCronFired(ctx context.Context, entryName string, jobID id.JobID) error
}

// Shutdown is called during graceful shutdown, after the in-flight job has
// settled and timers are cleared.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
