// Package archive is a conductor extension that persists terminal job
// snapshots to a store.ArchiveStore. The scheduler's own record table is
// process-local; the archive is what survives a restart and what
// operators query for pipeline history.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantfold/conductor/ext"
	"github.com/quantfold/conductor/job"
	"github.com/quantfold/conductor/store"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*Extension)(nil)
	_ ext.JobSucceeded = (*Extension)(nil)
	_ ext.JobFailed    = (*Extension)(nil)
	_ ext.JobCancelled = (*Extension)(nil)
)

// Extension writes every terminal job to the archive store. Retries are
// not archived: a retrying job returns to queued and settles later.
type Extension struct {
	archive store.ArchiveStore
	logger  *slog.Logger
}

// Option configures the Extension.
type Option func(*Extension)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) { e.logger = logger }
}

// New creates the archive extension.
func New(archive store.ArchiveStore, opts ...Option) *Extension {
	e := &Extension{archive: archive, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "job-archive" }

// OnJobSucceeded implements ext.JobSucceeded.
func (e *Extension) OnJobSucceeded(ctx context.Context, j *job.Job, _ time.Duration) error {
	return e.write(ctx, j)
}

// OnJobFailed implements ext.JobFailed.
func (e *Extension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	return e.write(ctx, j)
}

// OnJobCancelled implements ext.JobCancelled.
func (e *Extension) OnJobCancelled(ctx context.Context, j *job.Job, _ string) error {
	return e.write(ctx, j)
}

func (e *Extension) write(ctx context.Context, j *job.Job) error {
	if err := e.archive.ArchiveJob(ctx, j); err != nil {
		return fmt.Errorf("archive job %s: %w", j.ID, err)
	}
	return nil
}
