package job

import (
	"context"
	"fmt"
	"log/slog"
)

// Chainer is the narrow scheduler handle handed to handlers for follow-on
// work. Handlers must check HasPendingJob before chaining so the same
// downstream job is not queued twice from different paths.
type Chainer interface {
	// ScheduleJob enqueues a follow-on job.
	ScheduleJob(ctx context.Context, t Type, opts ...Option) (*Job, error)

	// HasPendingJob reports whether any queued or running job matches.
	HasPendingJob(match func(*Job) bool) bool
}

// Invocation is everything a handler receives for one attempt: a read-only
// snapshot of its job, a logger scoped to the job, and the chaining handle.
// The cancellation signal travels on the ctx argument; it is replaced with
// a fresh context on every retry.
type Invocation struct {
	Job      Job
	Logger   *slog.Logger
	Pipeline Chainer
}

// HandlerFunc performs a job's actual work. Returning a non-nil error marks
// the attempt failed (retried while budget remains); returning normally
// marks it succeeded unless cancellation was requested first. Handlers must
// observe ctx cancellation promptly during long-running loops and must be
// safe to re-invoke from scratch after a retry.
type HandlerFunc func(ctx context.Context, inv *Invocation) (*Result, error)

// Registry is the fixed mapping from job type to handler, supplied once at
// scheduler construction. The scheduler copies it, so later mutation by the
// caller has no effect.
type Registry map[Type]HandlerFunc

// Validate checks that every registered type is a member of the closed
// enumeration and that no handler is nil.
func (r Registry) Validate() error {
	for t, h := range r {
		if !t.Valid() {
			return fmt.Errorf("job: registry contains unknown type %q", t)
		}
		if h == nil {
			return fmt.Errorf("job: nil handler for type %q", t)
		}
	}
	return nil
}

// Handler returns the handler for t, or false if none is registered.
func (r Registry) Handler(t Type) (HandlerFunc, bool) {
	h, ok := r[t]
	return h, ok
}
