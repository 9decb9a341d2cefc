package ext_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/quantfold/conductor/ext"
	"github.com/quantfold/conductor/id"
	"github.com/quantfold/conductor/job"
)

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnJobScheduled(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobScheduled")
	return nil
}

func (e *allHooksExt) OnJobStarted(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobStarted")
	return nil
}

func (e *allHooksExt) OnJobSucceeded(_ context.Context, _ *job.Job, _ time.Duration) error {
	e.calls = append(e.calls, "OnJobSucceeded")
	return nil
}

func (e *allHooksExt) OnJobRetrying(_ context.Context, _ *job.Job, _ int, _ time.Time) error {
	e.calls = append(e.calls, "OnJobRetrying")
	return nil
}

func (e *allHooksExt) OnJobFailed(_ context.Context, _ *job.Job, _ error) error {
	e.calls = append(e.calls, "OnJobFailed")
	return nil
}

func (e *allHooksExt) OnJobCancelled(_ context.Context, _ *job.Job, _ string) error {
	e.calls = append(e.calls, "OnJobCancelled")
	return nil
}

func (e *allHooksExt) OnIdleOptimize(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnIdleOptimize")
	return nil
}

func (e *allHooksExt) OnCronFired(_ context.Context, _ string, _ id.JobID) error {
	e.calls = append(e.calls, "OnCronFired")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// startOnlyExt implements only JobStarted.
type startOnlyExt struct {
	started int
}

func (e *startOnlyExt) Name() string { return "start-only" }

func (e *startOnlyExt) OnJobStarted(_ context.Context, _ *job.Job) error {
	e.started++
	return nil
}

// failingExt returns an error from its hook.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnJobStarted(_ context.Context, _ *job.Job) error {
	return errors.New("hook boom")
}

func newTestJob() *job.Job {
	return &job.Job{
		ID:     id.NewJobID(),
		Type:   job.TypeSync,
		Status: job.StatusQueued,
	}
}

func TestRegistry_EmitsAllHooks(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	e := &allHooksExt{}
	r.Register(e)

	ctx := context.Background()
	j := newTestJob()

	r.EmitJobScheduled(ctx, j)
	r.EmitJobStarted(ctx, j)
	r.EmitJobSucceeded(ctx, j, time.Second)
	r.EmitJobRetrying(ctx, j, 1, time.Now())
	r.EmitJobFailed(ctx, j, errors.New("boom"))
	r.EmitJobCancelled(ctx, j, "preempted")
	r.EmitIdleOptimize(ctx, j)
	r.EmitCronFired(ctx, "market-open-sync", j.ID)
	r.EmitShutdown(ctx)

	want := []string{
		"OnJobScheduled", "OnJobStarted", "OnJobSucceeded", "OnJobRetrying",
		"OnJobFailed", "OnJobCancelled", "OnIdleOptimize", "OnCronFired",
		"OnShutdown",
	}
	if len(e.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", e.calls, want)
	}
	for i, name := range want {
		if e.calls[i] != name {
			t.Errorf("calls[%d] = %q, want %q", i, e.calls[i], name)
		}
	}
}

func TestRegistry_PartialExtensionOnlyGetsItsHooks(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	e := &startOnlyExt{}
	r.Register(e)

	ctx := context.Background()
	j := newTestJob()

	// These must not panic nor reach the extension.
	r.EmitJobScheduled(ctx, j)
	r.EmitJobSucceeded(ctx, j, time.Second)
	r.EmitShutdown(ctx)

	r.EmitJobStarted(ctx, j)
	r.EmitJobStarted(ctx, j)

	if e.started != 2 {
		t.Errorf("started = %d, want 2", e.started)
	}
}

func TestRegistry_HookErrorsDoNotStopOthers(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	r.Register(&failingExt{})
	counter := &startOnlyExt{}
	r.Register(counter)

	r.EmitJobStarted(context.Background(), newTestJob())

	if counter.started != 1 {
		t.Errorf("extension after failing hook not notified, started = %d", counter.started)
	}
}

func TestRegistry_Extensions(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	r.Register(&startOnlyExt{})
	r.Register(&allHooksExt{})

	if got := len(r.Extensions()); got != 2 {
		t.Errorf("Extensions() len = %d, want 2", got)
	}
}
