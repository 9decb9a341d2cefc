package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quantfold/conductor/id"
	"github.com/quantfold/conductor/job"
	"github.com/quantfold/conductor/observability"
)

func testJob() *job.Job {
	return &job.Job{
		ID:     id.NewJobID(),
		Type:   job.TypeSync,
		Status: job.StatusRunning,
	}
}

func TestMetricsExtension_NoopProviderHooks(t *testing.T) {
	m, err := observability.NewMetricsExtension(func() int64 { return 0 })
	if err != nil {
		t.Fatalf("create extension: %v", err)
	}
	if m.Name() != "observability-metrics" {
		t.Fatalf("name = %q", m.Name())
	}

	ctx := context.Background()
	j := testJob()
	if err := m.OnJobScheduled(ctx, j); err != nil {
		t.Errorf("OnJobScheduled: %v", err)
	}
	if err := m.OnJobSucceeded(ctx, j, 250*time.Millisecond); err != nil {
		t.Errorf("OnJobSucceeded: %v", err)
	}
	if err := m.OnJobFailed(ctx, j, errors.New("boom")); err != nil {
		t.Errorf("OnJobFailed: %v", err)
	}
	if err := m.OnJobRetrying(ctx, j, 1, time.Now()); err != nil {
		t.Errorf("OnJobRetrying: %v", err)
	}
	if err := m.OnJobCancelled(ctx, j, "operator"); err != nil {
		t.Errorf("OnJobCancelled: %v", err)
	}
	if err := m.OnIdleOptimize(ctx, j); err != nil {
		t.Errorf("OnIdleOptimize: %v", err)
	}
	if err := m.OnCronFired(ctx, "hourly-sync", id.NewJobID()); err != nil {
		t.Errorf("OnCronFired: %v", err)
	}
}

func TestMetricsExtension_NilQueueDepth(t *testing.T) {
	if _, err := observability.NewMetricsExtension(nil); err != nil {
		t.Fatalf("nil queue depth should be accepted: %v", err)
	}
}
