package job_test

import (
	"context"
	"testing"
	"time"

	"github.com/quantfold/conductor/id"
	"github.com/quantfold/conductor/job"
)

func TestType_Valid(t *testing.T) {
	for _, typ := range job.Types() {
		if !typ.Valid() {
			t.Errorf("Types() member %q reported invalid", typ)
		}
	}
	if job.Type("rebalance").Valid() {
		t.Error("unknown type reported valid")
	}
	if job.Type("").Valid() {
		t.Error("empty type reported valid")
	}
}

func TestStatus_Terminal(t *testing.T) {
	tests := []struct {
		status job.Status
		want   bool
	}{
		{job.StatusQueued, false},
		{job.StatusRunning, false},
		{job.StatusSucceeded, true},
		{job.StatusFailed, true},
		{job.StatusCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%q.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestJob_CloneIsDeep(t *testing.T) {
	started := time.Now()
	j := &job.Job{
		ID:        id.NewJobID(),
		Type:      job.TypeSync,
		Status:    job.StatusRunning,
		StartedAt: &started,
		Metadata:  map[string]any{"tickers": "AAPL"},
		Result:    &job.Result{Message: "ok", Data: map[string]any{"rows": 10}},
	}

	cp := j.Clone()
	cp.Metadata["tickers"] = "MSFT"
	cp.Result.Data["rows"] = 99
	*cp.StartedAt = started.Add(time.Hour)

	if j.Metadata["tickers"] != "AAPL" {
		t.Error("Clone shares Metadata with original")
	}
	if j.Result.Data["rows"] != 10 {
		t.Error("Clone shares Result.Data with original")
	}
	if !j.StartedAt.Equal(started) {
		t.Error("Clone shares StartedAt with original")
	}
}

func TestJob_Pending(t *testing.T) {
	j := &job.Job{Status: job.StatusQueued}
	if !j.Pending() {
		t.Error("queued job should be pending")
	}
	j.Status = job.StatusRunning
	if !j.Pending() {
		t.Error("running job should be pending")
	}
	j.Status = job.StatusFailed
	if j.Pending() {
		t.Error("failed job should not be pending")
	}
}

func TestRegistry_Validate(t *testing.T) {
	ok := func(_ context.Context, _ *job.Invocation) (*job.Result, error) { return nil, nil }

	good := job.Registry{job.TypeSync: ok}
	if err := good.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	unknown := job.Registry{job.Type("bogus"): ok}
	if err := unknown.Validate(); err == nil {
		t.Error("Validate() should reject unknown type")
	}

	nilHandler := job.Registry{job.TypeSync: nil}
	if err := nilHandler.Validate(); err == nil {
		t.Error("Validate() should reject nil handler")
	}
}

func TestOptions_Apply(t *testing.T) {
	at := time.Now().Add(time.Minute)
	var o job.Options
	for _, opt := range []job.Option{
		job.WithStartAt(at),
		job.WithMaxRetries(2),
		job.WithDescription("nightly sync"),
		job.WithMetadata(map[string]any{"trigger": "cron"}),
		job.WithMetadata(map[string]any{"tickers": "AAPL"}),
	} {
		opt(&o)
	}

	if !o.StartAt.Equal(at) {
		t.Errorf("StartAt = %v, want %v", o.StartAt, at)
	}
	if o.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want 2", o.MaxRetries)
	}
	if o.Description != "nightly sync" {
		t.Errorf("Description = %q", o.Description)
	}
	if o.Metadata["trigger"] != "cron" || o.Metadata["tickers"] != "AAPL" {
		t.Errorf("Metadata not merged: %v", o.Metadata)
	}
}
