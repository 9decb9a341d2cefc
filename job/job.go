package job

import (
	"time"

	"github.com/quantfold/conductor/id"
)

// Type identifies which handler runs a job. The enumeration is closed:
// the scheduler rejects types outside this set at schedule time.
type Type string

const (
	// TypeCompile builds the computation engine from source.
	TypeCompile Type = "compile"
	// TypeSync pulls market data from upstream providers.
	TypeSync Type = "sync"
	// TypeGenerateSignals produces trade signals from synced data.
	TypeGenerateSignals Type = "generate-signals"
	// TypeBacktest replays signals against historical data.
	TypeBacktest Type = "backtest"
	// TypeReconcile compares broker state against local trade records.
	TypeReconcile Type = "reconcile"
	// TypePlan computes the target portfolio from current signals.
	TypePlan Type = "plan"
	// TypeDispatch submits planned orders to the brokerage.
	TypeDispatch Type = "dispatch"
	// TypeOptimize is the low-priority background parameter sweep. It is
	// the only preemptible type: scheduling any other type cancels a
	// running optimize pass.
	TypeOptimize Type = "optimize"
	// TypeTrain fits model parameters on fresh data.
	TypeTrain Type = "train"
)

// Types lists every known job type.
func Types() []Type {
	return []Type{
		TypeCompile, TypeSync, TypeGenerateSignals, TypeBacktest,
		TypeReconcile, TypePlan, TypeDispatch, TypeOptimize, TypeTrain,
	}
}

// Valid reports whether t is a member of the closed enumeration.
func (t Type) Valid() bool {
	switch t {
	case TypeCompile, TypeSync, TypeGenerateSignals, TypeBacktest,
		TypeReconcile, TypePlan, TypeDispatch, TypeOptimize, TypeTrain:
		return true
	}
	return false
}

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusQueued means the job is waiting for its due time and its turn.
	StatusQueued Status = "queued"
	// StatusRunning means the scheduler is executing the job's handler.
	StatusRunning Status = "running"
	// StatusSucceeded means the handler resolved normally.
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the handler failed with no retry budget left.
	StatusFailed Status = "failed"
	// StatusCancelled means the job was deliberately stopped.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is a final state. Retried jobs cycle back to
// queued and are therefore not terminal until their budget runs out.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Result is the payload a handler returns on success: a human-readable
// message plus structured data keyed per job type.
type Result struct {
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Job is a unit of scheduled background work. The scheduler owns the
// canonical record; everything handed to handlers and callers is a copy.
type Job struct {
	ID     id.JobID `json:"id"`
	Type   Type     `json:"type"`
	Status Status   `json:"status"`

	// ScheduledFor is the time after which the job becomes eligible to run.
	// Recomputed on retry (now + backoff).
	ScheduledFor time.Time `json:"scheduled_for"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Attempts counts start attempts; it never exceeds MaxRetries.
	Attempts   int `json:"attempts"`
	MaxRetries int `json:"max_retries"`

	// Description and Metadata are opaque to the scheduler. Handlers and
	// the UI use them for labels and de-duplication keys.
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	Result    *Result `json:"result,omitempty"`
	LastError string  `json:"last_error,omitempty"`

	// CancelReason distinguishes a deliberate stop from a thrown error.
	CancelReason      string     `json:"cancel_reason,omitempty"`
	CancelRequestedAt *time.Time `json:"cancel_requested_at,omitempty"`
}

// Clone returns a deep copy safe to hand outside the scheduler.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Metadata != nil {
		cp.Metadata = make(map[string]any, len(j.Metadata))
		for k, v := range j.Metadata {
			cp.Metadata[k] = v
		}
	}
	if j.Result != nil {
		r := *j.Result
		if j.Result.Data != nil {
			r.Data = make(map[string]any, len(j.Result.Data))
			for k, v := range j.Result.Data {
				r.Data[k] = v
			}
		}
		cp.Result = &r
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		cp.FinishedAt = &t
	}
	if j.CancelRequestedAt != nil {
		t := *j.CancelRequestedAt
		cp.CancelRequestedAt = &t
	}
	return &cp
}

// Pending reports whether the job still occupies the pipeline: queued or
// running. Used by handlers for idempotent chaining checks.
func (j *Job) Pending() bool {
	return j.Status == StatusQueued || j.Status == StatusRunning
}
