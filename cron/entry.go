package cron

import (
	"fmt"
	"time"

	"github.com/quantfold/conductor/id"
	"github.com/quantfold/conductor/job"
)

// Entry represents a recurring pipeline job schedule.
type Entry struct {
	ID       id.CronID `json:"id"`
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	JobType  job.Type  `json:"job_type"`

	// Description is attached to every job this entry enqueues.
	Description string `json:"description,omitempty"`

	// Metadata is merged into every job this entry enqueues.
	Metadata map[string]any `json:"metadata,omitempty"`

	Enabled   bool       `json:"enabled"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`

	// LastSkipped is set when the most recent due time was skipped
	// because a job of this type was already pending.
	LastSkipped *time.Time `json:"last_skipped,omitempty"`
}

// Validate checks the entry is well-formed and its schedule parses.
func (e *Entry) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("cron: entry name is required")
	}
	if !e.JobType.Valid() {
		return fmt.Errorf("cron: entry %q: unknown job type %q", e.Name, e.JobType)
	}
	if _, err := ParseSchedule(e.Schedule); err != nil {
		return fmt.Errorf("cron: entry %q: bad schedule %q: %w", e.Name, e.Schedule, err)
	}
	return nil
}

// Clone returns a copy safe to hand outside the scheduler.
func (e *Entry) Clone() *Entry {
	cp := *e
	if e.Metadata != nil {
		cp.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			cp.Metadata[k] = v
		}
	}
	if e.LastRunAt != nil {
		t := *e.LastRunAt
		cp.LastRunAt = &t
	}
	if e.NextRunAt != nil {
		t := *e.NextRunAt
		cp.NextRunAt = &t
	}
	if e.LastSkipped != nil {
		t := *e.LastSkipped
		cp.LastSkipped = &t
	}
	return &cp
}
