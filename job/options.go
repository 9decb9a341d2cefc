package job

import "time"

// Options configures per-job scheduling behavior.
type Options struct {
	// StartAt is the earliest time the job may run. Zero means now.
	StartAt time.Time

	// MaxRetries overrides the scheduler's default attempt ceiling.
	// Zero means use the default.
	MaxRetries int

	// Description is a free-form UI label.
	Description string

	// Metadata is an open key/value bag; the scheduler never reads it.
	Metadata map[string]any
}

// Option is a functional option for ScheduleJob.
type Option func(*Options)

// WithStartAt schedules the job for a future instant.
func WithStartAt(t time.Time) Option {
	return func(o *Options) { o.StartAt = t }
}

// WithMaxRetries overrides the default attempt ceiling for this job.
func WithMaxRetries(n int) Option {
	return func(o *Options) { o.MaxRetries = n }
}

// WithDescription sets the job's UI label.
func WithDescription(d string) Option {
	return func(o *Options) { o.Description = d }
}

// WithMetadata merges kv pairs into the job's metadata bag.
func WithMetadata(md map[string]any) Option {
	return func(o *Options) {
		if o.Metadata == nil {
			o.Metadata = make(map[string]any, len(md))
		}
		for k, v := range md {
			o.Metadata[k] = v
		}
	}
}
