// Package store defines the persistence interfaces around the scheduler:
// a key-value settings store for operator-tunable pipeline parameters and
// a job archive for terminal job snapshots that outlive the process. The
// composite Store composes both. Backends: Memory, SQLite, Postgres (bun),
// Redis, and MongoDB.
package store

import (
	"context"
	"time"

	"github.com/quantfold/conductor/id"
	"github.com/quantfold/conductor/job"
)

// Well-known setting keys. Values are strings; typed accessors live on
// PipelineSettings.
const (
	// KeyAutoOptimizeEnabled holds "true" or "false".
	KeyAutoOptimizeEnabled = "auto_optimize_enabled"

	// KeyIdleDelay holds a Go duration string, e.g. "30m".
	KeyIdleDelay = "auto_optimize_idle_delay"

	// KeyEnginePath holds the filesystem path of the computation binary.
	KeyEnginePath = "engine_path"

	// KeyDispatchEnabled holds "true" or "false"; when false the dispatch
	// handler plans but never places orders.
	KeyDispatchEnabled = "dispatch_enabled"

	// KeyPlannedOrders holds the JSON order list the plan handler produced
	// and the dispatch handler consumes.
	KeyPlannedOrders = "planned_orders"

	// KeyOptimizeCheckpoint holds the engine's sweep checkpoint path so an
	// interrupted optimize pass resumes instead of restarting.
	KeyOptimizeCheckpoint = "optimize_checkpoint"
)

// SettingsStore persists operator-tunable pipeline settings as string
// key-value pairs.
type SettingsStore interface {
	// GetSetting returns the value for key, or conductor.ErrSettingNotFound.
	GetSetting(ctx context.Context, key string) (string, error)

	// SetSetting creates or overwrites a setting.
	SetSetting(ctx context.Context, key, value string) error

	// Settings returns all settings.
	Settings(ctx context.Context) (map[string]string, error)
}

// ArchiveFilter narrows ArchivedJobs results. Zero fields match everything.
type ArchiveFilter struct {
	Type   job.Type
	Status job.Status
	Limit  int
}

// ArchiveStore persists terminal job snapshots for post-hoc inspection.
// Archiving the same job id twice overwrites the earlier snapshot, so
// re-archiving after a crash-replay is harmless.
type ArchiveStore interface {
	// ArchiveJob upserts a terminal job snapshot.
	ArchiveJob(ctx context.Context, j *job.Job) error

	// ArchivedJob returns one snapshot, or conductor.ErrJobNotFound.
	ArchivedJob(ctx context.Context, jobID id.JobID) (*job.Job, error)

	// ArchivedJobs returns snapshots matching the filter, newest finish
	// first.
	ArchivedJobs(ctx context.Context, f ArchiveFilter) ([]*job.Job, error)

	// PurgeArchive deletes snapshots finished before cutoff and reports
	// how many were removed.
	PurgeArchive(ctx context.Context, cutoff time.Time) (int, error)
}

// Store is the composite persistence interface. A single backend
// implements all of it.
type Store interface {
	SettingsStore
	ArchiveStore

	// Migrate runs schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
