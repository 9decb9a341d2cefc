// Package memory is a fully in-memory store.Store implementation. Safe
// for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	conductor "github.com/quantfold/conductor"
	"github.com/quantfold/conductor/id"
	"github.com/quantfold/conductor/job"
	"github.com/quantfold/conductor/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store keeps settings and archived jobs in maps.
type Store struct {
	mu       sync.RWMutex
	settings map[string]string
	archive  map[string]*job.Job
	closed   bool
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		settings: make(map[string]string),
		archive:  make(map[string]*job.Job),
	}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close marks the store closed; later calls fail with ErrStoreClosed.
func (m *Store) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// ──────────────────────────────────────────────────
// Settings
// ──────────────────────────────────────────────────

// GetSetting returns the value for key.
func (m *Store) GetSetting(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", conductor.ErrStoreClosed
	}
	v, ok := m.settings[key]
	if !ok {
		return "", conductor.ErrSettingNotFound
	}
	return v, nil
}

// SetSetting creates or overwrites a setting.
func (m *Store) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return conductor.ErrStoreClosed
	}
	m.settings[key] = value
	return nil
}

// Settings returns a copy of all settings.
func (m *Store) Settings(_ context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, conductor.ErrStoreClosed
	}
	out := make(map[string]string, len(m.settings))
	for k, v := range m.settings {
		out[k] = v
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Archive
// ──────────────────────────────────────────────────

// ArchiveJob upserts a terminal job snapshot.
func (m *Store) ArchiveJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return conductor.ErrStoreClosed
	}
	m.archive[j.ID.String()] = j.Clone()
	return nil
}

// ArchivedJob returns one snapshot by id.
func (m *Store) ArchivedJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, conductor.ErrStoreClosed
	}
	j, ok := m.archive[jobID.String()]
	if !ok {
		return nil, conductor.ErrJobNotFound
	}
	return j.Clone(), nil
}

// ArchivedJobs returns snapshots matching the filter, newest finish first.
func (m *Store) ArchivedJobs(_ context.Context, f store.ArchiveFilter) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, conductor.ErrStoreClosed
	}

	out := make([]*job.Job, 0, len(m.archive))
	for _, j := range m.archive {
		if f.Type != "" && j.Type != f.Type {
			continue
		}
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		out = append(out, j.Clone())
	}
	sort.Slice(out, func(i, k int) bool {
		a, b := out[i].FinishedAt, out[k].FinishedAt
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.After(*b)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// PurgeArchive deletes snapshots finished before cutoff.
func (m *Store) PurgeArchive(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, conductor.ErrStoreClosed
	}
	n := 0
	for key, j := range m.archive {
		if j.FinishedAt != nil && j.FinishedAt.Before(cutoff) {
			delete(m.archive, key)
			n++
		}
	}
	return n, nil
}
