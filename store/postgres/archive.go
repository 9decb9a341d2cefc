package postgres

import (
	"context"
	"fmt"
	"time"

	conductor "github.com/quantfold/conductor"
	"github.com/quantfold/conductor/id"
	"github.com/quantfold/conductor/job"
	"github.com/quantfold/conductor/store"
)

// ArchiveJob upserts a terminal job snapshot.
func (s *Store) ArchiveJob(ctx context.Context, j *job.Job) error {
	m, err := toArchivedModel(j)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(m).
		On("CONFLICT (id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("scheduled_for = EXCLUDED.scheduled_for").
		Set("started_at = EXCLUDED.started_at").
		Set("finished_at = EXCLUDED.finished_at").
		Set("attempts = EXCLUDED.attempts").
		Set("metadata = EXCLUDED.metadata").
		Set("result = EXCLUDED.result").
		Set("last_error = EXCLUDED.last_error").
		Set("cancel_reason = EXCLUDED.cancel_reason").
		Set("cancel_requested_at = EXCLUDED.cancel_requested_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("conductor/postgres: archive job %s: %w", j.ID, err)
	}
	return nil
}

// ArchivedJob returns one snapshot by id.
func (s *Store) ArchivedJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(archivedJobModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, conductor.ErrJobNotFound
		}
		return nil, fmt.Errorf("conductor/postgres: archived job %s: %w", jobID, err)
	}
	return fromArchivedModel(m)
}

// ArchivedJobs returns snapshots matching the filter, newest finish first.
func (s *Store) ArchivedJobs(ctx context.Context, f store.ArchiveFilter) ([]*job.Job, error) {
	q := s.db.NewSelect().Model((*archivedJobModel)(nil)).
		OrderExpr("finished_at DESC NULLS LAST")
	if f.Type != "" {
		q = q.Where("type = ?", string(f.Type))
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var models []archivedJobModel
	if err := q.Scan(ctx, &models); err != nil {
		return nil, fmt.Errorf("conductor/postgres: list archive: %w", err)
	}
	out := make([]*job.Job, 0, len(models))
	for i := range models {
		j, err := fromArchivedModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// PurgeArchive deletes snapshots finished before cutoff.
func (s *Store) PurgeArchive(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.NewDelete().Model((*archivedJobModel)(nil)).
		Where("finished_at IS NOT NULL AND finished_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("conductor/postgres: purge archive: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("conductor/postgres: purge archive: %w", err)
	}
	return int(n), nil
}
