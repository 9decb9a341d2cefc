package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	conductor "github.com/quantfold/conductor"
	"github.com/quantfold/conductor/id"
	"github.com/quantfold/conductor/job"
	"github.com/quantfold/conductor/store"
)

// timeFmt is the column format for timestamps: RFC3339Nano sorts
// lexicographically, so plain string comparison orders correctly.
const timeFmt = time.RFC3339Nano

func fmtTime(t time.Time) string { return t.UTC().Format(timeFmt) }

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) { return time.Parse(timeFmt, s) }

// ArchiveJob upserts a terminal job snapshot.
func (s *Store) ArchiveJob(ctx context.Context, j *job.Job) error {
	metadata, err := marshalNullable(j.Metadata)
	if err != nil {
		return fmt.Errorf("conductor/sqlite: encode metadata: %w", err)
	}
	result, err := marshalNullable(j.Result)
	if err != nil {
		return fmt.Errorf("conductor/sqlite: encode result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conductor_job_archive (
			id, type, status, scheduled_for, created_at, started_at,
			finished_at, attempts, max_retries, description, metadata,
			result, last_error, cancel_reason, cancel_requested_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			scheduled_for = excluded.scheduled_for,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			attempts = excluded.attempts,
			metadata = excluded.metadata,
			result = excluded.result,
			last_error = excluded.last_error,
			cancel_reason = excluded.cancel_reason,
			cancel_requested_at = excluded.cancel_requested_at`,
		j.ID.String(), string(j.Type), string(j.Status),
		fmtTime(j.ScheduledFor), fmtTime(j.CreatedAt),
		fmtTimePtr(j.StartedAt), fmtTimePtr(j.FinishedAt),
		j.Attempts, j.MaxRetries, j.Description, metadata,
		result, j.LastError, j.CancelReason, fmtTimePtr(j.CancelRequestedAt),
	)
	if err != nil {
		return fmt.Errorf("conductor/sqlite: archive job %s: %w", j.ID, err)
	}
	return nil
}

const archiveColumns = `id, type, status, scheduled_for, created_at,
	started_at, finished_at, attempts, max_retries, description, metadata,
	result, last_error, cancel_reason, cancel_requested_at`

// ArchivedJob returns one snapshot by id.
func (s *Store) ArchivedJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+archiveColumns+` FROM conductor_job_archive WHERE id = ?`,
		jobID.String(),
	)
	j, err := scanArchived(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, conductor.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conductor/sqlite: archived job %s: %w", jobID, err)
	}
	return j, nil
}

// ArchivedJobs returns snapshots matching the filter, newest finish first.
func (s *Store) ArchivedJobs(ctx context.Context, f store.ArchiveFilter) ([]*job.Job, error) {
	query := `SELECT ` + archiveColumns + ` FROM conductor_job_archive WHERE 1=1`
	var args []any
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(f.Type))
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY finished_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("conductor/sqlite: list archive: %w", err)
	}
	defer rows.Close()

	var out []*job.Job
	for rows.Next() {
		j, scanErr := scanArchived(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("conductor/sqlite: scan archive row: %w", scanErr)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conductor/sqlite: list archive: %w", err)
	}
	return out, nil
}

// PurgeArchive deletes snapshots finished before cutoff.
func (s *Store) PurgeArchive(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conductor_job_archive
		 WHERE finished_at IS NOT NULL AND finished_at < ?`,
		fmtTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("conductor/sqlite: purge archive: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("conductor/sqlite: purge archive: %w", err)
	}
	return int(n), nil
}

// ── row mapping ──────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArchived(row rowScanner) (*job.Job, error) {
	var (
		idStr, typ, status, scheduledFor, createdAt string
		startedAt, finishedAt, cancelRequestedAt    sql.NullString
		metadata, result                            sql.NullString
		j                                           job.Job
	)
	err := row.Scan(
		&idStr, &typ, &status, &scheduledFor, &createdAt,
		&startedAt, &finishedAt, &j.Attempts, &j.MaxRetries,
		&j.Description, &metadata, &result, &j.LastError,
		&j.CancelReason, &cancelRequestedAt,
	)
	if err != nil {
		return nil, err
	}

	j.ID, err = id.ParseJobID(idStr)
	if err != nil {
		return nil, err
	}
	j.Type = job.Type(typ)
	j.Status = job.Status(status)
	if j.ScheduledFor, err = parseTime(scheduledFor); err != nil {
		return nil, err
	}
	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if j.StartedAt, err = parseTimePtr(startedAt); err != nil {
		return nil, err
	}
	if j.FinishedAt, err = parseTimePtr(finishedAt); err != nil {
		return nil, err
	}
	if j.CancelRequestedAt, err = parseTimePtr(cancelRequestedAt); err != nil {
		return nil, err
	}
	if metadata.Valid {
		if err := json.Unmarshal([]byte(metadata.String), &j.Metadata); err != nil {
			return nil, err
		}
	}
	if result.Valid {
		if err := json.Unmarshal([]byte(result.String), &j.Result); err != nil {
			return nil, err
		}
	}
	return &j, nil
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// marshalNullable returns NULL for nil values so empty metadata and
// results do not round-trip as "null" JSON.
func marshalNullable(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		if x == nil {
			return nil, nil
		}
	case *job.Result:
		if x == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
