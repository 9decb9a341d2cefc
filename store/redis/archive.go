package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	conductor "github.com/quantfold/conductor"
	"github.com/quantfold/conductor/id"
	"github.com/quantfold/conductor/job"
	"github.com/quantfold/conductor/store"
)

// ArchiveJob upserts a terminal job snapshot.
func (s *Store) ArchiveJob(ctx context.Context, j *job.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("conductor/redis: encode job %s: %w", j.ID, err)
	}

	score := float64(0)
	if j.FinishedAt != nil {
		score = float64(j.FinishedAt.UnixNano())
	}

	jID := j.ID.String()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, archiveKey(jID), data, 0)
	pipe.ZAdd(ctx, archiveIndexKey, goredis.Z{Score: score, Member: jID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("conductor/redis: archive job %s: %w", j.ID, err)
	}
	return nil
}

// ArchivedJob returns one snapshot by id.
func (s *Store) ArchivedJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	data, err := s.client.Get(ctx, archiveKey(jobID.String())).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, conductor.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conductor/redis: archived job %s: %w", jobID, err)
	}
	var j job.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("conductor/redis: decode job %s: %w", jobID, err)
	}
	return &j, nil
}

// ArchivedJobs returns snapshots matching the filter, newest finish first.
// Type and status filters are applied client-side after the index scan.
func (s *Store) ArchivedJobs(ctx context.Context, f store.ArchiveFilter) ([]*job.Job, error) {
	ids, err := s.client.ZRevRange(ctx, archiveIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("conductor/redis: scan archive index: %w", err)
	}

	var out []*job.Job
	for _, jID := range ids {
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
		data, getErr := s.client.Get(ctx, archiveKey(jID)).Bytes()
		if errors.Is(getErr, goredis.Nil) {
			continue // purged between index scan and fetch
		}
		if getErr != nil {
			return nil, fmt.Errorf("conductor/redis: fetch archived %s: %w", jID, getErr)
		}
		var j job.Job
		if err := json.Unmarshal(data, &j); err != nil {
			return nil, fmt.Errorf("conductor/redis: decode archived %s: %w", jID, err)
		}
		if f.Type != "" && j.Type != f.Type {
			continue
		}
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		out = append(out, &j)
	}
	return out, nil
}

// PurgeArchive deletes snapshots finished before cutoff.
func (s *Store) PurgeArchive(ctx context.Context, cutoff time.Time) (int, error) {
	maxScore := strconv.FormatInt(cutoff.UnixNano()-1, 10)
	ids, err := s.client.ZRangeByScore(ctx, archiveIndexKey, &goredis.ZRangeBy{
		Min: "1", // score 0 means no finish time; never purge those
		Max: maxScore,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("conductor/redis: purge scan: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	for _, jID := range ids {
		pipe.Del(ctx, archiveKey(jID))
		pipe.ZRem(ctx, archiveIndexKey, jID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("conductor/redis: purge exec: %w", err)
	}
	return len(ids), nil
}
