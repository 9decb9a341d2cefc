package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	conductor "github.com/quantfold/conductor"
	"github.com/quantfold/conductor/id"
	"github.com/quantfold/conductor/job"
	"github.com/quantfold/conductor/store"
)

// archiveDoc carries the job snapshot as JSON plus the fields queries
// filter and sort on. A zero FinishedAt marks a job without a finish
// time; PurgeArchive never touches those.
type archiveDoc struct {
	ID         string    `bson:"_id"`
	Type       string    `bson:"type"`
	Status     string    `bson:"status"`
	FinishedAt time.Time `bson:"finished_at"`
	Data       []byte    `bson:"data"`
}

// ArchiveJob upserts a terminal job snapshot.
func (s *Store) ArchiveJob(ctx context.Context, j *job.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("conductor/mongo: encode job %s: %w", j.ID, err)
	}

	doc := archiveDoc{
		ID:     j.ID.String(),
		Type:   string(j.Type),
		Status: string(j.Status),
		Data:   data,
	}
	if j.FinishedAt != nil {
		doc.FinishedAt = j.FinishedAt.UTC()
	}

	_, err = s.db.Collection(colArchive).ReplaceOne(ctx,
		bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("conductor/mongo: archive job %s: %w", j.ID, err)
	}
	return nil
}

// ArchivedJob returns one snapshot by id.
func (s *Store) ArchivedJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var doc archiveDoc
	err := s.db.Collection(colArchive).FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&doc)
	if errors.Is(err, mongod.ErrNoDocuments) {
		return nil, conductor.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conductor/mongo: archived job %s: %w", jobID, err)
	}
	return decodeArchived(&doc)
}

// ArchivedJobs returns snapshots matching the filter, newest finish first.
func (s *Store) ArchivedJobs(ctx context.Context, f store.ArchiveFilter) ([]*job.Job, error) {
	filter := bson.M{}
	if f.Type != "" {
		filter["type"] = string(f.Type)
	}
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}

	opts := options.Find().SetSort(bson.D{{Key: "finished_at", Value: -1}})
	if f.Limit > 0 {
		opts = opts.SetLimit(int64(f.Limit))
	}

	cur, err := s.db.Collection(colArchive).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("conductor/mongo: scan archive: %w", err)
	}
	var docs []archiveDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("conductor/mongo: decode archive: %w", err)
	}

	out := make([]*job.Job, 0, len(docs))
	for i := range docs {
		j, err := decodeArchived(&docs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// PurgeArchive deletes snapshots finished before cutoff.
func (s *Store) PurgeArchive(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.Collection(colArchive).DeleteMany(ctx, bson.M{
		"finished_at": bson.M{"$lt": cutoff.UTC(), "$ne": time.Time{}},
	})
	if err != nil {
		return 0, fmt.Errorf("conductor/mongo: purge: %w", err)
	}
	return int(res.DeletedCount), nil
}

func decodeArchived(doc *archiveDoc) (*job.Job, error) {
	var j job.Job
	if err := json.Unmarshal(doc.Data, &j); err != nil {
		return nil, fmt.Errorf("conductor/mongo: decode archived %s: %w", doc.ID, err)
	}
	return &j, nil
}
