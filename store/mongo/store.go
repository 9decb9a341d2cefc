// Package mongo implements store.Store on MongoDB. Settings are one
// document per key, archived jobs are JSON payloads alongside the few
// fields the queries filter and sort on.
package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/quantfold/conductor/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Collection names.
const (
	colSettings = "conductor_settings"
	colArchive  = "conductor_job_archive"
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Store implements the composite store.Store interface backed by MongoDB.
type Store struct {
	db     *mongod.Database
	client *mongod.Client // set when Open created the connection
	logger *slog.Logger
}

// New wraps an existing database handle. The caller owns the client
// lifecycle; Close is a no-op.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects with a mongodb:// URI. The returned Store owns the
// client and disconnects it on Close.
func Open(uri, database string, opts ...Option) (*Store, error) {
	client, err := mongod.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("conductor/mongo: connect: %w", err)
	}
	s := New(client.Database(database), opts...)
	s.client = client
	return s, nil
}

// DB returns the underlying database handle for advanced usage.
func (s *Store) DB() *mongod.Database { return s.db }

// Migrate creates the archive indexes. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Collection(colArchive).Indexes().CreateMany(ctx, []mongod.IndexModel{
		{Keys: bson.D{{Key: "finished_at", Value: -1}}},
		{Keys: bson.D{{Key: "type", Value: 1}, {Key: "status", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("conductor/mongo: migrate: %w", err)
	}
	return nil
}

// Ping verifies the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close disconnects the client when Open created it; otherwise the
// caller owns the lifecycle and Close is a no-op.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(context.Background())
}
