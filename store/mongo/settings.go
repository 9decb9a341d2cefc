package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	conductor "github.com/quantfold/conductor"
)

// settingDoc is a single pipeline setting, keyed by name.
type settingDoc struct {
	Key   string `bson:"_id"`
	Value string `bson:"value"`
}

// GetSetting returns the value for key.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var doc settingDoc
	err := s.db.Collection(colSettings).FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongod.ErrNoDocuments) {
		return "", conductor.ErrSettingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("conductor/mongo: get setting %q: %w", key, err)
	}
	return doc.Value, nil
}

// SetSetting creates or overwrites a setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.Collection(colSettings).ReplaceOne(ctx,
		bson.M{"_id": key},
		settingDoc{Key: key, Value: value},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("conductor/mongo: set setting %q: %w", key, err)
	}
	return nil
}

// Settings returns all settings.
func (s *Store) Settings(ctx context.Context) (map[string]string, error) {
	cur, err := s.db.Collection(colSettings).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("conductor/mongo: list settings: %w", err)
	}
	var docs []settingDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("conductor/mongo: decode settings: %w", err)
	}

	out := make(map[string]string, len(docs))
	for _, d := range docs {
		out[d.Key] = d.Value
	}
	return out, nil
}
