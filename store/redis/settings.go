package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	conductor "github.com/quantfold/conductor"
)

// GetSetting returns the value for key.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	v, err := s.client.HGet(ctx, settingsKey, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", conductor.ErrSettingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("conductor/redis: get setting %q: %w", key, err)
	}
	return v, nil
}

// SetSetting creates or overwrites a setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	if err := s.client.HSet(ctx, settingsKey, key, value).Err(); err != nil {
		return fmt.Errorf("conductor/redis: set setting %q: %w", key, err)
	}
	return nil
}

// Settings returns all settings.
func (s *Store) Settings(ctx context.Context) (map[string]string, error) {
	all, err := s.client.HGetAll(ctx, settingsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("conductor/redis: list settings: %w", err)
	}
	return all, nil
}
