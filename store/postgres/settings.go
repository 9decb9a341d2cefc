package postgres

import (
	"context"
	"fmt"

	conductor "github.com/quantfold/conductor"
)

// GetSetting returns the value for key.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	m := new(settingModel)
	err := s.db.NewSelect().Model(m).
		Where("key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return "", conductor.ErrSettingNotFound
		}
		return "", fmt.Errorf("conductor/postgres: get setting %q: %w", key, err)
	}
	return m.Value, nil
}

// SetSetting creates or overwrites a setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	m := &settingModel{Key: key, Value: value}
	_, err := s.db.NewInsert().Model(m).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("conductor/postgres: set setting %q: %w", key, err)
	}
	return nil
}

// Settings returns all settings.
func (s *Store) Settings(ctx context.Context) (map[string]string, error) {
	var models []settingModel
	if err := s.db.NewSelect().Model(&models).Scan(ctx); err != nil {
		return nil, fmt.Errorf("conductor/postgres: list settings: %w", err)
	}
	out := make(map[string]string, len(models))
	for _, m := range models {
		out[m.Key] = m.Value
	}
	return out, nil
}
