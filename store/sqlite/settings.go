package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	conductor "github.com/quantfold/conductor"
)

// GetSetting returns the value for key.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM conductor_settings WHERE key = ?`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", conductor.ErrSettingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("conductor/sqlite: get setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting creates or overwrites a setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conductor_settings (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("conductor/sqlite: set setting %q: %w", key, err)
	}
	return nil
}

// Settings returns all settings.
func (s *Store) Settings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM conductor_settings`)
	if err != nil {
		return nil, fmt.Errorf("conductor/sqlite: list settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("conductor/sqlite: scan setting: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conductor/sqlite: list settings: %w", err)
	}
	return out, nil
}
