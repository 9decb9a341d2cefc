package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	conductor "github.com/quantfold/conductor"
)

// PipelineSettings is a typed view over a SettingsStore. It satisfies the
// scheduler's Settings interface, so the scheduler re-reads auto-optimize
// parameters through it on RefreshAutoOptimizeSettings.
type PipelineSettings struct {
	Store    SettingsStore
	Defaults conductor.Config
}

// NewPipelineSettings wraps a settings store with DefaultConfig fallbacks.
func NewPipelineSettings(s SettingsStore) *PipelineSettings {
	return &PipelineSettings{Store: s, Defaults: conductor.DefaultConfig()}
}

// AutoOptimize reads the idle-maintenance enable flag and idle delay.
// Missing keys fall back to defaults; malformed values are errors.
func (p *PipelineSettings) AutoOptimize(ctx context.Context) (bool, time.Duration, error) {
	enabled := true
	if raw, err := p.Store.GetSetting(ctx, KeyAutoOptimizeEnabled); err == nil {
		b, perr := strconv.ParseBool(raw)
		if perr != nil {
			return false, 0, errors.New("store: malformed " + KeyAutoOptimizeEnabled + " setting: " + raw)
		}
		enabled = b
	} else if !errors.Is(err, conductor.ErrSettingNotFound) {
		return false, 0, err
	}

	delay := p.Defaults.IdleDelay
	if raw, err := p.Store.GetSetting(ctx, KeyIdleDelay); err == nil {
		d, perr := time.ParseDuration(raw)
		if perr != nil {
			return false, 0, errors.New("store: malformed " + KeyIdleDelay + " setting: " + raw)
		}
		delay = d
	} else if !errors.Is(err, conductor.ErrSettingNotFound) {
		return false, 0, err
	}

	return enabled, delay, nil
}

// Bool reads a boolean setting with a fallback for missing keys.
func (p *PipelineSettings) Bool(ctx context.Context, key string, fallback bool) (bool, error) {
	raw, err := p.Store.GetSetting(ctx, key)
	if errors.Is(err, conductor.ErrSettingNotFound) {
		return fallback, nil
	}
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(raw)
}

// String reads a string setting with a fallback for missing keys.
func (p *PipelineSettings) String(ctx context.Context, key, fallback string) (string, error) {
	raw, err := p.Store.GetSetting(ctx, key)
	if errors.Is(err, conductor.ErrSettingNotFound) {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return raw, nil
}
