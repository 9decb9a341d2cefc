package conductor

import "time"

// Config holds tuning knobs for the scheduler core. All fields have
// working defaults; zero values are replaced by DefaultConfig() values.
type Config struct {
	// RetryInitialDelay is the backoff delay after the first failed attempt.
	RetryInitialDelay time.Duration

	// RetryMaxDelay caps the exponential backoff growth.
	RetryMaxDelay time.Duration

	// DefaultMaxRetries is the per-job attempt ceiling used when a job is
	// scheduled without an explicit override.
	DefaultMaxRetries int

	// WakeCheckCap bounds how long the scheduler sleeps before re-checking
	// queued future jobs, so settings changes are picked up promptly.
	WakeCheckCap time.Duration

	// IdleDelay is how long the scheduler must be idle before it considers
	// auto-scheduling an optimize pass. Overridden at runtime by the
	// settings store when one is attached.
	IdleDelay time.Duration

	// OptimizeCooldown is the minimum gap between successful optimize runs.
	// The idle timer never schedules a second pass inside this window.
	OptimizeCooldown time.Duration

	// ShutdownTimeout is the maximum time Shutdown waits for the in-flight
	// job to settle after its cancellation is signalled.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the reference pipeline policy: 15s→5m exponential
// retry, 5 attempts, 60s wake cap, 30m idle delay, 3h optimize cooldown.
func DefaultConfig() Config {
	return Config{
		RetryInitialDelay: 15 * time.Second,
		RetryMaxDelay:     5 * time.Minute,
		DefaultMaxRetries: 5,
		WakeCheckCap:      60 * time.Second,
		IdleDelay:         30 * time.Minute,
		OptimizeCooldown:  3 * time.Hour,
		ShutdownTimeout:   30 * time.Second,
	}
}

// Normalized fills zero fields from DefaultConfig.
func (c Config) Normalized() Config {
	d := DefaultConfig()
	if c.RetryInitialDelay <= 0 {
		c.RetryInitialDelay = d.RetryInitialDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = d.RetryMaxDelay
	}
	if c.DefaultMaxRetries <= 0 {
		c.DefaultMaxRetries = d.DefaultMaxRetries
	}
	if c.WakeCheckCap <= 0 {
		c.WakeCheckCap = d.WakeCheckCap
	}
	if c.IdleDelay <= 0 {
		c.IdleDelay = d.IdleDelay
	}
	if c.OptimizeCooldown <= 0 {
		c.OptimizeCooldown = d.OptimizeCooldown
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}
