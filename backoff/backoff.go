// Package backoff provides pluggable retry delay strategies for job
// re-queuing. All strategies are stateless and safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Ceiling).
type Exponential struct {
	Initial time.Duration
	Ceiling time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, ceiling time.Duration) *Exponential {
	return &Exponential{Initial: initial, Ceiling: ceiling}
}

// Delay returns Initial * 2^(attempt-1), capped at Ceiling.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Ceiling > 0 && d > e.Ceiling {
		return e.Ceiling
	}
	return d
}

// ExponentialWithJitter applies full jitter to an exponential base:
// a random value in [0, min(Initial * 2^(attempt-1), Ceiling)]. Useful when
// many independent schedulers retry against the same upstream.
type ExponentialWithJitter struct {
	Initial time.Duration
	Ceiling time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(initial, ceiling time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Ceiling: ceiling}
}

// Delay returns a random duration in [0, min(Initial * 2^(attempt-1), Ceiling)].
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Ceiling > 0 && base > float64(e.Ceiling) {
		base = float64(e.Ceiling)
	}
	return time.Duration(rand.Float64() * base) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// DefaultStrategy returns the scheduler's default: plain exponential with
// 15s initial and 5m ceiling. No jitter, so retry timing stays
// deterministic for a single-flight pipeline.
func DefaultStrategy() Strategy {
	return NewExponential(15*time.Second, 5*time.Minute)
}
