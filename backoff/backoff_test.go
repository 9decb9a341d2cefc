package backoff_test

import (
	"testing"
	"time"

	"github.com/quantfold/conductor/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 5*time.Second)
		}
	}
}

func TestExponential_PipelinePolicy(t *testing.T) {
	// The reference retry ladder: 15s, 30s, 60s, 120s, 240s, then 300s.
	e := backoff.NewExponential(15*time.Second, 300*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 15 * time.Second},
		{2, 30 * time.Second},
		{3, 60 * time.Second},
		{4, 120 * time.Second},
		{5, 240 * time.Second},
		{6, 300 * time.Second},
		{7, 300 * time.Second},
		{20, 300 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_NonDecreasing(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Minute)
	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		got := e.Delay(attempt)
		if got < prev {
			t.Fatalf("Delay(%d) = %v < Delay(%d) = %v", attempt, got, attempt-1, prev)
		}
		prev = got
	}
}

func TestExponentialWithJitter_WithinBounds(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, 10*time.Second)

	for attempt := 1; attempt <= 5; attempt++ {
		for range 100 {
			got := e.Delay(attempt)
			if got < 0 {
				t.Errorf("Delay(%d) = %v, should be >= 0", attempt, got)
			}
			if got > 10*time.Second {
				t.Errorf("Delay(%d) = %v, should be <= %v", attempt, got, 10*time.Second)
			}
		}
	}
}

func TestExponentialWithJitter_ProducesVariance(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, time.Minute)

	seen := make(map[time.Duration]bool)
	for range 100 {
		seen[e.Delay(3)] = true
	}
	if len(seen) < 2 {
		t.Errorf("expected variance in jitter, got only %d distinct values", len(seen))
	}
}

func TestDefaultStrategy_IsDeterministicExponential(t *testing.T) {
	s := backoff.DefaultStrategy()
	if s == nil {
		t.Fatal("DefaultStrategy() returned nil")
	}
	if got := s.Delay(1); got != 15*time.Second {
		t.Errorf("Delay(1) = %v, want 15s", got)
	}
	if got := s.Delay(10); got != 5*time.Minute {
		t.Errorf("Delay(10) = %v, want 5m cap", got)
	}
}
