package scheduler

import (
	"log/slog"

	conductor "github.com/quantfold/conductor"
	"github.com/quantfold/conductor/backoff"
	"github.com/quantfold/conductor/ext"
	"github.com/quantfold/conductor/middleware"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithConfig sets the scheduler configuration. Zero fields are filled
// from DefaultConfig.
func WithConfig(cfg conductor.Config) Option {
	return func(s *Scheduler) { s.cfg = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBackoff sets the retry backoff strategy. Defaults to exponential
// backoff derived from the configured retry delays.
func WithBackoff(strategy backoff.Strategy) Option {
	return func(s *Scheduler) { s.bo = strategy }
}

// WithExtensions sets the extension registry. A fresh registry is
// created when none is supplied.
func WithExtensions(reg *ext.Registry) Option {
	return func(s *Scheduler) { s.extensions = reg }
}

// WithMiddleware appends user middleware to the default chain
// (recover, tracing, metrics, logging). User middleware run innermost,
// closest to the handler.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(s *Scheduler) { s.mws = append(s.mws, mws...) }
}

// WithSettings sets the settings collaborator consulted by
// RefreshAutoOptimizeSettings.
func WithSettings(settings Settings) Option {
	return func(s *Scheduler) { s.settings = settings }
}

// WithAutoOptimize sets the initial auto-optimize flag. Enabled by
// default; a settings collaborator may override it later.
func WithAutoOptimize(enabled bool) Option {
	return func(s *Scheduler) { s.autoOptimize = enabled }
}
