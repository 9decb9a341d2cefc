package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	conductor "github.com/quantfold/conductor"
	"github.com/quantfold/conductor/backoff"
	"github.com/quantfold/conductor/ext"
	"github.com/quantfold/conductor/id"
	"github.com/quantfold/conductor/job"
	"github.com/quantfold/conductor/middleware"
)

// Compile-time check: the scheduler is the chaining handle handlers use.
var _ job.Chainer = (*Scheduler)(nil)

// Settings is the external settings collaborator. The scheduler reads the
// auto-optimize flag and idle delay through it whenever the embedding
// application calls RefreshAutoOptimizeSettings.
type Settings interface {
	// AutoOptimize returns whether idle maintenance is enabled and how
	// long the scheduler must be idle before scheduling it.
	AutoOptimize(ctx context.Context) (enabled bool, idleDelay time.Duration, err error)
}

// record wraps a job with its insertion sequence, the final FIFO tie-break
// for jobs created at the same instant.
type record struct {
	j   *job.Job
	seq uint64
}

// running tracks the single in-flight job.
type running struct {
	rec    *record
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler coordinates the pipeline: it owns the record table, executes
// one job at a time, retries transient failures with backoff, preempts
// running optimize passes, and auto-schedules maintenance when idle.
type Scheduler struct {
	cfg        conductor.Config
	registry   job.Registry
	bo         backoff.Strategy
	extensions *ext.Registry
	mws        []middleware.Middleware
	chain      middleware.Middleware
	logger     *slog.Logger
	settings   Settings

	mu      sync.Mutex
	records map[string]*record
	order   []*record // insertion order, never reordered or truncated
	seq     uint64
	current *running

	wakeTimer *time.Timer
	idleTimer *time.Timer
	idleSince time.Time // zero while anything is queued or running

	autoOptimize        bool
	idleDelay           time.Duration
	lastOptimizeSuccess time.Time

	shuttingDown bool
	wg           sync.WaitGroup
}

// New creates a Scheduler with the given handler registry. The registry is
// copied; it is fixed for the scheduler's lifetime. The scheduler starts
// idle with its idle-maintenance timer armed.
func New(registry job.Registry, opts ...Option) (*Scheduler, error) {
	if err := registry.Validate(); err != nil {
		return nil, err
	}

	reg := make(job.Registry, len(registry))
	for t, h := range registry {
		reg[t] = h
	}

	s := &Scheduler{
		cfg:          conductor.DefaultConfig(),
		registry:     reg,
		logger:       slog.Default(),
		records:      make(map[string]*record),
		autoOptimize: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cfg = s.cfg.Normalized()

	if s.bo == nil {
		s.bo = backoff.NewExponential(s.cfg.RetryInitialDelay, s.cfg.RetryMaxDelay)
	}
	if s.extensions == nil {
		s.extensions = ext.NewRegistry(s.logger)
	}
	s.idleDelay = s.cfg.IdleDelay

	defaultMws := []middleware.Middleware{
		middleware.Recover(s.logger),
		middleware.Tracing(),
		middleware.Metrics(),
		middleware.Logging(s.logger),
	}
	s.chain = middleware.Chain(append(defaultMws, s.mws...)...)

	s.mu.Lock()
	s.idleSince = time.Now()
	s.armIdleTimerLocked()
	s.mu.Unlock()

	return s, nil
}

// Extensions returns the scheduler's extension registry.
func (s *Scheduler) Extensions() *ext.Registry { return s.extensions }

// ScheduleJob creates a queued job of the given type. It fails fast with
// ErrNoHandler when the type has no registered handler. Scheduling any
// non-optimize type preempts a currently running optimize pass.
func (s *Scheduler) ScheduleJob(ctx context.Context, t job.Type, opts ...job.Option) (*job.Job, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", conductor.ErrUnknownType, t)
	}
	if _, ok := s.registry.Handler(t); !ok {
		return nil, fmt.Errorf("%w: %q", conductor.ErrNoHandler, t)
	}

	var o job.Options
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return nil, conductor.ErrShutdown
	}

	now := time.Now()
	startAt := o.StartAt
	if startAt.Before(now) {
		startAt = now
	}
	maxRetries := o.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.cfg.DefaultMaxRetries
	}

	s.seq++
	rec := &record{
		j: &job.Job{
			ID:           id.NewJobID(),
			Type:         t,
			Status:       job.StatusQueued,
			ScheduledFor: startAt,
			CreatedAt:    now,
			MaxRetries:   maxRetries,
			Description:  o.Description,
			Metadata:     o.Metadata,
		},
		seq: s.seq,
	}
	s.records[rec.j.ID.String()] = rec
	s.order = append(s.order, rec)

	// Any activity resets idleness.
	s.idleSince = time.Time{}
	s.stopIdleTimerLocked()

	// Pipeline work preempts background optimization.
	if t != job.TypeOptimize && s.current != nil && s.current.rec.j.Type == job.TypeOptimize {
		s.requestCancelLocked(s.current.rec, fmt.Sprintf("preempted by %s job", t))
	}

	snap := rec.j.Clone()
	s.wakeLocked()
	s.mu.Unlock()

	s.logger.Info("job scheduled",
		slog.String("job_id", snap.ID.String()),
		slog.String("job_type", string(snap.Type)),
		slog.Time("scheduled_for", snap.ScheduledFor),
		slog.Int("max_retries", snap.MaxRetries),
	)
	s.extensions.EmitJobScheduled(ctx, snap)

	return snap, nil
}

// CancelJob cancels a job. A queued job transitions to cancelled
// immediately; a running job has cancellation signalled to its handler and
// settles as cancelled once the handler observes the signal. Returns false
// for unknown or already-terminal jobs.
func (s *Scheduler) CancelJob(ctx context.Context, jobID id.JobID, reason string) bool {
	s.mu.Lock()
	rec, ok := s.records[jobID.String()]
	if !ok || rec.j.Status.Terminal() {
		s.mu.Unlock()
		return false
	}

	switch rec.j.Status {
	case job.StatusQueued:
		now := time.Now()
		rec.j.Status = job.StatusCancelled
		rec.j.CancelReason = reason
		rec.j.CancelRequestedAt = &now
		rec.j.FinishedAt = &now
		rec.j.LastError = reason
		// The cancelled job may have been the next wake target.
		if s.current == nil && !s.shuttingDown {
			s.wakeLocked()
		}
		snap := rec.j.Clone()
		s.mu.Unlock()

		s.logger.Info("queued job cancelled",
			slog.String("job_id", snap.ID.String()),
			slog.String("job_type", string(snap.Type)),
			slog.String("reason", reason),
		)
		s.extensions.EmitJobCancelled(ctx, snap, reason)
		return true

	case job.StatusRunning:
		s.requestCancelLocked(rec, reason)
		snap := rec.j.Clone()
		s.mu.Unlock()

		s.logger.Info("cancellation requested for running job",
			slog.String("job_id", snap.ID.String()),
			slog.String("job_type", string(snap.Type)),
			slog.String("reason", reason),
		)
		return true

	default:
		s.mu.Unlock()
		return false
	}
}

// requestCancelLocked records the cancellation intent and signals the
// handler's context. The first reason wins; later requests only re-signal.
func (s *Scheduler) requestCancelLocked(rec *record, reason string) {
	if rec.j.CancelReason == "" {
		now := time.Now()
		rec.j.CancelReason = reason
		rec.j.CancelRequestedAt = &now
	}
	if s.current != nil && s.current.rec == rec {
		s.current.cancel()
	}
}

// CancelJobsByType cancels every queued or running job of the given type.
// Returns how many jobs were affected.
func (s *Scheduler) CancelJobsByType(ctx context.Context, t job.Type, reason string) int {
	return s.cancelMatching(ctx, reason, func(j *job.Job) bool { return j.Type == t })
}

// CancelAllJobs cancels every queued or running job.
// Returns how many jobs were affected.
func (s *Scheduler) CancelAllJobs(ctx context.Context, reason string) int {
	return s.cancelMatching(ctx, reason, func(*job.Job) bool { return true })
}

func (s *Scheduler) cancelMatching(ctx context.Context, reason string, match func(*job.Job) bool) int {
	s.mu.Lock()
	var ids []id.JobID
	for _, rec := range s.order {
		if rec.j.Pending() && match(rec.j) {
			ids = append(ids, rec.j.ID)
		}
	}
	s.mu.Unlock()

	count := 0
	for _, jobID := range ids {
		if s.CancelJob(ctx, jobID, reason) {
			count++
		}
	}
	return count
}

// HasPendingJob reports whether any queued or running job matches. The
// predicate receives snapshots; mutating them has no effect.
func (s *Scheduler) HasPendingJob(match func(*job.Job) bool) bool {
	s.mu.Lock()
	var pending []*job.Job
	for _, rec := range s.order {
		if rec.j.Pending() {
			pending = append(pending, rec.j.Clone())
		}
	}
	s.mu.Unlock()

	for _, j := range pending {
		if match(j) {
			return true
		}
	}
	return false
}

// RefreshAutoOptimizeSettings re-reads the settings collaborator and
// re-arms the idle timer when the auto-optimize flag or idle delay
// changed. The embedding application calls this whenever settings change.
func (s *Scheduler) RefreshAutoOptimizeSettings(ctx context.Context) error {
	if s.settings == nil {
		return nil
	}
	enabled, delay, err := s.settings.AutoOptimize(ctx)
	if err != nil {
		return fmt.Errorf("refresh auto-optimize settings: %w", err)
	}
	if delay <= 0 {
		delay = s.cfg.IdleDelay
	}

	s.mu.Lock()
	changed := enabled != s.autoOptimize || delay != s.idleDelay
	s.autoOptimize = enabled
	s.idleDelay = delay
	if changed {
		// Never leave a stale timer running with old parameters.
		s.stopIdleTimerLocked()
		if !s.idleSince.IsZero() && s.current == nil && !s.shuttingDown {
			s.armIdleTimerLocked()
		}
	}
	s.mu.Unlock()

	if changed {
		s.logger.Info("auto-optimize settings refreshed",
			slog.Bool("enabled", enabled),
			slog.Duration("idle_delay", delay),
		)
	}
	return nil
}

// Shutdown cancels the active job with a shutdown reason, waits for it to
// settle, clears all timers, and notifies Shutdown extensions. Safe to
// call when idle; ScheduleJob fails with ErrShutdown afterwards.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return nil
	}
	s.shuttingDown = true
	s.stopWakeTimerLocked()
	s.stopIdleTimerLocked()

	var done chan struct{}
	if s.current != nil {
		s.requestCancelLocked(s.current.rec, "scheduler shutdown")
		done = s.current.done
	}
	s.mu.Unlock()

	if done != nil {
		timeout := s.cfg.ShutdownTimeout
		if dl, ok := ctx.Deadline(); ok {
			timeout = time.Until(dl)
		}
		select {
		case <-done:
		case <-time.After(timeout):
			s.logger.Warn("shutdown timed out waiting for in-flight job to settle")
		case <-ctx.Done():
		}
	}

	// Settle goroutine bookkeeping finishes quickly once done is closed.
	waited := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(time.Second):
	}

	s.logger.Info("scheduler shut down")
	s.extensions.EmitShutdown(ctx)
	return nil
}

func (s *Scheduler) stopWakeTimerLocked() {
	if s.wakeTimer != nil {
		s.wakeTimer.Stop()
		s.wakeTimer = nil
	}
}

func (s *Scheduler) stopIdleTimerLocked() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}
