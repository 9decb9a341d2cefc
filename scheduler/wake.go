package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/quantfold/conductor/job"
)

// wakeLocked is invoked (with s.mu held) after every state change that
// could make a job runnable. If a job is already in flight it does
// nothing. Otherwise it starts the earliest due queued job, or arms a
// one-shot timer for the earliest future one (capped so configuration
// changes are picked up promptly), or marks the scheduler idle.
func (s *Scheduler) wakeLocked() {
	if s.shuttingDown || s.current != nil {
		return
	}
	s.stopWakeTimerLocked()

	now := time.Now()
	var next *record       // earliest due job
	var earliest time.Time // earliest future ScheduledFor
	queuedFuture := false

	for _, rec := range s.order {
		if rec.j.Status != job.StatusQueued {
			continue
		}
		if rec.j.ScheduledFor.After(now) {
			if !queuedFuture || rec.j.ScheduledFor.Before(earliest) {
				earliest = rec.j.ScheduledFor
				queuedFuture = true
			}
			continue
		}
		if next == nil || dueBefore(rec, next) {
			next = rec
		}
	}

	switch {
	case next != nil:
		s.startLocked(next)
	case queuedFuture:
		wait := time.Until(earliest)
		if wait > s.cfg.WakeCheckCap {
			wait = s.cfg.WakeCheckCap
		}
		if wait < 0 {
			wait = 0
		}
		s.wakeTimer = time.AfterFunc(wait, func() {
			s.mu.Lock()
			s.wakeTimer = nil
			s.wakeLocked()
			s.mu.Unlock()
		})
	default:
		// Nothing queued at all: the pipeline is idle.
		s.idleSince = now
		s.armIdleTimerLocked()
	}
}

// dueBefore orders two due records: smaller ScheduledFor first, then
// smaller CreatedAt, then insertion order (strict FIFO within an instant).
func dueBefore(a, b *record) bool {
	if !a.j.ScheduledFor.Equal(b.j.ScheduledFor) {
		return a.j.ScheduledFor.Before(b.j.ScheduledFor)
	}
	if !a.j.CreatedAt.Equal(b.j.CreatedAt) {
		return a.j.CreatedAt.Before(b.j.CreatedAt)
	}
	return a.seq < b.seq
}

// startLocked transitions a queued record to running and launches its
// handler goroutine with a fresh cancellation context. s.mu must be held.
func (s *Scheduler) startLocked(rec *record) {
	now := time.Now()
	rec.j.Attempts++
	rec.j.Status = job.StatusRunning
	rec.j.StartedAt = &now

	ctx, cancel := context.WithCancel(context.Background())
	r := &running{rec: rec, cancel: cancel, done: make(chan struct{})}
	s.current = r

	snap := rec.j.Clone()
	s.wg.Add(1)
	go s.run(ctx, r, snap)
}

// run executes one attempt on its own goroutine: emit started, invoke the
// handler through the middleware chain, then settle the outcome.
func (s *Scheduler) run(ctx context.Context, r *running, snap *job.Job) {
	defer s.wg.Done()
	defer r.cancel()

	s.logger.Info("job started",
		slog.String("job_id", snap.ID.String()),
		slog.String("job_type", string(snap.Type)),
		slog.Int("attempt", snap.Attempts),
		slog.Int("max_retries", snap.MaxRetries),
	)
	s.extensions.EmitJobStarted(ctx, snap)

	handler, _ := s.registry.Handler(snap.Type)
	inv := &job.Invocation{
		Job: *snap,
		Logger: s.logger.With(
			slog.String("job_id", snap.ID.String()),
			slog.String("job_type", string(snap.Type)),
		),
		Pipeline: s,
	}

	var result *job.Result
	terminal := func(ctx context.Context) error {
		res, err := handler(ctx, inv)
		if err != nil {
			return err
		}
		result = res
		return nil
	}

	err := s.chain(ctx, snap, terminal)
	s.settle(r, result, err)
	close(r.done)
}

// settle classifies the outcome of a finished attempt and applies the
// resulting state transition. Cancellation is authoritative: a job whose
// cancellation was requested ends cancelled no matter what the handler
// returned, and any late result is discarded.
func (s *Scheduler) settle(r *running, result *job.Result, handlerErr error) {
	s.mu.Lock()
	rec := r.rec
	now := time.Now()

	var (
		outcome   string
		nextRunAt time.Time
		elapsed   time.Duration
	)
	if rec.j.StartedAt != nil {
		elapsed = now.Sub(*rec.j.StartedAt)
	}

	switch {
	case rec.j.CancelReason != "":
		rec.j.Status = job.StatusCancelled
		rec.j.FinishedAt = &now
		if handlerErr != nil {
			rec.j.LastError = handlerErr.Error()
		} else {
			rec.j.LastError = rec.j.CancelReason
		}
		outcome = "cancelled"

	case handlerErr == nil:
		rec.j.Status = job.StatusSucceeded
		rec.j.FinishedAt = &now
		rec.j.Result = result
		if rec.j.Type == job.TypeOptimize {
			s.lastOptimizeSuccess = now
		}
		outcome = "succeeded"

	case rec.j.Attempts < rec.j.MaxRetries:
		delay := s.bo.Delay(rec.j.Attempts)
		nextRunAt = now.Add(delay)
		rec.j.Status = job.StatusQueued
		rec.j.ScheduledFor = nextRunAt
		rec.j.StartedAt = nil
		rec.j.LastError = handlerErr.Error()
		outcome = "retrying"

	default:
		rec.j.Status = job.StatusFailed
		rec.j.FinishedAt = &now
		rec.j.LastError = handlerErr.Error()
		outcome = "failed"
	}

	snap := rec.j.Clone()
	reason := rec.j.CancelReason
	s.current = nil
	s.mu.Unlock()

	ctx := context.Background()
	switch outcome {
	case "cancelled":
		s.logger.Info("job cancelled",
			slog.String("job_id", snap.ID.String()),
			slog.String("job_type", string(snap.Type)),
			slog.String("reason", reason),
		)
		s.extensions.EmitJobCancelled(ctx, snap, reason)
	case "succeeded":
		s.logger.Info("job succeeded",
			slog.String("job_id", snap.ID.String()),
			slog.String("job_type", string(snap.Type)),
			slog.Duration("elapsed", elapsed),
		)
		s.extensions.EmitJobSucceeded(ctx, snap, elapsed)
	case "retrying":
		s.logger.Warn("job attempt failed, retrying",
			slog.String("job_id", snap.ID.String()),
			slog.String("job_type", string(snap.Type)),
			slog.Int("attempt", snap.Attempts),
			slog.Int("max_retries", snap.MaxRetries),
			slog.Time("next_run_at", nextRunAt),
			slog.String("error", snap.LastError),
		)
		s.extensions.EmitJobRetrying(ctx, snap, snap.Attempts, nextRunAt)
	case "failed":
		s.logger.Error("job failed permanently",
			slog.String("job_id", snap.ID.String()),
			slog.String("job_type", string(snap.Type)),
			slog.Int("attempts", snap.Attempts),
			slog.String("error", snap.LastError),
		)
		s.extensions.EmitJobFailed(ctx, snap, handlerErr)
	}

	// Look for the next job only after the terminal event is out, so
	// subscribers observe transitions in order.
	s.mu.Lock()
	s.wakeLocked()
	s.mu.Unlock()
}

// armIdleTimerLocked arms the idle-maintenance timer. s.mu must be held.
// No timer is armed while auto-optimize is disabled; RefreshAutoOptimize-
// Settings re-arms when it is switched back on.
func (s *Scheduler) armIdleTimerLocked() {
	s.stopIdleTimerLocked()
	if !s.autoOptimize || s.shuttingDown {
		return
	}
	if _, ok := s.registry.Handler(job.TypeOptimize); !ok {
		return
	}
	s.idleTimer = time.AfterFunc(s.idleDelay, s.idleFired)
}

// idleFired runs when the idle timer elapses. It schedules an optimize
// pass only if the scheduler is still idle, auto-optimize is enabled, no
// optimize job is already pending, and none succeeded within the cooldown
// window. Otherwise it re-arms so the opportunity is revisited.
func (s *Scheduler) idleFired() {
	s.mu.Lock()
	s.idleTimer = nil

	if s.shuttingDown || s.current != nil || s.idleSince.IsZero() || !s.autoOptimize {
		s.mu.Unlock()
		return
	}

	for _, rec := range s.order {
		if rec.j.Type == job.TypeOptimize && rec.j.Pending() {
			s.mu.Unlock()
			return
		}
	}

	now := time.Now()
	if !s.lastOptimizeSuccess.IsZero() && now.Sub(s.lastOptimizeSuccess) < s.cfg.OptimizeCooldown {
		// Inside the cooldown window: try again after another idle delay.
		s.armIdleTimerLocked()
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.logger.Info("pipeline idle, scheduling optimize pass",
		slog.Duration("idle_delay", s.idleDelay),
	)
	j, err := s.ScheduleJob(context.Background(), job.TypeOptimize,
		job.WithDescription("idle-triggered parameter optimization"),
		job.WithMetadata(map[string]any{"trigger": "idle"}),
	)
	if err != nil {
		s.logger.Warn("idle optimize scheduling failed", slog.String("error", err.Error()))
		return
	}
	s.extensions.EmitIdleOptimize(context.Background(), j)
}
