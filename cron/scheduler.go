package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	conductor "github.com/quantfold/conductor"
	"github.com/quantfold/conductor/id"
	"github.com/quantfold/conductor/job"
)

// Pipeline is the scheduling surface cron entries fire into.
type Pipeline interface {
	ScheduleJob(ctx context.Context, t job.Type, opts ...job.Option) (*job.Job, error)
	HasPendingJob(match func(*job.Job) bool) bool
}

// Emitter emits cron lifecycle events.
// ext.Registry satisfies this interface via EmitCronFired.
type Emitter interface {
	EmitCronFired(ctx context.Context, entryName string, jobID id.JobID)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithEmitter sets the lifecycle event emitter.
func WithEmitter(e Emitter) SchedulerOption {
	return func(s *Scheduler) { s.emitter = e }
}

// WithClock overrides the time source. Tests use this to make due-time
// evaluation deterministic.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30m".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Scheduler evaluates registered entries on a tick loop and enqueues
// pipeline jobs as entries come due. Conductor runs a single process, so
// there is no leader election: the tick loop is the only firer.
type Scheduler struct {
	pipeline Pipeline
	emitter  Emitter
	logger   *slog.Logger

	tickInterval time.Duration
	now          func() time.Time

	mu      sync.RWMutex
	entries map[string]*Entry // keyed by name

	// parsed caches parsed cron expressions.
	parsedMu sync.RWMutex
	parsed   map[string]cronlib.Schedule

	started  bool
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a Scheduler firing into the given pipeline.
func NewScheduler(pipeline Pipeline, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		pipeline:     pipeline,
		logger:       logger.With("component", "cron"),
		tickInterval: 1 * time.Second,
		now:          func() time.Time { return time.Now().UTC() },
		entries:      make(map[string]*Entry),
		parsed:       make(map[string]cronlib.Schedule),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds an entry. The entry's NextRunAt is computed from now;
// an entry never fires for due times that predate its registration.
func (s *Scheduler) Register(entry *Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[entry.Name]; exists {
		return fmt.Errorf("%w: %q", conductor.ErrEntryExists, entry.Name)
	}

	cp := entry.Clone()
	if cp.ID.IsNil() {
		cp.ID = id.NewCronID()
	}
	sched, err := s.getOrParseSchedule(cp.Schedule)
	if err != nil {
		return err
	}
	next := sched.Next(s.now())
	cp.NextRunAt = &next
	s.entries[cp.Name] = cp

	s.logger.Info("cron entry registered",
		"entry", cp.Name,
		"schedule", cp.Schedule,
		"job_type", string(cp.JobType),
		"next_run_at", next,
	)
	return nil
}

// Remove deletes an entry by name. Returns false if unknown.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; !ok {
		return false
	}
	delete(s.entries, name)
	return true
}

// SetEnabled flips an entry's enabled flag. Re-enabling recomputes
// NextRunAt from now so the entry does not fire for missed due times.
func (s *Scheduler) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %q", conductor.ErrEntryUnknown, name)
	}
	if entry.Enabled == enabled {
		return nil
	}
	entry.Enabled = enabled
	if enabled {
		sched, err := s.getOrParseSchedule(entry.Schedule)
		if err != nil {
			return err
		}
		next := sched.Next(s.now())
		entry.NextRunAt = &next
	}
	s.logger.Info("cron entry toggled", "entry", name, "enabled", enabled)
	return nil
}

// Entry returns a copy of the named entry.
func (s *Scheduler) Entry(name string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[name]
	if !ok {
		return nil, false
	}
	return entry.Clone(), true
}

// Entries returns copies of all registered entries.
func (s *Scheduler) Entries() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry.Clone())
	}
	return out
}

// Start launches the tick loop. Starting twice returns
// conductor.ErrAlreadyRun; there is never more than one tick loop.
func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return conductor.ErrAlreadyRun
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("cron scheduler started", "tick_interval", s.tickInterval)
	return nil
}

// Stop signals the tick loop to stop and waits for it to finish.
func (s *Scheduler) Stop(_ context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.logger.Info("cron scheduler stopped")
	return nil
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Tick(context.Background())
		}
	}
}

// Tick evaluates all entries once. Exported so tests can drive the
// scheduler without the tick goroutine.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*Entry
	for _, entry := range s.entries {
		if !entry.Enabled {
			continue
		}
		if entry.NextRunAt == nil || entry.NextRunAt.After(now) {
			continue
		}
		due = append(due, entry)
	}
	s.mu.Unlock()

	for _, entry := range due {
		s.fireEntry(ctx, entry, now)
	}
}

// fireEntry enqueues the entry's job type, or skips the run when a job
// of that type is already pending. Either way the entry advances to its
// next due time so a long-running job does not pile up fires.
func (s *Scheduler) fireEntry(ctx context.Context, entry *Entry, now time.Time) {
	var jobID id.JobID
	jobType := entry.JobType
	skipped := s.pipeline.HasPendingJob(func(j *job.Job) bool { return j.Type == jobType })

	if !skipped {
		opts := []job.Option{
			job.WithDescription(entry.Description),
			job.WithMetadata(map[string]any{"trigger": "cron", "cron_entry": entry.Name}),
		}
		if entry.Metadata != nil {
			opts = append(opts, job.WithMetadata(entry.Metadata))
		}
		j, err := s.pipeline.ScheduleJob(ctx, entry.JobType, opts...)
		if err != nil {
			s.logger.Error("cron enqueue failed",
				"entry", entry.Name,
				"job_type", string(entry.JobType),
				"error", err,
			)
			s.advance(entry, now)
			return
		}
		jobID = j.ID
	}

	s.mu.Lock()
	if skipped {
		t := now
		entry.LastSkipped = &t
	} else {
		t := now
		entry.LastRunAt = &t
	}
	s.mu.Unlock()
	s.advance(entry, now)

	if skipped {
		s.logger.Info("cron fire skipped, job type already pending",
			"entry", entry.Name,
			"job_type", string(entry.JobType),
		)
		return
	}

	if s.emitter != nil {
		s.emitter.EmitCronFired(ctx, entry.Name, jobID)
	}
	s.logger.Info("cron fired",
		"entry", entry.Name,
		"job_type", string(entry.JobType),
		"job_id", jobID.String(),
	)
}

// advance moves the entry's NextRunAt past now.
func (s *Scheduler) advance(entry *Entry, now time.Time) {
	sched, err := s.getOrParseSchedule(entry.Schedule)
	if err != nil {
		// Validate covered this at registration; disable on the off
		// chance the expression went bad.
		s.logger.Error("cron schedule unparsable, disabling entry",
			"entry", entry.Name,
			"schedule", entry.Schedule,
			"error", err,
		)
		s.mu.Lock()
		entry.Enabled = false
		s.mu.Unlock()
		return
	}
	next := sched.Next(now)
	s.mu.Lock()
	entry.NextRunAt = &next
	s.mu.Unlock()
}

// getOrParseSchedule caches parsed cron expressions.
func (s *Scheduler) getOrParseSchedule(expr string) (cronlib.Schedule, error) {
	s.parsedMu.RLock()
	sched, ok := s.parsed[expr]
	s.parsedMu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	s.parsedMu.Lock()
	s.parsed[expr] = sched
	s.parsedMu.Unlock()
	return sched, nil
}
