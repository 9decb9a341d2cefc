package scheduler_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	conductor "github.com/quantfold/conductor"
	"github.com/quantfold/conductor/backoff"
	"github.com/quantfold/conductor/ext"
	"github.com/quantfold/conductor/id"
	"github.com/quantfold/conductor/job"
	"github.com/quantfold/conductor/middleware"
	"github.com/quantfold/conductor/scheduler"
)

func testConfig() conductor.Config {
	return conductor.Config{
		RetryInitialDelay: 5 * time.Millisecond,
		RetryMaxDelay:     20 * time.Millisecond,
		DefaultMaxRetries: 3,
		WakeCheckCap:      25 * time.Millisecond,
		IdleDelay:         time.Hour,
		OptimizeCooldown:  time.Hour,
		ShutdownTimeout:   2 * time.Second,
	}
}

func newTestScheduler(t *testing.T, reg job.Registry, opts ...scheduler.Option) *scheduler.Scheduler {
	t.Helper()
	opts = append([]scheduler.Option{
		scheduler.WithConfig(testConfig()),
		scheduler.WithAutoOptimize(false),
	}, opts...)
	s, err := scheduler.New(reg, opts...)
	if err != nil {
		t.Fatalf("scheduler.New error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

// waitFor polls until cond returns true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(timeout)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", msg)
		default:
			time.Sleep(2 * time.Millisecond)
		}
	}
}

func waitTerminal(t *testing.T, s *scheduler.Scheduler, jobID id.JobID) *job.Job {
	t.Helper()
	var got *job.Job
	waitFor(t, 5*time.Second, func() bool {
		j, err := s.GetJob(jobID)
		if err != nil {
			return false
		}
		got = j
		return j.Status.Terminal()
	}, "job to settle")
	return got
}

func okHandler(_ context.Context, _ *job.Invocation) (*job.Result, error) {
	return &job.Result{Message: "ok"}, nil
}

func TestScheduler_RunsJobToSuccess(t *testing.T) {
	reg := job.Registry{job.TypeSync: okHandler}
	s := newTestScheduler(t, reg)

	j, err := s.ScheduleJob(context.Background(), job.TypeSync)
	if err != nil {
		t.Fatalf("schedule error: %v", err)
	}
	if j.Status != job.StatusQueued {
		t.Fatalf("status = %q, want %q", j.Status, job.StatusQueued)
	}

	got := waitTerminal(t, s, j.ID)
	if got.Status != job.StatusSucceeded {
		t.Errorf("status = %q, want %q", got.Status, job.StatusSucceeded)
	}
	if got.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Attempts)
	}
	if got.Result == nil || got.Result.Message != "ok" {
		t.Errorf("result = %+v, want message %q", got.Result, "ok")
	}
	if got.StartedAt == nil || got.FinishedAt == nil {
		t.Error("expected StartedAt and FinishedAt to be set")
	}
}

func TestScheduler_SingleFlight(t *testing.T) {
	var inFlight, maxSeen atomic.Int32
	handler := func(ctx context.Context, _ *job.Invocation) (*job.Result, error) {
		n := inFlight.Add(1)
		for {
			m := maxSeen.Load()
			if n <= m || maxSeen.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	}
	reg := job.Registry{job.TypeCompile: handler}
	s := newTestScheduler(t, reg)

	ids := make([]id.JobID, 0, 4)
	for i := 0; i < 4; i++ {
		j, err := s.ScheduleJob(context.Background(), job.TypeCompile)
		if err != nil {
			t.Fatalf("schedule error: %v", err)
		}
		ids = append(ids, j.ID)
	}
	for _, jobID := range ids {
		got := waitTerminal(t, s, jobID)
		if got.Status != job.StatusSucceeded {
			t.Errorf("job %s status = %q, want succeeded", jobID, got.Status)
		}
	}
	if maxSeen.Load() != 1 {
		t.Errorf("max concurrent handlers = %d, want 1", maxSeen.Load())
	}
}

func TestScheduler_RunsInSchedulingOrder(t *testing.T) {
	var mu sync.Mutex
	var ran []string
	handler := func(_ context.Context, inv *job.Invocation) (*job.Result, error) {
		mu.Lock()
		ran = append(ran, inv.Job.ID.String())
		mu.Unlock()
		return nil, nil
	}
	reg := job.Registry{job.TypeGenerateSignals: handler}
	s := newTestScheduler(t, reg)

	var want []string
	for i := 0; i < 3; i++ {
		j, err := s.ScheduleJob(context.Background(), job.TypeGenerateSignals)
		if err != nil {
			t.Fatalf("schedule error: %v", err)
		}
		want = append(want, j.ID.String())
	}
	for _, idStr := range want {
		waitTerminal(t, s, id.MustParse(idStr))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ran) != len(want) {
		t.Fatalf("ran %d jobs, want %d", len(ran), len(want))
	}
	for i := range want {
		if ran[i] != want[i] {
			t.Errorf("position %d: ran %s, want %s", i, ran[i], want[i])
		}
	}
}

func TestScheduler_RetriesThenFails(t *testing.T) {
	var attempts atomic.Int32
	handler := func(_ context.Context, _ *job.Invocation) (*job.Result, error) {
		attempts.Add(1)
		return nil, errors.New("boom")
	}
	reg := job.Registry{job.TypeBacktest: handler}

	tracker := &trackingExt{}
	extensions := ext.NewRegistry(nil)
	extensions.Register(tracker)
	s := newTestScheduler(t, reg, scheduler.WithExtensions(extensions))

	j, err := s.ScheduleJob(context.Background(), job.TypeBacktest, job.WithMaxRetries(2))
	if err != nil {
		t.Fatalf("schedule error: %v", err)
	}

	got := waitTerminal(t, s, j.ID)
	if got.Status != job.StatusFailed {
		t.Errorf("status = %q, want %q", got.Status, job.StatusFailed)
	}
	if got.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", got.Attempts)
	}
	if got.LastError != "boom" {
		t.Errorf("lastError = %q, want %q", got.LastError, "boom")
	}
	if attempts.Load() != 2 {
		t.Errorf("handler invoked %d times, want 2", attempts.Load())
	}
	if n := tracker.retries.Load(); n != 1 {
		t.Errorf("OnJobRetrying fired %d times, want 1", n)
	}
	if !tracker.failed.Load() {
		t.Error("expected OnJobFailed to fire")
	}
	if tracker.succeeded.Load() {
		t.Error("OnJobSucceeded fired for a failed job")
	}
}

func TestScheduler_BackoffGrowsPerAttempt(t *testing.T) {
	bo := &recordingBackoff{delay: 3 * time.Millisecond}
	var calls atomic.Int32
	handler := func(_ context.Context, _ *job.Invocation) (*job.Result, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("transient")
		}
		return nil, nil
	}
	reg := job.Registry{job.TypeReconcile: handler}
	s := newTestScheduler(t, reg, scheduler.WithBackoff(bo))

	j, err := s.ScheduleJob(context.Background(), job.TypeReconcile, job.WithMaxRetries(5))
	if err != nil {
		t.Fatalf("schedule error: %v", err)
	}

	got := waitTerminal(t, s, j.ID)
	if got.Status != job.StatusSucceeded {
		t.Fatalf("status = %q, want succeeded", got.Status)
	}
	if got.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", got.Attempts)
	}

	bo.mu.Lock()
	asked := append([]int(nil), bo.asked...)
	bo.mu.Unlock()
	if len(asked) != 2 || asked[0] != 1 || asked[1] != 2 {
		t.Errorf("backoff asked for attempts %v, want [1 2]", asked)
	}
}

func TestScheduler_CancelQueuedJob(t *testing.T) {
	reg := job.Registry{job.TypePlan: okHandler}
	s := newTestScheduler(t, reg)

	j, err := s.ScheduleJob(context.Background(), job.TypePlan,
		job.WithStartAt(time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("schedule error: %v", err)
	}

	if !s.CancelJob(context.Background(), j.ID, "operator request") {
		t.Fatal("CancelJob returned false for a queued job")
	}

	got, err := s.GetJob(j.ID)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if got.Status != job.StatusCancelled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}
	if got.CancelReason != "operator request" {
		t.Errorf("cancelReason = %q, want %q", got.CancelReason, "operator request")
	}
	if got.Attempts != 0 {
		t.Errorf("attempts = %d, want 0: job must never have run", got.Attempts)
	}

	// Cancelling a terminal job is a no-op.
	if s.CancelJob(context.Background(), j.ID, "again") {
		t.Error("CancelJob returned true for a terminal job")
	}
}

func TestScheduler_CancelOverridesHandlerSuccess(t *testing.T) {
	started := make(chan struct{})
	handler := func(ctx context.Context, _ *job.Invocation) (*job.Result, error) {
		close(started)
		<-ctx.Done()
		// Handler finishes cleanly after observing cancellation; the
		// outcome must still be cancelled and this result discarded.
		return &job.Result{Message: "late"}, nil
	}
	reg := job.Registry{job.TypeDispatch: handler}
	s := newTestScheduler(t, reg)

	j, err := s.ScheduleJob(context.Background(), job.TypeDispatch)
	if err != nil {
		t.Fatalf("schedule error: %v", err)
	}
	<-started

	if !s.CancelJob(context.Background(), j.ID, "halt trading") {
		t.Fatal("CancelJob returned false for a running job")
	}

	got := waitTerminal(t, s, j.ID)
	if got.Status != job.StatusCancelled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}
	if got.Result != nil {
		t.Errorf("result = %+v, want nil: late results must be discarded", got.Result)
	}
	if got.CancelReason != "halt trading" {
		t.Errorf("cancelReason = %q, want %q", got.CancelReason, "halt trading")
	}
}

func TestScheduler_PipelineWorkPreemptsOptimize(t *testing.T) {
	optStarted := make(chan struct{})
	optimize := func(ctx context.Context, _ *job.Invocation) (*job.Result, error) {
		close(optStarted)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	reg := job.Registry{
		job.TypeOptimize: optimize,
		job.TypeSync:     okHandler,
	}
	s := newTestScheduler(t, reg)

	opt, err := s.ScheduleJob(context.Background(), job.TypeOptimize)
	if err != nil {
		t.Fatalf("schedule optimize error: %v", err)
	}
	<-optStarted

	sync, err := s.ScheduleJob(context.Background(), job.TypeSync)
	if err != nil {
		t.Fatalf("schedule sync error: %v", err)
	}

	gotOpt := waitTerminal(t, s, opt.ID)
	if gotOpt.Status != job.StatusCancelled {
		t.Errorf("optimize status = %q, want cancelled", gotOpt.Status)
	}
	if !strings.Contains(gotOpt.CancelReason, "preempted") {
		t.Errorf("optimize cancelReason = %q, want preemption reason", gotOpt.CancelReason)
	}

	gotSync := waitTerminal(t, s, sync.ID)
	if gotSync.Status != job.StatusSucceeded {
		t.Errorf("sync status = %q, want succeeded", gotSync.Status)
	}
}

func TestScheduler_OptimizeDoesNotPreemptOptimize(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	optimize := func(ctx context.Context, _ *job.Invocation) (*job.Result, error) {
		once.Do(func() { close(started) })
		select {
		case <-release:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	reg := job.Registry{job.TypeOptimize: optimize}
	s := newTestScheduler(t, reg)

	first, err := s.ScheduleJob(context.Background(), job.TypeOptimize)
	if err != nil {
		t.Fatalf("schedule error: %v", err)
	}
	<-started

	if _, err := s.ScheduleJob(context.Background(), job.TypeOptimize); err != nil {
		t.Fatalf("schedule second optimize error: %v", err)
	}

	// The first optimize must still be running, not preempted.
	cur := s.CurrentJob()
	if cur == nil || cur.ID != first.ID {
		t.Fatalf("current job = %+v, want first optimize still running", cur)
	}
	close(release)

	got := waitTerminal(t, s, first.ID)
	if got.Status != job.StatusSucceeded {
		t.Errorf("first optimize status = %q, want succeeded", got.Status)
	}
}

func TestScheduler_FutureJobWaitsForScheduledTime(t *testing.T) {
	reg := job.Registry{job.TypeTrain: okHandler}
	s := newTestScheduler(t, reg)

	start := time.Now()
	j, err := s.ScheduleJob(context.Background(), job.TypeTrain,
		job.WithStartAt(start.Add(60*time.Millisecond)))
	if err != nil {
		t.Fatalf("schedule error: %v", err)
	}

	time.Sleep(25 * time.Millisecond)
	got, err := s.GetJob(j.ID)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if got.Status != job.StatusQueued {
		t.Fatalf("status before scheduled time = %q, want queued", got.Status)
	}

	final := waitTerminal(t, s, j.ID)
	if final.Status != job.StatusSucceeded {
		t.Errorf("status = %q, want succeeded", final.Status)
	}
	if final.StartedAt == nil || final.StartedAt.Sub(start) < 55*time.Millisecond {
		t.Errorf("job started at %v, want no earlier than scheduled time", final.StartedAt)
	}
}

func TestScheduler_IdleSchedulesOptimize(t *testing.T) {
	cfg := testConfig()
	cfg.IdleDelay = 20 * time.Millisecond

	var optimized atomic.Int32
	reg := job.Registry{
		job.TypeOptimize: func(_ context.Context, inv *job.Invocation) (*job.Result, error) {
			if inv.Job.Metadata["trigger"] != "idle" {
				t.Errorf("trigger metadata = %v, want %q", inv.Job.Metadata["trigger"], "idle")
			}
			optimized.Add(1)
			return nil, nil
		},
	}
	s := newTestScheduler(t, reg,
		scheduler.WithConfig(cfg),
		scheduler.WithAutoOptimize(true),
	)

	waitFor(t, 5*time.Second, func() bool { return optimized.Load() == 1 }, "idle optimize pass")

	// The success cooldown suppresses a second pass even though the
	// scheduler goes idle again.
	time.Sleep(80 * time.Millisecond)
	if n := optimized.Load(); n != 1 {
		t.Errorf("optimize ran %d times within cooldown, want 1", n)
	}
	recent := s.RecentJobs(0)
	if len(recent) != 1 {
		t.Errorf("recorded %d jobs, want exactly the single optimize pass", len(recent))
	}
}

func TestScheduler_ScheduleRejections(t *testing.T) {
	reg := job.Registry{job.TypeSync: okHandler}
	s := newTestScheduler(t, reg)

	if _, err := s.ScheduleJob(context.Background(), job.Type("launder")); !errors.Is(err, conductor.ErrUnknownType) {
		t.Errorf("unknown type error = %v, want ErrUnknownType", err)
	}
	if _, err := s.ScheduleJob(context.Background(), job.TypeBacktest); !errors.Is(err, conductor.ErrNoHandler) {
		t.Errorf("unregistered type error = %v, want ErrNoHandler", err)
	}
}

func TestScheduler_ShutdownCancelsActiveJob(t *testing.T) {
	started := make(chan struct{})
	handler := func(ctx context.Context, _ *job.Invocation) (*job.Result, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	reg := job.Registry{job.TypeCompile: handler}

	s, err := scheduler.New(reg,
		scheduler.WithConfig(testConfig()),
		scheduler.WithAutoOptimize(false),
	)
	if err != nil {
		t.Fatalf("scheduler.New error: %v", err)
	}

	j, err := s.ScheduleJob(context.Background(), job.TypeCompile)
	if err != nil {
		t.Fatalf("schedule error: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}

	got, err := s.GetJob(j.ID)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if got.Status != job.StatusCancelled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}
	if got.CancelReason != "scheduler shutdown" {
		t.Errorf("cancelReason = %q, want %q", got.CancelReason, "scheduler shutdown")
	}

	if _, err := s.ScheduleJob(context.Background(), job.TypeCompile); !errors.Is(err, conductor.ErrShutdown) {
		t.Errorf("schedule after shutdown error = %v, want ErrShutdown", err)
	}
}

func TestScheduler_HandlerChainsFollowup(t *testing.T) {
	var chained atomic.Bool
	reg := job.Registry{
		job.TypeGenerateSignals: func(ctx context.Context, inv *job.Invocation) (*job.Result, error) {
			if !inv.Pipeline.HasPendingJob(func(j *job.Job) bool { return j.Type == job.TypePlan }) {
				if _, err := inv.Pipeline.ScheduleJob(ctx, job.TypePlan); err != nil {
					return nil, err
				}
			}
			return nil, nil
		},
		job.TypePlan: func(_ context.Context, _ *job.Invocation) (*job.Result, error) {
			chained.Store(true)
			return nil, nil
		},
	}
	s := newTestScheduler(t, reg)

	if _, err := s.ScheduleJob(context.Background(), job.TypeGenerateSignals); err != nil {
		t.Fatalf("schedule error: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return chained.Load() }, "chained plan job")
}

func TestScheduler_Queries(t *testing.T) {
	reg := job.Registry{job.TypeSync: okHandler}
	s := newTestScheduler(t, reg)

	if cur := s.CurrentJob(); cur != nil {
		t.Errorf("CurrentJob on idle scheduler = %+v, want nil", cur)
	}
	if _, err := s.GetJob(id.NewJobID()); !errors.Is(err, conductor.ErrJobNotFound) {
		t.Errorf("GetJob unknown error = %v, want ErrJobNotFound", err)
	}

	later, err := s.ScheduleJob(context.Background(), job.TypeSync,
		job.WithStartAt(time.Now().Add(2*time.Hour)))
	if err != nil {
		t.Fatalf("schedule error: %v", err)
	}
	sooner, err := s.ScheduleJob(context.Background(), job.TypeSync,
		job.WithStartAt(time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("schedule error: %v", err)
	}

	queued := s.QueuedJobs()
	if len(queued) != 2 {
		t.Fatalf("queued = %d jobs, want 2", len(queued))
	}
	if queued[0].ID != sooner.ID || queued[1].ID != later.ID {
		t.Error("QueuedJobs not in execution order")
	}

	recent := s.RecentJobs(1)
	if len(recent) != 1 || recent[0].ID != sooner.ID {
		t.Error("RecentJobs(1) did not return the newest job")
	}

	if !s.HasPendingJob(func(j *job.Job) bool { return j.Type == job.TypeSync }) {
		t.Error("HasPendingJob = false with queued sync jobs")
	}
	if s.HasPendingJob(func(j *job.Job) bool { return j.Type == job.TypeTrain }) {
		t.Error("HasPendingJob = true for a type never scheduled")
	}
}

func TestScheduler_CancelJobsByType(t *testing.T) {
	reg := job.Registry{
		job.TypeSync:     okHandler,
		job.TypeBacktest: okHandler,
	}
	s := newTestScheduler(t, reg)

	for i := 0; i < 2; i++ {
		if _, err := s.ScheduleJob(context.Background(), job.TypeBacktest,
			job.WithStartAt(time.Now().Add(time.Hour))); err != nil {
			t.Fatalf("schedule error: %v", err)
		}
	}
	keep, err := s.ScheduleJob(context.Background(), job.TypeSync,
		job.WithStartAt(time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("schedule error: %v", err)
	}

	if n := s.CancelJobsByType(context.Background(), job.TypeBacktest, "superseded"); n != 2 {
		t.Errorf("cancelled %d jobs, want 2", n)
	}
	got, err := s.GetJob(keep.ID)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	if got.Status != job.StatusQueued {
		t.Errorf("sync job status = %q, want queued (untouched)", got.Status)
	}
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// recordingBackoff returns a fixed delay and records which attempt
// numbers were asked for.
type recordingBackoff struct {
	delay time.Duration
	mu    sync.Mutex
	asked []int
}

func (b *recordingBackoff) Delay(attempt int) time.Duration {
	b.mu.Lock()
	b.asked = append(b.asked, attempt)
	b.mu.Unlock()
	return b.delay
}

var _ backoff.Strategy = (*recordingBackoff)(nil)

// trackingExt records which lifecycle hooks fired.
type trackingExt struct {
	retries   atomic.Int32
	failed    atomic.Bool
	succeeded atomic.Bool
}

func (e *trackingExt) Name() string { return "tracker" }

func (e *trackingExt) OnJobRetrying(_ context.Context, _ *job.Job, _ int, _ time.Time) error {
	e.retries.Add(1)
	return nil
}

func (e *trackingExt) OnJobFailed(_ context.Context, _ *job.Job, _ error) error {
	e.failed.Store(true)
	return nil
}

func (e *trackingExt) OnJobSucceeded(_ context.Context, _ *job.Job, _ time.Duration) error {
	e.succeeded.Store(true)
	return nil
}

// countingLogHandler tallies slog records by message.
type countingLogHandler struct {
	mu     sync.Mutex
	counts map[string]int
}

func (h *countingLogHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *countingLogHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	h.counts[r.Message]++
	h.mu.Unlock()
	return nil
}

func (h *countingLogHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *countingLogHandler) WithGroup(string) slog.Handler      { return h }

func (h *countingLogHandler) count(msg string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[msg]
}

func TestScheduler_MiddlewareChainRunsOncePerAttempt(t *testing.T) {
	logs := &countingLogHandler{counts: make(map[string]int)}
	var userRuns atomic.Int32
	counting := func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		userRuns.Add(1)
		return next(ctx)
	}

	reg := job.Registry{job.TypeSync: okHandler}
	s := newTestScheduler(t, reg,
		scheduler.WithLogger(slog.New(logs)),
		scheduler.WithMiddleware(counting),
	)

	j, err := s.ScheduleJob(context.Background(), job.TypeSync)
	if err != nil {
		t.Fatalf("schedule error: %v", err)
	}
	got := waitTerminal(t, s, j.ID)
	if got.Status != job.StatusSucceeded {
		t.Fatalf("status = %q, want %q", got.Status, job.StatusSucceeded)
	}

	if n := logs.count("job attempt started"); n != 1 {
		t.Errorf("%q logged %d times for one attempt, want 1", "job attempt started", n)
	}
	if n := logs.count("job attempt completed"); n != 1 {
		t.Errorf("%q logged %d times for one attempt, want 1", "job attempt completed", n)
	}
	if n := userRuns.Load(); n != 1 {
		t.Errorf("appended middleware ran %d times, want 1", n)
	}
}

// fakeSettings is a mutable settings collaborator.
type fakeSettings struct {
	mu      sync.Mutex
	enabled bool
	delay   time.Duration
}

func (f *fakeSettings) set(enabled bool, delay time.Duration) {
	f.mu.Lock()
	f.enabled = enabled
	f.delay = delay
	f.mu.Unlock()
}

func (f *fakeSettings) AutoOptimize(context.Context) (bool, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled, f.delay, nil
}

var _ scheduler.Settings = (*fakeSettings)(nil)

func TestScheduler_RefreshRearmsIdleTimer(t *testing.T) {
	var optimized atomic.Int32
	reg := job.Registry{
		job.TypeOptimize: func(_ context.Context, _ *job.Invocation) (*job.Result, error) {
			optimized.Add(1)
			return &job.Result{Message: "optimized"}, nil
		},
	}
	fs := &fakeSettings{enabled: true, delay: time.Hour}
	s := newTestScheduler(t, reg, scheduler.WithSettings(fs))

	// Disabled at construction; the store-backed flag takes over on refresh,
	// but the hour-long delay keeps the pass far in the future.
	if err := s.RefreshAutoOptimizeSettings(context.Background()); err != nil {
		t.Fatalf("refresh error: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if n := optimized.Load(); n != 0 {
		t.Fatalf("optimize ran %d times before the delay elapsed", n)
	}

	// Shortening the delay must re-arm the already-armed timer with the
	// new parameters rather than leaving the old one running.
	fs.set(true, 10*time.Millisecond)
	if err := s.RefreshAutoOptimizeSettings(context.Background()); err != nil {
		t.Fatalf("refresh error: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return optimized.Load() == 1 }, "idle optimize pass")
}

func TestScheduler_RefreshDisableCancelsArmedTimer(t *testing.T) {
	var optimized atomic.Int32
	reg := job.Registry{
		job.TypeOptimize: func(_ context.Context, _ *job.Invocation) (*job.Result, error) {
			optimized.Add(1)
			return &job.Result{}, nil
		},
	}
	fs := &fakeSettings{enabled: true, delay: 40 * time.Millisecond}
	s := newTestScheduler(t, reg, scheduler.WithSettings(fs))

	if err := s.RefreshAutoOptimizeSettings(context.Background()); err != nil {
		t.Fatalf("refresh error: %v", err)
	}
	fs.set(false, 40*time.Millisecond)
	if err := s.RefreshAutoOptimizeSettings(context.Background()); err != nil {
		t.Fatalf("refresh error: %v", err)
	}

	time.Sleep(150 * time.Millisecond)
	if n := optimized.Load(); n != 0 {
		t.Errorf("optimize ran %d times after auto-optimize was disabled", n)
	}
}
