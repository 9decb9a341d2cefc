// Package scheduler implements the single-flight job execution core.
//
// The Scheduler owns the in-memory job record table and runs at most one
// job at a time. An external trigger (HTTP layer, a handler chaining
// follow-on work, the idle timer, cron) calls ScheduleJob; the scheduler
// stores the record, possibly preempts a running optimize pass, and wakes.
// The wake routine picks the earliest due queued job in strict
// (ScheduledFor, CreatedAt) order and starts it with a fresh cancellation
// context. When the handler settles, the outcome is classified —
// cancellation first, then success, then retry-or-fail — and the scheduler
// immediately looks for the next job.
//
// All record mutation happens under one mutex on the caller's goroutine or
// the settle path; handlers only ever see snapshots. Cancellation is
// cooperative: the scheduler signals the per-attempt context and waits,
// it never force-stops handler code.
//
// When nothing is queued or running, the scheduler is idle. After a
// configurable idle delay it auto-schedules an optimize pass, unless one
// succeeded within the cooldown window or one is already pending.
package scheduler
