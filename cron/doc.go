// Package cron schedules recurring pipeline jobs from cron expressions.
//
// Entries are registered at startup (typically from the config file) and
// evaluated on a tick loop. When an entry comes due, the scheduler
// enqueues the entry's job type on the pipeline — unless a job of that
// type is already queued or running, in which case the tick is skipped
// and the entry simply advances to its next due time. The pipeline's
// single-flight discipline makes re-enqueueing a pending type pointless.
//
// An [Entry] pairs a cron expression with a job type:
//   - Schedule: standard 5-field cron expression or a descriptor such as
//     "@every 30m" or "@daily"
//   - JobType: the pipeline job type to enqueue when fired
//   - Enabled: whether the entry fires
//
// Entries can be enabled, disabled, and inspected at runtime.
package cron
