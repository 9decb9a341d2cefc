// Package conductor coordinates a pipeline of long-running, mutually
// exclusive background operations for a trading system: data sync, signal
// generation, backtesting, parameter optimization, reconciliation, order
// dispatch, and model training.
//
// The heart of the module is the single-flight scheduler in the scheduler
// package: it owns the job record table, decides what runs next, retries
// transient failures with exponential backoff, preempts background
// optimization when pipeline work arrives, and auto-schedules maintenance
// when the pipeline goes idle.
//
// # Quick Start
//
//	reg := job.Registry{
//	    job.TypeSync: handlers.Sync(eng, settings),
//	    // ...
//	}
//	s, err := scheduler.New(reg,
//	    scheduler.WithLogger(logger),
//	    scheduler.WithSettings(settings),
//	)
//	j, err := s.ScheduleJob(ctx, job.TypeSync)
//
// # Architecture
//
// Conductor is a library, not a service. Each subsystem lives in its own
// package (job, scheduler, backoff, ext, store, stream, feed, cron, engine,
// broker, handlers) and the cmd/conductord daemon wires them together.
// Handlers are external collaborators: the scheduler knows nothing about
// brokers or the computation engine, only about the handler contract.
//
// All entity IDs are TypeID — type-prefixed, K-sortable, UUIDv7-based.
package conductor
