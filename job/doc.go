// Package job defines the job entity, its state machine, the scheduling
// options, and the handler contract.
//
// # State machine
//
//	queued → running → succeeded
//	queued → running → queued (retry with backoff) → running → ...
//	queued → running → failed (retry budget exhausted)
//	queued → running → cancelled
//	queued → cancelled
//
// queued and running are the only non-terminal states. A retried job keeps
// its identity: the same record cycles back to queued, it is not replaced.
//
// # Handler contract
//
// A handler receives a fresh context per attempt and an [Invocation] with a
// snapshot of its job. It must poll ctx during long loops, kill any child
// process it spawned when ctx fires, tolerate re-invocation after a retry,
// and chain follow-on work only through [Chainer] after a HasPendingJob
// dedup check. Work that completed before a late cancellation should be
// reported as an early-exit success by returning nil promptly rather than
// an error, so already-finished work is not retried.
//
// # Metadata keys
//
// Metadata is opaque to the scheduler; by convention handlers read/write:
//   - "tickers" ([]string): sync/generate-signals scope
//   - "strategy" (string): backtest/optimize/train target
//   - "trigger" (string): what scheduled the job ("idle", "cron", "chain",
//     "manual", "preempted-replay")
//   - "orders" (int): dispatch order count
package job
