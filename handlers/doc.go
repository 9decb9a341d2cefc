// Package handlers implements the pipeline's job handlers, one per job
// type. Handlers are orchestration only: the numeric work happens in
// the engine subprocess and at the brokerage. Each handler observes
// context cancellation promptly, is safe to re-run from scratch after a
// retry, and chains follow-on jobs through the scheduler's public API,
// checking HasPendingJob first so the same downstream job is never
// queued twice.
//
// The stage chain: compile produces the engine binary; sync pulls
// market data and chains generate-signals; generate-signals chains
// plan; plan stores the order list and, when dispatch is enabled,
// chains dispatch, which submits the orders to the brokerage. Backtest,
// reconcile, optimize, and train run on demand or on cron/idle triggers
// and chain nothing.
package handlers
