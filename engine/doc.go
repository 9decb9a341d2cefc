// Package engine invokes the external computation binary.
//
// The numeric heart of the pipeline (signal math, backtest replay,
// parameter sweeps, model training) lives in a separate opaque binary.
// Handlers never link against it; they shell out through a [Runner],
// passing a context whose cancellation kills the child process. The
// runner reports stdout, stderr, and an exit-code-based success/failure
// signal — nothing about the binary's internals leaks into the
// scheduler.
//
// [BinaryRunner] is the production implementation. Tests substitute any
// [Runner].
package engine
