package engine

import "time"

// Task describes one invocation of the computation binary: a subcommand
// plus its arguments.
type Task struct {
	// Subcommand is the binary's first argument ("sync", "backtest", …).
	Subcommand string

	// Args follow the subcommand.
	Args []string

	// Env entries (KEY=VALUE) appended to the inherited environment.
	Env []string
}

// RunResult captures a finished invocation.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Elapsed  time.Duration
}

// ── Task constructors per pipeline stage ────────────

// SyncTask pulls market data for the given providers. No providers
// means all configured providers.
func SyncTask(providers ...string) Task {
	return Task{Subcommand: "sync", Args: providers}
}

// SignalsTask generates trade signals from synced data.
func SignalsTask() Task {
	return Task{Subcommand: "signals"}
}

// BacktestTask replays signals over the given date range (YYYY-MM-DD).
func BacktestTask(from, to string) Task {
	args := []string{}
	if from != "" {
		args = append(args, "--from", from)
	}
	if to != "" {
		args = append(args, "--to", to)
	}
	return Task{Subcommand: "backtest", Args: args}
}

// PlanTask computes the target portfolio from current signals.
func PlanTask() Task {
	return Task{Subcommand: "plan"}
}

// OptimizeTask runs a parameter sweep. A non-empty checkpoint resumes a
// previously interrupted sweep.
func OptimizeTask(checkpoint string) Task {
	var args []string
	if checkpoint != "" {
		args = append(args, "--resume", checkpoint)
	}
	return Task{Subcommand: "optimize", Args: args}
}

// TrainTask fits model parameters on fresh data.
func TrainTask() Task {
	return Task{Subcommand: "train"}
}

// VersionTask reports the binary's build version.
func VersionTask() Task {
	return Task{Subcommand: "version"}
}
