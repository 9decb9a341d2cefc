package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrBinaryMissing is returned when the configured engine binary does
// not exist or is not executable.
var ErrBinaryMissing = errors.New("engine: binary missing")

// Runner invokes the computation binary. Implementations must kill the
// child process when ctx is cancelled.
type Runner interface {
	Run(ctx context.Context, task Task) (*RunResult, error)
}

// RunnerOption configures a BinaryRunner.
type RunnerOption func(*BinaryRunner)

// WithWorkDir sets the child process working directory.
func WithWorkDir(dir string) RunnerOption {
	return func(r *BinaryRunner) { r.workDir = dir }
}

// WithEnv appends KEY=VALUE entries to every invocation's environment.
func WithEnv(env ...string) RunnerOption {
	return func(r *BinaryRunner) { r.baseEnv = append(r.baseEnv, env...) }
}

// WithWaitDelay bounds how long Run waits for pipes to drain after the
// child is killed on cancellation.
func WithWaitDelay(d time.Duration) RunnerOption {
	return func(r *BinaryRunner) { r.waitDelay = d }
}

// WithRunnerLogger sets the runner's logger.
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *BinaryRunner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// BinaryRunner executes the engine binary at a fixed path.
type BinaryRunner struct {
	path      string
	workDir   string
	baseEnv   []string
	waitDelay time.Duration
	logger    *slog.Logger
}

var _ Runner = (*BinaryRunner)(nil)

// NewBinaryRunner creates a runner for the binary at path.
func NewBinaryRunner(path string, opts ...RunnerOption) *BinaryRunner {
	r := &BinaryRunner{
		path:      path,
		waitDelay: 5 * time.Second,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "engine")
	return r
}

// Path returns the configured binary path.
func (r *BinaryRunner) Path() string { return r.path }

// Check verifies the binary exists and is a regular file.
func (r *BinaryRunner) Check() error {
	info, err := os.Stat(r.path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBinaryMissing, r.path)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrBinaryMissing, r.path)
	}
	return nil
}

// Run executes the task. Cancelling ctx kills the child; the returned
// error is then the context error. A non-zero exit returns both the
// result (with captured output) and an error describing the exit.
func (r *BinaryRunner) Run(ctx context.Context, task Task) (*RunResult, error) {
	argv := append([]string{task.Subcommand}, task.Args...)
	cmd := exec.CommandContext(ctx, r.path, argv...)
	// Without WaitDelay, Wait can block indefinitely after the kill
	// signal while pipe I/O drains.
	cmd.WaitDelay = r.waitDelay
	if r.workDir != "" {
		cmd.Dir = r.workDir
	}
	env := r.baseEnv
	if len(task.Env) > 0 {
		env = append(append([]string{}, r.baseEnv...), task.Env...)
	}
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Info("engine run",
		"subcommand", task.Subcommand,
		"args", strings.Join(task.Args, " "),
	)

	start := time.Now()
	err := cmd.Run()
	res := &RunResult{
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Elapsed: time.Since(start),
	}

	if ctx.Err() != nil {
		r.logger.Info("engine run killed",
			"subcommand", task.Subcommand,
			"elapsed", res.Elapsed,
		)
		return res, ctx.Err()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			r.logger.Warn("engine run failed",
				"subcommand", task.Subcommand,
				"exit_code", res.ExitCode,
				"elapsed", res.Elapsed,
			)
			return res, fmt.Errorf("engine: %s exited with code %d: %s",
				task.Subcommand, res.ExitCode, stderrTail(res.Stderr))
		}
		return res, fmt.Errorf("engine: start %s: %w", task.Subcommand, err)
	}

	r.logger.Info("engine run succeeded",
		"subcommand", task.Subcommand,
		"elapsed", res.Elapsed,
	)
	return res, nil
}

// stderrTail returns the last non-empty stderr line, the part humans
// want in an error message.
func stderrTail(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return "(no stderr)"
}
