package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// Builder compiles the engine binary from source. The build command is
// opaque to conductor (make, cargo, a build script); it only needs to
// exit zero and leave the binary at the runner's path.
type Builder struct {
	command []string
	workDir string
	logger  *slog.Logger
}

// NewBuilder creates a builder that runs command (argv form) in workDir.
func NewBuilder(command []string, workDir string, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		command: command,
		workDir: workDir,
		logger:  logger.With("component", "engine-builder"),
	}
}

// Build runs the build command. Cancelling ctx kills the build.
func (b *Builder) Build(ctx context.Context) (*RunResult, error) {
	if len(b.command) == 0 {
		return nil, errors.New("engine: no build command configured")
	}

	cmd := exec.CommandContext(ctx, b.command[0], b.command[1:]...)
	cmd.WaitDelay = 5 * time.Second
	cmd.Dir = b.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	b.logger.Info("engine build started", "command", b.command[0])
	start := time.Now()
	err := cmd.Run()
	res := &RunResult{
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Elapsed: time.Since(start),
	}

	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, fmt.Errorf("engine: build exited with code %d: %s",
				res.ExitCode, stderrTail(res.Stderr))
		}
		return res, fmt.Errorf("engine: start build: %w", err)
	}

	b.logger.Info("engine build succeeded", "elapsed", res.Elapsed)
	return res, nil
}
