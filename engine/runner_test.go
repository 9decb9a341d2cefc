package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/quantfold/conductor/engine"
)

func TestBinaryRunner_CapturesOutputAndExitCode(t *testing.T) {
	r := engine.NewBinaryRunner("/bin/sh")

	res, err := r.Run(context.Background(), engine.Task{
		Subcommand: "-c",
		Args:       []string{"echo out; echo err >&2"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "out" {
		t.Fatalf("stdout = %q", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "err" {
		t.Fatalf("stderr = %q", res.Stderr)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code = %d", res.ExitCode)
	}
}

func TestBinaryRunner_NonZeroExit(t *testing.T) {
	r := engine.NewBinaryRunner("/bin/sh")

	res, err := r.Run(context.Background(), engine.Task{
		Subcommand: "-c",
		Args:       []string{"echo boom >&2; exit 3"},
	})
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if res.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", res.ExitCode)
	}
	if !strings.Contains(err.Error(), "code 3") || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("error lacks exit detail: %v", err)
	}
}

func TestBinaryRunner_CancellationKillsChild(t *testing.T) {
	r := engine.NewBinaryRunner("/bin/sh", engine.WithWaitDelay(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := r.Run(ctx, engine.Task{Subcommand: "-c", Args: []string{"sleep 30"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("kill took too long: %v", elapsed)
	}
}

func TestBinaryRunner_MissingBinary(t *testing.T) {
	r := engine.NewBinaryRunner("/nonexistent/conductor-engine")

	if err := r.Check(); !errors.Is(err, engine.ErrBinaryMissing) {
		t.Fatalf("check: expected ErrBinaryMissing, got %v", err)
	}
	if _, err := r.Run(context.Background(), engine.SyncTask()); err == nil {
		t.Fatal("expected run to fail for missing binary")
	}
}

func TestBuilder_RunsBuildCommand(t *testing.T) {
	b := engine.NewBuilder([]string{"/bin/sh", "-c", "echo built"}, t.TempDir(), nil)

	res, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "built" {
		t.Fatalf("stdout = %q", res.Stdout)
	}

	fail := engine.NewBuilder([]string{"/bin/sh", "-c", "exit 2"}, t.TempDir(), nil)
	if _, err := fail.Build(context.Background()); err == nil {
		t.Fatal("expected build failure")
	}
}

func TestTaskConstructors(t *testing.T) {
	if got := engine.BacktestTask("2026-01-01", "2026-02-01"); got.Subcommand != "backtest" ||
		len(got.Args) != 4 || got.Args[1] != "2026-01-01" {
		t.Fatalf("backtest task = %+v", got)
	}
	if got := engine.OptimizeTask(""); len(got.Args) != 0 {
		t.Fatalf("optimize without checkpoint should carry no args: %+v", got)
	}
	if got := engine.OptimizeTask("ckpt.json"); len(got.Args) != 2 || got.Args[1] != "ckpt.json" {
		t.Fatalf("optimize resume args = %+v", got)
	}
	if got := engine.SyncTask("alpaca", "polygon"); len(got.Args) != 2 {
		t.Fatalf("sync providers = %+v", got)
	}
}
