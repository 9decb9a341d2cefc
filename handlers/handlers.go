package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quantfold/conductor/broker"
	"github.com/quantfold/conductor/engine"
	"github.com/quantfold/conductor/job"
	"github.com/quantfold/conductor/store"
)

// Deps are the external collaborators the handlers orchestrate.
type Deps struct {
	// Engine runs the computation binary.
	Engine engine.Runner

	// Builder compiles the engine binary; used only by the compile
	// handler.
	Builder *engine.Builder

	// Broker is the brokerage client; used by dispatch and reconcile.
	Broker broker.Client

	// Settings persists planned orders, optimize checkpoints, and the
	// dispatch kill switch.
	Settings store.SettingsStore

	Logger *slog.Logger
}

// Set binds the dependency bundle to handler methods.
type Set struct {
	deps     Deps
	settings *store.PipelineSettings
	logger   *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewSet creates the handler set.
func NewSet(deps Deps) *Set {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Set{
		deps:     deps,
		settings: store.NewPipelineSettings(deps.Settings),
		logger:   logger.With("component", "handlers"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Registry returns the full job-type registry for the scheduler.
func (s *Set) Registry() job.Registry {
	return job.Registry{
		job.TypeCompile:         s.Compile,
		job.TypeSync:            s.Sync,
		job.TypeGenerateSignals: s.GenerateSignals,
		job.TypeBacktest:        s.Backtest,
		job.TypeReconcile:       s.Reconcile,
		job.TypePlan:            s.Plan,
		job.TypeDispatch:        s.Dispatch,
		job.TypeOptimize:        s.Optimize,
		job.TypeTrain:           s.Train,
	}
}

// chainUnlessPending enqueues a follow-on job of type t unless one is
// already queued or running.
func (s *Set) chainUnlessPending(ctx context.Context, inv *job.Invocation, t job.Type, description string) error {
	if inv.Pipeline.HasPendingJob(func(j *job.Job) bool { return j.Type == t }) {
		inv.Logger.Debug("follow-on already pending, not chaining", "follow_on", string(t))
		return nil
	}
	_, err := inv.Pipeline.ScheduleJob(ctx, t,
		job.WithDescription(description),
		job.WithMetadata(map[string]any{
			"trigger": "chain",
			"parent":  inv.Job.ID.String(),
		}),
	)
	if err != nil {
		return fmt.Errorf("chain %s: %w", t, err)
	}
	return nil
}

// metaString reads a string value from the job's metadata bag.
func metaString(inv *job.Invocation, key string) string {
	if v, ok := inv.Job.Metadata[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

// metaStrings reads a string list from the job's metadata bag. JSON
// round-trips deliver lists as []any.
func metaStrings(inv *job.Invocation, key string) []string {
	v, ok := inv.Job.Metadata[key]
	if !ok {
		return nil
	}
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// firstLine returns the first non-empty line of s, for result messages.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// lastLine returns the last non-empty line of s.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if trimmed := strings.TrimSpace(lines[i]); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
