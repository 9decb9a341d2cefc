package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfold/conductor"
	"github.com/quantfold/conductor/engine"
	"github.com/quantfold/conductor/job"
	"github.com/quantfold/conductor/store"
)

// staleOrderAge is how long a resting order may sit open before
// reconcile cancels it.
const staleOrderAge = 24 * time.Hour

// Reconcile compares brokerage state against expectations: snapshots
// the account and positions, and cancels resting orders that have sat
// open longer than staleOrderAge (the plan that produced them is long
// superseded).
func (s *Set) Reconcile(ctx context.Context, inv *job.Invocation) (*job.Result, error) {
	account, err := s.deps.Broker.GetAccount(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch account: %w", err)
	}
	positions, err := s.deps.Broker.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	open, err := s.deps.Broker.OpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch open orders: %w", err)
	}

	now := s.now()
	cancelled := 0
	for _, order := range open {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if now.Sub(order.SubmittedAt) < staleOrderAge {
			continue
		}
		if err := s.deps.Broker.CancelOrder(ctx, order.ID); err != nil {
			return nil, fmt.Errorf("cancel stale order %s: %w", order.ID, err)
		}
		inv.Logger.Info("stale order cancelled",
			"order_id", order.ID.String(),
			"symbol", order.Symbol,
			"age", now.Sub(order.SubmittedAt).String(),
		)
		cancelled++
	}

	unrealized := decimal.Zero
	for _, pos := range positions {
		unrealized = unrealized.Add(pos.UnrealizedPL)
	}

	return &job.Result{
		Message: fmt.Sprintf("reconciled %d positions, cancelled %d stale orders", len(positions), cancelled),
		Data: map[string]any{
			"cash":            account.Cash.String(),
			"equity":          account.Equity.String(),
			"positions":       len(positions),
			"open_orders":     len(open) - cancelled,
			"stale_cancelled": cancelled,
			"unrealized_pl":   unrealized.String(),
		},
	}, nil
}

// checkpointPrefix marks the engine's resume-checkpoint line on stdout.
const checkpointPrefix = "checkpoint "

// Optimize runs a parameter sweep. An interrupted or failed sweep
// leaves a checkpoint (the engine prints "checkpoint <path>" as its
// last stdout line); the next pass resumes from it, and a completed
// sweep clears it.
func (s *Set) Optimize(ctx context.Context, inv *job.Invocation) (*job.Result, error) {
	checkpoint, err := s.deps.Settings.GetSetting(ctx, store.KeyOptimizeCheckpoint)
	if err != nil && !errors.Is(err, conductor.ErrSettingNotFound) {
		return nil, fmt.Errorf("load optimize checkpoint: %w", err)
	}
	if checkpoint != "" {
		inv.Logger.Info("resuming optimize sweep", "checkpoint", checkpoint)
	}

	res, runErr := s.deps.Engine.Run(ctx, engine.OptimizeTask(checkpoint))
	if runErr != nil {
		// Persist the resume point before reporting the failure; store
		// errors take a back seat to the run error.
		if res != nil {
			if tail := lastLine(res.Stdout); strings.HasPrefix(tail, checkpointPrefix) {
				next := strings.TrimSpace(strings.TrimPrefix(tail, checkpointPrefix))
				if setErr := s.deps.Settings.SetSetting(ctx, store.KeyOptimizeCheckpoint, next); setErr != nil {
					inv.Logger.Warn("save optimize checkpoint failed", "error", setErr)
				}
			}
		}
		return nil, runErr
	}

	if err := s.deps.Settings.SetSetting(ctx, store.KeyOptimizeCheckpoint, ""); err != nil {
		return nil, fmt.Errorf("clear optimize checkpoint: %w", err)
	}

	msg := firstLine(res.Stdout)
	if msg == "" {
		msg = "parameter sweep complete"
	}
	return &job.Result{
		Message: msg,
		Data: map[string]any{
			"resumed":    checkpoint != "",
			"elapsed_ms": res.Elapsed.Milliseconds(),
		},
	}, nil
}

// Train fits model parameters on fresh data.
func (s *Set) Train(ctx context.Context, inv *job.Invocation) (*job.Result, error) {
	res, err := s.deps.Engine.Run(ctx, engine.TrainTask())
	if err != nil {
		return nil, err
	}

	msg := firstLine(res.Stdout)
	if msg == "" {
		msg = "model training complete"
	}
	return &job.Result{
		Message: msg,
		Data:    map[string]any{"elapsed_ms": res.Elapsed.Milliseconds()},
	}, nil
}
