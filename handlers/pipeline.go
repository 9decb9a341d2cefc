package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/quantfold/conductor"
	"github.com/quantfold/conductor/broker"
	"github.com/quantfold/conductor/engine"
	"github.com/quantfold/conductor/job"
	"github.com/quantfold/conductor/store"
)

// Compile builds the engine binary from source.
func (s *Set) Compile(ctx context.Context, inv *job.Invocation) (*job.Result, error) {
	if s.deps.Builder == nil {
		return nil, errors.New("no engine builder configured")
	}
	res, err := s.deps.Builder.Build(ctx)
	if err != nil {
		return nil, err
	}
	return &job.Result{
		Message: "engine build succeeded",
		Data: map[string]any{
			"elapsed_ms": res.Elapsed.Milliseconds(),
		},
	}, nil
}

// Sync pulls market data, then chains signal generation. The optional
// "providers" metadata list narrows the pull.
func (s *Set) Sync(ctx context.Context, inv *job.Invocation) (*job.Result, error) {
	providers := metaStrings(inv, "providers")

	res, err := s.deps.Engine.Run(ctx, engine.SyncTask(providers...))
	if err != nil {
		return nil, err
	}

	if err := s.chainUnlessPending(ctx, inv, job.TypeGenerateSignals, "signals from fresh sync"); err != nil {
		return nil, err
	}

	msg := firstLine(res.Stdout)
	if msg == "" {
		msg = "market data synced"
	}
	return &job.Result{
		Message: msg,
		Data: map[string]any{
			"providers":  providers,
			"elapsed_ms": res.Elapsed.Milliseconds(),
		},
	}, nil
}

// GenerateSignals produces trade signals, then chains planning.
func (s *Set) GenerateSignals(ctx context.Context, inv *job.Invocation) (*job.Result, error) {
	res, err := s.deps.Engine.Run(ctx, engine.SignalsTask())
	if err != nil {
		return nil, err
	}

	if err := s.chainUnlessPending(ctx, inv, job.TypePlan, "plan from fresh signals"); err != nil {
		return nil, err
	}

	msg := firstLine(res.Stdout)
	if msg == "" {
		msg = "signals generated"
	}
	return &job.Result{
		Message: msg,
		Data:    map[string]any{"elapsed_ms": res.Elapsed.Milliseconds()},
	}, nil
}

// Backtest replays signals over the date range in the "from"/"to"
// metadata (YYYY-MM-DD; both optional).
func (s *Set) Backtest(ctx context.Context, inv *job.Invocation) (*job.Result, error) {
	from := metaString(inv, "from")
	to := metaString(inv, "to")

	res, err := s.deps.Engine.Run(ctx, engine.BacktestTask(from, to))
	if err != nil {
		return nil, err
	}

	msg := firstLine(res.Stdout)
	if msg == "" {
		msg = "backtest complete"
	}
	return &job.Result{
		Message: msg,
		Data: map[string]any{
			"from":       from,
			"to":         to,
			"elapsed_ms": res.Elapsed.Milliseconds(),
		},
	}, nil
}

// Plan computes the target order list from current signals. The engine
// prints the orders as JSON on stdout; the handler persists them and,
// when dispatch is enabled, chains the dispatch job.
func (s *Set) Plan(ctx context.Context, inv *job.Invocation) (*job.Result, error) {
	res, err := s.deps.Engine.Run(ctx, engine.PlanTask())
	if err != nil {
		return nil, err
	}

	var orders []broker.OrderRequest
	if err := json.Unmarshal([]byte(res.Stdout), &orders); err != nil {
		return nil, fmt.Errorf("parse plan output: %w", err)
	}

	raw, err := json.Marshal(orders)
	if err != nil {
		return nil, fmt.Errorf("encode planned orders: %w", err)
	}
	if err := s.deps.Settings.SetSetting(ctx, store.KeyPlannedOrders, string(raw)); err != nil {
		return nil, fmt.Errorf("store planned orders: %w", err)
	}

	dispatchEnabled, err := s.settings.Bool(ctx, store.KeyDispatchEnabled, false)
	if err != nil {
		return nil, err
	}
	if dispatchEnabled && len(orders) > 0 {
		if err := s.chainUnlessPending(ctx, inv, job.TypeDispatch, "dispatch planned orders"); err != nil {
			return nil, err
		}
	}

	return &job.Result{
		Message: fmt.Sprintf("planned %d orders", len(orders)),
		Data: map[string]any{
			"orders":           len(orders),
			"dispatch_enabled": dispatchEnabled,
		},
	}, nil
}

// Dispatch submits the planned orders to the brokerage. Submitted
// orders are removed from the planned set as they go out, so a retried
// dispatch never re-submits what already reached the broker.
func (s *Set) Dispatch(ctx context.Context, inv *job.Invocation) (*job.Result, error) {
	enabled, err := s.settings.Bool(ctx, store.KeyDispatchEnabled, false)
	if err != nil {
		return nil, err
	}

	orders, err := s.plannedOrders(ctx)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return &job.Result{Message: "no planned orders"}, nil
	}
	if !enabled {
		return &job.Result{
			Message: fmt.Sprintf("dispatch disabled, holding %d orders", len(orders)),
			Data:    map[string]any{"held": len(orders)},
		}, nil
	}

	submitted := 0
	for len(orders) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req := orders[0]
		order, err := s.deps.Broker.SubmitOrder(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("submit %s %s %s: %w", req.Side, req.Qty, req.Symbol, err)
		}
		inv.Logger.Info("order submitted",
			"order_id", order.ID.String(),
			"symbol", order.Symbol,
			"side", string(order.Side),
			"qty", order.Qty.String(),
			"status", string(order.Status),
		)
		submitted++

		orders = orders[1:]
		if err := s.storePlannedOrders(ctx, orders); err != nil {
			return nil, err
		}
	}

	return &job.Result{
		Message: fmt.Sprintf("submitted %d orders", submitted),
		Data:    map[string]any{"submitted": submitted},
	}, nil
}

func (s *Set) plannedOrders(ctx context.Context) ([]broker.OrderRequest, error) {
	raw, err := s.deps.Settings.GetSetting(ctx, store.KeyPlannedOrders)
	if err != nil {
		if errors.Is(err, conductor.ErrSettingNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load planned orders: %w", err)
	}
	if raw == "" {
		return nil, nil
	}
	var orders []broker.OrderRequest
	if err := json.Unmarshal([]byte(raw), &orders); err != nil {
		return nil, fmt.Errorf("decode planned orders: %w", err)
	}
	return orders, nil
}

func (s *Set) storePlannedOrders(ctx context.Context, orders []broker.OrderRequest) error {
	raw, err := json.Marshal(orders)
	if err != nil {
		return fmt.Errorf("encode planned orders: %w", err)
	}
	if err := s.deps.Settings.SetSetting(ctx, store.KeyPlannedOrders, string(raw)); err != nil {
		return fmt.Errorf("store planned orders: %w", err)
	}
	return nil
}
