package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfold/conductor/id"
)

// PaperClient is a deterministic in-memory brokerage. Orders fill
// immediately and entirely at the quoted price; there is no slippage,
// partial fills, or latency. Handlers and tests exercise the full
// Client surface against it without touching a real brokerage.
type PaperClient struct {
	mu        sync.Mutex
	cash      decimal.Decimal
	orders    map[id.OrderID]*Order
	positions map[string]*paperPosition
	quotes    map[string]decimal.Decimal
	now       func() time.Time
}

type paperPosition struct {
	qty     decimal.Decimal
	avgCost decimal.Decimal
}

var _ Client = (*PaperClient)(nil)

// NewPaperClient creates a paper brokerage seeded with starting cash.
func NewPaperClient(startingCash decimal.Decimal) *PaperClient {
	return &PaperClient{
		cash:      startingCash,
		orders:    make(map[id.OrderID]*Order),
		positions: make(map[string]*paperPosition),
		quotes:    make(map[string]decimal.Decimal),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source for tests.
func (c *PaperClient) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// SetQuote sets the fill price for a symbol and sweeps resting limit
// orders the new quote satisfies, oldest first. Orders for symbols with
// no quote are rejected.
func (c *PaperClient) SetQuote(symbol string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[symbol] = price

	var resting []*Order
	for _, order := range c.orders {
		if order.Status == OrderOpen && order.Symbol == symbol && fillable(order, price) {
			resting = append(resting, order)
		}
	}
	sort.Slice(resting, func(i, j int) bool {
		return resting[i].SubmittedAt.Before(resting[j].SubmittedAt)
	})
	for _, order := range resting {
		if err := c.fillLocked(order, price); err != nil {
			order.Status = OrderRejected
		}
	}
}

// SubmitOrder fills market orders immediately at the quote. Limit
// orders fill when the quote satisfies the limit, otherwise they rest
// open until the quote moves (see SetQuote) or they are cancelled.
func (c *PaperClient) SubmitOrder(_ context.Context, req OrderRequest) (*Order, error) {
	if req.Qty.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("broker: order qty must be positive, got %s", req.Qty)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	quote, ok := c.quotes[req.Symbol]
	if !ok {
		return nil, fmt.Errorf("broker: no quote for %q", req.Symbol)
	}

	order := &Order{
		ID:          id.NewOrderID(),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Status:      OrderOpen,
		Qty:         req.Qty,
		LimitPrice:  req.LimitPrice,
		SubmittedAt: c.now(),
	}
	c.orders[order.ID] = order

	if fillable(order, quote) {
		if err := c.fillLocked(order, quote); err != nil {
			order.Status = OrderRejected
			return cloneOrder(order), err
		}
	}
	return cloneOrder(order), nil
}

// fillable reports whether the quote satisfies the order's limit. A
// zero limit is a market order.
func fillable(o *Order, quote decimal.Decimal) bool {
	if o.LimitPrice.IsZero() {
		return true
	}
	if o.Side == SideBuy {
		return quote.LessThanOrEqual(o.LimitPrice)
	}
	return quote.GreaterThanOrEqual(o.LimitPrice)
}

func (c *PaperClient) fillLocked(o *Order, price decimal.Decimal) error {
	cost := price.Mul(o.Qty)

	switch o.Side {
	case SideBuy:
		if c.cash.LessThan(cost) {
			return fmt.Errorf("%w: need %s, have %s", ErrInsufficientCash, cost, c.cash)
		}
		c.cash = c.cash.Sub(cost)
		pos, ok := c.positions[o.Symbol]
		if !ok {
			pos = &paperPosition{qty: decimal.Zero, avgCost: decimal.Zero}
			c.positions[o.Symbol] = pos
		}
		// Weighted average cost across the old lot and this fill.
		total := pos.avgCost.Mul(pos.qty).Add(cost)
		pos.qty = pos.qty.Add(o.Qty)
		pos.avgCost = total.Div(pos.qty)

	case SideSell:
		pos, ok := c.positions[o.Symbol]
		if !ok || pos.qty.LessThan(o.Qty) {
			return fmt.Errorf("broker: cannot sell %s %s, holding %s",
				o.Qty, o.Symbol, holdingQty(pos))
		}
		c.cash = c.cash.Add(cost)
		pos.qty = pos.qty.Sub(o.Qty)
		if pos.qty.IsZero() {
			delete(c.positions, o.Symbol)
		}
	}

	now := c.now()
	o.Status = OrderFilled
	o.FilledQty = o.Qty
	o.FilledAvgPrice = price
	o.FilledAt = &now
	return nil
}

func holdingQty(pos *paperPosition) decimal.Decimal {
	if pos == nil {
		return decimal.Zero
	}
	return pos.qty
}

// CancelOrder cancels a resting open order.
func (c *PaperClient) CancelOrder(_ context.Context, orderID id.OrderID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	order, ok := c.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if order.Status != OrderOpen {
		return fmt.Errorf("%w: status %s", ErrOrderNotOpen, order.Status)
	}
	order.Status = OrderCancelled
	return nil
}

// GetOrder retrieves an order by ID.
func (c *PaperClient) GetOrder(_ context.Context, orderID id.OrderID) (*Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	order, ok := c.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// OpenOrders lists resting orders.
func (c *PaperClient) OpenOrders(_ context.Context) ([]*Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*Order
	for _, order := range c.orders {
		if order.Status == OrderOpen {
			out = append(out, cloneOrder(order))
		}
	}
	return out, nil
}

// Positions lists holdings priced at the current quotes.
func (c *PaperClient) Positions(_ context.Context) ([]*Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Position, 0, len(c.positions))
	for symbol, pos := range c.positions {
		quote := c.quotes[symbol]
		value := quote.Mul(pos.qty)
		out = append(out, &Position{
			Symbol:       symbol,
			Qty:          pos.qty,
			AvgCost:      pos.avgCost,
			MarketPrice:  quote,
			MarketValue:  value,
			UnrealizedPL: value.Sub(pos.avgCost.Mul(pos.qty)),
		})
	}
	return out, nil
}

// GetAccount returns cash plus marked-to-market holdings.
func (c *PaperClient) GetAccount(_ context.Context) (*Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	equity := c.cash
	for symbol, pos := range c.positions {
		equity = equity.Add(c.quotes[symbol].Mul(pos.qty))
	}
	return &Account{
		Cash:        c.cash,
		Equity:      equity,
		BuyingPower: c.cash,
		AsOf:        c.now(),
	}, nil
}

func cloneOrder(o *Order) *Order {
	cp := *o
	if o.FilledAt != nil {
		t := *o.FilledAt
		cp.FilledAt = &t
	}
	return &cp
}
