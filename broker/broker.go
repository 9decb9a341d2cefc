// Package broker defines the brokerage collaborator: the order,
// position, and account types the dispatch and reconcile handlers work
// with, a [Client] interface over any brokerage API, and a
// deterministic in-memory paper-trading implementation for development
// and tests. All money math uses decimal values, never floats.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfold/conductor/id"
)

// Sentinel errors for brokerage operations.
var (
	ErrOrderNotFound    = errors.New("broker: order not found")
	ErrInsufficientCash = errors.New("broker: insufficient cash")
	ErrMarketClosed     = errors.New("broker: market closed")
	ErrOrderNotOpen     = errors.New("broker: order not open")
)

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderStatus is the brokerage-side order lifecycle state.
type OrderStatus string

const (
	OrderOpen      OrderStatus = "open"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
	OrderRejected  OrderStatus = "rejected"
)

// Order is a submitted brokerage order.
type Order struct {
	ID     id.OrderID  `json:"id"`
	Symbol string      `json:"symbol"`
	Side   Side        `json:"side"`
	Status OrderStatus `json:"status"`

	// Qty is the requested share quantity.
	Qty decimal.Decimal `json:"qty"`

	// LimitPrice is zero for market orders.
	LimitPrice decimal.Decimal `json:"limit_price"`

	// FilledQty and FilledAvgPrice describe the execution.
	FilledQty      decimal.Decimal `json:"filled_qty"`
	FilledAvgPrice decimal.Decimal `json:"filled_avg_price"`

	SubmittedAt time.Time  `json:"submitted_at"`
	FilledAt    *time.Time `json:"filled_at,omitempty"`
}

// Position is a current holding.
type Position struct {
	Symbol       string          `json:"symbol"`
	Qty          decimal.Decimal `json:"qty"`
	AvgCost      decimal.Decimal `json:"avg_cost"`
	MarketPrice  decimal.Decimal `json:"market_price"`
	MarketValue  decimal.Decimal `json:"market_value"`
	UnrealizedPL decimal.Decimal `json:"unrealized_pl"`
}

// Account is the brokerage account snapshot.
type Account struct {
	Cash        decimal.Decimal `json:"cash"`
	Equity      decimal.Decimal `json:"equity"`
	BuyingPower decimal.Decimal `json:"buying_power"`
	AsOf        time.Time       `json:"as_of"`
}

// OrderRequest describes an order to submit.
type OrderRequest struct {
	Symbol string          `json:"symbol"`
	Side   Side            `json:"side"`
	Qty    decimal.Decimal `json:"qty"`

	// LimitPrice of zero submits a market order.
	LimitPrice decimal.Decimal `json:"limit_price"`
}

// Client is the brokerage API surface handlers depend on.
type Client interface {
	// SubmitOrder places an order and returns the brokerage's record.
	SubmitOrder(ctx context.Context, req OrderRequest) (*Order, error)

	// CancelOrder cancels an open order.
	CancelOrder(ctx context.Context, orderID id.OrderID) error

	// GetOrder retrieves an order by ID.
	GetOrder(ctx context.Context, orderID id.OrderID) (*Order, error)

	// OpenOrders lists orders that have not reached a terminal state.
	OpenOrders(ctx context.Context) ([]*Order, error)

	// Positions lists current holdings.
	Positions(ctx context.Context) ([]*Position, error)

	// GetAccount returns the account snapshot.
	GetAccount(ctx context.Context) (*Account, error)
}
