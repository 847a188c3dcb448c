package types

import "time"

// OrderSide represents buy or sell side (string-based for API compatibility).
type OrderSide string

const (
	OrderSideBuy  OrderSide = "Buy"
	OrderSideSell OrderSide = "Sell"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderKind represents the execution type of an order.
type OrderKind string

const (
	OrderKindMarket OrderKind = "Market"
	OrderKindLimit  OrderKind = "Limit"
)

// OrderStatus is the lifecycle status of an order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "PENDING"
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// IsTerminal reports whether the order can no longer change state.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// IsFailed reports whether the order terminated without a full fill.
func (s OrderStatus) IsFailed() bool {
	return s == OrderStatusCancelled || s == OrderStatusRejected || s == OrderStatusExpired
}

// Order is owned exclusively by the orchestrator from creation until a
// terminal status is reached. Every status change is mirrored to the
// persistence store. EngineID and Strategy tag the order so fill
// reconciliation can route callbacks to the originating engine.
type Order struct {
	ID           string
	Symbol       string
	Side         OrderSide
	Kind         OrderKind
	Amount       float64
	Price        float64
	Status       OrderStatus
	FilledAmount float64
	AvgFillPrice float64
	StopLoss     float64
	TakeProfit   float64
	ReduceOnly   bool
	EngineID     string
	Strategy     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
