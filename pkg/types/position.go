package types

import (
	"fmt"
	"time"
)

// PositionSide is the direction of an open position.
type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

// Position tracks one open position. At most one position exists per
// (engine, symbol) pair; the orchestrator owns the canonical map and each
// engine holds a read-mostly mirror.
type Position struct {
	Symbol     string
	Side       PositionSide
	EntryPrice float64
	Amount     float64
	StopLoss   float64
	TakeProfit float64
	EngineID   string
	OpenedAt   time.Time
	UpdatedAt  time.Time
}

// Key returns the canonical (engine, symbol) map key for a position.
func PositionKey(engineID, symbol string) string {
	return engineID + "/" + symbol
}

// Key returns the canonical map key for this position.
func (p *Position) Key() string {
	return PositionKey(p.EngineID, p.Symbol)
}

// ApplyFill averages an additive same-side fill into the entry price.
// Later fills are averaged into whatever entry existed at the time; partial
// exits never recompute the average.
func (p *Position) ApplyFill(amount, price float64) error {
	if amount <= 0 {
		return fmt.Errorf("fill amount must be positive, got %.8f", amount)
	}
	total := p.Amount + amount
	p.EntryPrice = (p.EntryPrice*p.Amount + price*amount) / total
	p.Amount = total
	p.UpdatedAt = time.Now()
	return nil
}

// Reduce removes amount from the position after an exit fill. The remaining
// amount is returned; zero means the position is fully closed and should be
// deleted by the caller.
func (p *Position) Reduce(amount float64) (float64, error) {
	if amount <= 0 {
		return p.Amount, fmt.Errorf("reduce amount must be positive, got %.8f", amount)
	}
	if amount > p.Amount+1e-9 {
		return p.Amount, fmt.Errorf("reduce amount %.8f exceeds position amount %.8f", amount, p.Amount)
	}
	p.Amount -= amount
	if p.Amount < 1e-9 {
		p.Amount = 0
	}
	p.UpdatedAt = time.Now()
	return p.Amount, nil
}

// Notional returns the position value at the given mark price.
func (p *Position) Notional(markPrice float64) float64 {
	return p.Amount * markPrice
}

// RealizedPnL computes the realized profit of closing amount at exitPrice.
func (p *Position) RealizedPnL(amount, exitPrice float64) float64 {
	if p.Side == PositionSideShort {
		return (p.EntryPrice - exitPrice) * amount
	}
	return (exitPrice - p.EntryPrice) * amount
}
