package types

import "time"

// Trade is the immutable record of a closed (or partially closed) position,
// written to the persistence store when an exit fill is reconciled.
type Trade struct {
	ID         string
	Symbol     string
	Side       PositionSide
	EngineID   string
	Strategy   string
	EntryPrice float64
	ExitPrice  float64
	Amount     float64
	PnL        float64
	ExitReason string
	OpenedAt   time.Time
	ClosedAt   time.Time
}

// IsWin reports whether the trade closed at a profit.
func (t *Trade) IsWin() bool {
	return t.PnL > 0
}
