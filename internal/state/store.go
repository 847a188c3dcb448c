package state

import (
	"github.com/quantpool/multi-engine-bot/pkg/types"
)

// EngineStateRecord is the persisted subset of an engine's lifecycle state,
// enough to restore counters and flags across a restart.
type EngineStateRecord struct {
	EngineID         string
	Active           bool
	Paused           bool
	PauseReason      string
	BreakerLevel     int
	EmergencyStopped bool
	Trades           int
	Wins             int
	Losses           int
	RealizedPnL      float64
}

// Store persists orders, positions, trades, and engine state so a restart
// resumes from where the previous run stopped. Implementations must be safe
// for use from the orchestrator goroutine plus the status server.
type Store interface {
	SaveOrder(order *types.Order) error
	SavePosition(pos *types.Position) error
	DeletePosition(engineID, symbol string) error
	SaveTrade(trade *types.Trade) error
	SaveEngineState(rec *EngineStateRecord) error

	OpenPositions() ([]*types.Position, error)
	EngineStates() (map[string]*EngineStateRecord, error)
	ClosedTrades(limit int) ([]*types.Trade, error)

	Close() error
}
