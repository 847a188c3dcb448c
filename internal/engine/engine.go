package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/quantpool/multi-engine-bot/internal/config"
	"github.com/quantpool/multi-engine-bot/pkg/types"
)

// StrategyEngine is the pluggable decision contract. The orchestrator treats
// every variant uniformly: it polls Analyze on the engine's own cadence,
// routes the returned signals through risk admission, and reconciles fills
// back through the callbacks. Engines never talk to the exchange themselves.
type StrategyEngine interface {
	ID() string
	Strategy() string
	Symbols() []string
	AnalysisInterval() time.Duration
	AllowShort() bool

	// Analyze consumes one market-data window per symbol and returns zero or
	// more proposed signals.
	Analyze(ctx context.Context, data map[string][]types.OHLCV) ([]*types.Signal, error)

	// OnOrderFilled is invoked by the orchestrator after an entry fill is
	// reconciled, so the engine can update its own position mirror.
	OnOrderFilled(order *types.Order, fillPrice float64)

	// OnPositionClosed is invoked after an exit fill fully or partially
	// closes a position owned by this engine.
	OnPositionClosed(pos *types.Position, exitPrice, pnl float64)

	// SyncPositions overwrites the engine's mirror with the orchestrator's
	// canonical view, used at startup restore and after reconciliation.
	SyncPositions(positions []*types.Position)

	Stats() Stats
}

// Stats summarizes an engine's activity for the status interface.
type Stats struct {
	SignalCount  int
	FillCount    int
	CloseCount   int
	RealizedPnL  float64
	LastSignalAt time.Time
}

// New builds the engine variant declared by the config entry.
func New(cfg config.EngineConfig) (StrategyEngine, error) {
	switch cfg.Type {
	case "accumulation":
		return NewAccumulation(cfg), nil
	case "trend":
		return NewTrend(cfg), nil
	case "funding_arb":
		return NewFundingArb(cfg), nil
	case "tactical":
		return NewTactical(cfg), nil
	}
	return nil, fmt.Errorf("unknown engine type %q", cfg.Type)
}
