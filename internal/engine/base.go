package engine

import (
	"sync"
	"time"

	"github.com/quantpool/multi-engine-bot/internal/config"
	"github.com/quantpool/multi-engine-bot/pkg/types"
)

// base carries the bookkeeping shared by every engine variant: identity,
// cadence, and the read-mostly position mirror the orchestrator reconciles
// one-directionally after fills. The mirror is used only for the engine's own
// signal generation, never as the canonical position record.
type base struct {
	id         string
	strategy   string
	symbols    []string
	interval   time.Duration
	allowShort bool

	mu     sync.RWMutex
	mirror map[string]*types.Position // keyed by symbol
	stats  Stats
}

func newBase(cfg config.EngineConfig, strategy string) base {
	return base{
		id:         cfg.ID,
		strategy:   strategy,
		symbols:    append([]string(nil), cfg.Symbols...),
		interval:   cfg.AnalysisInterval.Std(),
		allowShort: cfg.AllowShort,
		mirror:     make(map[string]*types.Position),
	}
}

func (b *base) ID() string                      { return b.id }
func (b *base) Strategy() string                { return b.strategy }
func (b *base) Symbols() []string               { return b.symbols }
func (b *base) AnalysisInterval() time.Duration { return b.interval }
func (b *base) AllowShort() bool                { return b.allowShort }

func (b *base) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}

// mirrorPosition returns the engine's view of its position on symbol, or nil.
func (b *base) mirrorPosition(symbol string) *types.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mirror[symbol]
}

func (b *base) OnOrderFilled(order *types.Order, fillPrice float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.FillCount++
	if order.ReduceOnly {
		return // exit fills are handled through OnPositionClosed
	}

	side := types.PositionSideLong
	if order.Side == types.OrderSideSell {
		side = types.PositionSideShort
	}
	if pos, ok := b.mirror[order.Symbol]; ok && pos.Side == side {
		if err := pos.ApplyFill(order.FilledAmount, fillPrice); err != nil {
			// Malformed fill data leaves the mirror as it was.
			return
		}
		return
	}
	b.mirror[order.Symbol] = &types.Position{
		Symbol:     order.Symbol,
		Side:       side,
		EntryPrice: fillPrice,
		Amount:     order.FilledAmount,
		EngineID:   b.id,
		OpenedAt:   time.Now(),
	}
}

func (b *base) OnPositionClosed(pos *types.Position, exitPrice, pnl float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.CloseCount++
	b.stats.RealizedPnL += pnl
	if pos.Amount <= 0 {
		delete(b.mirror, pos.Symbol)
	} else {
		// Partial close: mirror keeps the reduced amount.
		if mirrored, ok := b.mirror[pos.Symbol]; ok {
			mirrored.Amount = pos.Amount
		}
	}
}

func (b *base) SyncPositions(positions []*types.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.mirror = make(map[string]*types.Position, len(positions))
	for _, pos := range positions {
		if pos.EngineID != b.id {
			continue
		}
		copied := *pos
		b.mirror[pos.Symbol] = &copied
	}
}

// recordSignals counts emitted signals for the stats snapshot.
func (b *base) recordSignals(n int) {
	if n == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.SignalCount += n
	b.stats.LastSignalAt = time.Now()
}
