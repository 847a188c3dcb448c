package engine

import (
	"context"

	"github.com/quantpool/multi-engine-bot/internal/config"
	"github.com/quantpool/multi-engine-bot/internal/indicators"
	"github.com/quantpool/multi-engine-bot/pkg/types"
)

// Accumulation is the long-horizon engine: it buys when price trades at a
// meaningful discount to its long moving average and otherwise sits still.
// It never shorts and it never exits on its own; exits happen through stops
// or rebalancing.
type Accumulation struct {
	base
	params config.AccumulationParams
	sma    *indicators.SMA
}

func NewAccumulation(cfg config.EngineConfig) *Accumulation {
	return &Accumulation{
		base:   newBase(cfg, "accumulation"),
		params: *cfg.Accumulation,
		sma:    indicators.NewSMA(cfg.Accumulation.SMAPeriod),
	}
}

func (a *Accumulation) AllowShort() bool { return false }

func (a *Accumulation) Analyze(ctx context.Context, data map[string][]types.OHLCV) ([]*types.Signal, error) {
	var signals []*types.Signal

	for _, symbol := range a.symbols {
		candles := data[symbol]
		if len(candles) == 0 {
			continue
		}
		if a.mirrorPosition(symbol) != nil {
			continue // one accumulation tranche per symbol at a time
		}

		sma, err := a.sma.Calculate(candles)
		if err != nil {
			continue // not enough history yet, try next cycle
		}
		price := candles[len(candles)-1].Close
		discount := (sma - price) / sma
		if discount < a.params.DiscountPct {
			continue
		}

		// Deeper discounts earn higher confidence, saturating at the
		// configured maximum discount.
		span := a.params.MaxDiscountPct - a.params.DiscountPct
		confidence := 0.5
		if span > 0 {
			confidence += 0.5 * clamp((discount-a.params.DiscountPct)/span, 0, 1)
		}

		sig, err := types.NewSignal(a.id, a.strategy, symbol, types.SignalBuy, confidence)
		if err != nil {
			return nil, err
		}
		signals = append(signals, sig.WithEntry(0, 0))
	}

	a.recordSignals(len(signals))
	return signals, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
