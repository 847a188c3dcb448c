package engine

import (
	"context"

	"github.com/quantpool/multi-engine-bot/internal/config"
	"github.com/quantpool/multi-engine-bot/internal/indicators"
	"github.com/quantpool/multi-engine-bot/pkg/types"
)

// Trend follows medium-term momentum with a fast/slow EMA cross, filtered by
// ADX so it stays out of choppy markets. Long on a bullish cross, flat (or
// short, when enabled) on a bearish cross.
type Trend struct {
	base
	params  config.TrendParams
	fastEMA *indicators.EMA
	slowEMA *indicators.EMA
	adx     *indicators.ADX
}

func NewTrend(cfg config.EngineConfig) *Trend {
	return &Trend{
		base:    newBase(cfg, "trend"),
		params:  *cfg.Trend,
		fastEMA: indicators.NewEMA(cfg.Trend.FastEMAPeriod),
		slowEMA: indicators.NewEMA(cfg.Trend.SlowEMAPeriod),
		adx:     indicators.NewADX(cfg.Trend.ADXPeriod),
	}
}

func (t *Trend) Analyze(ctx context.Context, data map[string][]types.OHLCV) ([]*types.Signal, error) {
	var signals []*types.Signal

	for _, symbol := range t.symbols {
		candles := data[symbol]
		if len(candles) < 2 {
			continue
		}

		fast, err := t.fastEMA.Calculate(candles)
		if err != nil {
			continue
		}
		slow, err := t.slowEMA.Calculate(candles)
		if err != nil {
			continue
		}
		prevFast, err := t.fastEMA.Calculate(candles[:len(candles)-1])
		if err != nil {
			continue
		}
		prevSlow, err := t.slowEMA.Calculate(candles[:len(candles)-1])
		if err != nil {
			continue
		}

		bullishCross := prevFast <= prevSlow && fast > slow
		bearishCross := prevFast >= prevSlow && fast < slow
		pos := t.mirrorPosition(symbol)

		// Crosses close the opposite position unconditionally; new entries
		// additionally require trend strength.
		if bearishCross && pos != nil && pos.Side == types.PositionSideLong {
			sig, err := types.NewSignal(t.id, t.strategy, symbol, types.SignalCloseLong, 1.0)
			if err != nil {
				return nil, err
			}
			signals = append(signals, sig.WithExit("bearish EMA cross"))
		}
		if bullishCross && pos != nil && pos.Side == types.PositionSideShort {
			sig, err := types.NewSignal(t.id, t.strategy, symbol, types.SignalCloseShort, 1.0)
			if err != nil {
				return nil, err
			}
			signals = append(signals, sig.WithExit("bullish EMA cross"))
		}

		if !bullishCross && !bearishCross {
			continue
		}
		adx, err := t.adx.Calculate(candles)
		if err != nil || adx < t.params.MinADX {
			continue
		}
		confidence := trendConfidence(adx, t.params.MinADX)

		if bullishCross && (pos == nil || pos.Side == types.PositionSideShort) {
			sig, err := types.NewSignal(t.id, t.strategy, symbol, types.SignalBuy, confidence)
			if err != nil {
				return nil, err
			}
			signals = append(signals, sig.WithEntry(0, 0))
		}
		if bearishCross && t.allowShort && (pos == nil || pos.Side == types.PositionSideLong) {
			sig, err := types.NewSignal(t.id, t.strategy, symbol, types.SignalSell, confidence)
			if err != nil {
				return nil, err
			}
			signals = append(signals, sig.WithEntry(0, 0))
		}
	}

	t.recordSignals(len(signals))
	return signals, nil
}

// trendConfidence maps ADX above the entry floor onto [0.5, 1.0], saturating
// at ADX 50 which already marks a very strong trend.
func trendConfidence(adx, minADX float64) float64 {
	span := 50.0 - minADX
	if span <= 0 {
		return 1.0
	}
	return 0.5 + 0.5*clamp((adx-minADX)/span, 0, 1)
}
