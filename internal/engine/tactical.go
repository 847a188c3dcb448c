package engine

import (
	"context"
	"fmt"

	"github.com/quantpool/multi-engine-bot/internal/config"
	"github.com/quantpool/multi-engine-bot/pkg/types"
)

// Tactical holds dry powder and deploys it into sharp selloffs, closing once
// price recovers a configured fraction of the drop. While positioned across
// several symbols it also proposes equal-weight rebalances so no single leg
// dominates the sleeve.
type Tactical struct {
	base
	params config.TacticalParams
}

func NewTactical(cfg config.EngineConfig) *Tactical {
	return &Tactical{
		base:   newBase(cfg, "tactical"),
		params: *cfg.Tactical,
	}
}

func (t *Tactical) AllowShort() bool { return false }

func (t *Tactical) Analyze(ctx context.Context, data map[string][]types.OHLCV) ([]*types.Signal, error) {
	var signals []*types.Signal
	held := 0

	for _, symbol := range t.symbols {
		candles := data[symbol]
		if len(candles) < t.params.LookbackPeriod {
			continue
		}

		high := rollingHigh(candles, t.params.LookbackPeriod)
		price := candles[len(candles)-1].Close
		drop := (high - price) / high
		pos := t.mirrorPosition(symbol)

		if pos != nil {
			held++
			// Recovery target is measured from the entry, not the prior high.
			target := pos.EntryPrice * (1 + t.params.RecoveryPct)
			if price >= target {
				sig, err := types.NewSignal(t.id, t.strategy, symbol, types.SignalClose, 1.0)
				if err != nil {
					return nil, err
				}
				reason := fmt.Sprintf("recovered %.1f%% from entry", t.params.RecoveryPct*100)
				signals = append(signals, sig.WithExit(reason))
			}
			continue
		}

		if drop >= t.params.CrisisDropPct {
			sig, err := types.NewSignal(t.id, t.strategy, symbol, types.SignalBuy, t.params.DeployConfidence)
			if err != nil {
				return nil, err
			}
			signals = append(signals, sig.WithEntry(0, 0))
		}
	}

	// With capital deployed across more than one leg, keep the sleeve
	// equal-weighted.
	if held > 1 {
		targets := make(map[string]float64, len(t.symbols))
		for _, symbol := range t.symbols {
			targets[symbol] = 1.0 / float64(len(t.symbols))
		}
		sig, err := types.NewSignal(t.id, t.strategy, "", types.SignalRebalance, 1.0)
		if err != nil {
			return nil, err
		}
		signals = append(signals, sig.WithRebalance(targets, t.params.RebalanceDrift))
	}

	t.recordSignals(len(signals))
	return signals, nil
}

func rollingHigh(candles []types.OHLCV, lookback int) float64 {
	high := 0.0
	for i := len(candles) - lookback; i < len(candles); i++ {
		if candles[i].High > high {
			high = candles[i].High
		}
	}
	return high
}
