package engine

import (
	"context"
	"math"

	"github.com/quantpool/multi-engine-bot/internal/config"
	"github.com/quantpool/multi-engine-bot/pkg/types"
)

// candlesPerYear assumes hourly candles; the drift annualization only needs to
// be consistent, not exact.
const candlesPerYear = 24 * 365

// FundingArb shorts perpetuals whose price has drifted sharply upward over the
// lookback window, harvesting the elevated funding that accompanies crowded
// longs. It exits once the drift normalizes. This engine only ever holds
// short positions.
type FundingArb struct {
	base
	params config.FundingArbParams
}

func NewFundingArb(cfg config.EngineConfig) *FundingArb {
	return &FundingArb{
		base:   newBase(cfg, "funding_arb"),
		params: *cfg.FundingArb,
	}
}

func (f *FundingArb) AllowShort() bool { return true }

func (f *FundingArb) Analyze(ctx context.Context, data map[string][]types.OHLCV) ([]*types.Signal, error) {
	var signals []*types.Signal

	for _, symbol := range f.symbols {
		candles := data[symbol]
		if len(candles) < f.params.LookbackPeriod+1 {
			continue
		}

		drift, annualized := f.drift(candles)
		pos := f.mirrorPosition(symbol)

		if pos != nil && pos.Side == types.PositionSideShort {
			if drift <= f.params.ExitDriftPct {
				sig, err := types.NewSignal(f.id, f.strategy, symbol, types.SignalCloseShort, 1.0)
				if err != nil {
					return nil, err
				}
				signals = append(signals, sig.WithExit("premium normalized"))
			}
			continue
		}
		if pos != nil {
			continue
		}

		if drift < f.params.EntryDriftPct || annualized < f.params.MinAnnualizedPct {
			continue
		}
		confidence := 0.5 + 0.5*clamp(drift/(2*f.params.EntryDriftPct), 0, 1)
		sig, err := types.NewSignal(f.id, f.strategy, symbol, types.SignalSell, confidence)
		if err != nil {
			return nil, err
		}
		signals = append(signals, sig.WithEntry(0, 0))
	}

	f.recordSignals(len(signals))
	return signals, nil
}

// drift returns the fractional price change over the lookback window and its
// annualized equivalent.
func (f *FundingArb) drift(candles []types.OHLCV) (float64, float64) {
	last := candles[len(candles)-1].Close
	ref := candles[len(candles)-1-f.params.LookbackPeriod].Close
	if ref <= 0 {
		return 0, 0
	}
	drift := (last - ref) / ref
	periodsPerYear := float64(candlesPerYear) / float64(f.params.LookbackPeriod)
	annualized := math.Pow(1+drift, periodsPerYear) - 1
	return drift, annualized
}
