package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/quantpool/multi-engine-bot/internal/engine"
	"github.com/quantpool/multi-engine-bot/internal/exchange"
	"github.com/quantpool/multi-engine-bot/internal/monitoring"
	"github.com/quantpool/multi-engine-bot/internal/notifications"
	"github.com/quantpool/multi-engine-bot/internal/risk"
	"github.com/quantpool/multi-engine-bot/pkg/types"
)

// ExecStatus classifies the outcome of running one signal through the
// execution pipeline. Expected no-ops (nothing to close, drift below
// threshold) are distinguished from real faults so callers never treat a
// quiet cycle as a failure.
type ExecStatus int

const (
	ExecExecuted ExecStatus = iota
	ExecRejected
	ExecNoOp
	ExecFault
)

// ExecResult is the explicit result of the signal execution pipeline.
type ExecResult struct {
	Status ExecStatus
	Reason string
	Err    error
	Orders []*types.Order
}

func executed(orders ...*types.Order) ExecResult {
	return ExecResult{Status: ExecExecuted, Orders: orders}
}

func rejectedBy(check risk.RiskCheck) ExecResult {
	return ExecResult{Status: ExecRejected, Reason: check.Reason}
}

func noop(reason string) ExecResult {
	return ExecResult{Status: ExecNoOp, Reason: reason}
}

func fault(err error) ExecResult {
	return ExecResult{Status: ExecFault, Err: err}
}

// executeSignal runs one signal through admission control and the kind-specific
// execution branch.
func (o *Orchestrator) executeSignal(ctx context.Context, eng engine.StrategyEngine, st *engine.State, sig *types.Signal) ExecResult {
	// EMERGENCY_EXIT bypasses order creation entirely.
	if sig.Kind == types.SignalEmergencyExit {
		o.risk.TriggerEmergencyStop(risk.CauseEmergencyExit, eng.ID(),
			fmt.Sprintf("emergency exit signalled by engine %s", eng.ID()))
		o.propagateEmergency(true)
		o.notify(notifications.LevelError, "Engine %s signalled EMERGENCY_EXIT, all trading halted", eng.ID())
		return executed()
	}

	// The canonical portfolio goes in by reference: CheckSignal seeds the
	// period start balances and rolls the loss windows, and those mutations
	// must land on the shared snapshot, not a copy.
	o.mu.RLock()
	pf := o.portfolio
	positions := o.openPositionsLocked()
	o.mu.RUnlock()

	check := o.risk.CheckSignal(sig, pf, positions)
	if !check.Passed {
		monitoring.RecordRiskRejection(check.Rule)
		if o.risk.EmergencyStopped() {
			// A loss-limit rejection trips the stop inside the check.
			o.propagateEmergency(true)
		}
		return rejectedBy(check)
	}

	switch sig.Kind {
	case types.SignalBuy:
		return o.executeEntry(ctx, eng, st, sig, types.OrderSideBuy)
	case types.SignalSell:
		if !eng.AllowShort() {
			return noop("short selling disabled for engine " + eng.ID())
		}
		return o.executeEntry(ctx, eng, st, sig, types.OrderSideSell)
	case types.SignalClose, types.SignalCloseLong, types.SignalCloseShort:
		return o.executeExit(ctx, eng, sig)
	case types.SignalRebalance:
		return o.executeRebalance(ctx, eng, st, sig)
	}
	return fault(fmt.Errorf("unknown signal kind %s", sig.Kind))
}

// executeEntry sizes and submits an entry order for a BUY or SELL signal.
func (o *Orchestrator) executeEntry(ctx context.Context, eng engine.StrategyEngine, st *engine.State, sig *types.Signal, side types.OrderSide) ExecResult {
	posSide := types.PositionSideLong
	if side == types.OrderSideSell {
		posSide = types.PositionSideShort
	}

	// An entry against the engine's own open position would silently replace
	// it at fill time; the position must be closed through the exit path first.
	o.mu.RLock()
	existing, hasPos := o.positions[types.PositionKey(eng.ID(), sig.Symbol)]
	var existingSide types.PositionSide
	if hasPos {
		existingSide = existing.Side
	}
	o.mu.RUnlock()
	if hasPos && existingSide != posSide {
		return noop(fmt.Sprintf("open %s position for %s/%s blocks a %s entry, close it first",
			existingSide, eng.ID(), sig.Symbol, posSide))
	}

	ticker, err := o.ex.GetTicker(ctx, sig.Symbol)
	if err != nil {
		return fault(err)
	}
	price := ticker.Price
	if price <= 0 {
		return fault(fmt.Errorf("no usable price for %s", sig.Symbol))
	}

	stopLoss := 0.0
	takeProfit := 0.0
	if sig.Entry != nil {
		stopLoss = sig.Entry.StopLoss
		takeProfit = sig.Entry.TakeProfit
	}
	if stopLoss <= 0 {
		stopLoss = o.risk.CalculateStopLoss(price, posSide)
	}

	o.mu.RLock()
	capital := o.portfolio.TotalBalance * st.TargetAllocationPct
	o.mu.RUnlock()

	qty := o.risk.CalculatePositionSize(capital, price, stopLoss)
	if qty <= 0 {
		return noop(fmt.Sprintf("computed quantity is zero for %s at %.2f", sig.Symbol, price))
	}

	order, err := o.submitOrder(ctx, eng, exchange.OrderRequest{
		Symbol:     sig.Symbol,
		Side:       side,
		Kind:       types.OrderKindMarket,
		Amount:     qty,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		LinkID:     uuid.NewString(),
	}, "")
	if err != nil {
		return fault(err)
	}

	o.log.Trade("%s ENTRY %s %s qty=%.6f price~%.2f stop=%.2f confidence=%.2f",
		eng.ID(), side, sig.Symbol, qty, price, stopLoss, sig.Confidence)
	return executed(order)
}

// executeExit resolves the engine-scoped position named by a close signal and
// submits a reduce-only exit order. A missing position is an expected no-op.
func (o *Orchestrator) executeExit(ctx context.Context, eng engine.StrategyEngine, sig *types.Signal) ExecResult {
	o.mu.RLock()
	pos, ok := o.positions[types.PositionKey(eng.ID(), sig.Symbol)]
	var posCopy types.Position
	if ok {
		posCopy = *pos
	}
	o.mu.RUnlock()

	if !ok || posCopy.Amount <= 0 {
		return noop(fmt.Sprintf("no open position to close for %s/%s", eng.ID(), sig.Symbol))
	}
	if sig.Kind == types.SignalCloseLong && posCopy.Side != types.PositionSideLong {
		return noop(fmt.Sprintf("no long position for %s/%s", eng.ID(), sig.Symbol))
	}
	if sig.Kind == types.SignalCloseShort && posCopy.Side != types.PositionSideShort {
		return noop(fmt.Sprintf("no short position for %s/%s", eng.ID(), sig.Symbol))
	}

	side := types.OrderSideSell
	if posCopy.Side == types.PositionSideShort {
		side = types.OrderSideBuy
	}
	reason := ""
	if sig.Exit != nil {
		reason = sig.Exit.Reason
	}

	order, err := o.submitOrder(ctx, eng, exchange.OrderRequest{
		Symbol:     sig.Symbol,
		Side:       side,
		Kind:       types.OrderKindMarket,
		Amount:     posCopy.Amount,
		ReduceOnly: true,
		LinkID:     uuid.NewString(),
	}, reason)
	if err != nil {
		return fault(err)
	}

	o.log.Trade("%s EXIT %s %s qty=%.6f reason=%s", eng.ID(), side, sig.Symbol, posCopy.Amount, reason)
	return executed(order)
}

// executeRebalance compares each target symbol's live notional to its target
// share of the engine's allocation and submits one delta order per symbol
// whose drift exceeds the plan's threshold.
func (o *Orchestrator) executeRebalance(ctx context.Context, eng engine.StrategyEngine, st *engine.State, sig *types.Signal) ExecResult {
	if sig.Rebalance == nil || len(sig.Rebalance.Targets) == 0 {
		return noop("rebalance signal without targets")
	}

	o.mu.RLock()
	allocation := o.portfolio.TotalBalance * st.TargetAllocationPct
	o.mu.RUnlock()

	symbols := make([]string, 0, len(sig.Rebalance.Targets))
	for symbol := range sig.Rebalance.Targets {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	var orders []*types.Order
	for _, symbol := range symbols {
		targetFrac := sig.Rebalance.Targets[symbol]
		target := allocation * targetFrac
		if target <= 0 {
			continue
		}

		ticker, err := o.ex.GetTicker(ctx, symbol)
		if err != nil {
			return fault(err)
		}
		price := ticker.Price
		if price <= 0 {
			continue
		}

		o.mu.RLock()
		pos, ok := o.positions[types.PositionKey(eng.ID(), symbol)]
		current := 0.0
		held := 0.0
		if ok {
			current = pos.Notional(price)
			held = pos.Amount
		}
		o.mu.RUnlock()

		drift := (target - current) / target
		if drift < 0 {
			drift = -drift
		}
		if drift < sig.Rebalance.DriftThreshold {
			continue
		}

		// The order's notional is the delta between target and current, never
		// the full target value.
		delta := target - current
		qty := delta / price
		req := exchange.OrderRequest{
			Symbol: symbol,
			Kind:   types.OrderKindMarket,
			LinkID: uuid.NewString(),
		}
		if qty > 0 {
			req.Side = types.OrderSideBuy
			req.Amount = qty
		} else {
			req.Side = types.OrderSideSell
			req.Amount = -qty
			req.ReduceOnly = true
			if req.Amount > held {
				req.Amount = held
			}
			if req.Amount <= 0 {
				continue
			}
		}

		order, err := o.submitOrder(ctx, eng, req, "rebalance")
		if err != nil {
			return fault(err)
		}
		orders = append(orders, order)
		o.log.Trade("%s REBALANCE %s %s qty=%.6f target=%.2f current=%.2f",
			eng.ID(), req.Side, symbol, req.Amount, target, current)
	}

	if len(orders) == 0 {
		return noop("all targets within drift threshold")
	}
	return executed(orders...)
}

// submitOrder places an order, tags it with its owning engine, persists it,
// and tracks it in the pending set until reconciliation retires it.
func (o *Orchestrator) submitOrder(ctx context.Context, eng engine.StrategyEngine, req exchange.OrderRequest, exitReason string) (*types.Order, error) {
	order, err := o.ex.CreateOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	order.EngineID = eng.ID()
	order.Strategy = eng.Strategy()

	if err := o.store.SaveOrder(order); err != nil {
		o.log.Warning("order persist failed for %s: %v", order.ID, err)
	}

	o.mu.Lock()
	o.pending[order.ID] = order
	if exitReason != "" {
		o.exitReasons[order.ID] = exitReason
	}
	o.mu.Unlock()

	monitoring.RecordOrder(order.Symbol, string(order.Side))
	return order, nil
}
