package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/quantpool/multi-engine-bot/internal/monitoring"
	"github.com/quantpool/multi-engine-bot/internal/notifications"
	"github.com/quantpool/multi-engine-bot/pkg/types"
)

// reconcileOrders polls every pending order and folds terminal fills into the
// canonical position map, engine callbacks, and the trade journal. Failed
// terminal orders are dropped from the pending set. Fills are processed in
// the order the exchange reports them.
func (o *Orchestrator) reconcileOrders(ctx context.Context) {
	o.mu.RLock()
	ids := make([]string, 0, len(o.pending))
	for id := range o.pending {
		ids = append(ids, id)
	}
	o.mu.RUnlock()

	for _, id := range ids {
		o.mu.RLock()
		tracked, ok := o.pending[id]
		o.mu.RUnlock()
		if !ok {
			continue
		}

		fetched, err := o.ex.GetOrderStatus(ctx, id, tracked.Symbol)
		if err != nil {
			o.log.Warning("order status check failed for %s: %v", id, err)
			continue
		}

		// The exchange does not know engine attribution; merge its status and
		// fill data into our tagged copy.
		tracked.Status = fetched.Status
		tracked.FilledAmount = fetched.FilledAmount
		tracked.AvgFillPrice = fetched.AvgFillPrice
		tracked.UpdatedAt = time.Now()

		if err := o.store.SaveOrder(tracked); err != nil {
			o.log.Warning("order persist failed for %s: %v", id, err)
		}

		if !tracked.Status.IsTerminal() {
			continue
		}

		if tracked.Status.IsFailed() {
			o.log.Warning("order %s for %s/%s ended %s without a full fill",
				id, tracked.EngineID, tracked.Symbol, tracked.Status)
			o.forgetOrder(id)
			continue
		}

		o.applyFill(tracked)
		o.forgetOrder(id)
	}
}

func (o *Orchestrator) forgetOrder(id string) {
	o.mu.Lock()
	delete(o.pending, id)
	delete(o.exitReasons, id)
	o.mu.Unlock()
}

// applyFill routes a filled order into the position map and the owning
// engine's callbacks.
func (o *Orchestrator) applyFill(order *types.Order) {
	if order.FilledAmount <= 0 || order.AvgFillPrice <= 0 {
		o.log.Warning("filled order %s has no usable fill data, skipping", order.ID)
		return
	}
	if order.ReduceOnly {
		o.applyExitFill(order)
		return
	}
	o.applyEntryFill(order)
}

// applyEntryFill opens or averages up the engine's position for the symbol.
func (o *Orchestrator) applyEntryFill(order *types.Order) {
	side := types.PositionSideLong
	if order.Side == types.OrderSideSell {
		side = types.PositionSideShort
	}
	key := types.PositionKey(order.EngineID, order.Symbol)

	o.mu.Lock()
	pos, exists := o.positions[key]
	if exists && pos.Side != side {
		// Never replace an open position with an opposite-direction fill; the
		// exit path is the only way a position closes.
		o.mu.Unlock()
		o.log.Error("entry fill %s is %s against an open %s position for %s, fill not applied",
			order.ID, side, pos.Side, key)
		return
	}
	if exists {
		if err := pos.ApplyFill(order.FilledAmount, order.AvgFillPrice); err != nil {
			o.mu.Unlock()
			o.log.Error("fill averaging failed for %s: %v", key, err)
			return
		}
	} else {
		pos = &types.Position{
			Symbol:     order.Symbol,
			Side:       side,
			EntryPrice: order.AvgFillPrice,
			Amount:     order.FilledAmount,
			StopLoss:   order.StopLoss,
			TakeProfit: order.TakeProfit,
			EngineID:   order.EngineID,
			OpenedAt:   time.Now(),
			UpdatedAt:  time.Now(),
		}
		o.positions[key] = pos
	}
	posCopy := *pos
	o.mu.Unlock()

	if err := o.store.SavePosition(&posCopy); err != nil {
		o.log.Warning("position persist failed for %s: %v", key, err)
	}

	if eng := o.engineByID(order.EngineID); eng != nil {
		eng.OnOrderFilled(order, order.AvgFillPrice)
	}
	o.log.Trade("FILL %s %s %s %.6f @ %.2f", order.EngineID, order.Side, order.Symbol,
		order.FilledAmount, order.AvgFillPrice)
}

// applyExitFill reduces or deletes the position, books realized PnL into the
// risk windows, writes the trade record, and notifies the engine.
func (o *Orchestrator) applyExitFill(order *types.Order) {
	key := types.PositionKey(order.EngineID, order.Symbol)

	o.mu.Lock()
	pos, exists := o.positions[key]
	if !exists {
		o.mu.Unlock()
		o.log.Warning("exit fill %s references no open position for %s", order.ID, key)
		return
	}

	fillAmount := order.FilledAmount
	if fillAmount > pos.Amount {
		fillAmount = pos.Amount
	}
	pnl := pos.RealizedPnL(fillAmount, order.AvgFillPrice)
	remaining, err := pos.Reduce(fillAmount)
	if err != nil {
		o.mu.Unlock()
		o.log.Error("position reduce failed for %s: %v", key, err)
		return
	}
	fullClose := remaining <= 0
	if fullClose {
		delete(o.positions, key)
	}
	posCopy := *pos
	exitReason := o.exitReasons[order.ID]
	pf := o.portfolio
	o.mu.Unlock()

	o.risk.RecordRealizedPnL(pf, pnl)

	trade := &types.Trade{
		ID:         uuid.NewString(),
		Symbol:     order.Symbol,
		Side:       posCopy.Side,
		EngineID:   order.EngineID,
		Strategy:   order.Strategy,
		EntryPrice: posCopy.EntryPrice,
		ExitPrice:  order.AvgFillPrice,
		Amount:     fillAmount,
		PnL:        pnl,
		ExitReason: exitReason,
		OpenedAt:   posCopy.OpenedAt,
		ClosedAt:   time.Now(),
	}
	if err := o.store.SaveTrade(trade); err != nil {
		o.log.Warning("trade persist failed: %v", err)
	}

	if fullClose {
		if err := o.store.DeletePosition(order.EngineID, order.Symbol); err != nil {
			o.log.Warning("position delete failed for %s: %v", key, err)
		}
	} else {
		if err := o.store.SavePosition(&posCopy); err != nil {
			o.log.Warning("position persist failed for %s: %v", key, err)
		}
	}

	if st, ok := o.states[order.EngineID]; ok {
		st.RecordTrade(pnl, trade.ClosedAt)
		if err := o.store.SaveEngineState(stateRecord(st)); err != nil {
			o.log.Warning("engine state persist failed for %s: %v", order.EngineID, err)
		}
	}
	if eng := o.engineByID(order.EngineID); eng != nil {
		eng.OnPositionClosed(&posCopy, order.AvgFillPrice, pnl)
	}

	monitoring.RecordTrade(order.EngineID, pnl)
	o.log.Trade("CLOSE %s %s %s %.6f @ %.2f pnl=%.2f reason=%s",
		order.EngineID, posCopy.Side, order.Symbol, fillAmount, order.AvgFillPrice, pnl, exitReason)

	alertLevel := notifications.LevelSuccess
	if pnl < 0 {
		alertLevel = notifications.LevelInfo
	}
	o.notify(alertLevel, "%s closed %s %s: %+.2f USDT (%s)",
		order.EngineID, posCopy.Side, order.Symbol, pnl, exitReason)
}
