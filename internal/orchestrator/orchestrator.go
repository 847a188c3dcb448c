package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quantpool/multi-engine-bot/internal/config"
	"github.com/quantpool/multi-engine-bot/internal/engine"
	"github.com/quantpool/multi-engine-bot/internal/errors"
	"github.com/quantpool/multi-engine-bot/internal/exchange"
	"github.com/quantpool/multi-engine-bot/internal/logger"
	"github.com/quantpool/multi-engine-bot/internal/monitoring"
	"github.com/quantpool/multi-engine-bot/internal/notifications"
	"github.com/quantpool/multi-engine-bot/internal/risk"
	"github.com/quantpool/multi-engine-bot/internal/state"
	"github.com/quantpool/multi-engine-bot/pkg/types"
)

// Orchestrator owns the main scheduling loop. It is the single writer of the
// canonical position map, the pending-order map, and every engine's lifecycle
// state; engines only ever see reconciled copies. All exchange and store I/O
// happens from the loop goroutine, so the mutex exists solely for the status
// snapshot and the manual control methods.
type Orchestrator struct {
	cfg      *config.Config
	log      *logger.Logger
	ex       exchange.Exchange
	store    state.Store
	risk     *risk.Manager
	health   *monitoring.HealthChecker
	notifier notifications.Notifier

	engines []engine.StrategyEngine
	states  map[string]*engine.State

	mu          sync.RWMutex
	portfolio   *types.Portfolio
	positions   map[string]*types.Position // keyed by types.PositionKey
	pending     map[string]*types.Order
	exitReasons map[string]string // order ID -> exit reason for the trade record

	lastAnalysis map[string]time.Time
	lastBalance  time.Time
	lastBreaker  time.Time

	running bool
	now     func() time.Time
}

// New wires the orchestrator from validated configuration and its
// collaborators. Engine construction failures are fatal.
func New(cfg *config.Config, log *logger.Logger, ex exchange.Exchange, store state.Store) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:          cfg,
		log:          log,
		ex:           ex,
		store:        store,
		risk:         risk.NewManager(cfg.Risk, log),
		health:       monitoring.NewHealthChecker(),
		notifier:     notifications.NoopNotifier{},
		states:       make(map[string]*engine.State),
		portfolio:    &types.Portfolio{},
		positions:    make(map[string]*types.Position),
		pending:      make(map[string]*types.Order),
		exitReasons:  make(map[string]string),
		lastAnalysis: make(map[string]time.Time),
		now:          time.Now,
	}

	for _, engCfg := range cfg.Engines {
		eng, err := engine.New(engCfg)
		if err != nil {
			return nil, errors.NewConfigError("orchestrator", err.Error())
		}
		o.engines = append(o.engines, eng)
		o.states[eng.ID()] = engine.NewState(
			eng.ID(),
			engCfg.TargetAllocationPct,
			risk.BreakerLevel(engCfg.BreakerTolerance),
		)
	}
	return o, nil
}

// Health returns the health checker fed by the loop, for the HTTP endpoint.
func (o *Orchestrator) Health() *monitoring.HealthChecker { return o.health }

// SetNotifier replaces the alert channel. Must be called before Run.
func (o *Orchestrator) SetNotifier(n notifications.Notifier) {
	if n != nil {
		o.notifier = n
	}
}

// notify sends an operational alert without blocking the loop on delivery
// failures.
func (o *Orchestrator) notify(level, format string, args ...interface{}) {
	if err := o.notifier.SendAlert(level, fmt.Sprintf(format, args...)); err != nil {
		o.log.Warning("alert delivery failed: %v", err)
	}
}

// Restore reloads persisted positions and engine state, then fetches the
// initial balance. Must be called once before Run.
func (o *Orchestrator) Restore(ctx context.Context) error {
	positions, err := o.store.OpenPositions()
	if err != nil {
		return err
	}
	records, err := o.store.EngineStates()
	if err != nil {
		return err
	}

	o.mu.Lock()
	for _, pos := range positions {
		o.positions[pos.Key()] = pos
	}
	for id, st := range o.states {
		rec, ok := records[id]
		if !ok {
			continue
		}
		st.Paused = rec.Paused
		st.PauseReason = rec.PauseReason
		st.Trades = rec.Trades
		st.Wins = rec.Wins
		st.Losses = rec.Losses
		st.RealizedPnL = rec.RealizedPnL
	}
	o.mu.Unlock()

	for _, eng := range o.engines {
		eng.SyncPositions(positions)
	}
	if len(positions) > 0 {
		o.log.Info("restored %d open positions from previous session", len(positions))
	}

	if err := o.refreshBalance(ctx); err != nil {
		return err
	}
	for _, st := range o.states {
		st.Activate()
	}
	return nil
}

// Run executes the main loop until ctx is cancelled, then persists final
// state. A panic or error inside one iteration is logged and followed by a
// backoff sleep; the loop itself never dies.
func (o *Orchestrator) Run(ctx context.Context) {
	o.mu.Lock()
	o.running = true
	o.mu.Unlock()

	o.log.Info("orchestrator started: %d engines, exchange %s", len(o.engines), o.ex.Name())

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return
		default:
		}

		sleep := o.cfg.Loop.Interval.Std()
		if o.risk.EmergencyStopped() {
			o.rollPeriodWindows()
		}
		if o.risk.EmergencyStopped() {
			// Halted: no analysis, no orders, just stay alive and responsive.
			o.health.SetEmergency(true)
			monitoring.SetEmergencyStop(true)
			sleep = time.Second
		} else if err := o.safeIterate(ctx); err != nil {
			o.log.Error("loop iteration failed: %v", err)
			o.health.RecordError(err)
			monitoring.RecordError(string(errors.CategoryOf(err)))
			sleep = o.cfg.Loop.ErrorBackoff.Std()
		}
		o.health.MarkIteration()

		select {
		case <-ctx.Done():
			o.shutdown()
			return
		case <-time.After(sleep):
		}
	}
}

// rollPeriodWindows advances the loss windows while halted. A daily or weekly
// stop that crosses its own period boundary clears here, with the clear
// mirrored into every engine state.
func (o *Orchestrator) rollPeriodWindows() {
	o.mu.RLock()
	pf := o.portfolio
	o.mu.RUnlock()

	o.risk.RollWindows(pf)
	if !o.risk.EmergencyStopped() {
		o.propagateEmergency(false)
		o.log.Info("emergency stop cleared by period rollover, trading resumed")
	}
}

// safeIterate shields the loop from a panicking engine or collaborator.
func (o *Orchestrator) safeIterate(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in loop iteration: %v", r)
		}
	}()
	return o.iterate(ctx)
}

// iterate runs one pass of the scheduling loop: timers, engine analysis,
// signal execution, order reconciliation.
func (o *Orchestrator) iterate(ctx context.Context) error {
	now := o.now()

	if o.lastBalance.IsZero() || now.Sub(o.lastBalance) >= o.cfg.Loop.BalanceRefreshInterval.Std() {
		if err := o.refreshBalance(ctx); err != nil {
			// Stale balances are tolerable for a cycle; hard-fail only the refresh.
			o.log.Warning("balance refresh failed: %v", err)
			monitoring.RecordError(string(errors.CategoryOf(err)))
		}
		o.lastBalance = now
	}

	if o.lastBreaker.IsZero() || now.Sub(o.lastBreaker) >= o.cfg.Risk.CircuitBreaker.CheckInterval.Std() {
		o.evaluateBreaker()
		o.lastBreaker = now
	}

	for _, eng := range o.engines {
		st := o.states[eng.ID()]
		if !st.CanTrade(now) {
			continue
		}
		if last, ok := o.lastAnalysis[eng.ID()]; ok && now.Sub(last) < eng.AnalysisInterval() {
			continue
		}
		o.lastAnalysis[eng.ID()] = now
		o.runEngine(ctx, eng, st)

		// An engine emitting EMERGENCY_EXIT halts its siblings immediately.
		if o.risk.EmergencyStopped() {
			break
		}
	}

	o.reconcileOrders(ctx)
	return nil
}

// runEngine fetches market data, invokes one engine's analysis, and executes
// the returned signals. Engine failures are recorded and contained.
func (o *Orchestrator) runEngine(ctx context.Context, eng engine.StrategyEngine, st *engine.State) {
	data := make(map[string][]types.OHLCV, len(eng.Symbols()))
	for _, symbol := range eng.Symbols() {
		candles, err := o.ex.GetOHLCV(ctx, symbol, o.cfg.Loop.MarketDataInterval, o.cfg.Loop.MarketDataLimit)
		if err != nil {
			o.log.Warning("market data fetch failed for %s: %v", symbol, err)
			monitoring.RecordError(string(errors.CategoryExchange))
			continue
		}
		data[symbol] = candles
	}
	if len(data) == 0 {
		return
	}

	signals, err := eng.Analyze(ctx, data)
	if err != nil {
		engErr := errors.NewEngineError(eng.ID(), err)
		o.log.Error("%v", engErr)
		monitoring.RecordError(string(errors.CategoryEngine))
		return
	}

	for _, sig := range signals {
		st.LastSignalAt = sig.Timestamp
		result := o.executeSignal(ctx, eng, st, sig)
		switch result.Status {
		case ExecExecuted:
			monitoring.RecordSignal(eng.ID(), "approved")
		case ExecRejected:
			monitoring.RecordSignal(eng.ID(), "rejected")
		case ExecNoOp:
			monitoring.RecordSignal(eng.ID(), "noop")
			o.log.Info("signal %s: no-op (%s)", sig, result.Reason)
		case ExecFault:
			monitoring.RecordSignal(eng.ID(), "fault")
			o.log.Error("signal %s: execution fault: %v", sig, result.Err)
		}
		if o.risk.EmergencyStopped() {
			return
		}
	}
}

// refreshBalance replaces the shared portfolio snapshot and recomputes each
// engine's live allocation. Drift beyond the tolerance is logged, never acted
// on automatically.
func (o *Orchestrator) refreshBalance(ctx context.Context) error {
	fresh, err := o.ex.GetBalance(ctx)
	if err != nil {
		return err
	}

	o.mu.Lock()
	// PnL accumulators and period snapshots survive the wholesale replacement.
	fresh.DailyStartBalance = o.portfolio.DailyStartBalance
	fresh.WeeklyStartBalance = o.portfolio.WeeklyStartBalance
	fresh.DailyRealizedPnL = o.portfolio.DailyRealizedPnL
	fresh.WeeklyRealizedPnL = o.portfolio.WeeklyRealizedPnL
	o.portfolio = fresh
	openCount := len(o.positions)
	o.mu.Unlock()

	monitoring.UpdatePortfolio(fresh.TotalBalance, openCount)
	o.updateAllocations(ctx)

	o.mu.RLock()
	o.log.LogPortfolioStatus(
		o.portfolio.TotalBalance,
		o.portfolio.AvailableBalance,
		o.portfolio.DailyRealizedPnL,
		len(o.positions),
		len(o.pending),
	)
	o.mu.RUnlock()
	return nil
}

// updateAllocations marks each engine's live capital share to market and logs
// drift beyond the configured tolerance.
func (o *Orchestrator) updateAllocations(ctx context.Context) {
	o.mu.RLock()
	total := o.portfolio.TotalBalance
	byEngine := make(map[string]float64)
	prices := make(map[string]float64)
	for _, pos := range o.positions {
		price, ok := prices[pos.Symbol]
		if !ok {
			ticker, err := o.ex.GetTicker(ctx, pos.Symbol)
			if err != nil {
				continue
			}
			price = ticker.Price
			prices[pos.Symbol] = price
		}
		byEngine[pos.EngineID] += pos.Notional(price)
	}
	o.mu.RUnlock()

	for id, st := range o.states {
		st.UpdateAllocation(byEngine[id], total)
		if drift := st.AllocationDrift(); drift > o.cfg.Loop.AllocationDriftPct {
			o.log.Warning("engine %s allocation drift %.1f%% (current %.1f%%, target %.1f%%)",
				id, drift*100, st.CurrentAllocationPct*100, st.TargetAllocationPct*100)
		}
	}
}

// evaluateBreaker recomputes the global breaker and mirrors the level into
// every engine state.
func (o *Orchestrator) evaluateBreaker() {
	o.mu.RLock()
	value := o.portfolio.TotalBalance
	o.mu.RUnlock()
	if value <= 0 {
		return
	}

	level, escalated := o.risk.EvaluateCircuitBreaker(value)
	breaker := o.risk.BreakerState()
	monitoring.UpdateCircuitBreaker(int(level), breaker.Drawdown)
	if escalated {
		alertLevel := notifications.LevelWarning
		if level == risk.BreakerLevel4 {
			alertLevel = notifications.LevelError
		}
		o.notify(alertLevel, "Circuit breaker escalated to %s (drawdown %.1f%%)",
			level, breaker.Drawdown*100)
	}

	stopped := o.risk.EmergencyStopped()
	for _, st := range o.states {
		st.SetBreakerLevel(level)
		st.SetEmergencyStopped(stopped)
	}
	o.health.SetEmergency(stopped)
	monitoring.SetEmergencyStop(stopped)
}

// TriggerEmergencyStop manually halts all trading. Operator identity is
// recorded for the audit trail.
func (o *Orchestrator) TriggerEmergencyStop(operator, reason string) {
	o.risk.TriggerEmergencyStop(risk.CauseManual, operator, reason)
	o.propagateEmergency(true)
	o.notify(notifications.LevelError, "Emergency stop triggered by %s: %s", operator, reason)
}

// ResetEmergencyStop clears a stop through an explicit identity-bearing call.
func (o *Orchestrator) ResetEmergencyStop(operator string) {
	o.risk.ResetEmergencyStop(operator)
	o.propagateEmergency(false)
	o.notify(notifications.LevelInfo, "Emergency stop reset by %s, trading resumed", operator)
}

// ResetCircuitBreaker clears the breaker level and any breaker-caused stop.
func (o *Orchestrator) ResetCircuitBreaker(operator string) {
	o.risk.ResetCircuitBreaker(operator)
	stopped := o.risk.EmergencyStopped()
	for _, st := range o.states {
		st.SetBreakerLevel(risk.BreakerNone)
		st.SetEmergencyStopped(stopped)
	}
	o.propagateEmergency(stopped)
}

func (o *Orchestrator) propagateEmergency(active bool) {
	for _, st := range o.states {
		st.SetEmergencyStopped(active)
	}
	o.health.SetEmergency(active)
	monitoring.SetEmergencyStop(active)
}

// PauseEngine suspends one engine. Zero duration pauses until ResumeEngine.
func (o *Orchestrator) PauseEngine(engineID, reason string, d time.Duration) error {
	st, ok := o.states[engineID]
	if !ok {
		return errors.NewValidationError("orchestrator", "pause", "unknown engine "+engineID)
	}
	st.Pause(reason, d)
	o.log.Info("engine %s paused: %s", engineID, reason)
	return nil
}

// ResumeEngine lifts a pause.
func (o *Orchestrator) ResumeEngine(engineID string) error {
	st, ok := o.states[engineID]
	if !ok {
		return errors.NewValidationError("orchestrator", "resume", "unknown engine "+engineID)
	}
	st.Resume()
	o.log.Info("engine %s resumed", engineID)
	return nil
}

// shutdown persists final state before the process exits.
func (o *Orchestrator) shutdown() {
	o.mu.Lock()
	o.running = false
	positions := make([]*types.Position, 0, len(o.positions))
	for _, pos := range o.positions {
		positions = append(positions, pos)
	}
	o.mu.Unlock()

	for _, pos := range positions {
		if err := o.store.SavePosition(pos); err != nil {
			o.log.Error("final position persist failed for %s: %v", pos.Key(), err)
		}
	}
	for _, st := range o.states {
		if err := o.store.SaveEngineState(stateRecord(st)); err != nil {
			o.log.Error("final engine state persist failed for %s: %v", st.EngineID, err)
		}
	}
	o.log.Info("orchestrator stopped, state persisted")
}

func stateRecord(st *engine.State) *state.EngineStateRecord {
	return &state.EngineStateRecord{
		EngineID:         st.EngineID,
		Active:           st.Active,
		Paused:           st.Paused,
		PauseReason:      st.PauseReason,
		BreakerLevel:     int(st.BreakerLevel),
		EmergencyStopped: st.EmergencyStopped,
		Trades:           st.Trades,
		Wins:             st.Wins,
		Losses:           st.Losses,
		RealizedPnL:      st.RealizedPnL,
	}
}

func (o *Orchestrator) engineByID(id string) engine.StrategyEngine {
	for _, eng := range o.engines {
		if eng.ID() == id {
			return eng
		}
	}
	return nil
}

// openPositionsLocked returns the canonical positions as a slice. Caller must
// hold at least a read lock.
func (o *Orchestrator) openPositionsLocked() []*types.Position {
	positions := make([]*types.Position, 0, len(o.positions))
	for _, pos := range o.positions {
		positions = append(positions, pos)
	}
	return positions
}
