package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpool/multi-engine-bot/internal/config"
	"github.com/quantpool/multi-engine-bot/internal/exchange"
	"github.com/quantpool/multi-engine-bot/internal/logger"
	"github.com/quantpool/multi-engine-bot/internal/risk"
	"github.com/quantpool/multi-engine-bot/internal/state"
	"github.com/quantpool/multi-engine-bot/pkg/types"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Instance = "test-bot"
	cfg.Exchange = config.ExchangeConfig{Name: "paper", Category: "linear"}
	cfg.Risk = config.RiskConfig{
		RiskPerTradePct:        0.02,
		MaxPositionPct:         0.20,
		MaxDailyLossPct:        0.02,
		MaxWeeklyLossPct:       0.05,
		MaxConcurrentPositions: 5,
		MaxExposurePct:         0.80,
		MinConfidence:          0.40,
		StopLossPct:            0.03,
		CircuitBreaker: config.CircuitBreakerConfig{
			Level1DrawdownPct: 0.05,
			Level2DrawdownPct: 0.10,
			Level3DrawdownPct: 0.15,
			Level4DrawdownPct: 0.20,
			CheckInterval:     config.Duration(time.Minute),
		},
	}
	cfg.Engines = []config.EngineConfig{
		{
			ID:                  "eng-acc",
			Type:                "accumulation",
			Symbols:             []string{"BTCUSDT"},
			TargetAllocationPct: 0.40,
			AnalysisInterval:    config.Duration(time.Hour),
			Accumulation:        &config.AccumulationParams{SMAPeriod: 20, DiscountPct: 0.05, MaxDiscountPct: 0.15},
		},
		{
			ID:                  "eng-arb",
			Type:                "funding_arb",
			Symbols:             []string{"SOLUSDT"},
			TargetAllocationPct: 0.20,
			AnalysisInterval:    config.Duration(time.Hour),
			AllowShort:          true,
			FundingArb:          &config.FundingArbParams{LookbackPeriod: 5, EntryDriftPct: 0.03, ExitDriftPct: 0.005},
		},
	}
	return cfg
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *exchange.PaperExchange, *state.MemoryStore) {
	t.Helper()
	log, err := logger.New(t.TempDir(), "test-bot")
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	paper := exchange.NewPaperExchange()
	store := state.NewMemoryStore()
	o, err := New(testConfig(), log, paper, store)
	require.NoError(t, err)
	require.NoError(t, o.Restore(context.Background()))
	return o, paper, store
}

func mustSignal(t *testing.T, engineID, strategy, symbol string, kind types.SignalKind, confidence float64) *types.Signal {
	t.Helper()
	sig, err := types.NewSignal(engineID, strategy, symbol, kind, confidence)
	require.NoError(t, err)
	return sig
}

func TestPipeline_EntryOrderOpensPosition(t *testing.T) {
	o, paper, store := newTestOrchestrator(t)
	paper.SetPrice("BTCUSDT", 50000)
	ctx := context.Background()

	eng := o.engineByID("eng-acc")
	sig := mustSignal(t, "eng-acc", "accumulation", "BTCUSDT", types.SignalBuy, 0.8)

	result := o.executeSignal(ctx, eng, o.states["eng-acc"], sig)
	require.Equal(t, ExecExecuted, result.Status)
	require.Len(t, result.Orders, 1)
	assert.Equal(t, "eng-acc", result.Orders[0].EngineID)

	o.reconcileOrders(ctx)

	pos, ok := o.positions[types.PositionKey("eng-acc", "BTCUSDT")]
	require.True(t, ok, "fill opens the canonical position")
	assert.Equal(t, types.PositionSideLong, pos.Side)
	assert.InDelta(t, 50000.0, pos.EntryPrice, 1e-9)

	// Sizing: capital 4000 (40% of 10000); risk 80 over a 1500 stop distance
	// would give 0.0533 but the 20% max-position cap limits it to 0.016.
	assert.InDelta(t, 0.016, pos.Amount, 1e-9)

	stored, err := store.OpenPositions()
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Empty(t, o.pending, "terminal order leaves the pending set")
	assert.Equal(t, 1, eng.Stats().FillCount, "fill callback reached the engine")
}

func TestPipeline_TopUpFillAveragesEntry(t *testing.T) {
	o, paper, _ := newTestOrchestrator(t)
	ctx := context.Background()
	eng := o.engineByID("eng-acc")
	st := o.states["eng-acc"]

	paper.SetPrice("BTCUSDT", 50000)
	o.executeSignal(ctx, eng, st, mustSignal(t, "eng-acc", "accumulation", "BTCUSDT", types.SignalBuy, 0.8))
	o.reconcileOrders(ctx)
	require.Contains(t, o.positions, types.PositionKey("eng-acc", "BTCUSDT"))

	// A price crash makes the live notional (0.016 * 40000 = 640) drift far
	// below the 4000 target, so the rebalance tops up 3360 of notional.
	paper.SetPrice("BTCUSDT", 40000)
	sig := mustSignal(t, "eng-acc", "accumulation", "", types.SignalRebalance, 1.0).
		WithRebalance(map[string]float64{"BTCUSDT": 1.0}, 0.10)
	result := o.executeSignal(ctx, eng, st, sig)
	require.Equal(t, ExecExecuted, result.Status)
	require.Len(t, result.Orders, 1)
	o.reconcileOrders(ctx)

	pos := o.positions[types.PositionKey("eng-acc", "BTCUSDT")]
	require.NotNil(t, pos)
	assert.InDelta(t, 0.1, pos.Amount, 1e-9)
	// VWAP of 0.016 @ 50000 and 0.084 @ 40000.
	assert.InDelta(t, 41600.0, pos.EntryPrice, 1e-6)
}

func TestPipeline_ExitClosesPositionAndBooksTrade(t *testing.T) {
	o, paper, store := newTestOrchestrator(t)
	ctx := context.Background()
	eng := o.engineByID("eng-acc")
	st := o.states["eng-acc"]

	paper.SetPrice("BTCUSDT", 50000)
	o.executeSignal(ctx, eng, st, mustSignal(t, "eng-acc", "accumulation", "BTCUSDT", types.SignalBuy, 0.8))
	o.reconcileOrders(ctx)
	require.Contains(t, o.positions, types.PositionKey("eng-acc", "BTCUSDT"))

	paper.SetPrice("BTCUSDT", 52000)
	closeSig := mustSignal(t, "eng-acc", "accumulation", "BTCUSDT", types.SignalClose, 1.0).WithExit("target reached")
	result := o.executeSignal(ctx, eng, st, closeSig)
	require.Equal(t, ExecExecuted, result.Status)
	o.reconcileOrders(ctx)

	assert.NotContains(t, o.positions, types.PositionKey("eng-acc", "BTCUSDT"))

	trades, err := store.ClosedTrades(10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "target reached", trades[0].ExitReason)
	assert.InDelta(t, 0.016*2000, trades[0].PnL, 1e-9)
	assert.True(t, trades[0].IsWin())

	assert.Equal(t, 1, st.Trades)
	assert.Equal(t, 1, st.Wins)
	assert.InDelta(t, 32.0, o.portfolio.DailyRealizedPnL, 1e-9, "pnl recorded into the risk windows")

	stored, err := store.OpenPositions()
	require.NoError(t, err)
	assert.Empty(t, stored, "position removed from the store on full close")
}

func TestPipeline_CloseWithoutPositionIsNoOp(t *testing.T) {
	o, paper, _ := newTestOrchestrator(t)
	paper.SetPrice("BTCUSDT", 50000)
	eng := o.engineByID("eng-acc")

	sig := mustSignal(t, "eng-acc", "accumulation", "BTCUSDT", types.SignalClose, 1.0)
	result := o.executeSignal(context.Background(), eng, o.states["eng-acc"], sig)
	assert.Equal(t, ExecNoOp, result.Status)
	assert.Contains(t, result.Reason, "no open position")
}

func TestPipeline_LowConfidenceRejected(t *testing.T) {
	o, paper, _ := newTestOrchestrator(t)
	paper.SetPrice("BTCUSDT", 50000)
	eng := o.engineByID("eng-acc")

	sig := mustSignal(t, "eng-acc", "accumulation", "BTCUSDT", types.SignalBuy, 0.2)
	result := o.executeSignal(context.Background(), eng, o.states["eng-acc"], sig)
	assert.Equal(t, ExecRejected, result.Status)
	assert.Contains(t, result.Reason, "confidence")
	assert.Empty(t, o.pending, "rejected signals never reach the exchange")
}

func TestPipeline_ShortEntryRequiresAllowShort(t *testing.T) {
	o, paper, _ := newTestOrchestrator(t)
	paper.SetPrice("BTCUSDT", 50000)
	paper.SetPrice("SOLUSDT", 150)
	ctx := context.Background()

	// The accumulation engine is long-only.
	sig := mustSignal(t, "eng-acc", "accumulation", "BTCUSDT", types.SignalSell, 0.9)
	result := o.executeSignal(ctx, o.engineByID("eng-acc"), o.states["eng-acc"], sig)
	assert.Equal(t, ExecNoOp, result.Status)
	assert.Contains(t, result.Reason, "short selling disabled")

	// The funding-arb engine may short.
	sig = mustSignal(t, "eng-arb", "funding_arb", "SOLUSDT", types.SignalSell, 0.9)
	result = o.executeSignal(ctx, o.engineByID("eng-arb"), o.states["eng-arb"], sig)
	require.Equal(t, ExecExecuted, result.Status)
	o.reconcileOrders(ctx)

	pos := o.positions[types.PositionKey("eng-arb", "SOLUSDT")]
	require.NotNil(t, pos)
	assert.Equal(t, types.PositionSideShort, pos.Side)
}

func TestPipeline_EmergencyExitHaltsEverything(t *testing.T) {
	o, paper, _ := newTestOrchestrator(t)
	paper.SetPrice("BTCUSDT", 50000)
	ctx := context.Background()
	eng := o.engineByID("eng-acc")
	st := o.states["eng-acc"]

	sig := mustSignal(t, "eng-acc", "accumulation", "", types.SignalEmergencyExit, 1.0)
	result := o.executeSignal(ctx, eng, st, sig)
	assert.Equal(t, ExecExecuted, result.Status)
	assert.True(t, o.risk.EmergencyStopped())
	assert.Equal(t, "EMERGENCY_STOPPED", string(st.Lifecycle()))

	// Every later signal is rejected until the stop is reset.
	buy := mustSignal(t, "eng-acc", "accumulation", "BTCUSDT", types.SignalBuy, 0.99)
	result = o.executeSignal(ctx, eng, st, buy)
	assert.Equal(t, ExecRejected, result.Status)

	o.ResetEmergencyStop("ops@desk")
	assert.False(t, o.risk.EmergencyStopped())
	result = o.executeSignal(ctx, eng, st, mustSignal(t, "eng-acc", "accumulation", "BTCUSDT", types.SignalBuy, 0.99))
	assert.Equal(t, ExecExecuted, result.Status)
}

func TestRebalance_DeltaOrdersPerDriftedSymbol(t *testing.T) {
	o, paper, _ := newTestOrchestrator(t)
	ctx := context.Background()
	eng := o.engineByID("eng-acc")
	st := o.states["eng-acc"]
	paper.SetPrice("BTCUSDT", 100)

	// Engine allocation is 4000 (40% of 10000); the full-target plan makes the
	// symbol's target 4000. A live notional of 3400 is a 15% drift.
	o.positions[types.PositionKey("eng-acc", "BTCUSDT")] = &types.Position{
		Symbol: "BTCUSDT", Side: types.PositionSideLong,
		EntryPrice: 100, Amount: 34, EngineID: "eng-acc", OpenedAt: time.Now(),
	}

	sig := mustSignal(t, "eng-acc", "accumulation", "", types.SignalRebalance, 1.0).
		WithRebalance(map[string]float64{"BTCUSDT": 1.0}, 0.10)
	result := o.executeSignal(ctx, eng, st, sig)
	require.Equal(t, ExecExecuted, result.Status)
	require.Len(t, result.Orders, 1, "one order per drifted symbol")

	order := result.Orders[0]
	assert.Equal(t, types.OrderSideBuy, order.Side)
	// Notional equals the 600 delta, not the 4000 target.
	assert.InDelta(t, 6.0, order.Amount, 1e-9)
}

func TestRebalance_WithinThresholdIsNoOp(t *testing.T) {
	o, paper, _ := newTestOrchestrator(t)
	paper.SetPrice("BTCUSDT", 100)
	eng := o.engineByID("eng-acc")
	st := o.states["eng-acc"]

	// 5% drift against a 10% threshold.
	o.positions[types.PositionKey("eng-acc", "BTCUSDT")] = &types.Position{
		Symbol: "BTCUSDT", Side: types.PositionSideLong,
		EntryPrice: 100, Amount: 38, EngineID: "eng-acc", OpenedAt: time.Now(),
	}

	sig := mustSignal(t, "eng-acc", "accumulation", "", types.SignalRebalance, 1.0).
		WithRebalance(map[string]float64{"BTCUSDT": 1.0}, 0.10)
	result := o.executeSignal(context.Background(), eng, st, sig)
	assert.Equal(t, ExecNoOp, result.Status)
}

func TestPipeline_ExchangeFaultIsReported(t *testing.T) {
	o, paper, _ := newTestOrchestrator(t)
	paper.SetPrice("BTCUSDT", 50000)
	paper.FailNext(assert.AnError)
	eng := o.engineByID("eng-acc")

	sig := mustSignal(t, "eng-acc", "accumulation", "BTCUSDT", types.SignalBuy, 0.9)
	result := o.executeSignal(context.Background(), eng, o.states["eng-acc"], sig)
	assert.Equal(t, ExecFault, result.Status)
	assert.Error(t, result.Err)
	assert.Empty(t, o.pending)
}

func TestBreaker_Level4PropagatesEmergencyStop(t *testing.T) {
	o, paper, _ := newTestOrchestrator(t)
	ctx := context.Background()

	// Seed the high-water mark at 10000, then crash 21%.
	o.evaluateBreaker()
	paper.SetBalance(7900, 7900)
	require.NoError(t, o.refreshBalance(ctx))
	o.evaluateBreaker()

	assert.True(t, o.risk.EmergencyStopped())
	assert.Equal(t, risk.CauseCircuitBreaker, o.risk.Emergency().Cause)
	for _, st := range o.states {
		assert.Equal(t, "EMERGENCY_STOPPED", string(st.Lifecycle()))
	}

	// Only the breaker reset clears a breaker-caused stop.
	o.ResetCircuitBreaker("ops@desk")
	assert.False(t, o.risk.EmergencyStopped())
	assert.Equal(t, risk.BreakerNone, o.risk.BreakerState().Level)
}

func TestBreaker_MidLevelsSuspendOnlyIntolerantEngines(t *testing.T) {
	cfg := testConfig()
	cfg.Engines[1].BreakerTolerance = 2 // funding-arb rides out LEVEL_1..2

	log, err := logger.New(t.TempDir(), "test-bot")
	require.NoError(t, err)
	defer log.Close()
	paper := exchange.NewPaperExchange()
	o, err := New(cfg, log, paper, state.NewMemoryStore())
	require.NoError(t, err)
	require.NoError(t, o.Restore(context.Background()))

	o.evaluateBreaker()
	paper.SetBalance(8900, 8900) // 11% drawdown -> LEVEL_2
	require.NoError(t, o.refreshBalance(context.Background()))
	o.evaluateBreaker()

	assert.Equal(t, "CIRCUIT_BROKEN", string(o.states["eng-acc"].Lifecycle()))
	assert.Equal(t, "ACTIVE", string(o.states["eng-arb"].Lifecycle()))
	assert.False(t, o.states["eng-acc"].CanTrade(time.Now()))
	assert.True(t, o.states["eng-arb"].CanTrade(time.Now()))
}

func TestRestore_ReloadsPositionsAndEngineState(t *testing.T) {
	store := state.NewMemoryStore()
	require.NoError(t, store.SavePosition(&types.Position{
		Symbol: "BTCUSDT", Side: types.PositionSideLong,
		EntryPrice: 45000, Amount: 0.02, EngineID: "eng-acc", OpenedAt: time.Now(),
	}))
	require.NoError(t, store.SaveEngineState(&state.EngineStateRecord{
		EngineID: "eng-acc", Active: true, Trades: 7, Wins: 4, Losses: 3, RealizedPnL: 123.4,
	}))

	log, err := logger.New(t.TempDir(), "test-bot")
	require.NoError(t, err)
	defer log.Close()
	o, err := New(testConfig(), log, exchange.NewPaperExchange(), store)
	require.NoError(t, err)
	require.NoError(t, o.Restore(context.Background()))

	require.Contains(t, o.positions, types.PositionKey("eng-acc", "BTCUSDT"))
	st := o.states["eng-acc"]
	assert.Equal(t, 7, st.Trades)
	assert.InDelta(t, 123.4, st.RealizedPnL, 1e-9)
	assert.Equal(t, "ACTIVE", string(st.Lifecycle()))

	sig := mustSignal(t, "eng-acc", "accumulation", "BTCUSDT", types.SignalClose, 1.0)
	paperEx := o.ex.(*exchange.PaperExchange)
	paperEx.SetPrice("BTCUSDT", 46000)
	result := o.executeSignal(context.Background(), o.engineByID("eng-acc"), st, sig)
	assert.Equal(t, ExecExecuted, result.Status, "restored position is closable")
}

func TestStatus_SnapshotReflectsState(t *testing.T) {
	o, paper, _ := newTestOrchestrator(t)
	paper.SetPrice("BTCUSDT", 50000)
	ctx := context.Background()

	o.executeSignal(ctx, o.engineByID("eng-acc"), o.states["eng-acc"],
		mustSignal(t, "eng-acc", "accumulation", "BTCUSDT", types.SignalBuy, 0.8))
	o.reconcileOrders(ctx)

	snap := o.Status()
	assert.False(t, snap.EmergencyStop)
	assert.Equal(t, 1, snap.OpenPositions)
	assert.InDelta(t, 10000.0, snap.TotalBalance, 1e-9)
	require.Len(t, snap.Engines, 2)
	assert.Equal(t, "eng-acc", snap.Engines[0].EngineID)
	assert.Equal(t, "ACTIVE", snap.Engines[0].Lifecycle)
}

func TestRun_StopsCooperativelyAndPersists(t *testing.T) {
	o, paper, store := newTestOrchestrator(t)
	paper.SetPrice("BTCUSDT", 50000)
	o.positions[types.PositionKey("eng-acc", "BTCUSDT")] = &types.Position{
		Symbol: "BTCUSDT", Side: types.PositionSideLong,
		EntryPrice: 50000, Amount: 0.01, EngineID: "eng-acc", OpenedAt: time.Now(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		o.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator did not stop")
	}

	stored, err := store.OpenPositions()
	require.NoError(t, err)
	assert.Len(t, stored, 1, "final state persisted on shutdown")
	states, err := store.EngineStates()
	require.NoError(t, err)
	assert.Len(t, states, 2)
}

func TestPipeline_DailyLossLimitHaltsTrading(t *testing.T) {
	o, paper, _ := newTestOrchestrator(t)
	ctx := context.Background()
	eng := o.engineByID("eng-acc")
	st := o.states["eng-acc"]

	paper.SetPrice("BTCUSDT", 50000)
	result := o.executeSignal(ctx, eng, st, mustSignal(t, "eng-acc", "accumulation", "BTCUSDT", types.SignalBuy, 0.8))
	require.Equal(t, ExecExecuted, result.Status)
	o.reconcileOrders(ctx)

	// The admission check seeds the day's start balance on the shared
	// portfolio, not on a private copy.
	assert.InDelta(t, 10000.0, o.portfolio.DailyStartBalance, 1e-9)

	// Close 0.016 BTC at a 15625 drop: a 250 realized loss, 2.5% of the
	// day's start against the 2% limit.
	paper.SetPrice("BTCUSDT", 34375)
	closeSig := mustSignal(t, "eng-acc", "accumulation", "BTCUSDT", types.SignalClose, 1.0).WithExit("stop hit")
	require.Equal(t, ExecExecuted, o.executeSignal(ctx, eng, st, closeSig).Status)
	o.reconcileOrders(ctx)
	assert.InDelta(t, -250.0, o.portfolio.DailyRealizedPnL, 1e-9)

	result = o.executeSignal(ctx, eng, st, mustSignal(t, "eng-acc", "accumulation", "BTCUSDT", types.SignalBuy, 0.99))
	assert.Equal(t, ExecRejected, result.Status)
	assert.Contains(t, result.Reason, "daily loss")
	assert.True(t, o.risk.EmergencyStopped())
	assert.Equal(t, risk.CauseDailyLoss, o.risk.Emergency().Cause)
	assert.Equal(t, "EMERGENCY_STOPPED", string(st.Lifecycle()), "tripped stop reaches engine lifecycles")
}

func TestRollPeriodWindows_ManualStopSurvives(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.TriggerEmergencyStop("ops@desk", "drill")

	o.rollPeriodWindows()

	assert.True(t, o.risk.EmergencyStopped())
	assert.Equal(t, risk.CauseManual, o.risk.Emergency().Cause)
	assert.Equal(t, "EMERGENCY_STOPPED", string(o.states["eng-acc"].Lifecycle()))
}

func TestPipeline_OppositeEntryBlockedWhilePositionOpen(t *testing.T) {
	o, paper, store := newTestOrchestrator(t)
	ctx := context.Background()
	eng := o.engineByID("eng-arb")
	st := o.states["eng-arb"]
	paper.SetPrice("SOLUSDT", 150)

	sell := mustSignal(t, "eng-arb", "funding_arb", "SOLUSDT", types.SignalSell, 0.9)
	require.Equal(t, ExecExecuted, o.executeSignal(ctx, eng, st, sell).Status)
	o.reconcileOrders(ctx)

	pos := o.positions[types.PositionKey("eng-arb", "SOLUSDT")]
	require.NotNil(t, pos)
	require.Equal(t, types.PositionSideShort, pos.Side)
	shortAmount := pos.Amount

	buy := mustSignal(t, "eng-arb", "funding_arb", "SOLUSDT", types.SignalBuy, 0.9)
	result := o.executeSignal(ctx, eng, st, buy)
	assert.Equal(t, ExecNoOp, result.Status)
	assert.Contains(t, result.Reason, "close it first")

	pos = o.positions[types.PositionKey("eng-arb", "SOLUSDT")]
	require.NotNil(t, pos, "short survives the blocked entry")
	assert.Equal(t, types.PositionSideShort, pos.Side)
	assert.InDelta(t, shortAmount, pos.Amount, 1e-9)

	trades, err := store.ClosedTrades(10)
	require.NoError(t, err)
	assert.Empty(t, trades, "nothing was silently closed")
}

func TestReconcile_OppositeFillNeverReplacesPosition(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	key := types.PositionKey("eng-arb", "SOLUSDT")
	o.positions[key] = &types.Position{
		Symbol: "SOLUSDT", Side: types.PositionSideShort,
		EntryPrice: 150, Amount: 2.5, EngineID: "eng-arb", OpenedAt: time.Now(),
	}

	o.applyEntryFill(&types.Order{
		ID: "conflict-1", Symbol: "SOLUSDT", Side: types.OrderSideBuy,
		EngineID: "eng-arb", FilledAmount: 2.5, AvgFillPrice: 150,
	})

	pos := o.positions[key]
	require.NotNil(t, pos)
	assert.Equal(t, types.PositionSideShort, pos.Side)
	assert.InDelta(t, 2.5, pos.Amount, 1e-9)
	assert.InDelta(t, 150.0, pos.EntryPrice, 1e-9)
}
