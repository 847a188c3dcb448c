package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpool/multi-engine-bot/internal/config"
	"github.com/quantpool/multi-engine-bot/internal/logger"
	"github.com/quantpool/multi-engine-bot/pkg/types"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		RiskPerTradePct:        0.01,
		MaxPositionPct:         0.20,
		MaxDailyLossPct:        0.02,
		MaxWeeklyLossPct:       0.05,
		MaxConcurrentPositions: 3,
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
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	log, err := logger.New(t.TempDir(), "risk-test")
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	return NewManager(testRiskConfig(), log)
}

func testPortfolio(total float64) *types.Portfolio {
	return &types.Portfolio{
		TotalBalance:       total,
		AvailableBalance:   total,
		DailyStartBalance:  total,
		WeeklyStartBalance: total,
	}
}

func buySignal(t *testing.T, symbol string, confidence float64) *types.Signal {
	t.Helper()
	sig, err := types.NewSignal("trend-1", "trend", symbol, types.SignalBuy, confidence)
	require.NoError(t, err)
	return sig
}

func TestCheckSignal_ApprovesCleanSignal(t *testing.T) {
	m := newTestManager(t)

	check := m.CheckSignal(buySignal(t, "BTCUSDT", 0.8), testPortfolio(10000), nil)
	assert.True(t, check.Passed)
	assert.Equal(t, RiskLevelNormal, check.Level)
}

func TestCheckSignal_DailyLossTriggersEmergencyStop(t *testing.T) {
	m := newTestManager(t)
	pf := testPortfolio(10000)
	m.RecordRealizedPnL(pf, -250) // 2.5% loss against a 2% limit

	check := m.CheckSignal(buySignal(t, "BTCUSDT", 0.99), pf, nil)
	assert.False(t, check.Passed)
	assert.Equal(t, RuleDailyLoss, check.Rule)
	assert.Equal(t, RiskLevelCritical, check.Level)
	assert.True(t, m.EmergencyStopped())
	assert.Equal(t, CauseDailyLoss, m.Emergency().Cause)
}

func TestCheckSignal_EmergencyStopBlocksEverySignal(t *testing.T) {
	m := newTestManager(t)
	pf := testPortfolio(10000)
	m.TriggerEmergencyStop(CauseManual, "ops@desk", "drill")

	for _, confidence := range []float64{0.0, 0.5, 1.0} {
		check := m.CheckSignal(buySignal(t, "ETHUSDT", confidence), pf, nil)
		assert.False(t, check.Passed)
		assert.Equal(t, RuleEmergencyStop, check.Rule)
		assert.Equal(t, RiskLevelCritical, check.Level)
	}

	m.ResetEmergencyStop("ops@desk")
	check := m.CheckSignal(buySignal(t, "ETHUSDT", 0.9), pf, nil)
	assert.True(t, check.Passed)
}

func TestCheckSignal_RuleOrderIsStable(t *testing.T) {
	m := newTestManager(t)
	// Portfolio violating both the daily-loss rule and the confidence floor:
	// the observed reason must be the daily-loss rule's.
	pf := testPortfolio(10000)
	pf.DailyRealizedPnL = -300

	check := m.CheckSignal(buySignal(t, "BTCUSDT", 0.01), pf, nil)
	assert.False(t, check.Passed)
	assert.Equal(t, RuleDailyLoss, check.Rule)
}

func TestCheckSignal_MaxConcurrentPositions(t *testing.T) {
	m := newTestManager(t)
	pf := testPortfolio(10000)

	positions := []*types.Position{
		{Symbol: "BTCUSDT", Side: types.PositionSideLong, EngineID: "a"},
		{Symbol: "ETHUSDT", Side: types.PositionSideLong, EngineID: "b"},
		{Symbol: "SOLUSDT", Side: types.PositionSideLong, EngineID: "c"},
		{Symbol: "XRPUSDT", Side: types.PositionSideLong, EngineID: "d"},
		{Symbol: "ADAUSDT", Side: types.PositionSideLong, EngineID: "e"},
	}

	check := m.CheckSignal(buySignal(t, "DOGEUSDT", 0.9), pf, positions)
	assert.False(t, check.Passed)
	assert.Equal(t, RuleMaxPositions, check.Rule)
	assert.Equal(t, RiskLevelWarning, check.Level)
}

func TestCheckSignal_DuplicateSameDirection(t *testing.T) {
	m := newTestManager(t)
	pf := testPortfolio(10000)
	positions := []*types.Position{
		{Symbol: "BTCUSDT", Side: types.PositionSideLong, EngineID: "accum-1"},
	}

	check := m.CheckSignal(buySignal(t, "BTCUSDT", 0.9), pf, positions)
	assert.False(t, check.Passed)
	assert.Equal(t, RuleDuplicatePosition, check.Rule)

	// Opposite direction on the same symbol is allowed through this rule.
	sell, err := types.NewSignal("arb-1", "funding_arb", "BTCUSDT", types.SignalSell, 0.9)
	require.NoError(t, err)
	check = m.CheckSignal(sell, pf, positions)
	assert.True(t, check.Passed)

	// Close signals reduce exposure and are exempt from the duplicate rule.
	closeSig, err := types.NewSignal("accum-1", "accumulation", "BTCUSDT", types.SignalClose, 0.9)
	require.NoError(t, err)
	check = m.CheckSignal(closeSig, pf, positions)
	assert.True(t, check.Passed)
}

func TestCheckSignal_ExposureCeiling(t *testing.T) {
	m := newTestManager(t)
	pf := testPortfolio(10000)
	pf.AvailableBalance = 1500 // 85% deployed against an 80% ceiling

	check := m.CheckSignal(buySignal(t, "BTCUSDT", 0.9), pf, nil)
	assert.False(t, check.Passed)
	assert.Equal(t, RuleExposure, check.Rule)
	assert.Equal(t, RiskLevelWarning, check.Level)
}

func TestCheckSignal_ConfidenceFloor(t *testing.T) {
	m := newTestManager(t)

	check := m.CheckSignal(buySignal(t, "BTCUSDT", 0.39), testPortfolio(10000), nil)
	assert.False(t, check.Passed)
	assert.Equal(t, RuleConfidence, check.Rule)
}

func TestCalculatePositionSize(t *testing.T) {
	m := newTestManager(t)

	// risk 1% of 10000 = 100; distance 50000-48500 = 1500 -> 0.0667 BTC,
	// under the 20% cap (10000*0.2/50000 = 0.04). Cap wins.
	qty := m.CalculatePositionSize(10000, 50000, 48500)
	assert.InDelta(t, 0.04, qty, 1e-9)

	// Wide stop: risk amount dominates. 100 / 5000 = 0.02.
	qty = m.CalculatePositionSize(10000, 50000, 45000)
	assert.InDelta(t, 0.02, qty, 1e-9)

	// No stop supplied: max-position cap applies directly.
	qty = m.CalculatePositionSize(10000, 50000, 0)
	assert.InDelta(t, 0.04, qty, 1e-9)
}

func TestCalculateStopLoss(t *testing.T) {
	m := newTestManager(t)

	assert.InDelta(t, 48500.0, m.CalculateStopLoss(50000, types.PositionSideLong), 1e-6)
	assert.InDelta(t, 51500.0, m.CalculateStopLoss(50000, types.PositionSideShort), 1e-6)
}

func TestWindowRollover_ResetsAccumulatorsAndClearsStop(t *testing.T) {
	m := newTestManager(t)
	current := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return current }

	pf := testPortfolio(10000)
	m.RecordRealizedPnL(pf, -250)

	check := m.CheckSignal(buySignal(t, "BTCUSDT", 0.9), pf, nil)
	assert.False(t, check.Passed)
	assert.True(t, m.EmergencyStopped())

	// Same day: accumulators hold, stop holds.
	current = current.Add(2 * time.Hour)
	assert.False(t, m.CheckSignal(buySignal(t, "BTCUSDT", 0.9), pf, nil).Passed)
	assert.InDelta(t, -250.0, pf.DailyRealizedPnL, 1e-9)

	// Next day: daily accumulator resets and the daily-loss stop clears.
	current = current.Add(24 * time.Hour)
	check = m.CheckSignal(buySignal(t, "BTCUSDT", 0.9), pf, nil)
	assert.True(t, check.Passed)
	assert.Zero(t, pf.DailyRealizedPnL)
	assert.False(t, m.EmergencyStopped())
	// Weekly window has not rolled yet.
	assert.InDelta(t, -250.0, pf.WeeklyRealizedPnL, 1e-9)

	// Crossing the 7-day boundary resets the weekly accumulator too.
	current = current.Add(8 * 24 * time.Hour)
	m.CheckSignal(buySignal(t, "BTCUSDT", 0.9), pf, nil)
	assert.Zero(t, pf.WeeklyRealizedPnL)
}

func TestWindowRollover_DoesNotClearCircuitBreakerStop(t *testing.T) {
	m := newTestManager(t)
	current := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return current }
	m.breaker.now = m.now

	m.EvaluateCircuitBreaker(10000)
	level, _ := m.EvaluateCircuitBreaker(7500) // 25% drawdown -> LEVEL_4
	assert.Equal(t, BreakerLevel4, level)
	assert.True(t, m.EmergencyStopped())

	pf := testPortfolio(7500)
	current = current.Add(26 * time.Hour)
	check := m.CheckSignal(buySignal(t, "BTCUSDT", 0.9), pf, nil)
	assert.False(t, check.Passed)
	assert.Equal(t, RuleEmergencyStop, check.Rule)
	assert.True(t, m.EmergencyStopped())

	// Only the breaker's own authorized reset clears it.
	m.ResetCircuitBreaker("ops@desk")
	assert.False(t, m.EmergencyStopped())
	assert.Equal(t, BreakerNone, m.BreakerState().Level)
}

func TestTriggerEmergencyStop_Idempotent(t *testing.T) {
	m := newTestManager(t)

	assert.True(t, m.TriggerEmergencyStop(CauseManual, "ops@desk", "first"))
	assert.False(t, m.TriggerEmergencyStop(CauseEmergencyExit, "system", "second"))
	assert.Equal(t, CauseManual, m.Emergency().Cause)
}

func TestRollWindows_ClearsDailyStopWithoutSignals(t *testing.T) {
	m := newTestManager(t)
	current := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return current }

	pf := testPortfolio(10000)
	m.RecordRealizedPnL(pf, -250)
	require.False(t, m.CheckSignal(buySignal(t, "BTCUSDT", 0.9), pf, nil).Passed)
	require.True(t, m.EmergencyStopped())

	// Same day: a rollover pass changes nothing.
	current = current.Add(6 * time.Hour)
	m.RollWindows(pf)
	assert.True(t, m.EmergencyStopped())
	assert.InDelta(t, -250.0, pf.DailyRealizedPnL, 1e-9)

	// The boundary crossing clears the stop even though no signal flows.
	current = current.Add(24 * time.Hour)
	m.RollWindows(pf)
	assert.False(t, m.EmergencyStopped())
	assert.Zero(t, pf.DailyRealizedPnL)
}
