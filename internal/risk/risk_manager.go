package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/quantpool/multi-engine-bot/internal/config"
	"github.com/quantpool/multi-engine-bot/internal/logger"
	"github.com/quantpool/multi-engine-bot/pkg/types"
)

// RiskLevel grades how severe a rejection is.
type RiskLevel string

const (
	RiskLevelNormal   RiskLevel = "normal"
	RiskLevelWarning  RiskLevel = "warning"
	RiskLevelCritical RiskLevel = "critical"
)

// Rule names, reported with every rejection so operators can see exactly
// which limit fired.
const (
	RuleEmergencyStop     = "emergency_stop"
	RuleDailyLoss         = "daily_loss_limit"
	RuleWeeklyLoss        = "weekly_loss_limit"
	RuleMaxPositions      = "max_concurrent_positions"
	RuleDuplicatePosition = "duplicate_position"
	RuleExposure          = "max_exposure"
	RuleConfidence        = "min_confidence"
)

// RiskCheck is the transient result of evaluating one signal. It is never
// persisted.
type RiskCheck struct {
	Passed              bool
	Rule                string
	Reason              string
	Level               RiskLevel
	MaxPositionOverride float64
}

func approved() RiskCheck {
	return RiskCheck{Passed: true, Level: RiskLevelNormal}
}

func rejected(rule, reason string, level RiskLevel) RiskCheck {
	return RiskCheck{Rule: rule, Reason: reason, Level: level}
}

// StopCause records why the emergency stop was tripped. A period rollover
// clears only the stop its own limit caused; a circuit-breaker stop follows
// the breaker's own reset rules.
type StopCause string

const (
	CauseNone           StopCause = ""
	CauseManual         StopCause = "manual"
	CauseDailyLoss      StopCause = "daily_loss"
	CauseWeeklyLoss     StopCause = "weekly_loss"
	CauseCircuitBreaker StopCause = "circuit_breaker"
	CauseEmergencyExit  StopCause = "emergency_exit_signal"
)

// EmergencyState is the externally visible emergency-stop snapshot.
type EmergencyState struct {
	Active    bool
	Cause     StopCause
	Reason    string
	Operator  string
	Timestamp time.Time
}

// Manager is the stateful admission-control gate. Every signal passes through
// CheckSignal before the orchestrator may create an order. Rule evaluation
// order is fixed and short-circuiting: the first violated rule determines the
// rejection reason a caller observes.
type Manager struct {
	cfg     config.RiskConfig
	log     *logger.Logger
	breaker *CircuitBreaker

	emergency EmergencyState

	dailyWindow  time.Time // start of the current wall-clock day
	weeklyWindow time.Time // start of the rolling 7-day window

	mu  sync.Mutex
	now func() time.Time
}

// NewManager builds the risk manager around the configured limits.
func NewManager(cfg config.RiskConfig, log *logger.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		log:     log,
		breaker: NewCircuitBreaker(cfg.CircuitBreaker),
		now:     time.Now,
	}
}

// CheckSignal evaluates the seven admission rules in their contractual order:
// emergency stop, daily loss, weekly loss, max concurrent positions,
// duplicate same-direction position, exposure ceiling, confidence floor.
func (m *Manager) CheckSignal(sig *types.Signal, pf *types.Portfolio, positions []*types.Position) RiskCheck {
	m.mu.Lock()
	defer m.mu.Unlock()

	check := m.checkSignalLocked(sig, pf, positions)
	if !check.Passed {
		m.log.LogRiskRejection(sig.EngineID, sig.Symbol, check.Rule, check.Reason)
	}
	return check
}

func (m *Manager) checkSignalLocked(sig *types.Signal, pf *types.Portfolio, positions []*types.Position) RiskCheck {
	// Windows roll before any rule fires: crossing a period boundary clears
	// the stop that period's limit caused, so rule 1 must see the rolled state.
	m.rollWindowsLocked(pf)

	// 1. Global emergency stop.
	if m.emergency.Active {
		return rejected(RuleEmergencyStop,
			fmt.Sprintf("emergency stop active (%s): %s", m.emergency.Cause, m.emergency.Reason),
			RiskLevelCritical)
	}

	// 2. Daily realized-loss limit. Violation also trips the emergency stop.
	if daily := pf.DailyLossPct(); daily >= m.cfg.MaxDailyLossPct {
		reason := fmt.Sprintf("daily loss %.2f%% reached limit %.2f%%, emergency stop triggered",
			daily*100, m.cfg.MaxDailyLossPct*100)
		m.triggerLocked(CauseDailyLoss, "system", reason)
		return rejected(RuleDailyLoss, reason, RiskLevelCritical)
	}

	// 3. Weekly realized-loss limit. Violation also trips the emergency stop.
	if weekly := pf.WeeklyLossPct(); weekly >= m.cfg.MaxWeeklyLossPct {
		reason := fmt.Sprintf("weekly loss %.2f%% reached limit %.2f%%, emergency stop triggered",
			weekly*100, m.cfg.MaxWeeklyLossPct*100)
		m.triggerLocked(CauseWeeklyLoss, "system", reason)
		return rejected(RuleWeeklyLoss, reason, RiskLevelCritical)
	}

	// 4. Concurrent position ceiling across all engines.
	if len(positions) >= m.cfg.MaxConcurrentPositions {
		return rejected(RuleMaxPositions,
			fmt.Sprintf("max concurrent positions reached (%d/%d)", len(positions), m.cfg.MaxConcurrentPositions),
			RiskLevelWarning)
	}

	// 5. Duplicate same-direction position on the signal's symbol. Close
	// signals reduce exposure and are exempt.
	if dir, opens := entryDirection(sig.Kind); opens {
		for _, pos := range positions {
			if pos.Symbol == sig.Symbol && pos.Side == dir {
				return rejected(RuleDuplicatePosition,
					fmt.Sprintf("%s position already open for %s (engine %s)", dir, sig.Symbol, pos.EngineID),
					RiskLevelNormal)
			}
		}
	}

	// 6. Soft portfolio exposure ceiling.
	if exposure := pf.ExposurePct(); exposure >= m.cfg.MaxExposurePct {
		return rejected(RuleExposure,
			fmt.Sprintf("portfolio exposure %.1f%% at ceiling %.1f%%", exposure*100, m.cfg.MaxExposurePct*100),
			RiskLevelWarning)
	}

	// 7. Confidence floor.
	if sig.Confidence < m.cfg.MinConfidence {
		return rejected(RuleConfidence,
			fmt.Sprintf("confidence %.2f below floor %.2f", sig.Confidence, m.cfg.MinConfidence),
			RiskLevelNormal)
	}

	return approved()
}

// entryDirection maps a signal kind to the position direction it would open.
func entryDirection(kind types.SignalKind) (types.PositionSide, bool) {
	switch kind {
	case types.SignalBuy:
		return types.PositionSideLong, true
	case types.SignalSell:
		return types.PositionSideShort, true
	}
	return "", false
}

// CalculatePositionSize applies fixed-fractional sizing: the quantity that
// risks RiskPerTradePct of capital between entry and stop, capped by the
// max-position percentage. Without a stop, the cap applies directly.
func (m *Manager) CalculatePositionSize(capital, entryPrice, stopPrice float64) float64 {
	if capital <= 0 || entryPrice <= 0 {
		return 0
	}
	maxQty := capital * m.cfg.MaxPositionPct / entryPrice
	dist := math.Abs(entryPrice - stopPrice)
	if stopPrice <= 0 || dist == 0 {
		return maxQty
	}
	qty := capital * m.cfg.RiskPerTradePct / dist
	return math.Min(qty, maxQty)
}

// CalculateStopLoss derives the protective stop from the configured
// percentage distance.
func (m *Manager) CalculateStopLoss(entryPrice float64, side types.PositionSide) float64 {
	if side == types.PositionSideShort {
		return entryPrice * (1 + m.cfg.StopLossPct)
	}
	return entryPrice * (1 - m.cfg.StopLossPct)
}

// RollWindows advances the daily and weekly loss windows without evaluating a
// signal. The orchestrator calls this while halted so a period-caused stop can
// clear at its boundary even though no signal flows.
func (m *Manager) RollWindows(pf *types.Portfolio) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollWindowsLocked(pf)
}

// RecordRealizedPnL accumulates a realized profit or loss into the current
// daily and weekly windows.
func (m *Manager) RecordRealizedPnL(pf *types.Portfolio, pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollWindowsLocked(pf)
	pf.DailyRealizedPnL += pnl
	pf.WeeklyRealizedPnL += pnl
}

// rollWindowsLocked resets the loss accumulators when the wall-clock date or
// the rolling 7-day boundary is crossed. Crossing a boundary also clears the
// emergency stop that period's limit caused, but never a circuit-breaker
// stop.
func (m *Manager) rollWindowsLocked(pf *types.Portfolio) {
	now := m.now()
	today := dateOf(now)

	if m.dailyWindow.IsZero() {
		m.dailyWindow = today
		if pf.DailyStartBalance == 0 {
			pf.DailyStartBalance = pf.TotalBalance
		}
	} else if today.After(m.dailyWindow) {
		m.dailyWindow = today
		pf.DailyStartBalance = pf.TotalBalance
		pf.DailyRealizedPnL = 0
		if m.emergency.Active && m.emergency.Cause == CauseDailyLoss {
			m.clearLocked("system", "daily window rolled over")
		}
	}

	if m.weeklyWindow.IsZero() {
		m.weeklyWindow = today
		if pf.WeeklyStartBalance == 0 {
			pf.WeeklyStartBalance = pf.TotalBalance
		}
	} else if now.Sub(m.weeklyWindow) >= 7*24*time.Hour {
		m.weeklyWindow = today
		pf.WeeklyStartBalance = pf.TotalBalance
		pf.WeeklyRealizedPnL = 0
		if m.emergency.Active && m.emergency.Cause == CauseWeeklyLoss {
			m.clearLocked("system", "weekly window rolled over")
		}
	}
}

// EvaluateCircuitBreaker recomputes the breaker level from the current
// portfolio value. Reaching LEVEL_4 trips the global emergency stop
// unconditionally, once per trip.
func (m *Manager) EvaluateCircuitBreaker(portfolioValue float64) (BreakerLevel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.breaker.Level()
	level, escalated := m.breaker.Evaluate(portfolioValue)
	if escalated {
		m.log.LogCircuitBreaker(before.String(), level.String(), m.breaker.State().Drawdown)
	}
	if level == BreakerLevel4 && !m.emergency.Active {
		m.triggerLocked(CauseCircuitBreaker, "system",
			fmt.Sprintf("circuit breaker reached %s: %s", level, m.breaker.State().Reason))
	}
	return level, escalated
}

// BreakerState returns the breaker snapshot for the status interface.
func (m *Manager) BreakerState() BreakerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breaker.State()
}

// ResetCircuitBreaker clears the breaker level through an explicit authorized
// action. A circuit-breaker-caused emergency stop is cleared with it.
func (m *Manager) ResetCircuitBreaker(operator string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.breaker.Reset(operator)
	if m.emergency.Active && m.emergency.Cause == CauseCircuitBreaker {
		m.clearLocked(operator, "circuit breaker reset")
	}
}

// TriggerEmergencyStop sets the global stop. Idempotent: an active stop keeps
// its original cause. Returns true when this call tripped it.
func (m *Manager) TriggerEmergencyStop(cause StopCause, operator, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triggerLocked(cause, operator, reason)
}

func (m *Manager) triggerLocked(cause StopCause, operator, reason string) bool {
	if m.emergency.Active {
		return false
	}
	m.emergency = EmergencyState{
		Active:    true,
		Cause:     cause,
		Reason:    reason,
		Operator:  operator,
		Timestamp: m.now(),
	}
	m.log.LogEmergencyStop(true, operator, reason)
	return true
}

// ResetEmergencyStop clears the stop through an explicit, identity-bearing
// action.
func (m *Manager) ResetEmergencyStop(operator string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked(operator, "manual reset")
}

func (m *Manager) clearLocked(operator, reason string) {
	if !m.emergency.Active {
		return
	}
	m.emergency = EmergencyState{}
	m.log.LogEmergencyStop(false, operator, reason)
}

// EmergencyStopped reports whether the global stop is active.
func (m *Manager) EmergencyStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emergency.Active
}

// Emergency returns the emergency-stop snapshot.
func (m *Manager) Emergency() EmergencyState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emergency
}
