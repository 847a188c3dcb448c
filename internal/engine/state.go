package engine

import (
	"time"

	"github.com/quantpool/multi-engine-bot/internal/risk"
)

// Lifecycle is the derived lifecycle state of an engine.
type Lifecycle string

const (
	StateUninitialized    Lifecycle = "UNINITIALIZED"
	StateActive           Lifecycle = "ACTIVE"
	StatePaused           Lifecycle = "PAUSED"
	StateCircuitBroken    Lifecycle = "CIRCUIT_BROKEN"
	StateEmergencyStopped Lifecycle = "EMERGENCY_STOPPED"
)

// State is the per-engine lifecycle record and performance counters. One
// instance exists per engine for the whole run; it is persisted and reloaded
// across restarts. The orchestrator is its single writer.
type State struct {
	EngineID string
	Active   bool

	Paused      bool
	PauseReason string
	ResumeAt    time.Time // zero means the pause is indefinite

	TargetAllocationPct  float64
	CurrentAllocationPct float64
	AllocationValue      float64

	// BreakerLevel mirrors the global circuit breaker; BreakerTolerance is
	// the highest level this engine keeps trading through.
	BreakerLevel     risk.BreakerLevel
	BreakerTolerance risk.BreakerLevel

	EmergencyStopped bool

	Trades      int
	Wins        int
	Losses      int
	RealizedPnL float64

	LastSignalAt time.Time
	LastTradeAt  time.Time
}

// NewState creates the state record for one configured engine.
func NewState(engineID string, targetAllocationPct float64, breakerTolerance risk.BreakerLevel) *State {
	return &State{
		EngineID:            engineID,
		TargetAllocationPct: targetAllocationPct,
		BreakerTolerance:    breakerTolerance,
	}
}

// Lifecycle derives the current lifecycle state. Emergency stop dominates,
// then circuit-broken, then paused.
func (s *State) Lifecycle() Lifecycle {
	switch {
	case s.EmergencyStopped:
		return StateEmergencyStopped
	case s.BreakerLevel > s.BreakerTolerance:
		return StateCircuitBroken
	case s.Paused:
		return StatePaused
	case s.Active:
		return StateActive
	}
	return StateUninitialized
}

// CanTrade reports whether the engine may emit tradable signals right now.
// An elapsed auto-resume deadline lifts the pause as a side effect.
func (s *State) CanTrade(now time.Time) bool {
	if s.Paused && !s.ResumeAt.IsZero() && now.After(s.ResumeAt) {
		s.Resume()
	}
	return s.Lifecycle() == StateActive
}

// Activate marks the engine active. Called once at orchestrator startup.
func (s *State) Activate() {
	s.Active = true
}

// Pause suspends the engine. A zero duration pauses indefinitely, requiring
// a manual resume.
func (s *State) Pause(reason string, d time.Duration) {
	s.Paused = true
	s.PauseReason = reason
	if d > 0 {
		s.ResumeAt = time.Now().Add(d)
	} else {
		s.ResumeAt = time.Time{}
	}
}

// Resume lifts a pause.
func (s *State) Resume() {
	s.Paused = false
	s.PauseReason = ""
	s.ResumeAt = time.Time{}
}

// SetBreakerLevel mirrors a circuit-breaker level change into the engine.
func (s *State) SetBreakerLevel(level risk.BreakerLevel) {
	s.BreakerLevel = level
}

// SetEmergencyStopped propagates the global emergency flag. Clearing it is
// only done by the orchestrator's audited reset.
func (s *State) SetEmergencyStopped(stopped bool) {
	s.EmergencyStopped = stopped
}

// RecordTrade folds a closed trade into the counters.
func (s *State) RecordTrade(pnl float64, closedAt time.Time) {
	s.Trades++
	if pnl > 0 {
		s.Wins++
	} else {
		s.Losses++
	}
	s.RealizedPnL += pnl
	s.LastTradeAt = closedAt
}

// WinRate returns the fraction of closed trades that were profitable.
func (s *State) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades)
}

// UpdateAllocation refreshes the live allocation value and percentage,
// derived from open position notionals on the balance-refresh timer.
func (s *State) UpdateAllocation(value, totalBalance float64) {
	s.AllocationValue = value
	if totalBalance > 0 {
		s.CurrentAllocationPct = value / totalBalance
	} else {
		s.CurrentAllocationPct = 0
	}
}

// AllocationDrift returns the absolute deviation of the live allocation from
// its target, as a fraction of the target.
func (s *State) AllocationDrift() float64 {
	if s.TargetAllocationPct <= 0 {
		return 0
	}
	drift := s.CurrentAllocationPct - s.TargetAllocationPct
	if drift < 0 {
		drift = -drift
	}
	return drift / s.TargetAllocationPct
}
