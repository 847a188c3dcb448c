package types

import (
	"fmt"
	"time"
)

// SignalKind classifies the action a strategy engine proposes.
type SignalKind string

const (
	SignalBuy           SignalKind = "BUY"
	SignalSell          SignalKind = "SELL"
	SignalClose         SignalKind = "CLOSE"
	SignalCloseLong     SignalKind = "CLOSE_LONG"
	SignalCloseShort    SignalKind = "CLOSE_SHORT"
	SignalRebalance     SignalKind = "REBALANCE"
	SignalEmergencyExit SignalKind = "EMERGENCY_EXIT"
)

// IsClose reports whether the kind requests an exit from an existing position.
func (k SignalKind) IsClose() bool {
	return k == SignalClose || k == SignalCloseLong || k == SignalCloseShort
}

// EntryParams carries the optional protective levels for BUY/SELL signals.
type EntryParams struct {
	StopLoss   float64
	TakeProfit float64
}

// ExitPlan explains why a close signal was emitted.
type ExitPlan struct {
	Reason string
}

// RebalancePlan lists the target allocation per symbol, as a fraction of total
// portfolio balance, plus the drift threshold below which no order is issued.
type RebalancePlan struct {
	Targets        map[string]float64
	DriftThreshold float64
}

// Signal is a proposed trade action emitted by a strategy engine. It is
// immutable once created and consumed exactly once by the orchestrator.
// Exactly one of Entry/Exit/Rebalance is set, matching the signal kind.
type Signal struct {
	Symbol     string
	Kind       SignalKind
	Confidence float64
	EngineID   string
	Strategy   string
	Entry      *EntryParams
	Exit       *ExitPlan
	Rebalance  *RebalancePlan
	Timestamp  time.Time
}

// NewSignal validates and builds a signal. Confidence outside [0,1] is a
// construction error, never silently clamped.
func NewSignal(engineID, strategy, symbol string, kind SignalKind, confidence float64) (*Signal, error) {
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("signal confidence %.4f out of range [0,1]", confidence)
	}
	if symbol == "" && kind != SignalRebalance && kind != SignalEmergencyExit {
		return nil, fmt.Errorf("signal of kind %s requires a symbol", kind)
	}
	return &Signal{
		Symbol:     symbol,
		Kind:       kind,
		Confidence: confidence,
		EngineID:   engineID,
		Strategy:   strategy,
		Timestamp:  time.Now(),
	}, nil
}

// WithEntry attaches entry parameters and returns the signal for chaining.
func (s *Signal) WithEntry(stopLoss, takeProfit float64) *Signal {
	s.Entry = &EntryParams{StopLoss: stopLoss, TakeProfit: takeProfit}
	return s
}

// WithExit attaches an exit reason and returns the signal for chaining.
func (s *Signal) WithExit(reason string) *Signal {
	s.Exit = &ExitPlan{Reason: reason}
	return s
}

// WithRebalance attaches a rebalance plan and returns the signal for chaining.
func (s *Signal) WithRebalance(targets map[string]float64, driftThreshold float64) *Signal {
	s.Rebalance = &RebalancePlan{Targets: targets, DriftThreshold: driftThreshold}
	return s
}

func (s *Signal) String() string {
	return fmt.Sprintf("%s %s %s (confidence %.2f)", s.EngineID, s.Kind, s.Symbol, s.Confidence)
}
