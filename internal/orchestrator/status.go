package orchestrator

import (
	"time"

	"github.com/quantpool/multi-engine-bot/internal/risk"
)

// EngineStatus is one engine's slice of the status snapshot.
type EngineStatus struct {
	EngineID             string
	Strategy             string
	Lifecycle            string
	TargetAllocationPct  float64
	CurrentAllocationPct float64
	AllocationValue      float64
	Trades               int
	WinRate              float64
	RealizedPnL          float64
	LastSignalAt         time.Time
	LastTradeAt          time.Time
}

// Snapshot is the synchronous status view consumed by operational tooling.
type Snapshot struct {
	Running       bool
	EmergencyStop bool
	Emergency     risk.EmergencyState

	TotalBalance     float64
	AvailableBalance float64
	DailyRealizedPnL float64

	OpenPositions int
	PendingOrders int

	Breaker risk.BreakerState
	Engines []EngineStatus

	Timestamp time.Time
}

// Status returns a consistent snapshot of the orchestrator's state.
func (o *Orchestrator) Status() Snapshot {
	o.mu.RLock()
	snap := Snapshot{
		Running:          o.running,
		TotalBalance:     o.portfolio.TotalBalance,
		AvailableBalance: o.portfolio.AvailableBalance,
		DailyRealizedPnL: o.portfolio.DailyRealizedPnL,
		OpenPositions:    len(o.positions),
		PendingOrders:    len(o.pending),
		Timestamp:        time.Now(),
	}
	o.mu.RUnlock()

	snap.EmergencyStop = o.risk.EmergencyStopped()
	snap.Emergency = o.risk.Emergency()
	snap.Breaker = o.risk.BreakerState()

	for _, eng := range o.engines {
		st := o.states[eng.ID()]
		snap.Engines = append(snap.Engines, EngineStatus{
			EngineID:             st.EngineID,
			Strategy:             eng.Strategy(),
			Lifecycle:            string(st.Lifecycle()),
			TargetAllocationPct:  st.TargetAllocationPct,
			CurrentAllocationPct: st.CurrentAllocationPct,
			AllocationValue:      st.AllocationValue,
			Trades:               st.Trades,
			WinRate:              st.WinRate(),
			RealizedPnL:          st.RealizedPnL,
			LastSignalAt:         st.LastSignalAt,
			LastTradeAt:          st.LastTradeAt,
		})
	}
	return snap
}
