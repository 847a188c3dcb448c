package risk

import (
	"fmt"
	"time"

	"github.com/quantpool/multi-engine-bot/internal/config"
)

// BreakerLevel is the global drawdown escalation level. LEVEL_4 halts all
// trading through the emergency stop.
type BreakerLevel int

const (
	BreakerNone BreakerLevel = iota
	BreakerLevel1
	BreakerLevel2
	BreakerLevel3
	BreakerLevel4
)

func (l BreakerLevel) String() string {
	switch l {
	case BreakerNone:
		return "NONE"
	case BreakerLevel1:
		return "LEVEL_1"
	case BreakerLevel2:
		return "LEVEL_2"
	case BreakerLevel3:
		return "LEVEL_3"
	case BreakerLevel4:
		return "LEVEL_4"
	}
	return fmt.Sprintf("LEVEL_%d", int(l))
}

// BreakerState is the externally visible snapshot of the circuit breaker.
type BreakerState struct {
	Level       BreakerLevel
	TriggeredAt time.Time
	Reason      string
	Drawdown    float64
	HighWater   float64
}

// CircuitBreaker maps portfolio drawdown from its high-water mark onto four
// escalating levels. Within a trading day the level only increases; it drops
// again on a new day's evaluation or an explicit authorized reset.
type CircuitBreaker struct {
	cfg config.CircuitBreakerConfig

	level       BreakerLevel
	triggeredAt time.Time
	reason      string

	highWaterMark float64
	lastDrawdown  float64
	evalDay       time.Time

	now func() time.Time
}

// NewCircuitBreaker creates a breaker with no high-water mark yet; the first
// evaluation seeds it from the observed balance.
func NewCircuitBreaker(cfg config.CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Evaluate recomputes the level from the current portfolio value. It returns
// the resulting level and whether this call escalated it.
func (cb *CircuitBreaker) Evaluate(portfolioValue float64) (BreakerLevel, bool) {
	if portfolioValue <= 0 {
		return cb.level, false
	}
	if portfolioValue > cb.highWaterMark {
		cb.highWaterMark = portfolioValue
	}
	drawdown := (cb.highWaterMark - portfolioValue) / cb.highWaterMark
	cb.lastDrawdown = drawdown

	computed := cb.levelFor(drawdown)
	today := dateOf(cb.now())

	if !today.Equal(cb.evalDay) {
		// New trading day: the level is re-derived from scratch, which is the
		// only automatic path that can lower it.
		cb.evalDay = today
		escalated := computed > cb.level
		cb.setLevel(computed, drawdown)
		return cb.level, escalated
	}

	if computed > cb.level {
		cb.setLevel(computed, drawdown)
		return cb.level, true
	}
	return cb.level, false
}

func (cb *CircuitBreaker) setLevel(level BreakerLevel, drawdown float64) {
	if level == cb.level {
		return
	}
	cb.level = level
	cb.triggeredAt = cb.now()
	if level == BreakerNone {
		cb.reason = ""
	} else {
		cb.reason = fmt.Sprintf("portfolio drawdown %.2f%% from high-water mark", drawdown*100)
	}
}

func (cb *CircuitBreaker) levelFor(drawdown float64) BreakerLevel {
	switch {
	case drawdown >= cb.cfg.Level4DrawdownPct:
		return BreakerLevel4
	case drawdown >= cb.cfg.Level3DrawdownPct:
		return BreakerLevel3
	case drawdown >= cb.cfg.Level2DrawdownPct:
		return BreakerLevel2
	case drawdown >= cb.cfg.Level1DrawdownPct:
		return BreakerLevel1
	}
	return BreakerNone
}

// Level returns the current escalation level.
func (cb *CircuitBreaker) Level() BreakerLevel {
	return cb.level
}

// State returns a snapshot for the status interface.
func (cb *CircuitBreaker) State() BreakerState {
	return BreakerState{
		Level:       cb.level,
		TriggeredAt: cb.triggeredAt,
		Reason:      cb.reason,
		Drawdown:    cb.lastDrawdown,
		HighWater:   cb.highWaterMark,
	}
}

// Reset clears the level through an explicit authorized action. The operator
// identity is recorded in the reason for the audit trail.
func (cb *CircuitBreaker) Reset(operator string) {
	cb.level = BreakerNone
	cb.triggeredAt = cb.now()
	cb.reason = fmt.Sprintf("manually reset by %s", operator)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
