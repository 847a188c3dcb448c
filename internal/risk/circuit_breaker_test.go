package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestBreaker() (*CircuitBreaker, *time.Time) {
	cb := NewCircuitBreaker(testRiskConfig().CircuitBreaker)
	current := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return current }
	return cb, &current
}

func TestCircuitBreaker_EscalatesThroughLevels(t *testing.T) {
	cb, _ := newTestBreaker()

	level, escalated := cb.Evaluate(10000)
	assert.Equal(t, BreakerNone, level)
	assert.False(t, escalated)

	tests := []struct {
		value float64
		want  BreakerLevel
	}{
		{9600, BreakerNone},   // 4% drawdown
		{9400, BreakerLevel1}, // 6%
		{8900, BreakerLevel2}, // 11%
		{8400, BreakerLevel3}, // 16%
		{7900, BreakerLevel4}, // 21%
	}
	for _, tt := range tests {
		level, _ = cb.Evaluate(tt.value)
		assert.Equal(t, tt.want, level, "value %.0f", tt.value)
	}
}

func TestCircuitBreaker_MonotonicWithinDay(t *testing.T) {
	cb, _ := newTestBreaker()

	cb.Evaluate(10000)
	level, _ := cb.Evaluate(8400) // 16% -> LEVEL_3
	assert.Equal(t, BreakerLevel3, level)

	// Recovery within the same day must not lower the level.
	level, escalated := cb.Evaluate(9900)
	assert.Equal(t, BreakerLevel3, level)
	assert.False(t, escalated)
}

func TestCircuitBreaker_NewDayRecomputesLevel(t *testing.T) {
	cb, current := newTestBreaker()

	cb.Evaluate(10000)
	cb.Evaluate(8400) // LEVEL_3
	*current = current.Add(24 * time.Hour)

	// Drawdown recovered to 4%: the new day's evaluation may lower the level.
	level, _ := cb.Evaluate(9600)
	assert.Equal(t, BreakerNone, level)
}

func TestCircuitBreaker_HighWaterMarkRatchets(t *testing.T) {
	cb, _ := newTestBreaker()

	cb.Evaluate(10000)
	cb.Evaluate(12000)
	// 11% drawdown measured from the 12000 high-water mark.
	level, _ := cb.Evaluate(10600)
	assert.Equal(t, BreakerLevel2, level)
	assert.InDelta(t, 12000.0, cb.State().HighWater, 1e-9)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker()

	cb.Evaluate(10000)
	cb.Evaluate(7500)
	assert.Equal(t, BreakerLevel4, cb.Level())

	cb.Reset("ops@desk")
	assert.Equal(t, BreakerNone, cb.Level())
	assert.Contains(t, cb.State().Reason, "ops@desk")
}
