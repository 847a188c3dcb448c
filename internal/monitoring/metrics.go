package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fund_bot_signals_total",
			Help: "Signals emitted by engines, labeled by admission outcome",
		},
		[]string{"engine", "outcome"},
	)

	riskRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fund_bot_risk_rejections_total",
			Help: "Signals rejected by the risk manager, by rule",
		},
		[]string{"rule"},
	)

	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fund_bot_orders_total",
			Help: "Orders placed, labeled by symbol and side",
		},
		[]string{"symbol", "side"},
	)

	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fund_bot_trades_total",
			Help: "Closed trades, labeled by engine and result",
		},
		[]string{"engine", "result"},
	)

	portfolioBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fund_bot_portfolio_balance",
			Help: "Total portfolio balance in quote currency",
		},
	)

	portfolioDrawdown = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fund_bot_portfolio_drawdown",
			Help: "Drawdown from the high-water mark as a fraction",
		},
	)

	circuitBreakerLevel = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fund_bot_circuit_breaker_level",
			Help: "Current circuit breaker level (0 = none, 4 = full stop)",
		},
	)

	emergencyStop = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fund_bot_emergency_stop",
			Help: "1 while the global emergency stop is active",
		},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fund_bot_open_positions",
			Help: "Open positions across all engines",
		},
	)

	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fund_bot_errors_total",
			Help: "Errors encountered, labeled by category",
		},
		[]string{"category"},
	)
)

func init() {
	prometheus.MustRegister(signalsTotal)
	prometheus.MustRegister(riskRejectionsTotal)
	prometheus.MustRegister(ordersTotal)
	prometheus.MustRegister(tradesTotal)
	prometheus.MustRegister(portfolioBalance)
	prometheus.MustRegister(portfolioDrawdown)
	prometheus.MustRegister(circuitBreakerLevel)
	prometheus.MustRegister(emergencyStop)
	prometheus.MustRegister(openPositions)
	prometheus.MustRegister(errorsTotal)
}

// RecordSignal counts one engine signal with its admission outcome
// ("approved", "rejected", "noop", "fault").
func RecordSignal(engineID, outcome string) {
	signalsTotal.WithLabelValues(engineID, outcome).Inc()
}

// RecordRiskRejection counts a rejection against the rule that fired.
func RecordRiskRejection(rule string) {
	riskRejectionsTotal.WithLabelValues(rule).Inc()
}

// RecordOrder counts a placed order.
func RecordOrder(symbol, side string) {
	ordersTotal.WithLabelValues(symbol, side).Inc()
}

// RecordTrade counts a closed trade as a win or loss.
func RecordTrade(engineID string, pnl float64) {
	result := "loss"
	if pnl > 0 {
		result = "win"
	}
	tradesTotal.WithLabelValues(engineID, result).Inc()
}

// UpdatePortfolio refreshes the balance and open-position gauges.
func UpdatePortfolio(totalBalance float64, positions int) {
	portfolioBalance.Set(totalBalance)
	openPositions.Set(float64(positions))
}

// UpdateCircuitBreaker refreshes the breaker level and drawdown gauges.
func UpdateCircuitBreaker(level int, drawdown float64) {
	circuitBreakerLevel.Set(float64(level))
	portfolioDrawdown.Set(drawdown)
}

// SetEmergencyStop flips the emergency-stop gauge.
func SetEmergencyStop(active bool) {
	if active {
		emergencyStop.Set(1)
	} else {
		emergencyStop.Set(0)
	}
}

// RecordError counts an error by category.
func RecordError(category string) {
	errorsTotal.WithLabelValues(category).Inc()
}
