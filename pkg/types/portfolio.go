package types

import "time"

// Portfolio is the single shared capital snapshot. The orchestrator replaces
// it wholesale on balance refresh; the risk manager mutates only the PnL
// accumulators and period snapshots.
type Portfolio struct {
	TotalBalance     float64
	AvailableBalance float64

	DailyStartBalance  float64
	WeeklyStartBalance float64
	DailyRealizedPnL   float64
	WeeklyRealizedPnL  float64

	UpdatedAt time.Time
}

// ExposurePct returns the fraction of the total balance currently deployed.
func (p *Portfolio) ExposurePct() float64 {
	if p.TotalBalance <= 0 {
		return 0
	}
	return (p.TotalBalance - p.AvailableBalance) / p.TotalBalance
}

// DailyLossPct returns the realized loss for the day as a positive fraction
// of the day's starting balance. Gains return 0.
func (p *Portfolio) DailyLossPct() float64 {
	if p.DailyStartBalance <= 0 || p.DailyRealizedPnL >= 0 {
		return 0
	}
	return -p.DailyRealizedPnL / p.DailyStartBalance
}

// WeeklyLossPct returns the realized loss for the rolling week as a positive
// fraction of the week's starting balance. Gains return 0.
func (p *Portfolio) WeeklyLossPct() float64 {
	if p.WeeklyStartBalance <= 0 || p.WeeklyRealizedPnL >= 0 {
		return 0
	}
	return -p.WeeklyRealizedPnL / p.WeeklyStartBalance
}
