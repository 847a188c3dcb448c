package report

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/quantpool/multi-engine-bot/internal/config"
	"github.com/quantpool/multi-engine-bot/internal/orchestrator"
	"github.com/quantpool/multi-engine-bot/pkg/types"
)

// PrintStartup renders the startup banner with the resolved configuration.
func PrintStartup(cfg *config.Config, exchangeName string) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("FUND BOT INITIALIZATION")
	t.SetStyle(table.StyleRounded)

	engineSummary := make([]string, 0, len(cfg.Engines))
	for _, eng := range cfg.Engines {
		engineSummary = append(engineSummary,
			fmt.Sprintf("%s (%s, %.0f%%)", eng.ID, eng.Type, eng.TargetAllocationPct*100))
	}

	t.AppendRows([]table.Row{
		{"🤖 Instance", cfg.Instance},
		{"🏪 Exchange", exchangeName},
		{"📊 Category", cfg.Exchange.Category},
		{"⚙️ Engines", strings.Join(engineSummary, "\n")},
		{"⏰ Loop Interval", cfg.Loop.Interval.Std().String()},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"🛡️ Risk/Trade", fmt.Sprintf("%.2f%%", cfg.Risk.RiskPerTradePct*100)},
		{"🛡️ Max Position", fmt.Sprintf("%.0f%%", cfg.Risk.MaxPositionPct*100)},
		{"🛡️ Daily Loss Limit", fmt.Sprintf("%.1f%%", cfg.Risk.MaxDailyLossPct*100)},
		{"🛡️ Weekly Loss Limit", fmt.Sprintf("%.1f%%", cfg.Risk.MaxWeeklyLossPct*100)},
		{"🚨 Breaker Levels", fmt.Sprintf("%.0f%% / %.0f%% / %.0f%% / %.0f%%",
			cfg.Risk.CircuitBreaker.Level1DrawdownPct*100,
			cfg.Risk.CircuitBreaker.Level2DrawdownPct*100,
			cfg.Risk.CircuitBreaker.Level3DrawdownPct*100,
			cfg.Risk.CircuitBreaker.Level4DrawdownPct*100)},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 20, WidthMax: 20, Align: text.AlignLeft},
		{Number: 2, WidthMin: 30, WidthMax: 45, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()
}

// PrintStatus renders a live status snapshot.
func PrintStatus(snap orchestrator.Snapshot) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("PORTFOLIO STATUS")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"💰 Total Balance", fmt.Sprintf("$%.2f", snap.TotalBalance)},
		{"💰 Available", fmt.Sprintf("$%.2f", snap.AvailableBalance)},
		{"📈 Daily PnL", fmt.Sprintf("$%.2f", snap.DailyRealizedPnL)},
		{"📊 Open Positions", fmt.Sprintf("%d", snap.OpenPositions)},
		{"⏳ Pending Orders", fmt.Sprintf("%d", snap.PendingOrders)},
		{"🚨 Circuit Breaker", snap.Breaker.Level.String()},
		{"🛑 Emergency Stop", emergencyString(snap)},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, WidthMax: 40, Align: text.AlignLeft},
	})
	t.Render()
	fmt.Println()

	et := table.NewWriter()
	et.SetOutputMirror(os.Stdout)
	et.SetTitle("ENGINES")
	et.SetStyle(table.StyleRounded)
	et.AppendHeader(table.Row{"Engine", "Strategy", "State", "Target", "Current", "Trades", "Win Rate", "PnL"})
	for _, eng := range snap.Engines {
		et.AppendRow(table.Row{
			eng.EngineID,
			eng.Strategy,
			eng.Lifecycle,
			fmt.Sprintf("%.0f%%", eng.TargetAllocationPct*100),
			fmt.Sprintf("%.1f%%", eng.CurrentAllocationPct*100),
			eng.Trades,
			fmt.Sprintf("%.0f%%", eng.WinRate*100),
			fmt.Sprintf("$%.2f", eng.RealizedPnL),
		})
	}
	et.Render()
	fmt.Println()
}

// PrintShutdownSummary renders the final session summary with the most recent
// closed trades.
func PrintShutdownSummary(snap orchestrator.Snapshot, trades []*types.Trade) {
	PrintStatus(snap)
	if len(trades) == 0 {
		fmt.Println("No closed trades this session.")
		return
	}
	PrintTradeJournal(trades)
}

// PrintTradeJournal renders closed trades newest first.
func PrintTradeJournal(trades []*types.Trade) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("TRADE JOURNAL")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Closed", "Engine", "Symbol", "Side", "Entry", "Exit", "Qty", "PnL", "Reason"})

	var totalPnL float64
	wins := 0
	for _, tr := range trades {
		totalPnL += tr.PnL
		if tr.IsWin() {
			wins++
		}
		t.AppendRow(table.Row{
			tr.ClosedAt.Format("2006-01-02 15:04"),
			tr.EngineID,
			tr.Symbol,
			string(tr.Side),
			fmt.Sprintf("%.2f", tr.EntryPrice),
			fmt.Sprintf("%.2f", tr.ExitPrice),
			fmt.Sprintf("%.6f", tr.Amount),
			fmt.Sprintf("%+.2f", tr.PnL),
			tr.ExitReason,
		})
	}

	t.AppendFooter(table.Row{
		"", "", "", "", "", "",
		fmt.Sprintf("%d/%d wins", wins, len(trades)),
		fmt.Sprintf("%+.2f", totalPnL),
		"",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 8, Align: text.AlignRight},
	})
	t.Render()
	fmt.Println()
}

func emergencyString(snap orchestrator.Snapshot) string {
	if !snap.EmergencyStop {
		return "inactive"
	}
	return fmt.Sprintf("ACTIVE (%s since %s)", snap.Emergency.Cause,
		snap.Emergency.Timestamp.Format(time.RFC3339))
}
