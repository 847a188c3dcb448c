package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/quantpool/multi-engine-bot/pkg/types"
)

type excelStyles struct {
	header   int
	currency int
	profit   int
	loss     int
}

// WriteTradeJournalXLSX exports closed trades to an Excel workbook with a
// per-trade sheet and a per-engine summary sheet.
func WriteTradeJournalXLSX(trades []*types.Trade, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const tradesSheet = "Trades"
	const summarySheet = "Engine Summary"
	fx.SetSheetName(fx.GetSheetName(0), tradesSheet)
	fx.NewSheet(summarySheet)

	styles, err := newExcelStyles(fx)
	if err != nil {
		return err
	}
	if err := writeTradesSheet(fx, tradesSheet, trades, styles); err != nil {
		return err
	}
	if err := writeSummarySheet(fx, summarySheet, trades, styles); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func newExcelStyles(fx *excelize.File) (excelStyles, error) {
	var styles excelStyles
	var err error

	styles.header, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return styles, err
	}

	styles.currency, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7,
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return styles, err
	}

	styles.profit, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7,
		Font:      &excelize.Font{Color: "006400"},
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return styles, err
	}

	styles.loss, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7,
		Font:      &excelize.Font{Color: "8B0000"},
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	return styles, err
}

func writeTradesSheet(fx *excelize.File, sheet string, trades []*types.Trade, styles excelStyles) error {
	headers := []string{"Closed At", "Engine", "Strategy", "Symbol", "Side",
		"Entry Price", "Exit Price", "Quantity", "PnL", "Exit Reason", "Opened At"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	headerEnd, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := fx.SetCellStyle(sheet, "A1", headerEnd, styles.header); err != nil {
		return err
	}

	for i, tr := range trades {
		row := i + 2
		values := []interface{}{
			tr.ClosedAt.Format("2006-01-02 15:04:05"),
			tr.EngineID,
			tr.Strategy,
			tr.Symbol,
			string(tr.Side),
			tr.EntryPrice,
			tr.ExitPrice,
			tr.Amount,
			tr.PnL,
			tr.ExitReason,
			tr.OpenedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}
			if err := fx.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}

		pnlCell, _ := excelize.CoordinatesToCellName(9, row)
		pnlStyle := styles.profit
		if tr.PnL < 0 {
			pnlStyle = styles.loss
		}
		if err := fx.SetCellStyle(sheet, pnlCell, pnlCell, pnlStyle); err != nil {
			return err
		}
	}

	fx.SetColWidth(sheet, "A", "A", 20)
	fx.SetColWidth(sheet, "B", "E", 14)
	fx.SetColWidth(sheet, "F", "I", 12)
	fx.SetColWidth(sheet, "J", "J", 28)
	fx.SetColWidth(sheet, "K", "K", 20)
	return nil
}

func writeSummarySheet(fx *excelize.File, sheet string, trades []*types.Trade, styles excelStyles) error {
	type engineTotals struct {
		trades int
		wins   int
		pnl    float64
	}
	totals := make(map[string]*engineTotals)
	order := make([]string, 0)
	for _, tr := range trades {
		agg, ok := totals[tr.EngineID]
		if !ok {
			agg = &engineTotals{}
			totals[tr.EngineID] = agg
			order = append(order, tr.EngineID)
		}
		agg.trades++
		if tr.IsWin() {
			agg.wins++
		}
		agg.pnl += tr.PnL
	}

	headers := []string{"Engine", "Trades", "Wins", "Win Rate", "Total PnL"}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	if err := fx.SetCellStyle(sheet, "A1", "E1", styles.header); err != nil {
		return err
	}

	for i, engineID := range order {
		agg := totals[engineID]
		row := i + 2
		winRate := 0.0
		if agg.trades > 0 {
			winRate = float64(agg.wins) / float64(agg.trades)
		}
		values := []interface{}{engineID, agg.trades, agg.wins,
			fmt.Sprintf("%.1f%%", winRate*100), agg.pnl}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}
			if err := fx.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
		pnlCell, _ := excelize.CoordinatesToCellName(5, row)
		if err := fx.SetCellStyle(sheet, pnlCell, pnlCell, styles.currency); err != nil {
			return err
		}
	}

	fx.SetColWidth(sheet, "A", "A", 16)
	fx.SetColWidth(sheet, "B", "E", 12)
	return nil
}
