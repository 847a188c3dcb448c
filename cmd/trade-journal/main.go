package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/quantpool/multi-engine-bot/internal/state"
	"github.com/quantpool/multi-engine-bot/pkg/report"
)

func main() {
	var (
		dbPath = flag.String("db", "data/fund-bot.db", "Path to the bot's state database")
		limit  = flag.Int("limit", 50, "Maximum number of trades to show, newest first")
		xlsx   = flag.String("xlsx", "", "Export the journal to an Excel file at this path")
	)
	flag.Parse()

	if _, err := os.Stat(*dbPath); err != nil {
		log.Fatalf("State database not found at %s", *dbPath)
	}

	store, err := state.NewSQLiteStore(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open state store: %v", err)
	}
	defer store.Close()

	trades, err := store.ClosedTrades(*limit)
	if err != nil {
		log.Fatalf("Failed to load trades: %v", err)
	}
	if len(trades) == 0 {
		fmt.Println("No closed trades recorded yet.")
		return
	}

	report.PrintTradeJournal(trades)

	if *xlsx != "" {
		if err := report.WriteTradeJournalXLSX(trades, *xlsx); err != nil {
			log.Fatalf("Failed to write Excel journal: %v", err)
		}
		fmt.Printf("Journal exported to %s\n", *xlsx)
	}
}
