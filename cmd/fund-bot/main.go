package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/quantpool/multi-engine-bot/internal/config"
	"github.com/quantpool/multi-engine-bot/internal/exchange"
	"github.com/quantpool/multi-engine-bot/internal/logger"
	"github.com/quantpool/multi-engine-bot/internal/monitoring"
	"github.com/quantpool/multi-engine-bot/internal/notifications"
	"github.com/quantpool/multi-engine-bot/internal/orchestrator"
	"github.com/quantpool/multi-engine-bot/internal/state"
	"github.com/quantpool/multi-engine-bot/pkg/report"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file (e.g., fund.json)")
		envFile    = flag.String("env", ".env", "Environment file path")
		paper      = flag.Bool("paper", false, "Force the paper exchange regardless of config")
	)
	flag.Parse()

	if *configFile == "" {
		log.Fatal("Please specify a config file with -config flag")
	}

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("Warning: could not load %s (%v), using environment as-is", *envFile, err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *paper {
		cfg.Exchange = config.ExchangeConfig{Name: "paper", Category: cfg.Exchange.Category}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	botLog, err := logger.New(cfg.LogDir, cfg.Instance)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer botLog.Close()

	ex, err := exchange.New(cfg.Exchange)
	if err != nil {
		log.Fatalf("Failed to create exchange: %v", err)
	}
	defer ex.Close()

	if err := os.MkdirAll(filepath.Dir(cfg.State.DatabasePath), 0755); err != nil {
		log.Fatalf("Failed to create state directory: %v", err)
	}
	store, err := state.NewSQLiteStore(cfg.State.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open state store: %v", err)
	}
	defer store.Close()

	orch, err := orchestrator.New(cfg, botLog, ex, store)
	if err != nil {
		log.Fatalf("Failed to build orchestrator: %v", err)
	}
	orch.SetNotifier(notifications.FromConfig(cfg.Notify))

	report.PrintStartup(cfg, ex.Name())

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		botLog.Info("received signal %v, shutting down", sig)
		cancel()
	}()

	if err := orch.Restore(ctx); err != nil {
		log.Fatalf("Failed to restore state: %v", err)
	}

	monitoring.Serve(cfg.Monitor.MetricsPort, cfg.Monitor.HealthPort, orch.Health())

	orch.Run(ctx)

	trades, err := store.ClosedTrades(20)
	if err != nil {
		botLog.Warning("could not load trades for the session summary: %v", err)
	}
	report.PrintShutdownSummary(orch.Status(), trades)
}
