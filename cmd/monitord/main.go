package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trade-settlement-go/internal/config"
	"trade-settlement-go/internal/database"
	"trade-settlement-go/internal/ledger"
	"trade-settlement-go/internal/logger"
	"trade-settlement-go/internal/monitor"
	"trade-settlement-go/internal/outcome"
	"trade-settlement-go/internal/pricefeed"
	"trade-settlement-go/internal/settings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Wire the settlement core
	prices := pricefeed.NewClient(&cfg.PriceFeed, log)
	store := settings.NewStore(db, log)
	resolver := outcome.NewResolver(store, log)
	book := ledger.NewLedger(db, resolver, log, ledger.Options{
		LiquidationResidualPercent: decimal.NewFromFloat(cfg.Settlement.LiquidationResidualPercent),
		MaxRetries:                 cfg.Settlement.MaxRetries,
	})

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Run the expiry/liquidation sweep until canceled
	interval := time.Duration(cfg.Monitor.SweepInterval) * time.Second
	engine := monitor.NewEngine(log, book, prices, interval)
	engine.Run(ctx)

	log.Info("Settlement monitor has been shut down.")
}
