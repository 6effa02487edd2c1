package main

import (
	"fmt"
	"net/http"
	"os"

	"trade-settlement-go/internal/config"
	"trade-settlement-go/internal/database"
	"trade-settlement-go/internal/ledger"
	"trade-settlement-go/internal/logger"
	"trade-settlement-go/internal/outcome"
	"trade-settlement-go/internal/pricefeed"
	"trade-settlement-go/internal/settings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Connect to the database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Wire the settlement core
	prices := pricefeed.NewClient(&cfg.PriceFeed, log)
	store := settings.NewStore(db, log)
	resolver := outcome.NewResolver(store, log)
	book := ledger.NewLedger(db, resolver, log, ledger.Options{
		LiquidationResidualPercent: decimal.NewFromFloat(cfg.Settlement.LiquidationResidualPercent),
		MaxRetries:                 cfg.Settlement.MaxRetries,
	})

	// Setup HTTP server
	mux := http.NewServeMux()

	apiHandler := NewAPIHandler(log, book, store, prices)

	mux.HandleFunc("POST /api/trades/open", apiHandler.OpenHandler)
	mux.HandleFunc("POST /api/trades/close", apiHandler.CloseHandler)
	mux.HandleFunc("GET /api/trades", apiHandler.TradesHandler)
	mux.HandleFunc("GET /api/statistics", apiHandler.StatisticsHandler)
	mux.HandleFunc("GET /api/wallet", apiHandler.WalletHandler)
	mux.HandleFunc("POST /api/wallet/transfer", apiHandler.TransferHandler)
	mux.HandleFunc("POST /api/wallet/deposit", apiHandler.DepositHandler)
	mux.HandleFunc("GET /api/settings/mode", apiHandler.GetGlobalModeHandler)
	mux.HandleFunc("PUT /api/settings/mode", apiHandler.SetGlobalModeHandler)
	mux.HandleFunc("PUT /api/settings/user-mode", apiHandler.SetUserModeHandler)
	mux.HandleFunc("GET /health", apiHandler.HealthHandler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("Starting web server", zap.String("address", addr))

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal("Web server failed", zap.Error(err))
	}
}
