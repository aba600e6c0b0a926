package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"metachrome-options-go/internal/config"
	"metachrome-options-go/internal/database"
	"metachrome-options-go/internal/ledger"
	"metachrome-options-go/internal/logger"
	"metachrome-options-go/internal/pricefeed"
	"metachrome-options-go/internal/trading"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(&cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Initialize the price feed
	restClient := pricefeed.NewRestClient(&cfg.Feed, log.Named("pricefeed"))
	feed := pricefeed.NewFeed(&cfg.Feed, restClient, log.Named("pricefeed"))

	// Initialize the balance ledger and the settlement engine
	ldgr := ledger.NewLedger(db, log.Named("ledger"))
	engine := trading.NewEngine(log.Named("engine"), &cfg, db, feed, ldgr)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	go feed.Run(ctx)

	api := trading.NewAPIServer(engine, cfg.Server.Port, log)
	api.Start()

	// Blocks until the context is cancelled.
	engine.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := api.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}

	log.Info("Platform has been shut down.")
}
