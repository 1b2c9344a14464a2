package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"paper-trade-go/internal/api"
	"paper-trade-go/internal/auth"
	"paper-trade-go/internal/config"
	"paper-trade-go/internal/database"
	"paper-trade-go/internal/events"
	"paper-trade-go/internal/leaderboard"
	"paper-trade-go/internal/logger"
	"paper-trade-go/internal/market"
	"paper-trade-go/internal/polygon"
	"paper-trade-go/internal/portfolio"
	"paper-trade-go/internal/profile"
	"paper-trade-go/internal/scheduler"
	"paper-trade-go/internal/trading"
	"paper-trade-go/internal/watchlist"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// A .env file is optional; real deployments set the environment directly.
	envErr := godotenv.Load()

	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format, "paper-trade")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	if envErr != nil {
		log.Debug("No .env file loaded", zap.Error(envErr))
	}
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := database.SeedInstruments(db, cfg.Market.Instruments); err != nil {
		log.Fatal("Failed to seed instruments", zap.Error(err))
	}
	log.Info("Instruments seeded", zap.Int("count", len(cfg.Market.Instruments)))

	// Event fan-out, optionally mirrored to Kafka
	var sinks []events.Sink
	if cfg.Kafka.Enabled {
		sink, err := events.NewKafkaSink(cfg.Kafka, log)
		if err != nil {
			log.Fatal("Failed to configure Kafka sink", zap.Error(err))
		}
		sinks = append(sinks, sink)
	}
	bus := events.NewBus(16, log, sinks...)

	// Services
	restClient := polygon.NewRestClient(&cfg.Polygon, log)
	marketService := market.NewService(restClient, db, cfg.Polygon.QuoteTTL, log)

	authService, err := auth.NewService(db, cfg.Auth, cfg.Trading.InitialCredits, bus, log)
	if err != nil {
		log.Fatal("Failed to initialize authentication", zap.Error(err))
	}

	blobs, err := profile.NewFileStore(cfg.Storage.Dir)
	if err != nil {
		log.Fatal("Failed to open blob store", zap.Error(err))
	}

	leaderboardService := leaderboard.NewService(db, log)

	// Background jobs
	jobs := scheduler.New(cfg.Scheduler.JobTimeout, log)
	err = jobs.Add("leaderboard-refresh", cfg.Leaderboard.RefreshSchedule, func(ctx context.Context) error {
		_, err := leaderboardService.Refresh(ctx)
		return err
	})
	if err != nil {
		log.Fatal("Failed to schedule leaderboard refresh", zap.Error(err))
	}
	err = jobs.Add("revoked-token-purge", cfg.Auth.PurgeSchedule, func(ctx context.Context) error {
		_, err := authService.PurgeRevoked(ctx)
		return err
	})
	if err != nil {
		log.Fatal("Failed to schedule token purge", zap.Error(err))
	}

	handler := api.NewHandler(api.Services{
		DB:          db,
		Auth:        authService,
		Market:      marketService,
		Portfolio:   portfolio.NewService(db, marketService, log),
		Trading:     trading.NewService(db, bus, log),
		Profile:     profile.NewService(db, blobs, cfg.Storage.MaxImageBytes, bus, log),
		Watchlist:   watchlist.NewService(db, marketService, log),
		Leaderboard: leaderboardService,
		Bus:         bus,
	}, api.Options{
		RequestTimeout:   cfg.Server.RequestTimeout,
		NewsLimit:        cfg.Market.NewsLimit,
		LeaderboardLimit: cfg.Leaderboard.Limit,
		MaxImageBytes:    cfg.Storage.MaxImageBytes,
		SecureCookies:    cfg.Server.SecureCookies,
	}, log)

	server := api.NewServer(cfg.Server, handler.Routes(), log)
	serveErr, err := server.Start()
	if err != nil {
		log.Fatal("Failed to start API server", zap.Error(err))
	}
	jobs.Start()

	// Wait for a shutdown signal or the server to fail
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received, gracefully shutting down...")
	case err := <-serveErr:
		log.Error("API server stopped unexpectedly", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}
	if err := jobs.Stop(shutdownCtx); err != nil {
		log.Error("Scheduler shutdown failed", zap.Error(err))
	}
	if err := bus.Close(); err != nil {
		log.Error("Event bus shutdown failed", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	log.Info("Server has been shut down.")
}
