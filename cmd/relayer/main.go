package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/flowtip/service/config"
	"github.com/brojonat/flowtip/service/db"
	"github.com/brojonat/flowtip/service/metrics"
	natspkg "github.com/brojonat/flowtip/service/nats"
	"github.com/brojonat/flowtip/service/relay"
	"github.com/brojonat/flowtip/service/server"
	flowsolana "github.com/brojonat/flowtip/service/solana"
	"github.com/brojonat/flowtip/service/temporal"
	"github.com/brojonat/flowtip/service/tracing"
	"github.com/brojonat/flowtip/service/watcher"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	if err := cfg.RequireRelayer(); err != nil {
		logger.Error("invalid relayer configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting relayer",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, "flowtip-relayer", cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(context.Background())

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	rpcClient, endpoint, err := flowsolana.Dial(cfg.SolanaRPCURLs, metricsCollector, logger)
	if err != nil {
		logger.Error("failed to create solana RPC client", "error", err)
		os.Exit(1)
	}
	logger.Info("initialized solana RPC client",
		"endpoint", endpoint,
		"total_endpoints", len(cfg.SolanaRPCURLs),
	)

	feePayer, err := flowsolana.LoadPrivateKey(cfg.FeePayerPrivateKey)
	if err != nil {
		logger.Error("failed to load fee payer key", "error", err)
		os.Exit(1)
	}

	balance := relay.NewRPCBalanceChecker(rpcClient, feePayer.PublicKey(), cfg.Commitment)
	builder := relay.NewBuilder(rpcClient, balance, feePayer, relay.Config{
		ProgramID:          cfg.ProgramAddress(),
		Mint:               cfg.MintAddress(),
		Decimals:           cfg.TokenDecimals,
		MinReserveLamports: cfg.MinRelayerReserveLamports,
		Commitment:         cfg.Commitment,
		ProfileCacheTTL:    cfg.ProfileCacheTTL,
	}, metricsCollector, logger)
	logger.Info("initialized transaction builder",
		"fee_payer", feePayer.PublicKey().String(),
		"mint", cfg.TokenMintAddress,
		"program_id", cfg.ProgramID,
	)

	monitor := relay.NewFundingMonitor(balance, cfg.MinRelayerReserveLamports, cfg.FundingCheckInterval, metricsCollector, logger)
	go monitor.Run(ctx)

	deps := server.Dependencies{
		Builder:  builder,
		Profiles: builder,
		Prober: watcher.New(rpcClient, watcher.Config{
			PollInterval: cfg.WatchPollInterval,
			Timeout:      cfg.WatchTimeout,
		}, metricsCollector, logger),
	}

	// The tip ledger and its durable watches are optional
	if cfg.DatabaseURL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		if err := db.Migrate(ctx, dbPool); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to database")
		deps.Store = db.NewStore(dbPool, metricsCollector)

		temporalClient, err := temporal.NewClient(
			cfg.TemporalHost,
			cfg.TemporalNamespace,
			cfg.TemporalTaskQueue,
			logger,
		)
		if err != nil {
			logger.Error("failed to create temporal client", "error", err)
			os.Exit(1)
		}
		defer temporalClient.Close()
		deps.Starter = temporalClient
	} else {
		logger.Warn("DATABASE_URL not set, tip ledger disabled")
	}

	if cfg.NATSURL != "" {
		natsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, "flowtip-relayer", metricsCollector, logger)
		if err != nil {
			logger.Error("failed to create NATS subscriber", "error", err)
			os.Exit(1)
		}
		defer natsPublisher.Close()
		deps.Subscriber = natsPublisher
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	httpServer := server.New(cfg.ServerAddr, cfg, deps, metricsCollector, logger)
	if err := httpServer.WithTemplates(); err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	logger.Info("relayer initialized, all dependencies ready",
		"ledger", deps.Store != nil,
		"streaming", deps.Subscriber != nil,
		"temporal_host", cfg.TemporalHost,
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
