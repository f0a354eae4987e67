package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/credichain/lending/internal/api"
	"github.com/credichain/lending/internal/config"
	"github.com/credichain/lending/internal/lending"
	"github.com/credichain/lending/internal/logger"
	"github.com/credichain/lending/internal/repository"
	"github.com/credichain/lending/internal/reputation"
	"github.com/credichain/lending/internal/seed"
)

func main() {
	logger.Init(config.GetEnvOrDefaultAsString("LOGGING_LEVEL", "info"))

	cfg, err := config.LoadFromConfig()
	if err != nil {
		logger.Error("Failed to load config", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging.LogLevel)

	if err := run(cfg); err != nil {
		logger.Error("Server exited with error", err)
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Initializing database", slog.String("path", cfg.Database.Path))
	db, err := repository.InitDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("init db: %w", err)
	}
	defer db.Close()

	ledger := repository.NewLedger(db)
	policy := lending.Policy{
		MinInterestBPS:     cfg.Lending.MinInterestBPS,
		MaxInterestBPS:     cfg.Lending.MaxInterestBPS,
		MaxLenders:         cfg.Lending.MaxLenders,
		MaxDurationSeconds: cfg.Lending.MaxDurationSeconds,
	}
	svc := lending.NewService(ledger, policy, lending.WithDisplayDecimals(cfg.Lending.DisplayDecimals))

	// Seed only a brand-new ledger; a failed replay leaves it empty again.
	if cfg.Database.SeedPath != "" {
		empty, err := ledger.IsEmpty(ctx)
		if err != nil {
			return fmt.Errorf("check ledger: %w", err)
		}
		if empty {
			logger.Info("Ledger is empty, seeding loans", slog.String("path", cfg.Database.SeedPath))
			if err := seedLoans(ctx, ledger, policy, cfg.Database.SeedPath); err != nil {
				return fmt.Errorf("seed ledger: %w", err)
			}
		} else {
			logger.Info("Ledger already has history, skipping seed")
		}
	}

	store, closeStore, err := newReputationStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	aggregator := reputation.NewAggregator(svc, store, reputation.Scoring{
		Initial:   cfg.Reputation.InitialScore,
		Increment: cfg.Reputation.Increment,
		Decrement: cfg.Reputation.Decrement,
		Min:       cfg.Reputation.MinScore,
		Max:       cfg.Reputation.MaxScore,
	}, cfg.Reputation.Interval)
	if err := aggregator.Start(ctx); err != nil {
		return fmt.Errorf("start reputation aggregator: %w", err)
	}
	defer aggregator.Stop()

	router := api.NewRouter(svc, aggregator, api.Options{FaucetEnabled: cfg.Lending.FaucetEnabled})
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("CrediChain lending ledger listening",
		slog.String("addr", fmt.Sprintf("http://localhost:%d", cfg.Server.Port)),
		slog.String("api_base", "/api/v1"),
		slog.Bool("faucet_enabled", cfg.Lending.FaucetEnabled),
		slog.String("reputation_store", cfg.Reputation.Store),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

func seedLoans(ctx context.Context, ledger *repository.Ledger, policy lending.Policy, path string) error {
	sc, err := seed.Load(path)
	if err != nil {
		return err
	}

	// Replay the scenario so it ends at the current time.
	var span int64
	if n := len(sc.Steps); n > 0 {
		span = sc.Steps[n-1].At
	}
	base := time.Now().UTC().Add(-time.Duration(span) * time.Second)

	sum, err := seed.Replay(ctx, ledger, policy, sc, base)
	if err != nil {
		return err
	}
	logger.Info("Seeded ledger",
		slog.Int("steps", sum.Steps),
		slog.Int("loans", sum.Loans),
	)
	return nil
}

func newReputationStore(ctx context.Context, cfg *config.AppConfig) (reputation.Store, func(), error) {
	switch cfg.Reputation.Store {
	case config.StoreRedis:
		client, err := reputation.ConnectRedis(ctx, reputation.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		return reputation.NewRedisStore(client, cfg.Redis.Key), func() { client.Close() }, nil
	default:
		return reputation.NewFileStore(cfg.Reputation.FilePath), func() {}, nil
	}
}
