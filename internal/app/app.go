package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/economy-ledger/internal/api"
	"github.com/ayo6706/economy-ledger/internal/api/middleware"
	"github.com/ayo6706/economy-ledger/internal/config"
	"github.com/ayo6706/economy-ledger/internal/db"
	"github.com/ayo6706/economy-ledger/internal/economy"
	"github.com/ayo6706/economy-ledger/internal/idempotency"
	"github.com/ayo6706/economy-ledger/internal/observability"
	"github.com/ayo6706/economy-ledger/internal/repository"
	"github.com/ayo6706/economy-ledger/internal/service"
	"github.com/ayo6706/economy-ledger/internal/settlement"
	"github.com/ayo6706/economy-ledger/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the HTTP server and background workers, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.AutoMigrate {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	store := repository.NewStore(pool)
	idemStore := idempotency.NewStore(redisClient, store.Postgres(), cfg.IdempotencyTTL)

	provider, err := newEconomyProvider(ctx, cfg, pool, redisClient)
	if err != nil {
		return err
	}

	initiator, closeInitiator := newInitiator(cfg, redisClient)
	defer func() {
		if err := closeInitiator.Close(); err != nil {
			logger.Warn("settlement sink close failed", zap.Error(err))
		}
	}()

	engine := service.NewLedgerEngine(store).WithMaxAttempts(cfg.LedgerMaxAttempts)
	services := api.Services{
		Wallet:   service.NewWalletService(engine, provider),
		Cashouts: service.NewCashoutService(engine, provider, initiator),
		Rewards:  service.NewRewardService(engine, provider),
	}

	clearance := worker.NewClearanceWorker(services.Cashouts).
		WithPollInterval(cfg.ClearancePollInterval).
		WithBatchSize(cfg.ClearanceBatchSize)
	stopClearance := clearance.Run(ctx)
	logger.Info("clearance worker started", zap.Duration("interval", cfg.ClearancePollInterval), zap.Int32("batch", cfg.ClearanceBatchSize))

	reconciler := worker.NewReconciliationWorker(service.NewReconciliationService(store)).
		WithInterval(cfg.ReconciliationInterval)
	stopReconciler := reconciler.Run(ctx)
	logger.Info("reconciliation worker started", zap.Duration("interval", cfg.ReconciliationInterval))

	redeliverer := worker.NewSettlementWorker(services.Cashouts).
		WithInterval(cfg.SettlementRetryInterval)
	stopRedeliverer := redeliverer.Run(ctx)

	router := api.NewRouter(cfg, logger, pool, redisClient, idemStore, services)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping workers")
	stopClearance()
	stopReconciler()
	stopRedeliverer()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newEconomyProvider(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, rdb redis.Cmdable) (economy.Provider, error) {
	var source economy.Provider
	switch cfg.EconomySource {
	case config.EconomySourcePostgres:
		source = economy.NewPostgresProvider(pool)
	default:
		source = economy.NewFileProvider(cfg.EconomyConfigFile)
	}
	// Fail at startup rather than on the first exchange.
	if _, err := source.Current(ctx); err != nil {
		return nil, fmt.Errorf("load economy config from %s: %w", cfg.EconomySource, err)
	}
	return economy.NewCachedProvider(source, rdb, cfg.EconomyCacheTTL), nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newInitiator(cfg *config.Config, rdb redis.Cmdable) (settlement.Initiator, io.Closer) {
	switch cfg.SettlementSink {
	case config.SettlementSinkKafka:
		k := settlement.NewKafkaInitiator(cfg.KafkaBrokers, cfg.KafkaTopic)
		return k, k
	case config.SettlementSinkRedis:
		return settlement.NewRedisInitiator(rdb, cfg.SettlementChannel), nopCloser{}
	default:
		return settlement.NewLogInitiator(), nopCloser{}
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
