package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/loyalty-api/internal/config"
	"github.com/noah-isme/loyalty-api/internal/events"
	"github.com/noah-isme/loyalty-api/internal/lock"
	"github.com/noah-isme/loyalty-api/internal/loyalty"
	"github.com/noah-isme/loyalty-api/internal/notify"
	"github.com/noah-isme/loyalty-api/internal/obs"
	"github.com/noah-isme/loyalty-api/internal/repo"
)

// The worker re-drives settlement for paid orders whose synchronous finalize
// call never completed. Settlement is idempotent, so re-driving an order that
// raced the API path is harmless.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	webhook := &notify.Webhook{
		URL:     cfg.WebhookURL,
		Secret:  cfg.WebhookSecret,
		Client:  notify.HttpClient(int(cfg.WebhookRequestTimeout/time.Millisecond), false),
		Enabled: cfg.WebhookURL != "",
	}
	bus := &events.Bus{
		Store:     repo.EventsRepo{Pool: pool},
		Notifiers: []events.Notifier{webhook},
	}
	settler := &loyalty.Settler{
		Store:   repo.LoyaltyStore{Pool: pool},
		Locker:  lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff},
		LockTTL: cfg.SettleLockTTL,
		Rates:   loyalty.Rates{RedeemRateMinor: cfg.RedeemRateMinor, EarnDivisorMinor: cfg.EarnDivisorMinor},
		Events:  bus,
		Logger:  &logger,
	}
	redriver := &loyalty.Redriver{
		Orders:    repo.OrdersRepo{Pool: pool},
		Settler:   settler,
		BatchSize: int32(cfg.WorkerBatchSize),
		Grace:     cfg.WorkerRedriveGrace,
		Logger:    &logger,
	}

	logger.Info().
		Dur("interval", cfg.WorkerPollInterval).
		Dur("grace", cfg.WorkerRedriveGrace).
		Msg("settlement worker starting")
	ticker := time.NewTicker(cfg.WorkerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker shutdown complete")
			return
		case <-ticker.C:
			if err := redriver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("settlement batch")
			}
		}
	}
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
