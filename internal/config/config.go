package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	AccessTokenTTL     time.Duration
	CORSAllowedOrigins []string
	MigrationsDir      string

	// Loyalty programme constants. One point is worth RedeemRateMinor minor
	// units of discount; one point is earned per EarnDivisorMinor minor units
	// of the final payable total.
	RedeemRateMinor  int64
	EarnDivisorMinor int64
	TaxRateBPS       int
	CurrencyCode     string

	CatalogCacheTTL  time.Duration
	POSCartTTL       time.Duration
	IdempotencyTTL   time.Duration
	SettleLockTTL    time.Duration
	LockRetryBackoff time.Duration

	RateLimitWindow time.Duration
	RateLimitMax    int

	WebhookURL            string
	WebhookSecret         string
	WebhookRequestTimeout time.Duration

	WorkerPollInterval time.Duration
	WorkerBatchSize    int
	// WorkerRedriveGrace keeps the worker away from freshly paid orders so a
	// shopper's in-flight finalize call settles first with its requested
	// redemption.
	WorkerRedriveGrace time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          valueOrDefault(k.String("JWT_ISSUER"), "loyalty-api"),
		JWTAudience:        valueOrDefault(k.String("JWT_AUDIENCE"), "loyalty-clients"),
		AccessTokenTTL:     parseDuration(k.String("ACCESS_TOKEN_TTL"), "15m"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		MigrationsDir:      valueOrDefault(k.String("MIGRATIONS_DIR"), "migrations"),

		RedeemRateMinor:  parseInt64(k.String("LOYALTY_REDEEM_RATE_MINOR"), 100),
		EarnDivisorMinor: parseInt64(k.String("LOYALTY_EARN_DIVISOR_MINOR"), 1000),
		TaxRateBPS:       parseInt(k.String("PRICING_TAX_RATE_BPS"), 0),
		CurrencyCode:     valueOrDefault(k.String("CURRENCY_CODE"), "USD"),

		CatalogCacheTTL:  parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		POSCartTTL:       parseDuration(k.String("POS_CART_TTL"), "12h"),
		IdempotencyTTL:   parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		SettleLockTTL:    parseDuration(k.String("SETTLE_LOCK_TTL"), "30s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),

		RateLimitWindow: parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:    parseInt(k.String("RATE_LIMIT_MAX"), 120),

		WebhookURL:            strings.TrimSpace(k.String("LOYALTY_WEBHOOK_URL")),
		WebhookSecret:         k.String("LOYALTY_WEBHOOK_SECRET"),
		WebhookRequestTimeout: parseDuration(k.String("WEBHOOK_REQUEST_TIMEOUT"), "5s"),

		WorkerPollInterval: parseDuration(k.String("WORKER_POLL_INTERVAL"), "10s"),
		WorkerBatchSize:    parseInt(k.String("WORKER_BATCH_SIZE"), 50),
		WorkerRedriveGrace: parseDuration(k.String("WORKER_REDRIVE_GRACE"), "10m"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.RedeemRateMinor <= 0 {
		return nil, errors.New("LOYALTY_REDEEM_RATE_MINOR must be positive")
	}
	if cfg.EarnDivisorMinor <= 0 {
		return nil, errors.New("LOYALTY_EARN_DIVISOR_MINOR must be positive")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseInt64(value string, fallback int64) int64 {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
