package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/loyalty-api/internal/app"
	"github.com/noah-isme/loyalty-api/internal/auth"
	"github.com/noah-isme/loyalty-api/internal/catalog"
	"github.com/noah-isme/loyalty-api/internal/common"
	"github.com/noah-isme/loyalty-api/internal/config"
	"github.com/noah-isme/loyalty-api/internal/events"
	"github.com/noah-isme/loyalty-api/internal/health"
	"github.com/noah-isme/loyalty-api/internal/lock"
	"github.com/noah-isme/loyalty-api/internal/loyalty"
	"github.com/noah-isme/loyalty-api/internal/notify"
	"github.com/noah-isme/loyalty-api/internal/obs"
	"github.com/noah-isme/loyalty-api/internal/pos"
	"github.com/noah-isme/loyalty-api/internal/ratelimit"
	"github.com/noah-isme/loyalty-api/internal/repo"
	"github.com/noah-isme/loyalty-api/internal/tenant"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "loyalty")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "loyalty-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "loyalty-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	if envBool("RUN_MIGRATIONS", false) {
		migrator, err := app.NewMigrator(cfg.DatabaseURL, cfg.MigrationsDir)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise migrator")
		}
		if err := app.RunMigrations(migrator); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
		logger.Info().Msg("migrations applied")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	validate := validator.New()

	productsRepo := repo.ProductsRepo{Pool: pool}
	usersRepo := repo.UsersRepo{Pool: pool}
	loyaltyStore := repo.LoyaltyStore{Pool: pool}
	eventsRepo := repo.EventsRepo{Pool: pool}

	catalogSvc, err := catalog.NewService(productsRepo, catalog.NewCache(redisClient, cfg.CatalogCacheTTL))
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}

	rates := loyalty.Rates{RedeemRateMinor: cfg.RedeemRateMinor, EarnDivisorMinor: cfg.EarnDivisorMinor}

	webhook := &notify.Webhook{
		URL:     cfg.WebhookURL,
		Secret:  cfg.WebhookSecret,
		Client:  notify.HttpClient(int(cfg.WebhookRequestTimeout/time.Millisecond), false),
		Enabled: cfg.WebhookURL != "",
	}
	bus := &events.Bus{
		Store:     eventsRepo,
		Notifiers: []events.Notifier{webhook},
	}

	settler := &loyalty.Settler{
		Store:   loyaltyStore,
		Locker:  lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff},
		LockTTL: cfg.SettleLockTTL,
		Rates:   rates,
		Events:  bus,
		Logger:  &logger,
	}
	loyaltySvc := &loyalty.Service{
		Catalog: catalogSvc,
		Balance: usersRepo,
		Ledger:  loyaltyStore,
		Rates:   rates,
		Logger:  &logger,
	}
	loyaltyHandler := &loyalty.Handler{
		Svc:      loyaltySvc,
		Settler:  settler,
		Orders:   repo.OrdersRepo{Pool: pool},
		Validate: validate,
	}

	posSvc := &pos.Service{
		Store:   &pos.Store{R: redisClient, TTL: cfg.POSCartTTL},
		Catalog: catalogSvc,
		Balance: usersRepo,
		Rates:   rates,
	}
	posHandler := &pos.Handler{Svc: posSvc, Validate: validate}

	tokens := auth.Tokens{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.AccessTokenTTL,
	}
	authMiddleware := auth.Middleware{Tokens: tokens}
	authHandler := &auth.Handler{
		Accounts: usersRepo,
		Tokens:   tokens,
		Verify:   app.VerifyPassword,
		Validate: validate,
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	tenantResolver := tenant.NewResolver(
		envOrDefault("TENANT_HEADER", "X-Tenant-ID"),
		envOrDefault("TENANT_ROOT_DOMAIN", ""),
		envOrDefault("TENANT_DEFAULT", repo.DefaultTenant),
	)
	limiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "rl"},
		Config: ratelimit.Config{
			Key:    func(r *http.Request) string { return common.ClientIP(r) },
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		},
		OnError: func(err error) { logger.Error().Err(err).Msg("rate limiter") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(tenantResolver.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant-ID", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	pprofEnabled := envBool("OBS_ENABLE_PPROF", true)
	if pprofEnabled {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Probes: []health.Probe{
			{
				Name:    "db",
				Timeout: envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
				Check:   func(ctx context.Context) error { return pool.Ping(ctx) },
			},
			{
				Name:    "redis",
				Timeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
				Check:   func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			},
		},
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(limiter.Middleware)

		v.Post("/auth/login", authHandler.Login)

		v.Route("/loyalty", func(l chi.Router) {
			l.Use(authMiddleware.RequireAuth)
			l.Post("/apply", loyaltyHandler.Apply)
			l.With(idem.Middleware).Post("/finalize", loyaltyHandler.Finalize)
			l.Get("/ledger", loyaltyHandler.Ledger)
		})

		v.Route("/pos", func(p chi.Router) {
			p.Use(authMiddleware.RequireAuth)
			p.Use(idem.Middleware)
			posHandler.Routes(p)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
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

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
