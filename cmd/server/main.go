package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/inkwell/inkwell-api/internal/admin"
	"github.com/inkwell/inkwell-api/internal/config"
	"github.com/inkwell/inkwell-api/internal/database"
	"github.com/inkwell/inkwell-api/internal/events"
	"github.com/inkwell/inkwell-api/internal/handlers"
	"github.com/inkwell/inkwell-api/internal/logger"
	"github.com/inkwell/inkwell-api/internal/middleware"
	"github.com/inkwell/inkwell-api/internal/ratelimit"
	"github.com/inkwell/inkwell-api/internal/services/auth"
	"github.com/inkwell/inkwell-api/internal/telemetry"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.ServerDebugMode || *debugFlag

	newLogger := logger.NewProductionLogger
	if cfg.LogFormat == "console" {
		newLogger = logger.NewDevelopmentLogger
	}
	zapLogger, err := newLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
		zap.Bool("redis_enabled", cfg.RedisURL != ""),
		zap.Bool("elevated_lookup_enabled", cfg.ElevatedLookupEnabled()),
	)

	tracing := false
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else if tp, err := telemetry.InitTracer(context.Background(), telemetry.Options{
			ServiceName: serviceName,
			Endpoint:    cfg.OTELEndpoint,
			Insecure:    true,
		}); err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			tracing = true
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(ctx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	health := handlers.NewHealthChecker()
	health.AddCheck("database", db.PingContext)

	var serviceProfiles *database.ProfileRepository
	if cfg.ElevatedLookupEnabled() {
		serviceDB, err := database.New(cfg.ServiceDatabaseURL)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_service_database", zap.Error(err))
		}
		defer func() { _ = serviceDB.Close() }()
		serviceProfiles = database.NewProfileRepository(serviceDB)
		health.AddCheck("service_database", serviceDB.PingContext)
		zapLogger.Info("connected_to_service_database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = connectRedis(cfg.RedisURL)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
			}
		}()
		health.AddCheck("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
		zapLogger.Info("connected_to_redis")
	}

	tiers, err := ratelimit.LoadTiers(cfg.RateLimitTiersFile)
	if err != nil {
		zapLogger.Fatal("failed_to_load_rate_limit_tiers", zap.Error(err))
	}
	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if redisClient != nil {
		store = ratelimit.NewRedisStore(redisClient)
	}
	limiter, err := ratelimit.New(store, tiers, ratelimit.WithLogger(zapLogger))
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}
	zapLogger.Info("rate_limiter_ready", zap.String("backend", store.Name()), zap.Strings("tiers", tiers.Names()))

	publisher := events.NewAsyncPublisher(connectPublisher(cfg.RabbitMQURL, zapLogger), events.DefaultQueueSize, 2*time.Second, zapLogger)
	defer func() {
		if err := publisher.Close(); err != nil {
			zapLogger.Warn("failed_to_close_event_publisher", zap.Error(err))
		}
	}()
	if cfg.RabbitMQURL != "" {
		health.AddCheck("events", publisher.HealthCheck)
	}

	if cfg.AuthJWKSURL == "" {
		zapLogger.Warn("auth_jwks_url_not_configured_all_sessions_rejected")
	}
	verifier := auth.NewVerifier(auth.NewJWKSManager(nil, time.Hour), cfg.AuthIssuer, cfg.AuthJWKSURL)
	resolver := auth.NewSessionResolver(verifier, database.NewSessionProfileReader(db, cfg.DBSessionRole), cfg.AuthCookieName)

	admin.DefaultDeps = admin.Deps{
		NewSessionClient: func(r *http.Request) (admin.SessionClient, error) {
			return resolver.Session(r), nil
		},
		NewServiceClient: func() (admin.RoleLookup, error) {
			if serviceProfiles == nil {
				return nil, nil
			}
			return serviceProfiles, nil
		},
	}
	gate := admin.NewGate(admin.Deps{}, zapLogger)

	floodStore, err := middleware.NewFloodGuardStore(redisClient)
	if err != nil {
		zapLogger.Fatal("failed_to_create_flood_guard_store", zap.Error(err))
	}
	flood := middleware.NewFloodGuard(
		floodStore,
		database.NewRatelimitConfigRepository(db),
		cfg.RateLimitGlobalDefault,
		cfg.TrustProxyHeaders,
		zapLogger,
		cfg.RateLimitReloadInterval,
	)

	handler := newRouter(routerDeps{
		log:        zapLogger,
		limiter:    limiter,
		gate:       gate,
		resolver:   resolver,
		posts:      database.NewPostRepository(db, zapLogger),
		health:     health,
		flood:      flood,
		publisher:  publisher,
		trustProxy: cfg.TrustProxyHeaders,
		enableHSTS: cfg.EnableHSTS,
		frontend:   cfg.FrontendURL,
		tracing:    tracing,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go flood.Start(bgCtx)
	go limiter.RunJanitor(bgCtx, cfg.RateLimitJanitorInterval)

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	bgCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}
	zapLogger.Info("server_exited")
}

func connectRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// connectPublisher retries with exponential backoff so the broker may start after the API.
// Security events are best effort, so the server runs without them rather than failing.
func connectPublisher(url string, log *zap.Logger) events.Publisher {
	if url == "" {
		return events.Noop{}
	}

	const maxRetries = 5
	delay := time.Second
	for attempt := 1; ; attempt++ {
		p, err := events.NewRabbitMQPublisher(url)
		if err == nil {
			log.Info("connected_to_rabbitmq")
			return p
		}
		if attempt == maxRetries {
			log.Error("failed_to_connect_to_rabbitmq_security_events_disabled",
				zap.Int("max_retries", maxRetries),
				zap.Error(err),
			)
			return events.Noop{}
		}
		log.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt),
			zap.Error(err),
			zap.Duration("retry_delay", delay),
		)
		time.Sleep(delay)
		if delay *= 2; delay > 30*time.Second {
			delay = 30 * time.Second
		}
	}
}
