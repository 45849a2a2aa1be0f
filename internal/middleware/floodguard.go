package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/inkwell/inkwell-api/internal/database"
	logpkg "github.com/inkwell/inkwell-api/internal/logger"
	"github.com/inkwell/inkwell-api/internal/models"
	"github.com/inkwell/inkwell-api/internal/request"
)

// DefaultFloodGuardRate applies when neither the database nor the caller provides one.
const DefaultFloodGuardRate = "50-S"

const floodGuardPrefix = "ratelimit:flood"

// NewFloodGuardStore returns a Redis-backed store, or an in-process store when client is nil.
func NewFloodGuardStore(client *redis.Client) (limiter.Store, error) {
	if client == nil {
		return memorystore.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          floodGuardPrefix,
			CleanUpInterval: time.Minute,
		}), nil
	}
	store, err := redisstore.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: floodGuardPrefix})
	if err != nil {
		return nil, fmt.Errorf("failed to create flood guard store: %w", err)
	}
	return store, nil
}

// FloodGuard is a per-IP ceiling in front of every route. Its rate lives in the database and
// is reloaded periodically.
type FloodGuard struct {
	store       limiter.Store
	repo        database.RatelimitConfigStore
	defaultRate string
	trustProxy  bool
	log         *zap.Logger
	interval    time.Duration

	mu       sync.RWMutex
	instance *limiter.Limiter
	rate     string
}

// NewFloodGuard creates the guard. repo may be nil, in which case defaultRate is used as is.
func NewFloodGuard(store limiter.Store, repo database.RatelimitConfigStore, defaultRate string, trustProxy bool, log *zap.Logger, reloadInterval time.Duration) *FloodGuard {
	if defaultRate == "" {
		defaultRate = DefaultFloodGuardRate
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FloodGuard{
		store:       store,
		repo:        repo,
		defaultRate: defaultRate,
		trustProxy:  trustProxy,
		log:         log,
		interval:    reloadInterval,
	}
}

// Middleware puts the guard in front of next. Until the first Reload every request passes.
func (g *FloodGuard) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.serve(w, r, next)
		})
	}
}

// Start loads the rate, then reloads it every interval until ctx is cancelled.
func (g *FloodGuard) Start(ctx context.Context) {
	g.Reload(ctx)
	if g.interval <= 0 {
		return
	}
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Reload(ctx)
		}
	}
}

// Rate returns the rate currently enforced.
func (g *FloodGuard) Rate() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rate
}

// Reload reads the configured rate, seeding the default when none is stored.
func (g *FloodGuard) Reload(ctx context.Context) {
	rateStr := g.defaultRate
	if g.repo != nil {
		cfg, err := g.repo.Get(ctx)
		switch {
		case err != nil:
			g.log.Warn("failed_to_load_ratelimit_config_from_db_using_default",
				zap.Error(err),
				zap.String("default_rate", g.defaultRate),
			)
		case cfg != nil && cfg.Rate != "":
			rateStr = cfg.Rate
		default:
			if err := g.repo.Set(ctx, &models.RatelimitConfig{Rate: g.defaultRate}); err != nil {
				g.log.Error("failed_to_save_default_ratelimit_config",
					zap.Error(err),
					zap.String("default_rate", g.defaultRate),
				)
			}
		}
	}

	rate, err := limiter.NewRateFromFormatted(rateStr)
	if err != nil {
		g.log.Error("failed_to_parse_rate_limit_using_default",
			zap.Error(err),
			zap.String("rate_str", rateStr),
		)
		rateStr = g.defaultRate
		if rate, err = limiter.NewRateFromFormatted(rateStr); err != nil {
			g.log.Error("failed_to_parse_default_rate_limit", zap.Error(err), zap.String("default_rate", rateStr))
			return
		}
	}

	g.mu.Lock()
	changed := g.rate != rateStr
	g.instance = limiter.New(g.store, rate)
	g.rate = rateStr
	g.mu.Unlock()

	if changed {
		g.log.Info("flood_guard_rate_loaded", zap.String("rate", rateStr))
	}
}

func (g *FloodGuard) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	g.mu.RLock()
	instance := g.instance
	g.mu.RUnlock()

	if instance == nil {
		next.ServeHTTP(w, r)
		return
	}

	ip := request.ClientIP(r, g.trustProxy)
	lctx, err := instance.Get(r.Context(), ip)
	if err != nil {
		g.log.Error("flood_guard_check_failed",
			zap.String("ip", logpkg.SanitizeIP(ip)),
			zap.Error(err),
		)
		next.ServeHTTP(w, r)
		return
	}
	if lctx.Reached {
		writeRateLimited(w, int(lctx.Reset-time.Now().Unix()))
		return
	}
	next.ServeHTTP(w, r)
}
