package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrUnknownTier is returned by Check and Reset for tier names that were not configured.
var ErrUnknownTier = errors.New("unknown rate limit tier")

// Limiter is the process-wide registry of named tiers over a single Store.
// It is created once at startup and handed to the HTTP layer.
type Limiter struct {
	store    Store
	tiers    Tiers
	counters map[string]*tierCounters
	totals   tierCounters
	errors   atomic.Int64
	now      func() time.Time
	log      *zap.Logger
}

type tierCounters struct {
	allowed  atomic.Int64
	rejected atomic.Int64
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the logger used by the janitor.
func WithLogger(log *zap.Logger) Option {
	return func(l *Limiter) { l.log = log }
}

// New creates a Limiter. tiers is copied and validated.
func New(store Store, tiers Tiers, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("rate limit store is required")
	}
	if err := tiers.Validate(); err != nil {
		return nil, err
	}
	l := &Limiter{
		store:    store,
		tiers:    make(Tiers, len(tiers)),
		counters: make(map[string]*tierCounters, len(tiers)),
		now:      time.Now,
		log:      zap.NewNop(),
	}
	for name, cfg := range tiers {
		l.tiers[name] = cfg
		l.counters[name] = &tierCounters{}
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Tier returns the budget configured for name.
func (l *Limiter) Tier(name string) (Config, bool) {
	cfg, ok := l.tiers[name]
	return cfg, ok
}

// Tiers returns a copy of the configured tiers.
func (l *Limiter) Tiers() Tiers {
	out := make(Tiers, len(l.tiers))
	for k, v := range l.tiers {
		out[k] = v
	}
	return out
}

// Check counts one request from key against tier. Callers treat a non-nil error as "allow".
func (l *Limiter) Check(ctx context.Context, tier, key string) (Decision, error) {
	cfg, ok := l.tiers[tier]
	if !ok {
		l.errors.Add(1)
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownTier, tier)
	}

	d, err := l.store.Hit(ctx, storeKey(tier, key), cfg, l.now())
	if err != nil {
		l.errors.Add(1)
		return Decision{}, err
	}

	c := l.counters[tier]
	if d.Allowed {
		c.allowed.Add(1)
		l.totals.allowed.Add(1)
	} else {
		c.rejected.Add(1)
		l.totals.rejected.Add(1)
	}
	return d, nil
}

// Reset clears the counter and any block for key in tier.
func (l *Limiter) Reset(ctx context.Context, tier, key string) error {
	if _, ok := l.tiers[tier]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTier, tier)
	}
	return l.store.Reset(ctx, storeKey(tier, key))
}

// TierStats reports one tier's budget and outcomes since startup.
type TierStats struct {
	WindowSeconds        float64 `json:"window_seconds"`
	MaxRequests          int     `json:"max_requests"`
	BlockDurationSeconds float64 `json:"block_duration_seconds"`
	Allowed              int64   `json:"allowed"`
	Rejected             int64   `json:"rejected"`
}

// Stats is the diagnostic view served to administrators.
type Stats struct {
	Backend       string               `json:"backend"`
	TrackedKeys   int                  `json:"tracked_keys"`
	BlockedKeys   int                  `json:"blocked_keys"`
	TotalChecks   int64                `json:"total_checks"`
	TotalAllowed  int64                `json:"total_allowed"`
	TotalRejected int64                `json:"total_rejected"`
	TotalErrors   int64                `json:"total_errors"`
	Tiers         map[string]TierStats `json:"tiers"`
	GeneratedAt   time.Time            `json:"generated_at"`
}

// Stats returns a read-only snapshot. Aggregate counters are per process.
func (l *Limiter) Stats(ctx context.Context) (Stats, error) {
	now := l.now()
	snap, err := l.store.Snapshot(ctx, now)
	if err != nil {
		return Stats{}, fmt.Errorf("rate limit snapshot: %w", err)
	}

	allowed := l.totals.allowed.Load()
	rejected := l.totals.rejected.Load()
	st := Stats{
		Backend:       l.store.Name(),
		TrackedKeys:   snap.Tracked,
		BlockedKeys:   snap.Blocked,
		TotalChecks:   allowed + rejected,
		TotalAllowed:  allowed,
		TotalRejected: rejected,
		TotalErrors:   l.errors.Load(),
		Tiers:         make(map[string]TierStats, len(l.tiers)),
		GeneratedAt:   now.UTC(),
	}
	for name, cfg := range l.tiers {
		c := l.counters[name]
		st.Tiers[name] = TierStats{
			WindowSeconds:        cfg.Window.Seconds(),
			MaxRequests:          cfg.MaxRequests,
			BlockDurationSeconds: cfg.BlockDuration.Seconds(),
			Allowed:              c.allowed.Load(),
			Rejected:             c.rejected.Load(),
		}
	}
	return st, nil
}

// RunJanitor evicts expired entries every interval until ctx is cancelled.
func (l *Limiter) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.store.Sweep(ctx, l.now())
			if err != nil {
				l.log.Warn("rate_limit_sweep_failed", zap.Error(err))
				continue
			}
			if n > 0 {
				l.log.Debug("rate_limit_entries_evicted", zap.Int("count", n))
			}
		}
	}
}

func storeKey(tier, key string) string {
	return tier + ":" + key
}
