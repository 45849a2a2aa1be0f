package ratelimit

import (
	"context"
	"math"
	"time"
)

// Entry is the per-key counter state.
type Entry struct {
	Key          string     `json:"key"`
	Count        int        `json:"count"`
	WindowStart  time.Time  `json:"window_start"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
}

// Decision is the outcome of one check.
type Decision struct {
	Allowed    bool      `json:"allowed"`
	RetryAfter int       `json:"retry_after"`
	Count      int       `json:"count"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
}

// Snapshot summarises the keys held by a store.
type Snapshot struct {
	Tracked int
	Blocked int
}

// Store holds counter state. Hit must apply read-check-increment atomically per key.
type Store interface {
	Hit(ctx context.Context, key string, cfg Config, now time.Time) (Decision, error)
	Reset(ctx context.Context, key string) error
	Snapshot(ctx context.Context, now time.Time) (Snapshot, error)
	Sweep(ctx context.Context, now time.Time) (int, error)
	Name() string
}

// advance applies one request at now to e and returns the decision. e is mutated in place.
func advance(e *Entry, cfg Config, now time.Time) Decision {
	if e.BlockedUntil != nil {
		if now.Before(*e.BlockedUntil) {
			return rejected(e, cfg, *e.BlockedUntil, now)
		}
		e.BlockedUntil = nil
		return startWindow(e, cfg, now)
	}

	windowEnd := e.WindowStart.Add(cfg.Window)
	if e.WindowStart.IsZero() || !now.Before(windowEnd) {
		return startWindow(e, cfg, now)
	}

	e.Count++
	if e.Count <= cfg.MaxRequests {
		return Decision{
			Allowed:   true,
			Count:     e.Count,
			Limit:     cfg.MaxRequests,
			Remaining: cfg.MaxRequests - e.Count,
			ResetAt:   windowEnd,
		}
	}

	if cfg.BlockDuration > 0 {
		until := now.Add(cfg.BlockDuration)
		e.BlockedUntil = &until
		return rejected(e, cfg, until, now)
	}
	return rejected(e, cfg, windowEnd, now)
}

func startWindow(e *Entry, cfg Config, now time.Time) Decision {
	e.Count = 1
	e.WindowStart = now
	return Decision{
		Allowed:   true,
		Count:     1,
		Limit:     cfg.MaxRequests,
		Remaining: cfg.MaxRequests - 1,
		ResetAt:   now.Add(cfg.Window),
	}
}

func rejected(e *Entry, cfg Config, until, now time.Time) Decision {
	return Decision{
		Allowed:    false,
		RetryAfter: retrySeconds(until.Sub(now)),
		Count:      e.Count,
		Limit:      cfg.MaxRequests,
		ResetAt:    until,
	}
}

// retrySeconds rounds d up to whole seconds with a floor of one.
func retrySeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// expired reports whether e holds no live window or block at now.
func expired(e *Entry, window time.Duration, now time.Time) bool {
	if e.BlockedUntil != nil && now.Before(*e.BlockedUntil) {
		return false
	}
	return !now.Before(e.WindowStart.Add(window))
}
