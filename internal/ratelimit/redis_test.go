package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// newRedisTestStore returns a store on REDIS_TEST_URL, or on an in-process miniredis server
// when unset so the Lua script always runs.
func newRedisTestStore(t *testing.T) *RedisStore {
	t.Helper()
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		url = "redis://" + miniredis.RunT(t).Addr()
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse REDIS_TEST_URL: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, WithRedisPrefix("test:"+uuid.NewString()+":"))
}

func TestRedisStore_MatchesMemoryStore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		cfg   Config
		steps []time.Duration
	}{
		{
			name:  "block after limit",
			cfg:   Config{Window: time.Minute, MaxRequests: 3, BlockDuration: 10 * time.Minute},
			steps: []time.Duration{0, time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Minute, 10*time.Minute + 3*time.Second, 10*time.Minute + 4*time.Second},
		},
		{
			name:  "zero block waits for window end",
			cfg:   Config{Window: time.Minute, MaxRequests: 2},
			steps: []time.Duration{0, time.Second, 2 * time.Second, 59 * time.Second, time.Minute, time.Minute + time.Second},
		},
		{
			name:  "window rolls over",
			cfg:   Config{Window: 10 * time.Second, MaxRequests: 1, BlockDuration: time.Second},
			steps: []time.Duration{0, 10 * time.Second, 10*time.Second + 500*time.Millisecond, 12 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rs := newRedisTestStore(t)
			ms := NewMemoryStore()
			ctx := context.Background()
			start := time.Now().Truncate(time.Millisecond)

			for i, offset := range tt.steps {
				now := start.Add(offset)
				want, _ := ms.Hit(ctx, "k", tt.cfg, now)
				got, err := rs.Hit(ctx, "k", tt.cfg, now)
				if err != nil {
					t.Fatalf("step %d: Hit() error = %v", i, err)
				}
				if got.Allowed != want.Allowed || got.Count != want.Count || got.RetryAfter != want.RetryAfter || got.Remaining != want.Remaining {
					t.Errorf("step %d: redis %+v, memory %+v", i, got, want)
				}
			}
		})
	}
}

func TestRedisStore_SnapshotAndReset(t *testing.T) {
	t.Parallel()
	rs := newRedisTestStore(t)
	ctx := context.Background()
	cfg := Config{Window: time.Minute, MaxRequests: 1, BlockDuration: time.Minute}
	now := time.Now()

	rs.Hit(ctx, "a", cfg, now)
	rs.Hit(ctx, "a", cfg, now)
	rs.Hit(ctx, "b", cfg, now)

	snap, err := rs.Snapshot(ctx, now)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.Tracked != 2 || snap.Blocked != 1 {
		t.Errorf("Snapshot() = %+v, want 2 tracked / 1 blocked", snap)
	}

	if err := rs.Reset(ctx, "a"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if d, _ := rs.Hit(ctx, "a", cfg, now); !d.Allowed {
		t.Error("request after Reset rejected")
	}
}
