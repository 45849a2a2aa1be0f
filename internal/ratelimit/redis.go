package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "ratelimit:tier:"

// hitScript applies the fixed-window-with-block algorithm atomically.
// KEYS[1] = entry hash; ARGV = now_ms, window_ms, max_requests, block_ms.
// Returns {allowed, count, retry_ms, reset_at_ms}.
var hitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local block = tonumber(ARGV[4])
local state = redis.call('HMGET', KEYS[1], 'count', 'window_start', 'blocked_until')
local count = tonumber(state[1]) or 0
local start = tonumber(state[2]) or 0
local blocked = tonumber(state[3]) or 0

if blocked > 0 then
  if now < blocked then
    return {0, count, blocked - now, blocked}
  end
  start = 0
end

if start == 0 or now >= start + window then
  redis.call('HSET', KEYS[1], 'count', 1, 'window_start', now, 'blocked_until', 0)
  redis.call('PEXPIRE', KEYS[1], window)
  return {1, 1, 0, now + window}
end

count = count + 1
local window_end = start + window
if count <= max then
  redis.call('HSET', KEYS[1], 'count', count)
  return {1, count, 0, window_end}
end

if block > 0 then
  local until_ms = now + block
  redis.call('HSET', KEYS[1], 'count', count, 'blocked_until', until_ms)
  local keep = block
  if window_end - now > keep then
    keep = window_end - now
  end
  redis.call('PEXPIRE', KEYS[1], keep)
  return {0, count, block, until_ms}
end

redis.call('HSET', KEYS[1], 'count', count)
return {0, count, window_end - now, window_end}
`)

// RedisStore keeps counters in Redis so every server instance shares one budget per key.
// Expiry is handled by key TTLs.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix overrides the key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// NewRedisStore creates a store on top of an existing client.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Store.
func (s *RedisStore) Name() string { return "redis" }

// Hit implements Store.
func (s *RedisStore) Hit(ctx context.Context, key string, cfg Config, now time.Time) (Decision, error) {
	res, err := hitScript.Run(ctx, s.client, []string{s.prefix + key},
		now.UnixMilli(),
		cfg.Window.Milliseconds(),
		cfg.MaxRequests,
		cfg.BlockDuration.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 4 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply length %d", len(res))
	}

	d := Decision{
		Allowed: res[0] == 1,
		Count:   int(res[1]),
		Limit:   cfg.MaxRequests,
		ResetAt: time.UnixMilli(res[3]),
	}
	if d.Allowed {
		d.Remaining = max(0, cfg.MaxRequests-d.Count)
	} else {
		d.RetryAfter = retrySeconds(time.Duration(res[2]) * time.Millisecond)
	}
	return d, nil
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("reset rate limit key: %w", err)
	}
	return nil
}

// Snapshot implements Store by scanning the prefix.
func (s *RedisStore) Snapshot(ctx context.Context, now time.Time) (Snapshot, error) {
	var snap Snapshot
	var cursor uint64
	nowMs := now.UnixMilli()
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 500).Result()
		if err != nil {
			return snap, fmt.Errorf("scan rate limit keys: %w", err)
		}
		snap.Tracked += len(keys)

		if len(keys) > 0 {
			pipe := s.client.Pipeline()
			cmds := make([]*redis.StringCmd, len(keys))
			for i, k := range keys {
				cmds[i] = pipe.HGet(ctx, k, "blocked_until")
			}
			if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
				return snap, fmt.Errorf("read blocked state: %w", err)
			}
			for _, cmd := range cmds {
				until, err := strconv.ParseInt(cmd.Val(), 10, 64)
				if err == nil && until > nowMs {
					snap.Blocked++
				}
			}
		}

		cursor = next
		if cursor == 0 {
			return snap, nil
		}
	}
}

// Sweep is a no-op; Redis expires keys on its own.
func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
