package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWindow increments the counter and starts its expiry on the first hit of
// a window, then reports the count and the remaining window in milliseconds.
var incrWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// RedisLimiter is a fixed-window limiter whose counters live in Redis so
// that every instance behind a load balancer shares the same window.
type RedisLimiter struct {
	client *redis.Client
	opts   Options
	prefix string
}

// NewRedisLimiter creates a limiter over an existing client.
func NewRedisLimiter(client *redis.Client, opts Options) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		opts:   opts.normalized(),
		prefix: "ratelimit:homebot:",
	}
}

// Check atomically counts the request and reports whether it is admitted.
// Rejected requests still count, which does not move the window's end.
func (l *RedisLimiter) Check(ctx context.Context, key string) (Decision, error) {
	res, err := incrWindow.Run(ctx, l.client,
		[]string{l.prefix + key},
		l.opts.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{Allowed: true}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 2 {
		return Decision{Allowed: true}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}

	count, ttlMs := res[0], res[1]
	if count <= int64(l.opts.MaxRequests) {
		return Decision{Allowed: true}, nil
	}
	return Decision{
		Allowed:    false,
		RetryAfter: retryAfterSeconds(time.Duration(ttlMs) * time.Millisecond),
	}, nil
}

// Stop is a no-op; key expiry is handled by Redis.
func (l *RedisLimiter) Stop() {}
