// Package ratelimit implements fixed-window admission control for the
// anonymous chat endpoint.
//
// The limiter is advisory: it protects the completion provider from a single
// noisy client but is not a security boundary. A MemoryLimiter keeps state in
// process memory and only holds for a single instance; RedisLimiter shares the
// window across instances behind a load balancer.
package ratelimit

import (
	"context"
	"math"
	"time"
)

// Decision is the outcome of a Check.
type Decision struct {
	Allowed bool
	// RetryAfter is the remaining window time rounded up to whole seconds.
	// Zero when Allowed is true.
	RetryAfter int
}

// Limiter admits or rejects a request for a client key.
type Limiter interface {
	Check(ctx context.Context, key string) (Decision, error)
}

// Options configures a fixed-window limiter.
type Options struct {
	// Window is the length of one counting window.
	Window time.Duration
	// MaxRequests is the number of requests admitted per window.
	MaxRequests int
	// SweepInterval controls how often expired entries are purged
	// (memory backend only).
	SweepInterval time.Duration
}

// DefaultOptions returns one request per two-second window, swept every minute.
func DefaultOptions() Options {
	return Options{
		Window:        2 * time.Second,
		MaxRequests:   1,
		SweepInterval: time.Minute,
	}
}

func (o Options) normalized() Options {
	def := DefaultOptions()
	if o.Window <= 0 {
		o.Window = def.Window
	}
	if o.MaxRequests <= 0 {
		o.MaxRequests = def.MaxRequests
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = def.SweepInterval
	}
	return o
}

func retryAfterSeconds(remaining time.Duration) int {
	if remaining <= 0 {
		return 1
	}
	return int(math.Ceil(remaining.Seconds()))
}
