package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"supportbot/backend/pkg/errors"
	"supportbot/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterOptions configures the rate limiter
type RateLimiterOptions struct {
	// Limit defines requests per second
	Limit rate.Limit
	// Burst defines maximum burst size allowed
	Burst int
	// ExpiryDuration defines how long to keep client state in memory
	ExpiryDuration time.Duration
	// CleanupInterval defines how often idle entries are dropped
	CleanupInterval time.Duration
	// KeyFunc extracts the limiting key from a request (e.g. tenant, IP)
	KeyFunc func(*gin.Context) string
}

// DefaultRateLimiterOptions returns sensible defaults
func DefaultRateLimiterOptions() RateLimiterOptions {
	return RateLimiterOptions{
		Limit:           5,  // 5 requests per second
		Burst:           10, // Burst of 10 requests
		ExpiryDuration:  time.Hour,
		CleanupInterval: time.Minute,
		KeyFunc: func(c *gin.Context) string {
			if tenant := TenantFromGin(c); tenant != "" {
				return TenantKey(tenant)
			}
			return "ip:" + c.ClientIP()
		},
	}
}

// TenantKey is the limiter key of an authenticated tenant
func TenantKey(tenantID string) string {
	return "tenant:" + tenantID
}

// client represents a rate limiter client
type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles authenticated tenants with a token bucket per key
type RateLimiter struct {
	mu      sync.Mutex
	options RateLimiterOptions
	clients map[string]*client
	logger  *logger.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a new rate limiter and starts its cleanup loop
func NewRateLimiter(logger *logger.Logger, options ...RateLimiterOptions) *RateLimiter {
	opts := DefaultRateLimiterOptions()
	if len(options) > 0 {
		opts = options[0]
	}
	if opts.KeyFunc == nil {
		opts.KeyFunc = DefaultRateLimiterOptions().KeyFunc
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = time.Minute
	}

	r := &RateLimiter{
		options: opts,
		clients: make(map[string]*client),
		logger:  logger,
		stop:    make(chan struct{}),
	}
	go r.cleanup()
	return r
}

// Middleware returns a Gin middleware for rate limiting
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := r.options.KeyFunc(c)
		if ok, retryAfter := r.Allow(key); !ok {
			r.reject(c, key, retryAfter)
			return
		}
		c.Next()
	}
}

// Allow takes a token for key. When none is available it reports the whole
// seconds until the next one, at least 1.
func (r *RateLimiter) Allow(key string) (bool, int) {
	reservation := r.getLimiter(key).Reserve()
	if !reservation.OK() {
		return false, 1
	}
	if delay := reservation.Delay(); delay > 0 {
		reservation.Cancel()
		return false, max(1, int(math.Ceil(delay.Seconds())))
	}
	return true, 0
}

func (r *RateLimiter) reject(c *gin.Context, key string, retryAfter int) {
	r.logger.Warn("Rate limit exceeded",
		"client", key,
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
	)

	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Error(errors.NewTooManyRequestsError("RATE_LIMIT_EXCEEDED", "Too many requests. Please try again later.").
		WithDetails(map[string]any{"retryAfter": retryAfter}))
	c.Abort()
}

// getLimiter returns a rate limiter for the given key
func (r *RateLimiter) getLimiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, exists := r.clients[key]
	if !exists {
		limiter := rate.NewLimiter(r.options.Limit, r.options.Burst)
		r.clients[key] = &client{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// Stop ends the cleanup loop
func (r *RateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// cleanup removes old entries from the clients map
func (r *RateLimiter) cleanup() {
	ticker := time.NewTicker(r.options.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-r.stop:
			return
		}

		r.mu.Lock()
		for k, v := range r.clients {
			if time.Since(v.lastSeen) > r.options.ExpiryDuration {
				delete(r.clients, k)
			}
		}
		r.mu.Unlock()
	}
}
