package middleware

import (
	"strconv"

	"supportbot/backend/pkg/errors"
	"supportbot/backend/pkg/logger"
	"supportbot/backend/pkg/observability"
	"supportbot/backend/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

// ClientRateLimit admits anonymous requests through a fixed-window limiter
// keyed by client address. Limiter backend errors let the request through.
func ClientRateLimit(limiter ratelimit.Limiter, metrics *observability.PipelineMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()

		decision, err := limiter.Check(c.Request.Context(), key)
		if err != nil {
			logger.FromGin(c).Warn("Rate limiter unavailable, admitting request",
				"client", key,
				"error", err.Error(),
			)
		}
		if decision.Allowed {
			c.Next()
			return
		}

		metrics.RecordRateLimited(c.Request.Context())
		c.Header("Retry-After", strconv.Itoa(decision.RetryAfter))
		c.Error(errors.NewTooManyRequestsError("RATE_LIMITED", "You're sending messages too quickly. Please slow down.").
			WithDetails(map[string]any{"retryAfter": decision.RetryAfter}))
		c.Abort()
	}
}
