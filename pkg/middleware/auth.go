package middleware

import (
	"strings"

	"supportbot/backend/pkg/errors"
	"supportbot/backend/pkg/jwt"
	"supportbot/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TokenValidator validates bearer tokens
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// JWTAuth authenticates the tenant from an "Authorization: Bearer" header.
// Browsers cannot set headers on websocket upgrades, so a "token" query
// parameter is accepted as well.
func JWTAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.Error(errors.NewUnauthorizedError("MISSING_TOKEN", "Authorization required"))
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			c.Error(errors.NewUnauthorizedError("INVALID_TOKEN", "Invalid or expired token").WithCause(err))
			c.Abort()
			return
		}

		setTenant(c, claims.TenantID, claims.Subject)

		// Enrich the request logger with the tenant
		reqLogger := logger.FromGin(c).WithTenantID(claims.TenantID)
		c.Set("logger", reqLogger)
		c.Request = c.Request.WithContext(logger.IntoContext(c.Request.Context(), reqLogger))

		c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
