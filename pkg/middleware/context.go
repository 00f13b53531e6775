package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
)

// Key types for context values
type contextKey string

const (
	// TenantIDKey is the key for the authenticated tenant in contexts
	TenantIDKey contextKey = "tenantID"
	// SubjectKey is the key for the token subject in contexts
	SubjectKey contextKey = "subject"
)

const ginTenantKey = "tenantID"

func setTenant(c *gin.Context, tenantID, subject string) {
	c.Set(ginTenantKey, tenantID)
	ctx := context.WithValue(c.Request.Context(), TenantIDKey, tenantID)
	if subject != "" {
		ctx = context.WithValue(ctx, SubjectKey, subject)
	}
	c.Request = c.Request.WithContext(ctx)
}

// TenantFromGin returns the tenant set by JWTAuth, or "" on unauthenticated routes
func TenantFromGin(c *gin.Context) string {
	return c.GetString(ginTenantKey)
}

// GetTenantID extracts the tenant ID from a context
func GetTenantID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	if tenantID, ok := ctx.Value(TenantIDKey).(string); ok {
		return tenantID
	}

	return ""
}

// GetSubject extracts the token subject from a context
func GetSubject(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	if subject, ok := ctx.Value(SubjectKey).(string); ok {
		return subject
	}

	return ""
}
