package secrets

import (
	"context"
)

// Well-known secret keys
const (
	KeyOpenAIAPIKey = "openai_api_key"
	KeyJWTSecret    = "jwt_secret"
	KeyDatabasePass = "database_password"
)

// Manager provides access to secrets from various sources
type Manager interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)

	// GetSecretWithDefault retrieves a secret with a default value if not found
	GetSecretWithDefault(ctx context.Context, key, defaultValue string) string
}

// Resolve fills *dst from the manager unless it already holds a value.
func Resolve(ctx context.Context, m Manager, key string, dst *string) {
	if *dst != "" || m == nil {
		return
	}
	*dst = m.GetSecretWithDefault(ctx, key, "")
}
