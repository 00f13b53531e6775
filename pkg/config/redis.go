package config

import (
	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates a client for the shared rate limit store. The
// connection is lazy; callers ping it through the health checker.
func NewRedisClient(cfg *Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
