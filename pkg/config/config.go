package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port     string
		GRPCPort string
		Env      string
		Timeout  time.Duration
		BaseURL  string
	}

	// Database configuration
	Database struct {
		// Driver is postgres or sqlite
		Driver     string
		SQLitePath string
		Host       string
		Port       string
		User       string
		Password   string
		Name       string
		SSLMode    string
		MaxConns   int
		Timeout    time.Duration
	}

	// Redis configuration, used by the shared rate limiter backend
	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	// Security configuration
	Security struct {
		JWTSecret       string
		JWTExpiry       time.Duration
		TenantRateLimit float64
		TenantBurst     int
		AllowedOrigins  []string
		TrustedProxies  []string
		MaxBodySize     int64
	}

	// LLM provider configuration
	LLM struct {
		APIKey             string
		BaseURL            string
		DefaultModel       string
		DefaultTemperature float32
		DefaultMaxTokens   int
		EmbeddingModel     string
		PublicModel        string
		PublicTimeout      time.Duration
	}

	// Knowledge retrieval configuration
	Retrieval struct {
		Backend          string
		SimilarityFloor  float64
		TopK             int
		FailureThreshold uint
		RetryTimeout     time.Duration
	}

	// Chat pipeline configuration
	Chat struct {
		HistoryWindow       int
		MaxContextTokens    int
		MaxHistoryTokens    int
		MaxMessageLength    int
		PublicHistoryWindow int
	}

	// Anonymous endpoint rate limiting
	RateLimit struct {
		Backend       string
		Window        time.Duration
		MaxRequests   int
		SweepInterval time.Duration
	}

	// Vault configuration
	Vault struct {
		Enabled     bool
		Address     string
		Token       string
		Namespace   string
		SecretsPath string
	}

	// Weaviate configuration
	Weaviate struct {
		URL       string
		APIKey    string
		ClassName string
	}

	// Telemetry configuration
	Telemetry struct {
		ServiceName   string
		TraceExporter string
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
		File   string
	}

	// Cache settings
	Cache struct {
		Enabled     bool
		TTL         time.Duration
		MaxSize     int
		PurgeWindow time.Duration
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		godotenv.Load()

		instance = Load()
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Load reads a fresh Config from the environment without touching the singleton.
func Load() *Config {
	cfg := &Config{}

	// Server config
	cfg.Server.Port = getEnvString("PORT", "8081")
	cfg.Server.GRPCPort = getEnvString("GRPC_PORT", "9094")
	cfg.Server.Env = getEnvString("APP_ENV", "development")
	cfg.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)
	cfg.Server.BaseURL = getEnvString("BASE_URL", "http://localhost:"+cfg.Server.Port)

	// Database config
	cfg.Database.Driver = getEnvString("DB_DRIVER", DriverPostgres)
	cfg.Database.SQLitePath = getEnvString("DB_SQLITE_PATH", "supportbot.db")
	cfg.Database.Host = getEnvString("DB_HOST", "localhost")
	cfg.Database.Port = getEnvString("DB_PORT", "5432")
	cfg.Database.User = getEnvString("DB_USER", "postgres")
	cfg.Database.Password = getEnvString("DB_PASSWORD", "postgres")
	cfg.Database.Name = getEnvString("DB_NAME", "supportbot")
	cfg.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)

	// Redis config
	cfg.Redis.Addr = getEnvString("REDIS_URL", "localhost:6379")
	cfg.Redis.Password = getEnvString("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	// Security config
	cfg.Security.JWTSecret = getEnvString("JWT_SECRET", "default-jwt-secret-do-not-use-in-production")
	cfg.Security.JWTExpiry = getEnvDuration("JWT_EXPIRY", 24*time.Hour)
	cfg.Security.TenantRateLimit = getEnvFloat("TENANT_RATE_LIMIT", 5)
	cfg.Security.TenantBurst = getEnvInt("TENANT_RATE_LIMIT_BURST", 10)
	cfg.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})
	cfg.Security.TrustedProxies = getEnvStringSlice("TRUSTED_PROXIES", []string{"127.0.0.1"})
	cfg.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 1<<20) // 1MB

	// LLM config
	cfg.LLM.APIKey = getEnvString("OPENAI_API_KEY", "")
	cfg.LLM.BaseURL = getEnvString("OPENAI_BASE_URL", "")
	cfg.LLM.DefaultModel = getEnvString("LLM_DEFAULT_MODEL", "gpt-4o-mini")
	cfg.LLM.DefaultTemperature = float32(getEnvFloat("LLM_DEFAULT_TEMPERATURE", 0.7))
	cfg.LLM.DefaultMaxTokens = getEnvInt("LLM_DEFAULT_MAX_TOKENS", 500)
	cfg.LLM.EmbeddingModel = getEnvString("LLM_EMBEDDING_MODEL", "text-embedding-3-small")
	cfg.LLM.PublicModel = getEnvString("LLM_PUBLIC_MODEL", "gpt-4o-mini")
	cfg.LLM.PublicTimeout = getEnvDuration("LLM_PUBLIC_TIMEOUT", 18*time.Second)

	// Retrieval config
	cfg.Retrieval.Backend = getEnvString("RETRIEVAL_BACKEND", "pgvector")
	cfg.Retrieval.SimilarityFloor = getEnvFloat("RETRIEVAL_SIMILARITY_FLOOR", 0.3)
	cfg.Retrieval.TopK = getEnvInt("RETRIEVAL_TOP_K", 5)
	cfg.Retrieval.FailureThreshold = uint(getEnvInt("RETRIEVAL_FAILURE_THRESHOLD", 5))
	cfg.Retrieval.RetryTimeout = getEnvDuration("RETRIEVAL_RETRY_TIMEOUT", 30*time.Second)

	// Chat config
	cfg.Chat.HistoryWindow = getEnvInt("CHAT_HISTORY_WINDOW", 10)
	cfg.Chat.MaxContextTokens = getEnvInt("CHAT_MAX_CONTEXT_TOKENS", 0)
	cfg.Chat.MaxHistoryTokens = getEnvInt("CHAT_MAX_HISTORY_TOKENS", 0)
	cfg.Chat.MaxMessageLength = getEnvInt("CHAT_MAX_MESSAGE_LENGTH", 4000)
	cfg.Chat.PublicHistoryWindow = getEnvInt("CHAT_PUBLIC_HISTORY_WINDOW", 10)

	// Rate limit config
	cfg.RateLimit.Backend = getEnvString("RATE_LIMIT_BACKEND", "memory")
	cfg.RateLimit.Window = getEnvDuration("RATE_LIMIT_WINDOW", 2*time.Second)
	cfg.RateLimit.MaxRequests = getEnvInt("RATE_LIMIT_MAX_REQUESTS", 1)
	cfg.RateLimit.SweepInterval = getEnvDuration("RATE_LIMIT_SWEEP_INTERVAL", time.Minute)

	// Vault config
	cfg.Vault.Enabled = getEnvBool("VAULT_ENABLED", false)
	cfg.Vault.Address = getEnvString("VAULT_ADDR", "")
	cfg.Vault.Token = getEnvString("VAULT_TOKEN", "")
	cfg.Vault.Namespace = getEnvString("VAULT_NAMESPACE", "")
	cfg.Vault.SecretsPath = getEnvString("VAULT_SECRETS_PATH", "supportbot")

	// Weaviate config
	cfg.Weaviate.URL = getEnvString("WEAVIATE_URL", "")
	cfg.Weaviate.APIKey = getEnvString("WEAVIATE_API_KEY", "")
	cfg.Weaviate.ClassName = getEnvString("WEAVIATE_CLASS", "KnowledgeChunk")

	// Telemetry config
	cfg.Telemetry.ServiceName = getEnvString("OTEL_SERVICE_NAME", "supportbot")
	cfg.Telemetry.TraceExporter = getEnvString("OTEL_TRACES_EXPORTER", "none")

	// Logging config
	cfg.Logging.Level = getEnvString("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "json")
	cfg.Logging.File = getEnvString("LOG_FILE", "")

	// Cache settings
	cfg.Cache.Enabled = getEnvBool("CACHE_ENABLED", true)
	cfg.Cache.TTL = getEnvDuration("CACHE_TTL", time.Minute)
	cfg.Cache.MaxSize = getEnvInt("CACHE_MAX_SIZE", 1000)
	cfg.Cache.PurgeWindow = getEnvDuration("CACHE_PURGE_WINDOW", 5*time.Minute)

	return cfg
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
