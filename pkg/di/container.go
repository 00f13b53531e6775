package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"supportbot/backend/internal/knowledge"
	"supportbot/backend/internal/llm"
	"supportbot/backend/internal/models"
	"supportbot/backend/internal/repository"
	"supportbot/backend/internal/service"
	"supportbot/backend/internal/ws"
	"supportbot/backend/pkg/cache"
	"supportbot/backend/pkg/config"
	"supportbot/backend/pkg/health"
	"supportbot/backend/pkg/jwt"
	"supportbot/backend/pkg/logger"
	"supportbot/backend/pkg/middleware"
	"supportbot/backend/pkg/observability"
	"supportbot/backend/pkg/ratelimit"
	"supportbot/backend/pkg/resilience"
	"supportbot/backend/pkg/secrets"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// Container holds all the dependencies for the application
type Container struct {
	Config         *config.Config
	DB             *gorm.DB
	Logger         *logger.Logger
	Redis          *redis.Client
	JWTService     *jwt.Service
	Secrets        *secrets.VaultManager
	Metrics        *observability.PipelineMetrics
	MetricsHandler http.Handler
	Health         *health.Checker
	VectorIndex    knowledge.Index
	ChatService    *service.ChatService
	HomebotService *service.HomebotService
	ClientLimiter  ratelimit.Limiter
	TenantLimiter  *middleware.RateLimiter
	Hub            *ws.Hub

	closers []func(context.Context) error
}

// Options overrides collaborators, mostly for tests
type Options struct {
	// Completer replaces the OpenAI client for completions
	Completer llm.Completer
	// Embedder replaces the OpenAI client for embeddings
	Embedder llm.Embedder
	// Index replaces the configured vector index
	Index knowledge.Index
}

// New wires the application from cfg. db must already be connected.
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, log *logger.Logger, opts Options) (*Container, error) {
	c := &Container{Config: cfg, DB: db, Logger: log}

	vault, err := secrets.NewVaultManager(secrets.VaultConfigFrom(cfg), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create secrets manager: %w", err)
	}
	c.Secrets = vault
	c.onClose(func(context.Context) error { vault.Stop(); return nil })

	secrets.Resolve(ctx, vault, secrets.KeyOpenAIAPIKey, &cfg.LLM.APIKey)
	if cfg.Vault.Enabled {
		cfg.Security.JWTSecret = vault.GetSecretWithDefault(ctx, secrets.KeyJWTSecret, cfg.Security.JWTSecret)
	}
	c.JWTService = jwt.NewService(cfg.Security.JWTSecret, cfg.Security.JWTExpiry)

	traceShutdown, err := observability.SetupTracing(cfg.Telemetry.ServiceName, cfg.Telemetry.TraceExporter)
	if err != nil {
		return nil, err
	}
	c.onClose(traceShutdown)

	meterProvider, metricsHandler, err := observability.SetupPrometheusMetrics(cfg.Telemetry.ServiceName)
	if err != nil {
		return nil, err
	}
	c.onClose(meterProvider.Shutdown)
	c.MetricsHandler = metricsHandler
	if c.Metrics, err = observability.NewPipelineMetrics(meterProvider); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}

	completer, embedder := opts.Completer, opts.Embedder
	if completer == nil || embedder == nil {
		client, err := llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:         cfg.LLM.APIKey,
			BaseURL:        cfg.LLM.BaseURL,
			EmbeddingModel: cfg.LLM.EmbeddingModel,
		}, log)
		if err != nil {
			return nil, err
		}
		if completer == nil {
			completer = client
		}
		if embedder == nil {
			embedder = client
		}
	}

	c.VectorIndex = opts.Index
	if c.VectorIndex == nil {
		if c.VectorIndex, err = newIndex(cfg, db); err != nil {
			return nil, err
		}
	}

	c.Health = health.NewChecker(log, 30*time.Second)
	c.Health.RegisterDatabaseCheck(health.PingFunc(func(ctx context.Context) error {
		return config.PingDB(ctx, db)
	}))
	c.Health.RegisterVectorIndexCheck(c.VectorIndex.Name(), c.VectorIndex)

	if err := c.setupLimiters(cfg, log); err != nil {
		return nil, err
	}

	c.ChatService = newChatService(cfg, db, completer, embedder, c.VectorIndex, c.Metrics, log, c.onClose)
	c.HomebotService = service.NewHomebotService(
		service.NewPromptComposer(service.Budget{MaxHistoryTokens: cfg.Chat.MaxHistoryTokens}),
		completer,
		service.HomebotOptions{
			Params: llm.Params{
				Model:       cfg.LLM.PublicModel,
				Temperature: cfg.LLM.DefaultTemperature,
				MaxTokens:   cfg.LLM.DefaultMaxTokens,
			},
			Timeout:       cfg.LLM.PublicTimeout,
			HistoryWindow: cfg.Chat.PublicHistoryWindow,
		},
		c.Metrics,
		log,
	)

	c.Hub = ws.NewHub(c.ChatService, c.TenantLimiter, cfg.Security.AllowedOrigins, log)
	c.onClose(func(context.Context) error { c.Hub.Close(); return nil })

	return c, nil
}

func newIndex(cfg *config.Config, db *gorm.DB) (knowledge.Index, error) {
	switch cfg.Retrieval.Backend {
	case "", "pgvector":
		return knowledge.NewPgVectorIndex(db), nil
	case "weaviate":
		return knowledge.NewWeaviateIndex(knowledge.WeaviateConfig{
			URL:       cfg.Weaviate.URL,
			APIKey:    cfg.Weaviate.APIKey,
			ClassName: cfg.Weaviate.ClassName,
		})
	default:
		return nil, fmt.Errorf("unknown retrieval backend %q", cfg.Retrieval.Backend)
	}
}

func (c *Container) setupLimiters(cfg *config.Config, log *logger.Logger) error {
	limitOpts := ratelimit.Options{
		Window:        cfg.RateLimit.Window,
		MaxRequests:   cfg.RateLimit.MaxRequests,
		SweepInterval: cfg.RateLimit.SweepInterval,
	}
	switch cfg.RateLimit.Backend {
	case "", "memory":
		limiter := ratelimit.NewMemoryLimiter(limitOpts)
		c.onClose(func(context.Context) error { limiter.Stop(); return nil })
		c.ClientLimiter = limiter
	case "redis":
		c.Redis = config.NewRedisClient(cfg)
		c.onClose(func(context.Context) error { return c.Redis.Close() })
		c.Health.RegisterRedisCheck(health.PingFunc(func(ctx context.Context) error {
			return c.Redis.Ping(ctx).Err()
		}))
		c.ClientLimiter = ratelimit.NewRedisLimiter(c.Redis, limitOpts)
	default:
		return fmt.Errorf("unknown rate limit backend %q", cfg.RateLimit.Backend)
	}

	tenantOpts := middleware.DefaultRateLimiterOptions()
	tenantOpts.Limit = rate.Limit(cfg.Security.TenantRateLimit)
	tenantOpts.Burst = cfg.Security.TenantBurst
	c.TenantLimiter = middleware.NewRateLimiter(log, tenantOpts)
	c.onClose(func(context.Context) error { c.TenantLimiter.Stop(); return nil })
	return nil
}

func newChatService(
	cfg *config.Config,
	db *gorm.DB,
	completer llm.Completer,
	embedder llm.Embedder,
	index knowledge.Index,
	metrics *observability.PipelineMetrics,
	log *logger.Logger,
	onClose func(func(context.Context) error),
) *service.ChatService {
	sessions := repository.NewGormSessionRepository(db)
	messages := repository.NewGormMessageRepository(db)

	var botCache *cache.Cache[models.Bot]
	if cfg.Cache.Enabled {
		botCache = cache.New[models.Bot](cache.Options{
			DefaultExpiration: cfg.Cache.TTL,
			CleanupInterval:   cfg.Cache.PurgeWindow,
			MaxItems:          cfg.Cache.MaxSize,
		})
		onClose(func(context.Context) error { botCache.Stop(); return nil })
	}

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "retrieval",
		FailureThreshold: cfg.Retrieval.FailureThreshold,
		SuccessThreshold: 1,
		RetryTimeout:     cfg.Retrieval.RetryTimeout,
	}, log)

	retriever := knowledge.NewRetriever(embedder, index, knowledge.Options{
		SimilarityFloor: cfg.Retrieval.SimilarityFloor,
		TopK:            cfg.Retrieval.TopK,
	}, breaker, log)

	return service.NewChatService(service.ChatDeps{
		Bots:      service.NewBotProvider(repository.NewGormBotRepository(db), botCache),
		Sessions:  service.NewSessionResolver(sessions),
		History:   service.NewHistoryLoader(messages, cfg.Chat.HistoryWindow),
		Retriever: retriever,
		Composer: service.NewPromptComposer(service.Budget{
			MaxContextTokens: cfg.Chat.MaxContextTokens,
			MaxHistoryTokens: cfg.Chat.MaxHistoryTokens,
		}),
		Completer: completer,
		Writer:    service.NewPersistenceWriter(sessions, messages, log),
		Metrics:   metrics,
		Logger:    log,
	}, service.ChatOptions{
		Defaults: llm.Params{
			Model:       cfg.LLM.DefaultModel,
			Temperature: cfg.LLM.DefaultTemperature,
			MaxTokens:   cfg.LLM.DefaultMaxTokens,
		},
		MaxMessageLength: cfg.Chat.MaxMessageLength,
	})
}

func (c *Container) onClose(fn func(context.Context) error) {
	c.closers = append(c.closers, fn)
}

// Close releases background workers and connections in reverse order
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
