package router

import (
	"net/http"
	"strings"

	"supportbot/backend/internal/api"
	"supportbot/backend/pkg/config"
	"supportbot/backend/pkg/di"
	"supportbot/backend/pkg/errors"
	"supportbot/backend/pkg/logger"
	"supportbot/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	cfg := container.Config

	// Configure Gin mode based on environment
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		container.Logger.Warn("Invalid trusted proxies, trusting none", "error", err.Error())
		_ = engine.SetTrustedProxies(nil)
	}

	// Use the logger middleware first to capture all requests
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(errors.ErrorHandler())
	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))
	engine.Use(bodyLimit(cfg.Security.MaxBodySize))

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Config:    cfg,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes(schemaPath string) error {
	validate, err := r.openAPIValidation(schemaPath)
	if err != nil {
		return err
	}

	r.setupHealthRoutes()
	r.Engine.GET("/metrics", gin.WrapH(r.Container.MetricsHandler))

	jwtAuth := middleware.JWTAuth(r.Container.JWTService)

	v1 := r.Engine.Group("/api/v1")

	// Anonymous marketing widget: rate limited before anything else runs
	api.NewHomebotController(r.Container.HomebotService).RegisterRoutes(v1,
		middleware.ClientRateLimit(r.Container.ClientLimiter, r.Container.Metrics),
		validate,
	)

	// Tenant routes
	tenant := v1.Group("")
	tenant.Use(jwtAuth, r.Container.TenantLimiter.Middleware(), validate)
	api.NewChatController(r.Container.ChatService).RegisterRoutes(tenant)

	// Browsers cannot set headers on upgrade requests; JWTAuth also reads ?token=
	r.Engine.GET("/ws/chat", jwtAuth, r.Container.TenantLimiter.Middleware(), r.Container.Hub.ServeWs)

	return nil
}

// corsMiddleware allows the configured origins, including websocket upgrades
func corsMiddleware(allowed []string) gin.HandlerFunc {
	allowAll := len(allowed) == 0
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		set[strings.TrimSpace(o)] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		switch {
		case allowAll && origin == "":
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		default:
			if _, ok := set[origin]; ok {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				c.Writer.Header().Add("Vary", "Origin")
			}
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Authorization, Origin, X-Request-ID, Upgrade, Connection")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func bodyLimit(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if max > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		}
		c.Next()
	}
}
