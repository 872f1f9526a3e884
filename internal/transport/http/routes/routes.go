package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nnh2x/hemidi-authen/internal/infra/config"
	"github.com/nnh2x/hemidi-authen/internal/infra/security"
	"github.com/nnh2x/hemidi-authen/internal/transport/http/handlers"
	"github.com/nnh2x/hemidi-authen/internal/transport/http/middleware"
)

// AuthService is everything the HTTP layer needs from the credential service.
type AuthService interface {
	handlers.AuthService
	handlers.ProfileService
	middleware.TokenValidator
}

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth   AuthService
	Quotas handlers.QuotaAdmin
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	HTTPMetrics *middleware.HTTPMetrics
	Gatherer    prometheus.Gatherer
	Services    ServiceSet
	Keys        security.KeyProvider
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.Handler())
	}
	r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))
	if deps.Config.App.RequestTimeout > 0 {
		r.Use(middleware.Timeout(deps.Config.App.RequestTimeout))
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", metricsHandler(deps.Gatherer))

	if deps.Keys != nil {
		r.GET("/.well-known/jwks.json", handlers.NewJWKSHandler(deps.Keys).Keys)
	}

	if deps.Services.Auth != nil {
		registerAuthRoutes(r.Group("/api/auth"), deps)
	}

	if !handlers.RegisterSwagger(r) && deps.Logger != nil {
		deps.Logger.Debug("swagger docs not generated, /docs not mounted")
	}

	return r
}

// registerAuthRoutes mounts the /api/auth surface. On protected routes RequireAuth
// runs before the limiter so that callers are metered by their own role.
func registerAuthRoutes(group *gin.RouterGroup, deps Dependencies) {
	limit := rateLimit(deps.RateLimiter)
	requireAuth := middleware.RequireAuth(deps.Services.Auth)

	authHandler := handlers.NewAuthHandler(deps.Services.Auth)
	profileHandler := handlers.NewProfileHandler(deps.Services.Auth)

	group.POST("/register", limit, authHandler.Register)
	group.POST("/login", limit, authHandler.Login)
	group.POST("/refresh", limit, authHandler.Refresh)
	group.POST("/validate", authHandler.Validate)

	protected := group.Group("", requireAuth)
	protected.GET("/profile", limit, profileHandler.Get)
	protected.POST("/logout", limit, authHandler.Logout)
	protected.PUT("/profile/:id", limit, profileHandler.Update)

	if deps.Services.Quotas != nil {
		rateLimitHandler := handlers.NewRateLimitHandler(deps.Services.Quotas)
		admin := group.Group("/rate-limit", requireAuth, middleware.RequireAdmin())
		admin.GET("/stats", rateLimitHandler.Stats)
		admin.DELETE("", rateLimitHandler.Sweep)
	}
}

func rateLimit(rl *middleware.RateLimiter) gin.HandlerFunc {
	if rl == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return rl.Handler()
}

func metricsHandler(gatherer prometheus.Gatherer) gin.HandlerFunc {
	if gatherer == nil {
		return gin.WrapH(promhttp.Handler())
	}
	return gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
