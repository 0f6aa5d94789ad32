// Package router registers the HTTP routes and their middleware.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/config"
	"github.com/iliyamo/storefront-api/internal/handler"
	"github.com/iliyamo/storefront-api/internal/metrics"
	"github.com/iliyamo/storefront-api/internal/middleware"
)

// Deps carries what the route groups need besides their handlers.
type Deps struct {
	Config  config.Config
	Redis   *redis.Client // nil disables rate limiting and caching
	Tokens  middleware.AccessTokenParser
	Metrics *metrics.Metrics
	DB      handler.Pinger
	Log     *zap.Logger
}

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.DB))
	e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
}

// RegisterAuth mounts /v1/auth. Credential endpoints get the stricter
// auth bucket of the rate limiter.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, d Deps) {
	g := e.Group("/v1/auth", middleware.NewTokenBucket(d.Config.RateLimit.ForAuth(), d.Redis, d.Log))
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh-token", a.RefreshToken)

	auth := g.Group("", middleware.JWTAuth(d.Tokens))
	auth.POST("/revoke-token", a.RevokeToken)
	auth.GET("/me", a.Me)
}
