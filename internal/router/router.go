// Package router registers every HTTP route on an Echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/entrance-ticketing/internal/config"
	"github.com/iliyamo/entrance-ticketing/internal/handler"
	"github.com/iliyamo/entrance-ticketing/internal/middleware"
)

// Handlers bundles the handler sets the router mounts.  Ready may be nil.
type Handlers struct {
	Payments     *handler.PaymentHandler
	Orders       *handler.OrderHandler
	Capacity     *handler.CapacityHandler
	Reservations *handler.ReservationHandler
	Intents      *handler.IntentHandler
	Ready        echo.HandlerFunc
}

// Options carries what the route middleware needs.  A nil Redis client
// disables rate limiting and caching.
type Options struct {
	JWTSecret string
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
}

// RegisterRoutes mounts the health checks and the /v1 API.
func RegisterRoutes(e *echo.Echo, h Handlers, opt Options) {
	e.GET("/healthz", handler.Health)
	if h.Ready != nil {
		e.GET("/readyz", h.Ready)
	}

	limited := middleware.NewTokenBucket(opt.RateLimit, opt.Redis)
	cached := middleware.NewRedisCache(opt.Cache, opt.Redis)

	// Gateway callbacks authenticate by signature, not by bearer token.
	e.POST("/v1/payments/notification", h.Payments.Notification, limited)
	e.GET("/v1/capacity/:resource_id", h.Capacity.Get, cached)

	auth := e.Group("/v1", middleware.JWTAuth(opt.JWTSecret))
	auth.GET("/session", handler.Session)
	auth.GET("/orders/:id", h.Orders.Get)
	auth.POST("/orders/:id/sync", h.Orders.Sync, limited)
	auth.POST("/reservations", h.Reservations.Create)
	auth.DELETE("/reservations/:id", h.Reservations.Cancel)
	auth.POST("/booking-intent", h.Intents.Preserve)
	auth.GET("/booking-intent", h.Intents.Restore)
	auth.DELETE("/booking-intent", h.Intents.Clear)

	admin := auth.Group("/admin", middleware.RequireRole(handler.RoleAdmin))
	admin.POST("/capacity/generate", h.Capacity.Generate)
}
