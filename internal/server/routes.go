package server

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// publishRateLimit bounds the mutation path: a client stuck in a publish
// loop saturates its own budget instead of the broker.
const publishRateLimit = rate.Limit(100)

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.GET("/api/sync/status", s.handleSyncStatus)

	limiter := middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(publishRateLimit))
	s.echo.POST("/api/events", s.handlePublishEvent, limiter)
	s.echo.POST("/api/admin/reconnect", s.handleForceReconnect)
}
