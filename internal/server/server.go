package server

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Guilherme11gr/tasksync/internal/domain"
	"github.com/Guilherme11gr/tasksync/internal/sync"
)

// connectionManager is the slice of sync.Manager the handlers need.
type connectionManager interface {
	Status() domain.ConnectionStatus
	Broadcast(event domain.BroadcastEvent)
}

// eventProcessor is the slice of sync.Processor the handlers need.
type eventProcessor interface {
	Stats() sync.Stats
}

// Server exposes the sync engine's operational surface: health, status,
// metrics, a thin event-publish endpoint for the mutation path, and the
// admin force-reconnect trigger.
type Server struct {
	echo      *echo.Echo
	manager   connectionManager
	processor eventProcessor
	rdb       *goredis.Client
	orgID     string
}

// NewServer builds the echo application.
func NewServer(manager connectionManager, processor eventProcessor, rdb *goredis.Client, orgID string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())

	srv := &Server{
		echo:      e,
		manager:   manager,
		processor: processor,
		rdb:       rdb,
		orgID:     orgID,
	}
	srv.registerRoutes()
	return srv
}

// Start listens on the given address, blocking until shutdown.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
