package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	adapterredis "github.com/Guilherme11gr/tasksync/internal/adapter/redis"
	"github.com/Guilherme11gr/tasksync/internal/domain"
	"github.com/Guilherme11gr/tasksync/internal/version"
)

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.rdb.Ping(c.Request().Context()).Err(); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Get(),
	})
}

func (s *Server) handleSyncStatus(c echo.Context) error {
	stats := s.processor.Stats()
	return c.JSON(http.StatusOK, map[string]any{
		"connectionStatus": s.manager.Status(),
		"orgId":            s.orgID,
		"ledgerSize":       stats.LedgerSize,
		"queueDepth":       stats.QueueDepth,
		"lastBatchAt":      stats.LastBatchAt,
	})
}

// handlePublishEvent is the thin mutation-path collaborator: it validates a
// broadcast event and hands it to the connection manager, which stamps
// sequence and tab id before publishing.
func (s *Server) handlePublishEvent(c echo.Context) error {
	var event domain.BroadcastEvent
	if err := c.Bind(&event); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid event payload"})
	}

	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OrgID == "" {
		event.OrgID = s.orgID
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if err := event.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	s.manager.Broadcast(event)
	return c.JSON(http.StatusAccepted, map[string]string{"eventId": event.EventID})
}

type reconnectRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleForceReconnect(c echo.Context) error {
	var req reconnectRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}

	if err := adapterredis.PublishForceReconnect(c.Request().Context(), s.rdb, req.Reason); err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "sent"})
}
