package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	stdsync "sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guilherme11gr/tasksync/internal/domain"
	"github.com/Guilherme11gr/tasksync/internal/sync"
)

type fakeManager struct {
	mu        stdsync.Mutex
	status    domain.ConnectionStatus
	broadcast []domain.BroadcastEvent
}

func (m *fakeManager) Status() domain.ConnectionStatus { return m.status }

func (m *fakeManager) Broadcast(event domain.BroadcastEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcast = append(m.broadcast, event)
}

type fakeProcessor struct{ stats sync.Stats }

func (p *fakeProcessor) Stats() sync.Stats { return p.stats }

func newTestServer(manager *fakeManager, processor *fakeProcessor) *Server {
	// the redis client is only dialed by the health and admin endpoints
	rdb := goredis.NewClient(&goredis.Options{Addr: "localhost:1"})
	return NewServer(manager, processor, rdb, "o1")
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestHandleSyncStatus(t *testing.T) {
	manager := &fakeManager{status: domain.StatusConnected}
	processor := &fakeProcessor{stats: sync.Stats{
		LedgerSize:  7,
		QueueDepth:  2,
		LastBatchAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}}
	srv := newTestServer(manager, processor)

	rec := doRequest(srv, http.MethodGet, "/api/sync/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "connected", body["connectionStatus"])
	assert.Equal(t, "o1", body["orgId"])
	assert.Equal(t, float64(7), body["ledgerSize"])
	assert.Equal(t, float64(2), body["queueDepth"])
}

func TestHandlePublishEvent_FillsDefaultsAndBroadcasts(t *testing.T) {
	manager := &fakeManager{status: domain.StatusConnected}
	srv := newTestServer(manager, &fakeProcessor{})

	rec := doRequest(srv, http.MethodPost, "/api/events",
		`{"entityType":"task","entityId":"t1","eventType":"updated","projectId":"p1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["eventId"])

	require.Len(t, manager.broadcast, 1)
	evt := manager.broadcast[0]
	assert.Equal(t, body["eventId"], evt.EventID)
	assert.Equal(t, "o1", evt.OrgID)
	assert.Equal(t, domain.EntityTask, evt.EntityType)
	assert.False(t, evt.Timestamp.IsZero())
}

func TestHandlePublishEvent_RejectsInvalid(t *testing.T) {
	manager := &fakeManager{}
	srv := newTestServer(manager, &fakeProcessor{})

	rec := doRequest(srv, http.MethodPost, "/api/events",
		`{"entityType":"spaceship","entityId":"t1","eventType":"updated"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, manager.broadcast)

	rec = doRequest(srv, http.MethodPost, "/api/events", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMetricsExposed(t *testing.T) {
	srv := newTestServer(&fakeManager{}, &fakeProcessor{})

	rec := doRequest(srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sync_reconnect_attempts_total")
}

func TestHandleForceReconnect_ReportsBrokerFailure(t *testing.T) {
	srv := newTestServer(&fakeManager{}, &fakeProcessor{})

	// the test redis client points at a closed port
	rec := doRequest(srv, http.MethodPost, "/api/admin/reconnect", `{"reason":"deploy"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
