package sync

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Guilherme11gr/tasksync/internal/domain"
	"github.com/Guilherme11gr/tasksync/internal/metrics"
)

const publishTimeout = 5 * time.Second

// ManagerConfig carries the connection-lifecycle knobs.
type ManagerConfig struct {
	ConnectionTimeout    time.Duration
	HeartbeatInterval    time.Duration
	MaxReconnectAttempts int
	BackoffBase          time.Duration
	BackoffCap           time.Duration
	BackoffFactor        float64
	BackoffJitter        float64
}

// DefaultManagerConfig returns the production defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ConnectionTimeout:    10 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		MaxReconnectAttempts: 10,
		BackoffBase:          time.Second,
		BackoffCap:           30 * time.Second,
		BackoffFactor:        2,
		BackoffJitter:        0.2,
	}
}

// --- Commands ---

type managerCmd interface{ isManagerCmd() }

type baseManagerCmd struct{}

func (baseManagerCmd) isManagerCmd() {}

type connectCmd struct {
	baseManagerCmd
	orgID  string
	userID string
}

type disconnectCmd struct{ baseManagerCmd }

type broadcastCmd struct {
	baseManagerCmd
	event domain.BroadcastEvent
}

type subscribedCmd struct {
	baseManagerCmd
	epoch     uint64
	tenantSub domain.Subscription
	adminSub  domain.Subscription
	err       error
}

type channelClosedCmd struct {
	baseManagerCmd
	epoch uint64
	err   error
}

type connTimeoutCmd struct {
	baseManagerCmd
	epoch uint64
}

type reconnectCmd struct {
	baseManagerCmd
	epoch uint64
}

type statusQueryCmd struct {
	baseManagerCmd
	replyCh chan domain.ConnectionStatus
}

type stopManagerCmd struct{ baseManagerCmd }

// Manager owns the lifecycle of one tenant-scoped channel plus the global
// admin-command channel: connect/disconnect, reconnection with backoff and
// jitter, heartbeat presence, and forwarding received events downstream.
//
// All state lives on a single goroutine fed by a command channel; transport
// callbacks and timers post commands rather than touching state directly.
type Manager struct {
	cmdCh     chan managerCmd
	transport domain.Transport
	tabs      domain.TabStore
	clock     clockwork.Clock
	cfg       ManagerConfig
	backoff   *Backoff

	onEvent  func(domain.BroadcastEvent)
	onStatus func(domain.ConnectionStatus)

	// actor state
	status      domain.ConnectionStatus
	orgID       string
	userID      string
	intentional bool // disconnect() was called, auto-reconnect disabled
	attempts    int
	epoch       uint64 // bumped on teardown, fences stale async results
	tenantSub   domain.Subscription
	adminSub    domain.Subscription
	connTimer   clockwork.Timer
	retryTimer  clockwork.Timer
	heartbeat   clockwork.Ticker

	done chan struct{}
}

// NewManager creates a connection manager. onEvent receives every broadcast
// event from the tenant topic (including self-originated ones, multi-tab
// sync depends on them). onStatus observes lifecycle transitions; it may be
// nil.
func NewManager(transport domain.Transport, tabs domain.TabStore, clock clockwork.Clock, cfg ManagerConfig, onEvent func(domain.BroadcastEvent), onStatus func(domain.ConnectionStatus)) *Manager {
	m := &Manager{
		cmdCh:     make(chan managerCmd, 256),
		transport: transport,
		tabs:      tabs,
		clock:     clock,
		cfg:       cfg,
		backoff:   NewBackoff(cfg.BackoffBase, cfg.BackoffCap, cfg.BackoffFactor, cfg.BackoffJitter),
		onEvent:   onEvent,
		onStatus:  onStatus,
		status:    domain.StatusDisconnected,
		done:      make(chan struct{}),
	}
	go m.run()
	return m
}

// Connect establishes the tenant channel. Idempotent: a no-op while already
// connected or connecting to the same (orgID, userID). Connecting to a
// different org cancels any in-flight attempt first.
func (m *Manager) Connect(orgID, userID string) {
	m.cmdCh <- connectCmd{orgID: orgID, userID: userID}
}

// Disconnect tears the channel down intentionally and disables
// auto-reconnect until the next Connect call.
func (m *Manager) Disconnect() {
	m.cmdCh <- disconnectCmd{}
}

// Broadcast publishes an event on the tenant topic, stamping Sequence and
// TabID. Calling while not connected is a no-op with a warning.
func (m *Manager) Broadcast(event domain.BroadcastEvent) {
	m.cmdCh <- broadcastCmd{event: event}
}

// Status returns the current connection status.
func (m *Manager) Status() domain.ConnectionStatus {
	replyCh := make(chan domain.ConnectionStatus, 1)
	m.cmdCh <- statusQueryCmd{replyCh: replyCh}
	select {
	case s := <-replyCh:
		return s
	case <-m.done:
		return domain.StatusDisconnected
	}
}

// Stop shuts the manager down. The channel is torn down as by Disconnect.
func (m *Manager) Stop() {
	m.cmdCh <- stopManagerCmd{}
	<-m.done
}

func (m *Manager) run() {
	defer close(m.done)

	for {
		var hbCh <-chan time.Time
		if m.heartbeat != nil {
			hbCh = m.heartbeat.Chan()
		}

		select {
		case cmd := <-m.cmdCh:
			switch c := cmd.(type) {
			case connectCmd:
				m.handleConnect(c)
			case disconnectCmd:
				m.handleDisconnect()
			case broadcastCmd:
				m.handleBroadcast(c.event)
			case subscribedCmd:
				m.handleSubscribed(c)
			case channelClosedCmd:
				m.handleChannelClosed(c)
			case connTimeoutCmd:
				m.handleConnTimeout(c)
			case reconnectCmd:
				m.handleReconnect(c)
			case statusQueryCmd:
				c.replyCh <- m.status
			case stopManagerCmd:
				m.teardown()
				m.setStatus(domain.StatusDisconnected)
				return
			}
		case <-hbCh:
			m.sendHeartbeat()
		}
	}
}

func (m *Manager) handleConnect(c connectCmd) {
	if (m.status == domain.StatusConnected || m.status == domain.StatusConnecting) &&
		m.orgID == c.orgID && m.userID == c.userID {
		slog.Debug("Connect is a no-op, already on this tenant", "org_id", c.orgID, "status", string(m.status))
		return
	}

	// Switching tenants (or retrying after failed): cancel whatever is in
	// flight and start fresh.
	m.teardown()
	m.orgID = c.orgID
	m.userID = c.userID
	m.intentional = false
	m.attempts = 0
	m.beginAttempt()
}

// beginAttempt starts one subscribe attempt: status connecting, connection
// timeout armed, both topics subscribed off-loop.
func (m *Manager) beginAttempt() {
	m.setStatus(domain.StatusConnecting)

	epoch := m.epoch
	m.connTimer = m.clock.AfterFunc(m.cfg.ConnectionTimeout, func() {
		m.cmdCh <- connTimeoutCmd{epoch: epoch}
	})

	orgID := m.orgID
	go func() {
		tenantSub, adminSub, err := m.subscribeBoth(orgID, epoch)
		m.cmdCh <- subscribedCmd{epoch: epoch, tenantSub: tenantSub, adminSub: adminSub, err: err}
	}()
}

func (m *Manager) subscribeBoth(orgID string, epoch uint64) (domain.Subscription, domain.Subscription, error) {
	ctx := context.Background()

	tenantSub, err := m.transport.Subscribe(ctx, domain.EventTopic(orgID), domain.MessageHandler{
		OnMessage: m.handleTenantMessage,
		OnClose: func(err error) {
			m.cmdCh <- channelClosedCmd{epoch: epoch, err: err}
		},
	})
	if err != nil {
		return nil, nil, err
	}

	adminSub, err := m.transport.Subscribe(ctx, domain.AdminTopic, domain.MessageHandler{
		OnMessage: m.handleAdminMessage,
		OnClose:   func(error) {}, // admin channel loss is covered by the tenant channel
	})
	if err != nil {
		_ = tenantSub.Close()
		return nil, nil, err
	}

	return tenantSub, adminSub, nil
}

func (m *Manager) handleSubscribed(c subscribedCmd) {
	if c.epoch != m.epoch {
		// A stale attempt resolving after teardown: release its channels.
		if c.tenantSub != nil {
			_ = c.tenantSub.Close()
		}
		if c.adminSub != nil {
			_ = c.adminSub.Close()
		}
		return
	}

	if c.err != nil {
		slog.Warn("Channel subscription failed", "org_id", m.orgID, "error", c.err)
		// A partial attempt may have opened the tenant channel before the
		// admin subscribe failed; its close notification arrives later and
		// must not count as a second failure. Bump the epoch to fence it.
		m.teardown()
		m.scheduleReconnect()
		return
	}

	m.stopConnTimer()
	m.tenantSub = c.tenantSub
	m.adminSub = c.adminSub
	m.attempts = 0
	m.setStatus(domain.StatusConnected)

	m.heartbeat = m.clock.NewTicker(m.cfg.HeartbeatInterval)
	m.sendHeartbeat()

	slog.Info("Channel connected", "org_id", m.orgID, "user_id", m.userID)
}

func (m *Manager) handleChannelClosed(c channelClosedCmd) {
	if c.epoch != m.epoch {
		return
	}
	// No adopted subscription means the close belongs to an attempt that
	// never completed; handleSubscribed owns that attempt's failure
	// accounting.
	if m.tenantSub == nil {
		return
	}
	if c.err != nil {
		slog.Warn("Channel closed with error", "org_id", m.orgID, "error", c.err)
	} else {
		slog.Info("Channel closed", "org_id", m.orgID)
	}

	intentional := m.intentional
	m.teardown()
	m.setStatus(domain.StatusDisconnected)

	if !intentional {
		m.scheduleReconnect()
	}
}

func (m *Manager) handleConnTimeout(c connTimeoutCmd) {
	if c.epoch != m.epoch || m.status != domain.StatusConnecting {
		return
	}
	slog.Warn("Connection attempt timed out", "org_id", m.orgID, "timeout", m.cfg.ConnectionTimeout)

	// Fence the in-flight subscribe so a late ack is discarded.
	m.teardown()
	m.scheduleReconnect()
}

func (m *Manager) scheduleReconnect() {
	m.attempts++
	if m.attempts > m.cfg.MaxReconnectAttempts {
		slog.Error("Reconnection attempts exhausted", "org_id", m.orgID, "attempts", m.attempts)
		m.setStatus(domain.StatusFailed)
		return
	}

	delay := m.backoff.Delay(m.attempts)
	metrics.ReconnectAttemptsTotal.Inc()
	slog.Info("Scheduling reconnect", "org_id", m.orgID, "attempt", m.attempts, "delay", delay)

	m.setStatus(domain.StatusConnecting)
	epoch := m.epoch
	m.retryTimer = m.clock.AfterFunc(delay, func() {
		m.cmdCh <- reconnectCmd{epoch: epoch}
	})
}

func (m *Manager) handleReconnect(c reconnectCmd) {
	if c.epoch != m.epoch || m.intentional {
		return
	}
	m.beginAttempt()
}

func (m *Manager) handleDisconnect() {
	m.intentional = true
	m.teardown()
	m.setStatus(domain.StatusDisconnected)
	slog.Info("Channel disconnected intentionally", "org_id", m.orgID)
}

func (m *Manager) handleBroadcast(event domain.BroadcastEvent) {
	if m.status != domain.StatusConnected {
		slog.Warn("Broadcast while not connected, dropping", "status", string(m.status), "event_type", string(event.EventType))
		return
	}

	event.Sequence = m.clock.Now().UnixMilli()
	event.TabID = m.tabs.TabID()

	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal broadcast event", "error", err)
		return
	}

	topic := domain.EventTopic(m.orgID)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := m.transport.Publish(ctx, topic, payload); err != nil {
			slog.Warn("Failed to publish broadcast event", "topic", topic, "error", err)
			return
		}
		metrics.EventsPublishedTotal.Inc()
	}()
}

func (m *Manager) handleTenantMessage(payload []byte) {
	var event domain.BroadcastEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		slog.Warn("Dropping malformed broadcast event", "error", err)
		return
	}
	if err := event.Validate(); err != nil {
		slog.Warn("Dropping invalid broadcast event", "error", err)
		return
	}
	if m.onEvent != nil {
		m.onEvent(event)
	}
}

func (m *Manager) handleAdminMessage(payload []byte) {
	var cmd domain.AdminCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		slog.Warn("Dropping malformed admin command", "error", err)
		return
	}
	if cmd.Command != domain.ForceReconnectCommand {
		slog.Debug("Ignoring unknown admin command", "command", cmd.Command)
		return
	}

	// Force reconnect reuses the intentional disconnect path, which disables
	// auto-reconnect: something external has to call Connect again. Kept as
	// is until the owner confirms whether that is intended.
	slog.Warn("Admin force reconnect received", "reason", cmd.Reason)
	m.cmdCh <- disconnectCmd{}
}

func (m *Manager) sendHeartbeat() {
	if m.status != domain.StatusConnected {
		return
	}

	p := domain.Presence{
		Online: true,
		UserID: m.userID,
		TabID:  m.tabs.TabID(),
		At:     m.clock.Now(),
	}
	topic := domain.EventTopic(m.orgID)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := m.transport.TrackPresence(ctx, topic, p); err != nil {
			// Heartbeat failures never tear the connection down.
			metrics.HeartbeatFailuresTotal.Inc()
			slog.Warn("Heartbeat presence update failed", "error", err)
		}
	}()
}

// teardown cancels every timer, fences in-flight async work, and releases
// both subscriptions. Status is left to the caller.
func (m *Manager) teardown() {
	m.epoch++
	m.stopConnTimer()
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	if m.heartbeat != nil {
		m.heartbeat.Stop()
		m.heartbeat = nil
	}
	if m.tenantSub != nil {
		_ = m.tenantSub.Close()
		m.tenantSub = nil
	}
	if m.adminSub != nil {
		_ = m.adminSub.Close()
		m.adminSub = nil
	}
}

func (m *Manager) stopConnTimer() {
	if m.connTimer != nil {
		m.connTimer.Stop()
		m.connTimer = nil
	}
}

func (m *Manager) setStatus(s domain.ConnectionStatus) {
	if m.status == s {
		return
	}
	m.status = s
	metrics.SetConnectionStatus(string(s))
	if m.onStatus != nil {
		m.onStatus(s)
	}
}
