// Package websocket adapts the sync engine's transport contract to a
// websocket bridge, for deployments where clients cannot reach Redis
// directly. The bridge speaks a small JSON frame protocol: subscribe /
// publish / presence upstream, ack / event downstream.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Guilherme11gr/tasksync/internal/domain"
)

const (
	writeTimeout = 5 * time.Second
	ackTimeout   = 10 * time.Second
)

// Frame is one bridge message in either direction.
type Frame struct {
	Type    string          `json:"type"` // subscribe|unsubscribe|publish|presence|ack|event|error
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Transport implements domain.Transport over one websocket connection to a
// bridge server. The connection is dialed lazily on first use; a read
// failure closes every active subscription, which the connection manager
// observes and drives reconnection from.
type Transport struct {
	url    string
	dialer *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string]domain.MessageHandler
	acks     map[string]chan error
	closed   bool
}

// NewTransport creates a bridge transport for the given websocket URL.
func NewTransport(url string) *Transport {
	return &Transport{
		url:      url,
		dialer:   websocket.DefaultDialer,
		handlers: make(map[string]domain.MessageHandler),
		acks:     make(map[string]chan error),
	}
}

// Subscribe registers a topic handler and blocks until the bridge
// acknowledges the subscription.
func (t *Transport) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	ackCh := make(chan error, 1)

	t.mu.Lock()
	if _, ok := t.handlers[topic]; ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("already subscribed to %s", topic)
	}
	if err := t.ensureConnLocked(ctx); err != nil {
		t.mu.Unlock()
		return nil, err
	}
	t.handlers[topic] = handler
	t.acks[topic] = ackCh
	err := t.writeLocked(Frame{Type: "subscribe", Topic: topic})
	t.mu.Unlock()

	if err != nil {
		t.dropTopic(topic)
		return nil, fmt.Errorf("failed to send subscribe for %s: %w", topic, err)
	}

	timer := time.NewTimer(ackTimeout)
	defer timer.Stop()
	select {
	case err := <-ackCh:
		if err != nil {
			t.dropTopic(topic)
			return nil, fmt.Errorf("bridge rejected subscription to %s: %w", topic, err)
		}
	case <-timer.C:
		t.dropTopic(topic)
		return nil, fmt.Errorf("timed out waiting for subscribe ack on %s", topic)
	case <-ctx.Done():
		t.dropTopic(topic)
		return nil, ctx.Err()
	}

	return &subscription{transport: t, topic: topic}, nil
}

// Publish sends a payload to a topic through the bridge.
func (t *Transport) Publish(ctx context.Context, topic string, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureConnLocked(ctx); err != nil {
		return err
	}
	return t.writeLocked(Frame{Type: "publish", Topic: topic, Payload: payload})
}

// TrackPresence forwards the heartbeat presence record to the bridge.
func (t *Transport) TrackPresence(ctx context.Context, topic string, p domain.Presence) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureConnLocked(ctx); err != nil {
		return err
	}
	return t.writeLocked(Frame{Type: "presence", Topic: topic, Payload: payload})
}

// Close tears down the bridge connection and every subscription, firing
// their OnClose without an error. The transport is unusable afterwards.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.mu.Unlock()

	// The read loop notices the closed connection and runs the regular
	// disconnect path, which fires OnClose for the active handlers.
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (t *Transport) ensureConnLocked(ctx context.Context) error {
	if t.closed {
		return fmt.Errorf("bridge transport is closed")
	}
	if t.conn != nil {
		return nil
	}
	conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial bridge %s: %w", t.url, err)
	}
	t.conn = conn
	go t.readLoop(conn)
	return nil
}

func (t *Transport) writeLocked(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.handleDisconnect(conn, err)
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("Dropping malformed bridge frame", "error", err)
			continue
		}

		switch frame.Type {
		case "ack":
			t.deliverAck(frame.Topic, nil)
		case "error":
			t.deliverAck(frame.Topic, fmt.Errorf("%s", frame.Error))
		case "event":
			t.mu.Lock()
			handler, ok := t.handlers[frame.Topic]
			t.mu.Unlock()
			if ok && handler.OnMessage != nil {
				handler.OnMessage(frame.Payload)
			}
		default:
			slog.Debug("Ignoring unknown bridge frame", "type", frame.Type)
		}
	}
}

func (t *Transport) deliverAck(topic string, err error) {
	t.mu.Lock()
	ackCh, ok := t.acks[topic]
	delete(t.acks, topic)
	t.mu.Unlock()
	if ok {
		ackCh <- err
	}
}

// handleDisconnect fires OnClose for every active handler exactly once per
// connection loss and resets state so the next call redials.
func (t *Transport) handleDisconnect(conn *websocket.Conn, err error) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	handlers := t.handlers
	t.handlers = make(map[string]domain.MessageHandler)
	acks := t.acks
	t.acks = make(map[string]chan error)
	closed := t.closed
	t.mu.Unlock()

	_ = conn.Close()

	if closed {
		err = nil
	}
	for topic, ackCh := range acks {
		ackCh <- fmt.Errorf("bridge connection lost before ack for %s", topic)
	}
	for _, handler := range handlers {
		if handler.OnClose != nil {
			handler.OnClose(err)
		}
	}
}

func (t *Transport) dropTopic(topic string) {
	t.mu.Lock()
	delete(t.handlers, topic)
	delete(t.acks, topic)
	t.mu.Unlock()
}

type subscription struct {
	transport *Transport
	topic     string
}

// Close unsubscribes the topic. The bridge connection itself stays up for
// the remaining subscriptions.
func (s *subscription) Close() error {
	t := s.transport
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handlers, s.topic)
	delete(t.acks, s.topic)
	if t.conn == nil {
		return nil
	}
	return t.writeLocked(Frame{Type: "unsubscribe", Topic: s.topic})
}
