// Package redis adapts Redis to the sync engine's transport and cache
// contracts: pub/sub channels for broadcast events and admin commands,
// SET-with-TTL presence keys for heartbeats, and a JSON-envelope keyed
// cache with SCAN-based prefix operations.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Guilherme11gr/tasksync/internal/domain"
)

// A client that stops beating disappears after three missed 30s intervals.
const presenceTTL = 90 * time.Second

// Transport implements domain.Transport over Redis pub/sub.
type Transport struct {
	rdb *goredis.Client
}

// NewTransport wraps an existing Redis client.
func NewTransport(rdb *goredis.Client) *Transport {
	return &Transport{rdb: rdb}
}

// NewClient creates a Redis client from a URL.
func NewClient(redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return goredis.NewClient(opts), nil
}

// Subscribe subscribes to a topic and blocks until the server acknowledges
// the subscription. Messages are delivered on a dedicated goroutine;
// handler.OnClose fires once when the channel ends.
func (t *Transport) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	pubsub := t.rdb.Subscribe(ctx, topic)

	// Receive waits for the subscribe confirmation; without it a publish
	// racing the subscription would be silently lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	go func() {
		for msg := range pubsub.Channel() {
			if handler.OnMessage != nil {
				handler.OnMessage([]byte(msg.Payload))
			}
		}
		if handler.OnClose != nil {
			handler.OnClose(nil)
		}
	}()

	return &subscription{pubsub: pubsub}, nil
}

// Publish sends a payload to every subscriber of the topic.
func (t *Transport) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := t.rdb.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// TrackPresence writes the heartbeat presence record under a TTL key, so
// presence expires on its own when heartbeats stop.
func (t *Transport) TrackPresence(ctx context.Context, topic string, p domain.Presence) error {
	encoded, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	key := presenceKey(topic, p.UserID, p.TabID)
	if err := t.rdb.Set(ctx, key, encoded, presenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to track presence: %w", err)
	}
	return nil
}

func presenceKey(topic, userID, tabID string) string {
	return "presence:" + topic + ":" + userID + ":" + tabID
}

type subscription struct {
	pubsub *goredis.PubSub
}

func (s *subscription) Close() error {
	if err := s.pubsub.Close(); err != nil {
		slog.Warn("Failed to close pubsub subscription", "error", err)
		return err
	}
	return nil
}
