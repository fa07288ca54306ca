package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Guilherme11gr/tasksync/internal/domain"
)

const (
	cacheKeyPrefix = "cache:"
	cacheTTL       = time.Hour
	opTimeout      = 2 * time.Second
	scanBatchSize  = 256
)

// envelope tags cached values so they round-trip through JSON with their
// shape intact: a single entity, a collection, or opaque application data.
type envelope struct {
	Kind string          `json:"kind"` // "entity", "list", or "raw"
	Data json.RawMessage `json:"data"`
}

// Cache implements domain.Cache on Redis. The sync engine treats cache
// operations as infallible; Redis failures are logged and degrade to cache
// misses, which at worst means one extra fetch.
//
// Redis writes are synchronous from the caller's point of view, so the
// engine's single-goroutine write discipline carries over without extra
// locking.
type Cache struct {
	rdb *goredis.Client
}

// NewCache wraps a Redis client as a domain.Cache.
func NewCache(rdb *goredis.Client) *Cache {
	return &Cache{rdb: rdb}
}

func (c *Cache) Get(key string) (any, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	data, err := c.rdb.Get(ctx, cacheKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			slog.Warn("Redis cache GET failed", "key", key, "error", err)
		}
		return nil, false
	}
	return decode(key, data)
}

func (c *Cache) Set(key string, value any) {
	data, err := encode(value)
	if err != nil {
		slog.Warn("Failed to encode cache value", "key", key, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := c.rdb.Set(ctx, cacheKeyPrefix+key, data, cacheTTL).Err(); err != nil {
		slog.Warn("Redis cache SET failed", "key", key, "error", err)
	}
}

func (c *Cache) Invalidate(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := c.rdb.Del(ctx, cacheKeyPrefix+key).Err(); err != nil {
		slog.Warn("Redis cache DEL failed", "key", key, "error", err)
	}
}

func (c *Cache) InvalidatePrefix(prefix string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	iter := c.rdb.Scan(ctx, 0, cacheKeyPrefix+prefix+"*", scanBatchSize).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		slog.Warn("Redis cache SCAN failed", "prefix", prefix, "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("Redis cache prefix DEL failed", "prefix", prefix, "error", err)
	}
}

func (c *Cache) QueryByPrefix(prefix string) map[string]any {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	result := make(map[string]any)
	iter := c.rdb.Scan(ctx, 0, cacheKeyPrefix+prefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		key := full[len(cacheKeyPrefix):]
		data, err := c.rdb.Get(ctx, full).Bytes()
		if err != nil {
			continue
		}
		if value, ok := decode(key, data); ok {
			result[key] = value
		}
	}
	if err := iter.Err(); err != nil {
		slog.Warn("Redis cache prefix query failed", "prefix", prefix, "error", err)
	}
	return result
}

func encode(value any) ([]byte, error) {
	var env envelope
	switch v := value.(type) {
	case domain.Entity:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		env = envelope{Kind: "entity", Data: data}
	case []domain.Entity:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		env = envelope{Kind: "list", Data: data}
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		env = envelope{Kind: "raw", Data: data}
	}
	return json.Marshal(env)
}

func decode(key string, data []byte) (any, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Warn("Failed to decode cache envelope", "key", key, "error", err)
		return nil, false
	}

	switch env.Kind {
	case "entity":
		var e domain.Entity
		if err := json.Unmarshal(env.Data, &e); err != nil {
			slog.Warn("Failed to decode cached entity", "key", key, "error", err)
			return nil, false
		}
		return e, true
	case "list":
		var list []domain.Entity
		if err := json.Unmarshal(env.Data, &list); err != nil {
			slog.Warn("Failed to decode cached list", "key", key, "error", err)
			return nil, false
		}
		return list, true
	default:
		return env.Data, true
	}
}

// PublishForceReconnect broadcasts the admin force-reconnect command to all
// connected clients. Note the receiving side treats it as an intentional
// disconnect: clients do not reconnect on their own afterwards.
func PublishForceReconnect(ctx context.Context, rdb *goredis.Client, reason string) error {
	cmd := domain.AdminCommand{
		Command:   domain.ForceReconnectCommand,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Reason:    reason,
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	if err := rdb.Publish(ctx, domain.AdminTopic, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish force reconnect: %w", err)
	}
	return nil
}
