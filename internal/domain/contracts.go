package domain

import (
	"context"
	"encoding/json"
)

// Entity is the envelope fetchers return and cached collections hold: the
// identity plus the raw server representation. The sync engine never
// interprets Data, it only splices whole envelopes in and out of cached
// collections.
type Entity struct {
	ID   string          `json:"id"`
	Type EntityType      `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Cache is the keyed store the surrounding application supplies. Values are
// either an Entity (detail keys) or []Entity (list keys). Implementations
// must be safe for concurrent use; an asynchronous adapter must provide its
// own per-key mutual exclusion, the engine serializes its writes on a single
// goroutine and relies on the write primitive being synchronous.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Invalidate(key string)
	InvalidatePrefix(prefix string)
	QueryByPrefix(prefix string) map[string]any
}

// Fetcher retrieves a fresh entity representation by id, used for selective
// patching. The caller bounds the call with a context deadline.
type Fetcher interface {
	FetchByID(ctx context.Context, entityType EntityType, id string) (Entity, error)
}

// MutationTracker answers whether an entity is currently being mutated
// locally, so a remote echo does not clobber an in-flight optimistic write.
type MutationTracker interface {
	IsMutating(entityID string) bool
}

// TabStore owns the identifier that attributes event origin to one tab or
// session. The id survives reloads of the same session and differs across
// sessions.
type TabStore interface {
	TabID() string
}

// MessageHandler receives raw payloads from a subscription. OnClose fires
// once when the underlying channel ends, with the terminating error if any.
type MessageHandler struct {
	OnMessage func(payload []byte)
	OnClose   func(err error)
}

// Subscription is an active topic subscription.
type Subscription interface {
	Close() error
}

// Transport abstracts the pub/sub fabric: a tenant-scoped event topic, the
// global admin topic, and heartbeat presence. Subscribe blocks until the
// server acknowledges the subscription.
type Transport interface {
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)
	Publish(ctx context.Context, topic string, payload []byte) error
	TrackPresence(ctx context.Context, topic string, p Presence) error
}

// EventTopic is the tenant-scoped topic carrying broadcast events.
func EventTopic(orgID string) string {
	return "org:" + orgID + ":events"
}

// AdminTopic carries admin commands for every connected client, independent
// of tenant.
const AdminTopic = "admin:commands"
