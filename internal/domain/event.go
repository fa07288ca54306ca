package domain

import (
	"fmt"
	"time"
)

// EntityType identifies which kind of dashboard entity an event refers to.
type EntityType string

const (
	EntityTask    EntityType = "task"
	EntityFeature EntityType = "feature"
	EntityEpic    EntityType = "epic"
	EntityComment EntityType = "comment"
	EntityDoc     EntityType = "doc"
	EntityProject EntityType = "project"
)

// Valid reports whether the entity type is one of the known kinds.
func (t EntityType) Valid() bool {
	switch t {
	case EntityTask, EntityFeature, EntityEpic, EntityComment, EntityDoc, EntityProject:
		return true
	}
	return false
}

// EventType describes what happened to the entity.
type EventType string

const (
	EventCreated       EventType = "created"
	EventUpdated       EventType = "updated"
	EventDeleted       EventType = "deleted"
	EventStatusChanged EventType = "status_changed"
	EventCommented     EventType = "commented"
)

// Valid reports whether the event type is one of the known kinds.
func (t EventType) Valid() bool {
	switch t {
	case EventCreated, EventUpdated, EventDeleted, EventStatusChanged, EventCommented:
		return true
	}
	return false
}

// BroadcastEvent is the wire payload published on a tenant topic whenever a
// server-side mutation happens. It is a small change notification, not a
// carrier of the new entity state.
//
// EventID is globally unique and is the sole dedup key. Sequence is stamped
// by the publishing connection from its wall clock (milliseconds) and is only
// monotonic absent clock skew; it is used for per-entity gap detection, never
// for global ordering. TabID attributes the originating tab but does not
// suppress self-originated events: same-origin multi-tab sync depends on
// receiving them.
type BroadcastEvent struct {
	EventID    string         `json:"eventId"`
	Sequence   int64          `json:"sequence"`
	TabID      string         `json:"tabId"`
	OrgID      string         `json:"orgId"`
	EntityType EntityType     `json:"entityType"`
	EntityID   string         `json:"entityId"`
	ProjectID  string         `json:"projectId"`
	FeatureID  string         `json:"featureId,omitempty"`
	EpicID     string         `json:"epicId,omitempty"`
	EventType  EventType      `json:"eventType"`
	ActorType  string         `json:"actorType"`
	ActorID    string         `json:"actorId"`
	ActorName  string         `json:"actorName"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Validate checks the fields a consumer depends on. Malformed events are
// dropped per message, they never affect the rest of the queue.
func (e *BroadcastEvent) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("broadcast event missing eventId")
	}
	if e.OrgID == "" {
		return fmt.Errorf("broadcast event %s missing orgId", e.EventID)
	}
	if !e.EntityType.Valid() {
		return fmt.Errorf("broadcast event %s has unknown entityType %q", e.EventID, e.EntityType)
	}
	if e.EntityID == "" {
		return fmt.Errorf("broadcast event %s missing entityId", e.EventID)
	}
	if !e.EventType.Valid() {
		return fmt.Errorf("broadcast event %s has unknown eventType %q", e.EventID, e.EventType)
	}
	return nil
}

// EntityKey returns the entityType:entityId pair used for per-entity
// sequence tracking and fetch fencing.
func (e *BroadcastEvent) EntityKey() string {
	return string(e.EntityType) + ":" + e.EntityID
}

// ConnectionStatus is the lifecycle state of a tenant channel.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	// StatusFailed is terminal: reached after the reconnect budget is
	// exhausted, cleared only by an explicit Connect call.
	StatusFailed ConnectionStatus = "failed"
)

// AdminCommand is the payload carried on the tenant-independent admin topic.
type AdminCommand struct {
	Command   string `json:"command"`
	Timestamp string `json:"timestamp"`
	Reason    string `json:"reason"`
}

// ForceReconnectCommand is the only admin command the connection manager
// recognizes.
const ForceReconnectCommand = "force_reconnect"

// Presence is the heartbeat payload written by a connected client.
type Presence struct {
	Online bool      `json:"online"`
	UserID string    `json:"userId"`
	TabID  string    `json:"tabId"`
	At     time.Time `json:"at"`
}
