package domain

// KeyScope distinguishes collection-level keys from single-entity keys.
type KeyScope string

const (
	ScopeList   KeyScope = "list"
	ScopeDetail KeyScope = "detail"
)

// CacheKey identifies one cached query result. Every key is namespaced by
// the tenant: a cross-tenant key collision is a correctness bug, not a
// performance one.
type CacheKey struct {
	Org        string
	Collection string
	Scope      KeyScope
	ID         string // set for detail keys, empty for list keys
}

// String renders the canonical cache key. List keys are also used as
// prefixes: filtered or paginated variants of a collection append their own
// suffix under the same list prefix.
func (k CacheKey) String() string {
	s := "org:" + k.Org + ":" + k.Collection + ":" + string(k.Scope)
	if k.ID != "" {
		s += ":" + k.ID
	}
	return s
}

// Collection maps an entity type to its cache collection name.
func (t EntityType) Collection() string {
	switch t {
	case EntityTask:
		return "tasks"
	case EntityFeature:
		return "features"
	case EntityEpic:
		return "epics"
	case EntityComment:
		return "comments"
	case EntityDoc:
		return "docs"
	case EntityProject:
		return "projects"
	}
	return string(t)
}

// ListKey returns the list-scope key for an entity type within a tenant.
func ListKey(orgID string, t EntityType) CacheKey {
	return CacheKey{Org: orgID, Collection: t.Collection(), Scope: ScopeList}
}

// DetailKey returns the detail-scope key for one entity within a tenant.
func DetailKey(orgID string, t EntityType, id string) CacheKey {
	return CacheKey{Org: orgID, Collection: t.Collection(), Scope: ScopeDetail, ID: id}
}

// ActivityKey returns the tenant's activity feed key, invalidated on any
// membership change.
func ActivityKey(orgID string) CacheKey {
	return CacheKey{Org: orgID, Collection: "activity", Scope: ScopeList}
}
