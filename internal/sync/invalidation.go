package sync

import (
	"github.com/Guilherme11gr/tasksync/internal/domain"
)

// KeysFor maps one broadcast event to the cache keys it affects. The mapping
// is pure: no I/O, no state.
//
// created/deleted change collection membership and totals, so the whole list
// must be refetched along with the ancestor detail views that aggregate it
// and the tenant's activity feed. updated/status_changed touch the entity's
// own detail and list plus its immediate parent aggregate. commented only
// touches the entity's detail view, comments are nested under it.
func KeysFor(evt domain.BroadcastEvent) []domain.CacheKey {
	switch evt.EventType {
	case domain.EventCreated, domain.EventDeleted:
		keys := []domain.CacheKey{domain.ListKey(evt.OrgID, evt.EntityType)}
		keys = append(keys, ancestorDetailKeys(evt)...)
		keys = append(keys, domain.ActivityKey(evt.OrgID))
		return keys

	case domain.EventUpdated, domain.EventStatusChanged:
		keys := []domain.CacheKey{
			domain.DetailKey(evt.OrgID, evt.EntityType, evt.EntityID),
			domain.ListKey(evt.OrgID, evt.EntityType),
		}
		if parent, ok := parentDetailKey(evt); ok {
			keys = append(keys, parent)
		}
		return keys

	case domain.EventCommented:
		return []domain.CacheKey{domain.DetailKey(evt.OrgID, evt.EntityType, evt.EntityID)}
	}

	return nil
}

// KeysForAll computes the deduplicated union of the keys of many events.
// This is the traditional full-invalidation fallback path, for callers that
// want no selective patching at all.
func KeysForAll(events []domain.BroadcastEvent) []domain.CacheKey {
	seen := make(map[string]struct{})
	var keys []domain.CacheKey
	for _, evt := range events {
		for _, k := range KeysFor(evt) {
			s := k.String()
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

// ancestorDetailKeys returns the detail keys of every known ancestor: the
// project always, plus feature and epic when the event carries them.
func ancestorDetailKeys(evt domain.BroadcastEvent) []domain.CacheKey {
	var keys []domain.CacheKey
	if evt.ProjectID != "" {
		keys = append(keys, domain.DetailKey(evt.OrgID, domain.EntityProject, evt.ProjectID))
	}
	if evt.FeatureID != "" {
		keys = append(keys, domain.DetailKey(evt.OrgID, domain.EntityFeature, evt.FeatureID))
	}
	if evt.EpicID != "" {
		keys = append(keys, domain.DetailKey(evt.OrgID, domain.EntityEpic, evt.EpicID))
	}
	return keys
}

// parentDetailKey returns the detail key of the closest ancestor aggregate:
// feature before epic before project.
func parentDetailKey(evt domain.BroadcastEvent) (domain.CacheKey, bool) {
	switch {
	case evt.FeatureID != "":
		return domain.DetailKey(evt.OrgID, domain.EntityFeature, evt.FeatureID), true
	case evt.EpicID != "":
		return domain.DetailKey(evt.OrgID, domain.EntityEpic, evt.EpicID), true
	case evt.ProjectID != "" && evt.EntityType != domain.EntityProject:
		return domain.DetailKey(evt.OrgID, domain.EntityProject, evt.ProjectID), true
	}
	return domain.CacheKey{}, false
}
