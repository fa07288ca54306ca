// Package domain holds the shared types and collaborator contracts of the
// sync engine: the broadcast event wire shape, the cache key scheme, and the
// interfaces the surrounding application implements (cache, entity fetchers,
// mutation tracker, transport, tab identity). No implementation code - just
// contracts, keeping interfaces on the consumer side.
package domain
