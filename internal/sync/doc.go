// Package sync implements the real-time cache synchronization engine: a
// connection manager owning the tenant pub/sub channel and an event
// processor that turns the broadcast stream into selective cache patches or
// invalidations.
//
// Both components are single-goroutine actors fed by command channels (no
// mutexes); transport callbacks, fetches, and timers post commands instead
// of touching state. All timers go through a clockwork.Clock so the whole
// engine is testable with a fake clock.
package sync
