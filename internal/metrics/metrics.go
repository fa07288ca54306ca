// Package metrics exposes Prometheus metrics for the sync engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection metrics
var (
	// ConnectionStatus reflects the current channel state (one-hot by status label).
	ConnectionStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_connection_status",
			Help: "Current connection status (1 for the active status, 0 otherwise)",
		},
		[]string{"status"},
	)

	// ReconnectAttemptsTotal counts scheduled reconnection attempts.
	ReconnectAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_reconnect_attempts_total",
			Help: "Total reconnection attempts scheduled",
		},
	)

	// HeartbeatFailuresTotal counts failed presence updates.
	HeartbeatFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_heartbeat_failures_total",
			Help: "Total failed heartbeat presence updates",
		},
	)

	// EventsPublishedTotal counts events published on the tenant topic.
	EventsPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_events_published_total",
			Help: "Total broadcast events published",
		},
	)
)

// Event processing metrics
var (
	// EventsReceivedTotal counts raw events handed to the processor by event type.
	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_events_received_total",
			Help: "Total broadcast events received by event type",
		},
		[]string{"event_type"},
	)

	// EventsDedupedTotal counts events dropped by the dedup ledger.
	EventsDedupedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_events_deduped_total",
			Help: "Total events dropped as duplicates",
		},
	)

	// BatchesProcessedTotal counts debounced batch runs.
	BatchesProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_batches_processed_total",
			Help: "Total debounced batches processed",
		},
	)

	// BatchSize observes how many unique events each batch carried.
	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_batch_size",
			Help:    "Unique events per processed batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)

	// SmartUpdatesTotal counts smart update outcomes: applied, fallback, stale.
	SmartUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_smart_updates_total",
			Help: "Smart update outcomes by result",
		},
		[]string{"outcome"},
	)

	// CacheInvalidationsTotal counts cache keys invalidated.
	CacheInvalidationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_cache_invalidations_total",
			Help: "Total cache keys invalidated",
		},
	)

	// SequenceGapsTotal counts detected per-entity sequence gaps (advisory).
	SequenceGapsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_sequence_gaps_total",
			Help: "Total per-entity sequence gaps detected",
		},
	)

	// LedgerSize tracks the dedup ledger size after each batch.
	LedgerSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_dedup_ledger_size",
			Help: "Current dedup ledger size",
		},
	)

	// MutationWaitsTotal counts events delayed behind an in-flight local mutation.
	MutationWaitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_mutation_waits_total",
			Help: "Total events delayed behind an in-flight local mutation",
		},
	)
)

// SetConnectionStatus updates the one-hot connection status gauge.
func SetConnectionStatus(status string) {
	for _, s := range []string{"disconnected", "connecting", "connected", "failed"} {
		v := 0.0
		if s == status {
			v = 1.0
		}
		ConnectionStatus.WithLabelValues(s).Set(v)
	}
}
