package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Guilherme11gr/tasksync/internal/domain"
	"github.com/Guilherme11gr/tasksync/internal/metrics"
)

// ProcessorConfig carries the event-processing knobs.
type ProcessorConfig struct {
	DebounceDelay        time.Duration
	SmartUpdateTimeout   time.Duration
	MutationWaitInterval time.Duration
	MutationWaitRetries  int
	LedgerTTL            time.Duration
	LedgerMaxSize        int
}

// DefaultProcessorConfig returns the production defaults. The smart-update
// timeout is environment dependent: cold-start-prone deployments want the
// longer bound.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		DebounceDelay:        150 * time.Millisecond,
		SmartUpdateTimeout:   time.Second,
		MutationWaitInterval: 200 * time.Millisecond,
		MutationWaitRetries:  10,
		LedgerTTL:            time.Minute,
		LedgerMaxSize:        500,
	}
}

// Stats is a point-in-time snapshot of processor state.
type Stats struct {
	LedgerSize  int       `json:"ledgerSize"`
	QueueDepth  int       `json:"queueDepth"`
	LastBatchAt time.Time `json:"lastBatchAt"`
}

// --- Commands ---

type processorCmd interface{ isProcessorCmd() }

type baseProcessorCmd struct{}

func (baseProcessorCmd) isProcessorCmd() {}

type eventCmd struct {
	baseProcessorCmd
	event    domain.BroadcastEvent
	attempts int // mutation-wait retries already spent
}

type fetchResultCmd struct {
	baseProcessorCmd
	entityKey string
	gen       uint64
	entity    domain.Entity
	err       error
}

type fetchTimeoutCmd struct {
	baseProcessorCmd
	entityKey string
	gen       uint64
}

type statsCmd struct {
	baseProcessorCmd
	replyCh chan Stats
}

type stopProcessorCmd struct{ baseProcessorCmd }

// pendingFetch tracks one in-flight smart update.
type pendingFetch struct {
	gen          uint64
	event        domain.BroadcastEvent
	fallbackKeys []domain.CacheKey
	timer        clockwork.Timer
}

// Processor turns the raw event stream into a minimal, race-safe set of
// cache mutations: dedup, debounced batching, per-entity sequence-gap
// detection, and per-event dispatch into either a selective fetch-and-patch
// or a fallback invalidation.
//
// Like the connection manager it is a single-goroutine actor. Fetches run
// off-loop and deliver results as commands; each carries the generation
// token it was issued under, so a result arriving after its timeout (or
// after a newer fetch started) is detected as stale and discarded instead of
// overwriting fresher cache state.
type Processor struct {
	cmdCh    chan processorCmd
	cache    domain.Cache
	fetchers domain.Fetcher
	tracker  domain.MutationTracker
	clock    clockwork.Clock
	cfg      ProcessorConfig

	// actor state
	ledger      *ledger
	queue       []domain.BroadcastEvent
	debounce    clockwork.Timer
	lastSeq     map[string]int64 // entityType:entityId -> last sequence
	generations map[string]uint64
	pending     map[string]*pendingFetch
	lastBatchAt time.Time

	done chan struct{}
}

// NewProcessor creates an event processor. fetchers may be nil, in which
// case every smart update degrades to invalidation.
func NewProcessor(cache domain.Cache, fetchers domain.Fetcher, tracker domain.MutationTracker, clock clockwork.Clock, cfg ProcessorConfig) *Processor {
	p := &Processor{
		cmdCh:       make(chan processorCmd, 1024),
		cache:       cache,
		fetchers:    fetchers,
		tracker:     tracker,
		clock:       clock,
		cfg:         cfg,
		ledger:      newLedger(clock, cfg.LedgerTTL, cfg.LedgerMaxSize),
		lastSeq:     make(map[string]int64),
		generations: make(map[string]uint64),
		pending:     make(map[string]*pendingFetch),
		done:        make(chan struct{}),
	}
	go p.run()
	return p
}

// Process hands one raw event to the processor. Safe to call from any
// goroutine; ordering within a debounce window follows arrival order.
func (p *Processor) Process(event domain.BroadcastEvent) {
	p.cmdCh <- eventCmd{event: event}
}

// Stats returns a snapshot of processor state.
func (p *Processor) Stats() Stats {
	replyCh := make(chan Stats, 1)
	p.cmdCh <- statsCmd{replyCh: replyCh}
	select {
	case s := <-replyCh:
		return s
	case <-p.done:
		return Stats{}
	}
}

// Stop shuts the processor down. Queued events are dropped.
func (p *Processor) Stop() {
	p.cmdCh <- stopProcessorCmd{}
	<-p.done
}

func (p *Processor) run() {
	defer close(p.done)

	for {
		var debCh <-chan time.Time
		if p.debounce != nil {
			debCh = p.debounce.Chan()
		}

		select {
		case cmd := <-p.cmdCh:
			switch c := cmd.(type) {
			case eventCmd:
				p.handleEvent(c)
			case fetchResultCmd:
				p.handleFetchResult(c)
			case fetchTimeoutCmd:
				p.handleFetchTimeout(c)
			case statsCmd:
				c.replyCh <- Stats{LedgerSize: p.ledger.Size(), QueueDepth: len(p.queue), LastBatchAt: p.lastBatchAt}
			case stopProcessorCmd:
				p.teardown()
				return
			}
		case <-debCh:
			p.debounce = nil
			p.processBatch()
		}
	}
}

func (p *Processor) handleEvent(c eventCmd) {
	evt := c.event

	if p.ledger.Seen(evt.EventID) {
		metrics.EventsDedupedTotal.Inc()
		slog.Debug("Dropping duplicate event", "event_id", evt.EventID)
		return
	}

	// An in-flight local optimistic mutation on this entity would be
	// clobbered by applying the remote echo now; poll until it clears, then
	// proceed regardless (a mutation stuck past the budget is treated as
	// abandoned).
	if p.tracker != nil && p.tracker.IsMutating(evt.EntityID) {
		if c.attempts < p.cfg.MutationWaitRetries {
			metrics.MutationWaitsTotal.Inc()
			next := eventCmd{event: evt, attempts: c.attempts + 1}
			p.clock.AfterFunc(p.cfg.MutationWaitInterval, func() {
				p.cmdCh <- next
			})
			return
		}
		slog.Warn("Local mutation likely stuck, processing event anyway",
			"entity_id", evt.EntityID, "waited", time.Duration(c.attempts)*p.cfg.MutationWaitInterval)
	}

	metrics.EventsReceivedTotal.WithLabelValues(string(evt.EventType)).Inc()
	p.queue = append(p.queue, evt)

	// Every arrival pushes the window back, coalescing bursts into one batch.
	if p.debounce == nil {
		p.debounce = p.clock.NewTimer(p.cfg.DebounceDelay)
	} else {
		p.debounce.Reset(p.cfg.DebounceDelay)
	}
}

func (p *Processor) processBatch() {
	batch := p.queue
	p.queue = nil
	if len(batch) == 0 {
		return
	}

	// O(n) dedup by event id, preserving arrival order.
	seen := make(map[string]struct{}, len(batch))
	unique := batch[:0]
	for _, evt := range batch {
		if _, ok := seen[evt.EventID]; ok {
			metrics.EventsDedupedTotal.Inc()
			continue
		}
		seen[evt.EventID] = struct{}{}
		unique = append(unique, evt)
	}

	p.detectSequenceGaps(unique)

	// Smart-update targets coalesce per entity: five updates to the same
	// entity in one window cost one fetch.
	smartTargets := make(map[string]domain.BroadcastEvent)
	var smartOrder []string

	for _, evt := range unique {
		p.ledger.Record(evt.EventID)

		switch evt.EventType {
		case domain.EventCreated, domain.EventDeleted:
			p.invalidateKeys(KeysFor(evt))

		case domain.EventUpdated, domain.EventStatusChanged:
			key := evt.EntityKey()
			if _, ok := smartTargets[key]; !ok {
				smartOrder = append(smartOrder, key)
			}
			smartTargets[key] = evt

		case domain.EventCommented:
			p.invalidateKeys(KeysFor(evt))
		}
	}

	for _, key := range smartOrder {
		p.startSmartUpdate(key, smartTargets[key])
	}

	p.lastBatchAt = p.clock.Now()
	metrics.BatchesProcessedTotal.Inc()
	metrics.BatchSize.Observe(float64(len(unique)))
	metrics.LedgerSize.Set(float64(p.ledger.Size()))

	slog.Debug("Processed event batch", "events", len(unique), "dropped_duplicates", len(batch)-len(unique))
}

// detectSequenceGaps compares each event's sequence against the last one
// recorded for its entity. Gaps are advisory only: logged, never corrected
// by a catch-up fetch.
func (p *Processor) detectSequenceGaps(events []domain.BroadcastEvent) {
	for _, evt := range events {
		key := evt.EntityKey()
		if last, ok := p.lastSeq[key]; ok && evt.Sequence-last > 1 {
			metrics.SequenceGapsTotal.Inc()
			slog.Warn("Sequence gap detected",
				"entity", key, "last_sequence", last, "sequence", evt.Sequence, "gap", evt.Sequence-last)
		}
		if evt.Sequence > p.lastSeq[key] {
			p.lastSeq[key] = evt.Sequence
		}
	}
}

// startSmartUpdate launches the selective fetch-and-patch path for one
// entity. The fetch races a timer; whichever loses is discarded via the
// generation token.
func (p *Processor) startSmartUpdate(entityKey string, evt domain.BroadcastEvent) {
	// A newer update supersedes any in-flight fetch for the same entity.
	if prev, ok := p.pending[entityKey]; ok {
		prev.timer.Stop()
		delete(p.pending, entityKey)
		metrics.SmartUpdatesTotal.WithLabelValues("stale").Inc()
	}

	p.generations[entityKey]++
	gen := p.generations[entityKey]
	fallbackKeys := KeysFor(evt)

	if p.fetchers == nil {
		slog.Debug("No fetcher configured, falling back to invalidation", "entity", entityKey)
		metrics.SmartUpdatesTotal.WithLabelValues("fallback").Inc()
		p.invalidateKeys(fallbackKeys)
		return
	}

	timer := p.clock.AfterFunc(p.cfg.SmartUpdateTimeout, func() {
		p.cmdCh <- fetchTimeoutCmd{entityKey: entityKey, gen: gen}
	})
	p.pending[entityKey] = &pendingFetch{gen: gen, event: evt, fallbackKeys: fallbackKeys, timer: timer}

	entityType, entityID := evt.EntityType, evt.EntityID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.SmartUpdateTimeout)
		defer cancel()
		entity, err := p.fetchers.FetchByID(ctx, entityType, entityID)
		p.cmdCh <- fetchResultCmd{entityKey: entityKey, gen: gen, entity: entity, err: err}
	}()
}

func (p *Processor) handleFetchResult(c fetchResultCmd) {
	pf, ok := p.pending[c.entityKey]
	if !ok || pf.gen != c.gen {
		// Arrived after its timeout fired or after a newer fetch started.
		metrics.SmartUpdatesTotal.WithLabelValues("stale").Inc()
		slog.Debug("Discarding stale fetch result", "entity", c.entityKey)
		return
	}
	pf.timer.Stop()
	delete(p.pending, c.entityKey)

	if c.err != nil {
		// Degrade to invalidating just this event's keys; the rest of the
		// batch is unaffected.
		metrics.SmartUpdatesTotal.WithLabelValues("fallback").Inc()
		slog.Warn("Smart update fetch failed, invalidating instead",
			"entity", c.entityKey, "error", c.err)
		p.invalidateKeys(pf.fallbackKeys)
		return
	}

	p.applySmartUpdate(pf.event, c.entity)
	metrics.SmartUpdatesTotal.WithLabelValues("applied").Inc()
}

func (p *Processor) handleFetchTimeout(c fetchTimeoutCmd) {
	pf, ok := p.pending[c.entityKey]
	if !ok || pf.gen != c.gen {
		return
	}
	delete(p.pending, c.entityKey)

	// Bump the generation so the abandoned fetch's late result is fenced.
	p.generations[c.entityKey]++

	metrics.SmartUpdatesTotal.WithLabelValues("fallback").Inc()
	slog.Warn("Smart update timed out, invalidating instead",
		"entity", c.entityKey, "timeout", p.cfg.SmartUpdateTimeout)
	p.invalidateKeys(pf.fallbackKeys)
}

// applySmartUpdate splices the fresh entity into every cached collection of
// its type that contains it, refreshes its detail key, and lightly
// invalidates the immediate parent aggregate. No full list refetch.
func (p *Processor) applySmartUpdate(evt domain.BroadcastEvent, fresh domain.Entity) {
	listPrefix := domain.ListKey(evt.OrgID, evt.EntityType).String()
	patched := 0

	for key, value := range p.cache.QueryByPrefix(listPrefix) {
		list, ok := value.([]domain.Entity)
		if !ok {
			continue
		}
		for i, item := range list {
			if item.ID != fresh.ID {
				continue
			}
			updated := make([]domain.Entity, len(list))
			copy(updated, list)
			updated[i] = fresh
			p.cache.Set(key, updated)
			patched++
			break
		}
	}

	p.cache.Set(domain.DetailKey(evt.OrgID, evt.EntityType, evt.EntityID).String(), fresh)

	if parent, ok := parentDetailKey(evt); ok {
		p.cache.Invalidate(parent.String())
		metrics.CacheInvalidationsTotal.Inc()
	}

	slog.Debug("Smart update applied", "entity", evt.EntityKey(), "lists_patched", patched)
}

// invalidateKeys evicts derived keys: list-scope keys by prefix so filtered
// and paginated variants go with them, detail keys exactly.
func (p *Processor) invalidateKeys(keys []domain.CacheKey) {
	for _, k := range keys {
		if k.Scope == domain.ScopeList {
			p.cache.InvalidatePrefix(k.String())
		} else {
			p.cache.Invalidate(k.String())
		}
		metrics.CacheInvalidationsTotal.Inc()
	}
}

func (p *Processor) teardown() {
	if p.debounce != nil {
		p.debounce.Stop()
		p.debounce = nil
	}
	for key, pf := range p.pending {
		pf.timer.Stop()
		delete(p.pending, key)
	}
}
