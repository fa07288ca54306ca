// Package postgres provides entity fetchers backed by the dashboard's
// Postgres schema, used by the sync engine's selective fetch-and-patch path.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/Guilherme11gr/tasksync/internal/domain"
)

// ErrNotFound is returned when the entity no longer exists; the processor
// treats it like any fetch failure and falls back to invalidation.
var ErrNotFound = errors.New("entity not found")

// tableFor maps entity types to their tables. Table names are fixed at
// compile time; ids are always bound parameters.
var tableFor = map[domain.EntityType]string{
	domain.EntityTask:    "tasks",
	domain.EntityFeature: "features",
	domain.EntityEpic:    "epics",
	domain.EntityComment: "comments",
	domain.EntityDoc:     "docs",
	domain.EntityProject: "projects",
}

// Fetchers implements domain.Fetcher over a pgx pool, returning each row as
// its JSON representation so the engine can splice it into cached
// collections without knowing the schema.
//
// Concurrent fetches for the same entity collapse into one query, and a
// circuit breaker turns a struggling database into fast failures, which the
// engine downgrades to plain invalidation.
type Fetchers struct {
	pool    *pgxpool.Pool
	group   singleflight.Group
	breaker *gobreaker.CircuitBreaker
}

// NewFetchers wraps an existing pool.
func NewFetchers(pool *pgxpool.Pool) *Fetchers {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "entity-fetch",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A missing row is an answer, not a database failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
	})
	return &Fetchers{pool: pool, breaker: breaker}
}

// NewPool creates a pgx pool from a database URL.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

// FetchByID loads one entity as JSON. The caller bounds the call with a
// context deadline; duplicate concurrent calls share the first caller's
// query and deadline.
func (f *Fetchers) FetchByID(ctx context.Context, entityType domain.EntityType, id string) (domain.Entity, error) {
	if _, ok := tableFor[entityType]; !ok {
		return domain.Entity{}, fmt.Errorf("no fetcher for entity type %q", entityType)
	}

	key := string(entityType) + ":" + id
	v, err, _ := f.group.Do(key, func() (any, error) {
		return f.breaker.Execute(func() (any, error) {
			return f.fetchRow(ctx, entityType, id)
		})
	})
	if err != nil {
		return domain.Entity{}, err
	}
	return v.(domain.Entity), nil
}

func (f *Fetchers) fetchRow(ctx context.Context, entityType domain.EntityType, id string) (domain.Entity, error) {
	var payload []byte
	query := fmt.Sprintf("SELECT to_jsonb(t) FROM %s t WHERE id = $1", tableFor[entityType])
	err := f.pool.QueryRow(ctx, query, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Entity{}, fmt.Errorf("%w: %s %s", ErrNotFound, entityType, id)
	}
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to fetch %s %s: %w", entityType, id, err)
	}
	return domain.Entity{ID: id, Type: entityType, Data: payload}, nil
}
