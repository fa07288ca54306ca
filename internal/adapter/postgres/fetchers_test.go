package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Guilherme11gr/tasksync/internal/domain"
)

var testDatabaseURL string

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := pgcontainer.Run(ctx,
		"postgres:15-alpine",
		pgcontainer.WithDatabase("testdb"),
		pgcontainer.WithUsername("testuser"),
		pgcontainer.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	testDatabaseURL, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get connection string: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	_ = container.Terminate(ctx)
	os.Exit(code)
}

func setupTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	pool, err := NewPool(ctx, testDatabaseURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
		DROP TABLE IF EXISTS tasks;
		CREATE TABLE tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			status TEXT NOT NULL,
			project_id TEXT NOT NULL
		);
		INSERT INTO tasks (id, title, status, project_id)
		VALUES ('t1', 'write tests', 'doing', 'p1');
	`)
	require.NoError(t, err)

	return pool
}

func TestFetchByID_ReturnsRowAsJSON(t *testing.T) {
	pool := setupTestPool(t)
	fetchers := NewFetchers(pool)

	entity, err := fetchers.FetchByID(context.Background(), domain.EntityTask, "t1")
	require.NoError(t, err)

	assert.Equal(t, "t1", entity.ID)
	assert.Equal(t, domain.EntityTask, entity.Type)

	var row map[string]any
	require.NoError(t, json.Unmarshal(entity.Data, &row))
	assert.Equal(t, "write tests", row["title"])
	assert.Equal(t, "doing", row["status"])
	assert.Equal(t, "p1", row["project_id"])
}

func TestFetchByID_MissingRowIsNotFound(t *testing.T) {
	pool := setupTestPool(t)
	fetchers := NewFetchers(pool)

	_, err := fetchers.FetchByID(context.Background(), domain.EntityTask, "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetchByID_UnknownEntityType(t *testing.T) {
	pool := setupTestPool(t)
	fetchers := NewFetchers(pool)

	_, err := fetchers.FetchByID(context.Background(), domain.EntityType("spaceship"), "t1")
	assert.Error(t, err)
}

func TestFetchByID_NotFoundDoesNotTripBreaker(t *testing.T) {
	pool := setupTestPool(t)
	fetchers := NewFetchers(pool)

	for i := 0; i < 10; i++ {
		_, err := fetchers.FetchByID(context.Background(), domain.EntityTask, "absent")
		require.ErrorIs(t, err, ErrNotFound)
	}

	// the breaker stayed closed, real rows still fetch
	entity, err := fetchers.FetchByID(context.Background(), domain.EntityTask, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", entity.ID)
}

func TestFetchByID_HonorsContextDeadline(t *testing.T) {
	pool := setupTestPool(t)
	fetchers := NewFetchers(pool)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fetchers.FetchByID(ctx, domain.EntityTask, "t1")
	assert.Error(t, err)
}
