package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.ConnectionTimeout)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 10, cfg.MaxReconnectAttempts)
	assert.Equal(t, time.Second, cfg.BackoffBase)
	assert.Equal(t, 30*time.Second, cfg.BackoffCap)
	assert.Equal(t, 2.0, cfg.BackoffFactor)
	assert.Equal(t, 0.2, cfg.BackoffJitter)
	assert.Equal(t, 150*time.Millisecond, cfg.DebounceDelay)
	assert.Equal(t, 200*time.Millisecond, cfg.MutationWaitInterval)
	assert.Equal(t, 10, cfg.MutationWaitRetries)
	assert.Equal(t, time.Minute, cfg.LedgerTTL)
	assert.Equal(t, 500, cfg.LedgerMaxSize)
}

func TestLoad_RequiresRedisURL(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestLoad_SmartUpdateTimeoutDependsOnEnv(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	t.Setenv("APP_ENV", "development")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.SmartUpdateTimeout)

	t.Setenv("APP_ENV", "production")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.SmartUpdateTimeout)

	t.Setenv("SYNC_SMART_UPDATE_TIMEOUT_MS", "250")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.SmartUpdateTimeout)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("SYNC_DEBOUNCE_MS", "300")
	t.Setenv("SYNC_MAX_RECONNECT_ATTEMPTS", "5")
	t.Setenv("SYNC_LEDGER_MAX_SIZE", "100")
	t.Setenv("SYNC_BACKOFF_FACTOR", "1.5")
	t.Setenv("SYNC_BACKOFF_JITTER", "0.1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 300*time.Millisecond, cfg.DebounceDelay)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, 100, cfg.LedgerMaxSize)
	assert.Equal(t, 1.5, cfg.BackoffFactor)
	assert.Equal(t, 0.1, cfg.BackoffJitter)
}

func TestLoad_CacheBackend(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.CacheBackend)

	t.Setenv("SYNC_CACHE_BACKEND", "memory")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.CacheBackend)

	t.Setenv("SYNC_CACHE_BACKEND", "memcached")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	t.Setenv("SYNC_DEBOUNCE_MS", "abc")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("SYNC_DEBOUNCE_MS", "-5")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("SYNC_DEBOUNCE_MS", "150")
	t.Setenv("SYNC_MAX_RECONNECT_ATTEMPTS", "0")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("SYNC_MAX_RECONNECT_ATTEMPTS", "10")
	t.Setenv("SYNC_BACKOFF_FACTOR", "0.5")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("SYNC_BACKOFF_FACTOR", "2")
	t.Setenv("SYNC_BACKOFF_JITTER", "1")
	_, err = Load()
	assert.Error(t, err)
}
