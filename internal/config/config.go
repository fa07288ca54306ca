package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration of syncd, loaded from the
// environment. Every sync-engine knob is overridable; the defaults are the
// production values.
type Config struct {
	AppEnv       string
	Port         string
	RedisURL     string
	DatabaseURL  string // optional: enables Postgres-backed entity fetchers
	DataDir      string // session dir for the persisted tab id
	CacheBackend string // "redis" (shared) or "memory" (engine-local)
	LogLevel     string
	LogFormat    string

	// Connection lifecycle
	ConnectionTimeout    time.Duration
	HeartbeatInterval    time.Duration
	MaxReconnectAttempts int
	BackoffBase          time.Duration
	BackoffCap           time.Duration
	BackoffFactor        float64
	BackoffJitter        float64

	// Event processing
	DebounceDelay        time.Duration
	SmartUpdateTimeout   time.Duration
	MutationWaitInterval time.Duration
	MutationWaitRetries  int
	LedgerTTL            time.Duration
	LedgerMaxSize        int
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present; real environment
// variables win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:       getEnv("APP_ENV", "development"),
		Port:         getEnv("PORT", "8080"),
		RedisURL:     getEnv("REDIS_URL", ""),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		DataDir:      getEnv("DATA_DIR", ".tasksync"),
		CacheBackend: getEnv("SYNC_CACHE_BACKEND", "redis"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "text"),
	}

	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.CacheBackend != "redis" && cfg.CacheBackend != "memory" {
		return nil, fmt.Errorf("SYNC_CACHE_BACKEND must be \"redis\" or \"memory\", got %q", cfg.CacheBackend)
	}

	var err error
	if cfg.ConnectionTimeout, err = getDurationMS("SYNC_CONNECTION_TIMEOUT_MS", 10_000); err != nil {
		return nil, err
	}
	if cfg.HeartbeatInterval, err = getDurationMS("SYNC_HEARTBEAT_INTERVAL_MS", 30_000); err != nil {
		return nil, err
	}
	if cfg.MaxReconnectAttempts, err = getInt("SYNC_MAX_RECONNECT_ATTEMPTS", 10); err != nil {
		return nil, err
	}
	if cfg.BackoffBase, err = getDurationMS("SYNC_BACKOFF_BASE_MS", 1_000); err != nil {
		return nil, err
	}
	if cfg.BackoffCap, err = getDurationMS("SYNC_BACKOFF_CAP_MS", 30_000); err != nil {
		return nil, err
	}
	if cfg.BackoffFactor, err = getFloat("SYNC_BACKOFF_FACTOR", 2); err != nil {
		return nil, err
	}
	if cfg.BackoffJitter, err = getFloat("SYNC_BACKOFF_JITTER", 0.2); err != nil {
		return nil, err
	}
	if cfg.DebounceDelay, err = getDurationMS("SYNC_DEBOUNCE_MS", 150); err != nil {
		return nil, err
	}

	// Cold-start-prone environments need the longer fetch bound; local
	// development gets the tight one.
	smartDefault := 1_000
	if cfg.AppEnv == "development" {
		smartDefault = 500
	}
	if cfg.SmartUpdateTimeout, err = getDurationMS("SYNC_SMART_UPDATE_TIMEOUT_MS", smartDefault); err != nil {
		return nil, err
	}

	if cfg.MutationWaitInterval, err = getDurationMS("SYNC_MUTATION_WAIT_INTERVAL_MS", 200); err != nil {
		return nil, err
	}
	if cfg.MutationWaitRetries, err = getInt("SYNC_MUTATION_WAIT_RETRIES", 10); err != nil {
		return nil, err
	}
	if cfg.LedgerTTL, err = getDurationMS("SYNC_LEDGER_TTL_MS", 60_000); err != nil {
		return nil, err
	}
	if cfg.LedgerMaxSize, err = getInt("SYNC_LEDGER_MAX_SIZE", 500); err != nil {
		return nil, err
	}

	if cfg.MaxReconnectAttempts < 1 {
		return nil, fmt.Errorf("SYNC_MAX_RECONNECT_ATTEMPTS must be at least 1")
	}
	if cfg.BackoffFactor < 1 {
		return nil, fmt.Errorf("SYNC_BACKOFF_FACTOR must be at least 1")
	}
	if cfg.BackoffJitter < 0 || cfg.BackoffJitter >= 1 {
		return nil, fmt.Errorf("SYNC_BACKOFF_JITTER must be in [0, 1)")
	}
	if cfg.LedgerMaxSize < 1 {
		return nil, fmt.Errorf("SYNC_LEDGER_MAX_SIZE must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}

func getDurationMS(key string, fallbackMS int) (time.Duration, error) {
	n, err := getInt(key, fallbackMS)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return time.Duration(n) * time.Millisecond, nil
}
