// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/warungkita/possync/internal/logging"
)

// Config holds everything the process needs to start.
type Config struct {
	// DataDir is where the sqlite database lives.
	DataDir string

	// HTTPAddr is the listen address of the local API server.
	HTTPAddr string

	// RemoteBaseURL is the backend replay endpoint. Empty means the process
	// runs storage-only and the sync runner is not wired to a backend.
	RemoteBaseURL string

	// RemoteTimeout bounds each replay call.
	RemoteTimeout time.Duration

	// SyncInterval is how often the scheduler drains pending records.
	SyncInterval time.Duration

	// MaintenanceInterval is how often synced data and expired cache entries
	// are cleaned up.
	MaintenanceInterval time.Duration

	// LogLevel is a logrus level name (debug, info, warn, error).
	LogLevel string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first if present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			logging.Warn("Failed to load .env file", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	cfg := &Config{
		DataDir:             getEnv("POSSYNC_DATA_DIR", "./data"),
		HTTPAddr:            getEnv("POSSYNC_HTTP_ADDR", ":8090"),
		RemoteBaseURL:       getEnv("POSSYNC_REMOTE_URL", ""),
		LogLevel:            getEnv("POSSYNC_LOG_LEVEL", "info"),
		RemoteTimeout:       15 * time.Second,
		SyncInterval:        5 * time.Minute,
		MaintenanceInterval: time.Hour,
	}

	var err error
	if cfg.RemoteTimeout, err = getDuration("POSSYNC_REMOTE_TIMEOUT", cfg.RemoteTimeout); err != nil {
		return nil, err
	}
	if cfg.SyncInterval, err = getDuration("POSSYNC_SYNC_INTERVAL", cfg.SyncInterval); err != nil {
		return nil, err
	}
	if cfg.MaintenanceInterval, err = getDuration("POSSYNC_MAINTENANCE_INTERVAL", cfg.MaintenanceInterval); err != nil {
		return nil, err
	}

	if cfg.SyncInterval <= 0 {
		return nil, fmt.Errorf("POSSYNC_SYNC_INTERVAL must be positive, got %s", cfg.SyncInterval)
	}
	if cfg.MaintenanceInterval <= 0 {
		return nil, fmt.Errorf("POSSYNC_MAINTENANCE_INTERVAL must be positive, got %s", cfg.MaintenanceInterval)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getDuration parses a duration env var. Bare integers are taken as seconds
// so ops configs can write POSSYNC_SYNC_INTERVAL=300 as well as 5m.
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %q", key, v)
	}
	return d, nil
}
