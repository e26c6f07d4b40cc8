// Package config loads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds ledger service configuration.
type Config struct {
	Port            string
	LogLevel        string
	DatabasePath    string
	PolicyPackPath  string
	SnapshotEveryN  uint64
	SnapshotMaxAge  time.Duration
	ReplayChunkSize int
}

// Load reads configuration from environment variables, falling back to
// defaults suitable for local development.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbPath := os.Getenv("LEDGER_DB_PATH")
	if dbPath == "" {
		dbPath = "ledger.db"
	}

	return &Config{
		Port:            port,
		LogLevel:        logLevel,
		DatabasePath:    dbPath,
		PolicyPackPath:  os.Getenv("POLICY_PACK_PATH"),
		SnapshotEveryN:  envUint("SNAPSHOT_EVERY_N", 100),
		SnapshotMaxAge:  envDuration("SNAPSHOT_MAX_AGE", 0),
		ReplayChunkSize: int(envUint("REPLAY_CHUNK_SIZE", 256)),
	}
}

func envUint(key string, fallback uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
