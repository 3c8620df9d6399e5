package config

import (
	"os"
	"strconv"
)

// FromEnv overlays BASEKV_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("BASEKV_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("BASEKV_KEEP_ALIVE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.KeepAliveSeconds = n
		}
	}
	if v := os.Getenv("BASEKV_CLEANUP_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CleanupIntervalMs = n
		}
	}
	if v := os.Getenv("BASEKV_STATS_STREAM_PREFIX"); v != "" {
		cfg.StatsStreamPrefix = v
	}
	if v := os.Getenv("BASEKV_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BASEKV_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("BASEKV_NATS_URL"); v != "" {
		cfg.Nats.URL = v
	}
	if v := os.Getenv("BASEKV_NATS_CONNECT_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Nats.ConnectTimeout = n
		}
	}
}
