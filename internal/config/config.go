package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// Config is the top-level configuration loaded from file/env, consumed by
// the Manager when opening bases and by the CLI when starting a logger.
type Config struct {
	// DBPath is the root directory under which each base's local document
	// store (Pebble) lives. Defaults to DefaultDataDir().
	DBPath string `json:"dbPath"`

	// KeepAliveSeconds is how long an idle base (zero active subscribers,
	// no public operation started within the window) is kept open before
	// the Manager's sweep closes it. Zero disables idle eviction.
	KeepAliveSeconds int `json:"keepAliveSeconds"`

	// CleanupIntervalMs is how often the Manager's sweep goroutine checks
	// for idle bases to evict.
	CleanupIntervalMs int `json:"cleanupIntervalMs"`

	// StatsStreamPrefix prefixes the stream the StatsEmitter publishes a
	// base's stats to: stream "<prefix>.<base>", subject
	// "<prefix>.<base>.stats".
	StatsStreamPrefix string `json:"statsStreamPrefix"`

	LogLevel  string `json:"logLevel"`
	LogFormat string `json:"logFormat"`

	Nats NatsConfig `json:"nats"`
}

// NatsConfig holds the connection options for the external log client.
type NatsConfig struct {
	URL            string `json:"url"`
	ConnectTimeout int    `json:"connectTimeoutMs"`
}

// Default returns built-in defaults matching the Manager's documented
// defaults (keepAliveSeconds=3600, cleanupIntervalMs=60000).
func Default() Config {
	return Config{
		DBPath:            DefaultDataDir(),
		KeepAliveSeconds:  3600,
		CleanupIntervalMs: 60000,
		StatsStreamPrefix: "basekv",
		LogLevel:          "info",
		LogFormat:         "text",
		Nats: NatsConfig{
			URL:            "nats://127.0.0.1:4222",
			ConnectTimeout: 5000,
		},
	}
}

// Load reads configuration from a JSON file. If path is empty, returns
// defaults. YAML is not yet supported.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return Config{}, errors.New("config: yaml not supported yet; use JSON")
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}
