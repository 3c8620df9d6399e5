package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.KeepAliveSeconds != 3600 {
		t.Fatalf("keepAliveSeconds default")
	}
	if cfg.CleanupIntervalMs != 60000 {
		t.Fatalf("cleanupIntervalMs default")
	}
	if cfg.StatsStreamPrefix != "basekv" {
		t.Fatalf("statsStreamPrefix default")
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "basekv.json")
	data := []byte(`{"dbPath":"/tmp/basekv-data","keepAliveSeconds":120,"cleanupIntervalMs":5000}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "/tmp/basekv-data" {
		t.Fatalf("expected override dbPath, got %q", cfg.DBPath)
	}
	if cfg.KeepAliveSeconds != 120 {
		t.Fatalf("expected 120")
	}
	if cfg.CleanupIntervalMs != 5000 {
		t.Fatalf("expected 5000")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	os.Setenv("BASEKV_DB_PATH", "/data/basekv")
	os.Setenv("BASEKV_KEEP_ALIVE_SECONDS", "42")
	os.Setenv("BASEKV_NATS_URL", "nats://example:4222")
	t.Cleanup(func() {
		os.Unsetenv("BASEKV_DB_PATH")
		os.Unsetenv("BASEKV_KEEP_ALIVE_SECONDS")
		os.Unsetenv("BASEKV_NATS_URL")
	})
	FromEnv(&cfg)
	if cfg.DBPath != "/data/basekv" {
		t.Fatalf("env override dbPath")
	}
	if cfg.KeepAliveSeconds != 42 {
		t.Fatalf("env override keepAliveSeconds")
	}
	if cfg.Nats.URL != "nats://example:4222" {
		t.Fatalf("env override nats url")
	}
}
