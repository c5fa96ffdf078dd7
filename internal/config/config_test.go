package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"claimlens/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatalf("expected exists=false for %s", resolved)
	}
	if cfg.Scheduler.WorkerCount != config.Default().Scheduler.WorkerCount {
		t.Fatalf("expected default worker count, got %d", cfg.Scheduler.WorkerCount)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := strings.Join([]string{
		"[scheduler]",
		"worker_count = 7",
		"max_pending = 5",
		"",
		"[cache]",
		`backend = "redis"`,
		`redis_addr = "127.0.0.1:6379"`,
		"",
		"[logging]",
		`format = "json"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be found")
	}
	if cfg.Scheduler.WorkerCount != 7 {
		t.Fatalf("worker_count = %d, want 7", cfg.Scheduler.WorkerCount)
	}
	if cfg.Scheduler.MaxPending != 5 {
		t.Fatalf("max_pending = %d, want 5", cfg.Scheduler.MaxPending)
	}
	if cfg.Cache.Backend != "redis" {
		t.Fatalf("cache backend = %q, want redis", cfg.Cache.Backend)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("logging format = %q, want json", cfg.Logging.Format)
	}
}

func TestValidateRejectsRedisWithoutAddr(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Backend = "redis"
	cfg.Cache.RedisAddr = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation failure for redis backend without addr")
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Backend = "memcache"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation failure for unknown cache backend")
	}
}

func TestValidateHeartbeatOrdering(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.HeartbeatInterval = 30
	cfg.Scheduler.HeartbeatTimeout = 30
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation failure when timeout does not exceed interval")
	}
}

func TestSampleConfigParses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.toml")
	if err := os.WriteFile(path, []byte(config.SampleConfig()), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
}
