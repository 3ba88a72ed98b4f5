package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := cfg.Cache.GetChunkSize(); got != 200*1024 {
		t.Errorf("GetChunkSize() = %d, want %d", got, 200*1024)
	}
	if got := cfg.Cache.GetMaxSize(); got != 0 {
		t.Errorf("GetMaxSize() = %d, want 0", got)
	}
	if got := cfg.Cache.GetMaxAge(); got != 7*24*time.Hour {
		t.Errorf("GetMaxAge() = %v, want 168h", got)
	}
	if got := cfg.HTTP.GetWriteTimeout(); got != 0 {
		t.Errorf("GetWriteTimeout() = %v, want 0", got)
	}
	if cfg.HTTP.BindAddr != "127.0.0.1:8089" {
		t.Errorf("BindAddr = %q", cfg.HTTP.BindAddr)
	}
	if cfg.Prefetch.Workers != 2 || cfg.Prefetch.QueueSize != 64 {
		t.Errorf("Prefetch = %+v", cfg.Prefetch)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
cache:
  root_dir: /tmp/media
  chunk_size: 1MiB
  max_size: 10GB
  max_age: 48h
  max_disk_usage_percent: 80
maintenance:
  flush_interval: 10s
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Cache.RootDir != "/tmp/media" {
		t.Errorf("RootDir = %q", cfg.Cache.RootDir)
	}
	if got := cfg.Cache.GetChunkSize(); got != 1<<20 {
		t.Errorf("GetChunkSize() = %d, want %d", got, 1<<20)
	}
	if got := cfg.Cache.GetMaxSize(); got != 10_000_000_000 {
		t.Errorf("GetMaxSize() = %d, want 10000000000", got)
	}
	if got := cfg.Cache.GetMaxAge(); got != 48*time.Hour {
		t.Errorf("GetMaxAge() = %v, want 48h", got)
	}
	if got := cfg.Maintenance.GetFlushInterval(); got != 10*time.Second {
		t.Errorf("GetFlushInterval() = %v, want 10s", got)
	}
	// Unset keys keep their defaults
	if got := cfg.Maintenance.GetSweepInterval(); got != 5*time.Minute {
		t.Errorf("GetSweepInterval() = %v, want 5m", got)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("MEDIA_CACHE_CACHE_ROOT_DIR", "/srv/cache")
	t.Setenv("MEDIA_CACHE_HTTP_BIND_ADDR", "0.0.0.0:9000")

	cfg, err := Load(writeConfig(t, "cache:\n  root_dir: /tmp/media\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Cache.RootDir != "/srv/cache" {
		t.Errorf("RootDir = %q, want /srv/cache", cfg.Cache.RootDir)
	}
	if cfg.HTTP.BindAddr != "0.0.0.0:9000" {
		t.Errorf("BindAddr = %q, want 0.0.0.0:9000", cfg.HTTP.BindAddr)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() should fail for a missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"empty root dir", func(c *Config) { c.Cache.RootDir = "" }, "cache.root_dir"},
		{"zero chunk size", func(c *Config) { c.Cache.ChunkSize = "0" }, "cache.chunk_size"},
		{"bad chunk size", func(c *Config) { c.Cache.ChunkSize = "lots" }, "cache.chunk_size"},
		{"bad max size", func(c *Config) { c.Cache.MaxSize = "10 parsecs" }, "cache.max_size"},
		{"disk usage out of range", func(c *Config) { c.Cache.MaxDiskUsagePercent = 101 }, "max_disk_usage_percent"},
		{"bad duration", func(c *Config) { c.Maintenance.SweepInterval = "often" }, "maintenance.sweep_interval"},
		{"no prefetch workers", func(c *Config) { c.Prefetch.Workers = 0 }, "prefetch.workers"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
