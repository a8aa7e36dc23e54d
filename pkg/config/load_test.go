package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meridian.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
engine:
  lookup_miss: "null"
  check_declared_types: false
  timeout: 2s
catalog:
  path: ./attributes
  strict: true
lookup:
  driver: sqlite
  path: data/lookups.db
  cache_size: 500
audit:
  enabled: true
  backend: sqlite
  sqlite:
    path: ./audit.db
    busy_timeout: 3s
  retention:
    retention_days: 30
telemetry:
  logging:
    level: debug
    format: text
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Engine.LookupMiss != "null" {
		t.Errorf("engine.lookup_miss = %q, want null", cfg.Engine.LookupMiss)
	}
	if cfg.Engine.CheckDeclaredTypes {
		t.Error("engine.check_declared_types = true, want false")
	}
	if !cfg.Engine.WarnUndeclaredDependencies {
		t.Error("engine.warn_undeclared_dependencies lost its default")
	}
	if cfg.Engine.Timeout != 2*time.Second {
		t.Errorf("engine.timeout = %v, want 2s", cfg.Engine.Timeout)
	}
	if cfg.Catalog.Path != "./attributes" || !cfg.Catalog.Strict {
		t.Errorf("catalog = %+v", cfg.Catalog)
	}
	if cfg.Lookup.Driver != "sqlite" || cfg.Lookup.CacheSize != 500 {
		t.Errorf("lookup = %+v", cfg.Lookup)
	}
	if cfg.Audit.SQLite.BusyTimeout != 3*time.Second {
		t.Errorf("audit.sqlite.busy_timeout = %v, want 3s", cfg.Audit.SQLite.BusyTimeout)
	}
	if !cfg.Audit.SQLite.WALMode {
		t.Error("audit.sqlite.wal_mode lost its default")
	}
	if cfg.Audit.Retention.RetentionDays != 30 || cfg.Audit.Retention.Schedule != "0 3 * * *" {
		t.Errorf("audit.retention = %+v", cfg.Audit.Retention)
	}
	if cfg.Telemetry.Logging.Level != "debug" || cfg.Telemetry.Logging.Format != "text" {
		t.Errorf("telemetry.logging = %+v", cfg.Telemetry.Logging)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"invalid yaml", "engine: [unclosed", "failed to parse"},
		{"invalid lookup_miss", "engine:\n  lookup_miss: maybe\n", "engine.lookup_miss"},
		{"invalid source", "catalog:\n  source: s3\n", "catalog.source"},
		{"git without repository", "catalog:\n  source: git\n", "catalog.git"},
		{"invalid level", "telemetry:\n  logging:\n    level: loud\n", "telemetry.logging"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("LoadConfig() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadConfig() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadConfig() error = %v, want os.ErrNotExist", err)
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
catalog:
  path: ./from-file
lookup:
  driver: memory
`)

	t.Setenv("MERIDIAN_CATALOG_PATH", "./from-env")
	t.Setenv("MERIDIAN_CATALOG_WATCH", "true")
	t.Setenv("MERIDIAN_LOOKUP_CACHE_SIZE", "64")
	t.Setenv("MERIDIAN_ENGINE_TIMEOUT", "750ms")
	t.Setenv("MERIDIAN_AUDIT_ENABLED", "not-a-bool")
	t.Setenv("MERIDIAN_TELEMETRY_LOGGING_LEVEL", "warn")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error = %v", err)
	}
	if cfg.Catalog.Path != "./from-env" {
		t.Errorf("catalog.path = %q, want ./from-env", cfg.Catalog.Path)
	}
	if !cfg.Catalog.Watch {
		t.Error("catalog.watch = false, want true")
	}
	if cfg.Lookup.CacheSize != 64 {
		t.Errorf("lookup.cache_size = %d, want 64", cfg.Lookup.CacheSize)
	}
	if cfg.Engine.Timeout != 750*time.Millisecond {
		t.Errorf("engine.timeout = %v, want 750ms", cfg.Engine.Timeout)
	}
	if cfg.Audit.Enabled {
		t.Error("unparseable MERIDIAN_AUDIT_ENABLED changed audit.enabled")
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("telemetry.logging.level = %q, want warn", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfigWithEnvOverrides_NoFile(t *testing.T) {
	t.Setenv("MERIDIAN_LOOKUP_DRIVER", "bolt")
	t.Setenv("MERIDIAN_LOOKUP_PATH", "/tmp/lookups.bolt")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides(\"\") error = %v", err)
	}
	if cfg.Lookup.Driver != "bolt" || cfg.Lookup.Path != "/tmp/lookups.bolt" {
		t.Errorf("lookup = %+v", cfg.Lookup)
	}

	t.Setenv("MERIDIAN_LOOKUP_PATH", "")
	t.Setenv("MERIDIAN_LOOKUP_DRIVER", "sqlite")
	if _, err := LoadConfigWithEnvOverrides(""); err == nil {
		t.Error("sqlite driver without path should fail validation")
	}
}
