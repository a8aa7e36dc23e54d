package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/meridian/pkg/dsl/parser"
	"mercator-hq/meridian/pkg/rules/derive"
	"mercator-hq/meridian/pkg/rules/eval"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default configuration is invalid: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"engine.lookup_miss", cfg.Engine.LookupMiss, "error"},
		{"engine.check_declared_types", cfg.Engine.CheckDeclaredTypes, true},
		{"dsl.max_depth", cfg.DSL.MaxDepth, parser.DefaultMaxDepth},
		{"catalog.source", cfg.Catalog.Source, "file"},
		{"catalog.path", cfg.Catalog.Path, "./catalog"},
		{"catalog.debounce_interval", cfg.Catalog.DebounceInterval, 100 * time.Millisecond},
		{"catalog.git.branch", cfg.Catalog.Git.Branch, "main"},
		{"lookup.driver", cfg.Lookup.Driver, "memory"},
		{"audit.enabled", cfg.Audit.Enabled, false},
		{"audit.backend", cfg.Audit.Backend, "sqlite"},
		{"telemetry.logging.level", cfg.Telemetry.Logging.Level, "info"},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeout, 5 * time.Second},
		{"server.enable_derive", cfg.Server.EnableDerive, true},
		{"telemetry.metrics.path", cfg.Telemetry.Metrics.Path, "/metrics"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestApplyDefaults_FillsZeroFields(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() after ApplyDefaults error = %v", err)
	}
	if cfg.Catalog.MaxFileSize != DefaultCatalogMaxSize {
		t.Errorf("catalog.max_file_size = %d, want %d", cfg.Catalog.MaxFileSize, DefaultCatalogMaxSize)
	}
	if cfg.Audit.SQLite.Path != "data/audit.db" {
		t.Errorf("audit.sqlite.path = %q, want data/audit.db", cfg.Audit.SQLite.Path)
	}
	// Booleans keep their zero value.
	if cfg.Engine.CheckDeclaredTypes {
		t.Error("ApplyDefaults() set engine.check_declared_types")
	}
}

func TestEngineConfig_Conversions(t *testing.T) {
	ec := EngineConfig{LookupMiss: "null", CheckDeclaredTypes: true, PatternCacheSize: 16}

	if diff := cmp.Diff(&eval.Config{LookupMiss: eval.MissNull, PatternCacheSize: 16}, ec.EvalConfig()); diff != "" {
		t.Errorf("EvalConfig() mismatch (-want +got):\n%s", diff)
	}
	want := &derive.Config{CheckDeclaredTypes: true}
	if diff := cmp.Diff(want, ec.DeriveConfig()); diff != "" {
		t.Errorf("DeriveConfig() mismatch (-want +got):\n%s", diff)
	}
}

func TestCatalogConfig_Conversions(t *testing.T) {
	cc := CatalogConfig{Path: "rules", Strict: true, MaxFileSize: 1024, DebounceInterval: time.Second}

	lc := cc.LoaderConfig()
	if !lc.Strict || lc.MaxFileSize != 1024 || !lc.SkipHidden {
		t.Errorf("LoaderConfig() = %+v", lc)
	}
	wc := cc.WatcherConfig()
	if wc.Path != "rules" || wc.DebounceInterval != time.Second {
		t.Errorf("WatcherConfig() = %+v", wc)
	}
}

func TestDSLConfig_NewParser(t *testing.T) {
	p, err := (&DSLConfig{MaxDepth: 8}).NewParser()
	if err != nil {
		t.Fatalf("NewParser() error = %v", err)
	}
	if _, err := p.Parse("1 + 2"); err != nil {
		t.Errorf("Parse() error = %v", err)
	}
	if _, err := (&DSLConfig{GrammarFile: "does-not-exist.yaml"}).NewParser(); err == nil {
		t.Error("NewParser() with missing grammar error = nil, want error")
	}
}
