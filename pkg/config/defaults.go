package config

import (
	"time"

	"mercator-hq/meridian/pkg/audit"
	"mercator-hq/meridian/pkg/dsl/parser"
	"mercator-hq/meridian/pkg/lookup"
	"mercator-hq/meridian/pkg/rules/eval"
	"mercator-hq/meridian/pkg/server"
	"mercator-hq/meridian/pkg/telemetry/logging"
	"mercator-hq/meridian/pkg/telemetry/metrics"
)

// Default values for configuration fields.
const (
	DefaultLookupMiss       = "error"
	DefaultCatalogSource    = "file"
	DefaultCatalogPath      = "./catalog"
	DefaultCatalogMaxSize   = int64(10 * 1024 * 1024)
	DefaultDebounceInterval = 100 * time.Millisecond
	DefaultGitBranch        = "main"
	DefaultGitTimeout       = 30 * time.Second
	DefaultGitPollInterval  = time.Minute
)

// NewDefaultConfig returns a configuration with every default applied.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Engine: EngineConfig{
			LookupMiss:                 DefaultLookupMiss,
			CheckDeclaredTypes:         true,
			WarnUndeclaredDependencies: true,
			PatternCacheSize:           eval.DefaultPatternCacheSize,
		},
		DSL: DSLConfig{MaxDepth: parser.DefaultMaxDepth},
		Catalog: CatalogConfig{
			Source:           DefaultCatalogSource,
			Path:             DefaultCatalogPath,
			MaxFileSize:      DefaultCatalogMaxSize,
			DebounceInterval: DefaultDebounceInterval,
		},
		Lookup: *lookup.DefaultConfig(),
		Audit:  *audit.DefaultConfig(),
		Server: server.DefaultConfig(),
		Telemetry: TelemetryConfig{
			Logging: logging.DefaultConfig(),
			Metrics: metrics.DefaultConfig(),
		},
	}
	cfg.Catalog.Git.Branch = DefaultGitBranch
	cfg.Catalog.Git.Timeout = DefaultGitTimeout
	cfg.Catalog.Git.PollInterval = DefaultGitPollInterval
	return cfg
}

// ApplyDefaults fills zero-valued fields that have a non-zero default.
// Booleans are left alone: file values are decoded over NewDefaultConfig,
// so an unset boolean already holds its default.
func ApplyDefaults(cfg *Config) {
	def := NewDefaultConfig()

	if cfg.Engine.LookupMiss == "" {
		cfg.Engine.LookupMiss = def.Engine.LookupMiss
	}
	if cfg.Engine.PatternCacheSize == 0 {
		cfg.Engine.PatternCacheSize = def.Engine.PatternCacheSize
	}
	if cfg.DSL.MaxDepth == 0 {
		cfg.DSL.MaxDepth = def.DSL.MaxDepth
	}

	if cfg.Catalog.Source == "" {
		cfg.Catalog.Source = def.Catalog.Source
	}
	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = def.Catalog.Path
	}
	if cfg.Catalog.MaxFileSize == 0 {
		cfg.Catalog.MaxFileSize = def.Catalog.MaxFileSize
	}
	if cfg.Catalog.DebounceInterval == 0 {
		cfg.Catalog.DebounceInterval = def.Catalog.DebounceInterval
	}
	if cfg.Catalog.Git.Branch == "" {
		cfg.Catalog.Git.Branch = def.Catalog.Git.Branch
	}
	if cfg.Catalog.Git.Timeout == 0 {
		cfg.Catalog.Git.Timeout = def.Catalog.Git.Timeout
	}
	if cfg.Catalog.Git.PollInterval == 0 {
		cfg.Catalog.Git.PollInterval = def.Catalog.Git.PollInterval
	}

	if cfg.Lookup.Driver == "" {
		cfg.Lookup.Driver = def.Lookup.Driver
	}
	if cfg.Lookup.BusyTimeout == 0 {
		cfg.Lookup.BusyTimeout = def.Lookup.BusyTimeout
	}

	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = def.Audit.Backend
	}
	if cfg.Audit.SQLite.Path == "" {
		cfg.Audit.SQLite.Path = def.Audit.SQLite.Path
	}
	if cfg.Audit.SQLite.MaxOpenConns == 0 {
		cfg.Audit.SQLite.MaxOpenConns = def.Audit.SQLite.MaxOpenConns
	}
	if cfg.Audit.SQLite.MaxIdleConns == 0 {
		cfg.Audit.SQLite.MaxIdleConns = def.Audit.SQLite.MaxIdleConns
	}
	if cfg.Audit.SQLite.BusyTimeout == 0 {
		cfg.Audit.SQLite.BusyTimeout = def.Audit.SQLite.BusyTimeout
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = def.Telemetry.Logging.Level
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = def.Telemetry.Logging.Format
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = def.Telemetry.Metrics.Path
	}
	if cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = def.Telemetry.Metrics.ListenAddress
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = def.Telemetry.Metrics.Namespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = def.Telemetry.Metrics.Subsystem
	}
	if cfg.Telemetry.Metrics.MaxAttributes == 0 {
		cfg.Telemetry.Metrics.MaxAttributes = def.Telemetry.Metrics.MaxAttributes
	}
	if len(cfg.Telemetry.Metrics.RunDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.RunDurationBuckets = def.Telemetry.Metrics.RunDurationBuckets
	}
}
