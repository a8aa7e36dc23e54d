package config

import (
	"fmt"
	"time"

	"mercator-hq/meridian/pkg/audit"
	"mercator-hq/meridian/pkg/dsl/parser"
	"mercator-hq/meridian/pkg/lookup"
	"mercator-hq/meridian/pkg/rules/catalog"
	"mercator-hq/meridian/pkg/rules/catalog/gitsource"
	"mercator-hq/meridian/pkg/rules/derive"
	"mercator-hq/meridian/pkg/rules/eval"
	"mercator-hq/meridian/pkg/server"
	"mercator-hq/meridian/pkg/telemetry/logging"
	"mercator-hq/meridian/pkg/telemetry/metrics"
)

// Config is the complete Meridian configuration.
type Config struct {
	// Engine controls evaluation and derivation behaviour.
	Engine EngineConfig `yaml:"engine"`

	// DSL configures the rule language front end.
	DSL DSLConfig `yaml:"dsl"`

	// Catalog locates the attribute catalog.
	Catalog CatalogConfig `yaml:"catalog"`

	// Lookup selects the backing store for LOOKUP tables.
	Lookup lookup.Config `yaml:"lookup"`

	// Audit controls retention of derivation runs.
	Audit audit.Config `yaml:"audit"`

	// Server configures the HTTP server of `meridian watch`.
	Server server.Config `yaml:"server"`

	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// EngineConfig controls evaluation and derivation.
type EngineConfig struct {
	// LookupMiss is what LOOKUP returns for an absent key: "error" or "null".
	// Default: "error"
	LookupMiss string `yaml:"lookup_miss"`

	// CheckDeclaredTypes fails attributes whose value does not match the declared type.
	// Default: true
	CheckDeclaredTypes bool `yaml:"check_declared_types"`

	// WarnUndeclaredDependencies logs identifiers a rule reads but does not declare.
	// Default: true
	WarnUndeclaredDependencies bool `yaml:"warn_undeclared_dependencies"`

	// Timeout bounds a single derivation run. Zero means no limit.
	// Default: 0
	Timeout time.Duration `yaml:"timeout"`

	// PatternCacheSize bounds the number of compiled regular expressions
	// kept between evaluations.
	// Default: 1024
	PatternCacheSize int `yaml:"pattern_cache_size"`
}

// DSLConfig configures the parser.
type DSLConfig struct {
	// GrammarFile is an optional YAML grammar replacing the built-in vocabulary.
	GrammarFile string `yaml:"grammar_file"`

	// MaxDepth bounds expression nesting.
	// Default: 256
	MaxDepth int `yaml:"max_depth"`
}

// CatalogConfig locates the attribute catalog.
type CatalogConfig struct {
	// Source is "file" or "git".
	// Default: "file"
	Source string `yaml:"source"`

	// Path is the catalog file or directory. For git sources it is ignored
	// in favour of git.path.
	// Default: "./catalog"
	Path string `yaml:"path"`

	// Strict rejects a catalog whose rules have error diagnostics.
	// Default: false
	Strict bool `yaml:"strict"`

	// MaxFileSize is the largest catalog file accepted, in bytes.
	// Default: 10MB
	MaxFileSize int64 `yaml:"max_file_size"`

	// Watch reloads the catalog when files change (file source) or on
	// git.poll_interval (git source).
	// Default: false
	Watch bool `yaml:"watch"`

	// DebounceInterval is the quiet period before a file change triggers a reload.
	// Default: 100ms
	DebounceInterval time.Duration `yaml:"debounce_interval"`

	Git gitsource.Config `yaml:"git"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging logging.Config `yaml:"logging"`
	Metrics metrics.Config `yaml:"metrics"`
}

// EvalConfig returns the evaluator configuration.
func (c *EngineConfig) EvalConfig() *eval.Config {
	return &eval.Config{
		LookupMiss:       eval.MissPolicy(c.LookupMiss),
		PatternCacheSize: c.PatternCacheSize,
	}
}

// DeriveConfig returns the derivation engine configuration.
func (c *EngineConfig) DeriveConfig() *derive.Config {
	return &derive.Config{
		CheckDeclaredTypes:         c.CheckDeclaredTypes,
		WarnUndeclaredDependencies: c.WarnUndeclaredDependencies,
	}
}

// NewParser builds a parser with the configured grammar and depth limit.
func (c *DSLConfig) NewParser() (*parser.Parser, error) {
	p := parser.NewParser().WithMaxDepth(c.MaxDepth)
	if c.GrammarFile == "" {
		return p, nil
	}
	g, err := parser.LoadGrammarFile(c.GrammarFile)
	if err != nil {
		return nil, fmt.Errorf("load grammar %q: %w", c.GrammarFile, err)
	}
	return p.WithGrammar(g), nil
}

// LoaderConfig returns the catalog loader configuration.
func (c *CatalogConfig) LoaderConfig() *catalog.LoaderConfig {
	lc := catalog.DefaultLoaderConfig()
	lc.Strict = c.Strict
	if c.MaxFileSize > 0 {
		lc.MaxFileSize = c.MaxFileSize
	}
	return lc
}

// WatcherConfig returns the file watcher configuration for the catalog path.
func (c *CatalogConfig) WatcherConfig() *catalog.WatcherConfig {
	wc := catalog.DefaultWatcherConfig()
	wc.Path = c.Path
	if c.DebounceInterval > 0 {
		wc.DebounceInterval = c.DebounceInterval
	}
	return wc
}
