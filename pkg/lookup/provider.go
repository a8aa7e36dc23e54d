package lookup

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mercator-hq/meridian/pkg/rules/eval"
)

// Provider is a lookup source that holds resources.
type Provider interface {
	eval.LookupProvider
	Close() error
}

// Config selects and configures a provider.
type Config struct {
	// Driver is "memory", "yaml", "sqlite" or "bolt" (default: memory).
	Driver string `yaml:"driver"`
	// Path is the YAML file or database file for file-backed drivers.
	Path string `yaml:"path"`
	// BusyTimeout bounds lock waits for database drivers (default: 5s).
	BusyTimeout time.Duration `yaml:"busy_timeout"`
	// CacheSize enables a read-through cache of this many entries. Zero disables it.
	CacheSize int `yaml:"cache_size"`
}

// DefaultConfig returns the default lookup configuration.
func DefaultConfig() *Config {
	return &Config{Driver: "memory", BusyTimeout: 5 * time.Second}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Driver) {
	case "", "memory":
	case "yaml", "sqlite", "bolt":
		if c.Path == "" {
			return fmt.Errorf("lookup driver %q requires a path", c.Driver)
		}
	default:
		return fmt.Errorf("unknown lookup driver %q, want memory, yaml, sqlite or bolt", c.Driver)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must be non-negative, got %d", c.CacheSize)
	}
	return nil
}

// Open creates the provider described by cfg. When CacheSize is positive the
// provider is wrapped in a CachingProvider reporting to observer.
func Open(cfg *Config, observer eval.CacheObserver, logger *slog.Logger) (Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	var (
		p   Provider
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		p = NewMemoryProvider(nil)
	case "yaml":
		p, err = LoadYAMLFile(cfg.Path)
	case "sqlite":
		p, err = NewSQLiteProvider(SQLiteConfig{Path: cfg.Path, BusyTimeout: cfg.BusyTimeout})
	case "bolt":
		p, err = NewBoltProvider(cfg.Path, cfg.BusyTimeout)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("lookup provider opened", "component", "lookup", "driver", cfg.Driver, "path", cfg.Path, "cache_size", cfg.CacheSize)

	if cfg.CacheSize > 0 {
		return NewCachingProvider(p, cfg.CacheSize, observer), nil
	}
	return p, nil
}
