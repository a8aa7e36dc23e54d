package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Storage persists audit records.
type Storage interface {
	// Store persists a record. Storing an existing ID replaces it.
	Store(ctx context.Context, record *Record) error
	// Get returns the record with id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)
	// List returns records matching q, newest first.
	List(ctx context.Context, q *Query) ([]*Record, error)
	// Prune deletes records started before the cutoff and returns how many were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

// Config selects the audit backend and its retention policy.
type Config struct {
	Enabled bool `yaml:"enabled"`
	// Backend is "memory" or "sqlite" (default: sqlite).
	Backend   string          `yaml:"backend"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Retention RetentionConfig `yaml:"retention"`
	// RecordFacts retains the input facts alongside outcomes.
	RecordFacts bool `yaml:"record_facts"`
}

// DefaultConfig returns the default audit configuration. Auditing is off.
func DefaultConfig() *Config {
	return &Config{
		Enabled:     false,
		Backend:     "sqlite",
		SQLite:      *DefaultSQLiteConfig(),
		Retention:   RetentionConfig{RetentionDays: 90, Schedule: "0 3 * * *"},
		RecordFacts: true,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch strings.ToLower(c.Backend) {
	case "memory":
	case "", "sqlite":
		if c.SQLite.Path == "" {
			return fmt.Errorf("audit sqlite backend requires a path")
		}
	default:
		return fmt.Errorf("unknown audit backend %q, want memory or sqlite", c.Backend)
	}
	if c.Retention.RetentionDays < 0 {
		return fmt.Errorf("retention_days must be non-negative, got %d", c.Retention.RetentionDays)
	}
	return nil
}

// Open creates the storage backend described by cfg.
func Open(cfg *Config, logger *slog.Logger) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(cfg.Backend) {
	case "memory":
		return NewMemoryStorage(), nil
	default:
		sc := cfg.SQLite
		return NewSQLiteStorage(&sc, logger)
	}
}
