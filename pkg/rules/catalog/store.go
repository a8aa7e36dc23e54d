package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/meridian/pkg/rules/derive"
)

// Source produces a fresh catalog on demand.
type Source interface {
	Load(ctx context.Context) (*Catalog, error)
	// String describes the source for logs.
	String() string
}

// FileSource loads a catalog from a file or directory.
type FileSource struct {
	// Loader parses and validates the files.
	Loader *Loader

	// Path is a catalog file or a directory of them.
	Path string
}

// Load implements Source.
func (s *FileSource) Load(ctx context.Context) (*Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Loader.Load(s.Path)
}

func (s *FileSource) String() string { return s.Path }

// StaticSource always returns the same catalog.
type StaticSource struct {
	Catalog *Catalog
}

// Load implements Source.
func (s StaticSource) Load(context.Context) (*Catalog, error) { return s.Catalog, nil }

func (s StaticSource) String() string { return "static" }

// Status describes the last reload.
type Status struct {
	// Source describes where the catalog comes from.
	Source string

	// Attributes is the attribute count of the current catalog.
	Attributes int

	// LoadedAt is when the current catalog was loaded.
	LoadedAt time.Time

	// LastReload is when a reload was last attempted, successful or not.
	LastReload time.Time

	// LastError is the error of the last attempt, nil when it succeeded.
	LastError error

	// Reloads counts attempts, failed ones included.
	Reloads int
}

// Store holds the current catalog and replaces it on reload. A failed reload
// keeps the previous catalog in place.
type Store struct {
	source Source
	logger *slog.Logger

	// mu protects the fields below.
	mu sync.RWMutex

	// current is the live catalog. It is nil until the first successful
	// Reload.
	current *Catalog

	status Status

	// subscribers are called with each newly installed catalog.
	subscribers []func(*Catalog)
}

// NewStore creates a store. Call Reload before reading from it.
func NewStore(source Source, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		source: source,
		logger: logger.With("component", "catalog_store"),
		status: Status{Source: source.String()},
	}
}

// Reload loads the catalog from the source and swaps it in.
func (s *Store) Reload(ctx context.Context) error {
	start := time.Now()
	c, err := s.source.Load(ctx)

	s.mu.Lock()
	s.status.LastReload = start
	s.status.Reloads++
	if err != nil {
		s.status.LastError = err
		hasPrevious := s.current != nil
		s.mu.Unlock()
		s.logger.Error("catalog reload failed",
			"source", s.source.String(),
			"keeping_previous", hasPrevious,
			"error", err,
		)
		return fmt.Errorf("reload catalog from %s: %w", s.source, err)
	}
	s.current = c
	s.status.LastError = nil
	s.status.LoadedAt = c.LoadedAt
	s.status.Attributes = c.Len()
	subscribers := append([]func(*Catalog){}, s.subscribers...)
	s.mu.Unlock()

	s.logger.Info("catalog reloaded",
		"source", s.source.String(),
		"attributes", c.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	for _, fn := range subscribers {
		fn(c)
	}
	return nil
}

// Subscribe registers fn to be called with every newly loaded catalog.
func (s *Store) Subscribe(fn func(*Catalog)) {
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.mu.Unlock()
}

// Current returns the current catalog, or nil before the first successful load.
func (s *Store) Current() *Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Attributes returns the current attributes.
func (s *Store) Attributes() []derive.Attribute {
	c := s.Current()
	if c == nil {
		return nil
	}
	return c.Attributes()
}

// Get returns the current definition of name.
func (s *Store) Get(name string) (derive.Attribute, bool) {
	c := s.Current()
	if c == nil {
		return derive.Attribute{}, false
	}
	return c.Get(name)
}

// Status returns a snapshot of the reload state.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}
