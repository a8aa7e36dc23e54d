package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/meridian/pkg/rules/derive"
	"mercator-hq/meridian/pkg/rules/eval"
)

// Config configures metric collection.
type Config struct {
	Enabled bool `yaml:"enabled"`
	// Path is the HTTP path of the scrape endpoint (default: /metrics).
	Path string `yaml:"path"`
	// ListenAddress is where `meridian watch` serves the endpoint (default: 127.0.0.1:9464).
	ListenAddress string `yaml:"listen_address"`
	Namespace     string `yaml:"namespace"`
	Subsystem     string `yaml:"subsystem"`
	// RunDurationBuckets are histogram buckets in seconds.
	RunDurationBuckets []float64 `yaml:"run_duration_buckets"`
	// MaxAttributes caps the number of distinct attribute label values.
	MaxAttributes int `yaml:"max_attributes"`
}

// DefaultConfig returns the default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		Path:          "/metrics",
		ListenAddress: "127.0.0.1:9464",
		Namespace:     "meridian",
		Subsystem:     "engine",
		// Runs are in-process and usually sub-millisecond.
		RunDurationBuckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		MaxAttributes:      1000,
	}
}

// Collector records derivation, cache and catalog metrics.
type Collector struct {
	config Config

	// registry is private to the collector so tests can build several.
	registry *prometheus.Registry

	// derivation records engine runs and per-attribute outcomes.
	derivation *DerivationMetrics

	// cache records lookup and pattern cache hits and misses.
	cache *CacheMetrics

	// catalog records reloads and the attribute count.
	catalog *CatalogMetrics

	// attributes folds attribute label values beyond MaxAttributes into
	// a single overflow label.
	attributes *CardinalityLimiter
}

var (
	_ derive.Observer    = (*Collector)(nil)
	_ eval.CacheObserver = (*Collector)(nil)
)

// NewCollector creates a collector registering into registry. A nil registry
// gets a fresh one. Zero fields of cfg take their defaults.
func NewCollector(cfg Config, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	def := DefaultConfig()
	if cfg.Namespace == "" {
		cfg.Namespace = def.Namespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = def.Subsystem
	}
	if len(cfg.RunDurationBuckets) == 0 {
		cfg.RunDurationBuckets = def.RunDurationBuckets
	}
	if cfg.MaxAttributes <= 0 {
		cfg.MaxAttributes = def.MaxAttributes
	}

	return &Collector{
		config:     cfg,
		registry:   registry,
		derivation: NewDerivationMetrics(cfg, registry),
		cache:      NewCacheMetrics(cfg, registry),
		catalog:    NewCatalogMetrics(cfg, registry),
		attributes: NewCardinalityLimiter(cfg.MaxAttributes),
	}
}

// ObserveAttribute records the final state of one attribute.
func (c *Collector) ObserveAttribute(attribute string, state derive.State, kind derive.ErrorKind) {
	if !c.config.Enabled {
		return
	}
	if !c.attributes.Allow(attribute) {
		attribute = "other"
	}
	c.derivation.RecordAttribute(attribute, state.String(), string(kind))
}

// ObserveRun records a finished run.
func (c *Collector) ObserveRun(duration time.Duration, resolved, failed int) {
	if !c.config.Enabled {
		return
	}
	c.derivation.RecordRun(duration, resolved, failed)
}

// RecordHit records a cache hit.
func (c *Collector) RecordHit(cache string) {
	if !c.config.Enabled {
		return
	}
	c.cache.RecordHit(cache)
}

// RecordMiss records a cache miss.
func (c *Collector) RecordMiss(cache string) {
	if !c.config.Enabled {
		return
	}
	c.cache.RecordMiss(cache)
}

// UpdateSize sets the current entry count of a cache.
func (c *Collector) UpdateSize(cache string, size int) {
	if !c.config.Enabled {
		return
	}
	c.cache.UpdateSize(cache, size)
}

// RecordCatalogReload records a catalog reload attempt and, on success, the
// number of attributes now loaded.
func (c *Collector) RecordCatalogReload(err error, attributes int) {
	if !c.config.Enabled {
		return
	}
	c.catalog.RecordReload(err, attributes)
}

// Registry returns the registry metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter bounds the number of distinct label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting up to maxCardinality values.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value is already admitted or fits under the cap.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	_, exists := cl.current[value]
	cl.mu.RUnlock()
	if exists {
		return true
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the number of admitted values.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
