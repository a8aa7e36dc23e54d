package server

import (
	"fmt"
	"time"
)

// Config contains HTTP server settings.
type Config struct {
	// ListenAddress is the host:port to listen on. `meridian watch` fills it
	// from --listen or telemetry.metrics.listen_address.
	ListenAddress string `yaml:"-"`

	// ReadTimeout bounds reading a whole request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing a response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout closes idle keep-alive connections.
	// Default: 60s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is how long in-flight requests get to finish on shutdown.
	// Default: 5s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes caps request bodies.
	// Default: 1MB
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// MaxConcurrent caps in-flight requests; excess requests get 429.
	// Zero means no limit.
	// Default: 64
	MaxConcurrent int `yaml:"max_concurrent"`

	// EnableDerive serves POST /v1/derive.
	// Default: true
	EnableDerive bool `yaml:"enable_derive"`
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		MaxBodyBytes:    1 << 20,
		MaxConcurrent:   64,
		EnableDerive:    true,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	for name, d := range map[string]time.Duration{
		"read_timeout":     c.ReadTimeout,
		"write_timeout":    c.WriteTimeout,
		"idle_timeout":     c.IdleTimeout,
		"shutdown_timeout": c.ShutdownTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, d)
		}
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("max_body_bytes must be non-negative, got %d", c.MaxBodyBytes)
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("max_concurrent must be non-negative, got %d", c.MaxConcurrent)
	}
	return nil
}
