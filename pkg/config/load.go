package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MERIDIAN_"

// LoadConfig loads configuration from a YAML file. File values are decoded
// over the defaults, then ApplyDefaults and Validate run. Environment
// variables are not consulted; see LoadConfigWithEnvOverrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and applies ApplyDefaults. It does
// not validate.
func Parse(data []byte) (*Config, error) {
	cfg := NewDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration and applies environment
// overrides named MERIDIAN_SECTION_FIELD (e.g. MERIDIAN_CATALOG_PATH).
// An empty path starts from the defaults instead of a file.
//
// The loading sequence is:
//  1. Defaults
//  2. YAML file, if any
//  3. Environment overrides
//  4. Validation
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = NewDefaultConfig()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

// applyEnvOverrides applies MERIDIAN_* environment variables. Values that do
// not parse are ignored.
func applyEnvOverrides(cfg *Config) {
	// Engine
	envString("ENGINE_LOOKUP_MISS", &cfg.Engine.LookupMiss)
	envBool("ENGINE_CHECK_DECLARED_TYPES", &cfg.Engine.CheckDeclaredTypes)
	envDuration("ENGINE_TIMEOUT", &cfg.Engine.Timeout)
	envInt("ENGINE_PATTERN_CACHE_SIZE", &cfg.Engine.PatternCacheSize)

	// DSL
	envString("DSL_GRAMMAR_FILE", &cfg.DSL.GrammarFile)
	envInt("DSL_MAX_DEPTH", &cfg.DSL.MaxDepth)

	// Catalog
	envString("CATALOG_SOURCE", &cfg.Catalog.Source)
	envString("CATALOG_PATH", &cfg.Catalog.Path)
	envBool("CATALOG_STRICT", &cfg.Catalog.Strict)
	envBool("CATALOG_WATCH", &cfg.Catalog.Watch)
	envString("CATALOG_GIT_REPOSITORY", &cfg.Catalog.Git.Repository)
	envString("CATALOG_GIT_BRANCH", &cfg.Catalog.Git.Branch)
	envString("CATALOG_GIT_PATH", &cfg.Catalog.Git.Path)
	envString("CATALOG_GIT_LOCAL_PATH", &cfg.Catalog.Git.LocalPath)
	envString("CATALOG_GIT_AUTH_TYPE", &cfg.Catalog.Git.Auth.Type)
	envString("CATALOG_GIT_AUTH_TOKEN", &cfg.Catalog.Git.Auth.Token)
	envString("CATALOG_GIT_AUTH_SSH_KEY_PATH", &cfg.Catalog.Git.Auth.SSHKeyPath)
	envDuration("CATALOG_GIT_POLL_INTERVAL", &cfg.Catalog.Git.PollInterval)

	// Lookup
	envString("LOOKUP_DRIVER", &cfg.Lookup.Driver)
	envString("LOOKUP_PATH", &cfg.Lookup.Path)
	envInt("LOOKUP_CACHE_SIZE", &cfg.Lookup.CacheSize)

	// Audit
	envBool("AUDIT_ENABLED", &cfg.Audit.Enabled)
	envString("AUDIT_BACKEND", &cfg.Audit.Backend)
	envString("AUDIT_SQLITE_PATH", &cfg.Audit.SQLite.Path)
	envInt("AUDIT_RETENTION_DAYS", &cfg.Audit.Retention.RetentionDays)
	envString("AUDIT_RETENTION_SCHEDULE", &cfg.Audit.Retention.Schedule)

	// Server
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	envBool("SERVER_ENABLE_DERIVE", &cfg.Server.EnableDerive)

	// Telemetry
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_LOGGING_REDACT_PII", &cfg.Telemetry.Logging.RedactPII)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envString("TELEMETRY_METRICS_LISTEN_ADDRESS", &cfg.Telemetry.Metrics.ListenAddress)
}
