package config

import (
	"fmt"
	"os"
	"strings"
)

// FieldError is a validation error for one configuration field.
type FieldError struct {
	// Field is the dotted path to the field (e.g. "catalog.path").
	Field   string
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every field error found in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate checks the whole configuration and returns a ValidationError
// listing every problem, or nil.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateEngine(&cfg.Engine)...)
	errs = append(errs, validateDSL(&cfg.DSL)...)
	errs = append(errs, validateCatalog(&cfg.Catalog)...)

	if err := cfg.Lookup.Validate(); err != nil {
		errs = append(errs, FieldError{Field: "lookup", Message: err.Error()})
	}
	if err := cfg.Audit.Validate(); err != nil {
		errs = append(errs, FieldError{Field: "audit", Message: err.Error()})
	}

	if err := cfg.Server.Validate(); err != nil {
		errs = append(errs, FieldError{Field: "server", Message: err.Error()})
	}

	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateEngine(cfg *EngineConfig) []FieldError {
	var errs []FieldError
	if cfg.PatternCacheSize < 0 {
		errs = append(errs, FieldError{Field: "engine.pattern_cache_size", Message: "pattern cache size must be non-negative"})
	} else if err := cfg.EvalConfig().Validate(); err != nil {
		errs = append(errs, FieldError{Field: "engine.lookup_miss", Message: err.Error()})
	}
	if cfg.Timeout < 0 {
		errs = append(errs, FieldError{Field: "engine.timeout", Message: "timeout must be non-negative"})
	}
	return errs
}

func validateDSL(cfg *DSLConfig) []FieldError {
	var errs []FieldError
	if cfg.MaxDepth < 0 {
		errs = append(errs, FieldError{Field: "dsl.max_depth", Message: "max depth must be non-negative"})
	}
	if cfg.GrammarFile != "" {
		if _, err := os.Stat(cfg.GrammarFile); err != nil {
			errs = append(errs, FieldError{Field: "dsl.grammar_file", Message: fmt.Sprintf("grammar file not accessible: %v", err)})
		}
	}
	return errs
}

func validateCatalog(cfg *CatalogConfig) []FieldError {
	var errs []FieldError
	switch cfg.Source {
	case "file":
		if cfg.Path == "" {
			errs = append(errs, FieldError{Field: "catalog.path", Message: "path is required for file catalogs"})
		}
	case "git":
		if err := cfg.Git.Validate(); err != nil {
			errs = append(errs, FieldError{Field: "catalog.git", Message: err.Error()})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "catalog.source",
			Message: fmt.Sprintf("invalid source %q: must be 'file' or 'git'", cfg.Source),
		})
	}
	if cfg.MaxFileSize < 0 {
		errs = append(errs, FieldError{Field: "catalog.max_file_size", Message: "max file size must be non-negative"})
	}
	if cfg.DebounceInterval < 0 {
		errs = append(errs, FieldError{Field: "catalog.debounce_interval", Message: "debounce interval must be non-negative"})
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError
	if err := cfg.Logging.Validate(); err != nil {
		errs = append(errs, FieldError{Field: "telemetry.logging", Message: err.Error()})
	}
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Path == "" || !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.path",
				Message: fmt.Sprintf("metrics path %q must start with '/'", cfg.Metrics.Path),
			})
		}
		if cfg.Metrics.MaxAttributes < 0 {
			errs = append(errs, FieldError{Field: "telemetry.metrics.max_attributes", Message: "must be non-negative"})
		}
	}
	return errs
}
