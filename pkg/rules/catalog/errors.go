package catalog

import (
	"fmt"
	"strings"

	"mercator-hq/meridian/pkg/dsl/diagnostics"
)

// LoadError is a file system failure while reading catalog files.
type LoadError struct {
	FilePath string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load catalog file %q: %s: %v", e.FilePath, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load catalog file %q: %s", e.FilePath, e.Message)
}

// Unwrap returns the underlying cause.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// ParseError is a YAML decoding failure.
type ParseError struct {
	FilePath string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse error in %q: %s: %v", e.FilePath, e.Message, e.Cause)
	}
	return fmt.Sprintf("parse error in %q: %s", e.FilePath, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// ValidationError is a structural problem with one attribute definition.
type ValidationError struct {
	FilePath  string
	Attribute string
	Field     string
	Message   string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := []string{"validation error"}
	if e.FilePath != "" {
		parts = append(parts, fmt.Sprintf("in %q", e.FilePath))
	}
	if e.Attribute != "" {
		parts = append(parts, fmt.Sprintf("for attribute %q", e.Attribute))
	}
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("at %s", e.Field))
	}
	parts = append(parts, e.Message)
	return strings.Join(parts, " ")
}

// RuleError reports rules rejected by the validator in strict mode.
type RuleError struct {
	Diagnostics []diagnostics.Diagnostic
}

// Error implements the error interface.
func (e *RuleError) Error() string {
	n := diagnostics.Count(e.Diagnostics, diagnostics.SeverityError)
	if n == 1 {
		for _, d := range e.Diagnostics {
			if d.Severity == diagnostics.SeverityError {
				return fmt.Sprintf("invalid rule for attribute %q: %s", d.Attribute, d.Message)
			}
		}
	}
	return fmt.Sprintf("%d invalid rules", n)
}

// ErrorList collects independent failures from a multi-file load.
type ErrorList struct {
	Errors []error
}

// Add appends err.
func (e *ErrorList) Add(err error) {
	e.Errors = append(e.Errors, err)
}

// HasErrors reports whether any error was collected.
func (e *ErrorList) HasErrors() bool {
	return len(e.Errors) > 0
}

// Err returns nil for an empty list and the list itself otherwise.
func (e *ErrorList) Err() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// Error implements the error interface.
func (e *ErrorList) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %v\n", i+1, err))
	}
	return sb.String()
}

// Unwrap returns the collected errors for errors.Is and errors.As.
func (e *ErrorList) Unwrap() []error {
	return e.Errors
}
