package diagnostics

import (
	"fmt"
	"sort"
	"strings"
)

// Severity ranks how serious a diagnostic is.
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInfo
)

// String returns the lower-case severity name.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "error":
		*s = SeverityError
	case "warning":
		*s = SeverityWarning
	case "info":
		*s = SeverityInfo
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

// Code identifies the class of a diagnostic.
type Code string

const (
	CodeParseError           Code = "parse_error"
	CodeUnknownAttribute     Code = "unknown_attribute"
	CodeTypeMismatch         Code = "type_mismatch"
	CodeDivisionByZero       Code = "division_by_zero"
	CodeFunctionArgument     Code = "function_argument"
	CodeLookupMiss           Code = "lookup_miss"
	CodeLookupFailed         Code = "lookup_failed"
	CodeRegexCompile         Code = "regex_compile"
	CodeCyclicDependency     Code = "cyclic_dependency"
	CodeMissingInput         Code = "missing_input"
	CodePropagatedEval       Code = "propagated_eval_error"
	CodeInvalidRule          Code = "invalid_rule"
	CodeDependencyFailed     Code = "dependency_failed"
	CodeAbandoned            Code = "abandoned"
	CodeInternal             Code = "internal"
	CodeUnknownFunction      Code = "unknown_function"
	CodeArity                Code = "arity"
	CodeUndeclaredDependency Code = "undeclared_dependency"
	CodeCatalog              Code = "catalog_error"
	CodeUnsupportedTarget    Code = "unsupported_target"
)

// Range is a half-open byte range into the rule source. A zero Range means
// the diagnostic is not tied to a position.
type Range struct {
	// Start is the first byte offset covered.
	Start int `json:"start"`

	// End is one past the last byte offset covered.
	End int `json:"end"`
}

// IsZero reports whether the range is unset.
func (r Range) IsZero() bool { return r.Start == 0 && r.End == 0 }

// Diagnostic is a position-aware message for an editor or terminal.
type Diagnostic struct {
	// Range is the source span the message refers to. A zero range means
	// the whole expression.
	Range Range `json:"range"`

	// Severity is error, warning or info.
	Severity Severity `json:"severity"`

	// Message is the human-readable description.
	Message string `json:"message"`

	// Code is the stable machine-readable identifier.
	Code Code `json:"code"`

	// Attribute names the attribute involved, if any.
	Attribute string `json:"attribute,omitempty"`

	// Suggestion is an optional fix hint such as a near-miss function name.
	Suggestion string `json:"suggestion,omitempty"`
}

// String renders the diagnostic on one line.
func (d Diagnostic) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s[%s]", d.Severity, d.Code))
	if d.Attribute != "" {
		sb.WriteString(" ")
		sb.WriteString(d.Attribute)
	}
	if !d.Range.IsZero() {
		sb.WriteString(fmt.Sprintf(" %d..%d", d.Range.Start, d.Range.End))
	}
	sb.WriteString(": ")
	sb.WriteString(d.Message)
	if d.Suggestion != "" {
		sb.WriteString(" (")
		sb.WriteString(d.Suggestion)
		sb.WriteString(")")
	}
	return sb.String()
}

// HasErrors reports whether any diagnostic has error severity.
func HasErrors(ds []Diagnostic) bool {
	for _, d := range ds {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Count returns how many diagnostics have severity s.
func Count(ds []Diagnostic, s Severity) int {
	n := 0
	for _, d := range ds {
		if d.Severity == s {
			n++
		}
	}
	return n
}

// Sort orders diagnostics by attribute, then position, then severity.
func Sort(ds []Diagnostic) {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i], ds[j]
		if a.Attribute != b.Attribute {
			return a.Attribute < b.Attribute
		}
		if a.Range.Start != b.Range.Start {
			return a.Range.Start < b.Range.Start
		}
		return a.Severity < b.Severity
	})
}
