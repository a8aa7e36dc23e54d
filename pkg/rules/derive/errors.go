package derive

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies why an attribute could not be derived.
type ErrorKind string

const (
	KindCyclicDependency ErrorKind = "cyclic_dependency"
	KindMissingInput     ErrorKind = "missing_input"
	KindPropagatedEval   ErrorKind = "propagated_eval_error"
	KindInvalidRule      ErrorKind = "invalid_rule"
	KindDependencyFailed ErrorKind = "dependency_failed"
	KindAbandoned        ErrorKind = "abandoned"
	KindUnknownAttribute ErrorKind = "unknown_attribute"
)

// Sentinel errors matched by errors.Is against a *DerivationError of the same kind.
var (
	ErrCyclicDependency = errors.New("cyclic dependency")
	ErrMissingInput     = errors.New("missing input")
	ErrPropagatedEval   = errors.New("evaluation failed")
	ErrInvalidRule      = errors.New("invalid rule")
	ErrDependencyFailed = errors.New("dependency failed")
	ErrAbandoned        = errors.New("derivation abandoned")
	ErrUnknownAttribute = errors.New("unknown attribute")
)

var kindSentinels = map[ErrorKind]error{
	KindCyclicDependency: ErrCyclicDependency,
	KindMissingInput:     ErrMissingInput,
	KindPropagatedEval:   ErrPropagatedEval,
	KindInvalidRule:      ErrInvalidRule,
	KindDependencyFailed: ErrDependencyFailed,
	KindAbandoned:        ErrAbandoned,
	KindUnknownAttribute: ErrUnknownAttribute,
}

// DerivationError explains why a single attribute failed.
type DerivationError struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Attribute is the attribute that failed.
	Attribute string

	// Cycle holds the sorted members of the cycle, for cyclic dependencies.
	Cycle []string

	// Input is the absent input, for missing inputs.
	Input string

	// Dependency is the failed upstream attribute, for dependency failures.
	Dependency string

	// Cause is the parse, evaluation or context error, if any.
	Cause error
}

// Error returns the error message.
func (e *DerivationError) Error() string {
	switch e.Kind {
	case KindCyclicDependency:
		return fmt.Sprintf("attribute %q: cyclic dependency among %s", e.Attribute, strings.Join(e.Cycle, ", "))
	case KindMissingInput:
		return fmt.Sprintf("attribute %q: missing input %q", e.Attribute, e.Input)
	case KindPropagatedEval:
		return fmt.Sprintf("attribute %q: evaluation failed: %v", e.Attribute, e.Cause)
	case KindInvalidRule:
		return fmt.Sprintf("attribute %q: invalid rule: %v", e.Attribute, e.Cause)
	case KindDependencyFailed:
		return fmt.Sprintf("attribute %q: dependency %q failed", e.Attribute, e.Dependency)
	case KindAbandoned:
		return fmt.Sprintf("attribute %q: derivation abandoned: %v", e.Attribute, e.Cause)
	case KindUnknownAttribute:
		return fmt.Sprintf("attribute %q is not defined", e.Attribute)
	}
	return fmt.Sprintf("attribute %q: %s", e.Attribute, e.Kind)
}

// Unwrap returns the underlying cause.
func (e *DerivationError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel for e's kind.
func (e *DerivationError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}
