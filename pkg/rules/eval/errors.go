package eval

import (
	"errors"
	"fmt"
	"strings"

	"mercator-hq/meridian/pkg/dsl/ast"
)

// ErrorKind classifies evaluation failures.
type ErrorKind string

const (
	KindUnknownAttribute ErrorKind = "unknown_attribute"
	KindTypeMismatch     ErrorKind = "type_mismatch"
	KindDivisionByZero   ErrorKind = "division_by_zero"
	KindFunctionArgument ErrorKind = "function_argument"
	KindLookupMiss       ErrorKind = "lookup_miss"
	KindLookupFailed     ErrorKind = "lookup_failed"
	KindRegexCompile     ErrorKind = "regex_compile"
)

// Sentinel errors matched by errors.Is against an *EvalError of the same kind.
var (
	ErrUnknownAttribute = errors.New("unknown attribute")
	ErrTypeMismatch     = errors.New("type mismatch")
	ErrDivisionByZero   = errors.New("division by zero")
	ErrFunctionArgument = errors.New("function argument error")
	ErrLookupMiss       = errors.New("lookup miss")
	ErrLookupFailed     = errors.New("lookup failed")
	ErrRegexCompile     = errors.New("regex compile error")
)

var kindSentinels = map[ErrorKind]error{
	KindUnknownAttribute: ErrUnknownAttribute,
	KindTypeMismatch:     ErrTypeMismatch,
	KindDivisionByZero:   ErrDivisionByZero,
	KindFunctionArgument: ErrFunctionArgument,
	KindLookupMiss:       ErrLookupMiss,
	KindLookupFailed:     ErrLookupFailed,
	KindRegexCompile:     ErrRegexCompile,
}

// EvalError describes why an expression could not be evaluated.
type EvalError struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Message describes the failure without the kind prefix.
	Message string

	// Attribute is the undefined name, for unknown attributes.
	Attribute string

	// Function is the function name, for function and lookup failures.
	Function string

	// Span locates the node that failed in the rule text.
	Span ast.Span

	// Cause is the underlying error, such as a provider or regex error.
	Cause error
}

// Error returns the error message.
func (e *EvalError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	if e.Function != "" {
		sb.WriteString(" in ")
		sb.WriteString(e.Function)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *EvalError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel for e's kind.
func (e *EvalError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func newError(kind ErrorKind, format string, args ...any) *EvalError {
	return &EvalError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func unknownAttribute(name string) *EvalError {
	return &EvalError{
		Kind:      KindUnknownAttribute,
		Message:   fmt.Sprintf("attribute %q is not defined", name),
		Attribute: name,
	}
}

func typeMismatch(format string, args ...any) *EvalError {
	return newError(KindTypeMismatch, format, args...)
}

// overflow reports integer arithmetic whose result leaves the int64 range.
func overflow(format string, args ...any) *EvalError {
	return newError(KindTypeMismatch, "integer overflow: "+format, args...)
}

// ArgumentError builds a function argument error. Builtins return it for
// arguments of the wrong kind or out of range.
func ArgumentError(format string, args ...any) *EvalError {
	return newError(KindFunctionArgument, format, args...)
}

// withSpan attaches span to err when err is an *EvalError without position.
func withSpan(err error, span ast.Span) error {
	var ee *EvalError
	if errors.As(err, &ee) && ee.Span.IsZero() {
		ee.Span = span
	}
	return err
}
