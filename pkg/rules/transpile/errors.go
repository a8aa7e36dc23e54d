package transpile

import (
	"errors"
	"fmt"

	"mercator-hq/meridian/pkg/dsl/ast"
)

// ErrUnsupported is matched by errors.Is against an *UnsupportedError.
var ErrUnsupported = errors.New("not expressible in SQL")

// UnsupportedError reports a construct that has no SQL rendering.
type UnsupportedError struct {
	// Construct names what could not be rendered, e.g. "function LOOKUP".
	Construct string

	// Span locates the construct in the rule source.
	Span ast.Span
}

// Error returns the error message.
func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s is not expressible in SQL", e.Construct)
}

// Is reports whether target is ErrUnsupported.
func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupported
}

func unsupported(span ast.Span, format string, args ...any) error {
	return &UnsupportedError{Construct: fmt.Sprintf(format, args...), Span: span}
}
