package parser

import (
	"fmt"
	"strings"

	"mercator-hq/meridian/pkg/dsl/ast"
)

// ParseError reports the first point at which the source stopped matching
// the grammar. Offsets are byte offsets into the rule source.
type ParseError struct {
	Offset   int      // Start of the offending input
	End      int      // End of the offending input
	Expected []string // What the parser would have accepted
	Found    string   // What it saw instead
	Message  string   // Optional override for the summary line
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("parse error at offset %d: %s", e.Offset, e.Message)
	}
	return fmt.Sprintf("parse error at offset %d: expected %s, found %s", e.Offset, expectedList(e.Expected), e.Found)
}

// Span returns the source range of the offending input.
func (e *ParseError) Span() ast.Span {
	end := e.End
	if end < e.Offset {
		end = e.Offset
	}
	return ast.Span{Start: e.Offset, End: end}
}

func expectedList(items []string) string {
	switch len(items) {
	case 0:
		return "expression"
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " or " + items[len(items)-1]
}

func errorAt(tok token, expected ...string) *ParseError {
	return &ParseError{
		Offset:   tok.pos.Start,
		End:      tok.pos.End,
		Expected: expected,
		Found:    tok.describe(),
	}
}
