package diagnostics

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Position is a 1-based line and column. Columns count runes.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// String returns "line:column".
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Locate converts a byte offset in source into a line and column. Offsets
// past the end are clamped to the end of source.
func Locate(source string, offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(source) {
		offset = len(source)
	}
	before := source[:offset]
	line := strings.Count(before, "\n") + 1
	lineStart := strings.LastIndexByte(before, '\n') + 1
	return Position{Line: line, Column: utf8.RuneCountInString(before[lineStart:]) + 1}
}

// DefaultContextLines is the number of lines shown around a diagnostic.
const DefaultContextLines = 2

// Render formats d with the surrounding source lines and a caret marker under
// the offending range.
func Render(source string, d Diagnostic) string {
	return RenderContext(source, d, DefaultContextLines)
}

// RenderContext is Render with a configurable number of context lines.
func RenderContext(source string, d Diagnostic, contextLines int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s[%s]: %s\n", d.Severity, d.Code, d.Message))

	if source != "" && (!d.Range.IsZero() || d.Code == CodeParseError) {
		start := Locate(source, d.Range.Start)
		end := Locate(source, d.Range.End)
		if d.Attribute != "" {
			sb.WriteString(fmt.Sprintf("  --> %s:%s\n", d.Attribute, start))
		} else {
			sb.WriteString(fmt.Sprintf("  --> %s\n", start))
		}
		sb.WriteString(excerpt(source, start, end, contextLines))
	} else if d.Attribute != "" {
		sb.WriteString(fmt.Sprintf("  --> %s\n", d.Attribute))
	}

	if d.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  = suggestion: %s\n", d.Suggestion))
	}
	return sb.String()
}

func excerpt(source string, start, end Position, contextLines int) string {
	lines := strings.Split(source, "\n")
	errorLine := start.Line - 1
	first := max(errorLine-contextLines, 0)
	last := min(errorLine+contextLines, len(lines)-1)
	width := len(fmt.Sprintf("%d", last+1))

	var sb strings.Builder
	for i := first; i <= last; i++ {
		prefix := "  "
		if i == errorLine {
			prefix = "->"
		}
		sb.WriteString(fmt.Sprintf("%s %*d | %s\n", prefix, width, i+1, lines[i]))

		if i != errorLine {
			continue
		}
		marks := 1
		if end.Line == start.Line && end.Column > start.Column {
			marks = end.Column - start.Column
		}
		sb.WriteString(fmt.Sprintf("   %s | %s%s\n",
			strings.Repeat(" ", width),
			strings.Repeat(" ", start.Column-1),
			strings.Repeat("^", marks),
		))
	}
	return sb.String()
}
