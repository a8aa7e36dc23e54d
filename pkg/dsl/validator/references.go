package validator

import (
	"fmt"
	"sort"

	"mercator-hq/meridian/pkg/dsl/ast"
	"mercator-hq/meridian/pkg/dsl/diagnostics"
)

// ReferenceValidator checks the identifiers a rule reads.
type ReferenceValidator struct {
	known map[string]struct{}
	names []string
}

// NewReferenceValidator creates a reference validator with no known attributes.
func NewReferenceValidator() *ReferenceValidator {
	return &ReferenceValidator{}
}

// SetAttributes replaces the set of known attribute names.
func (rv *ReferenceValidator) SetAttributes(names []string) {
	rv.known = make(map[string]struct{}, len(names))
	for _, n := range names {
		rv.known[n] = struct{}{}
	}
	rv.names = append([]string(nil), names...)
	sort.Strings(rv.names)
}

// Validate warns about identifiers that are not known attributes and about
// identifiers missing from a non-empty dependency list. Each occurrence is
// reported. Assignment targets are not reads and are skipped.
func (rv *ReferenceValidator) Validate(expr ast.Expression, dependencies []string) []diagnostics.Diagnostic {
	declared := make(map[string]struct{}, len(dependencies))
	for _, d := range dependencies {
		declared[d] = struct{}{}
	}

	var out []diagnostics.Diagnostic
	ast.Walk(expr, func(e ast.Expression) bool {
		id, ok := e.(*ast.Identifier)
		if !ok {
			return true
		}
		rng := diagnostics.Range{Start: id.Pos.Start, End: id.Pos.End}

		if rv.known != nil {
			if _, ok := rv.known[id.Name]; !ok {
				out = append(out, diagnostics.Diagnostic{
					Range:      rng,
					Severity:   diagnostics.SeverityWarning,
					Message:    fmt.Sprintf("attribute %q is not defined", id.Name),
					Code:       diagnostics.CodeUnknownAttribute,
					Suggestion: diagnostics.Suggest(id.Name, rv.names),
				})
			}
		}
		if len(declared) > 0 {
			if _, ok := declared[id.Name]; !ok {
				out = append(out, diagnostics.Diagnostic{
					Range:    rng,
					Severity: diagnostics.SeverityWarning,
					Message:  fmt.Sprintf("rule reads %q but does not declare it as a dependency", id.Name),
					Code:     diagnostics.CodeUndeclaredDependency,
				})
			}
		}
		return true
	})
	return out
}
