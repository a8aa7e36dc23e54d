package validator

import (
	"fmt"

	"mercator-hq/meridian/pkg/dsl/ast"
	"mercator-hq/meridian/pkg/dsl/diagnostics"
	"mercator-hq/meridian/pkg/rules/eval"
)

// FunctionValidator checks that every called function exists and receives
// an acceptable number of arguments.
type FunctionValidator struct {
	registry *eval.Registry
}

// NewFunctionValidator creates a function validator.
func NewFunctionValidator(registry *eval.Registry) *FunctionValidator {
	return &FunctionValidator{registry: registry}
}

// Validate reports unknown functions and arity errors in expr.
func (fv *FunctionValidator) Validate(expr ast.Expression) []diagnostics.Diagnostic {
	var out []diagnostics.Diagnostic
	ast.Walk(expr, func(e ast.Expression) bool {
		call, ok := e.(*ast.FunctionCall)
		if !ok {
			return true
		}
		rng := diagnostics.Range{Start: call.Pos.Start, End: call.Pos.End}

		b, ok := fv.registry.Lookup(call.Name)
		if !ok {
			out = append(out, diagnostics.Diagnostic{
				Range:      rng,
				Severity:   diagnostics.SeverityError,
				Message:    fmt.Sprintf("unknown function %s", call.Name),
				Code:       diagnostics.CodeUnknownFunction,
				Suggestion: diagnostics.Suggest(call.Name, fv.registry.Names()),
			})
			return true
		}
		if err := b.CheckArity(len(call.Args)); err != nil {
			d := diagnostics.Diagnostic{
				Range:    rng,
				Severity: diagnostics.SeverityError,
				Message:  err.Error(),
				Code:     diagnostics.CodeArity,
			}
			if b.Signature != "" {
				d.Suggestion = "usage: " + b.Signature
			}
			out = append(out, d)
		}
		return true
	})
	return out
}
