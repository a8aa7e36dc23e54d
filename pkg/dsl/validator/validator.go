package validator

import (
	"mercator-hq/meridian/pkg/dsl/ast"
	"mercator-hq/meridian/pkg/dsl/diagnostics"
	"mercator-hq/meridian/pkg/dsl/parser"
	"mercator-hq/meridian/pkg/rules/eval"
)

// Rule is a single rule to check.
type Rule struct {
	// Attribute is the attribute the rule computes. Optional.
	Attribute string
	// Source is the rule text. It is parsed when Expr is nil.
	Source string
	// Expr is the parsed rule.
	Expr ast.Expression
	// Dependencies is the declared dependency list. When empty, identifiers
	// are not checked against it.
	Dependencies []string
}

// Validator runs the static checks over a rule without evaluating it.
// It runs function checks and reference checks and collects the findings of both.
type Validator struct {
	parser     *parser.Parser
	functions  *FunctionValidator
	references *ReferenceValidator
}

// NewValidator creates a validator against registry's function signatures.
// A nil registry selects eval.DefaultRegistry.
func NewValidator(registry *eval.Registry) *Validator {
	if registry == nil {
		registry = eval.DefaultRegistry()
	}
	return &Validator{
		parser:     parser.NewParser(),
		functions:  NewFunctionValidator(registry),
		references: NewReferenceValidator(),
	}
}

// WithParser sets the parser used for rules given as source text.
func (v *Validator) WithParser(p *parser.Parser) *Validator {
	v.parser = p
	return v
}

// WithAttributes sets the known attribute names. Without them identifiers
// are only checked against declared dependencies.
func (v *Validator) WithAttributes(names ...string) *Validator {
	v.references.SetAttributes(names)
	return v
}

// Validate checks rule and returns its diagnostics sorted by position.
// A rule that does not parse yields a single parse diagnostic.
func (v *Validator) Validate(rule Rule) []diagnostics.Diagnostic {
	expr := rule.Expr
	if expr == nil {
		var err error
		expr, err = v.parser.Parse(rule.Source)
		if err != nil {
			d := diagnostics.FromError(err)
			d.Attribute = rule.Attribute
			return []diagnostics.Diagnostic{d}
		}
	}

	var out []diagnostics.Diagnostic
	out = append(out, v.functions.Validate(expr)...)
	out = append(out, v.references.Validate(expr, rule.Dependencies)...)
	for i := range out {
		out[i].Attribute = rule.Attribute
	}
	diagnostics.Sort(out)
	return out
}

// ValidateSource is Validate for a bare rule text.
func (v *Validator) ValidateSource(source string) []diagnostics.Diagnostic {
	return v.Validate(Rule{Source: source})
}
