package diagnostics

import (
	"errors"
	"sort"

	"mercator-hq/meridian/pkg/dsl/ast"
	"mercator-hq/meridian/pkg/dsl/parser"
	"mercator-hq/meridian/pkg/rules/derive"
	"mercator-hq/meridian/pkg/rules/eval"
	"mercator-hq/meridian/pkg/rules/transpile"
)

// FromError translates a parse, evaluation, derivation or transpile error
// into a diagnostic. Any other error becomes an internal diagnostic without a range.
func FromError(err error) Diagnostic {
	var (
		derr *derive.DerivationError
		eerr *eval.EvalError
		perr *parser.ParseError
		uerr *transpile.UnsupportedError
	)
	switch {
	case errors.As(err, &derr):
		return fromDerivation(derr)
	case errors.As(err, &eerr):
		return fromEval(eerr)
	case errors.As(err, &perr):
		return fromParse(perr)
	case errors.As(err, &uerr):
		return Diagnostic{
			Range:    rangeOf(uerr.Span),
			Severity: SeverityError,
			Message:  uerr.Error(),
			Code:     CodeUnsupportedTarget,
		}
	case err == nil:
		return Diagnostic{Severity: SeverityInfo, Code: CodeInternal, Message: "no error"}
	}
	return Diagnostic{Severity: SeverityError, Code: CodeInternal, Message: err.Error()}
}

// FromResult returns a diagnostic for every failed attribute in result,
// requested or intermediate, sorted by attribute name.
func FromResult(result *derive.Result) []Diagnostic {
	if result == nil {
		return nil
	}
	names := make([]string, 0, len(result.Outcomes))
	for name, o := range result.Outcomes {
		if o.State == derive.StateFailed && o.Err != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := make([]Diagnostic, 0, len(names))
	for _, name := range names {
		out = append(out, fromDerivation(result.Outcomes[name].Err))
	}
	return out
}

func fromParse(err *parser.ParseError) Diagnostic {
	return Diagnostic{
		Range:    rangeOf(err.Span()),
		Severity: SeverityError,
		Message:  err.Error(),
		Code:     CodeParseError,
	}
}

func fromEval(err *eval.EvalError) Diagnostic {
	return Diagnostic{
		Range:     rangeOf(err.Span),
		Severity:  SeverityError,
		Message:   err.Error(),
		Code:      Code(err.Kind),
		Attribute: err.Attribute,
	}
}

func fromDerivation(err *derive.DerivationError) Diagnostic {
	d := Diagnostic{
		Severity:  SeverityError,
		Message:   err.Error(),
		Code:      Code(err.Kind),
		Attribute: err.Attribute,
	}
	if err.Kind == derive.KindAbandoned {
		d.Severity = SeverityWarning
	}

	// Point at the failing part of the attribute's own rule when the cause
	// carries a position. Dependency failures refer to another rule.
	if err.Kind == derive.KindDependencyFailed {
		return d
	}
	var (
		eerr *eval.EvalError
		perr *parser.ParseError
	)
	switch {
	case errors.As(err.Cause, &eerr):
		d.Range = rangeOf(eerr.Span)
	case errors.As(err.Cause, &perr):
		d.Range = rangeOf(perr.Span())
	}
	return d
}

func rangeOf(s ast.Span) Range {
	return Range{Start: s.Start, End: s.End}
}
