package eval

import (
	"context"
	"fmt"
	"log/slog"

	"mercator-hq/meridian/pkg/dsl/ast"
)

// Evaluator computes the value of parsed expressions against a fact set.
//
// An Evaluator owns its pattern cache and is safe for concurrent use as long
// as each goroutine evaluates against its own Facts.
type Evaluator struct {
	// config holds the lookup miss policy and cache bounds.
	config *Config

	// registry resolves function calls by upper-cased name.
	registry *Registry

	// lookups answers LOOKUP(key, table).
	lookups LookupProvider

	// patterns caches compiled regular expressions across evaluations.
	patterns *PatternCache

	// logger is tagged with component=evaluator.
	logger *slog.Logger
}

// NewEvaluator creates an evaluator. A nil config selects DefaultConfig, a nil
// registry DefaultRegistry and a nil lookup provider makes every LOOKUP miss.
func NewEvaluator(config *Config, registry *Registry, lookups LookupProvider, logger *slog.Logger) (*Evaluator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid evaluator configuration: %w", err)
	}
	if config.LookupMiss == "" {
		config.LookupMiss = MissError
	}
	if registry == nil {
		registry = DefaultRegistry()
	}
	if lookups == nil {
		lookups = noLookups{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		config:   config,
		registry: registry,
		lookups:  lookups,
		patterns: NewPatternCache(nil).WithLimit(config.PatternCacheSize),
		logger:   logger.With("component", "evaluator"),
	}, nil
}

// WithPatternCache replaces the evaluator's regex cache, for example with one
// that reports to metrics. The configured cache size is applied to it.
func (e *Evaluator) WithPatternCache(cache *PatternCache) *Evaluator {
	if cache != nil {
		e.patterns = cache.WithLimit(e.config.PatternCacheSize)
	}
	return e
}

// Registry returns the function registry used for calls.
func (e *Evaluator) Registry() *Registry { return e.registry }

// Patterns returns the evaluator's regex cache.
func (e *Evaluator) Patterns() *PatternCache { return e.patterns }

// Evaluate computes expr. Assignments write into facts. On failure the error
// is an *EvalError whose Span points at the failing node.
//
// ctx is handed to lookup providers; evaluation itself is not interrupted.
func (e *Evaluator) Evaluate(ctx context.Context, expr ast.Expression, facts *Facts) (ast.Value, error) {
	if facts == nil {
		facts = NewFacts(nil)
	}
	call := &Call{
		Context:    ctx,
		Lookups:    e.lookups,
		Patterns:   e.patterns,
		MissPolicy: e.config.LookupMiss,
	}
	v, err := e.eval(call, expr, facts)
	if err != nil {
		e.logger.Debug("expression evaluation failed", "expression", expr.String(), "error", err)
		return ast.Null(), err
	}
	return v, nil
}

func (e *Evaluator) eval(call *Call, expr ast.Expression, facts *Facts) (ast.Value, error) {
	switch n := expr.(type) {
	case *ast.Literal:
		return n.Value, nil

	case *ast.Identifier:
		v, ok := facts.Get(n.Name)
		if !ok {
			return ast.Null(), withSpan(unknownAttribute(n.Name), n.Pos)
		}
		return v, nil

	case *ast.Assignment:
		v, err := e.eval(call, n.Value, facts)
		if err != nil {
			return ast.Null(), err
		}
		facts.Set(n.Target, v)
		return v, nil

	case *ast.BinaryOp:
		return e.evalBinary(call, n, facts)

	case *ast.UnaryOp:
		return e.evalUnary(call, n, facts)

	case *ast.FunctionCall:
		args := make([]ast.Value, len(n.Args))
		for i, arg := range n.Args {
			v, err := e.eval(call, arg, facts)
			if err != nil {
				return ast.Null(), err
			}
			args[i] = v
		}
		v, err := e.registry.Call(call, n.Name, args)
		if err != nil {
			return ast.Null(), withSpan(err, n.Pos)
		}
		return v, nil

	case *ast.Conditional:
		cond, err := e.eval(call, n.Condition, facts)
		if err != nil {
			return ast.Null(), err
		}
		ok, err := truth(cond, "IF condition")
		if err != nil {
			return ast.Null(), withSpan(err, n.Condition.Span())
		}
		switch {
		case ok:
			return e.eval(call, n.Then, facts)
		case n.Else != nil:
			return e.eval(call, n.Else, facts)
		}
		return ast.Null(), nil

	case *ast.ListLiteral:
		items := make([]ast.Value, len(n.Elements))
		for i, elem := range n.Elements {
			v, err := e.eval(call, elem, facts)
			if err != nil {
				return ast.Null(), err
			}
			items[i] = v
		}
		return ast.List(items...), nil

	case *ast.Cast:
		v, err := e.eval(call, n.Value, facts)
		if err != nil {
			return ast.Null(), err
		}
		out, err := castTo(v, n.Target)
		if err != nil {
			return ast.Null(), withSpan(err, n.Pos)
		}
		return out, nil
	}
	panic(fmt.Sprintf("eval: unexpected expression node %T", expr))
}

func (e *Evaluator) evalBinary(call *Call, n *ast.BinaryOp, facts *Facts) (ast.Value, error) {
	if !n.Op.Valid() {
		panic(fmt.Sprintf("eval: unknown binary operator %d", int(n.Op)))
	}

	left, err := e.eval(call, n.Left, facts)
	if err != nil {
		return ast.Null(), err
	}

	if n.Op.IsLogical() {
		l, err := truth(left, fmt.Sprintf("left operand of %s", n.Op))
		if err != nil {
			return ast.Null(), withSpan(err, n.Left.Span())
		}
		// AND stops on false, OR stops on true.
		if (n.Op == ast.OpAnd) != l {
			return ast.Bool(l), nil
		}
		right, err := e.eval(call, n.Right, facts)
		if err != nil {
			return ast.Null(), err
		}
		r, err := truth(right, fmt.Sprintf("right operand of %s", n.Op))
		if err != nil {
			return ast.Null(), withSpan(err, n.Right.Span())
		}
		return ast.Bool(r), nil
	}

	right, err := e.eval(call, n.Right, facts)
	if err != nil {
		return ast.Null(), err
	}
	v, err := e.applyBinary(call, n.Op, left, right)
	if err != nil {
		return ast.Null(), withSpan(err, n.Pos)
	}
	return v, nil
}

func (e *Evaluator) evalUnary(call *Call, n *ast.UnaryOp, facts *Facts) (ast.Value, error) {
	v, err := e.eval(call, n.Operand, facts)
	if err != nil {
		return ast.Null(), err
	}
	switch n.Op {
	case ast.OpNot:
		b, err := truth(v, "operand of NOT")
		if err != nil {
			return ast.Null(), withSpan(err, n.Pos)
		}
		return ast.Bool(!b), nil
	case ast.OpNeg:
		switch v.Kind() {
		case ast.KindInteger:
			i, _ := v.AsInt()
			neg, ok := negInt(i)
			if !ok {
				return ast.Null(), withSpan(overflow("-(%d)", i), n.Pos)
			}
			return ast.Int(neg), nil
		case ast.KindFloat:
			f, _ := v.AsFloat()
			return ast.Float(-f), nil
		}
		return ast.Null(), withSpan(typeMismatch("unary - needs a number, got %s", v.Kind()), n.Pos)
	}
	panic(fmt.Sprintf("eval: unknown unary operator %d", int(n.Op)))
}
