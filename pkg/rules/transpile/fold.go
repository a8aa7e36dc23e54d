package transpile

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"mercator-hq/meridian/pkg/dsl/ast"
	"mercator-hq/meridian/pkg/rules/eval"
)

// Folder replaces constant subexpressions of a rule with their values.
//
// Registered functions are assumed to be deterministic. LOOKUP depends on
// the lookup provider and assignments write facts, so subexpressions holding
// either are never folded.
type Folder struct {
	// evaluator computes candidate subexpressions against an empty fact set.
	evaluator *eval.Evaluator

	// logger is tagged with component=folder.
	logger *slog.Logger
}

// Stats counts the rewrites made by one Fold call.
type Stats struct {
	// Folded is the number of subexpressions replaced by a literal.
	Folded int `json:"folded"`

	// Pruned is the number of IF expressions reduced to one branch.
	Pruned int `json:"pruned"`
}

// NewFolder creates a folder evaluating with evaluator.
func NewFolder(evaluator *eval.Evaluator, logger *slog.Logger) *Folder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Folder{
		evaluator: evaluator,
		logger:    logger.With("component", "folder"),
	}
}

// Fold returns expr with constant subexpressions replaced. expr itself is
// not modified; unchanged subtrees are shared with the result.
func (f *Folder) Fold(ctx context.Context, expr ast.Expression) (ast.Expression, Stats) {
	r := &folding{ctx: ctx, folder: f}
	out := r.fold(expr)
	f.logger.Debug("rule folded",
		"rule", expr.String(),
		"folded", r.stats.Folded,
		"pruned", r.stats.Pruned,
	)
	return out, r.stats
}

// folding is the state of a single Fold call.
type folding struct {
	ctx    context.Context
	folder *Folder
	stats  Stats
}

func (r *folding) fold(expr ast.Expression) ast.Expression {
	switch n := expr.(type) {
	case *ast.Assignment:
		return &ast.Assignment{Target: n.Target, Value: r.fold(n.Value), Pos: n.Pos}

	case *ast.BinaryOp:
		out := &ast.BinaryOp{Op: n.Op, Left: r.fold(n.Left), Right: r.fold(n.Right), Pos: n.Pos}
		// A constant left operand may decide AND and OR on its own.
		if isLiteral(out.Left) && (isLiteral(out.Right) || n.Op.IsLogical()) {
			return r.constant(out)
		}
		return out

	case *ast.UnaryOp:
		out := &ast.UnaryOp{Op: n.Op, Operand: r.fold(n.Operand), Pos: n.Pos}
		if isLiteral(out.Operand) {
			return r.constant(out)
		}
		return out

	case *ast.FunctionCall:
		out := &ast.FunctionCall{Name: n.Name, Args: make([]ast.Expression, len(n.Args)), Pos: n.Pos}
		all := true
		for i, arg := range n.Args {
			out.Args[i] = r.fold(arg)
			all = all && isLiteral(out.Args[i])
		}
		if all {
			return r.constant(out)
		}
		return out

	case *ast.Conditional:
		return r.foldConditional(n)

	case *ast.ListLiteral:
		out := &ast.ListLiteral{Elements: make([]ast.Expression, len(n.Elements)), Pos: n.Pos}
		all := true
		for i, elem := range n.Elements {
			out.Elements[i] = r.fold(elem)
			all = all && isLiteral(out.Elements[i])
		}
		if all {
			return r.constant(out)
		}
		return out

	case *ast.Cast:
		out := &ast.Cast{Value: r.fold(n.Value), Target: n.Target, Pos: n.Pos}
		if isLiteral(out.Value) {
			return r.constant(out)
		}
		return out
	}
	return expr
}

func (r *folding) foldConditional(n *ast.Conditional) ast.Expression {
	cond := r.fold(n.Condition)
	if lit, ok := cond.(*ast.Literal); ok {
		taken, decided := branch(lit.Value)
		if decided {
			r.stats.Pruned++
			if taken {
				return r.fold(n.Then)
			}
			if n.Else == nil {
				return &ast.Literal{Value: ast.Null(), Pos: n.Pos}
			}
			return r.fold(n.Else)
		}
	}
	out := &ast.Conditional{Condition: cond, Then: r.fold(n.Then), Pos: n.Pos}
	if n.Else != nil {
		out.Else = r.fold(n.Else)
	}
	return out
}

// branch reports which branch a constant condition selects. A condition
// that is neither boolean nor null fails at run time and is left alone.
func branch(v ast.Value) (taken, decided bool) {
	if v.IsNull() {
		return false, true
	}
	b, ok := v.AsBool()
	return b, ok
}

// constant evaluates n and returns it as a literal, or n unchanged when it
// cannot be evaluated ahead of time.
func (r *folding) constant(n ast.Expression) ast.Expression {
	if !foldable(n) {
		return n
	}
	v, err := r.evaluate(n)
	if err != nil {
		return n
	}
	if f, ok := v.AsFloat(); ok && (math.IsInf(f, 0) || math.IsNaN(f)) {
		return n
	}
	r.stats.Folded++
	return &ast.Literal{Value: v, Pos: n.Span()}
}

func (r *folding) evaluate(n ast.Expression) (v ast.Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.folder.logger.Warn("constant subexpression panicked, left unfolded",
				"expression", n.String(),
				"panic", p,
			)
			err = fmt.Errorf("internal error: %v", p)
		}
	}()
	return r.folder.evaluator.Evaluate(r.ctx, n, eval.NewFacts(nil))
}

// foldable reports whether n neither assigns nor looks anything up.
func foldable(n ast.Expression) bool {
	ok := true
	ast.Walk(n, func(e ast.Expression) bool {
		switch e := e.(type) {
		case *ast.Assignment:
			ok = false
		case *ast.FunctionCall:
			if e.Name == "LOOKUP" {
				ok = false
			}
		}
		return ok
	})
	return ok
}

func isLiteral(e ast.Expression) bool {
	_, ok := e.(*ast.Literal)
	return ok
}
