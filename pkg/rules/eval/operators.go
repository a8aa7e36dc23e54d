package eval

import (
	"fmt"
	"math"
	"strings"

	"mercator-hq/meridian/pkg/dsl/ast"
)

// applyBinary evaluates every non-logical binary operator on evaluated operands.
func (e *Evaluator) applyBinary(call *Call, op ast.BinaryOperator, left, right ast.Value) (ast.Value, error) {
	switch op {
	case ast.OpAdd, ast.OpSub, ast.OpMul:
		return arithmetic(op, left, right)
	case ast.OpDiv:
		return divide(left, right)
	case ast.OpMod:
		return modulo(left, right)
	case ast.OpConcat:
		return ast.String(left.Text() + right.Text()), nil
	case ast.OpEq:
		return ast.Bool(left.Equal(right)), nil
	case ast.OpNotEq:
		return ast.Bool(!left.Equal(right)), nil
	case ast.OpLt, ast.OpGt, ast.OpLtEq, ast.OpGtEq:
		return ordering(op, left, right)
	case ast.OpMatch:
		return e.match(call, left, right)
	case ast.OpIn:
		return membership(left, right)
	case ast.OpNotIn:
		in, err := membership(left, right)
		if err != nil {
			return ast.Null(), err
		}
		b, _ := in.AsBool()
		return ast.Bool(!b), nil
	case ast.OpContains:
		return contains(left, right)
	case ast.OpStartsWith, ast.OpEndsWith:
		return affix(op, left, right)
	}
	panic(fmt.Sprintf("eval: unhandled binary operator %d", int(op)))
}

func arithmetic(op ast.BinaryOperator, left, right ast.Value) (ast.Value, error) {
	if !left.IsNumeric() || !right.IsNumeric() {
		return ast.Null(), typeMismatch("operator %s needs numeric operands, got %s and %s", op, left.Kind(), right.Kind())
	}
	if a, ok := left.AsInt(); ok {
		if b, ok := right.AsInt(); ok {
			var (
				n      int64
				exists bool
			)
			switch op {
			case ast.OpAdd:
				n, exists = addInt(a, b)
			case ast.OpSub:
				n, exists = subInt(a, b)
			default:
				n, exists = mulInt(a, b)
			}
			if !exists {
				return ast.Null(), overflow("%d %s %d", a, op, b)
			}
			return ast.Int(n), nil
		}
	}
	a, _ := left.Number()
	b, _ := right.Number()
	switch op {
	case ast.OpAdd:
		return ast.Float(a + b), nil
	case ast.OpSub:
		return ast.Float(a - b), nil
	default:
		return ast.Float(a * b), nil
	}
}

// addInt, subInt, mulInt and negInt report false when the exact result does
// not fit in an int64.
func addInt(a, b int64) (int64, bool) {
	c := a + b
	return c, (c > a) == (b > 0)
}

func subInt(a, b int64) (int64, bool) {
	c := a - b
	return c, (c < a) == (b > 0)
}

func mulInt(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	c := a * b
	return c, c/b == a
}

func negInt(a int64) (int64, bool) {
	if a == math.MinInt64 {
		return 0, false
	}
	return -a, true
}

// divide always yields a float so 7 / 2 is 3.5.
func divide(left, right ast.Value) (ast.Value, error) {
	if !left.IsNumeric() || !right.IsNumeric() {
		return ast.Null(), typeMismatch("operator / needs numeric operands, got %s and %s", left.Kind(), right.Kind())
	}
	a, _ := left.Number()
	b, _ := right.Number()
	if b == 0 {
		return ast.Null(), newError(KindDivisionByZero, "%s / %s", left, right)
	}
	return ast.Float(a / b), nil
}

func modulo(left, right ast.Value) (ast.Value, error) {
	a, okA := left.AsInt()
	b, okB := right.AsInt()
	if !okA || !okB {
		return ast.Null(), typeMismatch("operator %% needs integer operands, got %s and %s", left.Kind(), right.Kind())
	}
	if b == 0 {
		return ast.Null(), newError(KindDivisionByZero, "%d %% 0", a)
	}
	return ast.Int(a % b), nil
}

// compareValues orders two numbers or two strings.
func compareValues(left, right ast.Value) (int, error) {
	if left.IsNumeric() && right.IsNumeric() {
		if a, ok := left.AsInt(); ok {
			if b, ok := right.AsInt(); ok {
				return cmpOrdered(a, b), nil
			}
		}
		a, _ := left.Number()
		b, _ := right.Number()
		if math.IsNaN(a) || math.IsNaN(b) {
			return 0, typeMismatch("cannot order NaN")
		}
		return cmpOrdered(a, b), nil
	}
	if a, ok := left.AsString(); ok {
		if b, ok := right.AsString(); ok {
			return strings.Compare(a, b), nil
		}
	}
	return 0, typeMismatch("cannot order %s and %s", left.Kind(), right.Kind())
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func ordering(op ast.BinaryOperator, left, right ast.Value) (ast.Value, error) {
	c, err := compareValues(left, right)
	if err != nil {
		return ast.Null(), err
	}
	switch op {
	case ast.OpLt:
		return ast.Bool(c < 0), nil
	case ast.OpGt:
		return ast.Bool(c > 0), nil
	case ast.OpLtEq:
		return ast.Bool(c <= 0), nil
	default:
		return ast.Bool(c >= 0), nil
	}
}

// match evaluates subject ~ pattern. The pattern may be a regex literal or a string.
func (e *Evaluator) match(call *Call, subject, pattern ast.Value) (ast.Value, error) {
	text, ok := subject.AsString()
	if !ok {
		return ast.Null(), typeMismatch("operator ~ needs a string subject, got %s", subject.Kind())
	}
	re, err := compilePattern(call.Patterns, pattern)
	if err != nil {
		return ast.Null(), err
	}
	return ast.Bool(re.MatchString(text)), nil
}

func membership(needle, haystack ast.Value) (ast.Value, error) {
	items, ok := haystack.Items()
	if !ok {
		return ast.Null(), typeMismatch("operator IN needs a list on the right, got %s", haystack.Kind())
	}
	for _, item := range items {
		if needle.Equal(item) {
			return ast.Bool(true), nil
		}
	}
	return ast.Bool(false), nil
}

func contains(container, element ast.Value) (ast.Value, error) {
	if s, ok := container.AsString(); ok {
		sub, ok := element.AsString()
		if !ok {
			return ast.Null(), typeMismatch("CONTAINS on a string needs a string, got %s", element.Kind())
		}
		return ast.Bool(strings.Contains(s, sub)), nil
	}
	if container.Kind() == ast.KindList {
		return membership(element, container)
	}
	return ast.Null(), typeMismatch("CONTAINS needs a string or list, got %s", container.Kind())
}

func affix(op ast.BinaryOperator, left, right ast.Value) (ast.Value, error) {
	s, okL := left.AsString()
	fix, okR := right.AsString()
	if !okL || !okR {
		return ast.Null(), typeMismatch("operator %s needs string operands, got %s and %s", op, left.Kind(), right.Kind())
	}
	if op == ast.OpStartsWith {
		return ast.Bool(strings.HasPrefix(s, fix)), nil
	}
	return ast.Bool(strings.HasSuffix(s, fix)), nil
}

// truth interprets a condition operand. Null counts as false.
func truth(v ast.Value, what string) (bool, error) {
	if v.IsNull() {
		return false, nil
	}
	b, ok := v.AsBool()
	if !ok {
		return false, typeMismatch("%s must be boolean, got %s", what, v.Kind())
	}
	return b, nil
}
