package ast

import "sort"

// Walk traverses expr depth-first in source order, calling fn for every node.
// When fn returns false the children of that node are skipped.
func Walk(expr Expression, fn func(Expression) bool) {
	if expr == nil || !fn(expr) {
		return
	}
	switch n := expr.(type) {
	case *Assignment:
		Walk(n.Value, fn)
	case *BinaryOp:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *UnaryOp:
		Walk(n.Operand, fn)
	case *FunctionCall:
		for _, arg := range n.Args {
			Walk(arg, fn)
		}
	case *Conditional:
		Walk(n.Condition, fn)
		Walk(n.Then, fn)
		Walk(n.Else, fn)
	case *ListLiteral:
		for _, elem := range n.Elements {
			Walk(elem, fn)
		}
	case *Cast:
		Walk(n.Value, fn)
	}
}

// Identifiers returns the sorted, de-duplicated attribute names read by expr.
// Assignment targets are written, not read, and are not included.
func Identifiers(expr Expression) []string {
	seen := make(map[string]struct{})
	Walk(expr, func(e Expression) bool {
		if id, ok := e.(*Identifier); ok {
			seen[id.Name] = struct{}{}
		}
		return true
	})
	return sortedKeys(seen)
}

// FunctionNames returns the sorted, de-duplicated function names called by expr.
func FunctionNames(expr Expression) []string {
	seen := make(map[string]struct{})
	Walk(expr, func(e Expression) bool {
		if call, ok := e.(*FunctionCall); ok {
			seen[call.Name] = struct{}{}
		}
		return true
	})
	return sortedKeys(seen)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
