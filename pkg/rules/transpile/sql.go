package transpile

import (
	"math"
	"strconv"
	"strings"

	"mercator-hq/meridian/pkg/dsl/ast"
)

// sqlFunctions maps builtins with a direct SQLite equivalent.
var sqlFunctions = map[string]string{
	"UPPER":  "UPPER",
	"LOWER":  "LOWER",
	"TRIM":   "TRIM",
	"ABS":    "ABS",
	"ROUND":  "ROUND",
	"LENGTH": "LENGTH",
	"LEN":    "LENGTH",
}

// sqlOperators maps operators SQLite spells the same way up to keywords.
var sqlOperators = map[ast.BinaryOperator]string{
	ast.OpLt:   "<",
	ast.OpGt:   ">",
	ast.OpLtEq: "<=",
	ast.OpGtEq: ">=",
	ast.OpAdd:  "+",
	ast.OpSub:  "-",
	ast.OpMul:  "*",
	ast.OpMod:  "%",
	ast.OpAnd:  "AND",
	ast.OpOr:   "OR",
}

// SQL renders expr as a SQLite expression. Attribute names become quoted
// column names. The result is fully parenthesised.
//
// Equality uses IS and IS NOT, which treat two nulls as equal the way rules
// do. Division always happens in floating point. An *UnsupportedError is
// returned for regex matching, assignments, LOOKUP and functions without a
// SQLite counterpart.
func SQL(expr ast.Expression) (string, error) {
	w := &sqlWriter{}
	if err := w.expr(expr); err != nil {
		return "", err
	}
	return w.sb.String(), nil
}

// Where renders expr as a WHERE clause.
func Where(expr ast.Expression) (string, error) {
	s, err := SQL(expr)
	if err != nil {
		return "", err
	}
	return "WHERE " + s, nil
}

type sqlWriter struct {
	sb strings.Builder
}

func (w *sqlWriter) expr(expr ast.Expression) error {
	switch n := expr.(type) {
	case *ast.Literal:
		return w.literal(n.Value, n.Pos)

	case *ast.Identifier:
		w.sb.WriteString(quoteIdent(n.Name))
		return nil

	case *ast.BinaryOp:
		return w.binary(n)

	case *ast.UnaryOp:
		if n.Op == ast.OpNot {
			return w.wrap("(NOT ", n.Operand, ")")
		}
		// The space keeps "- -1" from reading as a comment.
		return w.wrap("(- ", n.Operand, ")")

	case *ast.FunctionCall:
		return w.call(n)

	case *ast.Conditional:
		w.sb.WriteString("(CASE WHEN ")
		if err := w.expr(n.Condition); err != nil {
			return err
		}
		w.sb.WriteString(" THEN ")
		if err := w.expr(n.Then); err != nil {
			return err
		}
		w.sb.WriteString(" ELSE ")
		if n.Else == nil {
			w.sb.WriteString("NULL")
		} else if err := w.expr(n.Else); err != nil {
			return err
		}
		w.sb.WriteString(" END)")
		return nil

	case *ast.Cast:
		var typ string
		switch n.Target {
		case ast.TypeInteger:
			typ = "INTEGER"
		case ast.TypeFloat:
			typ = "REAL"
		case ast.TypeString:
			typ = "TEXT"
		default:
			return unsupported(n.Pos, "cast to %s", n.Target)
		}
		return w.wrap("CAST(", n.Value, " AS "+typ+")")

	case *ast.ListLiteral:
		return unsupported(n.Pos, "list outside IN")

	case *ast.Assignment:
		return unsupported(n.Pos, "assignment to %s", n.Target)
	}
	return unsupported(expr.Span(), "expression %s", expr)
}

func (w *sqlWriter) binary(n *ast.BinaryOp) error {
	switch n.Op {
	case ast.OpEq, ast.OpNotEq:
		op := " IS "
		if n.Op == ast.OpNotEq {
			op = " IS NOT "
		}
		return w.infix(n.Left, op, n.Right)

	case ast.OpDiv:
		w.sb.WriteString("(CAST(")
		if err := w.expr(n.Left); err != nil {
			return err
		}
		w.sb.WriteString(" AS REAL) / ")
		if err := w.expr(n.Right); err != nil {
			return err
		}
		w.sb.WriteString(")")
		return nil

	case ast.OpConcat:
		return w.concat(n.Left, n.Right)

	case ast.OpIn, ast.OpNotIn:
		return w.membership(n.Left, n.Right, n.Op == ast.OpNotIn, n.Pos)

	case ast.OpContains:
		if isList(n.Left) {
			return w.membership(n.Right, n.Left, false, n.Pos)
		}
		w.sb.WriteString("(INSTR(")
		if err := w.expr(n.Left); err != nil {
			return err
		}
		w.sb.WriteString(", ")
		if err := w.expr(n.Right); err != nil {
			return err
		}
		w.sb.WriteString(") > 0)")
		return nil

	case ast.OpStartsWith:
		// SUBSTR(s, 1, LENGTH(p)) = p
		w.sb.WriteString("(SUBSTR(")
		if err := w.expr(n.Left); err != nil {
			return err
		}
		w.sb.WriteString(", 1, LENGTH(")
		if err := w.expr(n.Right); err != nil {
			return err
		}
		return w.wrap(")) = ", n.Right, ")")

	case ast.OpEndsWith:
		// SUBSTR with a negative start counts from the end; an empty
		// suffix would select the whole string.
		w.sb.WriteString("((LENGTH(")
		if err := w.expr(n.Right); err != nil {
			return err
		}
		w.sb.WriteString(") = 0) OR (SUBSTR(")
		if err := w.expr(n.Left); err != nil {
			return err
		}
		w.sb.WriteString(", -LENGTH(")
		if err := w.expr(n.Right); err != nil {
			return err
		}
		return w.wrap(")) = ", n.Right, "))")

	case ast.OpMatch:
		return unsupported(n.Pos, "operator %s", n.Op)
	}

	op, ok := sqlOperators[n.Op]
	if !ok {
		return unsupported(n.Pos, "operator %s", n.Op)
	}
	return w.infix(n.Left, " "+op+" ", n.Right)
}

// membership renders needle IN (items). The haystack must be a list written
// in the rule, since SQL has no list values.
func (w *sqlWriter) membership(needle, haystack ast.Expression, negate bool, span ast.Span) error {
	var items []ast.Expression
	switch h := haystack.(type) {
	case *ast.ListLiteral:
		items = h.Elements
	case *ast.Literal:
		values, ok := h.Value.Items()
		if !ok {
			return unsupported(span, "IN against %s", h.Value.Kind())
		}
		for _, v := range values {
			items = append(items, &ast.Literal{Value: v, Pos: h.Pos})
		}
	default:
		return unsupported(span, "IN against a computed list")
	}

	w.sb.WriteString("(")
	if err := w.expr(needle); err != nil {
		return err
	}
	if negate {
		w.sb.WriteString(" NOT IN (")
	} else {
		w.sb.WriteString(" IN (")
	}
	for i, item := range items {
		if i > 0 {
			w.sb.WriteString(", ")
		}
		if err := w.expr(item); err != nil {
			return err
		}
	}
	w.sb.WriteString("))")
	return nil
}

func (w *sqlWriter) call(n *ast.FunctionCall) error {
	switch n.Name {
	case "IS_NULL":
		if len(n.Args) != 1 {
			return unsupported(n.Pos, "IS_NULL with %d arguments", len(n.Args))
		}
		return w.wrap("(", n.Args[0], " IS NULL)")

	case "CONCAT":
		if len(n.Args) == 0 {
			w.sb.WriteString("''")
			return nil
		}
		return w.concat(n.Args...)

	case "COALESCE":
		// SQLite wants at least two arguments.
		if len(n.Args) == 1 {
			return w.expr(n.Args[0])
		}
		return w.function("COALESCE", n.Args)

	case "SUBSTRING":
		// Rules count from 0, SQL from 1.
		if len(n.Args) < 2 || len(n.Args) > 3 {
			return unsupported(n.Pos, "SUBSTRING with %d arguments", len(n.Args))
		}
		w.sb.WriteString("SUBSTR(")
		if err := w.expr(n.Args[0]); err != nil {
			return err
		}
		if err := w.wrap(", (", n.Args[1], " + 1)"); err != nil {
			return err
		}
		if len(n.Args) == 3 {
			if err := w.wrap(", ", n.Args[2], ""); err != nil {
				return err
			}
		}
		w.sb.WriteString(")")
		return nil

	case "MIN", "MAX":
		// One argument is a list, which SQL cannot hold.
		if len(n.Args) < 2 {
			return unsupported(n.Pos, "function %s over a list", n.Name)
		}
		return w.function(n.Name, n.Args)
	}

	name, ok := sqlFunctions[n.Name]
	if !ok {
		return unsupported(n.Pos, "function %s", n.Name)
	}
	return w.function(name, n.Args)
}

func (w *sqlWriter) function(name string, args []ast.Expression) error {
	w.sb.WriteString(name)
	w.sb.WriteString("(")
	for i, arg := range args {
		if i > 0 {
			w.sb.WriteString(", ")
		}
		if err := w.expr(arg); err != nil {
			return err
		}
	}
	w.sb.WriteString(")")
	return nil
}

// concat joins parts with ||. Rules treat null as an empty string when
// concatenating, SQL would make the whole result null.
func (w *sqlWriter) concat(parts ...ast.Expression) error {
	w.sb.WriteString("(")
	for i, p := range parts {
		if i > 0 {
			w.sb.WriteString(" || ")
		}
		if err := w.wrap("COALESCE(", p, ", '')"); err != nil {
			return err
		}
	}
	w.sb.WriteString(")")
	return nil
}

func (w *sqlWriter) infix(left ast.Expression, op string, right ast.Expression) error {
	w.sb.WriteString("(")
	if err := w.expr(left); err != nil {
		return err
	}
	w.sb.WriteString(op)
	if err := w.expr(right); err != nil {
		return err
	}
	w.sb.WriteString(")")
	return nil
}

func (w *sqlWriter) wrap(prefix string, e ast.Expression, suffix string) error {
	w.sb.WriteString(prefix)
	if err := w.expr(e); err != nil {
		return err
	}
	w.sb.WriteString(suffix)
	return nil
}

func (w *sqlWriter) literal(v ast.Value, span ast.Span) error {
	switch v.Kind() {
	case ast.KindNull:
		w.sb.WriteString("NULL")
	case ast.KindBoolean:
		b, _ := v.AsBool()
		if b {
			w.sb.WriteString("TRUE")
		} else {
			w.sb.WriteString("FALSE")
		}
	case ast.KindInteger:
		i, _ := v.AsInt()
		w.sb.WriteString(strconv.FormatInt(i, 10))
	case ast.KindFloat:
		f, _ := v.AsFloat()
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return unsupported(span, "non-finite number %v", f)
		}
		s := strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".e") {
			s += ".0"
		}
		w.sb.WriteString(s)
	case ast.KindString:
		text, _ := v.AsString()
		w.sb.WriteString("'" + strings.ReplaceAll(text, "'", "''") + "'")
	default:
		return unsupported(span, "%s literal", v.Kind())
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func isList(e ast.Expression) bool {
	switch n := e.(type) {
	case *ast.ListLiteral:
		return true
	case *ast.Literal:
		return n.Value.Kind() == ast.KindList
	}
	return false
}
