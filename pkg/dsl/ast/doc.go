// Package ast defines the value model and the expression tree of the attribute rule language.
//
// A rule is a single expression written by a business analyst, for example:
//
//	IF annual_income > 100000 AND country IN ["US", "CA"] THEN "high" ELSE "standard"
//
// The parser turns that text into an Expression tree whose nodes carry the byte Span of the
// source they were parsed from. The evaluator walks the tree and produces a Value.
//
// # Values
//
// Value is an immutable tagged union over the kinds Null, Integer, Float, String, Boolean,
// List and Regex. Values are created with the constructors Int, Float, String, Bool, Null,
// List and Regex and inspected with the As* accessors:
//
//	v := ast.List(ast.Int(1), ast.Float(2.5))
//	if items, ok := v.Items(); ok {
//	    fmt.Println(len(items))
//	}
//
// Equality across kinds follows a fixed policy: integers and floats compare by numeric value,
// values of the same kind compare structurally and every other pair of kinds is unequal.
//
// # Expressions
//
// Expression is a closed set of node types: Literal, Identifier, Assignment, BinaryOp,
// UnaryOp, FunctionCall, Conditional, ListLiteral and Cast. Use Walk to traverse a tree and
// Identifiers to collect the attribute names an expression reads.
package ast
