// Package parser converts rule source text into an ast.Expression.
//
// The grammar, from loosest to tightest binding:
//
//	assignment      ident = expr                       (right associative)
//	logical or      OR ||
//	logical and     AND &&
//	logical not     NOT !                              (prefix)
//	comparison      == != <> < > <= >= ~ MATCHES IN NOT_IN CONTAINS STARTS_WITH ENDS_WITH
//	additive        + - &
//	multiplicative  * / %
//	unary           - +                                (prefix)
//	primary         literal, identifier, call, (expr), [list], IF/WHEN, CAST(expr AS type)
//
// All binary operators are left associative. Keywords are case-insensitive.
// String literals use double or single quotes; regex literals use /.../ or r"...".
// A '/' starts a regex only where an operand is expected, so a / b still divides.
// Text after # up to the end of the line is a comment.
//
// # Basic Usage
//
//	expr, err := parser.Parse(`IF income > 100000 THEN "high" ELSE "standard"`)
//	if err != nil {
//	    var perr *parser.ParseError
//	    if errors.As(err, &perr) {
//	        fmt.Println("bad input at offset", perr.Offset)
//	    }
//	}
//
// # Grammar tables
//
// Alternative spellings for keywords and operators come from a GrammarSpec,
// which can be loaded from YAML with LoadGrammarFile and is compiled once into
// an immutable Grammar:
//
//	keywords:
//	  SI: IF
//	operators:
//	  PLUS: "+"
//
// Precedence belongs to the canonical operator, so a table can rename
// operators but never reorder them.
package parser
