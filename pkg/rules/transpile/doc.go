// Package transpile rewrites rules ahead of time.
//
// A Folder replaces constant subexpressions with their values and drops IF
// branches whose condition is constant. It uses the same Evaluator as
// derivation, so a folded rule produces the same value as the original:
// anything that fails to evaluate is left in place to fail at run time.
//
// SQL renders a rule as a SQLite expression, typically for the WHERE clause
// of a query that selects subjects a rule matches:
//
//	folded, _ := transpile.NewFolder(evaluator, logger).Fold(ctx, expr)
//	where, err := transpile.SQL(folded)
//	if errors.Is(err, transpile.ErrUnsupported) {
//		// evaluate in process instead
//	}
//
// Comparisons use SQL null handling, so a rule that would fail on a null
// operand in process selects no rows instead.
package transpile
