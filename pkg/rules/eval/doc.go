// Package eval computes the value of rule expressions.
//
// An Evaluator is built once from a Config, a function Registry and a
// LookupProvider, and then evaluates any number of parsed expressions:
//
//	ev, err := eval.NewEvaluator(eval.DefaultConfig(), eval.DefaultRegistry(), tables, logger)
//	if err != nil {
//	    return err
//	}
//	facts := eval.NewFacts(map[string]ast.Value{"income": ast.Int(120000)})
//	v, err := ev.Evaluate(ctx, expr, facts)
//
// # Semantics
//
// Arithmetic on two integers stays integral; any float operand widens the
// result to float. Division always yields a float and fails on a zero divisor.
// Equality never fails: integers and floats compare numerically and values of
// unrelated kinds are simply unequal. Ordering is defined for number pairs and
// string pairs only. AND and OR short-circuit left to right and, like IF,
// require boolean operands with null counting as false.
//
// # Errors
//
// Every failure is an *EvalError carrying an ErrorKind and the span of the
// node that failed. Use errors.Is with the exported sentinels:
//
//	if errors.Is(err, eval.ErrDivisionByZero) {
//	    ...
//	}
//
// An unknown node type or operator is a programming error and panics.
//
// # Builtins
//
// DefaultRegistry provides string, math, list, conversion and validation
// functions, including IS_LEI (ISO 17442 check digits), IS_SWIFT, IS_EMAIL,
// IS_PHONE, VALIDATE, EXTRACT and LOOKUP.
package eval
