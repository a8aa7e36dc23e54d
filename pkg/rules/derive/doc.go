// Package derive computes derived attributes from their rules.
//
// Attributes are either Real, supplied by the caller as facts, or Derived,
// computed by evaluating a rule. The Engine builds a dependency graph over
// the derived attributes reachable from a request, detects cycles, and
// evaluates the rest dependencies first. Each derived attribute is evaluated
// at most once per run and its value is written back into the facts, so
// later rules read it like any other attribute.
//
// Failures are isolated. An attribute that cannot be derived gets a
// DerivationError in its Outcome and only the attributes depending on it
// fail with it:
//
//	engine, _ := derive.NewEngine(nil, nil, evaluator, logger)
//	result := engine.Run(ctx, attrs, []string{"risk_band"}, facts)
//	if v, err := result.Get("risk_band"); err == nil {
//		fmt.Println(v)
//	}
package derive
