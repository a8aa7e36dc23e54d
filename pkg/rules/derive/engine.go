package derive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/meridian/pkg/dsl/ast"
	"mercator-hq/meridian/pkg/dsl/parser"
	"mercator-hq/meridian/pkg/rules/eval"
)

// Config contains derivation engine settings.
type Config struct {
	// CheckDeclaredTypes fails attributes whose computed value does not
	// conform to the declared type. Default: true.
	CheckDeclaredTypes bool

	// WarnUndeclaredDependencies logs identifiers a rule reads that are not in
	// its explicit dependency list. Default: true.
	WarnUndeclaredDependencies bool
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		CheckDeclaredTypes:         true,
		WarnUndeclaredDependencies: true,
	}
}

// Observer receives per-attribute and per-run outcomes, typically for metrics.
type Observer interface {
	ObserveAttribute(attribute string, state State, kind ErrorKind)
	ObserveRun(duration time.Duration, resolved, failed int)
}

// Engine resolves requested derived attributes in dependency order.
//
// An Engine is safe for concurrent use provided each Run gets its own Facts.
type Engine struct {
	// config controls declared type checks and dependency warnings.
	config *Config

	// evaluator computes each rule against the run's facts.
	evaluator *eval.Evaluator

	// rules caches parsed rules keyed by rule text.
	rules *ruleCache

	// observer, when set, receives attribute and run outcomes.
	observer Observer

	// logger is tagged with component=derive.
	logger *slog.Logger
}

// NewEngine creates an engine. A nil config selects DefaultConfig and a nil
// parser the built-in grammar.
func NewEngine(config *Config, p *parser.Parser, evaluator *eval.Evaluator, logger *slog.Logger) (*Engine, error) {
	if evaluator == nil {
		return nil, errors.New("derive: evaluator is required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if p == nil {
		p = parser.NewParser()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		config:    config,
		evaluator: evaluator,
		rules:     newRuleCache(p),
		logger:    logger.With("component", "derive"),
	}, nil
}

// WithObserver registers an observer for attribute and run outcomes.
func (e *Engine) WithObserver(o Observer) *Engine {
	e.observer = o
	return e
}

// WithCacheObserver reports parsed-rule cache statistics to o.
func (e *Engine) WithCacheObserver(o eval.CacheObserver) *Engine {
	e.rules.observer = o
	return e
}

// CachedRules returns the number of distinct rule texts parsed so far.
func (e *Engine) CachedRules() int { return e.rules.len() }

// ResetCache forgets every parsed rule. Call it after attribute metadata changes.
func (e *Engine) ResetCache() { e.rules.reset() }

// Index builds the name lookup used by Plan and Run. Later duplicates are ignored.
func Index(attrs []Attribute) map[string]Attribute {
	index := make(map[string]Attribute, len(attrs))
	for _, a := range attrs {
		if _, dup := index[a.Name]; !dup {
			index[a.Name] = a
		}
	}
	return index
}

// run is the mutable state of a single derivation.
type run struct {
	// ctx is checked before each attribute is evaluated.
	ctx context.Context

	engine *Engine

	// attrs indexes the attribute metadata by name.
	attrs map[string]Attribute

	// facts receives every computed value, so later rules can read it.
	facts *eval.Facts

	// outcomes holds one entry per planned or requested attribute.
	outcomes map[string]*Outcome

	// order lists the attributes whose rules ran, in evaluation order.
	order []string
}

// Run derives every requested attribute against facts. Computed values are
// written into facts. A failure only affects the attribute that failed and
// the attributes that depend on it; Run itself never fails.
//
// ctx is checked between attributes. Once it is done, every attribute not yet
// evaluated fails with KindAbandoned.
func (e *Engine) Run(ctx context.Context, attrs []Attribute, requested []string, facts *eval.Facts) *Result {
	start := time.Now()
	if facts == nil {
		facts = eval.NewFacts(nil)
	}
	r := &run{
		ctx:      ctx,
		engine:   e,
		attrs:    Index(attrs),
		facts:    facts,
		outcomes: make(map[string]*Outcome),
	}

	plan := e.Plan(r.attrs, requested)
	for name := range plan.Nodes {
		r.outcomes[name] = &Outcome{Attribute: name, State: StatePending}
	}
	for name, cycle := range plan.Cycles {
		r.fail(name, &DerivationError{Kind: KindCyclicDependency, Attribute: name, Cycle: cycle})
	}
	for _, name := range plan.Order {
		r.resolve(plan.Nodes[name])
	}

	result := &Result{
		Requested: append([]string(nil), requested...),
		Outcomes:  r.outcomes,
		Evaluated: r.order,
	}
	for _, name := range requested {
		if _, done := r.outcomes[name]; done {
			continue
		}
		r.outcomes[name] = r.direct(name)
	}
	result.Duration = time.Since(start)

	resolved, failed := 0, 0
	for _, name := range requested {
		if r.outcomes[name].State == StateResolved {
			resolved++
		} else {
			failed++
		}
	}
	if e.observer != nil {
		e.observer.ObserveRun(result.Duration, resolved, failed)
	}
	e.logger.Debug("derivation run complete",
		"requested", len(requested),
		"resolved", resolved,
		"failed", failed,
		"evaluated", len(r.order),
		"duration", result.Duration,
	)
	return result
}

// direct answers a requested name that is not a derived attribute.
func (r *run) direct(name string) *Outcome {
	if _, ok := r.attrs[name]; !ok {
		return &Outcome{Attribute: name, State: StateFailed, Err: &DerivationError{Kind: KindUnknownAttribute, Attribute: name}}
	}
	v, ok := r.facts.Get(name)
	if !ok {
		return &Outcome{Attribute: name, State: StateFailed, Err: &DerivationError{Kind: KindMissingInput, Attribute: name, Input: name}}
	}
	return &Outcome{Attribute: name, State: StateResolved, Value: v}
}

func (r *run) resolve(node *RuleNode) {
	name := node.Attribute.Name
	outcome := r.outcomes[name]
	if outcome.State != StatePending {
		return
	}
	if err := r.ctx.Err(); err != nil {
		r.fail(name, &DerivationError{Kind: KindAbandoned, Attribute: name, Cause: err})
		return
	}
	if node.ParseErr != nil {
		r.fail(name, &DerivationError{Kind: KindInvalidRule, Attribute: name, Cause: node.ParseErr})
		return
	}
	outcome.State = StateResolving

	for _, dep := range node.inputs() {
		if depOutcome, derived := r.outcomes[dep]; derived && depOutcome.State != StateResolved {
			r.fail(name, &DerivationError{Kind: KindDependencyFailed, Attribute: name, Dependency: dep, Cause: depOutcome.Err})
			return
		}
	}
	for _, dep := range node.Dependencies {
		if _, derived := r.outcomes[dep]; derived {
			continue
		}
		if !r.facts.Has(dep) {
			r.fail(name, &DerivationError{Kind: KindMissingInput, Attribute: name, Input: dep})
			return
		}
	}

	r.order = append(r.order, name)
	v, err := r.evaluate(node)
	if err != nil {
		r.fail(name, &DerivationError{Kind: KindPropagatedEval, Attribute: name, Cause: err})
		return
	}
	if r.engine.config.CheckDeclaredTypes {
		conformed, ok := node.Attribute.Type.Conform(v)
		if !ok {
			r.fail(name, &DerivationError{
				Kind:      KindPropagatedEval,
				Attribute: name,
				Cause: &eval.EvalError{
					Kind:    eval.KindTypeMismatch,
					Message: fmt.Sprintf("attribute is declared %s but the rule produced %s", node.Attribute.Type, v.Kind()),
					Span:    node.Expr.Span(),
				},
			})
			return
		}
		v = conformed
	}

	r.facts.Set(name, v)
	outcome.State = StateResolved
	outcome.Value = v
	r.engine.logger.Debug("attribute resolved", "attribute", name, "value", v.String())
	if r.engine.observer != nil {
		r.engine.observer.ObserveAttribute(name, StateResolved, "")
	}
}

// evaluate runs the rule of node. A panic inside a builtin fails this
// attribute only; the rest of the run continues.
func (r *run) evaluate(node *RuleNode) (v ast.Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.engine.logger.Error("rule evaluation panicked",
				"attribute", node.Attribute.Name,
				"panic", p,
			)
			v, err = ast.Null(), fmt.Errorf("internal error: %v", p)
		}
	}()
	return r.engine.evaluator.Evaluate(r.ctx, node.Expr, r.facts)
}

func (r *run) fail(name string, err *DerivationError) {
	outcome, ok := r.outcomes[name]
	if !ok {
		outcome = &Outcome{Attribute: name}
		r.outcomes[name] = outcome
	}
	outcome.State = StateFailed
	outcome.Err = err

	r.engine.logger.Debug("attribute failed", "attribute", name, "kind", string(err.Kind), "error", err)
	if r.engine.observer != nil {
		r.engine.observer.ObserveAttribute(name, StateFailed, err.Kind)
	}
}
