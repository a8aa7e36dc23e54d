package derive

import (
	"fmt"
	"sort"
	"time"

	"mercator-hq/meridian/pkg/dsl/ast"
)

// State is the lifecycle position of one attribute within a run.
type State int

const (
	StatePending State = iota
	StateResolving
	StateResolved
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Outcome is the result for a single attribute.
type Outcome struct {
	// Attribute is the attribute name.
	Attribute string

	// State is StateResolved or StateFailed once the run is over.
	State State

	// Value is the computed or supplied value. Null unless resolved.
	Value ast.Value

	// Err explains a failure. Nil unless failed.
	Err *DerivationError
}

// Result maps attribute names to outcomes. It holds an outcome for every
// requested attribute and for every derived attribute evaluated on the way.
type Result struct {
	// Requested is the attribute list passed to Run, in the caller's order.
	Requested []string

	// Outcomes maps attribute names to their outcome.
	Outcomes map[string]*Outcome

	// Evaluated lists the derived attributes whose rules ran, in order.
	Evaluated []string

	// Duration is the wall time of the run.
	Duration time.Duration
}

// Get returns the value of name, or the error explaining why it has none.
func (r *Result) Get(name string) (ast.Value, error) {
	o, ok := r.Outcomes[name]
	if !ok {
		return ast.Null(), &DerivationError{Kind: KindUnknownAttribute, Attribute: name}
	}
	if o.Err != nil {
		return ast.Null(), o.Err
	}
	return o.Value, nil
}

// Failed returns the failed requested outcomes sorted by attribute name.
func (r *Result) Failed() []*Outcome {
	var out []*Outcome
	for _, name := range r.Requested {
		if o := r.Outcomes[name]; o != nil && o.State == StateFailed {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Attribute < out[j].Attribute })
	return out
}

// OK reports whether every requested attribute resolved.
func (r *Result) OK() bool {
	return len(r.Failed()) == 0
}

// Complete reports whether every requested attribute reached a final state.
func (r *Result) Complete() bool {
	for _, name := range r.Requested {
		o := r.Outcomes[name]
		if o == nil || (o.State != StateResolved && o.State != StateFailed) {
			return false
		}
	}
	return true
}

// Values returns the resolved requested values.
func (r *Result) Values() map[string]ast.Value {
	out := make(map[string]ast.Value)
	for _, name := range r.Requested {
		if o := r.Outcomes[name]; o != nil && o.State == StateResolved {
			out[name] = o.Value
		}
	}
	return out
}
