package eval

import (
	"fmt"
	"sort"

	"mercator-hq/meridian/pkg/dsl/ast"
)

// Facts is the set of attribute values visible to an evaluation. Assignments
// and derived attributes write into it.
//
// Facts is not safe for concurrent mutation; use one instance per run.
type Facts struct {
	values map[string]ast.Value
}

// NewFacts creates a fact set holding a copy of initial.
func NewFacts(initial map[string]ast.Value) *Facts {
	values := make(map[string]ast.Value, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &Facts{values: values}
}

// FactsFromNative converts decoded YAML or JSON data into a fact set.
func FactsFromNative(data map[string]any) (*Facts, error) {
	f := NewFacts(nil)
	for k, raw := range data {
		v, err := ast.FromNative(raw)
		if err != nil {
			return nil, fmt.Errorf("fact %q: %w", k, err)
		}
		f.values[k] = v
	}
	return f, nil
}

// FlattenNative turns nested maps into dotted fact names, so
// {customer: {age: 3}} becomes {customer.age: 3}. Other values are kept as is.
func FlattenNative(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			name := k
			if prefix != "" {
				name = prefix + "." + k
			}
			if nested, ok := v.(map[string]any); ok {
				walk(name, nested)
				continue
			}
			out[name] = v
		}
	}
	walk("", data)
	return out
}

// Get returns the value bound to name.
func (f *Facts) Get(name string) (ast.Value, bool) {
	v, ok := f.values[name]
	return v, ok
}

// Has reports whether name is bound.
func (f *Facts) Has(name string) bool {
	_, ok := f.values[name]
	return ok
}

// Set binds name to v, replacing any previous value.
func (f *Facts) Set(name string, v ast.Value) {
	f.values[name] = v
}

// Delete removes name.
func (f *Facts) Delete(name string) {
	delete(f.values, name)
}

// Len returns the number of bound names.
func (f *Facts) Len() int { return len(f.values) }

// Names returns the bound names in sorted order.
func (f *Facts) Names() []string {
	names := make([]string, 0, len(f.values))
	for k := range f.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the current bindings.
func (f *Facts) Snapshot() map[string]ast.Value {
	out := make(map[string]ast.Value, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy of f.
func (f *Facts) Clone() *Facts {
	return NewFacts(f.values)
}

// Native returns the bindings as plain Go data, for serialisation.
func (f *Facts) Native() map[string]any {
	out := make(map[string]any, len(f.values))
	for k, v := range f.values {
		out[k] = v.Native()
	}
	return out
}
