package eval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"mercator-hq/meridian/pkg/dsl/ast"
)

// Variadic marks a builtin without an upper argument bound.
const Variadic = -1

// Func implements a builtin. Arguments have already been evaluated and their
// count checked against the builtin's arity.
type Func func(call *Call, args []ast.Value) (ast.Value, error)

// Builtin describes a named function callable from rules.
type Builtin struct {
	// Name is the upper-case name rules call the function by.
	Name string

	// MinArgs is the smallest accepted argument count.
	MinArgs int

	// MaxArgs is the largest accepted argument count, or Variadic for no
	// upper bound.
	MaxArgs int

	// Signature is shown in diagnostics and `meridian functions`,
	// e.g. "SUBSTRING(text, start, length)".
	Signature string

	// Description is a one-line summary for listings.
	Description string

	// Fn implements the function.
	Fn Func
}

// CheckArity returns a function argument error when n arguments are not accepted.
func (b Builtin) CheckArity(n int) error {
	if n >= b.MinArgs && (b.MaxArgs == Variadic || n <= b.MaxArgs) {
		return nil
	}
	var want string
	switch {
	case b.MaxArgs == Variadic:
		want = fmt.Sprintf("at least %d", b.MinArgs)
	case b.MinArgs == b.MaxArgs:
		want = fmt.Sprintf("%d", b.MinArgs)
	default:
		want = fmt.Sprintf("%d to %d", b.MinArgs, b.MaxArgs)
	}
	return &EvalError{
		Kind:     KindFunctionArgument,
		Function: b.Name,
		Message:  fmt.Sprintf("expects %s argument(s), got %d", want, n),
	}
}

// Call carries the per-invocation environment handed to builtins.
type Call struct {
	// Context is the evaluation context. Lookups honour its cancellation.
	Context context.Context

	// Name is the upper-case name of the function being called.
	Name string

	// Lookups resolves LOOKUP tables. The evaluator never leaves it nil.
	Lookups LookupProvider

	// Patterns caches compiled regular expressions.
	Patterns *PatternCache

	// MissPolicy decides whether a lookup miss is null or an error.
	MissPolicy MissPolicy
}

// Registry maps function names to builtins. Names are case-insensitive.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Builtin
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Builtin)}
}

// DefaultRegistry creates a registry holding every standard builtin.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, group := range [][]Builtin{stringBuiltins(), mathBuiltins(), listBuiltins(), conversionBuiltins(), validatorBuiltins()} {
		for _, b := range group {
			r.MustRegister(b)
		}
	}
	r.MustRegister(Builtin{
		Name:        "LOOKUP",
		MinArgs:     2,
		MaxArgs:     2,
		Signature:   "LOOKUP(key, table)",
		Description: "Value stored under key in the named reference table",
		Fn:          builtinLookup,
	})
	return r
}

// Register adds b. Registering a name twice is an error.
func (r *Registry) Register(b Builtin) error {
	name := strings.ToUpper(strings.TrimSpace(b.Name))
	if name == "" {
		return errors.New("builtin name is required")
	}
	if b.Fn == nil {
		return fmt.Errorf("builtin %s has no implementation", name)
	}
	if b.MinArgs < 0 || (b.MaxArgs != Variadic && b.MaxArgs < b.MinArgs) {
		return fmt.Errorf("builtin %s has invalid arity %d..%d", name, b.MinArgs, b.MaxArgs)
	}
	b.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("builtin %s is already registered", name)
	}
	r.funcs[name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(b Builtin) {
	if err := r.Register(b); err != nil {
		panic(err)
	}
}

// Lookup returns the builtin registered under name.
func (r *Registry) Lookup(name string) (Builtin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.funcs[strings.ToUpper(name)]
	return b, ok
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtins returns every registered builtin sorted by name.
func (r *Registry) Builtins() []Builtin {
	names := r.Names()
	out := make([]Builtin, 0, len(names))
	for _, name := range names {
		b, _ := r.Lookup(name)
		out = append(out, b)
	}
	return out
}

// Call invokes the builtin name with already evaluated arguments.
func (r *Registry) Call(call *Call, name string, args []ast.Value) (ast.Value, error) {
	b, ok := r.Lookup(name)
	if !ok {
		return ast.Null(), &EvalError{
			Kind:     KindFunctionArgument,
			Function: strings.ToUpper(name),
			Message:  "unknown function",
		}
	}
	if err := b.CheckArity(len(args)); err != nil {
		return ast.Null(), err
	}

	call.Name = b.Name
	v, err := b.Fn(call, args)
	if err == nil {
		return v, nil
	}
	var ee *EvalError
	if !errors.As(err, &ee) {
		return ast.Null(), &EvalError{Kind: KindFunctionArgument, Function: b.Name, Message: "call failed", Cause: err}
	}
	if ee.Function == "" {
		ee.Function = b.Name
	}
	return ast.Null(), err
}
