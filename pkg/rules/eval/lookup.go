package eval

import (
	"context"
	"fmt"

	"mercator-hq/meridian/pkg/dsl/ast"
)

// LookupProvider resolves keys in named reference tables. Implementations may
// perform I/O; the evaluator passes its context through.
type LookupProvider interface {
	// Lookup returns the value stored under key in table. The boolean is false
	// when the table or key does not exist. A non-nil error means the provider
	// itself failed.
	Lookup(ctx context.Context, table, key string) (ast.Value, bool, error)
}

// MissPolicy decides what LOOKUP returns for a key that is not present.
type MissPolicy string

const (
	// MissError fails evaluation with a lookup_miss error. This is the default.
	MissError MissPolicy = "error"
	// MissNull makes LOOKUP return null for absent keys.
	MissNull MissPolicy = "null"
)

// ParseMissPolicy resolves a configured policy name. The empty string means MissError.
func ParseMissPolicy(s string) (MissPolicy, error) {
	switch MissPolicy(s) {
	case "", MissError:
		return MissError, nil
	case MissNull:
		return MissNull, nil
	}
	return "", fmt.Errorf("unknown lookup miss policy %q (want %q or %q)", s, MissError, MissNull)
}

type noLookups struct{}

func (noLookups) Lookup(context.Context, string, string) (ast.Value, bool, error) {
	return ast.Null(), false, nil
}

// builtinLookup implements LOOKUP(key, table).
func builtinLookup(call *Call, args []ast.Value) (ast.Value, error) {
	key, table := args[0], args[1]
	tableName, ok := table.AsString()
	if !ok {
		return ast.Null(), ArgumentError("table name must be a string, got %s", table.Kind())
	}
	if key.IsNull() {
		return ast.Null(), nil
	}
	if key.Kind() == ast.KindList || key.Kind() == ast.KindRegex {
		return ast.Null(), ArgumentError("lookup key must be a scalar, got %s", key.Kind())
	}

	v, found, err := call.Lookups.Lookup(call.Context, tableName, key.Text())
	if err != nil {
		return ast.Null(), &EvalError{
			Kind:    KindLookupFailed,
			Message: fmt.Sprintf("table %q key %q", tableName, key.Text()),
			Cause:   err,
		}
	}
	if found {
		return v, nil
	}
	if call.MissPolicy == MissNull {
		return ast.Null(), nil
	}
	return ast.Null(), newError(KindLookupMiss, "key %q not found in table %q", key.Text(), tableName)
}
