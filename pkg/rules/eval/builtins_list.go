package eval

import (
	"errors"

	"mercator-hq/meridian/pkg/dsl/ast"
)

func listBuiltins() []Builtin {
	return []Builtin{
		{Name: "FIRST", MinArgs: 1, MaxArgs: 1, Signature: "FIRST(list)",
			Description: "First element of a list, or null when empty", Fn: listEnd(true)},
		{Name: "LAST", MinArgs: 1, MaxArgs: 1, Signature: "LAST(list)",
			Description: "Last element of a list, or null when empty", Fn: listEnd(false)},
		{Name: "GET", MinArgs: 2, MaxArgs: 2, Signature: "GET(list, index)",
			Description: "Element at zero-based index, or null when out of range", Fn: builtinGet},
		{Name: "HAS", MinArgs: 1, MaxArgs: 1, Signature: "HAS(value)",
			Description: "True when value is not null", Fn: builtinHas},
		{Name: "IS_NULL", MinArgs: 1, MaxArgs: 1, Signature: "IS_NULL(value)",
			Description: "True when value is null", Fn: builtinIsNull},
		{Name: "IS_EMPTY", MinArgs: 1, MaxArgs: 1, Signature: "IS_EMPTY(value)",
			Description: "True for null, the empty string and the empty list", Fn: builtinIsEmpty},
		{Name: "COALESCE", MinArgs: 1, MaxArgs: Variadic, Signature: "COALESCE(value, ...)",
			Description: "First argument that is not null", Fn: builtinCoalesce},
	}
}

func listArg(args []ast.Value, i int) ([]ast.Value, bool, error) {
	v := args[i]
	if v.IsNull() {
		return nil, true, nil
	}
	items, ok := v.Items()
	if !ok {
		return nil, false, ArgumentError("argument %d must be a list, got %s", i+1, v.Kind())
	}
	return items, false, nil
}

func listEnd(first bool) Func {
	return func(_ *Call, args []ast.Value) (ast.Value, error) {
		items, isNull, err := listArg(args, 0)
		if err != nil || isNull || len(items) == 0 {
			return ast.Null(), err
		}
		if first {
			return items[0], nil
		}
		return items[len(items)-1], nil
	}
}

func builtinGet(_ *Call, args []ast.Value) (ast.Value, error) {
	items, isNull, err := listArg(args, 0)
	if err != nil || isNull {
		return ast.Null(), err
	}
	idx, err := intArg(args, 1)
	if err != nil {
		return ast.Null(), err
	}
	if idx < 0 || idx >= int64(len(items)) {
		return ast.Null(), nil
	}
	return items[idx], nil
}

func builtinHas(_ *Call, args []ast.Value) (ast.Value, error) {
	return ast.Bool(!args[0].IsNull()), nil
}

func builtinIsNull(_ *Call, args []ast.Value) (ast.Value, error) {
	return ast.Bool(args[0].IsNull()), nil
}

func builtinIsEmpty(_ *Call, args []ast.Value) (ast.Value, error) {
	v := args[0]
	switch v.Kind() {
	case ast.KindNull:
		return ast.Bool(true), nil
	case ast.KindString, ast.KindList:
		return ast.Bool(v.Len() == 0), nil
	}
	return ast.Bool(false), nil
}

func builtinCoalesce(_ *Call, args []ast.Value) (ast.Value, error) {
	for _, a := range args {
		if !a.IsNull() {
			return a, nil
		}
	}
	return ast.Null(), nil
}

func conversionBuiltins() []Builtin {
	return []Builtin{
		{Name: "TO_STRING", MinArgs: 1, MaxArgs: 1, Signature: "TO_STRING(value)",
			Description: "Text form of value", Fn: converter(func(v ast.Value) (ast.Value, error) { return castTo(v, ast.TypeString) })},
		{Name: "TO_NUMBER", MinArgs: 1, MaxArgs: 1, Signature: "TO_NUMBER(value)",
			Description: "Parses text as an integer or float", Fn: converter(toNumber)},
		{Name: "TO_BOOLEAN", MinArgs: 1, MaxArgs: 1, Signature: "TO_BOOLEAN(value)",
			Description: "Interprets true/false, yes/no, 1/0 and non-zero numbers", Fn: converter(toBoolean)},
	}
}

// converter adapts a cast to a builtin, reporting failures as argument errors.
func converter(fn func(ast.Value) (ast.Value, error)) Func {
	return func(_ *Call, args []ast.Value) (ast.Value, error) {
		if args[0].IsNull() {
			return ast.Null(), nil
		}
		v, err := fn(args[0])
		var ee *EvalError
		if errors.As(err, &ee) {
			return ast.Null(), ArgumentError("%s", ee.Message)
		}
		if err != nil {
			return ast.Null(), err
		}
		return v, nil
	}
}
