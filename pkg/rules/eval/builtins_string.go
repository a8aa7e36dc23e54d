package eval

import (
	"strings"
	"unicode/utf8"

	"mercator-hq/meridian/pkg/dsl/ast"
)

func stringBuiltins() []Builtin {
	return []Builtin{
		{Name: "CONCAT", MinArgs: 0, MaxArgs: Variadic, Signature: "CONCAT(value, ...)",
			Description: "Joins the text of every argument", Fn: builtinConcat},
		{Name: "SUBSTRING", MinArgs: 2, MaxArgs: 3, Signature: "SUBSTRING(text, start[, length])",
			Description: "Characters of text from zero-based start, optionally limited to length", Fn: builtinSubstring},
		{Name: "UPPER", MinArgs: 1, MaxArgs: 1, Signature: "UPPER(text)",
			Description: "Upper-cases text", Fn: mapString(strings.ToUpper)},
		{Name: "LOWER", MinArgs: 1, MaxArgs: 1, Signature: "LOWER(text)",
			Description: "Lower-cases text", Fn: mapString(strings.ToLower)},
		{Name: "TRIM", MinArgs: 1, MaxArgs: 1, Signature: "TRIM(text)",
			Description: "Removes leading and trailing whitespace", Fn: mapString(strings.TrimSpace)},
		{Name: "LENGTH", MinArgs: 1, MaxArgs: 1, Signature: "LENGTH(text | list)",
			Description: "Number of characters in text or elements in a list", Fn: builtinLength},
		{Name: "LEN", MinArgs: 1, MaxArgs: 1, Signature: "LEN(text | list)",
			Description: "Alias of LENGTH", Fn: builtinLength},
	}
}

// stringArg returns args[i] as a string. null reports isNull without error.
func stringArg(args []ast.Value, i int) (s string, isNull bool, err error) {
	v := args[i]
	if v.IsNull() {
		return "", true, nil
	}
	s, ok := v.AsString()
	if !ok {
		return "", false, ArgumentError("argument %d must be a string, got %s", i+1, v.Kind())
	}
	return s, false, nil
}

func intArg(args []ast.Value, i int) (int64, error) {
	n, ok := args[i].AsInt()
	if !ok {
		return 0, ArgumentError("argument %d must be an integer, got %s", i+1, args[i].Kind())
	}
	return n, nil
}

func mapString(fn func(string) string) Func {
	return func(_ *Call, args []ast.Value) (ast.Value, error) {
		s, isNull, err := stringArg(args, 0)
		if err != nil || isNull {
			return ast.Null(), err
		}
		return ast.String(fn(s)), nil
	}
}

func builtinConcat(_ *Call, args []ast.Value) (ast.Value, error) {
	var sb strings.Builder
	for _, a := range args {
		sb.WriteString(a.Text())
	}
	return ast.String(sb.String()), nil
}

func builtinSubstring(_ *Call, args []ast.Value) (ast.Value, error) {
	s, isNull, err := stringArg(args, 0)
	if err != nil || isNull {
		return ast.Null(), err
	}
	start, err := intArg(args, 1)
	if err != nil {
		return ast.Null(), err
	}
	if start < 0 {
		return ast.Null(), ArgumentError("start must not be negative, got %d", start)
	}

	runes := []rune(s)
	if start >= int64(len(runes)) {
		return ast.String(""), nil
	}
	end := int64(len(runes))
	if len(args) == 3 {
		length, err := intArg(args, 2)
		if err != nil {
			return ast.Null(), err
		}
		if length < 0 {
			return ast.Null(), ArgumentError("length must not be negative, got %d", length)
		}
		if length < end-start {
			end = start + length
		}
	}
	return ast.String(string(runes[start:end])), nil
}

func builtinLength(_ *Call, args []ast.Value) (ast.Value, error) {
	v := args[0]
	switch v.Kind() {
	case ast.KindNull:
		return ast.Int(0), nil
	case ast.KindString:
		s, _ := v.AsString()
		return ast.Int(int64(utf8.RuneCountInString(s))), nil
	case ast.KindList:
		return ast.Int(int64(v.Len())), nil
	}
	return ast.Null(), ArgumentError("argument must be a string or list, got %s", v.Kind())
}
