package eval

import (
	"math"

	"mercator-hq/meridian/pkg/dsl/ast"
)

func mathBuiltins() []Builtin {
	return []Builtin{
		{Name: "ABS", MinArgs: 1, MaxArgs: 1, Signature: "ABS(number)",
			Description: "Absolute value", Fn: builtinAbs},
		{Name: "ROUND", MinArgs: 1, MaxArgs: 2, Signature: "ROUND(number[, digits])",
			Description: "Rounds half away from zero; without digits the result is an integer", Fn: builtinRound},
		{Name: "FLOOR", MinArgs: 1, MaxArgs: 1, Signature: "FLOOR(number)",
			Description: "Largest integer not greater than number", Fn: roundWith(math.Floor)},
		{Name: "CEIL", MinArgs: 1, MaxArgs: 1, Signature: "CEIL(number)",
			Description: "Smallest integer not less than number", Fn: roundWith(math.Ceil)},
		{Name: "MIN", MinArgs: 1, MaxArgs: Variadic, Signature: "MIN(value, ...)",
			Description: "Smallest argument; list arguments are flattened", Fn: extremum(-1)},
		{Name: "MAX", MinArgs: 1, MaxArgs: Variadic, Signature: "MAX(value, ...)",
			Description: "Largest argument; list arguments are flattened", Fn: extremum(1)},
		{Name: "SUM", MinArgs: 0, MaxArgs: Variadic, Signature: "SUM(number, ...)",
			Description: "Sum of the arguments; nulls are skipped", Fn: builtinSum},
		{Name: "AVG", MinArgs: 0, MaxArgs: Variadic, Signature: "AVG(number, ...)",
			Description: "Mean of the arguments as a float; null when there are none", Fn: builtinAvg},
		{Name: "COUNT", MinArgs: 0, MaxArgs: Variadic, Signature: "COUNT(value, ...)",
			Description: "Number of non-null arguments", Fn: builtinCount},
	}
}

func numberArg(args []ast.Value, i int) (ast.Value, bool, error) {
	v := args[i]
	if v.IsNull() {
		return v, true, nil
	}
	if !v.IsNumeric() {
		return v, false, ArgumentError("argument %d must be numeric, got %s", i+1, v.Kind())
	}
	return v, false, nil
}

// flatten expands list arguments one level and drops nulls.
func flatten(args []ast.Value) []ast.Value {
	out := make([]ast.Value, 0, len(args))
	for _, a := range args {
		if items, ok := a.Items(); ok {
			for _, item := range items {
				if !item.IsNull() {
					out = append(out, item)
				}
			}
			continue
		}
		if !a.IsNull() {
			out = append(out, a)
		}
	}
	return out
}

func builtinAbs(_ *Call, args []ast.Value) (ast.Value, error) {
	v, isNull, err := numberArg(args, 0)
	if err != nil || isNull {
		return ast.Null(), err
	}
	if n, ok := v.AsInt(); ok {
		if n >= 0 {
			return v, nil
		}
		abs, ok := negInt(n)
		if !ok {
			return ast.Null(), overflow("ABS(%d)", n)
		}
		return ast.Int(abs), nil
	}
	f, _ := v.AsFloat()
	return ast.Float(math.Abs(f)), nil
}

func builtinRound(_ *Call, args []ast.Value) (ast.Value, error) {
	v, isNull, err := numberArg(args, 0)
	if err != nil || isNull {
		return ast.Null(), err
	}
	if len(args) == 1 {
		if v.Kind() == ast.KindInteger {
			return v, nil
		}
		f, _ := v.AsFloat()
		return toInteger(ast.Float(math.Round(f)))
	}
	digits, err := intArg(args, 1)
	if err != nil {
		return ast.Null(), err
	}
	if digits < 0 || digits > 15 {
		return ast.Null(), ArgumentError("digits must be between 0 and 15, got %d", digits)
	}
	f, _ := v.Number()
	scale := math.Pow(10, float64(digits))
	return ast.Float(math.Round(f*scale) / scale), nil
}

func roundWith(fn func(float64) float64) Func {
	return func(_ *Call, args []ast.Value) (ast.Value, error) {
		v, isNull, err := numberArg(args, 0)
		if err != nil || isNull {
			return ast.Null(), err
		}
		if v.Kind() == ast.KindInteger {
			return v, nil
		}
		f, _ := v.AsFloat()
		return toInteger(ast.Float(fn(f)))
	}
}

// extremum returns MIN (sign -1) or MAX (sign 1) over numbers or strings.
func extremum(sign int) Func {
	return func(_ *Call, args []ast.Value) (ast.Value, error) {
		values := flatten(args)
		if len(values) == 0 {
			return ast.Null(), nil
		}
		best := values[0]
		for _, v := range values[1:] {
			c, err := compareValues(v, best)
			if err != nil {
				return ast.Null(), ArgumentError("cannot compare %s with %s", v.Kind(), best.Kind())
			}
			if c*sign > 0 {
				best = v
			}
		}
		return best, nil
	}
}

func builtinSum(_ *Call, args []ast.Value) (ast.Value, error) {
	values := flatten(args)
	var (
		isum    int64
		fsum    float64
		isFloat bool
	)
	for i, v := range values {
		if !v.IsNumeric() {
			return ast.Null(), ArgumentError("value %d must be numeric, got %s", i+1, v.Kind())
		}
		if n, ok := v.AsInt(); ok && !isFloat {
			sum, exists := addInt(isum, n)
			if !exists {
				return ast.Null(), overflow("SUM exceeds the integer range at value %d", i+1)
			}
			isum = sum
			continue
		}
		if !isFloat {
			isFloat = true
			fsum = float64(isum)
		}
		f, _ := v.Number()
		fsum += f
	}
	if isFloat {
		return ast.Float(fsum), nil
	}
	return ast.Int(isum), nil
}

func builtinAvg(_ *Call, args []ast.Value) (ast.Value, error) {
	values := flatten(args)
	if len(values) == 0 {
		return ast.Null(), nil
	}
	var total float64
	for i, v := range values {
		f, ok := v.Number()
		if !ok {
			return ast.Null(), ArgumentError("value %d must be numeric, got %s", i+1, v.Kind())
		}
		total += f
	}
	return ast.Float(total / float64(len(values))), nil
}

func builtinCount(_ *Call, args []ast.Value) (ast.Value, error) {
	return ast.Int(int64(len(flatten(args)))), nil
}
