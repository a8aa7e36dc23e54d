package eval

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"mercator-hq/meridian/pkg/dsl/ast"
)

// castTo converts v to target. Null stays null for every target.
func castTo(v ast.Value, target ast.DeclaredType) (ast.Value, error) {
	if v.IsNull() {
		return v, nil
	}
	switch target {
	case ast.TypeString:
		if v.Kind() == ast.KindList {
			return ast.Null(), typeMismatch("cannot cast list to string")
		}
		return ast.String(v.Text()), nil
	case ast.TypeInteger:
		return toInteger(v)
	case ast.TypeFloat:
		return toFloat(v)
	case ast.TypeBoolean:
		return toBoolean(v)
	}
	return ast.Null(), typeMismatch("cannot cast to %s", target)
}

func toInteger(v ast.Value) (ast.Value, error) {
	switch v.Kind() {
	case ast.KindInteger:
		return v, nil
	case ast.KindFloat:
		f, _ := v.AsFloat()
		if math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
			return ast.Null(), typeMismatch("float %v does not fit an integer", f)
		}
		return ast.Int(int64(math.Trunc(f))), nil
	case ast.KindBoolean:
		if b, _ := v.AsBool(); b {
			return ast.Int(1), nil
		}
		return ast.Int(0), nil
	case ast.KindString:
		s, _ := v.AsString()
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return ast.Int(n), nil
		}
		return ast.Null(), typeMismatch("cannot cast %q to integer", s)
	}
	return ast.Null(), typeMismatch("cannot cast %s to integer", v.Kind())
}

func toFloat(v ast.Value) (ast.Value, error) {
	switch v.Kind() {
	case ast.KindInteger, ast.KindFloat:
		f, _ := v.Number()
		return ast.Float(f), nil
	case ast.KindBoolean:
		if b, _ := v.AsBool(); b {
			return ast.Float(1), nil
		}
		return ast.Float(0), nil
	case ast.KindString:
		s, _ := v.AsString()
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return ast.Float(f), nil
		}
		return ast.Null(), typeMismatch("cannot cast %q to float", s)
	}
	return ast.Null(), typeMismatch("cannot cast %s to float", v.Kind())
}

func toBoolean(v ast.Value) (ast.Value, error) {
	switch v.Kind() {
	case ast.KindBoolean:
		return v, nil
	case ast.KindInteger, ast.KindFloat:
		f, _ := v.Number()
		return ast.Bool(f != 0), nil
	case ast.KindString:
		s, _ := v.AsString()
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes", "y", "1":
			return ast.Bool(true), nil
		case "false", "no", "n", "0", "":
			return ast.Bool(false), nil
		}
		return ast.Null(), typeMismatch("cannot cast %q to boolean", s)
	}
	return ast.Null(), typeMismatch("cannot cast %s to boolean", v.Kind())
}

// toNumber parses strings as integers when possible and floats otherwise.
func toNumber(v ast.Value) (ast.Value, error) {
	if s, ok := v.AsString(); ok {
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return ast.Int(n), nil
		}
		return toFloat(v)
	}
	if v.IsNumeric() || v.IsNull() {
		return v, nil
	}
	if v.Kind() == ast.KindBoolean {
		return toInteger(v)
	}
	return ast.Null(), typeMismatch("cannot convert %s to a number", v.Kind())
}

// compilePattern accepts a regex value or a string holding a pattern.
func compilePattern(cache *PatternCache, pattern ast.Value) (*regexp.Regexp, error) {
	src, ok := pattern.Pattern()
	if !ok {
		src, ok = pattern.AsString()
	}
	if !ok {
		return nil, typeMismatch("pattern must be a regex or string, got %s", pattern.Kind())
	}
	re, err := cache.Compile(src)
	if err != nil {
		return nil, &EvalError{Kind: KindRegexCompile, Message: "invalid pattern " + strconv.Quote(src), Cause: err}
	}
	return re, nil
}
