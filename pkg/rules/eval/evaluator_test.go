package eval

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"mercator-hq/meridian/pkg/dsl/ast"
	"mercator-hq/meridian/pkg/dsl/parser"
)

// tableLookups is an in-memory LookupProvider that counts calls.
type tableLookups struct {
	tables map[string]map[string]ast.Value
	calls  int
	err    error
}

func (l *tableLookups) Lookup(_ context.Context, table, key string) (ast.Value, bool, error) {
	l.calls++
	if l.err != nil {
		return ast.Null(), false, l.err
	}
	v, ok := l.tables[table][key]
	return v, ok, nil
}

func newTestEvaluator(t *testing.T, cfg *Config, lookups LookupProvider) *Evaluator {
	t.Helper()
	ev, err := NewEvaluator(cfg, nil, lookups, nil)
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}
	return ev
}

func evalSource(t *testing.T, ev *Evaluator, src string, facts *Facts) (ast.Value, error) {
	t.Helper()
	expr, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", src, err)
	}
	return ev.Evaluate(context.Background(), expr, facts)
}

func sameValue(a, b ast.Value) bool {
	return a.Kind() == b.Kind() && a.Equal(b)
}

func TestEvaluator_Evaluate_Values(t *testing.T) {
	ev := newTestEvaluator(t, nil, nil)
	facts := map[string]ast.Value{
		"income":       ast.Int(120000),
		"rate":         ast.Float(0.25),
		"country":      ast.String("US"),
		"tags":         ast.List(ast.String("vip"), ast.String("new")),
		"nothing":      ast.Null(),
		"customer.age": ast.Int(42),
	}

	tests := []struct {
		src  string
		want ast.Value
	}{
		{"1 + 2", ast.Int(3)},
		{"1 + 2.5", ast.Float(3.5)},
		{"2 * 3 + 1", ast.Int(7)},
		{"7 / 2", ast.Float(3.5)},
		{"6 / 3", ast.Float(2)},
		{"7 % 3", ast.Int(1)},
		{"100 + 25 * 2 - 10 / 2", ast.Float(145)},
		// integer * integer stays an integer; only / produces a float
		{"(100 + 50) * 2", ast.Int(300)},
		{`"Hello " & "World"`, ast.String("Hello World")},
		{`SUBSTRING("USR123", 0, 3)`, ast.String("USR")},
		{"-(2)", ast.Int(-2)},
		{"-rate", ast.Float(-0.25)},
		{`"a" & 1 & true`, ast.String("a1true")},
		{`"x" & nothing`, ast.String("x")},
		{"income * rate", ast.Float(30000)},
		{"5 == 5.0", ast.Bool(true)},
		{`"5" == 5`, ast.Bool(false)},
		{`"5" != 5`, ast.Bool(true)},
		{"nothing == null", ast.Bool(true)},
		{"3 < 4.5", ast.Bool(true)},
		{`"abc" < "abd"`, ast.Bool(true)},
		{"income >= 120000", ast.Bool(true)},
		{"customer.age > 40", ast.Bool(true)},
		{"true AND false", ast.Bool(false)},
		{"nothing OR true", ast.Bool(true)},
		{"NOT nothing", ast.Bool(true)},
		{"IF false THEN 1", ast.Null()},
		{`IF income > 100000 THEN "high" ELSE "standard"`, ast.String("high")},
		{`IF income > 200000 THEN "a" ELSE IF income > 100000 THEN "b" ELSE "c"`, ast.String("b")},
		{`country IN ["US", "CA"]`, ast.Bool(true)},
		{`country NOT_IN ["US", "CA"]`, ast.Bool(false)},
		{"1 IN [1.0, 2]", ast.Bool(true)},
		{`tags CONTAINS "vip"`, ast.Bool(true)},
		{`"hello world" CONTAINS "lo w"`, ast.Bool(true)},
		{`country STARTS_WITH "U"`, ast.Bool(true)},
		{`country ENDS_WITH "X"`, ast.Bool(false)},
		{`"ABC" ~ /^[A-Z]+$/`, ast.Bool(true)},
		{`"abc" MATCHES "^b"`, ast.Bool(false)},
		{"[1, income > 0]", ast.List(ast.Int(1), ast.Bool(true))},
		{`CAST("12" AS INTEGER)`, ast.Int(12)},
		{"CAST(3.9 AS INTEGER)", ast.Int(3)},
		{"CAST(2 AS FLOAT)", ast.Float(2)},
		{`CAST("yes" AS BOOLEAN)`, ast.Bool(true)},
		{"CAST(12 AS STRING)", ast.String("12")},
		{"CAST(null AS INTEGER)", ast.Null()},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := evalSource(t, ev, tt.src, NewFacts(facts))
			if err != nil {
				t.Fatalf("Evaluate(%q) error = %v", tt.src, err)
			}
			if !sameValue(got, tt.want) {
				t.Errorf("Evaluate(%q) = %v (%s), want %v (%s)", tt.src, got, got.Kind(), tt.want, tt.want.Kind())
			}
		})
	}
}

func TestEvaluator_Evaluate_Errors(t *testing.T) {
	ev := newTestEvaluator(t, nil, &tableLookups{})

	tests := []struct {
		src  string
		kind ErrorKind
		is   error
	}{
		{"missing + 1", KindUnknownAttribute, ErrUnknownAttribute},
		{"1 / 0", KindDivisionByZero, ErrDivisionByZero},
		{"1.5 / 0.0", KindDivisionByZero, ErrDivisionByZero},
		{"5 % 0", KindDivisionByZero, ErrDivisionByZero},
		{`"a" + 1`, KindTypeMismatch, ErrTypeMismatch},
		{"5.5 % 2", KindTypeMismatch, ErrTypeMismatch},
		{`"a" < 1`, KindTypeMismatch, ErrTypeMismatch},
		{"true > false", KindTypeMismatch, ErrTypeMismatch},
		{"IF 1 THEN 2", KindTypeMismatch, ErrTypeMismatch},
		{"1 AND true", KindTypeMismatch, ErrTypeMismatch},
		{"true AND 1", KindTypeMismatch, ErrTypeMismatch},
		{`-"a"`, KindTypeMismatch, ErrTypeMismatch},
		{`1 ~ /x/`, KindTypeMismatch, ErrTypeMismatch},
		{`1 IN 2`, KindTypeMismatch, ErrTypeMismatch},
		{`CAST("abc" AS INTEGER)`, KindTypeMismatch, ErrTypeMismatch},
		{"NOSUCH(1)", KindFunctionArgument, ErrFunctionArgument},
		{"UPPER()", KindFunctionArgument, ErrFunctionArgument},
		{"UPPER(1)", KindFunctionArgument, ErrFunctionArgument},
		{`TO_NUMBER("abc")`, KindFunctionArgument, ErrFunctionArgument},
		{`SUBSTRING("abc", -1)`, KindFunctionArgument, ErrFunctionArgument},
		{`"x" ~ "["`, KindRegexCompile, ErrRegexCompile},
		{`VALIDATE("x", "(")`, KindRegexCompile, ErrRegexCompile},
		{`LOOKUP("k", "t")`, KindLookupMiss, ErrLookupMiss},
		{`LOOKUP("k", 1)`, KindFunctionArgument, ErrFunctionArgument},
		{`IS_EMAIL(42)`, KindFunctionArgument, ErrFunctionArgument},
		{`IS_SWIFT(true)`, KindFunctionArgument, ErrFunctionArgument},
		{`IS_PHONE(4155552671)`, KindFunctionArgument, ErrFunctionArgument},
		{`IS_LEI(["529900T8BM49AURSDO55"])`, KindFunctionArgument, ErrFunctionArgument},
		{`VALIDATE(12, "^1")`, KindFunctionArgument, ErrFunctionArgument},
		{`EXTRACT(2024, /\d+/)`, KindFunctionArgument, ErrFunctionArgument},
		{"9223372036854775807 + 1", KindTypeMismatch, ErrTypeMismatch},
		{"-9223372036854775807 - 2", KindTypeMismatch, ErrTypeMismatch},
		{"4611686018427387904 * 2", KindTypeMismatch, ErrTypeMismatch},
		{"SUM(9223372036854775807, 1)", KindTypeMismatch, ErrTypeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := evalSource(t, ev, tt.src, NewFacts(nil))
			if err == nil {
				t.Fatalf("Evaluate(%q) error = nil, want %s", tt.src, tt.kind)
			}
			var ee *EvalError
			if !errors.As(err, &ee) {
				t.Fatalf("Evaluate(%q) error type = %T, want *EvalError", tt.src, err)
			}
			if ee.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s (%v)", ee.Kind, tt.kind, err)
			}
			if !errors.Is(err, tt.is) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.is)
			}
		})
	}
}

func TestEvaluator_Evaluate_IntegerOverflow(t *testing.T) {
	ev := newTestEvaluator(t, nil, nil)
	facts := map[string]ast.Value{
		"biggest":  ast.Int(math.MaxInt64),
		"smallest": ast.Int(math.MinInt64),
	}

	for _, src := range []string{"biggest + 1", "smallest - 1", "biggest * 2", "smallest * -1", "-smallest", "ABS(smallest)", "SUM([biggest, 1])"} {
		t.Run(src, func(t *testing.T) {
			got, err := evalSource(t, ev, src, NewFacts(facts))
			if !errors.Is(err, ErrTypeMismatch) {
				t.Fatalf("Evaluate(%q) = %v, %v; want type mismatch", src, got, err)
			}
			if !strings.Contains(err.Error(), "integer overflow") {
				t.Errorf("Evaluate(%q) error = %v, want integer overflow", src, err)
			}
		})
	}

	got, err := evalSource(t, ev, "biggest + smallest", NewFacts(facts))
	if err != nil || !sameValue(got, ast.Int(-1)) {
		t.Errorf("Evaluate(biggest + smallest) = %v, %v; want -1", got, err)
	}
	got, err = evalSource(t, ev, "biggest + 1.0", NewFacts(facts))
	if err != nil || got.Kind() != ast.KindFloat {
		t.Errorf("Evaluate(biggest + 1.0) = %v, %v; want a float", got, err)
	}
}

func TestEvaluator_Evaluate_ErrorSpan(t *testing.T) {
	ev := newTestEvaluator(t, nil, nil)
	_, err := evalSource(t, ev, "1 + (2 / 0)", NewFacts(nil))

	var ee *EvalError
	if !errors.As(err, &ee) {
		t.Fatalf("error = %v, want *EvalError", err)
	}
	if ee.Span != (ast.Span{Start: 5, End: 10}) {
		t.Errorf("Span = %v, want 5..10", ee.Span)
	}

	_, err = evalSource(t, ev, "a + bogus", NewFacts(map[string]ast.Value{"a": ast.Int(1)}))
	if !errors.As(err, &ee) || ee.Attribute != "bogus" || ee.Span != (ast.Span{Start: 4, End: 9}) {
		t.Errorf("unknown attribute error = %+v", ee)
	}
}

func TestEvaluator_Evaluate_ShortCircuit(t *testing.T) {
	lookups := &tableLookups{tables: map[string]map[string]ast.Value{"t": {"k": ast.Int(1)}}}
	ev := newTestEvaluator(t, nil, lookups)

	tests := []struct {
		src  string
		want bool
	}{
		{`false AND LOOKUP("k", "t") == 1`, false},
		{`true OR LOOKUP("k", "t") == 1`, true},
		{"false AND missing", false},
		{"true OR 1 / 0 > 1", true},
	}
	for _, tt := range tests {
		got, err := evalSource(t, ev, tt.src, NewFacts(nil))
		if err != nil {
			t.Fatalf("Evaluate(%q) error = %v", tt.src, err)
		}
		if b, _ := got.AsBool(); b != tt.want {
			t.Errorf("Evaluate(%q) = %v, want %v", tt.src, got, tt.want)
		}
	}
	if lookups.calls != 0 {
		t.Errorf("lookup provider called %d times, want 0", lookups.calls)
	}

	if _, err := evalSource(t, ev, `IF false THEN missing ELSE LOOKUP("k", "t")`, NewFacts(nil)); err != nil {
		t.Errorf("untaken branch was evaluated: %v", err)
	}
}

func TestEvaluator_Evaluate_Assignment(t *testing.T) {
	ev := newTestEvaluator(t, nil, nil)
	facts := NewFacts(map[string]ast.Value{"y": ast.Int(3)})

	got, err := evalSource(t, ev, "x = y * 2", facts)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	stored, ok := facts.Get("x")
	if !ok || !sameValue(stored, ast.Int(6)) || !sameValue(got, ast.Int(6)) {
		t.Errorf("x = %v (bound %v), result %v, want 6", stored, ok, got)
	}
}

func TestEvaluator_Lookup(t *testing.T) {
	tables := map[string]map[string]ast.Value{
		"country_risk": {"US": ast.String("low"), "1": ast.String("numeric key")},
	}

	t.Run("hit", func(t *testing.T) {
		ev := newTestEvaluator(t, nil, &tableLookups{tables: tables})
		got, err := evalSource(t, ev, `LOOKUP(country, "country_risk")`, NewFacts(map[string]ast.Value{"country": ast.String("US")}))
		if err != nil || !sameValue(got, ast.String("low")) {
			t.Errorf("LOOKUP = %v, %v; want low", got, err)
		}
		got, err = evalSource(t, ev, `LOOKUP(1, "country_risk")`, NewFacts(nil))
		if err != nil || !sameValue(got, ast.String("numeric key")) {
			t.Errorf("LOOKUP(1) = %v, %v; want numeric key", got, err)
		}
	})

	t.Run("miss is an error by default", func(t *testing.T) {
		ev := newTestEvaluator(t, nil, &tableLookups{tables: tables})
		_, err := evalSource(t, ev, `LOOKUP("FR", "country_risk")`, NewFacts(nil))
		if !errors.Is(err, ErrLookupMiss) {
			t.Errorf("error = %v, want lookup miss", err)
		}
	})

	t.Run("miss returns null when configured", func(t *testing.T) {
		ev := newTestEvaluator(t, &Config{LookupMiss: MissNull}, &tableLookups{tables: tables})
		got, err := evalSource(t, ev, `LOOKUP("FR", "country_risk")`, NewFacts(nil))
		if err != nil || !got.IsNull() {
			t.Errorf("LOOKUP = %v, %v; want null", got, err)
		}
	})

	t.Run("unknown country code", func(t *testing.T) {
		countries := map[string]map[string]ast.Value{"countries": {"US": ast.String("United States")}}
		src := `LOOKUP("ZZ", "countries")`

		ev := newTestEvaluator(t, nil, &tableLookups{tables: countries})
		if _, err := evalSource(t, ev, src, NewFacts(nil)); !errors.Is(err, ErrLookupMiss) {
			t.Errorf("Evaluate(%q) error = %v, want lookup miss", src, err)
		}

		ev = newTestEvaluator(t, &Config{LookupMiss: MissNull}, &tableLookups{tables: countries})
		got, err := evalSource(t, ev, src, NewFacts(nil))
		if err != nil || !got.IsNull() {
			t.Errorf("Evaluate(%q) = %v, %v; want null", src, got, err)
		}
	})

	t.Run("provider failure is never null", func(t *testing.T) {
		ev := newTestEvaluator(t, &Config{LookupMiss: MissNull}, &tableLookups{err: errors.New("disk on fire")})
		_, err := evalSource(t, ev, `LOOKUP("US", "country_risk")`, NewFacts(nil))
		if !errors.Is(err, ErrLookupFailed) {
			t.Errorf("error = %v, want lookup failed", err)
		}
	})
}

func TestEvaluator_Evaluate_Deterministic(t *testing.T) {
	ev := newTestEvaluator(t, nil, nil)
	src := `IF EXTRACT(code, /(\d+)/) == "42" THEN ROUND(amount * 1.1, 2) ELSE SUM(1, 2, 3)`
	facts := map[string]ast.Value{"code": ast.String("X-42"), "amount": ast.Float(10)}

	first, err1 := evalSource(t, ev, src, NewFacts(facts))
	second, err2 := evalSource(t, ev, src, NewFacts(facts))
	if err1 != nil || err2 != nil {
		t.Fatalf("Evaluate() errors = %v, %v", err1, err2)
	}
	if !sameValue(first, second) {
		t.Errorf("results differ: %v vs %v", first, second)
	}
	if !sameValue(first, ast.Float(11)) {
		t.Errorf("Evaluate() = %v, want 11.0", first)
	}
}

type countingObserver struct {
	hits, misses, size int
}

func (o *countingObserver) RecordHit(string)          { o.hits++ }
func (o *countingObserver) RecordMiss(string)         { o.misses++ }
func (o *countingObserver) UpdateSize(_ string, n int) { o.size = n }

func TestEvaluator_PatternCache(t *testing.T) {
	obs := &countingObserver{}
	ev := newTestEvaluator(t, nil, nil).WithPatternCache(NewPatternCache(obs))

	for i := 0; i < 3; i++ {
		if _, err := evalSource(t, ev, `"abc" ~ /b/`, NewFacts(nil)); err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
	}
	if ev.Patterns().Len() != 1 {
		t.Errorf("cache size = %d, want 1", ev.Patterns().Len())
	}
	if obs.misses != 1 || obs.hits != 2 || obs.size != 1 {
		t.Errorf("observer = %+v, want 1 miss, 2 hits, size 1", obs)
	}

	// Invalid patterns are cached too and fail the same way every time.
	for i := 0; i < 2; i++ {
		if _, err := evalSource(t, ev, `"abc" ~ "("`, NewFacts(nil)); !errors.Is(err, ErrRegexCompile) {
			t.Fatalf("error = %v, want regex compile error", err)
		}
	}
	if ev.Patterns().Len() != 2 {
		t.Errorf("cache size = %d, want 2", ev.Patterns().Len())
	}
}

func TestPatternCache_Limit(t *testing.T) {
	obs := &countingObserver{}
	cache := NewPatternCache(obs).WithLimit(2)

	for _, p := range []string{"a", "b", "a", "c"} {
		if _, err := cache.Compile(p); err != nil {
			t.Fatalf("Compile(%q) error = %v", p, err)
		}
	}
	if cache.Len() != 2 || obs.size != 2 {
		t.Errorf("Len() = %d, observed size %d; want 2", cache.Len(), obs.size)
	}
	// b was least recently used and has been evicted; a is still cached.
	before := obs.misses
	_, _ = cache.Compile("a")
	_, _ = cache.Compile("b")
	if got := obs.misses - before; got != 1 {
		t.Errorf("misses after eviction = %d, want 1", got)
	}

	ev := newTestEvaluator(t, &Config{PatternCacheSize: 3}, nil)
	for i, src := range []string{`VALIDATE("x", "1")`, `VALIDATE("x", "2")`, `VALIDATE("x", "3")`, `VALIDATE("x", "4")`, `VALIDATE("x", "5")`} {
		if _, err := evalSource(t, ev, src, NewFacts(nil)); err != nil {
			t.Fatalf("Evaluate(%d) error = %v", i, err)
		}
	}
	if ev.Patterns().Len() != 3 || ev.Patterns().Limit() != 3 {
		t.Errorf("evaluator cache = %d of %d, want 3 of 3", ev.Patterns().Len(), ev.Patterns().Limit())
	}
	if _, err := NewEvaluator(&Config{PatternCacheSize: -1}, nil, nil, nil); err == nil {
		t.Error("NewEvaluator(negative cache size) error = nil, want error")
	}
}

func TestEvaluator_Evaluate_PanicsOnUnknownOperator(t *testing.T) {
	ev := newTestEvaluator(t, nil, nil)
	expr := &ast.BinaryOp{
		Op:    ast.BinaryOperator(99),
		Left:  &ast.Literal{Value: ast.Int(1)},
		Right: &ast.Literal{Value: ast.Int(2)},
	}

	defer func() {
		if recover() == nil {
			t.Error("Evaluate() did not panic on an unknown operator")
		}
	}()
	_, _ = ev.Evaluate(context.Background(), expr, NewFacts(nil))
}

func TestNewEvaluator_InvalidConfig(t *testing.T) {
	if _, err := NewEvaluator(&Config{LookupMiss: "maybe"}, nil, nil, nil); err == nil {
		t.Error("NewEvaluator() error = nil, want invalid config error")
	}
}

func TestFacts(t *testing.T) {
	f := NewFacts(map[string]ast.Value{"b": ast.Int(1), "a": ast.Int(2)})
	snap := f.Snapshot()
	clone := f.Clone()

	f.Set("c", ast.Int(3))
	f.Delete("a")

	if _, ok := snap["c"]; ok {
		t.Error("snapshot observed a later Set")
	}
	if !clone.Has("a") || clone.Has("c") {
		t.Error("clone is not independent")
	}
	if got := f.Names(); len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("Names() = %v, want [b c]", got)
	}

	native, err := FactsFromNative(map[string]any{"n": 1, "s": "x", "l": []any{1, "a"}})
	if err != nil {
		t.Fatalf("FactsFromNative() error = %v", err)
	}
	if v, _ := native.Get("n"); !sameValue(v, ast.Int(1)) {
		t.Errorf("n = %v, want 1", v)
	}
	if _, err := FactsFromNative(map[string]any{"m": map[string]any{}}); err == nil {
		t.Error("FactsFromNative(map value) error = nil, want error")
	}
}
