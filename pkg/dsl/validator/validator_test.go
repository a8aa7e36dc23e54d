package validator

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/meridian/pkg/dsl/diagnostics"
)

type finding struct {
	Code     diagnostics.Code
	Severity diagnostics.Severity
	Start    int
}

func findings(ds []diagnostics.Diagnostic) []finding {
	out := []finding{}
	for _, d := range ds {
		out = append(out, finding{Code: d.Code, Severity: d.Severity, Start: d.Range.Start})
	}
	return out
}

func TestValidator_Validate(t *testing.T) {
	v := NewValidator(nil).WithAttributes("income", "debt", "country")

	tests := []struct {
		name string
		rule Rule
		want []finding
	}{
		{
			name: "clean",
			rule: Rule{Source: `IF income > 0 THEN UPPER(country) ELSE "n/a"`},
			want: []finding{},
		},
		{
			name: "unknown function",
			rule: Rule{Source: "UPPR(country)"},
			want: []finding{{diagnostics.CodeUnknownFunction, diagnostics.SeverityError, 0}},
		},
		{
			name: "arity",
			rule: Rule{Source: "1 + UPPER(country, 2)"},
			want: []finding{{diagnostics.CodeArity, diagnostics.SeverityError, 4}},
		},
		{
			name: "unknown attribute",
			rule: Rule{Source: "incme * 2"},
			want: []finding{{diagnostics.CodeUnknownAttribute, diagnostics.SeverityWarning, 0}},
		},
		{
			name: "undeclared dependency",
			rule: Rule{Source: "debt / income", Dependencies: []string{"income"}},
			want: []finding{{diagnostics.CodeUndeclaredDependency, diagnostics.SeverityWarning, 0}},
		},
		{
			name: "assignment target is not a read",
			rule: Rule{Source: "ratio = debt / income"},
			want: []finding{},
		},
		{
			name: "parse error",
			rule: Rule{Source: "income +"},
			want: []finding{{diagnostics.CodeParseError, diagnostics.SeverityError, 8}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := findings(v.Validate(tt.rule))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Validate mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidator_Suggestions(t *testing.T) {
	v := NewValidator(nil).WithAttributes("income")

	ds := v.Validate(Rule{Attribute: "label", Source: "UPPR(incme)"})
	if len(ds) != 2 {
		t.Fatalf("got %d diagnostics, want 2: %v", len(ds), ds)
	}
	for _, d := range ds {
		if d.Attribute != "label" {
			t.Errorf("Attribute = %q, want label", d.Attribute)
		}
	}
	if ds[0].Suggestion != `did you mean "UPPER"?` {
		t.Errorf("function suggestion = %q", ds[0].Suggestion)
	}
	if ds[1].Suggestion != `did you mean "income"?` {
		t.Errorf("attribute suggestion = %q", ds[1].Suggestion)
	}
}

func TestValidator_ArityUsage(t *testing.T) {
	ds := NewValidator(nil).ValidateSource("ROUND()")
	if len(ds) != 1 || ds[0].Code != diagnostics.CodeArity {
		t.Fatalf("ValidateSource() = %v, want one arity diagnostic", ds)
	}
	if ds[0].Suggestion == "" {
		t.Error("arity diagnostic has no usage suggestion")
	}
}

func TestValidator_NoAttributesKnown(t *testing.T) {
	ds := NewValidator(nil).ValidateSource("anything + whatever")
	if len(ds) != 0 {
		t.Errorf("ValidateSource() = %v, want none without known attributes", ds)
	}
}
