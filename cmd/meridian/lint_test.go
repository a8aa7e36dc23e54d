package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/meridian/pkg/cli"
)

type lintJSON struct {
	Results []struct {
		Path        string `json:"path"`
		Valid       bool   `json:"valid"`
		Attributes  int    `json:"attributes"`
		Diagnostics []struct {
			Code      string `json:"code"`
			Attribute string `json:"attribute"`
			Severity  string `json:"severity"`
		} `json:"diagnostics"`
	} `json:"results"`
}

func decodeLint(t *testing.T, stdout string) lintJSON {
	t.Helper()
	var out lintJSON
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout)
	}
	return out
}

func TestLintCommand_ValidCatalog(t *testing.T) {
	stdout, _, err := execute(t, "lint", "testdata/catalog.yaml", "--format", "text")
	if err != nil {
		t.Fatalf("execute() error = %v", err)
	}
	want := "✓ testdata/catalog.yaml: 6 attribute(s), 0 error(s), 0 warning(s)"
	if !strings.Contains(stdout, want) {
		t.Errorf("output = %q, want it to contain %q", stdout, want)
	}
}

func TestLintCommand_InvalidCatalog(t *testing.T) {
	stdout, _, err := execute(t, "lint", "testdata/invalid_catalog.yaml", "--format", "json")
	if got := cli.ExitCode(err); got != cli.ExitFailure {
		t.Fatalf("ExitCode() = %d, want %d (err: %v)", got, cli.ExitFailure, err)
	}

	out := decodeLint(t, stdout)
	if len(out.Results) != 1 {
		t.Fatalf("len(Results) = %d, want 1", len(out.Results))
	}
	r := out.Results[0]
	if r.Valid {
		t.Error("Valid = true, want false")
	}
	if r.Attributes != 3 {
		t.Errorf("Attributes = %d, want 3", r.Attributes)
	}

	got := make(map[string]string)
	for _, d := range r.Diagnostics {
		got[d.Attribute] = d.Code
	}
	want := map[string]string{
		"broken":   "parse_error",
		"shouting": "unknown_function",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
}

func TestLintCommand_InvalidCatalogText(t *testing.T) {
	stdout, _, _ := execute(t, "lint", "testdata/invalid_catalog.yaml", "--format", "text")
	for _, want := range []string{
		"✗ testdata/invalid_catalog.yaml: 3 attribute(s), 2 error(s)",
		"error[parse_error]",
		"error[unknown_function]",
		"--> shouting",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
}

func TestLintCommand_MissingCatalog(t *testing.T) {
	stdout, _, err := execute(t, "lint", "testdata/nope.yaml", "--format", "json")
	if got := cli.ExitCode(err); got != cli.ExitFailure {
		t.Fatalf("ExitCode() = %d, want %d", got, cli.ExitFailure)
	}
	out := decodeLint(t, stdout)
	if len(out.Results) != 1 || len(out.Results[0].Diagnostics) == 0 {
		t.Fatalf("Results = %+v, want one result with diagnostics", out.Results)
	}
	if got := out.Results[0].Diagnostics[0].Code; got != "catalog_error" {
		t.Errorf("Code = %q, want catalog_error", got)
	}
}

func TestLintCommand_UnknownAttributeWarning(t *testing.T) {
	stdout, _, err := execute(t, "lint", "testdata/catalog.yaml", "--expr", "salary > 0", "--format", "json")
	if err != nil {
		t.Fatalf("execute() error = %v, want warnings to pass without --strict", err)
	}
	out := decodeLint(t, stdout)
	r := out.Results[1]
	if !r.Valid || len(r.Diagnostics) != 1 {
		t.Fatalf("expression result = %+v, want valid with one diagnostic", r)
	}
	if d := r.Diagnostics[0]; d.Code != "unknown_attribute" || d.Severity != "warning" {
		t.Errorf("diagnostic = %+v, want unknown_attribute warning", d)
	}
}

func TestLintCommand_Expression(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantValid bool
		wantCode  string
	}{
		{
			name:      "valid expression",
			args:      []string{"lint", "--expr", "LEN(name) > 0 AND IS_LEI(lei)"},
			wantValid: true,
		},
		{
			name:     "wrong argument count",
			args:     []string{"lint", "--expr", "LEN(name, 1)"},
			wantCode: "arity",
		},
		{
			name:     "unknown function",
			args:     []string{"lint", "--expr", "LENN(name)"},
			wantCode: "unknown_function",
		},
		{
			name:     "syntax error",
			args:     []string{"lint", "--expr", "(1 + 2"},
			wantCode: "parse_error",
		},
		{
			name:     "unknown attribute is a warning under strict",
			args:     []string{"lint", "testdata/catalog.yaml", "--expr", "salary > 0", "--strict"},
			wantCode: "unknown_attribute",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := execute(t, append(tt.args, "--format", "json")...)
			if tt.wantValid && err != nil {
				t.Fatalf("execute() error = %v", err)
			}
			if !tt.wantValid && cli.ExitCode(err) != cli.ExitFailure {
				t.Fatalf("ExitCode() = %d, want %d", cli.ExitCode(err), cli.ExitFailure)
			}

			out := decodeLint(t, stdout)
			r := out.Results[len(out.Results)-1]
			if r.Path != "<expr>" {
				t.Errorf("Path = %q, want <expr>", r.Path)
			}
			if r.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v", r.Valid, tt.wantValid)
			}
			if tt.wantCode == "" {
				return
			}
			var codes []string
			for _, d := range r.Diagnostics {
				codes = append(codes, d.Code)
			}
			if len(codes) == 0 || codes[0] != tt.wantCode {
				t.Errorf("codes = %v, want first %q", codes, tt.wantCode)
			}
		})
	}
}
