package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mercator-hq/meridian/pkg/cli"
	"mercator-hq/meridian/pkg/dsl/ast"
	"mercator-hq/meridian/pkg/rules/catalog"
	"mercator-hq/meridian/pkg/rules/eval"
)

var testFlags struct {
	catalog string
	run     string
	format  string
}

var testCmd = &cobra.Command{
	Use:   "test SUITE...",
	Short: "Run rule unit tests",
	Long: `Run test suites that derive attributes from fixed facts and compare the
results with expected values or expected failure kinds.

Test Suite Format (YAML):
  catalog: ../catalog        # relative to the suite file; --catalog overrides
  tests:
    - name: "high debt ratio is HIGH risk"
      facts:
        income: 4000
        debt: 3000
      expect:
        debt_to_income: 0.75
        risk_band: "HIGH"
    - name: "missing income fails"
      facts:
        debt: 3000
      expect_errors:
        debt_to_income: missing_input

Examples:
  # Run a suite
  meridian test tests/risk_test.yaml

  # Run only tests whose name contains "HIGH"
  meridian test tests/*.yaml --run HIGH

  # JSON output for CI/CD
  meridian test tests/risk_test.yaml --format json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTests,
}

func init() {
	rootCmd.AddCommand(testCmd)

	testCmd.Flags().StringVar(&testFlags.catalog, "catalog", "", "catalog file or directory, overriding the suite's catalog")
	testCmd.Flags().StringVar(&testFlags.run, "run", "", "only run tests whose name contains this text")
	testCmd.Flags().StringVar(&testFlags.format, "format", "auto", "output format: auto, text, json")
}

// TestSuite represents a collection of test cases.
type TestSuite struct {
	// Catalog is used when --catalog is not given.
	Catalog string `yaml:"catalog"`

	Tests []TestCase `yaml:"tests"`
}

// TestCase represents a single rule test case.
type TestCase struct {
	Name string `yaml:"name"`

	// Facts are the input attribute values.
	Facts map[string]any `yaml:"facts"`

	// Expect maps derived attributes to their expected values.
	Expect map[string]any `yaml:"expect"`

	// ExpectErrors maps derived attributes to the derivation error kind
	// they must fail with, e.g. "missing_input".
	ExpectErrors map[string]string `yaml:"expect_errors"`
}

// TestResult represents the result of executing a single test case.
type TestResult struct {
	Suite    string        `json:"suite"`
	TestName string        `json:"name"`
	Passed   bool          `json:"passed"`
	Failures []string      `json:"failures,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// TestReport is the result of a test command.
type TestReport struct {
	Results []TestResult `json:"results"`
	Passed  int          `json:"passed"`
	Failed  int          `json:"failed"`
}

func (r TestReport) String() string {
	var sb strings.Builder
	for _, result := range r.Results {
		if result.Passed {
			fmt.Fprintf(&sb, "✓ %s (%.1fms)\n", result.TestName, result.Duration.Seconds()*1000)
			continue
		}
		fmt.Fprintf(&sb, "✗ %s\n", result.TestName)
		if result.Error != "" {
			fmt.Fprintf(&sb, "  Error: %s\n", result.Error)
		}
		for _, f := range result.Failures {
			fmt.Fprintf(&sb, "  %s\n", f)
		}
	}
	sb.WriteString("\nSummary:\n")
	fmt.Fprintf(&sb, "  %d tests run, %d passed, %d failed", len(r.Results), r.Passed, r.Failed)
	return sb.String()
}

func runTests(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd, testFlags.format)
	if err != nil {
		return err
	}

	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	var report TestReport
	for _, path := range args {
		suite, err := loadTestSuite(path)
		if err != nil {
			return cli.NewCommandError("test", fmt.Errorf("failed to load test suite: %w", err))
		}
		if len(suite.Tests) == 0 {
			return cli.NewCommandError("test", fmt.Errorf("no test cases found in %s", path))
		}

		catalogPath := testFlags.catalog
		if catalogPath == "" && suite.Catalog != "" {
			catalogPath = suite.Catalog
			if !filepath.IsAbs(catalogPath) {
				catalogPath = filepath.Join(filepath.Dir(path), catalogPath)
			}
		}
		c, err := a.loadCatalog(a.catalogPath(catalogPath))
		if err != nil {
			return err
		}

		for _, tc := range suite.Tests {
			if testFlags.run != "" && !strings.Contains(tc.Name, testFlags.run) {
				continue
			}
			result := runTestCase(cmd, a, c, tc)
			result.Suite = path
			if result.Passed {
				report.Passed++
			} else {
				report.Failed++
			}
			report.Results = append(report.Results, result)
		}
	}

	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if report.Failed > 0 {
		return cli.Failed(fmt.Errorf("%d test(s) failed", report.Failed))
	}
	return nil
}

func loadTestSuite(path string) (*TestSuite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var suite TestSuite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	for i, tc := range suite.Tests {
		if tc.Name == "" {
			suite.Tests[i].Name = fmt.Sprintf("%s#%d", filepath.Base(path), i+1)
		}
		if len(tc.Expect) == 0 && len(tc.ExpectErrors) == 0 {
			return nil, fmt.Errorf("test %q expects nothing", suite.Tests[i].Name)
		}
	}
	return &suite, nil
}

func runTestCase(cmd *cobra.Command, a *app, c *catalog.Catalog, tc TestCase) TestResult {
	start := time.Now()
	result := TestResult{TestName: tc.Name}

	facts, err := eval.FactsFromNative(eval.FlattenNative(tc.Facts))
	if err != nil {
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result
	}

	requested := make([]string, 0, len(tc.Expect)+len(tc.ExpectErrors))
	requested = append(requested, sortedKeys(tc.Expect)...)
	requested = append(requested, sortedKeys(tc.ExpectErrors)...)
	sort.Strings(requested)

	ctx, cancel := a.runContext(commandContext(cmd))
	defer cancel()
	res := a.engine.Run(ctx, c.Attributes(), requested, facts)

	for _, name := range sortedKeys(tc.Expect) {
		want, err := ast.FromNative(tc.Expect[name])
		if err != nil {
			result.Failures = append(result.Failures, fmt.Sprintf("%s: invalid expectation: %v", name, err))
			continue
		}
		got, err := res.Get(name)
		switch {
		case err != nil:
			result.Failures = append(result.Failures, fmt.Sprintf("%s: expected %s, failed: %v", name, want, err))
		case !want.Equal(got):
			result.Failures = append(result.Failures, fmt.Sprintf("%s: expected %s, got %s", name, want, got))
		}
	}
	for _, name := range sortedKeys(tc.ExpectErrors) {
		wantKind := tc.ExpectErrors[name]
		o := res.Outcomes[name]
		switch {
		case o == nil || o.Err == nil:
			var got ast.Value
			if o != nil {
				got = o.Value
			}
			result.Failures = append(result.Failures, fmt.Sprintf("%s: expected %s error, got %s", name, wantKind, got))
		case string(o.Err.Kind) != wantKind:
			result.Failures = append(result.Failures, fmt.Sprintf("%s: expected %s error, got %s: %v", name, wantKind, o.Err.Kind, o.Err))
		}
	}

	result.Passed = len(result.Failures) == 0
	result.Duration = time.Since(start)
	return result
}
