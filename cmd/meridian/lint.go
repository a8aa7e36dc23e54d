package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/meridian/pkg/cli"
	"mercator-hq/meridian/pkg/dsl/diagnostics"
	"mercator-hq/meridian/pkg/dsl/validator"
	"mercator-hq/meridian/pkg/rules/catalog"
)

var lintFlags struct {
	expr   string
	strict bool
	format string
}

var lintCmd = &cobra.Command{
	Use:   "lint [PATH...]",
	Short: "Validate catalogs and rules",
	Long: `Validate attribute catalogs and rule expressions without evaluating them.

The lint command loads each catalog file or directory and checks:
  - YAML structure and duplicate attribute names
  - Rule syntax, with the offending position marked
  - Function names and argument counts
  - References to attributes that are neither defined nor declared

Without arguments the configured catalog.path is linted.

Examples:
  # Lint a catalog directory
  meridian lint catalog/

  # Lint one expression against the functions library
  meridian lint --expr 'IS_LEI(lei) AND LEN(name) > 0'

  # Strict mode (warnings as errors)
  meridian lint catalog/ --strict

  # JSON output for CI/CD
  meridian lint catalog/ --format json`,
	RunE: lintCatalogs,
}

func init() {
	rootCmd.AddCommand(lintCmd)

	lintCmd.Flags().StringVarP(&lintFlags.expr, "expr", "e", "", "lint a single expression")
	lintCmd.Flags().BoolVar(&lintFlags.strict, "strict", false, "treat warnings as errors")
	lintCmd.Flags().StringVar(&lintFlags.format, "format", "auto", "output format: auto, text, json")
}

// LintResult is the validation result for one catalog path or expression.
type LintResult struct {
	Path string `json:"path"`

	// Valid is false when any diagnostic is an error, or a warning under
	// --strict.
	Valid bool `json:"valid"`

	// Attributes is the number of attributes defined under Path.
	Attributes int `json:"attributes"`

	Diagnostics []diagnostics.Diagnostic `json:"diagnostics,omitempty"`

	// sourceOf returns the rule text a diagnostic refers to, for snippets.
	sourceOf func(diagnostics.Diagnostic) string
}

// LintOutput is the result of a lint command.
type LintOutput struct {
	Results []LintResult `json:"results"`
}

func (o LintOutput) String() string {
	var sb strings.Builder
	for i, r := range o.Results {
		if i > 0 {
			sb.WriteString("\n")
		}
		errs := diagnostics.Count(r.Diagnostics, diagnostics.SeverityError)
		warns := diagnostics.Count(r.Diagnostics, diagnostics.SeverityWarning)
		mark := "✓"
		if !r.Valid {
			mark = "✗"
		}
		fmt.Fprintf(&sb, "%s %s: %d attribute(s), %d error(s), %d warning(s)\n", mark, r.Path, r.Attributes, errs, warns)
		writeDiagnostics(&sb, r.Diagnostics, r.sourceOf)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func lintCatalogs(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd, lintFlags.format)
	if err != nil {
		return err
	}

	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	paths := args
	if len(paths) == 0 && lintFlags.expr == "" {
		paths = []string{a.cfg.Catalog.Path}
	}

	var out LintOutput
	var known []string
	for _, path := range paths {
		r, c := lintCatalog(a, path)
		if c != nil {
			known = append(known, c.Names()...)
		}
		out.Results = append(out.Results, r)
	}
	if lintFlags.expr != "" {
		out.Results = append(out.Results, lintExpression(a, lintFlags.expr, known))
	}

	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), out); err != nil {
		return err
	}
	invalid := 0
	for _, r := range out.Results {
		if !r.Valid {
			invalid++
		}
	}
	if invalid > 0 {
		return cli.Failed(fmt.Errorf("%d of %d checked source(s) have problems", invalid, len(out.Results)))
	}
	return nil
}

// lintCatalog loads path leniently so every rule problem is reported rather
// than the first.
func lintCatalog(a *app, path string) (LintResult, *catalog.Catalog) {
	cfg := a.cfg.Catalog.LoaderConfig()
	cfg.Strict = false
	loader := catalog.NewLoader(cfg, a.parser, a.registry, a.logger)

	r := LintResult{Path: path, sourceOf: func(diagnostics.Diagnostic) string { return "" }}
	c, err := loader.Load(path)
	if err != nil {
		r.Diagnostics = catalogDiagnostics(err)
		r.Valid = false
		return r, nil
	}

	r.Attributes = c.Len()
	r.Diagnostics = append([]diagnostics.Diagnostic(nil), c.Diagnostics...)
	r.sourceOf = ruleSource(c)
	r.Valid = lintPassed(r.Diagnostics)
	return r, c
}

func lintExpression(a *app, expr string, known []string) LintResult {
	v := validator.NewValidator(a.registry).WithParser(a.parser)
	if len(known) > 0 {
		v.WithAttributes(known...)
	}
	ds := v.ValidateSource(expr)
	return LintResult{
		Path:        "<expr>",
		Valid:       lintPassed(ds),
		Diagnostics: ds,
		sourceOf:    func(diagnostics.Diagnostic) string { return expr },
	}
}

func lintPassed(ds []diagnostics.Diagnostic) bool {
	if diagnostics.HasErrors(ds) {
		return false
	}
	return !lintFlags.strict || diagnostics.Count(ds, diagnostics.SeverityWarning) == 0
}

// catalogDiagnostics converts a catalog load failure into diagnostics, one
// per independent error.
func catalogDiagnostics(err error) []diagnostics.Diagnostic {
	var list *catalog.ErrorList
	errs := []error{err}
	if errors.As(err, &list) {
		errs = list.Errors
	}

	out := make([]diagnostics.Diagnostic, 0, len(errs))
	for _, e := range errs {
		var rerr *catalog.RuleError
		if errors.As(e, &rerr) {
			out = append(out, rerr.Diagnostics...)
			continue
		}
		d := diagnostics.Diagnostic{Severity: diagnostics.SeverityError, Code: diagnostics.CodeCatalog, Message: e.Error()}
		var verr *catalog.ValidationError
		if errors.As(e, &verr) {
			d.Attribute = verr.Attribute
		}
		out = append(out, d)
	}
	return out
}

// ruleSource returns a lookup from a diagnostic to the rule text of the
// attribute it concerns.
func ruleSource(c *catalog.Catalog) func(diagnostics.Diagnostic) string {
	return func(d diagnostics.Diagnostic) string {
		attr, ok := c.Get(d.Attribute)
		if !ok {
			return ""
		}
		if derived, ok := attr.Derived(); ok {
			return derived.Rule
		}
		return ""
	}
}
