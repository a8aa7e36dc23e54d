package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mercator-hq/meridian/pkg/cli"
	"mercator-hq/meridian/pkg/dsl/ast"
	"mercator-hq/meridian/pkg/dsl/diagnostics"
	"mercator-hq/meridian/pkg/rules/eval"
)

var evalFlags struct {
	factsFile string
	sets      []string
	catalog   string
	format    string
}

var evalCmd = &cobra.Command{
	Use:   "eval EXPRESSION",
	Short: "Evaluate a single expression",
	Long: `Evaluate one rule expression against a set of facts and print its value.

Facts come from a YAML or JSON file and from --set flags; --set wins. When a
catalog is given, derived attributes the expression refers to are computed
first.

Examples:
  # Arithmetic with inline facts
  meridian eval 'debt / income' --set debt=1200 --set income=4000

  # Regex and list membership
  meridian eval 'code MATCHES /^[A-Z]{2}$/ AND code IN ["DE", "FR"]' --set code=DE

  # Use derived attributes from a catalog
  meridian eval 'risk_band = "HIGH"' --catalog catalog/ --facts customer.yaml

  # JSON output
  meridian eval 'ROUND(rate * 100, 2)' --set rate=0.0375 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

func init() {
	rootCmd.AddCommand(evalCmd)

	evalCmd.Flags().StringVarP(&evalFlags.factsFile, "facts", "f", "", "YAML or JSON file of facts")
	evalCmd.Flags().StringArrayVarP(&evalFlags.sets, "set", "s", nil, "fact as name=value (repeatable)")
	evalCmd.Flags().StringVar(&evalFlags.catalog, "catalog", "", "catalog file or directory for derived attributes")
	evalCmd.Flags().StringVar(&evalFlags.format, "format", "auto", "output format: auto, text, json")
}

// EvalOutput is the JSON form of an evaluation.
type EvalOutput struct {
	Expression string `json:"expression"`

	// Value encodes non-finite floats as "+Inf", "-Inf" or "NaN".
	Value ast.Value `json:"value"`

	Kind string `json:"kind"`
}

func (o EvalOutput) String() string { return o.Value.String() }

func runEval(cmd *cobra.Command, args []string) error {
	source := args[0]
	format, err := outputFormat(cmd, evalFlags.format)
	if err != nil {
		return err
	}

	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	native := map[string]any{}
	if evalFlags.factsFile != "" {
		subjects, err := readSubjects(evalFlags.factsFile, "")
		if err != nil {
			return cli.NewCommandError("eval", err)
		}
		if len(subjects) != 1 {
			return cli.NewCommandError("eval", fmt.Errorf("facts file %s holds %d subjects, want 1", evalFlags.factsFile, len(subjects)))
		}
		native = subjects[0].Facts
	}
	sets, err := parseAssignments(evalFlags.sets)
	if err != nil {
		return cli.NewConfigError("--set", err.Error())
	}
	for k, v := range sets {
		native[k] = v
	}
	facts, err := eval.FactsFromNative(native)
	if err != nil {
		return cli.NewCommandError("eval", err)
	}

	expr, err := a.parser.Parse(source)
	if err != nil {
		return reportEvalFailure(cmd.ErrOrStderr(), source, err)
	}

	ctx, cancel := a.runContext(commandContext(cmd))
	defer cancel()

	if path := evalFlags.catalog; path != "" {
		if err := deriveReferenced(ctx, a, path, expr, facts, cmd.ErrOrStderr()); err != nil {
			return err
		}
	}

	value, err := a.evaluator.Evaluate(ctx, expr, facts)
	if err != nil {
		return reportEvalFailure(cmd.ErrOrStderr(), source, err)
	}

	out := EvalOutput{Expression: source, Value: value, Kind: value.Kind().String()}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), out)
}

// deriveReferenced computes the derived catalog attributes expr refers to
// and stores them in facts.
func deriveReferenced(ctx context.Context, a *app, path string, expr ast.Expression, facts *eval.Facts, stderr io.Writer) error {
	c, err := a.loadCatalog(path)
	if err != nil {
		return err
	}
	var requested []string
	for _, name := range ast.Identifiers(expr) {
		if attr, ok := c.Get(name); ok && attr.IsDerived() {
			requested = append(requested, name)
		}
	}
	if len(requested) == 0 {
		return nil
	}

	result := a.engine.Run(ctx, c.Attributes(), requested, facts)
	if result.OK() {
		return nil
	}
	ds := diagnostics.FromResult(result)
	writeDiagnostics(stderr, ds, ruleSource(c))
	return cli.Failed(fmt.Errorf("%d referenced attribute(s) could not be derived", len(result.Failed())))
}

func reportEvalFailure(w io.Writer, source string, err error) error {
	d := diagnostics.FromError(err)
	fmt.Fprint(w, diagnostics.Render(source, d))
	return &cli.ExitError{Code: cli.ExitFailure}
}
