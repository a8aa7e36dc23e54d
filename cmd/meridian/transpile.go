package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/meridian/pkg/cli"
	"mercator-hq/meridian/pkg/dsl/ast"
	"mercator-hq/meridian/pkg/rules/transpile"
)

// Transpile targets.
const (
	targetDSL   = "dsl"
	targetSQL   = "sql"
	targetWhere = "where"
)

var transpileFlags struct {
	target    string
	noFold    bool
	catalog   string
	attribute string
	format    string
}

var transpileCmd = &cobra.Command{
	Use:   "transpile [EXPRESSION]",
	Short: "Fold constants in a rule and render it as SQL",
	Long: `Rewrite a rule ahead of time.

Constant subexpressions are evaluated and IF branches with a constant
condition are dropped. The result is printed as a rule (--target dsl), a
SQLite expression (--target sql) or a WHERE clause (--target where).
Regex matching, LOOKUP and functions without a SQLite counterpart cannot be
rendered as SQL.

Examples:
  # Fold constants
  meridian transpile '100 + 25 * 2 - 10 / 2'

  # Select matching subjects in SQLite
  meridian transpile 'age >= 18 AND country IN ["US", "CA"]' --target where

  # Transpile a catalog rule
  meridian transpile --catalog catalog/ --attribute risk_band --target sql`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTranspile,
}

func init() {
	rootCmd.AddCommand(transpileCmd)

	transpileCmd.Flags().StringVarP(&transpileFlags.target, "target", "t", targetDSL, "output: dsl, sql or where")
	transpileCmd.Flags().BoolVar(&transpileFlags.noFold, "no-fold", false, "skip constant folding")
	transpileCmd.Flags().StringVar(&transpileFlags.catalog, "catalog", "", "catalog file or directory for --attribute")
	transpileCmd.Flags().StringVarP(&transpileFlags.attribute, "attribute", "a", "", "transpile this derived attribute's rule")
	transpileCmd.Flags().StringVar(&transpileFlags.format, "format", "auto", "output format: auto, text, json")
}

// TranspileOutput is the result of a transpile command.
type TranspileOutput struct {
	// Source is the rule as given.
	Source string `json:"source"`

	Target string `json:"target"`

	// Code is the rewritten rule in the target language.
	Code string `json:"code"`

	// Stats counts the folding rewrites; zero with --no-fold.
	Stats transpile.Stats `json:"stats"`
}

func (o TranspileOutput) String() string { return o.Code }

func runTranspile(cmd *cobra.Command, args []string) error {
	switch transpileFlags.target {
	case targetDSL, targetSQL, targetWhere:
	default:
		return cli.NewConfigError("--target", fmt.Sprintf("unknown target %q, want dsl, sql or where", transpileFlags.target))
	}
	if (len(args) == 1) == (transpileFlags.attribute != "") {
		return cli.NewConfigError("--attribute", "give either an expression or --attribute")
	}
	format, err := outputFormat(cmd, transpileFlags.format)
	if err != nil {
		return err
	}

	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	source, expr, err := transpileSource(a, args)
	if err != nil {
		return err
	}
	if expr == nil {
		if expr, err = a.parser.Parse(source); err != nil {
			return reportEvalFailure(cmd.ErrOrStderr(), source, err)
		}
	}

	out := TranspileOutput{Source: source, Target: transpileFlags.target}
	if !transpileFlags.noFold {
		ctx, cancel := a.runContext(commandContext(cmd))
		defer cancel()
		expr, out.Stats = transpile.NewFolder(a.evaluator, a.logger).Fold(ctx, expr)
	}

	switch transpileFlags.target {
	case targetSQL:
		out.Code, err = transpile.SQL(expr)
	case targetWhere:
		out.Code, err = transpile.Where(expr)
	default:
		out.Code = expr.String()
	}
	if err != nil {
		return reportEvalFailure(cmd.ErrOrStderr(), source, err)
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), out)
}

// transpileSource returns the rule to transpile. The expression is nil when
// it still has to be parsed from source.
func transpileSource(a *app, args []string) (string, ast.Expression, error) {
	if len(args) == 1 {
		return args[0], nil, nil
	}
	c, err := a.loadCatalog(a.catalogPath(transpileFlags.catalog))
	if err != nil {
		return "", nil, err
	}
	attr, ok := c.Get(transpileFlags.attribute)
	if !ok {
		return "", nil, cli.NewCommandError("transpile", fmt.Errorf("attribute %q is not in the catalog", transpileFlags.attribute))
	}
	derived, ok := attr.Derived()
	if !ok {
		return "", nil, cli.NewCommandError("transpile", fmt.Errorf("attribute %q has no rule", transpileFlags.attribute))
	}
	return derived.Rule, derived.Expr, nil
}
