package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"mercator-hq/meridian/pkg/cli"
	"mercator-hq/meridian/pkg/rules/eval"
)

var functionsFlags struct {
	format string
}

var functionsCmd = &cobra.Command{
	Use:   "functions [QUERY]",
	Short: "List or search the rule function library",
	Long: `List the functions available to rules with their signatures.

With a query, functions are fuzzy-matched by name and listed best match first.

Examples:
  meridian functions
  meridian functions lei
  meridian functions sbstr --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: listFunctions,
}

func init() {
	rootCmd.AddCommand(functionsCmd)

	functionsCmd.Flags().StringVar(&functionsFlags.format, "format", "auto", "output format: auto, text, json, csv")
}

// FunctionInfo describes one builtin.
type FunctionInfo struct {
	Name        string `json:"name"`
	Signature   string `json:"signature"`
	Description string `json:"description"`
	MinArgs     int    `json:"min_args"`
	MaxArgs     int    `json:"max_args"` // -1 for variadic
}

// FunctionList is the result of a functions command.
type FunctionList []FunctionInfo

func (l FunctionList) String() string {
	if len(l) == 0 {
		return "no matching functions"
	}
	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	for _, f := range l {
		fmt.Fprintf(tw, "%s\t%s\n", f.Signature, f.Description)
	}
	_ = tw.Flush()
	return strings.TrimSuffix(sb.String(), "\n")
}

// Header implements cli.Table.
func (l FunctionList) Header() []string {
	return []string{"name", "signature", "min_args", "max_args", "description"}
}

// Rows implements cli.Table.
func (l FunctionList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, f := range l {
		rows = append(rows, []string{f.Name, f.Signature, strconv.Itoa(f.MinArgs), strconv.Itoa(f.MaxArgs), f.Description})
	}
	return rows
}

func listFunctions(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd, functionsFlags.format)
	if err != nil {
		return err
	}

	var query string
	if len(args) > 0 {
		query = args[0]
	}
	list := searchFunctions(eval.DefaultRegistry(), query)
	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), list); err != nil {
		return err
	}
	if query != "" && len(list) == 0 {
		return &cli.ExitError{Code: cli.ExitFailure}
	}
	return nil
}

// searchFunctions returns every builtin sorted by name, or with a query the
// fuzzy matches ordered by score.
func searchFunctions(registry *eval.Registry, query string) FunctionList {
	builtins := registry.Builtins()
	if query == "" {
		out := make(FunctionList, 0, len(builtins))
		for _, b := range builtins {
			out = append(out, functionInfo(b))
		}
		return out
	}

	names := make([]string, len(builtins))
	for i, b := range builtins {
		names[i] = b.Name
	}
	matches := fuzzy.Find(strings.ToUpper(query), names)
	out := make(FunctionList, 0, len(matches))
	for _, m := range matches {
		out = append(out, functionInfo(builtins[m.Index]))
	}
	return out
}

func functionInfo(b eval.Builtin) FunctionInfo {
	sig := b.Signature
	if sig == "" {
		sig = b.Name + "(...)"
	}
	return FunctionInfo{
		Name:        b.Name,
		Signature:   sig,
		Description: b.Description,
		MinArgs:     b.MinArgs,
		MaxArgs:     b.MaxArgs,
	}
}
