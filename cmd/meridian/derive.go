package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mercator-hq/meridian/pkg/audit"
	"mercator-hq/meridian/pkg/cli"
	"mercator-hq/meridian/pkg/dsl/ast"
	"mercator-hq/meridian/pkg/rules/catalog"
	"mercator-hq/meridian/pkg/rules/derive"
	"mercator-hq/meridian/pkg/rules/eval"
	"mercator-hq/meridian/pkg/telemetry/logging"
)

var deriveFlags struct {
	catalog   string
	factsFile string
	attrs     []string
	subject   string
	record    bool
	format    string
}

var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Derive attributes for one or more subjects",
	Long: `Derive catalog attributes from the facts of one or more subjects.

Every requested attribute is derived independently: a failure in one attribute
never prevents unrelated attributes from resolving. The command exits with
status 1 when any requested attribute failed.

Facts file formats:
  # One subject: a plain map (nested maps become dotted names)
  income: 4000
  customer:
    country: DE

  # Many subjects
  subjects:
    - id: alice
      facts: {income: 4000, debt: 1200}
    - id: bob
      facts: {income: 0, debt: 50}

  # JSON lines (.jsonl, .ndjson): {"id": "alice", "facts": {...}} per line

Examples:
  # Derive every derived attribute
  meridian derive --catalog catalog/ --facts customers.yaml

  # Derive selected attributes and record the runs in the audit store
  meridian derive --facts customers.jsonl --attr risk_band --attr dti --record

  # CSV for spreadsheets
  meridian derive --facts customers.yaml --format csv > out.csv`,
	RunE: runDerive,
}

func init() {
	rootCmd.AddCommand(deriveCmd)

	deriveCmd.Flags().StringVar(&deriveFlags.catalog, "catalog", "", "catalog file or directory (default: catalog.path)")
	deriveCmd.Flags().StringVarP(&deriveFlags.factsFile, "facts", "f", "", "facts file (YAML, JSON or JSON lines)")
	deriveCmd.Flags().StringSliceVarP(&deriveFlags.attrs, "attr", "a", nil, "attribute to derive (repeatable; default: all derived)")
	deriveCmd.Flags().StringVar(&deriveFlags.subject, "subject", "", "subject id for a single-subject facts file")
	deriveCmd.Flags().BoolVar(&deriveFlags.record, "record", false, "record runs in the audit store even when audit.enabled is false")
	deriveCmd.Flags().StringVar(&deriveFlags.format, "format", "auto", "output format: auto, text, json, csv")

	if err := deriveCmd.MarkFlagRequired("facts"); err != nil {
		panic(fmt.Sprintf("failed to mark facts flag as required: %v", err))
	}
}

// AttributeError is the output form of a failed attribute.
type AttributeError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SubjectResult is the derivation output for one subject.
type SubjectResult struct {
	Subject string `json:"subject"`

	// Values holds resolved attributes.
	Values map[string]ast.Value `json:"values"`

	// Errors holds failed attributes.
	Errors map[string]AttributeError `json:"errors,omitempty"`

	// AuditID is the audit record ID when auditing is enabled.
	AuditID string `json:"audit_id,omitempty"`

	// order and text drive the text rendering.
	order []string
	text  map[string]string
}

// DeriveOutput is the result of a derive command.
type DeriveOutput struct {
	Subjects []SubjectResult `json:"subjects"`
	Resolved int             `json:"resolved"`
	Failed   int             `json:"failed"`
}

func (o DeriveOutput) String() string {
	var sb strings.Builder
	for _, s := range o.Subjects {
		fmt.Fprintf(&sb, "subject %s\n", s.Subject)
		tw := tabwriter.NewWriter(&sb, 0, 4, 1, ' ', 0)
		for _, name := range s.order {
			if e, failed := s.Errors[name]; failed {
				fmt.Fprintf(tw, "  %s\t! %s\n", name, e.Message)
				continue
			}
			fmt.Fprintf(tw, "  %s\t= %s\n", name, s.text[name])
		}
		_ = tw.Flush()
	}
	fmt.Fprintf(&sb, "%d subject(s): %d attribute(s) resolved, %d failed", len(o.Subjects), o.Resolved, o.Failed)
	return sb.String()
}

// Header implements cli.Table.
func (o DeriveOutput) Header() []string {
	return []string{"subject", "attribute", "value", "error_kind", "error"}
}

// Rows implements cli.Table.
func (o DeriveOutput) Rows() [][]string {
	var rows [][]string
	for _, s := range o.Subjects {
		for _, name := range s.order {
			if e, failed := s.Errors[name]; failed {
				rows = append(rows, []string{s.Subject, name, "", e.Kind, e.Message})
				continue
			}
			rows = append(rows, []string{s.Subject, name, s.text[name], "", ""})
		}
	}
	return rows
}

func runDerive(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd, deriveFlags.format)
	if err != nil {
		return err
	}

	a, err := newApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	c, err := a.loadCatalog(a.catalogPath(deriveFlags.catalog))
	if err != nil {
		return err
	}
	subjects, err := readSubjects(deriveFlags.factsFile, deriveFlags.subject)
	if err != nil {
		return cli.NewCommandError("derive", err)
	}

	requested := deriveFlags.attrs
	if len(requested) == 0 {
		requested = c.Derived()
	}
	if len(requested) == 0 {
		return cli.NewCommandError("derive", fmt.Errorf("catalog %s defines no derived attributes", a.catalogPath(deriveFlags.catalog)))
	}

	var recorder *audit.Recorder
	if deriveFlags.record || a.cfg.Audit.Enabled {
		storage, err := audit.Open(&a.cfg.Audit, a.logger)
		if err != nil {
			return cli.NewConfigError("audit", err.Error())
		}
		defer storage.Close()
		recorder = audit.NewRecorder(storage, a.cfg.Audit.RecordFacts, a.logger)
	}

	out, err := deriveSubjects(cmd, a, c, subjects, requested, recorder)
	if err != nil {
		return err
	}

	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), out); err != nil {
		return err
	}
	if out.Failed > 0 {
		return cli.Failed(fmt.Errorf("%d attribute(s) failed across %d subject(s)", out.Failed, len(out.Subjects)))
	}
	return nil
}

func deriveSubjects(cmd *cobra.Command, a *app, c *catalog.Catalog, subjects []subject, requested []string, recorder *audit.Recorder) (DeriveOutput, error) {
	var progress cli.ProgressReporter = cli.NopProgress{}
	if len(subjects) > 1 {
		progress = cli.ProgressFor(cmd.ErrOrStderr(), "subjects")
	}
	progress.Start(int64(len(subjects)))

	attrs := c.Attributes()
	out := DeriveOutput{Subjects: make([]SubjectResult, 0, len(subjects))}
	for i, s := range subjects {
		facts, err := eval.FactsFromNative(s.Facts)
		if err != nil {
			progress.Error(err)
			return out, cli.NewCommandError("derive", fmt.Errorf("subject %s: %w", s.ID, err))
		}

		ctx := logging.WithSubjectID(commandContext(cmd), s.ID)
		runCtx, cancel := a.runContext(ctx)
		result := a.engine.Run(runCtx, attrs, requested, facts)
		cancel()

		sr := subjectResult(s.ID, result)
		if recorder != nil {
			rec, err := recorder.Record(ctx, s.ID, result, facts)
			if err != nil {
				a.logger.ErrorContext(ctx, "recording derivation failed", "error", err)
			} else {
				sr.AuditID = rec.ID
			}
		}
		out.Resolved += len(sr.Values)
		out.Failed += len(sr.Errors)
		out.Subjects = append(out.Subjects, sr)
		progress.Update(int64(i + 1))
	}
	progress.Finish()
	return out, nil
}

func subjectResult(id string, result *derive.Result) SubjectResult {
	sr := SubjectResult{
		Subject: id,
		Values:  make(map[string]ast.Value),
		order:   sortedUnique(result.Requested),
		text:    make(map[string]string),
	}
	for _, name := range sr.order {
		o := result.Outcomes[name]
		if o == nil {
			continue
		}
		if o.Err != nil {
			if sr.Errors == nil {
				sr.Errors = make(map[string]AttributeError)
			}
			sr.Errors[name] = AttributeError{Kind: string(o.Err.Kind), Message: o.Err.Error()}
			continue
		}
		sr.Values[name] = o.Value
		sr.text[name] = o.Value.String()
	}
	return sr
}

func sortedUnique(names []string) []string {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	return sortedKeys(seen)
}
