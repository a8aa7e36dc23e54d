package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mercator-hq/meridian/pkg/cli"
	"mercator-hq/meridian/pkg/config"
	"mercator-hq/meridian/pkg/dsl/diagnostics"
	"mercator-hq/meridian/pkg/dsl/parser"
	"mercator-hq/meridian/pkg/lookup"
	"mercator-hq/meridian/pkg/rules/catalog"
	"mercator-hq/meridian/pkg/rules/derive"
	"mercator-hq/meridian/pkg/rules/eval"
	"mercator-hq/meridian/pkg/telemetry/logging"
	"mercator-hq/meridian/pkg/telemetry/metrics"
)

// app is the engine stack shared by the commands, built from configuration.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	parser    *parser.Parser
	registry  *eval.Registry
	lookups   lookup.Provider
	evaluator *eval.Evaluator
	engine    *derive.Engine
	metrics   *metrics.Collector
}

type appOptions struct {
	// metrics attaches a Prometheus collector to the engine and caches.
	metrics bool
}

// newApp loads configuration and builds the parser, evaluator and derivation
// engine. Callers must call close.
func newApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	if err := config.ReloadConfig(cfgFile); err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	cfg := config.GetConfig()

	logCfg := cfg.Telemetry.Logging
	logCfg.Writer = cmd.ErrOrStderr()
	if verbose {
		logCfg.Level = "debug"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}

	p, err := cfg.DSL.NewParser()
	if err != nil {
		return nil, cli.NewConfigError("dsl.grammar_file", err.Error())
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		parser:   p,
		registry: eval.DefaultRegistry(),
	}

	var cacheObserver eval.CacheObserver
	if opts.metrics {
		a.metrics = metrics.NewCollector(cfg.Telemetry.Metrics, nil)
		cacheObserver = a.metrics
	}

	a.lookups, err = lookup.Open(&cfg.Lookup, cacheObserver, logger)
	if err != nil {
		return nil, cli.NewConfigError("lookup", err.Error())
	}

	a.evaluator, err = eval.NewEvaluator(cfg.Engine.EvalConfig(), a.registry, a.lookups, logger)
	if err != nil {
		a.close()
		return nil, cli.NewConfigError("engine", err.Error())
	}
	a.engine, err = derive.NewEngine(cfg.Engine.DeriveConfig(), p, a.evaluator, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	if a.metrics != nil {
		a.evaluator.WithPatternCache(eval.NewPatternCache(a.metrics))
		a.engine.WithObserver(a.metrics).WithCacheObserver(a.metrics)
	}
	return a, nil
}

func (a *app) close() {
	if a.lookups != nil {
		if err := a.lookups.Close(); err != nil {
			a.logger.Warn("closing lookup provider failed", "error", err)
		}
	}
}

// commandContext returns the command's context, or Background when the
// command was invoked directly.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// runContext bounds a single derivation or evaluation by engine.timeout.
func (a *app) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.Engine.Timeout > 0 {
		return context.WithTimeout(ctx, a.cfg.Engine.Timeout)
	}
	return context.WithCancel(ctx)
}

func (a *app) loader() *catalog.Loader {
	return catalog.NewLoader(a.cfg.Catalog.LoaderConfig(), a.parser, a.registry, a.logger)
}

// catalogPath returns the --catalog flag value or the configured path.
func (a *app) catalogPath(flag string) string {
	if flag != "" {
		return flag
	}
	return a.cfg.Catalog.Path
}

// loadCatalog reads the catalog at path, or an empty catalog when path is
// empty.
func (a *app) loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.New()
	}
	c, err := a.loader().Load(path)
	if err != nil {
		return nil, cli.NewCommandError("catalog", err)
	}
	return c, nil
}

// subject is one set of facts to derive attributes for.
type subject struct {
	ID    string         `json:"id" yaml:"id"`
	Facts map[string]any `json:"facts" yaml:"facts"`
}

// readSubjects loads subjects from a facts file. A YAML or JSON document is
// either a plain map of facts (one subject named defaultID) or a map with a
// "subjects" list. Files ending in .jsonl or .ndjson hold one subject object
// per line.
func readSubjects(path, defaultID string) ([]subject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read facts file: %w", err)
	}
	if defaultID == "" {
		defaultID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return decodeJSONLines(data)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse facts file %s: %w", path, err)
	}
	raw, ok := doc["subjects"]
	if !ok {
		return []subject{{ID: defaultID, Facts: eval.FlattenNative(doc)}}, nil
	}

	var wrapper struct {
		Subjects []subject `yaml:"subjects"`
	}
	if _, isList := raw.([]any); !isList {
		return nil, fmt.Errorf("parse facts file %s: subjects must be a list", path)
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse facts file %s: %w", path, err)
	}
	for i := range wrapper.Subjects {
		if wrapper.Subjects[i].ID == "" {
			wrapper.Subjects[i].ID = fmt.Sprintf("%s#%d", defaultID, i+1)
		}
		wrapper.Subjects[i].Facts = eval.FlattenNative(wrapper.Subjects[i].Facts)
	}
	return wrapper.Subjects, nil
}

func decodeJSONLines(data []byte) ([]subject, error) {
	var out []subject
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(text))
		dec.UseNumber()
		var s subject
		if err := dec.Decode(&s); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if s.ID == "" {
			s.ID = fmt.Sprintf("line-%d", line)
		}
		s.Facts = eval.FlattenNative(s.Facts)
		out = append(out, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// parseAssignments parses --set name=value flags. Values are read as YAML
// scalars or flow lists, so 42, 4.2, true, null and [a, b] keep their types.
func parseAssignments(sets []string) (map[string]any, error) {
	out := make(map[string]any, len(sets))
	for _, s := range sets {
		name, raw, ok := strings.Cut(s, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q, want name=value", s)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("invalid --set %q: %w", s, err)
		}
		if raw == "" {
			v = ""
		}
		out[name] = v
	}
	return out, nil
}

// outputFormat resolves a --format flag against the command's output.
func outputFormat(cmd *cobra.Command, flag string) (cli.OutputFormat, error) {
	f, err := cli.ParseFormat(flag)
	if err != nil {
		return "", cli.NewConfigError("--format", err.Error())
	}
	return cli.ResolveFormat(f, cmd.OutOrStdout()), nil
}

// writeDiagnostics renders diagnostics for a terminal. sourceOf returns the
// rule text a diagnostic refers to, or "" when unknown.
func writeDiagnostics(w io.Writer, ds []diagnostics.Diagnostic, sourceOf func(diagnostics.Diagnostic) string) {
	for _, d := range ds {
		fmt.Fprint(w, diagnostics.Render(sourceOf(d), d))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
