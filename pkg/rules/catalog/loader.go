package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"mercator-hq/meridian/pkg/dsl/ast"
	"mercator-hq/meridian/pkg/dsl/diagnostics"
	"mercator-hq/meridian/pkg/dsl/parser"
	"mercator-hq/meridian/pkg/dsl/validator"
	"mercator-hq/meridian/pkg/rules/derive"
	"mercator-hq/meridian/pkg/rules/eval"
)

// LoaderConfig contains configuration for the catalog loader.
type LoaderConfig struct {
	// MaxFileSize is the maximum file size in bytes (default: 10MB)
	MaxFileSize int64

	// Extensions is the list of catalog file extensions (default: [".yaml", ".yml"])
	Extensions []string

	// SkipHidden controls whether to skip hidden files and directories (default: true)
	SkipHidden bool

	// Strict fails the load when a rule has error diagnostics. Otherwise the
	// attribute is kept and fails at derivation time (default: false)
	Strict bool
}

// DefaultLoaderConfig returns the default loader configuration.
func DefaultLoaderConfig() *LoaderConfig {
	return &LoaderConfig{
		MaxFileSize: 10 * 1024 * 1024, // 10MB
		Extensions:  []string{".yaml", ".yml"},
		SkipHidden:  true,
	}
}

// Loader reads attribute catalogs from YAML files.
type Loader struct {
	config *LoaderConfig

	// parser turns rule text into expressions.
	parser *parser.Parser

	// registry is what rules are validated against.
	registry *eval.Registry

	logger *slog.Logger
}

// NewLoader creates a loader. Rules are parsed with p and checked against
// registry. Nil arguments select defaults.
func NewLoader(config *LoaderConfig, p *parser.Parser, registry *eval.Registry, logger *slog.Logger) *Loader {
	if config == nil {
		config = DefaultLoaderConfig()
	}
	if p == nil {
		p = parser.NewParser()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = eval.DefaultRegistry()
	}
	return &Loader{
		config:   config,
		parser:   p,
		registry: registry,
		logger:   logger.With("component", "catalog"),
	}
}

// Load loads a single file or every catalog file under a directory.
func (l *Loader) Load(path string) (*Catalog, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "failed to access path", Cause: err}
	}
	if info.IsDir() {
		return l.LoadDir(path)
	}
	return l.LoadFile(path)
}

// LoadFile loads one catalog file.
func (l *Loader) LoadFile(path string) (*Catalog, error) {
	specs, err := l.readFile(path)
	if err != nil {
		return nil, err
	}
	return l.build([]string{path}, map[string][]AttributeSpec{path: specs})
}

// LoadDir loads every catalog file under dir in lexical path order.
// Attribute names must be unique across files.
func (l *Loader) LoadDir(dir string) (*Catalog, error) {
	files, err := l.collectFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, &LoadError{FilePath: dir, Message: "no catalog files found in directory"}
	}

	specs := make(map[string][]AttributeSpec, len(files))
	errList := &ErrorList{}
	for _, path := range files {
		s, err := l.readFile(path)
		if err != nil {
			errList.Add(err)
			continue
		}
		specs[path] = s
	}
	if errList.HasErrors() {
		return nil, errList
	}
	return l.build(files, specs)
}

// LoadBytes decodes a catalog from data. source names it in errors.
func (l *Loader) LoadBytes(data []byte, source string) (*Catalog, error) {
	specs, err := decode(bytes.NewReader(data), source)
	if err != nil {
		return nil, err
	}
	return l.build([]string{source}, map[string][]AttributeSpec{source: specs})
}

func (l *Loader) readFile(path string) ([]AttributeSpec, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &LoadError{FilePath: path, Message: "file not found", Cause: err}
		}
		return nil, &LoadError{FilePath: path, Message: "failed to access file", Cause: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &LoadError{FilePath: path, Message: "not a regular file"}
	}
	if info.Size() > l.config.MaxFileSize {
		return nil, &LoadError{
			FilePath: path,
			Message:  fmt.Sprintf("file size %d bytes exceeds maximum %d bytes", info.Size(), l.config.MaxFileSize),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{FilePath: path, Message: "failed to read file", Cause: err}
	}
	if !utf8.Valid(data) {
		return nil, &LoadError{FilePath: path, Message: "file contains invalid UTF-8 encoding"}
	}
	return decode(bytes.NewReader(data), path)
}

func decode(r io.Reader, source string) ([]AttributeSpec, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, &ParseError{FilePath: source, Message: "YAML parsing failed", Cause: err}
	}
	return f.Attributes, nil
}

// build converts decoded specs into a catalog, validating structure first
// and rules second.
func (l *Loader) build(files []string, specs map[string][]AttributeSpec) (*Catalog, error) {
	c := newCatalog()
	c.Sources = files

	errList := &ErrorList{}
	for _, path := range files {
		for i, spec := range specs[path] {
			attr, err := l.convert(path, i, spec)
			if err != nil {
				errList.Add(err)
				continue
			}
			if err := c.add(Entry{Attribute: attr, Source: path}); err != nil {
				errList.Add(err)
			}
		}
	}
	if errList.HasErrors() {
		return nil, errList
	}
	c.seal()

	c.Diagnostics = l.lint(c)
	if l.config.Strict && diagnostics.HasErrors(c.Diagnostics) {
		return nil, &RuleError{Diagnostics: c.Diagnostics}
	}
	for _, d := range c.Diagnostics {
		l.logger.Warn("catalog rule diagnostic",
			"attribute", d.Attribute,
			"code", string(d.Code),
			"severity", d.Severity.String(),
			"message", d.Message,
		)
	}
	l.logger.Info("catalog loaded",
		"files", len(files),
		"attributes", c.Len(),
		"derived", len(c.Derived()),
		"diagnostics", len(c.Diagnostics),
	)
	return c, nil
}

func (l *Loader) convert(path string, index int, spec AttributeSpec) (derive.Attribute, error) {
	field := func(name string) string { return fmt.Sprintf("attributes[%d].%s", index, name) }
	verr := func(f, msg string) error {
		return &ValidationError{FilePath: path, Attribute: spec.Name, Field: field(f), Message: msg}
	}

	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return derive.Attribute{}, verr("name", "attribute name is required")
	}
	if l.parser.Grammar().IsReserved(name) {
		return derive.Attribute{}, verr("name", fmt.Sprintf("%q is a reserved word", name))
	}

	typ := ast.TypeAny
	if spec.Type != "" {
		t, err := ast.ParseDeclaredType(spec.Type)
		if err != nil {
			return derive.Attribute{}, verr("type", err.Error())
		}
		typ = t
	}

	kind := strings.ToLower(strings.TrimSpace(spec.Kind))
	if kind == "" {
		kind = KindReal
		if strings.TrimSpace(spec.Rule) != "" {
			kind = KindDerived
		}
	}

	var attr derive.Attribute
	switch kind {
	case KindReal:
		if spec.Rule != "" {
			return derive.Attribute{}, verr("rule", "real attributes must not have a rule")
		}
		if len(spec.Dependencies) > 0 {
			return derive.Attribute{}, verr("dependencies", "real attributes must not have dependencies")
		}
		attr = derive.NewReal(name, typ)
	case KindDerived:
		if strings.TrimSpace(spec.Rule) == "" {
			return derive.Attribute{}, verr("rule", "derived attributes need a rule")
		}
		d := derive.Derived{Rule: spec.Rule, Dependencies: spec.Dependencies}
		if expr, err := l.parser.Parse(spec.Rule); err == nil {
			d.Expr = expr
		}
		attr = derive.Attribute{Name: name, Type: typ, Kind: d}
	default:
		return derive.Attribute{}, verr("kind", fmt.Sprintf("unknown kind %q, want %s or %s", spec.Kind, KindReal, KindDerived))
	}
	attr.Description = spec.Description
	return attr, nil
}

// lint runs the validator over every derived rule.
func (l *Loader) lint(c *Catalog) []diagnostics.Diagnostic {
	v := validator.NewValidator(l.registry).
		WithParser(l.parser).
		WithAttributes(c.Names()...)

	var out []diagnostics.Diagnostic
	for _, name := range c.Derived() {
		attr, _ := c.Get(name)
		d, _ := attr.Derived()
		out = append(out, v.Validate(validator.Rule{
			Attribute:    name,
			Source:       d.Rule,
			Expr:         d.Expr,
			Dependencies: d.Dependencies,
		})...)
	}
	diagnostics.Sort(out)
	return out
}

// collectFiles returns the catalog files under dir, sorted.
func (l *Loader) collectFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &LoadError{FilePath: dir, Message: "directory not found", Cause: err}
		}
		return nil, &LoadError{FilePath: dir, Message: "failed to access directory", Cause: err}
	}
	if !info.IsDir() {
		return nil, &LoadError{FilePath: dir, Message: "not a directory"}
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if l.config.SkipHidden && strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !hasExtension(path, l.config.Extensions) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, &LoadError{FilePath: dir, Message: "failed to walk directory", Cause: err}
	}
	sort.Strings(files)
	return files, nil
}

func hasExtension(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, valid := range extensions {
		if ext == strings.ToLower(valid) {
			return true
		}
	}
	return false
}
