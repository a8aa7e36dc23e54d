package lookup

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"mercator-hq/meridian/pkg/dsl/ast"
)

// MemoryProvider serves tables held in memory. It is safe for concurrent use.
type MemoryProvider struct {
	mu     sync.RWMutex
	tables map[string]map[string]ast.Value
}

// NewMemoryProvider creates a provider over a copy of tables.
func NewMemoryProvider(tables map[string]map[string]ast.Value) *MemoryProvider {
	p := &MemoryProvider{tables: make(map[string]map[string]ast.Value, len(tables))}
	for name, rows := range tables {
		p.SetTable(name, rows)
	}
	return p
}

// Lookup implements eval.LookupProvider.
func (p *MemoryProvider) Lookup(_ context.Context, table, key string) (ast.Value, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.tables[table][key]
	return v, ok, nil
}

// Set stores a single row.
func (p *MemoryProvider) Set(table, key string, v ast.Value) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rows, ok := p.tables[table]
	if !ok {
		rows = make(map[string]ast.Value)
		p.tables[table] = rows
	}
	rows[key] = v
}

// SetTable replaces a whole table.
func (p *MemoryProvider) SetTable(table string, rows map[string]ast.Value) {
	copied := make(map[string]ast.Value, len(rows))
	for k, v := range rows {
		copied[k] = v
	}
	p.mu.Lock()
	p.tables[table] = copied
	p.mu.Unlock()
}

// Tables returns the table names, sorted.
func (p *MemoryProvider) Tables() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.tables))
	for name := range p.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close implements Provider.
func (p *MemoryProvider) Close() error { return nil }

// tablesFile is the YAML layout of a lookup file:
//
//	tables:
//	  country_risk:
//	    US: low
//	    KP: high
type tablesFile struct {
	Tables map[string]map[string]any `yaml:"tables"`
}

// LoadYAMLFile reads lookup tables from a YAML file.
func LoadYAMLFile(path string) (*MemoryProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open lookup file: %w", err)
	}
	defer f.Close()
	p, err := ReadYAML(f)
	if err != nil {
		return nil, fmt.Errorf("lookup file %s: %w", path, err)
	}
	return p, nil
}

// ReadYAML reads lookup tables in the LoadYAMLFile layout from r.
func ReadYAML(r io.Reader) (*MemoryProvider, error) {
	var f tablesFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode lookup tables: %w", err)
	}
	tables, err := convertTables(f.Tables)
	if err != nil {
		return nil, err
	}
	return NewMemoryProvider(tables), nil
}

func convertTables(raw map[string]map[string]any) (map[string]map[string]ast.Value, error) {
	tables := make(map[string]map[string]ast.Value, len(raw))
	for name, rows := range raw {
		converted := make(map[string]ast.Value, len(rows))
		for key, native := range rows {
			v, err := ast.FromNative(native)
			if err != nil {
				return nil, fmt.Errorf("table %q key %q: %w", name, key, err)
			}
			converted[key] = v
		}
		tables[name] = converted
	}
	return tables, nil
}
