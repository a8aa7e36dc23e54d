package catalog

import (
	"fmt"
	"sort"
	"time"

	"mercator-hq/meridian/pkg/dsl/diagnostics"
	"mercator-hq/meridian/pkg/rules/derive"
)

// File is the YAML layout of a catalog file.
type File struct {
	Attributes []AttributeSpec `yaml:"attributes"`
}

// AttributeSpec is one attribute definition as written in YAML.
type AttributeSpec struct {
	// Name is the attribute name. Dots are allowed.
	Name string `yaml:"name"`

	// Type is the declared type. Empty means any.
	Type string `yaml:"type,omitempty"`

	// Kind is "real" or "derived". When empty it is derived if Rule is set.
	Kind string `yaml:"kind,omitempty"`

	// Rule is the expression for a derived attribute.
	Rule string `yaml:"rule,omitempty"`

	// Dependencies optionally names the inputs of Rule. Identifiers the
	// rule reads are added to them for ordering.
	Dependencies []string `yaml:"dependencies,omitempty"`

	Description string `yaml:"description,omitempty"`
}

// Attribute kinds accepted in catalog files.
const (
	KindReal    = "real"
	KindDerived = "derived"
)

// Entry is a loaded attribute together with where it was defined.
type Entry struct {
	Attribute derive.Attribute

	// Source is the file the attribute was defined in, empty for
	// attributes built in code.
	Source string
}

// Catalog is an immutable set of attribute definitions.
type Catalog struct {
	entries map[string]Entry
	names   []string


	// Diagnostics holds validator findings for the catalog's rules.
	Diagnostics []diagnostics.Diagnostic

	// Sources lists the files the catalog was built from.
	Sources []string

	// LoadedAt is when the files were read.
	LoadedAt time.Time
}

// New builds a catalog from attributes. Duplicate names are rejected.
func New(attrs ...derive.Attribute) (*Catalog, error) {
	c := newCatalog()
	for _, a := range attrs {
		if err := c.add(Entry{Attribute: a}); err != nil {
			return nil, err
		}
	}
	c.seal()
	return c, nil
}

func newCatalog() *Catalog {
	return &Catalog{entries: make(map[string]Entry), LoadedAt: time.Now()}
}

func (c *Catalog) add(e Entry) error {
	name := e.Attribute.Name
	if name == "" {
		return &ValidationError{FilePath: e.Source, Field: "name", Message: "attribute name is required"}
	}
	if prev, dup := c.entries[name]; dup {
		msg := "duplicate attribute"
		if prev.Source != "" {
			msg = fmt.Sprintf("duplicate attribute, first defined in %q", prev.Source)
		}
		return &ValidationError{FilePath: e.Source, Attribute: name, Message: msg}
	}
	c.entries[name] = e
	return nil
}

func (c *Catalog) seal() {
	c.names = make([]string, 0, len(c.entries))
	for name := range c.entries {
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
}

// Len returns the number of attributes.
func (c *Catalog) Len() int { return len(c.names) }

// Names returns the attribute names in sorted order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Get returns the attribute called name.
func (c *Catalog) Get(name string) (derive.Attribute, bool) {
	e, ok := c.entries[name]
	return e.Attribute, ok
}

// Source returns the file that defined name, if known.
func (c *Catalog) Source(name string) string {
	return c.entries[name].Source
}

// Attributes returns every attribute sorted by name.
func (c *Catalog) Attributes() []derive.Attribute {
	out := make([]derive.Attribute, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.entries[name].Attribute)
	}
	return out
}

// Derived returns the names of the derived attributes, sorted.
func (c *Catalog) Derived() []string {
	var out []string
	for _, name := range c.names {
		if c.entries[name].Attribute.IsDerived() {
			out = append(out, name)
		}
	}
	return out
}
