package derive

import (
	"mercator-hq/meridian/pkg/dsl/ast"
)

// Attribute is a named business datum described by metadata.
type Attribute struct {
	// Name is the unique attribute name.
	Name string

	// Type is checked against derived values. TypeAny accepts anything.
	Type ast.DeclaredType

	Description string

	// Kind is Real or Derived.
	Kind AttributeKind
}

// AttributeKind is either Real or Derived.
type AttributeKind interface {
	attributeKind()
}

// Real marks an attribute supplied directly by the caller's facts.
type Real struct{}

// Derived marks an attribute computed from a rule.
type Derived struct {
	// Rule is the rule source text.
	Rule string

	// Dependencies optionally lists the attributes the rule needs. When empty
	// they are inferred from the identifiers in the parsed rule. Identifiers
	// the rule reads always take part in ordering and cycle detection.
	Dependencies []string

	// Expr is an already parsed form of Rule. When nil the engine parses Rule.
	Expr ast.Expression
}

func (Real) attributeKind()    {}
func (Derived) attributeKind() {}

// NewReal returns a real attribute.
func NewReal(name string, typ ast.DeclaredType) Attribute {
	return Attribute{Name: name, Type: typ, Kind: Real{}}
}

// NewDerived returns a derived attribute computed by rule.
func NewDerived(name string, typ ast.DeclaredType, rule string, dependencies ...string) Attribute {
	return Attribute{Name: name, Type: typ, Kind: Derived{Rule: rule, Dependencies: dependencies}}
}

// Derived returns the derivation of a, if a is derived.
func (a Attribute) Derived() (Derived, bool) {
	switch k := a.Kind.(type) {
	case Derived:
		return k, true
	case *Derived:
		if k != nil {
			return *k, true
		}
	}
	return Derived{}, false
}

// IsDerived reports whether a is computed by a rule.
func (a Attribute) IsDerived() bool {
	_, ok := a.Derived()
	return ok
}
