package ast

import (
	"fmt"
	"strings"
)

// DeclaredType is the type an attribute is declared with in its metadata.
type DeclaredType string

const (
	TypeAny     DeclaredType = "any"
	TypeString  DeclaredType = "string"
	TypeInteger DeclaredType = "integer"
	TypeFloat   DeclaredType = "float"
	TypeBoolean DeclaredType = "boolean"
	TypeList    DeclaredType = "list"
)

var declaredTypeAliases = map[string]DeclaredType{
	"":        TypeAny,
	"any":     TypeAny,
	"string":  TypeString,
	"text":    TypeString,
	"integer": TypeInteger,
	"int":     TypeInteger,
	"float":   TypeFloat,
	"number":  TypeFloat,
	"decimal": TypeFloat,
	"boolean": TypeBoolean,
	"bool":    TypeBoolean,
	"list":    TypeList,
	"array":   TypeList,
}

// ParseDeclaredType resolves a type name from attribute metadata.
// Names are case-insensitive and a few common aliases are accepted.
func ParseDeclaredType(name string) (DeclaredType, error) {
	t, ok := declaredTypeAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("unknown type %q", name)
	}
	return t, nil
}

// Accepts reports whether a computed value conforms to the declared type.
// Null is accepted by every type and integers are accepted where floats are declared.
func (t DeclaredType) Accepts(v Value) bool {
	if v.IsNull() {
		return true
	}
	switch t {
	case TypeAny, "":
		return true
	case TypeString:
		return v.kind == KindString
	case TypeInteger:
		return v.kind == KindInteger
	case TypeFloat:
		return v.IsNumeric()
	case TypeBoolean:
		return v.kind == KindBoolean
	case TypeList:
		return v.kind == KindList
	}
	return false
}

// Conform returns v adjusted to the declared type. Integers are widened to
// floats for float attributes; every other accepted value is returned as is.
func (t DeclaredType) Conform(v Value) (Value, bool) {
	if !t.Accepts(v) {
		return v, false
	}
	if t == TypeFloat && v.kind == KindInteger {
		return Float(float64(v.i)), true
	}
	return v, true
}
