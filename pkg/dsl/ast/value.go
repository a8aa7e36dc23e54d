package ast

import (
	"math"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInteger
	KindFloat
	KindString
	KindBoolean
	KindList
	KindRegex
)

var kindNames = [...]string{
	KindNull:    "null",
	KindInteger: "integer",
	KindFloat:   "float",
	KindString:  "string",
	KindBoolean: "boolean",
	KindList:    "list",
	KindRegex:   "regex",
}

// String returns the lower-case kind name used in error messages.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is an immutable dynamically typed value.
// The zero Value is Null.
type Value struct {
	kind  Kind
	i     int64
	f     float64
	s     string // string payload or regex pattern
	b     bool
	items []Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInteger, i: i} }

// Float returns a float value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBoolean, b: b} }

// Regex returns a regex value holding the uncompiled pattern.
func Regex(pattern string) Value { return Value{kind: KindRegex, s: pattern} }

// List returns a list value. The items are copied so later changes to the
// caller's slice do not leak into the value.
func List(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, items: cp}
}

// Kind returns the variant of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsNumeric reports whether v is an Integer or a Float.
func (v Value) IsNumeric() bool { return v.kind == KindInteger || v.kind == KindFloat }

// AsInt returns the integer payload.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInteger }

// AsFloat returns the float payload. Integers are not widened, use Number for that.
func (v Value) AsFloat() (float64, bool) { return v.f, v.kind == KindFloat }

// AsString returns the string payload.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBoolean }

// Pattern returns the regex source of a Regex value.
func (v Value) Pattern() (string, bool) { return v.s, v.kind == KindRegex }

// Items returns a copy of the list elements.
func (v Value) Items() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	cp := make([]Value, len(v.items))
	copy(cp, v.items)
	return cp, true
}

// Len returns the number of list elements, or the byte length of a string.
// Other kinds report zero.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.items)
	case KindString:
		return len(v.s)
	}
	return 0
}

// Number returns v as a float64 when v is numeric.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindInteger:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	}
	return 0, false
}

// Equal reports whether v and other are equal.
//
// Integers and floats compare by numeric value. Values of the same kind
// compare structurally. Any other combination of kinds is unequal.
func (v Value) Equal(other Value) bool {
	if v.IsNumeric() && other.IsNumeric() {
		if v.kind == KindInteger && other.kind == KindInteger {
			return v.i == other.i
		}
		a, _ := v.Number()
		b, _ := other.Number()
		return a == b
	}
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString, KindRegex:
		return v.s == other.s
	case KindBoolean:
		return v.b == other.b
	case KindList:
		if len(v.items) != len(other.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(other.items[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Text returns the plain text form of v used for concatenation and lookup keys.
// Null renders as the empty string and strings render without quotes.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindString, KindRegex:
		return v.s
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindList:
		parts := make([]string, len(v.items))
		for i, item := range v.items {
			parts[i] = item.Text()
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

// String returns a literal-like rendering of v, suitable for display.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return strconv.Quote(v.s)
	case KindRegex:
		return "/" + v.s + "/"
	case KindFloat:
		s := formatFloat(v.f)
		if !strings.ContainsAny(s, ".eEnN") {
			s += ".0"
		}
		return s
	case KindList:
		parts := make([]string, len(v.items))
		for i, item := range v.items {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return v.Text()
}

func formatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
