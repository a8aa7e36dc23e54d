package ast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// FromNative converts a decoded YAML or JSON value into a Value.
//
// Supported inputs are nil, booleans, all integer and float types, strings,
// json.Number, Value and slices of any of those. Maps are rejected because the
// rule language has no record type.
func FromNative(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return fromUint(uint64(x))
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		return fromUint(x)
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Null(), fmt.Errorf("invalid number %q: %w", x.String(), err)
		}
		return Float(f), nil
	case []string:
		items := make([]Value, len(x))
		for i, s := range x {
			items[i] = String(s)
		}
		return Value{kind: KindList, items: items}, nil
	case []Value:
		return List(x...), nil
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			val, err := FromNative(item)
			if err != nil {
				return Null(), fmt.Errorf("list element %d: %w", i, err)
			}
			items[i] = val
		}
		return Value{kind: KindList, items: items}, nil
	}
	return Null(), fmt.Errorf("unsupported value type %T", v)
}

func fromUint(u uint64) (Value, error) {
	if u > math.MaxInt64 {
		return Null(), fmt.Errorf("integer %d overflows int64", u)
	}
	return Int(int64(u)), nil
}

// Native converts v back into plain Go data: nil, int64, float64, string,
// bool or []any. Regex values become their pattern text.
func (v Value) Native() any {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindFloat:
		return v.f
	case KindString, KindRegex:
		return v.s
	case KindBoolean:
		return v.b
	case KindList:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.Native()
		}
		return out
	}
	return nil
}

// MarshalJSON encodes v as its native JSON form.
// NaN and infinities, which JSON cannot represent, are written as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case v.kind == KindFloat && (math.IsNaN(v.f) || math.IsInf(v.f, 0)):
		return json.Marshal(formatFloat(v.f))
	case v.kind == KindList:
		items := v.items
		if items == nil {
			items = []Value{}
		}
		return json.Marshal(items)
	}
	return json.Marshal(v.Native())
}

// UnmarshalJSON decodes a JSON document into v. Numbers without a fraction
// become integers.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	val, err := FromNative(raw)
	if err != nil {
		return err
	}
	*v = val
	return nil
}
