package profile

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the Value union.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

// Value is a recursively mergeable configuration value. The zero Value is
// null, which merges as "absent": it never overrides a lower-precedence
// layer.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	list []Value
	m    map[string]Value
}

// Null returns the absent value.
func Null() Value { return Value{} }

// Bool wraps a boolean scalar.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Number wraps a numeric scalar.
func Number(v float64) Value { return Value{kind: KindNumber, n: v} }

// String wraps a string scalar.
func String(v string) Value { return Value{kind: KindString, s: v} }

// List wraps a list. Lists are replaced wholesale on merge, never merged
// element-wise.
func List(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, list: cp}
}

// Map wraps a map.
func Map(entries map[string]Value) Value {
	cp := make(map[string]Value, len(entries))
	for k, v := range entries {
		cp[k] = v
	}
	return Value{kind: KindMap, m: cp}
}

// Kind returns the union discriminant.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is absent.
func (v Value) IsNull() bool { return v.kind == KindNull }

// BoolValue returns the boolean payload, or the fallback for non-bool values.
func (v Value) BoolValue(fallback bool) bool {
	if v.kind != KindBool {
		return fallback
	}
	return v.b
}

// NumberValue returns the numeric payload, or the fallback for non-number values.
func (v Value) NumberValue(fallback float64) float64 {
	if v.kind != KindNumber {
		return fallback
	}
	return v.n
}

// StringValue returns the string payload, or the fallback for non-string values.
func (v Value) StringValue(fallback string) string {
	if v.kind != KindString {
		return fallback
	}
	return v.s
}

// ListValue returns a copy of the list payload, nil for non-list values.
func (v Value) ListValue() []Value {
	if v.kind != KindList {
		return nil
	}
	cp := make([]Value, len(v.list))
	copy(cp, v.list)
	return cp
}

// Get returns the entry for key on a map value; Null otherwise.
func (v Value) Get(key string) Value {
	if v.kind != KindMap {
		return Null()
	}
	return v.m[key]
}

// Path walks nested map keys, returning Null as soon as a segment is missing.
func (v Value) Path(keys ...string) Value {
	current := v
	for _, key := range keys {
		current = current.Get(key)
	}
	return current
}

// FromAny converts decoded JSON/TOML data (maps, slices, scalars) to a Value.
func FromAny(data any) (Value, error) {
	switch typed := data.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(typed), nil
	case float64:
		return Number(typed), nil
	case int:
		return Number(float64(typed)), nil
	case int64:
		return Number(float64(typed)), nil
	case string:
		return String(typed), nil
	case []any:
		items := make([]Value, 0, len(typed))
		for _, elem := range typed {
			value, err := FromAny(elem)
			if err != nil {
				return Null(), err
			}
			items = append(items, value)
		}
		return List(items...), nil
	case map[string]any:
		entries := make(map[string]Value, len(typed))
		for key, elem := range typed {
			value, err := FromAny(elem)
			if err != nil {
				return Null(), err
			}
			entries[key] = value
		}
		return Value{kind: KindMap, m: entries}, nil
	default:
		return Null(), fmt.Errorf("profile: unsupported value type %T", data)
	}
}

// ToAny converts the Value back to plain Go data for serialization.
func (v Value) ToAny() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindList:
		out := make([]any, 0, len(v.list))
		for _, elem := range v.list {
			out = append(out, elem.ToAny())
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for key, elem := range v.m {
			out[key] = elem.ToAny()
		}
		return out
	default:
		return nil
	}
}

// ParseJSON decodes a JSON document into a Value. Empty input yields Null.
func ParseJSON(data string) (Value, error) {
	if data == "" {
		return Null(), nil
	}
	var raw any
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return Null(), fmt.Errorf("profile: parse json: %w", err)
	}
	return FromAny(raw)
}

// MarshalJSON renders the Value as a JSON document. Null renders as "null".
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

// Equal reports deep equality of two values.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.n == other.n
	case KindString:
		return v.s == other.s
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for key, elem := range v.m {
			if !elem.Equal(other.m[key]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
