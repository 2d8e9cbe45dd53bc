package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is a sealed interface over the constrained snapshot value types.
// Only Null, String, Number, Bool, and StringList implement it. Condition
// and action logic type-switches on this variant set instead of coercing
// arbitrary interface{} values.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents an absent or explicitly null field value.
// Using an explicit type keeps the sealed interface total: a snapshot
// lookup always yields a Value, never a nil interface.
type Null struct{}

func (Null) value() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a string field value.
type String string

func (String) value() {}

// Number represents a numeric field value.
// Stored as float64; integral values round-trip through JSON unchanged.
type Number float64

func (Number) value() {}

// Bool represents a boolean field value.
type Bool bool

func (Bool) value() {}

// StringList represents an array-of-strings field value.
// Used for entity fields like tags and for in_list condition values.
type StringList []string

func (StringList) value() {}

// Snapshot is a read-only view of an entity's fields at the moment a
// trigger fires. The engine never mutates it; callers must not reuse a
// snapshot across mutations.
type Snapshot map[string]Value

// Get returns the value for a field. Absent fields yield Null, so
// callers never see a nil Value.
func (s Snapshot) Get(field string) Value {
	if v, ok := s[field]; ok && v != nil {
		return v
	}
	return Null{}
}

// AsString reports the string content of v, if v is a String.
func AsString(v Value) (string, bool) {
	s, ok := v.(String)
	return string(s), ok
}

// AsNumber coerces v to a float64. Numbers convert directly; numeric
// strings are parsed. Everything else (bools, lists, null) is not
// coercible and reports false.
func AsNumber(v Value) (float64, bool) {
	switch val := v.(type) {
	case Number:
		return float64(val), true
	case String:
		n, err := strconv.ParseFloat(string(val), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// IsEmpty reports whether v is null or the empty string.
// Numbers, bools, and lists (even zero-length ones) are never empty;
// emptiness is a property of unset scalar fields.
func IsEmpty(v Value) bool {
	switch val := v.(type) {
	case Null:
		return true
	case String:
		return val == ""
	default:
		return false
	}
}

// MarshalValue marshals a Value to JSON bytes.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(val))
	case Number:
		return json.Marshal(float64(val))
	case Bool:
		return json.Marshal(bool(val))
	case StringList:
		return json.Marshal([]string(val))
	default:
		return nil, fmt.Errorf("unknown value type: %T", v)
	}
}

// UnmarshalValue decodes a JSON value into the matching Value variant.
// Arrays must contain only strings; objects are rejected (snapshots are
// flat field documents, never nested).
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	return FromAny(raw)
}

// FromAny converts a decoded JSON (or YAML) value into a Value variant.
// Integers arriving as int/int64 (yaml.v3) and json.Number are both
// accepted; nested objects and mixed arrays are rejected.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Number(val), nil
	case int64:
		return Number(val), nil
	case float64:
		return Number(val), nil
	case json.Number:
		n, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("number out of range: %s", val)
		}
		return Number(n), nil
	case []any:
		list := make(StringList, len(val))
		for i, elem := range val {
			s, ok := elem.(string)
			if !ok {
				return nil, fmt.Errorf("array[%d]: arrays may contain only strings, got %T", i, elem)
			}
			list[i] = s
		}
		return list, nil
	case []string:
		return StringList(val), nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

// MarshalJSON implements json.Marshaler for Snapshot.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	plain := make(map[string]json.RawMessage, len(s))
	for k, v := range s {
		b, err := MarshalValue(v)
		if err != nil {
			return nil, fmt.Errorf("marshal field %q: %w", k, err)
		}
		plain[k] = b
	}
	return json.Marshal(plain)
}

// UnmarshalJSON implements json.Unmarshaler for Snapshot.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = make(Snapshot, len(raw))
	for k, v := range raw {
		val, err := UnmarshalValue(v)
		if err != nil {
			return fmt.Errorf("snapshot field %q: %w", k, err)
		}
		(*s)[k] = val
	}
	return nil
}

// SnapshotFromAny builds a Snapshot from a plain map, converting each
// value through FromAny. Used by the YAML scenario loader and tests.
func SnapshotFromAny(m map[string]any) (Snapshot, error) {
	snap := make(Snapshot, len(m))
	for k, v := range m {
		val, err := FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		snap[k] = val
	}
	return snap, nil
}
