package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Value is a sealed interface over the runtime value kinds of the manifest
// expression sublanguage. Only Null, String, Number, Bool, Array, and Object
// implement it.
//
// Numbers are float64 throughout, matching the manifest language's single
// numeric type.
type Value interface {
	value() // sealed
}

// Null represents the null value.
type Null struct{}

func (Null) value() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a string value.
type String string

func (String) value() {}

// Number represents a numeric value.
type Number float64

func (Number) value() {}

// MarshalJSON implements json.Marshaler for Number.
// Integral values marshal without a fractional part so that 2.0 and 2
// serialize identically; non-finite values are rejected.
func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number cannot be serialized: %v", f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return []byte(fmt.Sprintf("%d", int64(f))), nil
	}
	return json.Marshal(f)
}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// Array represents an ordered list of values.
type Array []Value

func (Array) value() {}

// Object represents a map of string keys to values.
// Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// SortedKeys returns the object's keys in lexicographic byte order.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON implements json.Marshaler for Object with sorted keys, so any
// serialization containing an Object is deterministic.
func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := MarshalValue(o[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalValue marshals any Value to JSON bytes.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(val))
	case Number:
		return val.MarshalJSON()
	case Bool:
		return json.Marshal(bool(val))
	case Array:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			elemBytes, err := MarshalValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			buf.Write(elemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case Object:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}

// UnmarshalValue decodes JSON bytes into a Value.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromGo(raw)
}

// FromGo converts a plain Go value (as produced by encoding/json or yaml
// decoding) into a Value. The conversion is total over JSON-shaped input;
// unsupported Go types return an error.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case float64:
		return Number(val), nil
	case int:
		return Number(val), nil
	case int64:
		return Number(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("number out of range: %s", val)
		}
		return Number(f), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			converted, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = converted
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			converted, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = converted
		}
		return obj, nil
	case Value:
		return val, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ToGo converts a Value back into a plain Go value (nil, bool, string,
// float64, []any, map[string]any). The inverse of FromGo.
func ToGo(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Number:
		return float64(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToGo(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToGo(elem)
		}
		return out
	default:
		return nil
	}
}

// Clone deep-copies a value. Scalars are immutable and returned as-is;
// arrays and objects are copied recursively.
func Clone(v Value) Value {
	switch val := v.(type) {
	case Array:
		out := make(Array, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case Object:
		return val.Clone()
	default:
		return v
	}
}

// Clone deep-copies an object.
func (o Object) Clone() Object {
	out := make(Object, len(o))
	for k, elem := range o {
		out[k] = Clone(elem)
	}
	return out
}

// Truthy reports whether a value is considered true in a boolean position:
// false, null, 0, "" and empty collections are falsy, everything else truthy.
// This mirrors the manifest language's loose boolean coercion for guards.
func Truthy(v Value) bool {
	switch val := v.(type) {
	case nil, Null:
		return false
	case Bool:
		return bool(val)
	case Number:
		return float64(val) != 0
	case String:
		return string(val) != ""
	case Array:
		return len(val) > 0
	case Object:
		return len(val) > 0
	default:
		return false
	}
}

// Equal reports deep equality between two values. Values of different kinds
// are never equal (no cross-kind coercion).
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil, Null:
		_, isNull := b.(Null)
		return isNull || b == nil
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, elem := range av {
			other, present := bv[k]
			if !present || !Equal(elem, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// UnmarshalJSON implements json.Unmarshaler for Object.
func (o *Object) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = make(Object, len(raw))
	for k, v := range raw {
		val, err := UnmarshalValue(v)
		if err != nil {
			return fmt.Errorf("object key %q: %w", k, err)
		}
		(*o)[k] = val
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for Array.
func (a *Array) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = make(Array, len(raw))
	for i, v := range raw {
		val, err := UnmarshalValue(v)
		if err != nil {
			return fmt.Errorf("array index %d: %w", i, err)
		}
		(*a)[i] = val
	}
	return nil
}
