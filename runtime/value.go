package runtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Value is the dynamically-typed data domain the evaluator operates on.
// It mirrors the JSON data model exactly: null, bool, number, string, array,
// and object. Numbers are IEEE-754 doubles — see compareNumbers for the NaN
// caveat. Objects preserve insertion order so $merge and $dbQuery results
// are reproducible across runs.
type Value = any

// OrderedObject is an insertion-ordered string-keyed map. encoding/json
// decodes JSON objects into map[string]any, which loses key order; the
// evaluator reconstructs OrderedObject wherever order is observable
// (merge output, dbQuery projections).
type OrderedObject struct {
	keys   []string
	values map[string]Value
}

// NewOrderedObject creates an empty ordered object.
func NewOrderedObject() *OrderedObject {
	return &OrderedObject{values: make(map[string]Value)}
}

// Set inserts or overwrites a key. Overwriting an existing key keeps its
// original position; inserting a new key appends it.
func (o *OrderedObject) Set(key string, v Value) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Get returns the value for key and whether it was present.
func (o *OrderedObject) Get(key string) (Value, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (o *OrderedObject) Keys() []string {
	return o.keys
}

// Len returns the number of keys.
func (o *OrderedObject) Len() int {
	return len(o.keys)
}

// Map returns a plain map[string]Value snapshot, discarding order.
func (o *OrderedObject) Map() map[string]Value {
	out := make(map[string]Value, len(o.keys))
	for _, k := range o.keys {
		out[k] = o.values[k]
	}
	return out
}

// Range calls fn for each key/value pair in insertion order.
func (o *OrderedObject) Range(fn func(key string, v Value)) {
	for _, k := range o.keys {
		fn(k, o.values[k])
	}
}

// MarshalJSON encodes the object as a JSON object with keys in insertion
// order. Without this, encoding/json would reflect over OrderedObject's
// unexported fields and emit "{}" — every HTTP response body and $dbQuery
// result depends on this to round-trip correctly.
func (o *OrderedObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		valJSON, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ToOrderedObject converts a map[string]any (as produced by encoding/json,
// with undefined key order) into an OrderedObject. Keys are sorted is NOT
// performed — callers that need a deterministic order over a plain map
// should sort keys themselves; this helper exists for the case where the
// caller only has a flat map and order doesn't matter for correctness
// (e.g. database documents before a $dbQuery select projection).
func ToOrderedObject(m map[string]Value) *OrderedObject {
	o := NewOrderedObject()
	for k, v := range m {
		o.Set(k, v)
	}
	return o
}

// typeName returns the DSL type name used in error messages and $exists-style
// diagnostics. Matches the closed set described in the value model: null,
// boolean, number, string, array, object.
func typeName(v Value) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64, int, int64:
		return "number"
	case string:
		return "string"
	case []Value:
		return "array"
	case *OrderedObject:
		return "object"
	case map[string]Value:
		return "object"
	default:
		return fmt.Sprintf("unknown(%T)", v)
	}
}

// truthy implements the domain's truthiness rule: null and false are false;
// numeric zero is false; empty string/array/object are false; everything
// else is true.
func truthy(v Value) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case string:
		return t != ""
	case []Value:
		return len(t) != 0
	case *OrderedObject:
		return t.Len() != 0
	case map[string]Value:
		return len(t) != 0
	default:
		return true
	}
}

// asFloat64 normalizes the handful of numeric Go representations that can
// appear in a Value (encoding/json always produces float64, but literals
// built in Go code or returned by storage providers may use int/int64).
func asFloat64(v Value) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// compareNumbers returns -1, 0, 1 for a<b, a==b, a>b. NaN operands are
// rejected by the caller before this is reached — see evalCompare.
func compareNumbers(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// isNaN reports whether v is a numeric NaN value.
func isNaN(v Value) bool {
	f, ok := asFloat64(v)
	return ok && math.IsNaN(f)
}

// StructuralEqual is the exported form of structuralEqual, for storage
// providers implementing filter matching outside this package.
func StructuralEqual(a, b Value) bool {
	return structuralEqual(a, b)
}

// structuralEqual implements $eq / $ne's structural equality: same type,
// same shape, recursively equal elements/fields. No numeric<->string
// coercion is performed.
func structuralEqual(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case float64, int, int64:
		af, aok := asFloat64(a)
		bf, bok := asFloat64(b)
		return aok && bok && af == bf
	case []Value:
		bv, ok := b.([]Value)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !structuralEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case *OrderedObject:
		bo, ok := valueAsObject(b)
		if !ok || bo.Len() != av.Len() {
			return false
		}
		equal := true
		av.Range(func(k string, v Value) {
			if !equal {
				return
			}
			bv, ok := bo.Get(k)
			if !ok || !structuralEqual(v, bv) {
				equal = false
			}
		})
		return equal
	case map[string]Value:
		return structuralEqual(ToOrderedObject(av), b)
	default:
		return false
	}
}

// valueAsObject normalizes both object representations (*OrderedObject and
// the plain map[string]Value produced by untyped literals) to an
// *OrderedObject so evaluator code only has one shape to deal with.
func valueAsObject(v Value) (*OrderedObject, bool) {
	switch o := v.(type) {
	case *OrderedObject:
		return o, true
	case map[string]Value:
		return ToOrderedObject(o), true
	default:
		return nil, false
	}
}

// valueAsArray normalizes a Value to a []Value, reporting false for any
// other shape.
func valueAsArray(v Value) ([]Value, bool) {
	arr, ok := v.([]Value)
	return arr, ok
}
