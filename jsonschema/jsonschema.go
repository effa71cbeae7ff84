// Package jsonschema implements the minimal JSON-Schema validation subset
// spec.md §4.3.7 names for the $validate operator: type, properties,
// required, enum, minLength, minimum, minItems, and nested properties.
//
// No importable JSON-Schema validator in the example pack performs
// arbitrary-document validation against a schema supplied as data at
// runtime — see DESIGN.md for the survey of what was available
// (invopop/jsonschema only generates a schema from a Go struct, the
// opposite direction) — so this package is hand-rolled against the
// standard library.
package jsonschema

import (
	"fmt"
	"strings"
)

// Object is the minimal ordered-object contract this package needs from a
// schema/data Value. runtime.OrderedObject satisfies it.
type Object interface {
	Keys() []string
	Get(key string) (any, bool)
}

// Violation is a single schema-rejection reason, rendered as a flat
// human-readable string (path-prefixed) for ValidationError.Violations.
type Violation string

// Validate compiles schema (a decoded JSON-Schema document) and checks
// data against it. A compile failure (malformed schema) is returned as a
// plain error, distinct from a validation rejection, which is returned as
// a non-empty []Violation with a nil error.
func Validate(data, schema any) ([]Violation, error) {
	s, err := compile(schema)
	if err != nil {
		return nil, err
	}
	var violations []Violation
	s.check("$", data, &violations)
	return violations, nil
}

// schema is the compiled form of a JSON-Schema document.
type schema struct {
	typ        string
	properties map[string]*schema
	required   map[string]bool
	enum       []any
	minLength  *int
	minimum    *float64
	minItems   *int
	items      *schema
}

func compile(raw any) (*schema, error) {
	obj, ok := asObject(raw)
	if !ok {
		return nil, fmt.Errorf("jsonschema: schema must be an object, got %T", raw)
	}
	s := &schema{}

	if v, ok := obj.Get("type"); ok {
		t, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("jsonschema: \"type\" must be a string")
		}
		s.typ = t
	}

	if v, ok := obj.Get("properties"); ok {
		propsObj, ok := asObject(v)
		if !ok {
			return nil, fmt.Errorf("jsonschema: \"properties\" must be an object")
		}
		s.properties = make(map[string]*schema, len(propsObj.Keys()))
		for _, k := range propsObj.Keys() {
			pv, _ := propsObj.Get(k)
			ps, err := compile(pv)
			if err != nil {
				return nil, fmt.Errorf("jsonschema: properties.%s: %w", k, err)
			}
			s.properties[k] = ps
		}
	}

	if v, ok := obj.Get("required"); ok {
		arr, ok := asArray(v)
		if !ok {
			return nil, fmt.Errorf("jsonschema: \"required\" must be an array")
		}
		s.required = make(map[string]bool, len(arr))
		for _, r := range arr {
			name, ok := r.(string)
			if !ok {
				return nil, fmt.Errorf("jsonschema: \"required\" entries must be strings")
			}
			s.required[name] = true
		}
	}

	if v, ok := obj.Get("enum"); ok {
		arr, ok := asArray(v)
		if !ok {
			return nil, fmt.Errorf("jsonschema: \"enum\" must be an array")
		}
		s.enum = arr
	}

	if v, ok := obj.Get("minLength"); ok {
		n, err := asInt(v)
		if err != nil {
			return nil, fmt.Errorf("jsonschema: \"minLength\": %w", err)
		}
		s.minLength = &n
	}

	if v, ok := obj.Get("minimum"); ok {
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("jsonschema: \"minimum\" must be a number")
		}
		s.minimum = &f
	}

	if v, ok := obj.Get("minItems"); ok {
		n, err := asInt(v)
		if err != nil {
			return nil, fmt.Errorf("jsonschema: \"minItems\": %w", err)
		}
		s.minItems = &n
	}

	if v, ok := obj.Get("items"); ok {
		items, err := compile(v)
		if err != nil {
			return nil, fmt.Errorf("jsonschema: \"items\": %w", err)
		}
		s.items = items
	}

	return s, nil
}

func (s *schema) check(path string, data any, out *[]Violation) {
	if s.typ != "" && !matchesType(s.typ, data) {
		*out = append(*out, Violation(fmt.Sprintf("%s: expected type %q, got %s", path, s.typ, describeType(data))))
		return
	}

	if len(s.enum) > 0 {
		found := false
		for _, e := range s.enum {
			if equalValue(e, data) {
				found = true
				break
			}
		}
		if !found {
			*out = append(*out, Violation(fmt.Sprintf("%s: value not in enum", path)))
		}
	}

	switch v := data.(type) {
	case string:
		if s.minLength != nil && len(v) < *s.minLength {
			*out = append(*out, Violation(fmt.Sprintf("%s: length %d is less than minLength %d", path, len(v), *s.minLength)))
		}
	case float64:
		if s.minimum != nil && v < *s.minimum {
			*out = append(*out, Violation(fmt.Sprintf("%s: value %v is less than minimum %v", path, v, *s.minimum)))
		}
	}

	if arr, ok := asArray(data); ok {
		if s.minItems != nil && len(arr) < *s.minItems {
			*out = append(*out, Violation(fmt.Sprintf("%s: has %d items, fewer than minItems %d", path, len(arr), *s.minItems)))
		}
		if s.items != nil {
			for i, elem := range arr {
				s.items.check(fmt.Sprintf("%s[%d]", path, i), elem, out)
			}
		}
	}

	if obj, ok := asObject(data); ok {
		for name := range s.required {
			if _, present := obj.Get(name); !present {
				*out = append(*out, Violation(fmt.Sprintf("%s: missing required property %q", path, name)))
			}
		}
		for name, propSchema := range s.properties {
			if v, present := obj.Get(name); present {
				propSchema.check(path+"."+name, v, out)
			}
		}
	}
}

func matchesType(typ string, v any) bool {
	switch typ {
	case "null":
		return v == nil
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "number":
		_, ok := v.(float64)
		return ok
	case "string":
		_, ok := v.(string)
		return ok
	case "array":
		_, ok := asArray(v)
		return ok
	case "object":
		_, ok := asObject(v)
		return ok
	default:
		return true
	}
}

func describeType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	default:
		if _, ok := asArray(v); ok {
			return "array"
		}
		if _, ok := asObject(v); ok {
			return "object"
		}
		return "unknown"
	}
}

func equalValue(a, b any) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func asInt(v any) (int, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("expected number, got %T", v)
	}
	return int(f), nil
}

func asObject(v any) (Object, bool) {
	obj, ok := v.(Object)
	return obj, ok
}

func asArray(v any) ([]any, bool) {
	arr, ok := v.([]any)
	return arr, ok
}

// Join renders violations as a single message for EvalError.Message.
func Join(violations []Violation) string {
	strs := make([]string, len(violations))
	for i, v := range violations {
		strs[i] = string(v)
	}
	return strings.Join(strs, "; ")
}
