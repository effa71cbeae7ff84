package jsonschema

import "testing"

// testObject is a minimal ordered Object for schema/data documents, kept
// independent of the runtime package (which imports this one).
type testObject struct {
	keys   []string
	values map[string]any
}

func newTestObject() *testObject {
	return &testObject{values: make(map[string]any)}
}

func (o *testObject) set(k string, v any) *testObject {
	if _, ok := o.values[k]; !ok {
		o.keys = append(o.keys, k)
	}
	o.values[k] = v
	return o
}

func (o *testObject) Keys() []string           { return o.keys }
func (o *testObject) Get(k string) (any, bool) { v, ok := o.values[k]; return v, ok }

func TestValidate_TypeMismatch(t *testing.T) {
	schema := newTestObject().set("type", "string")
	violations, err := Validate(42.0, schema)
	if err != nil {
		t.Fatalf("unexpected compile error: %v", err)
	}
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %v", violations)
	}
}

func TestValidate_TypeMatchIsClean(t *testing.T) {
	schema := newTestObject().set("type", "string")
	violations, err := Validate("hello", schema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("expected no violations, got %v", violations)
	}
}

func TestValidate_RequiredProperties(t *testing.T) {
	schema := newTestObject().
		set("type", "object").
		set("required", []any{"name", "email"})
	data := newTestObject().set("name", "alice")

	violations, err := Validate(data, schema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation for missing email, got %v", violations)
	}
}

func TestValidate_NestedProperties(t *testing.T) {
	addrSchema := newTestObject().set("type", "object").set("required", []any{"city"})
	schema := newTestObject().
		set("type", "object").
		set("properties", newTestObject().set("address", addrSchema))
	data := newTestObject().set("address", newTestObject())

	violations, err := Validate(data, schema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(violations) != 1 {
		t.Fatalf("expected 1 nested violation, got %v", violations)
	}
}

func TestValidate_EnumRejectsOutsideValue(t *testing.T) {
	schema := newTestObject().set("enum", []any{"a", "b", "c"})
	violations, err := Validate("z", schema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(violations) != 1 {
		t.Fatalf("expected 1 enum violation, got %v", violations)
	}
}

func TestValidate_MinLengthAndMinimum(t *testing.T) {
	schema := newTestObject().set("minLength", 3.0)
	violations, err := Validate("ab", schema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(violations) != 1 {
		t.Fatalf("expected minLength violation, got %v", violations)
	}

	numSchema := newTestObject().set("minimum", 10.0)
	violations, err = Validate(5.0, numSchema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(violations) != 1 {
		t.Fatalf("expected minimum violation, got %v", violations)
	}
}

func TestValidate_MinItemsOnArray(t *testing.T) {
	schema := newTestObject().set("minItems", 2.0)
	violations, err := Validate([]any{"a"}, schema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(violations) != 1 {
		t.Fatalf("expected minItems violation, got %v", violations)
	}
}

func TestValidate_ItemsSchemaAppliesPerElement(t *testing.T) {
	schema := newTestObject().set("items", newTestObject().set("type", "number"))
	violations, err := Validate([]any{1.0, "oops", 3.0}, schema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(violations) != 1 {
		t.Fatalf("expected 1 per-element violation, got %v", violations)
	}
}

func TestValidate_SchemaMustBeObject(t *testing.T) {
	_, err := Validate("data", "not-a-schema")
	if err == nil {
		t.Fatal("expected compile error for non-object schema")
	}
}

func TestJoin(t *testing.T) {
	got := Join([]Violation{"a: bad", "b: also bad"})
	want := "a: bad; b: also bad"
	if got != want {
		t.Errorf("Join() = %q, want %q", got, want)
	}
}
