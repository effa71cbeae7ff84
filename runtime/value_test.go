package runtime

import (
	"encoding/json"
	"testing"
)

func TestOrderedObject_MarshalJSONPreservesOrderAndRoundTrips(t *testing.T) {
	o := NewOrderedObject()
	o.Set("z", 1.0)
	o.Set("a", "x")
	o.Set("nested", NewOrderedObject())

	data, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"z":1,"a":"x","nested":{}}`
	if string(data) != want {
		t.Errorf("MarshalJSON() = %s, want %s", data, want)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("round-trip decode failed: %v", err)
	}
	if decoded["a"] != "x" {
		t.Errorf("expected a=x after round-trip, got %v", decoded["a"])
	}
}

func TestTruthy(t *testing.T) {
	cases := []struct {
		name string
		v    Value
		want bool
	}{
		{"nil", nil, false},
		{"false", false, false},
		{"true", true, true},
		{"zero", 0.0, false},
		{"nonzero", 1.0, true},
		{"empty string", "", false},
		{"nonempty string", "x", true},
		{"empty array", []Value{}, false},
		{"nonempty array", []Value{1.0}, true},
		{"empty object", NewOrderedObject(), false},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := truthy(tt.v); got != tt.want {
				t.Errorf("truthy(%v) = %v, want %v", tt.v, got, tt.want)
			}
		})
	}

	obj := NewOrderedObject()
	obj.Set("k", "v")
	if !truthy(obj) {
		t.Error("expected nonempty object to be truthy")
	}
}

func TestStructuralEqual(t *testing.T) {
	a := NewOrderedObject()
	a.Set("x", 1.0)
	a.Set("y", 2.0)
	b := NewOrderedObject()
	b.Set("y", 2.0)
	b.Set("x", 1.0) // different insertion order, same content

	if !structuralEqual(a, b) {
		t.Error("expected structurally-equal objects with different key order to be equal")
	}

	if !structuralEqual([]Value{1.0, "a", nil}, []Value{1.0, "a", nil}) {
		t.Error("expected equal arrays to compare equal")
	}
	if structuralEqual([]Value{1.0, "a"}, []Value{1.0, "a", nil}) {
		t.Error("expected different-length arrays to compare unequal")
	}
	if structuralEqual(1.0, "1") {
		t.Error("expected number and string not to be structurally equal")
	}
	if !structuralEqual(nil, nil) {
		t.Error("expected nil == nil")
	}
}

func TestOrderedObject_PreservesInsertionOrder(t *testing.T) {
	o := NewOrderedObject()
	o.Set("b", 1.0)
	o.Set("a", 2.0)
	o.Set("c", 3.0)
	o.Set("a", 4.0) // overwrite keeps position

	want := []string{"b", "a", "c"}
	got := o.Keys()
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("key[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	v, _ := o.Get("a")
	if v != 4.0 {
		t.Errorf("expected overwritten value 4, got %v", v)
	}
}

func TestTypeName(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{nil, "null"},
		{true, "boolean"},
		{1.0, "number"},
		{"s", "string"},
		{[]Value{}, "array"},
		{NewOrderedObject(), "object"},
	}
	for _, tt := range cases {
		if got := typeName(tt.v); got != tt.want {
			t.Errorf("typeName(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}
