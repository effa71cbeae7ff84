package runtime

import "testing"

func TestParseOperatorValue_Literal(t *testing.T) {
	ov, err := ParseOperatorValue([]byte(`{"name": "alice", "age": 30}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lit, ok := ov.(Literal)
	if !ok {
		t.Fatalf("expected Literal, got %T", ov)
	}
	obj, ok := lit.Value.(*OrderedObject)
	if !ok {
		t.Fatalf("expected *OrderedObject literal value, got %T", lit.Value)
	}
	if v, _ := obj.Get("name"); v != "alice" {
		t.Errorf("expected name=alice, got %v", v)
	}
}

func TestParseOperatorValue_BareScalarLiteral(t *testing.T) {
	ov, err := ParseOperatorValue([]byte(`42`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lit, ok := ov.(Literal)
	if !ok || lit.Value != 42.0 {
		t.Fatalf("expected Literal(42), got %#v", ov)
	}
}

func TestParseOperatorValue_Get(t *testing.T) {
	ov, err := ParseOperatorValue([]byte(`{"$get": "user.name"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	op, ok := ov.(GetOp)
	if !ok {
		t.Fatalf("expected GetOp, got %T", ov)
	}
	if op.Tag() != "get" {
		t.Errorf("expected tag get, got %s", op.Tag())
	}
	path, ok := op.Path.(Literal)
	if !ok || path.Value != "user.name" {
		t.Errorf("expected path literal user.name, got %#v", op.Path)
	}
}

func TestParseOperatorValue_MultipleDollarKeysRejected(t *testing.T) {
	_, err := ParseOperatorValue([]byte(`{"$get": "x", "$now": {}}`))
	if err == nil {
		t.Fatal("expected error for multiple $-prefixed keys")
	}
}

func TestParseOperatorValue_DollarKeyWithExtraKeyRejected(t *testing.T) {
	_, err := ParseOperatorValue([]byte(`{"$get": "x", "other": 1}`))
	if err == nil {
		t.Fatal("expected error for operator object with extra non-$ key")
	}
}

func TestParseOperatorValue_IfWithoutElse(t *testing.T) {
	ov, err := ParseOperatorValue([]byte(`{"$if": {"condition": true, "then": 1}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	op, ok := ov.(IfOp)
	if !ok {
		t.Fatalf("expected IfOp, got %T", ov)
	}
	if op.Else != nil {
		t.Errorf("expected nil Else, got %#v", op.Else)
	}
}

func TestParseOperatorValue_SubtractDivideAreVariadicBinary(t *testing.T) {
	ov, err := ParseOperatorValue([]byte(`{"$subtract": {"left": 10, "right": 3}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	op, ok := ov.(VariadicOp)
	if !ok {
		t.Fatalf("expected VariadicOp, got %T", ov)
	}
	if len(op.Operands) != 2 {
		t.Fatalf("expected 2 operands, got %d", len(op.Operands))
	}

	ov, err = ParseOperatorValue([]byte(`{"$divide": {"left": 10, "right": 2}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	op, ok = ov.(VariadicOp)
	if !ok {
		t.Fatalf("expected VariadicOp for $divide, got %T", ov)
	}
	if op.Tag() != "divide" || len(op.Operands) != 2 {
		t.Fatalf("expected divide with 2 operands, got %s with %d", op.Tag(), len(op.Operands))
	}
}

func TestParseOperatorValue_EqIsBinaryOp(t *testing.T) {
	ov, err := ParseOperatorValue([]byte(`{"$eq": {"left": 1, "right": 1}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := ov.(BinaryOp); !ok {
		t.Fatalf("expected BinaryOp, got %T", ov)
	}
}

func TestParseOperatorValue_UnknownTagIsNotImplemented(t *testing.T) {
	ov, err := ParseOperatorValue([]byte(`{"$totallyMadeUp": {}}`))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	n, ok := ov.(notImplementedOp)
	if !ok {
		t.Fatalf("expected notImplementedOp, got %T", ov)
	}
	if n.Tag() != "totallyMadeUp" {
		t.Errorf("expected tag totallyMadeUp, got %s", n.Tag())
	}
}

func TestParseOperatorValue_DbQueryCollectionIsPlainString(t *testing.T) {
	ov, err := ParseOperatorValue([]byte(`{"$dbQuery": {"collection": "users", "filter": {"active": true}, "limit": 10}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	op, ok := ov.(DbQueryOp)
	if !ok {
		t.Fatalf("expected DbQueryOp, got %T", ov)
	}
	if op.Collection != "users" {
		t.Errorf("expected collection users, got %s", op.Collection)
	}
	if op.Limit == nil || *op.Limit != 10 {
		t.Errorf("expected limit 10, got %v", op.Limit)
	}
	if _, ok := op.Filter["active"]; !ok {
		t.Error("expected filter to contain active key")
	}
}

func TestDecodeValue_PreservesKeyOrder(t *testing.T) {
	v, err := DecodeValue([]byte(`{"z": 1, "a": 2, "m": 3}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	obj, ok := v.(*OrderedObject)
	if !ok {
		t.Fatalf("expected *OrderedObject, got %T", v)
	}
	want := []string{"z", "a", "m"}
	got := obj.Keys()
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("key[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDecodeValue_Null(t *testing.T) {
	v, err := DecodeValue([]byte(`null`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != nil {
		t.Errorf("expected nil, got %v", v)
	}
}
