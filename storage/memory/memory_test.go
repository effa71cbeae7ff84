package memory

import (
	"context"
	"testing"

	"github.com/opflowhq/opflow/runtime"
)

func docWith(fields map[string]runtime.Value) runtime.Value {
	obj := runtime.NewOrderedObject()
	for k, v := range fields {
		obj.Set(k, v)
	}
	return obj
}

func TestStore_InsertAssignsID(t *testing.T) {
	s := New()
	v, err := s.Insert(context.Background(), "users", map[string]runtime.Value{"name": "alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	obj := v.(*runtime.OrderedObject)
	id, ok := obj.Get("_id")
	if !ok {
		t.Fatal("expected _id to be assigned")
	}
	if _, ok := id.(string); !ok {
		t.Fatalf("expected string _id, got %T", id)
	}
}

func TestStore_InsertPreservesSuppliedID(t *testing.T) {
	s := New()
	v, err := s.Insert(context.Background(), "users", map[string]runtime.Value{"_id": "fixed", "name": "bob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	obj := v.(*runtime.OrderedObject)
	if id, _ := obj.Get("_id"); id != "fixed" {
		t.Errorf("expected supplied _id preserved, got %v", id)
	}
}

func TestStore_QueryMissingCollectionIsEmpty(t *testing.T) {
	s := New()
	docs, err := s.Query(context.Background(), "nonexistent", runtime.QueryOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected empty result, got %v", docs)
	}
}

func TestStore_QueryFilterNullMatchesMissingField(t *testing.T) {
	s := New().WithCollection("users", []runtime.Value{
		docWith(map[string]runtime.Value{"name": "alice"}),
		docWith(map[string]runtime.Value{"name": "bob", "deletedAt": "2026-01-01"}),
	})
	docs, err := s.Query(context.Background(), "users", runtime.QueryOptions{
		Filter: map[string]runtime.Value{"deletedAt": nil},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 doc matching null filter, got %d", len(docs))
	}
	obj := docs[0].(*runtime.OrderedObject)
	if name, _ := obj.Get("name"); name != "alice" {
		t.Errorf("expected alice, got %v", name)
	}
}

func TestStore_QuerySortAscendingAndDescending(t *testing.T) {
	s := New().WithCollection("items", []runtime.Value{
		docWith(map[string]runtime.Value{"price": 30.0}),
		docWith(map[string]runtime.Value{"price": 10.0}),
		docWith(map[string]runtime.Value{"price": 20.0}),
	})

	docs, err := s.Query(context.Background(), "items", runtime.QueryOptions{
		Sort: map[string]runtime.SortOrder{"price": runtime.SortAscending},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float64{10.0, 20.0, 30.0}
	for i, w := range want {
		obj := docs[i].(*runtime.OrderedObject)
		if p, _ := obj.Get("price"); p != w {
			t.Errorf("ascending[%d] = %v, want %v", i, p, w)
		}
	}

	docs, err = s.Query(context.Background(), "items", runtime.QueryOptions{
		Sort: map[string]runtime.SortOrder{"price": runtime.SortDescending},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantDesc := []float64{30.0, 20.0, 10.0}
	for i, w := range wantDesc {
		obj := docs[i].(*runtime.OrderedObject)
		if p, _ := obj.Get("price"); p != w {
			t.Errorf("descending[%d] = %v, want %v", i, p, w)
		}
	}
}

func TestStore_QuerySkipLimitAndSelect(t *testing.T) {
	s := New().WithCollection("items", []runtime.Value{
		docWith(map[string]runtime.Value{"n": 1.0, "extra": "x"}),
		docWith(map[string]runtime.Value{"n": 2.0, "extra": "y"}),
		docWith(map[string]runtime.Value{"n": 3.0, "extra": "z"}),
	})
	skip, limit := 1, 1
	docs, err := s.Query(context.Background(), "items", runtime.QueryOptions{
		Skip: &skip, Limit: &limit, Select: []string{"n"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 doc after skip/limit, got %d", len(docs))
	}
	obj := docs[0].(*runtime.OrderedObject)
	if n, _ := obj.Get("n"); n != 2.0 {
		t.Errorf("expected n=2, got %v", n)
	}
	if _, ok := obj.Get("extra"); ok {
		t.Error("expected select projection to exclude \"extra\"")
	}
}

func TestStore_UpdateShallowMerges(t *testing.T) {
	s := New().WithCollection("users", []runtime.Value{
		docWith(map[string]runtime.Value{"_id": "1", "name": "alice", "active": true}),
	})
	updated, err := s.Update(context.Background(), "users",
		map[string]runtime.Value{"_id": "1"},
		map[string]runtime.Value{"active": false},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updated) != 1 {
		t.Fatalf("expected 1 updated doc, got %d", len(updated))
	}
	obj := updated[0].(*runtime.OrderedObject)
	if name, _ := obj.Get("name"); name != "alice" {
		t.Errorf("expected name preserved, got %v", name)
	}
	if active, _ := obj.Get("active"); active != false {
		t.Errorf("expected active=false, got %v", active)
	}
}

func TestStore_DeleteRemovesMatchingDocs(t *testing.T) {
	s := New().WithCollection("users", []runtime.Value{
		docWith(map[string]runtime.Value{"_id": "1", "active": true}),
		docWith(map[string]runtime.Value{"_id": "2", "active": false}),
	})
	deleted, err := s.Delete(context.Background(), "users", map[string]runtime.Value{"active": false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deleted) != 1 {
		t.Fatalf("expected 1 deleted doc, got %d", len(deleted))
	}
	remaining, err := s.Query(context.Background(), "users", runtime.QueryOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected 1 remaining doc, got %d", len(remaining))
	}
}
