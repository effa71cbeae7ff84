// Package memory implements an in-memory reference runtime.StorageProvider,
// grounded directly on original_source's MockDatabase
// (_examples/original_source/src/executor/traits.rs): per-collection
// document slices behind a single mutex, field-equality-AND filtering with
// null-matches-missing, single-field sort, shallow-merge update, and
// audit-trail delete.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/opflowhq/opflow/runtime"
)

// Store is an in-memory StorageProvider. The zero value is not usable; use
// New. Safe for concurrent use by multiple request goroutines — spec.md §5
// requires storage to serialize its own internal state.
type Store struct {
	mu          sync.Mutex
	collections map[string][]runtime.Value
}

// New creates an empty Store.
func New() *Store {
	return &Store{collections: make(map[string][]runtime.Value)}
}

// WithCollection seeds a collection with initial documents, for test setup.
func (s *Store) WithCollection(name string, docs []runtime.Value) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[name] = docs
	return s
}

func (s *Store) Query(ctx context.Context, collection string, opts runtime.QueryOptions) ([]runtime.Value, error) {
	s.mu.Lock()
	docs := append([]runtime.Value(nil), s.collections[collection]...)
	s.mu.Unlock()

	filtered := make([]runtime.Value, 0, len(docs))
	for _, doc := range docs {
		if matchesFilter(doc, opts.Filter) {
			filtered = append(filtered, doc)
		}
	}

	if len(opts.Sort) > 0 {
		sortDocuments(filtered, opts.Sort)
	}

	skip := 0
	if opts.Skip != nil {
		skip = *opts.Skip
	}
	if skip > 0 {
		if skip >= len(filtered) {
			filtered = filtered[:0]
		} else {
			filtered = filtered[skip:]
		}
	}
	if opts.Limit != nil && *opts.Limit < len(filtered) {
		filtered = filtered[:*opts.Limit]
	}

	if len(opts.Select) > 0 {
		projected := make([]runtime.Value, len(filtered))
		for i, doc := range filtered {
			projected[i] = projectFields(doc, opts.Select)
		}
		return projected, nil
	}

	return filtered, nil
}

func (s *Store) Insert(ctx context.Context, collection string, document map[string]runtime.Value) (runtime.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj := runtime.NewOrderedObject()
	for k, v := range document {
		obj.Set(k, v)
	}
	if _, ok := obj.Get("_id"); !ok {
		obj.Set("_id", uuid.NewString())
	}

	s.collections[collection] = append(s.collections[collection], obj)
	return obj, nil
}

func (s *Store) Update(ctx context.Context, collection string, filter, update map[string]runtime.Value) ([]runtime.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collections[collection]
	updated := make([]runtime.Value, 0)
	for i, doc := range docs {
		if !matchesFilter(doc, filter) {
			continue
		}
		obj, ok := doc.(*runtime.OrderedObject)
		if !ok {
			continue
		}
		merged := mergeUpdate(obj, update)
		docs[i] = merged
		updated = append(updated, merged)
	}
	s.collections[collection] = docs
	return updated, nil
}

func (s *Store) Delete(ctx context.Context, collection string, filter map[string]runtime.Value) ([]runtime.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collections[collection]
	remaining := make([]runtime.Value, 0, len(docs))
	deleted := make([]runtime.Value, 0)
	for _, doc := range docs {
		if matchesFilter(doc, filter) {
			deleted = append(deleted, doc)
		} else {
			remaining = append(remaining, doc)
		}
	}
	s.collections[collection] = remaining
	return deleted, nil
}

// matchesFilter implements spec.md §4.4's filter semantics: field-equality
// AND across filter keys; a filter value of null matches a missing field.
func matchesFilter(doc runtime.Value, filter map[string]runtime.Value) bool {
	if len(filter) == 0 {
		return true
	}
	obj, ok := doc.(*runtime.OrderedObject)
	if !ok {
		return false
	}
	for key, want := range filter {
		got, present := obj.Get(key)
		switch {
		case present && runtime.StructuralEqual(got, want):
			continue
		case !present && want == nil:
			continue
		default:
			return false
		}
	}
	return true
}

func projectFields(doc runtime.Value, fields []string) runtime.Value {
	obj, ok := doc.(*runtime.OrderedObject)
	if !ok {
		return doc
	}
	out := runtime.NewOrderedObject()
	for _, f := range fields {
		if v, ok := obj.Get(f); ok {
			out.Set(f, v)
		}
	}
	return out
}

// sortDocuments sorts by a single entry of order — see spec.md §9's Open
// Question on multi-field sort. With more than one entry, the one used is
// whichever Go map iteration yields first, so it is not defined.
func sortDocuments(docs []runtime.Value, order map[string]runtime.SortOrder) {
	var field string
	var dir runtime.SortOrder
	for f, d := range order {
		field, dir = f, d
		break
	}
	sort.SliceStable(docs, func(i, j int) bool {
		less := compareField(docs[i], docs[j], field)
		if dir == runtime.SortDescending {
			return !less && compareField(docs[j], docs[i], field)
		}
		return less
	})
}

func compareField(a, b runtime.Value, field string) bool {
	ao, aok := a.(*runtime.OrderedObject)
	bo, bok := b.(*runtime.OrderedObject)
	if !aok || !bok {
		return false
	}
	av, aPresent := ao.Get(field)
	bv, bPresent := bo.Get(field)
	if !aPresent {
		return false
	}
	if !bPresent {
		return true
	}
	if af, ok := av.(float64); ok {
		if bf, ok := bv.(float64); ok {
			return af < bf
		}
		return false
	}
	if as, ok := av.(string); ok {
		if bs, ok := bv.(string); ok {
			return as < bs
		}
		return false
	}
	return false
}

// mergeUpdate shallow-merges update into a copy of obj; existing keys are
// overwritten, other keys preserved.
func mergeUpdate(obj *runtime.OrderedObject, update map[string]runtime.Value) *runtime.OrderedObject {
	merged := runtime.NewOrderedObject()
	obj.Range(func(k string, v runtime.Value) {
		merged.Set(k, v)
	})
	for k, v := range update {
		merged.Set(k, v)
	}
	return merged
}
