package runtime

import "context"

// SortOrder is the direction of a single-field storage sort.
type SortOrder string

const (
	SortAscending  SortOrder = "asc"
	SortDescending SortOrder = "desc"
)

// QueryOptions carries the optional modifiers of a $dbQuery operator.
// Select, when non-nil, projects the listed fields. Sort honors a single
// entry: with more than one, which entry is used is not defined (Go map
// iteration order) — see spec.md §9's Open Question on multi-field sort.
type QueryOptions struct {
	Filter map[string]Value
	Select []string
	Limit  *int
	Skip   *int
	Sort   map[string]SortOrder
}

// StorageProvider is the abstract storage collaborator behind $dbQuery,
// $dbInsert, $dbUpdate, $dbDelete (spec.md §4.4). Implementations MUST:
//   - treat a missing collection as empty on read (query/update/delete
//     return empty results, never an error);
//   - apply field-equality AND filtering; a filter value of null matches a
//     document where the field is absent;
//   - shallow-merge Update into each matching document, preserving
//     untouched keys;
//   - assign a string "_id" on insert when the document doesn't supply one;
//   - preserve insertion order when Sort is not requested.
type StorageProvider interface {
	Query(ctx context.Context, collection string, opts QueryOptions) ([]Value, error)
	Insert(ctx context.Context, collection string, document map[string]Value) (Value, error)
	Update(ctx context.Context, collection string, filter, update map[string]Value) ([]Value, error)
	Delete(ctx context.Context, collection string, filter map[string]Value) ([]Value, error)
}

// ClockProvider returns the current time as both an ISO-8601 UTC string and
// a Unix-epoch second count, substitutable by a fixed fake for deterministic
// tests (spec.md §4.4).
type ClockProvider interface {
	Now() string
	UnixTimestamp() int64
}

// RequestSurface exposes the inbound HTTP request data an evaluation may
// read: path params, query string, headers, optional JSON body, method,
// path. Entirely read-only during evaluation (spec.md §4.4).
type RequestSurface interface {
	Params() map[string]string
	Query() map[string]string
	Headers() map[string]string
	Body() (Value, bool)
	Method() string
	Path() string
}

// Collaborators bundles the per-request dependency set the Evaluator reads.
// It holds only non-owning references; it is never mutated during
// evaluation (spec.md §5).
type Collaborators struct {
	Storage StorageProvider
	Clock   ClockProvider
	Request RequestSurface
}
