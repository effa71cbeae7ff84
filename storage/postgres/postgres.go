// Package postgres implements a runtime.StorageProvider backed by
// PostgreSQL: each collection is a table with a "doc JSONB" column plus an
// "_id TEXT" primary-key column filled by Insert, so spec.md §4.4's document-store semantics
// (field-equality filter, shallow-merge update, audit-trail delete) are
// expressed as JSONB operators over one column rather than a bespoke
// per-field schema.
//
// Adapted from the teacher's plugins/postgres/plugin.go, which was a
// generic raw-SQL task plugin (arbitrary Query/Exec with positional
// params); this rewrite keeps its connection-pool configuration and
// connection-string redaction but replaces the SQL-task surface entirely
// with the four StorageProvider operations.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/opflowhq/opflow/runtime"
)

// Config holds the connection-pool configuration. Field shape and
// defaults/validation tags mirror the teacher's Config struct exactly.
type Config struct {
	ConnectionString  string `yaml:"connection_string" validate:"required,dsn"`
	MaxOpenConns      int    `yaml:"max_open_conns" default:"10" validate:"gte=1,lte=100"`
	MaxIdleConns      int    `yaml:"max_idle_conns" default:"5" validate:"gte=0,lte=50"`
	ConnMaxLifetimeMs int    `yaml:"conn_max_lifetime_ms" default:"300000" validate:"gte=0"`
}

// Store is a Postgres-backed StorageProvider. Use Open to construct one;
// the zero value has no live connection.
type Store struct {
	cfg Config
	db  *sql.DB
}

// Open applies the teacher's defaults-then-validate config pipeline to cfg,
// opens the connection pool, and verifies connectivity.
func Open(cfg Config) (*Store, error) {
	if err := runtime.InitializeConfig(&cfg, nil); err != nil {
		return nil, fmt.Errorf("postgres: config: %w", err)
	}

	slog.Info("postgres: opening connection pool",
		"connection_string", maskConnectionString(cfg.ConnectionString),
		"max_open_conns", cfg.MaxOpenConns,
		"max_idle_conns", cfg.MaxIdleConns,
		"conn_max_lifetime_ms", cfg.ConnMaxLifetimeMs)

	db, err := sql.Open("postgres", cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMs) * time.Millisecond)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &Store{cfg: cfg, db: db}, nil
}

// Shutdown closes the connection pool.
func (s *Store) Shutdown(context.Context) error {
	return s.db.Close()
}

// ensureTable lazily creates the collection's backing table. Collections
// not yet materialized are treated as empty on read, per spec.md §4.4 —
// table-creation happens on first write (Insert), matching "insert as
// create-on-absent."
func (s *Store) ensureTable(collection string) error {
	if !isValidIdentifier(collection) {
		return fmt.Errorf("postgres: invalid collection name %q", collection)
	}
	_, err := s.db.Exec(fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %q (_id TEXT PRIMARY KEY, doc JSONB NOT NULL)`,
		collection,
	))
	return err
}

func (s *Store) tableExists(collection string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
		collection,
	).Scan(&exists)
	return exists, err
}

func (s *Store) Query(ctx context.Context, collection string, opts runtime.QueryOptions) ([]runtime.Value, error) {
	exists, err := s.tableExists(collection)
	if err != nil {
		return nil, fmt.Errorf("postgres: check table: %w", err)
	}
	if !exists {
		return []runtime.Value{}, nil
	}

	where, args, err := filterClause(opts.Filter)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT doc FROM %q WHERE %s`, collection, where)
	query += orderClause(opts.Sort)
	if opts.Limit != nil {
		query += fmt.Sprintf(" LIMIT %d", *opts.Limit)
	}
	if opts.Skip != nil {
		query += fmt.Sprintf(" OFFSET %d", *opts.Skip)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	var docs []runtime.Value
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		doc, err := decodeDoc(raw)
		if err != nil {
			return nil, err
		}
		if len(opts.Select) > 0 {
			doc = projectFields(doc, opts.Select)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows: %w", err)
	}
	if docs == nil {
		docs = []runtime.Value{}
	}
	return docs, nil
}

func (s *Store) Insert(ctx context.Context, collection string, document map[string]runtime.Value) (runtime.Value, error) {
	if err := s.ensureTable(collection); err != nil {
		return nil, fmt.Errorf("postgres: ensure table: %w", err)
	}

	obj := runtime.NewOrderedObject()
	for k, v := range document {
		obj.Set(k, v)
	}
	id, ok := obj.Get("_id")
	idStr, isStr := id.(string)
	if !ok || !isStr || idStr == "" {
		idStr = newID()
		obj.Set("_id", idStr)
	}

	raw, err := encodeDoc(obj)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %q (_id, doc) VALUES ($1, $2)`, collection),
		idStr, raw,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: insert: %w", err)
	}
	return obj, nil
}

func (s *Store) Update(ctx context.Context, collection string, filter, update map[string]runtime.Value) ([]runtime.Value, error) {
	exists, err := s.tableExists(collection)
	if err != nil {
		return nil, fmt.Errorf("postgres: check table: %w", err)
	}
	if !exists {
		return []runtime.Value{}, nil
	}

	matches, err := s.Query(ctx, collection, runtime.QueryOptions{Filter: filter})
	if err != nil {
		return nil, err
	}

	updated := make([]runtime.Value, 0, len(matches))
	for _, doc := range matches {
		obj, ok := doc.(*runtime.OrderedObject)
		if !ok {
			continue
		}
		merged := runtime.NewOrderedObject()
		obj.Range(func(k string, v runtime.Value) { merged.Set(k, v) })
		for k, v := range update {
			merged.Set(k, v)
		}
		idVal, _ := merged.Get("_id")
		raw, err := encodeDoc(merged)
		if err != nil {
			return nil, err
		}
		_, err = s.db.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %q SET doc = $2 WHERE _id = $1`, collection),
			idVal, raw,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: update: %w", err)
		}
		updated = append(updated, merged)
	}
	return updated, nil
}

func (s *Store) Delete(ctx context.Context, collection string, filter map[string]runtime.Value) ([]runtime.Value, error) {
	exists, err := s.tableExists(collection)
	if err != nil {
		return nil, fmt.Errorf("postgres: check table: %w", err)
	}
	if !exists {
		return []runtime.Value{}, nil
	}

	matches, err := s.Query(ctx, collection, runtime.QueryOptions{Filter: filter})
	if err != nil {
		return nil, err
	}

	for _, doc := range matches {
		obj, ok := doc.(*runtime.OrderedObject)
		if !ok {
			continue
		}
		idVal, _ := obj.Get("_id")
		_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q WHERE _id = $1`, collection), idVal)
		if err != nil {
			return nil, fmt.Errorf("postgres: delete: %w", err)
		}
	}
	return matches, nil
}

// filterClause builds a WHERE clause implementing spec.md §4.4's
// field-equality-AND-with-null-matches-missing semantics over JSONB: a
// null filter value matches a doc where the key is absent, via
// `NOT (doc ? 'key')`, OR'd with an explicit JSON null match.
func filterClause(filter map[string]runtime.Value) (string, []any, error) {
	if len(filter) == 0 {
		return "TRUE", nil, nil
	}
	var clauses []string
	var args []any
	i := 1
	for key, want := range filter {
		if !isValidIdentifier(key) {
			return "", nil, fmt.Errorf("postgres: invalid filter key %q", key)
		}
		if want == nil {
			clauses = append(clauses, fmt.Sprintf(`(NOT (doc ? '%s') OR doc->'%s' = 'null'::jsonb)`, key, key))
			continue
		}
		raw, err := json.Marshal(want)
		if err != nil {
			return "", nil, fmt.Errorf("postgres: marshal filter value: %w", err)
		}
		clauses = append(clauses, fmt.Sprintf(`doc->'%s' = $%d::jsonb`, key, i))
		args = append(args, string(raw))
		i++
	}
	return strings.Join(clauses, " AND "), args, nil
}

func orderClause(sortFields map[string]runtime.SortOrder) string {
	var field string
	var dir runtime.SortOrder
	for f, d := range sortFields {
		field, dir = f, d
		break
	}
	if field == "" || !isValidIdentifier(field) {
		return ""
	}
	direction := "ASC"
	if dir == runtime.SortDescending {
		direction = "DESC"
	}
	return fmt.Sprintf(" ORDER BY doc->'%s' %s", field, direction)
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

func encodeDoc(v runtime.Value) ([]byte, error) {
	obj, ok := v.(*runtime.OrderedObject)
	if !ok {
		return nil, fmt.Errorf("postgres: document must be an object")
	}
	m := make(map[string]any, obj.Len())
	obj.Range(func(k string, v runtime.Value) { m[k] = v })
	return json.Marshal(m)
}

func decodeDoc(raw []byte) (runtime.Value, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("postgres: decode document: %w", err)
	}
	return runtime.ToOrderedObject(m), nil
}

// isValidIdentifier allows only the identifier shapes this package itself
// generates or accepts from trusted configuration (collection and field
// names), guarding the fmt.Sprintf-built identifiers above against
// injection via attacker-controlled collection/field names.
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_') {
			return false
		}
	}
	return true
}

var idCounter uint64

func newID() string {
	idCounter++
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), idCounter)
}

// maskConnectionString masks the password in a postgres connection string
// for logging. Kept verbatim from the teacher's plugin.go.
func maskConnectionString(connStr string) string {
	schemeEnd := "://"

	start := 0
	for i := 0; i < len(connStr)-len(schemeEnd); i++ {
		if connStr[i:i+len(schemeEnd)] == schemeEnd {
			start = i + len(schemeEnd)
			break
		}
	}

	colonPos := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' {
			colonPos = i
			break
		}
	}

	atPos := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == '@' {
			atPos = i
			break
		}
	}

	if colonPos > 0 && atPos > colonPos {
		return connStr[:colonPos+1] + "***" + connStr[atPos:]
	}
	return connStr
}
