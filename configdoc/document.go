// Package configdoc parses the top-level JSON configuration document
// spec.md §6 describes (database schemas, templates, routes, middleware,
// schemas, error handlers) into the in-memory Route/Middleware model the
// runtime package executes. A YAML form of the same document is accepted
// for local-development ergonomics; the JSON shape is canonical.
package configdoc

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opflowhq/opflow/runtime"
)

// HTTPMethod is the closed method enum spec.md §6 names, modeled as a typed
// enum (rather than a bare string) per original_source's HttpMethod —
// see SPEC_FULL.md §5.
type HTTPMethod string

const (
	MethodGet     HTTPMethod = "GET"
	MethodPost    HTTPMethod = "POST"
	MethodPut     HTTPMethod = "PUT"
	MethodDelete  HTTPMethod = "DELETE"
	MethodPatch   HTTPMethod = "PATCH"
	MethodHead    HTTPMethod = "HEAD"
	MethodOptions HTTPMethod = "OPTIONS"
)

func validMethod(m string) bool {
	switch HTTPMethod(m) {
	case MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch, MethodHead, MethodOptions:
		return true
	default:
		return false
	}
}

// FieldDef describes one field of a database schema. Items recurses for
// array-of-array/object fields — a feature the distilled spec names but
// original_source's database.rs fully specifies; see SPEC_FULL.md §5.
type FieldDef struct {
	Type     string
	Required bool
	Primary  bool
	Unique   bool
	Default  any
	Enum     []any
	Items    *FieldDef
}

// IndexDefinition names an index on a database schema.
type IndexDefinition struct {
	Fields []string
	Unique bool
}

// DatabaseSchema is one named collection's field and index definitions.
type DatabaseSchema struct {
	Fields  map[string]FieldDef
	Indexes []IndexDefinition
}

// DatabaseConfig is the document's optional top-level "database" field.
type DatabaseConfig struct {
	Schemas map[string]DatabaseSchema
}

// TemplateConfig is the document's optional top-level "templates" field.
// Rendering is out of scope (spec.md §1); the config model still parses
// it losslessly — see SPEC_FULL.md §5.
type TemplateConfig struct {
	Path   string
	Engine string
	Files  map[string]string
}

// Route is one entry of the document's "routes" array.
type Route struct {
	Path       string
	Method     HTTPMethod
	Middleware []string
	Pipeline   []runtime.Step
	Response   runtime.Response
}

// Middleware is one named, reusable, ordered Step list.
type Middleware struct {
	Pipeline []runtime.Step
}

// Document is the fully parsed configuration document.
type Document struct {
	Database      *DatabaseConfig
	Templates     *TemplateConfig
	Routes        []Route
	Middleware    map[string]Middleware
	Schemas       map[string]any
	ErrorHandlers map[string]any
}

// Load reads and parses a configuration document from r. The format (JSON
// or YAML) is detected from the first non-whitespace byte: '{' or '[' is
// JSON, anything else is attempted as YAML and normalized to JSON before parsing,
// so both forms flow through the same decoder.
func Load(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("configdoc: read: %w", err)
	}
	return ParseDocument(data)
}

// ParseDocument parses a configuration document already read into memory.
func ParseDocument(data []byte) (*Document, error) {
	trimmed := strings.TrimSpace(string(data))
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("configdoc: empty document")
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		jsonData, err := yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("configdoc: parse as YAML: %w", err)
		}
		data = jsonData
	}

	var raw struct {
		Database      *rawDatabaseConfig         `json:"database"`
		Templates     *rawTemplateConfig         `json:"templates"`
		Routes        []rawRoute                 `json:"routes"`
		Middleware    map[string]rawMiddleware   `json:"middleware"`
		Schemas       map[string]json.RawMessage `json:"schemas"`
		ErrorHandlers map[string]json.RawMessage `json:"errorHandlers"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("configdoc: decode document: %w", err)
	}

	doc := &Document{
		Middleware: make(map[string]Middleware, len(raw.Middleware)),
		Schemas:    make(map[string]any, len(raw.Schemas)),
	}

	if raw.Database != nil {
		db, err := raw.Database.toDatabaseConfig()
		if err != nil {
			return nil, fmt.Errorf("configdoc: database: %w", err)
		}
		doc.Database = db
	}

	if raw.Templates != nil {
		doc.Templates = &TemplateConfig{
			Path:   raw.Templates.Path,
			Engine: raw.Templates.Engine,
			Files:  raw.Templates.Files,
		}
	}

	for _, rr := range raw.Routes {
		route, err := rr.toRoute()
		if err != nil {
			return nil, fmt.Errorf("configdoc: route %s %s: %w", rr.Method, rr.Path, err)
		}
		doc.Routes = append(doc.Routes, route)
	}

	for name, rm := range raw.Middleware {
		steps, err := parseSteps(rm.Pipeline)
		if err != nil {
			return nil, fmt.Errorf("configdoc: middleware %q: %w", name, err)
		}
		doc.Middleware[name] = Middleware{Pipeline: steps}
	}

	for name, rawSchema := range raw.Schemas {
		v, err := runtime.ParseOperatorValue(rawSchema)
		if err != nil {
			return nil, fmt.Errorf("configdoc: schemas.%s: %w", name, err)
		}
		lit, ok := v.(runtime.Literal)
		if !ok {
			return nil, fmt.Errorf("configdoc: schemas.%s must be a literal JSON-Schema document", name)
		}
		doc.Schemas[name] = lit.Value
	}

	if len(raw.ErrorHandlers) > 0 {
		doc.ErrorHandlers = make(map[string]any, len(raw.ErrorHandlers))
		for name, rawHandler := range raw.ErrorHandlers {
			var v any
			if err := json.Unmarshal(rawHandler, &v); err != nil {
				return nil, fmt.Errorf("configdoc: errorHandlers.%s: %w", name, err)
			}
			doc.ErrorHandlers[name] = v
		}
	}

	return doc, nil
}

// yamlToJSON decodes a YAML document into a generic value and re-encodes it
// as JSON, so the rest of ParseDocument only ever deals with one wire
// format. gopkg.in/yaml.v3 decodes mappings into map[string]any with string
// keys already (unlike yaml.v2's map[interface{}]interface{}), so this
// round-trip is direct.
func yamlToJSON(data []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

type rawFieldDef struct {
	Type     string            `json:"type"`
	Required bool              `json:"required"`
	Primary  bool              `json:"primary"`
	Unique   bool              `json:"unique"`
	Default  any               `json:"default"`
	Enum     []any             `json:"enum"`
	Items    *rawFieldDef      `json:"items"`
}

func (r rawFieldDef) toFieldDef() FieldDef {
	f := FieldDef{
		Type:     r.Type,
		Required: r.Required,
		Primary:  r.Primary,
		Unique:   r.Unique,
		Default:  r.Default,
		Enum:     r.Enum,
	}
	if r.Items != nil {
		items := r.Items.toFieldDef()
		f.Items = &items
	}
	return f
}

type rawIndexDefinition struct {
	Fields []string `json:"fields"`
	Unique bool     `json:"unique"`
}

type rawDatabaseSchema struct {
	Fields  map[string]rawFieldDef `json:"fields"`
	Indexes []rawIndexDefinition   `json:"indexes"`
}

type rawDatabaseConfig struct {
	Schemas map[string]rawDatabaseSchema `json:"schemas"`
}

func (r *rawDatabaseConfig) toDatabaseConfig() (*DatabaseConfig, error) {
	cfg := &DatabaseConfig{Schemas: make(map[string]DatabaseSchema, len(r.Schemas))}
	for name, rs := range r.Schemas {
		fields := make(map[string]FieldDef, len(rs.Fields))
		for fname, rf := range rs.Fields {
			fields[fname] = rf.toFieldDef()
		}
		indexes := make([]IndexDefinition, 0, len(rs.Indexes))
		for _, ri := range rs.Indexes {
			indexes = append(indexes, IndexDefinition{Fields: ri.Fields, Unique: ri.Unique})
		}
		cfg.Schemas[name] = DatabaseSchema{Fields: fields, Indexes: indexes}
	}
	return cfg, nil
}

type rawTemplateConfig struct {
	Path   string            `json:"path"`
	Engine string            `json:"engine"`
	Files  map[string]string `json:"files"`
}

type rawStep struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

func parseSteps(raw []rawStep) ([]runtime.Step, error) {
	steps := make([]runtime.Step, 0, len(raw))
	for _, rs := range raw {
		v, err := runtime.ParseOperatorValue(rs.Value)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", rs.Name, err)
		}
		steps = append(steps, runtime.Step{Name: rs.Name, Value: v})
	}
	return steps, nil
}

type rawMiddleware struct {
	Pipeline []rawStep `json:"pipeline"`
}

// rawResponse decodes a Response, which is either a structured
// {status, headers, body} object or a bare OperatorValue. The structured
// form is detected by the presence of a "status" or "body" key alongside
// the absence of a single $-prefixed key — ParseOperatorValue's own
// single-$-key rule already distinguishes an Operator from a literal
// object, so a bare conditional response ($if, ...) never collides with
// the structured form.
type rawResponse struct {
	Status  *int                       `json:"status"`
	Headers map[string]json.RawMessage `json:"headers"`
	Body    json.RawMessage            `json:"body"`
}

func parseResponse(data json.RawMessage) (runtime.Response, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err == nil {
		hasDollarKey := false
		for k := range probe {
			if strings.HasPrefix(k, "$") {
				hasDollarKey = true
			}
		}
		_, hasStatus := probe["status"]
		_, hasBody := probe["body"]
		if !hasDollarKey && (hasStatus || hasBody) {
			var rr rawResponse
			if err := json.Unmarshal(data, &rr); err != nil {
				return runtime.Response{}, fmt.Errorf("structured response: %w", err)
			}
			headers := make(map[string]runtime.OperatorValue, len(rr.Headers))
			for k, hv := range rr.Headers {
				ov, err := runtime.ParseOperatorValue(hv)
				if err != nil {
					return runtime.Response{}, fmt.Errorf("response header %q: %w", k, err)
				}
				headers[k] = ov
			}
			body, err := runtime.ParseOperatorValue(rr.Body)
			if err != nil {
				return runtime.Response{}, fmt.Errorf("response body: %w", err)
			}
			status := 200
			if rr.Status != nil {
				status = *rr.Status
			}
			return runtime.Response{Structured: true, Status: status, Headers: headers, Body: body}, nil
		}
	}

	ov, err := runtime.ParseOperatorValue(data)
	if err != nil {
		return runtime.Response{}, fmt.Errorf("response expression: %w", err)
	}
	return runtime.Response{Expr: ov}, nil
}

type rawRoute struct {
	Path       string          `json:"path"`
	Method     string          `json:"method"`
	Middleware []string        `json:"middleware"`
	Pipeline   []rawStep       `json:"pipeline"`
	Response   json.RawMessage `json:"response"`
}

func (r rawRoute) toRoute() (Route, error) {
	if !validMethod(r.Method) {
		return Route{}, fmt.Errorf("invalid method %q", r.Method)
	}
	steps, err := parseSteps(r.Pipeline)
	if err != nil {
		return Route{}, err
	}
	response, err := parseResponse(r.Response)
	if err != nil {
		return Route{}, err
	}
	return Route{
		Path:       r.Path,
		Method:     HTTPMethod(r.Method),
		Middleware: r.Middleware,
		Pipeline:   steps,
		Response:   response,
	}, nil
}
