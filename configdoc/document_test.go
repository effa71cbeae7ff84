package configdoc

import (
	"strings"
	"testing"

	"github.com/opflowhq/opflow/runtime"
)

func TestParseDocument_RoutesMiddlewareSchemas(t *testing.T) {
	src := `{
		"routes": [
			{
				"path": "/users/:id",
				"method": "GET",
				"middleware": ["auth"],
				"pipeline": [
					{"name": "user", "value": {"$dbQuery": {"collection": "users", "filter": {}}}}
				],
				"response": {"status": 200, "body": {"$get": "user"}}
			}
		],
		"middleware": {
			"auth": {
				"pipeline": [
					{"name": "token", "value": {"$get": "headers.Authorization"}}
				]
			}
		},
		"schemas": {
			"userSchema": {"type": "object", "required": ["name"]}
		}
	}`

	doc, err := ParseDocument([]byte(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(doc.Routes))
	}
	route := doc.Routes[0]
	if route.Method != MethodGet || route.Path != "/users/:id" {
		t.Errorf("unexpected route: %+v", route)
	}
	if len(route.Middleware) != 1 || route.Middleware[0] != "auth" {
		t.Errorf("unexpected middleware refs: %v", route.Middleware)
	}
	if !route.Response.Structured || route.Response.Status != 200 {
		t.Errorf("expected structured response with status 200, got %+v", route.Response)
	}
	if _, ok := doc.Middleware["auth"]; !ok {
		t.Fatal("expected auth middleware to be registered")
	}
	if _, ok := doc.Schemas["userSchema"]; !ok {
		t.Fatal("expected userSchema to be registered")
	}
}

func TestParseDocument_BareResponseExpression(t *testing.T) {
	src := `{
		"routes": [
			{
				"path": "/ping",
				"method": "GET",
				"response": {"$if": {"condition": true, "then": "pong", "else": "nope"}}
			}
		]
	}`
	doc, err := ParseDocument([]byte(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp := doc.Routes[0].Response
	if resp.Structured {
		t.Fatalf("expected bare response expression, got structured: %+v", resp)
	}
	if _, ok := resp.Expr.(runtime.IfOp); !ok {
		t.Errorf("expected IfOp response expr, got %T", resp.Expr)
	}
}

func TestParseDocument_InvalidMethodRejected(t *testing.T) {
	src := `{"routes": [{"path": "/x", "method": "TRACE", "response": "ok"}]}`
	_, err := ParseDocument([]byte(src))
	if err == nil {
		t.Fatal("expected error for invalid HTTP method")
	}
}

func TestParseDocument_DatabaseSchemaWithNestedItems(t *testing.T) {
	src := `{
		"database": {
			"schemas": {
				"widgets": {
					"fields": {
						"tags": {"type": "array", "items": {"type": "string"}}
					},
					"indexes": [{"fields": ["tags"], "unique": false}]
				}
			}
		},
		"routes": []
	}`
	doc, err := ParseDocument([]byte(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	schema := doc.Database.Schemas["widgets"]
	field := schema.Fields["tags"]
	if field.Type != "array" || field.Items == nil || field.Items.Type != "string" {
		t.Fatalf("unexpected field def: %+v", field)
	}
	if len(schema.Indexes) != 1 || schema.Indexes[0].Fields[0] != "tags" {
		t.Fatalf("unexpected indexes: %+v", schema.Indexes)
	}
}

func TestParseDocument_YAMLForm(t *testing.T) {
	src := `
routes:
  - path: /ping
    method: GET
    response: pong
`
	doc, err := ParseDocument([]byte(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Routes) != 1 || doc.Routes[0].Path != "/ping" {
		t.Fatalf("unexpected routes: %+v", doc.Routes)
	}
}

func TestParseDocument_EmptyDocumentIsError(t *testing.T) {
	_, err := ParseDocument([]byte("   "))
	if err == nil {
		t.Fatal("expected error for empty document")
	}
}

func TestLoad_ReadsFromReader(t *testing.T) {
	r := strings.NewReader(`{"routes": []}`)
	doc, err := Load(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Routes != nil {
		t.Errorf("expected nil routes for empty array, got %v", doc.Routes)
	}
}

func TestParseDocument_ErrorHandlers(t *testing.T) {
	src := `{
		"routes": [],
		"errorHandlers": {
			"default": {"status": 500, "body": "internal error"}
		}
	}`
	doc, err := ParseDocument([]byte(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := doc.ErrorHandlers["default"]; !ok {
		t.Fatal("expected default error handler to be present")
	}
}
