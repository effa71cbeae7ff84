package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/opflowhq/opflow/clock"
	"github.com/opflowhq/opflow/configdoc"
	"github.com/opflowhq/opflow/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, docJSON string) *Server {
	t.Helper()
	doc, err := configdoc.ParseDocument([]byte(docJSON))
	if err != nil {
		t.Fatalf("parse document: %v", err)
	}
	return New(doc, memory.New(), clock.System{})
}

func TestResolveAddr_EmptyGetsDefault(t *testing.T) {
	addr, err := ResolveAddr("")
	if err != nil {
		t.Fatalf("ResolveAddr failed: %v", err)
	}
	if addr != ":8080" {
		t.Errorf("expected default :8080, got %q", addr)
	}
}

func TestResolveAddr_ValidAddrPassesThrough(t *testing.T) {
	addr, err := ResolveAddr(":9090")
	if err != nil {
		t.Fatalf("ResolveAddr failed: %v", err)
	}
	if addr != ":9090" {
		t.Errorf("expected :9090, got %q", addr)
	}
}

func TestResolveAddr_RejectsMalformedAddr(t *testing.T) {
	if _, err := ResolveAddr("not-a-host-port"); err == nil {
		t.Error("expected error for malformed addr, got nil")
	}
}

func TestServer_BareResponseExpression(t *testing.T) {
	s := newTestServer(t, `{
		"routes": [
			{"path": "/ping", "method": "GET", "response": "pong"}
		]
	}`)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != `"pong"` {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestServer_StructuredResponseWithHeaders(t *testing.T) {
	s := newTestServer(t, `{
		"routes": [
			{
				"path": "/created",
				"method": "POST",
				"response": {
					"status": 201,
					"headers": {"X-Created": "true"},
					"body": {"ok": true}
				}
			}
		]
	}`)

	req := httptest.NewRequest(http.MethodPost, "/created", nil)
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if w.Header().Get("X-Created") != "true" {
		t.Errorf("expected X-Created header, got %q", w.Header().Get("X-Created"))
	}
}

func TestServer_PathParamsReachPipeline(t *testing.T) {
	s := newTestServer(t, `{
		"routes": [
			{"path": "/users/:id", "method": "GET", "response": {"$get": "params.id"}}
		]
	}`)

	req := httptest.NewRequest(http.MethodGet, "/users/42", nil)
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != `"42"` {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestServer_EarlyReturnProducesConfiguredStatus(t *testing.T) {
	s := newTestServer(t, `{
		"routes": [
			{
				"path": "/forbidden",
				"method": "GET",
				"response": {"$return": {"status": 403, "body": "nope"}}
			}
		]
	}`)

	req := httptest.NewRequest(http.MethodGet, "/forbidden", nil)
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestServer_PathNotFoundMapsTo404(t *testing.T) {
	s := newTestServer(t, `{
		"routes": [
			{"path": "/broken", "method": "GET", "response": {"$get": "does.not.exist"}}
		]
	}`)

	req := httptest.NewRequest(http.MethodGet, "/broken", nil)
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestServer_RequestBodyIsDecodedForPost(t *testing.T) {
	s := newTestServer(t, `{
		"routes": [
			{"path": "/echo", "method": "POST", "response": {"$get": "body.name"}}
		]
	}`)

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"name": "alice"}`))
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != `"alice"` {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestServer_MiddlewareStepsRunBeforeRoute(t *testing.T) {
	s := newTestServer(t, `{
		"middleware": {
			"stamp": {
				"pipeline": [
					{"name": "stamped", "value": true}
				]
			}
		},
		"routes": [
			{
				"path": "/stamped",
				"method": "GET",
				"middleware": ["stamp"],
				"response": {"$get": "stamped"}
			}
		]
	}`)

	req := httptest.NewRequest(http.MethodGet, "/stamped", nil)
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != "true" {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}
