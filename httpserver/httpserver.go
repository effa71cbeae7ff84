// Package httpserver binds opflow's configuration-document routes to gin:
// it registers one gin handler per Route, builds the per-request
// runtime.RequestSurface and initial runtime.Context, runs the pipeline,
// and writes the resulting Outcome back as an HTTP response. Grounded on
// the teacher's runtime/http_handler.go (extractRequestData/toResponse
// idiom), adapted from its flat Execution.Values store to the spec's
// Context/Pipeline runner.
package httpserver

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/opflowhq/opflow/configdoc"
	"github.com/opflowhq/opflow/runtime"
)

func init() {
	if err := runtime.RegisterCustomValidator("hostname_port", validateHostnamePort); err != nil {
		panic(err)
	}
}

// validateHostnamePort checks a "host:port" address whose port is a port
// number or a service name net.LookupPort resolves.
// Registered against the shared validator instance via
// runtime.RegisterCustomValidator rather than built into runtime/config.go,
// since the "host:port" shape is this package's concern (the listen
// address), not a generic config-loading one.
func validateHostnamePort(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	host, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return false
	}
	_, err = net.LookupPort("tcp", port)
	return err == nil && (host != "" || strings.HasPrefix(addr, ":"))
}

// Config is the server's listen-address configuration. ResolveAddr applies the
// same defaults-then-validate pipeline every other config surface in this
// module goes through (see runtime.InitializeConfig).
type Config struct {
	Addr string `yaml:"addr" default:":8080" validate:"required,hostname_port"`
}

// ResolveAddr applies defaults and validates a listen address supplied as a
// CLI flag or config file value. An empty addr is replaced by the package
// default (":8080").
func ResolveAddr(addr string) (string, error) {
	cfg := Config{Addr: addr}
	if err := runtime.InitializeConfig(&cfg, nil); err != nil {
		return "", err
	}
	return cfg.Addr, nil
}

// Server wires a parsed configuration document to a gin.Engine.
type Server struct {
	engine     *gin.Engine
	doc        *configdoc.Document
	storage    runtime.StorageProvider
	clock      runtime.ClockProvider
	middleware map[string][]runtime.Step
}

// New builds a Server from a parsed document and the storage/clock
// collaborators. Routes are registered immediately.
func New(doc *configdoc.Document, storage runtime.StorageProvider, clock runtime.ClockProvider) *Server {
	middleware := make(map[string][]runtime.Step, len(doc.Middleware))
	for name, mw := range doc.Middleware {
		middleware[name] = mw.Pipeline
	}

	s := &Server{
		engine:     gin.New(),
		doc:        doc,
		storage:    storage,
		clock:      clock,
		middleware: middleware,
	}
	s.engine.Use(gin.Recovery(), requestLogger())
	s.registerRoutes()
	return s
}

// Engine returns the underlying gin.Engine, e.g. for http.ListenAndServe.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		slog.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
		)
	}
}

func (s *Server) registerRoutes() {
	for _, route := range s.doc.Routes {
		route := route
		handler := s.makeHandler(route)
		method := string(route.Method)
		slog.Info("registering route", "method", method, "path", route.Path)
		s.engine.Handle(method, route.Path, handler)
	}
}

func (s *Server) makeHandler(route configdoc.Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		surface := newGinRequestSurface(c)

		initial := map[string]runtime.Value{
			"params":  stringMapToValue(surface.Params()),
			"query":   stringMapToValue(surface.Query()),
			"headers": stringMapToValue(surface.Headers()),
			"method":  surface.Method(),
			"path":    surface.Path(),
		}
		if body, ok := surface.Body(); ok {
			initial["body"] = body
		} else {
			initial["body"] = nil
		}

		ctx := runtime.NewContext(initial)
		collabs := runtime.Collaborators{Storage: s.storage, Clock: s.clock, Request: surface}
		steps := runtime.ResolvePipeline(route.Middleware, s.middleware, route.Pipeline)

		outcome, err := runtime.RunPipeline(c.Request.Context(), ctx, steps, route.Response, collabs)
		if err != nil {
			writeError(c, err)
			return
		}
		writeOutcome(c, outcome)
	}
}

func writeOutcome(c *gin.Context, outcome runtime.Outcome) {
	if outcome.IsEnvelope {
		status := outcome.Envelope.Status
		if status == 0 {
			status = http.StatusOK
		}
		for k, v := range runtime.ToStringValueMap(outcome.Envelope.Headers) {
			c.Header(k, v)
		}
		c.JSON(status, outcome.Envelope.Body)
		return
	}
	c.JSON(http.StatusOK, outcome.Value)
}

func writeError(c *gin.Context, err error) {
	ee, ok := err.(*runtime.EvalError)
	if !ok {
		slog.Error("pipeline failed", "error", err.Error(), "path", c.Request.URL.Path)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	slog.Error("pipeline failed",
		"kind", ee.Kind.String(),
		"path", c.Request.URL.Path,
		"error", ee.Error())

	status := http.StatusInternalServerError
	switch ee.Kind {
	case runtime.KindPathNotFound, runtime.KindIndexOutOfBounds:
		status = http.StatusNotFound
	case runtime.KindValidationError, runtime.KindTypeError, runtime.KindInvalidOperator, runtime.KindDivisionByZero:
		status = http.StatusBadRequest
	case runtime.KindDatabaseError:
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": ee.Error()})
}

func stringMapToValue(m map[string]string) runtime.Value {
	obj := runtime.NewOrderedObject()
	for k, v := range m {
		obj.Set(k, v)
	}
	return obj
}

// ginRequestSurface adapts a gin.Context to runtime.RequestSurface.
type ginRequestSurface struct {
	c       *gin.Context
	body    runtime.Value
	hasBody bool
}

func newGinRequestSurface(c *gin.Context) *ginRequestSurface {
	s := &ginRequestSurface{c: c}
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		raw, err := io.ReadAll(c.Request.Body)
		if err == nil && len(strings.TrimSpace(string(raw))) > 0 {
			v, err := runtime.DecodeValue(raw)
			if err == nil {
				s.body = v
				s.hasBody = true
			}
		}
	}
	return s
}

func (s *ginRequestSurface) Params() map[string]string {
	out := make(map[string]string, len(s.c.Params))
	for _, p := range s.c.Params {
		out[p.Key] = p.Value
	}
	return out
}

func (s *ginRequestSurface) Query() map[string]string {
	out := make(map[string]string)
	for k, v := range s.c.Request.URL.Query() {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func (s *ginRequestSurface) Headers() map[string]string {
	out := make(map[string]string, len(s.c.Request.Header))
	for k, v := range s.c.Request.Header {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func (s *ginRequestSurface) Body() (runtime.Value, bool) {
	return s.body, s.hasBody
}

func (s *ginRequestSurface) Method() string {
	return s.c.Request.Method
}

func (s *ginRequestSurface) Path() string {
	return s.c.Request.URL.Path
}
