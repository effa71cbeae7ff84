package runtime

import "context"

// Step is a pair (optional binding name, OperatorValue). A step without a
// name evaluates for side effects or early-return only; its result is
// discarded from Context but still triggers EarlyReturn if raised
// (spec.md §3).
type Step struct {
	Name  string // empty means unnamed
	Value OperatorValue
}

// Response is a route's response expression: either a structured envelope
// {status, headers, body} or a single bare OperatorValue (typically an
// $if choosing among $return branches) — spec.md §3, §4.2.
type Response struct {
	// Structured form.
	Status  int
	Headers map[string]OperatorValue
	Body    OperatorValue

	// Bare form: Expr is set instead of Status/Headers/Body.
	Expr OperatorValue

	Structured bool
}

// Outcome is what RunPipeline returns on success: either a plain Value (the
// bare-response-expression path) or an Envelope (structured response or an
// EarlyReturn translated to the same shape).
type Outcome struct {
	IsEnvelope bool
	Value      Value
	Envelope   Envelope
}

// Envelope is the {status, headers, body} shape both a structured Response
// and an EarlyReturn collapse to by the time they reach the HTTP collaborator.
type Envelope struct {
	Status  int
	Headers map[string]Value
	Body    Value
}

// RunPipeline implements the pipeline runner of spec.md §4.2: walk steps in
// order against an evolving Context, halting and propagating on the first
// error or EarlyReturn; otherwise evaluate the response expression against
// the final Context.
func RunPipeline(ctx context.Context, initial *Context, steps []Step, response Response, collabs Collaborators) (Outcome, error) {
	c := initial
	for _, step := range steps {
		v, err := Eval(ctx, c, collabs, step.Value)
		if err != nil {
			if ee, ok := err.(*EvalError); ok && ee.IsControlFlow() {
				return Outcome{IsEnvelope: true, Envelope: envelopeFromEarlyReturn(ee)}, nil
			}
			return Outcome{}, err
		}
		if step.Name != "" {
			c = c.Bind(step.Name, v)
		}
	}

	return evalResponse(ctx, c, response, collabs)
}

func evalResponse(ctx context.Context, c *Context, response Response, collabs Collaborators) (Outcome, error) {
	if !response.Structured {
		v, err := Eval(ctx, c, collabs, response.Expr)
		if err != nil {
			if ee, ok := err.(*EvalError); ok && ee.IsControlFlow() {
				return Outcome{IsEnvelope: true, Envelope: envelopeFromEarlyReturn(ee)}, nil
			}
			return Outcome{}, err
		}
		return Outcome{Value: v}, nil
	}

	body, err := Eval(ctx, c, collabs, response.Body)
	if err != nil {
		if ee, ok := err.(*EvalError); ok && ee.IsControlFlow() {
			return Outcome{IsEnvelope: true, Envelope: envelopeFromEarlyReturn(ee)}, nil
		}
		return Outcome{}, err
	}
	headers := make(map[string]Value, len(response.Headers))
	for k, hv := range response.Headers {
		v, err := Eval(ctx, c, collabs, hv)
		if err != nil {
			if ee, ok := err.(*EvalError); ok && ee.IsControlFlow() {
				return Outcome{IsEnvelope: true, Envelope: envelopeFromEarlyReturn(ee)}, nil
			}
			return Outcome{}, err
		}
		headers[k] = v
	}
	return Outcome{IsEnvelope: true, Envelope: Envelope{Status: response.Status, Headers: headers, Body: body}}, nil
}

func envelopeFromEarlyReturn(ee *EvalError) Envelope {
	return Envelope{Status: ee.Status, Headers: ee.Headers, Body: ee.Body}
}

// ResolvePipeline concatenates each referenced middleware's steps ahead of
// the route's own steps, in declared order — spec.md §3: "executing a route
// is equivalent to prepending each referenced middleware's Steps to the
// route's own Steps, in declared order."
func ResolvePipeline(middlewareNames []string, middleware map[string][]Step, routeSteps []Step) []Step {
	resolved := make([]Step, 0, len(routeSteps))
	for _, name := range middlewareNames {
		resolved = append(resolved, middleware[name]...)
	}
	resolved = append(resolved, routeSteps...)
	return resolved
}
