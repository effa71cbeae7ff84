package runtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// OperatorValue is either a Literal wrapping a Value, or an Operator node.
// The distinction is carried explicitly by the concrete Go type — a Literal
// is never "accidentally" interpreted as an Operator even if its shape
// resembles one, because ParseOperatorValue only ever produces an Operator
// type for a JSON object with exactly one `$`-prefixed key.
type OperatorValue interface {
	operatorValue()
}

// Literal wraps a parsed Value. Evaluating a Literal returns its Value
// unchanged (spec's Literal-identity property).
type Literal struct {
	Value Value
}

func (Literal) operatorValue() {}

// Op is implemented by every Operator node; Tag reports the `$`-suffix tag
// name (without the leading `$`) for error messages and dispatch.
type Op interface {
	OperatorValue
	Tag() string
}

// --- Data access ---

type GetOp struct{ Path OperatorValue }
type JSONPathOp struct{ Expr OperatorValue }

func (GetOp) operatorValue()      {}
func (JSONPathOp) operatorValue() {}
func (GetOp) Tag() string         { return "get" }
func (JSONPathOp) Tag() string    { return "jsonPath" }

// --- Conditionals ---

type IfOp struct {
	Condition OperatorValue
	Then      OperatorValue
	Else      OperatorValue // nil if absent
}

type SwitchCase struct {
	When Value // literal Value, not OperatorValue
	Then OperatorValue
}

type SwitchOp struct {
	On      OperatorValue
	Cases   []SwitchCase
	Default OperatorValue // nil if absent
}

func (IfOp) operatorValue()     {}
func (SwitchOp) operatorValue() {}
func (IfOp) Tag() string        { return "if" }
func (SwitchOp) Tag() string    { return "switch" }

// --- Comparison ---

type BinaryOp struct {
	tag         string
	Left, Right OperatorValue
}

func (BinaryOp) operatorValue() {}
func (b BinaryOp) Tag() string  { return b.tag }

// --- Logical ---

type AndOp struct{ Conditions []OperatorValue }
type OrOp struct{ Conditions []OperatorValue }
type NotOp struct{ Condition OperatorValue }

func (AndOp) operatorValue() {}
func (OrOp) operatorValue()  {}
func (NotOp) operatorValue() {}
func (AndOp) Tag() string    { return "and" }
func (OrOp) Tag() string     { return "or" }
func (NotOp) Tag() string    { return "not" }

// --- Object/value utility ---

type MergeOp struct{ Objects []OperatorValue }
type ExistsOp struct{ Value OperatorValue }
type NowOp struct{}
type RenderStringOp struct{ Template OperatorValue }

func (MergeOp) operatorValue()        {}
func (ExistsOp) operatorValue()       {}
func (NowOp) operatorValue()          {}
func (RenderStringOp) operatorValue() {}
func (MergeOp) Tag() string           { return "merge" }
func (ExistsOp) Tag() string          { return "exists" }
func (NowOp) Tag() string             { return "now" }
func (RenderStringOp) Tag() string    { return "renderString" }

// --- Collection operators ---

type MapOp struct{ Over, Do OperatorValue }
type FilterOp struct{ Over, Where OperatorValue }
type ReduceOp struct{ Over, With, Initial OperatorValue }

func (MapOp) operatorValue()    {}
func (FilterOp) operatorValue() {}
func (ReduceOp) operatorValue() {}
func (MapOp) Tag() string       { return "map" }
func (FilterOp) Tag() string    { return "filter" }
func (ReduceOp) Tag() string    { return "reduce" }

// --- Validation ---

type ValidateOp struct {
	Data   OperatorValue
	Schema Value // literal JSON-Schema document
	OnFail OperatorValue
}

func (ValidateOp) operatorValue() {}
func (ValidateOp) Tag() string    { return "validate" }

// --- Early return ---

type ReturnOp struct {
	Status  int
	Headers map[string]OperatorValue
	Body    OperatorValue
}

func (ReturnOp) operatorValue() {}
func (ReturnOp) Tag() string    { return "return" }

// --- Storage operators ---

type DbQueryOp struct {
	Collection string
	Filter     map[string]OperatorValue
	Select     []string
	Limit      *int
	Skip       *int
	Sort       map[string]string
}

type DbInsertOp struct {
	Collection string
	Document   map[string]OperatorValue
	Validate   bool
}

type DbUpdateOp struct {
	Collection string
	Filter     map[string]OperatorValue
	Update     map[string]OperatorValue
}

type DbDeleteOp struct {
	Collection string
	Filter     map[string]OperatorValue
}

func (DbQueryOp) operatorValue()  {}
func (DbInsertOp) operatorValue() {}
func (DbUpdateOp) operatorValue() {}
func (DbDeleteOp) operatorValue() {}
func (DbQueryOp) Tag() string     { return "dbQuery" }
func (DbInsertOp) Tag() string    { return "dbInsert" }
func (DbUpdateOp) Tag() string    { return "dbUpdate" }
func (DbDeleteOp) Tag() string    { return "dbDelete" }

// --- Arithmetic ---

type VariadicOp struct {
	tag      string
	Operands []OperatorValue
}

func (VariadicOp) operatorValue() {}
func (v VariadicOp) Tag() string  { return v.tag }

// ParseOperatorValue parses a JSON-encoded OperatorValue: a JSON object
// whose only key begins with `$` is an Operator; an object with a
// `$`-prefixed key next to any other key is an error; anything else is a
// Literal.
func ParseOperatorValue(data []byte) (OperatorValue, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty operator value")
	}
	if data[0] != '{' {
		v, err := decodeOrderedValue(data)
		if err != nil {
			return nil, err
		}
		return Literal{Value: v}, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse operator value: %w", err)
	}

	var opKey string
	opCount := 0
	for k := range raw {
		if strings.HasPrefix(k, "$") {
			opKey = k
			opCount++
		}
	}
	if opCount == 0 {
		v, err := decodeOrderedValue(data)
		if err != nil {
			return nil, err
		}
		return Literal{Value: v}, nil
	}
	if opCount > 1 || len(raw) != 1 {
		return nil, fmt.Errorf("operator object must have exactly one $-prefixed key, got %d keys", len(raw))
	}

	tag := strings.TrimPrefix(opKey, "$")
	return parseOperatorPayload(tag, raw[opKey])
}

func parseOperatorPayload(tag string, payload json.RawMessage) (OperatorValue, error) {
	switch tag {
	case "get":
		v, err := ParseOperatorValue(payload)
		if err != nil {
			return nil, err
		}
		return GetOp{Path: v}, nil
	case "jsonPath":
		v, err := ParseOperatorValue(payload)
		if err != nil {
			return nil, err
		}
		return JSONPathOp{Expr: v}, nil
	case "merge":
		var rawObjects []json.RawMessage
		if err := json.Unmarshal(payload, &rawObjects); err != nil {
			return nil, fmt.Errorf("$merge payload: %w", err)
		}
		objects := make([]OperatorValue, 0, len(rawObjects))
		for _, o := range rawObjects {
			v, err := ParseOperatorValue(o)
			if err != nil {
				return nil, err
			}
			objects = append(objects, v)
		}
		return MergeOp{Objects: objects}, nil
	case "exists":
		v, err := ParseOperatorValue(payload)
		if err != nil {
			return nil, err
		}
		return ExistsOp{Value: v}, nil
	case "renderString":
		v, err := ParseOperatorValue(payload)
		if err != nil {
			return nil, err
		}
		return RenderStringOp{Template: v}, nil
	case "now":
		return NowOp{}, nil
	case "if":
		var raw struct {
			Condition json.RawMessage `json:"condition"`
			Then      json.RawMessage `json:"then"`
			Else      json.RawMessage `json:"else"`
		}
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("$if payload: %w", err)
		}
		cond, err := ParseOperatorValue(raw.Condition)
		if err != nil {
			return nil, err
		}
		then, err := ParseOperatorValue(raw.Then)
		if err != nil {
			return nil, err
		}
		var elseV OperatorValue
		if len(raw.Else) > 0 {
			elseV, err = ParseOperatorValue(raw.Else)
			if err != nil {
				return nil, err
			}
		}
		return IfOp{Condition: cond, Then: then, Else: elseV}, nil
	case "switch":
		var raw struct {
			On      json.RawMessage   `json:"on"`
			Cases   []json.RawMessage `json:"cases"`
			Default json.RawMessage   `json:"default"`
		}
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("$switch payload: %w", err)
		}
		on, err := ParseOperatorValue(raw.On)
		if err != nil {
			return nil, err
		}
		cases := make([]SwitchCase, 0, len(raw.Cases))
		for _, c := range raw.Cases {
			var cr struct {
				When json.RawMessage `json:"when"`
				Then json.RawMessage `json:"then"`
			}
			if err := json.Unmarshal(c, &cr); err != nil {
				return nil, fmt.Errorf("$switch case: %w", err)
			}
			when, err := decodeOrderedValue(cr.When)
			if err != nil {
				return nil, err
			}
			then, err := ParseOperatorValue(cr.Then)
			if err != nil {
				return nil, err
			}
			cases = append(cases, SwitchCase{When: when, Then: then})
		}
		var def OperatorValue
		if len(raw.Default) > 0 {
			def, err = ParseOperatorValue(raw.Default)
			if err != nil {
				return nil, err
			}
		}
		return SwitchOp{On: on, Cases: cases, Default: def}, nil
	case "eq", "ne", "gt", "gte", "lt", "lte", "subtract", "divide":
		left, right, err := parseLeftRight(payload, tag)
		if err != nil {
			return nil, err
		}
		if tag == "subtract" || tag == "divide" {
			return VariadicOp{tag: tag, Operands: []OperatorValue{left, right}}, nil
		}
		return BinaryOp{tag: tag, Left: left, Right: right}, nil
	case "and", "or":
		var raw struct {
			Conditions []json.RawMessage `json:"conditions"`
		}
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("$%s payload: %w", tag, err)
		}
		conds := make([]OperatorValue, 0, len(raw.Conditions))
		for _, c := range raw.Conditions {
			v, err := ParseOperatorValue(c)
			if err != nil {
				return nil, err
			}
			conds = append(conds, v)
		}
		if tag == "and" {
			return AndOp{Conditions: conds}, nil
		}
		return OrOp{Conditions: conds}, nil
	case "not":
		var raw struct {
			Condition json.RawMessage `json:"condition"`
		}
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("$not payload: %w", err)
		}
		cond, err := ParseOperatorValue(raw.Condition)
		if err != nil {
			return nil, err
		}
		return NotOp{Condition: cond}, nil
	case "add", "multiply":
		var raw struct {
			Operands []json.RawMessage `json:"operands"`
		}
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("$%s payload: %w", tag, err)
		}
		operands := make([]OperatorValue, 0, len(raw.Operands))
		for _, o := range raw.Operands {
			v, err := ParseOperatorValue(o)
			if err != nil {
				return nil, err
			}
			operands = append(operands, v)
		}
		return VariadicOp{tag: tag, Operands: operands}, nil
	case "map":
		var raw struct {
			Over json.RawMessage `json:"over"`
			Do   json.RawMessage `json:"do"`
		}
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("$map payload: %w", err)
		}
		over, err := ParseOperatorValue(raw.Over)
		if err != nil {
			return nil, err
		}
		do, err := ParseOperatorValue(raw.Do)
		if err != nil {
			return nil, err
		}
		return MapOp{Over: over, Do: do}, nil
	case "filter":
		var raw struct {
			Over  json.RawMessage `json:"over"`
			Where json.RawMessage `json:"where"`
		}
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("$filter payload: %w", err)
		}
		over, err := ParseOperatorValue(raw.Over)
		if err != nil {
			return nil, err
		}
		where, err := ParseOperatorValue(raw.Where)
		if err != nil {
			return nil, err
		}
		return FilterOp{Over: over, Where: where}, nil
	case "reduce":
		var raw struct {
			Over    json.RawMessage `json:"over"`
			With    json.RawMessage `json:"with"`
			Initial json.RawMessage `json:"initial"`
		}
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("$reduce payload: %w", err)
		}
		over, err := ParseOperatorValue(raw.Over)
		if err != nil {
			return nil, err
		}
		with, err := ParseOperatorValue(raw.With)
		if err != nil {
			return nil, err
		}
		initial, err := ParseOperatorValue(raw.Initial)
		if err != nil {
			return nil, err
		}
		return ReduceOp{Over: over, With: with, Initial: initial}, nil
	case "validate":
		var raw struct {
			Data   json.RawMessage `json:"data"`
			Schema json.RawMessage `json:"schema"`
			OnFail json.RawMessage `json:"onFail"`
		}
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("$validate payload: %w", err)
		}
		data, err := ParseOperatorValue(raw.Data)
		if err != nil {
			return nil, err
		}
		schema, err := decodeOrderedValue(raw.Schema)
		if err != nil {
			return nil, err
		}
		var onFail OperatorValue
		if len(raw.OnFail) > 0 {
			onFail, err = ParseOperatorValue(raw.OnFail)
			if err != nil {
				return nil, err
			}
		}
		return ValidateOp{Data: data, Schema: schema, OnFail: onFail}, nil
	case "return":
		var raw struct {
			Status  int                        `json:"status"`
			Headers map[string]json.RawMessage `json:"headers"`
			Body    json.RawMessage            `json:"body"`
		}
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("$return payload: %w", err)
		}
		headers := make(map[string]OperatorValue, len(raw.Headers))
		for k, v := range raw.Headers {
			ov, err := ParseOperatorValue(v)
			if err != nil {
				return nil, err
			}
			headers[k] = ov
		}
		var body OperatorValue
		if len(raw.Body) > 0 {
			var err error
			body, err = ParseOperatorValue(raw.Body)
			if err != nil {
				return nil, err
			}
		} else {
			body = Literal{Value: nil}
		}
		return ReturnOp{Status: raw.Status, Headers: headers, Body: body}, nil
	case "dbQuery":
		var raw struct {
			Collection string                     `json:"collection"`
			Filter     map[string]json.RawMessage `json:"filter"`
			Select     []string                   `json:"select"`
			Limit      *int                       `json:"limit"`
			Skip       *int                       `json:"skip"`
			Sort       map[string]string          `json:"sort"`
		}
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("$dbQuery payload: %w", err)
		}
		filter, err := parseOperatorValueMap(raw.Filter)
		if err != nil {
			return nil, err
		}
		return DbQueryOp{Collection: raw.Collection, Filter: filter, Select: raw.Select, Limit: raw.Limit, Skip: raw.Skip, Sort: raw.Sort}, nil
	case "dbInsert":
		var raw struct {
			Collection string                     `json:"collection"`
			Document   map[string]json.RawMessage `json:"document"`
			Validate   bool                       `json:"validate"`
		}
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("$dbInsert payload: %w", err)
		}
		doc, err := parseOperatorValueMap(raw.Document)
		if err != nil {
			return nil, err
		}
		return DbInsertOp{Collection: raw.Collection, Document: doc, Validate: raw.Validate}, nil
	case "dbUpdate":
		var raw struct {
			Collection string                     `json:"collection"`
			Filter     map[string]json.RawMessage `json:"filter"`
			Update     map[string]json.RawMessage `json:"update"`
		}
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("$dbUpdate payload: %w", err)
		}
		filter, err := parseOperatorValueMap(raw.Filter)
		if err != nil {
			return nil, err
		}
		update, err := parseOperatorValueMap(raw.Update)
		if err != nil {
			return nil, err
		}
		return DbUpdateOp{Collection: raw.Collection, Filter: filter, Update: update}, nil
	case "dbDelete":
		var raw struct {
			Collection string                     `json:"collection"`
			Filter     map[string]json.RawMessage `json:"filter"`
		}
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("$dbDelete payload: %w", err)
		}
		filter, err := parseOperatorValueMap(raw.Filter)
		if err != nil {
			return nil, err
		}
		return DbDeleteOp{Collection: raw.Collection, Filter: filter}, nil
	default:
		return notImplementedOp{tag: tag}, nil
	}
}

func parseLeftRight(payload json.RawMessage, tag string) (OperatorValue, OperatorValue, error) {
	var raw struct {
		Left  json.RawMessage `json:"left"`
		Right json.RawMessage `json:"right"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, nil, fmt.Errorf("$%s payload: %w", tag, err)
	}
	left, err := ParseOperatorValue(raw.Left)
	if err != nil {
		return nil, nil, err
	}
	right, err := ParseOperatorValue(raw.Right)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func parseOperatorValueMap(raw map[string]json.RawMessage) (map[string]OperatorValue, error) {
	out := make(map[string]OperatorValue, len(raw))
	for k, v := range raw {
		ov, err := ParseOperatorValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = ov
	}
	return out, nil
}

// notImplementedOp represents any operator tag outside the dispatch table.
// Evaluating it raises a Custom "not implemented" error per spec.md §4.3.11.
type notImplementedOp struct{ tag string }

func (notImplementedOp) operatorValue() {}
func (n notImplementedOp) Tag() string  { return n.tag }

// DecodeValue decodes a JSON-encoded document into a Value, preserving
// object key order via OrderedObject. Exported for collaborators
// (httpserver's request-body parsing) that need the same order-preserving
// decode the AST parser uses for literals.
func DecodeValue(data []byte) (Value, error) {
	return decodeOrderedValue(data)
}

// decodeOrderedValue decodes a JSON-encoded literal into a Value, using
// *OrderedObject for objects so key order is preserved (encoding/json's
// default map[string]any decoding discards it).
func decodeOrderedValue(data []byte) (Value, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValueFromDecoder(dec)
	if err != nil {
		return nil, fmt.Errorf("decode literal: %w", err)
	}
	return v, nil
}

func decodeValueFromDecoder(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeValueFromToken(dec, tok)
}

func decodeValueFromToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := NewOrderedObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("expected string object key, got %v", keyTok)
				}
				v, err := decodeValueFromDecoder(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, v)
			}
			if _, err := dec.Token(); err != nil && err != io.EOF { // consume '}'
				return nil, err
			}
			return obj, nil
		case '[':
			var arr []Value
			for dec.More() {
				v, err := decodeValueFromDecoder(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			if _, err := dec.Token(); err != nil && err != io.EOF { // consume ']'
				return nil, err
			}
			if arr == nil {
				arr = []Value{}
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	case string, bool, nil:
		return t, nil
	default:
		return nil, fmt.Errorf("unexpected token %v (%T)", tok, tok)
	}
}
