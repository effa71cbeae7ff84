// Package jsonpath implements the subset of JSONPath selector syntax
// spec.md §4.3.1 requires for the $jsonPath operator: the root selector $,
// child access via ".", the wildcard "*", array index and slice selectors,
// filter expressions "[?...]", and recursive descent "..".
//
// It operates directly on the evaluator's own Value domain
// (runtime.Value/*runtime.OrderedObject equivalents, expressed here as
// `any`/ordered-object accessor functions to avoid an import cycle with the
// runtime package) rather than on map[string]any, so query results respect
// object key order the way every other part of the engine does.
package jsonpath

import (
	"fmt"
	"strconv"
	"strings"
)

// Object is the minimal ordered-object contract jsonpath needs from a
// Value. runtime.OrderedObject satisfies it.
type Object interface {
	Keys() []string
	Get(key string) (any, bool)
}

// Query evaluates a JSONPath expression against root, returning all
// matches in document order. An empty result is returned (not an error)
// when no node matches. A malformed expression returns an error.
func Query(root any, expr string) ([]any, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	return evalTokens([]any{root}, tokens)
}

type tokenKind int

const (
	tokRoot tokenKind = iota
	tokChild
	tokWildcard
	tokIndex
	tokSlice
	tokFilter
	tokRecursive
)

type token struct {
	kind  tokenKind
	name  string // tokChild
	index int    // tokIndex
	start int    // tokSlice
	end   int    // tokSlice
	hasEnd bool
	filter string // tokFilter, raw expression text inside [?( ... )]
}

// tokenize lexes a JSONPath expression into a flat token stream. The
// grammar supported: `$`, `.name`, `.*`, `[*]`, `[n]`, `[a:b]`, `[?(expr)]`,
// `..name` / `..*`.
func tokenize(expr string) ([]token, error) {
	if !strings.HasPrefix(expr, "$") {
		return nil, fmt.Errorf("jsonpath: expression must start with $: %q", expr)
	}
	toks := []token{{kind: tokRoot}}
	i := 1
	for i < len(expr) {
		switch {
		case strings.HasPrefix(expr[i:], ".."):
			i += 2
			name, adv := readName(expr[i:])
			if name == "*" {
				toks = append(toks, token{kind: tokRecursive}, token{kind: tokWildcard})
			} else if name != "" {
				toks = append(toks, token{kind: tokRecursive}, token{kind: tokChild, name: name})
			} else {
				toks = append(toks, token{kind: tokRecursive})
			}
			i += adv
		case expr[i] == '.':
			i++
			name, adv := readName(expr[i:])
			if adv == 0 {
				return nil, fmt.Errorf("jsonpath: expected name after '.' at offset %d in %q", i, expr)
			}
			if name == "*" {
				toks = append(toks, token{kind: tokWildcard})
			} else {
				toks = append(toks, token{kind: tokChild, name: name})
			}
			i += adv
		case expr[i] == '[':
			end := strings.IndexByte(expr[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("jsonpath: unterminated '[' in %q", expr)
			}
			inner := expr[i+1 : i+end]
			i += end + 1
			tok, err := parseBracket(inner)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
		default:
			return nil, fmt.Errorf("jsonpath: unexpected character %q at offset %d in %q", expr[i], i, expr)
		}
	}
	return toks, nil
}

func readName(s string) (string, int) {
	if s == "" {
		return "", 0
	}
	if s[0] == '*' {
		return "*", 1
	}
	i := 0
	for i < len(s) && s[i] != '.' && s[i] != '[' {
		i++
	}
	return s[:i], i
}

func parseBracket(inner string) (token, error) {
	switch {
	case inner == "*":
		return token{kind: tokWildcard}, nil
	case strings.HasPrefix(inner, "?("):
		if !strings.HasSuffix(inner, ")") {
			return token{}, fmt.Errorf("jsonpath: malformed filter %q", inner)
		}
		return token{kind: tokFilter, filter: inner[2 : len(inner)-1]}, nil
	case strings.Contains(inner, ":"):
		parts := strings.SplitN(inner, ":", 2)
		t := token{kind: tokSlice}
		if parts[0] != "" {
			n, err := strconv.Atoi(parts[0])
			if err != nil {
				return token{}, fmt.Errorf("jsonpath: bad slice start %q", parts[0])
			}
			t.start = n
		}
		if parts[1] != "" {
			n, err := strconv.Atoi(parts[1])
			if err != nil {
				return token{}, fmt.Errorf("jsonpath: bad slice end %q", parts[1])
			}
			t.end = n
			t.hasEnd = true
		}
		return t, nil
	default:
		n, err := strconv.Atoi(strings.TrimSpace(strings.Trim(inner, "'\"")))
		if err != nil {
			// quoted child name, e.g. ['name']
			name := strings.Trim(inner, "'\"")
			if name != inner {
				return token{kind: tokChild, name: name}, nil
			}
			return token{}, fmt.Errorf("jsonpath: bad bracket expression %q", inner)
		}
		return token{kind: tokIndex, index: n}, nil
	}
}

// evalTokens threads a working set of current nodes through the token
// stream, expanding at each step.
func evalTokens(current []any, toks []token) ([]any, error) {
	for _, t := range toks {
		var next []any
		switch t.kind {
		case tokRoot:
			next = current
		case tokChild:
			for _, n := range current {
				if obj, ok := asObject(n); ok {
					if v, ok := obj.Get(t.name); ok {
						next = append(next, v)
					}
				}
			}
		case tokWildcard:
			for _, n := range current {
				if obj, ok := asObject(n); ok {
					for _, k := range obj.Keys() {
						v, _ := obj.Get(k)
						next = append(next, v)
					}
				} else if arr, ok := asArray(n); ok {
					next = append(next, arr...)
				}
			}
		case tokIndex:
			for _, n := range current {
				if arr, ok := asArray(n); ok {
					idx := t.index
					if idx < 0 {
						idx += len(arr)
					}
					if idx >= 0 && idx < len(arr) {
						next = append(next, arr[idx])
					}
				}
			}
		case tokSlice:
			for _, n := range current {
				if arr, ok := asArray(n); ok {
					start, end := sliceBounds(t, len(arr))
					for i := start; i < end; i++ {
						next = append(next, arr[i])
					}
				}
			}
		case tokFilter:
			for _, n := range current {
				if arr, ok := asArray(n); ok {
					for _, elem := range arr {
						ok, err := evalFilter(elem, t.filter)
						if err != nil {
							return nil, err
						}
						if ok {
							next = append(next, elem)
						}
					}
				}
			}
		case tokRecursive:
			for _, n := range current {
				next = append(next, collectRecursive(n)...)
			}
		default:
			return nil, fmt.Errorf("jsonpath: unknown token kind %d", t.kind)
		}
		current = next
	}
	if current == nil {
		current = []any{}
	}
	return current, nil
}

func sliceBounds(t token, length int) (int, int) {
	start := t.start
	if start < 0 {
		start += length
	}
	if start < 0 {
		start = 0
	}
	if start > length {
		start = length
	}
	end := length
	if t.hasEnd {
		end = t.end
		if end < 0 {
			end += length
		}
	}
	if end > length {
		end = length
	}
	if end < start {
		end = start
	}
	return start, end
}

// collectRecursive returns n itself plus every descendant, depth-first,
// document order — the payload of ".." recursive descent.
func collectRecursive(n any) []any {
	out := []any{n}
	if obj, ok := asObject(n); ok {
		for _, k := range obj.Keys() {
			v, _ := obj.Get(k)
			out = append(out, collectRecursive(v)...)
		}
	} else if arr, ok := asArray(n); ok {
		for _, v := range arr {
			out = append(out, collectRecursive(v)...)
		}
	}
	return out
}

// evalFilter evaluates the minimal filter-expression grammar the spec's
// examples exercise: "@.field OP literal" where OP is one of
// == != < <= > >=, OP and literal may be absent (existence test).
func evalFilter(node any, expr string) (bool, error) {
	expr = strings.TrimSpace(expr)
	for _, op := range []string{"==", "!=", "<=", ">=", "<", ">"} {
		if idx := strings.Index(expr, op); idx >= 0 {
			left := strings.TrimSpace(expr[:idx])
			right := strings.TrimSpace(expr[idx+len(op):])
			lv, ok := resolveFilterOperand(node, left)
			if !ok {
				return false, nil
			}
			rv := parseFilterLiteral(right)
			return compareFilter(lv, rv, op), nil
		}
	}
	// bare existence test: "@.field"
	_, ok := resolveFilterOperand(node, expr)
	return ok, nil
}

func resolveFilterOperand(node any, path string) (any, bool) {
	if !strings.HasPrefix(path, "@") {
		return parseFilterLiteral(path), true
	}
	path = strings.TrimPrefix(path, "@")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return node, true
	}
	current := node
	for _, part := range strings.Split(path, ".") {
		obj, ok := asObject(current)
		if !ok {
			return nil, false
		}
		v, ok := obj.Get(part)
		if !ok {
			return nil, false
		}
		current = v
	}
	return current, true
}

func parseFilterLiteral(s string) any {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") {
		return strings.Trim(s, "'")
	}
	if strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return strings.Trim(s, `"`)
	}
	if s == "true" {
		return true
	}
	if s == "false" {
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func compareFilter(a, b any, op string) bool {
	switch op {
	case "==":
		return filterEqual(a, b)
	case "!=":
		return !filterEqual(a, b)
	}
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if !aok || !bok {
		return false
	}
	switch op {
	case "<":
		return af < bf
	case "<=":
		return af <= bf
	case ">":
		return af > bf
	case ">=":
		return af >= bf
	default:
		return false
	}
}

func filterEqual(a, b any) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func asObject(v any) (Object, bool) {
	obj, ok := v.(Object)
	return obj, ok
}

func asArray(v any) ([]any, bool) {
	arr, ok := v.([]any)
	return arr, ok
}
