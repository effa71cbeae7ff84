package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/opflowhq/opflow/jsonpath"
	"github.com/opflowhq/opflow/jsonschema"
)

// Eval is the recursive interpreter: Context, OperatorValue in; Value or
// *EvalError out. Literal returns its wrapped Value itself (objects and
// arrays are shared with the AST, not copied); Operator dispatches on
// its concrete Go type (set by ParseOperatorValue, one type per $-tag).
// Evaluation is strict left-to-right except where short-circuit is
// mandated ($and, $or).
func Eval(ctx context.Context, c *Context, collabs Collaborators, ov OperatorValue) (Value, error) {
	switch n := ov.(type) {
	case Literal:
		return n.Value, nil

	case GetOp:
		path, err := evalToString(ctx, c, collabs, n.Path)
		if err != nil {
			return nil, err
		}
		v, ok := c.GetPath(path)
		if !ok {
			return nil, errPathNotFound(path)
		}
		return v, nil

	case JSONPathOp:
		expr, err := evalToString(ctx, c, collabs, n.Expr)
		if err != nil {
			return nil, err
		}
		root := ToOrderedObject(c.Vars())
		results, err := jsonpath.Query(root, expr)
		if err != nil {
			return nil, errCustom("jsonPath: %s", err)
		}
		return []Value(results), nil

	case IfOp:
		cond, err := Eval(ctx, c, collabs, n.Condition)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return Eval(ctx, c, collabs, n.Then)
		}
		if n.Else != nil {
			return Eval(ctx, c, collabs, n.Else)
		}
		return nil, nil

	case SwitchOp:
		on, err := Eval(ctx, c, collabs, n.On)
		if err != nil {
			return nil, err
		}
		for _, cs := range n.Cases {
			if structuralEqual(on, cs.When) {
				return Eval(ctx, c, collabs, cs.Then)
			}
		}
		if n.Default != nil {
			return Eval(ctx, c, collabs, n.Default)
		}
		return nil, nil

	case BinaryOp:
		return evalCompare(ctx, c, collabs, n)

	case AndOp:
		for _, cond := range n.Conditions {
			v, err := Eval(ctx, c, collabs, cond)
			if err != nil {
				return nil, err
			}
			if !truthy(v) {
				return false, nil
			}
		}
		return true, nil

	case OrOp:
		for _, cond := range n.Conditions {
			v, err := Eval(ctx, c, collabs, cond)
			if err != nil {
				return nil, err
			}
			if truthy(v) {
				return true, nil
			}
		}
		return false, nil

	case NotOp:
		v, err := Eval(ctx, c, collabs, n.Condition)
		if err != nil {
			return nil, err
		}
		return !truthy(v), nil

	case MergeOp:
		result := NewOrderedObject()
		for _, elemExpr := range n.Objects {
			elem, err := Eval(ctx, c, collabs, elemExpr)
			if err != nil {
				return nil, err
			}
			obj, ok := valueAsObject(elem)
			if !ok {
				return nil, errTypeError("$merge elements must be objects", "object", typeName(elem))
			}
			obj.Range(func(k string, v Value) {
				result.Set(k, v)
			})
		}
		return result, nil

	case ExistsOp:
		v, err := Eval(ctx, c, collabs, n.Value)
		if err != nil {
			return nil, err
		}
		return v != nil, nil

	case NowOp:
		return collabs.Clock.Now(), nil

	case RenderStringOp:
		tmplVal, err := Eval(ctx, c, collabs, n.Template)
		if err != nil {
			return nil, err
		}
		tmpl, ok := tmplVal.(string)
		if !ok {
			return nil, errTypeError("$renderString template must be a string", "string", typeName(tmplVal))
		}
		return renderTemplate(c, tmpl), nil

	case MapOp:
		return evalMap(ctx, c, collabs, n)

	case FilterOp:
		return evalFilter(ctx, c, collabs, n)

	case ReduceOp:
		return evalReduce(ctx, c, collabs, n)

	case ValidateOp:
		return evalValidate(ctx, c, collabs, n)

	case ReturnOp:
		return evalReturn(ctx, c, collabs, n)

	case DbQueryOp:
		return evalDbQuery(ctx, c, collabs, n)

	case DbInsertOp:
		return evalDbInsert(ctx, c, collabs, n)

	case DbUpdateOp:
		return evalDbUpdate(ctx, c, collabs, n)

	case DbDeleteOp:
		return evalDbDelete(ctx, c, collabs, n)

	case VariadicOp:
		return evalVariadic(ctx, c, collabs, n)

	case notImplementedOp:
		return nil, errCustom("operator %q is not implemented", n.tag)

	default:
		return nil, errCustom("unrecognized operator node %T", ov)
	}
}

func evalToString(ctx context.Context, c *Context, collabs Collaborators, ov OperatorValue) (string, error) {
	v, err := Eval(ctx, c, collabs, ov)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", errTypeError("expected a string", "string", typeName(v))
	}
	return s, nil
}

// evalCompare implements eq/ne (structural equality, any type) and
// gt/gte/lt/lte (number<->number or string<->string only; mixed types are
// a TypeError; NaN operands raise a Custom error rather than a bool).
func evalCompare(ctx context.Context, c *Context, collabs Collaborators, n BinaryOp) (Value, error) {
	left, err := Eval(ctx, c, collabs, n.Left)
	if err != nil {
		return nil, err
	}
	right, err := Eval(ctx, c, collabs, n.Right)
	if err != nil {
		return nil, err
	}

	switch n.tag {
	case "eq":
		return structuralEqual(left, right), nil
	case "ne":
		return !structuralEqual(left, right), nil
	}

	if isNaN(left) || isNaN(right) {
		return nil, errCustom("cannot order NaN operands in $%s", n.tag)
	}

	if lf, lok := asFloat64(left); lok {
		rf, rok := asFloat64(right)
		if !rok {
			return nil, errTypeError(fmt.Sprintf("$%s requires both operands to be numbers or both strings", n.tag), "number", typeName(right))
		}
		return orderingResult(n.tag, compareNumbers(lf, rf)), nil
	}
	if ls, lok := left.(string); lok {
		rs, rok := right.(string)
		if !rok {
			return nil, errTypeError(fmt.Sprintf("$%s requires both operands to be numbers or both strings", n.tag), "string", typeName(right))
		}
		return orderingResult(n.tag, strings.Compare(ls, rs)), nil
	}
	return nil, errTypeError(fmt.Sprintf("$%s operands must be numbers or strings", n.tag), "number or string", typeName(left))
}

func orderingResult(tag string, cmp int) bool {
	switch tag {
	case "gt":
		return cmp > 0
	case "gte":
		return cmp >= 0
	case "lt":
		return cmp < 0
	case "lte":
		return cmp <= 0
	default:
		return false
	}
}

func evalVariadic(ctx context.Context, c *Context, collabs Collaborators, n VariadicOp) (Value, error) {
	switch n.tag {
	case "add", "multiply":
		acc := 0.0
		if n.tag == "multiply" {
			acc = 1.0
		}
		for _, operand := range n.Operands {
			v, err := Eval(ctx, c, collabs, operand)
			if err != nil {
				return nil, err
			}
			f, ok := asFloat64(v)
			if !ok {
				return nil, errTypeError(fmt.Sprintf("$%s operands must be numbers", n.tag), "number", typeName(v))
			}
			if n.tag == "add" {
				acc += f
			} else {
				acc *= f
			}
		}
		return acc, nil

	case "subtract", "divide":
		left, err := Eval(ctx, c, collabs, n.Operands[0])
		if err != nil {
			return nil, err
		}
		right, err := Eval(ctx, c, collabs, n.Operands[1])
		if err != nil {
			return nil, err
		}
		lf, lok := asFloat64(left)
		rf, rok := asFloat64(right)
		if !lok || !rok {
			return nil, errTypeError(fmt.Sprintf("$%s operands must be numbers", n.tag), "number", typeName(left))
		}
		if n.tag == "subtract" {
			return lf - rf, nil
		}
		if rf == 0 {
			return nil, errDivisionByZero()
		}
		return lf / rf, nil

	default:
		return nil, errCustom("unknown arithmetic operator %q", n.tag)
	}
}

// evalMap/evalFilter/evalReduce introduce loop-local "item" (and
// "accumulator" for reduce) bindings into a child Context per spec.md
// §4.3.6. A non-array "over" is a TypeError.
func evalMap(ctx context.Context, c *Context, collabs Collaborators, n MapOp) (Value, error) {
	overVal, err := Eval(ctx, c, collabs, n.Over)
	if err != nil {
		return nil, err
	}
	arr, ok := valueAsArray(overVal)
	if !ok {
		return nil, errTypeError("$map \"over\" must be an array", "array", typeName(overVal))
	}
	out := make([]Value, 0, len(arr))
	for _, elem := range arr {
		childCtx := c.Bind("item", elem)
		v, err := Eval(ctx, childCtx, collabs, n.Do)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func evalFilter(ctx context.Context, c *Context, collabs Collaborators, n FilterOp) (Value, error) {
	overVal, err := Eval(ctx, c, collabs, n.Over)
	if err != nil {
		return nil, err
	}
	arr, ok := valueAsArray(overVal)
	if !ok {
		return nil, errTypeError("$filter \"over\" must be an array", "array", typeName(overVal))
	}
	out := make([]Value, 0, len(arr))
	for _, elem := range arr {
		childCtx := c.Bind("item", elem)
		v, err := Eval(ctx, childCtx, collabs, n.Where)
		if err != nil {
			return nil, err
		}
		if truthy(v) {
			out = append(out, elem)
		}
	}
	return out, nil
}

func evalReduce(ctx context.Context, c *Context, collabs Collaborators, n ReduceOp) (Value, error) {
	overVal, err := Eval(ctx, c, collabs, n.Over)
	if err != nil {
		return nil, err
	}
	arr, ok := valueAsArray(overVal)
	if !ok {
		return nil, errTypeError("$reduce \"over\" must be an array", "array", typeName(overVal))
	}
	acc, err := Eval(ctx, c, collabs, n.Initial)
	if err != nil {
		return nil, err
	}
	for _, elem := range arr {
		childCtx := c.Bind("item", elem).Bind("accumulator", acc)
		acc, err = Eval(ctx, childCtx, collabs, n.With)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// evalValidate implements $validate per spec.md §4.3.7: compiling the
// schema document and validating data against it; schema compile failure
// is a Custom error, schema rejection (with no onFail) is a ValidationError.
func evalValidate(ctx context.Context, c *Context, collabs Collaborators, n ValidateOp) (Value, error) {
	data, err := Eval(ctx, c, collabs, n.Data)
	if err != nil {
		return nil, err
	}
	violations, err := jsonschema.Validate(data, n.Schema)
	if err != nil {
		return nil, errCustom("schema compile failed: %s", err)
	}
	if len(violations) == 0 {
		return data, nil
	}
	if n.OnFail != nil {
		return Eval(ctx, c, collabs, n.OnFail)
	}
	strs := make([]string, len(violations))
	for i, v := range violations {
		strs[i] = string(v)
	}
	return nil, errValidation(jsonschema.Join(violations), strs)
}

// evalReturn implements $return per spec.md §4.3.8: evaluate body and each
// header value, then raise EarlyReturn — a control-flow signal the pipeline
// runner must not treat as error noise.
func evalReturn(ctx context.Context, c *Context, collabs Collaborators, n ReturnOp) (Value, error) {
	body, err := Eval(ctx, c, collabs, n.Body)
	if err != nil {
		return nil, err
	}
	headers := make(map[string]Value, len(n.Headers))
	for k, hv := range n.Headers {
		v, err := Eval(ctx, c, collabs, hv)
		if err != nil {
			return nil, err
		}
		headers[k] = v
	}
	return nil, earlyReturn(n.Status, headers, body)
}

func evalValueMap(ctx context.Context, c *Context, collabs Collaborators, m map[string]OperatorValue) (map[string]Value, error) {
	out := make(map[string]Value, len(m))
	for k, ov := range m {
		v, err := Eval(ctx, c, collabs, ov)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func evalDbQuery(ctx context.Context, c *Context, collabs Collaborators, n DbQueryOp) (Value, error) {
	filter, err := evalValueMap(ctx, c, collabs, n.Filter)
	if err != nil {
		return nil, err
	}
	sort := make(map[string]SortOrder, len(n.Sort))
	for k, v := range n.Sort {
		sort[k] = SortOrder(v)
	}
	docs, err := collabs.Storage.Query(ctx, n.Collection, QueryOptions{
		Filter: filter,
		Select: n.Select,
		Limit:  n.Limit,
		Skip:   n.Skip,
		Sort:   sort,
	})
	if err != nil {
		return nil, errDatabase(err.Error())
	}
	return docs, nil
}

func evalDbInsert(ctx context.Context, c *Context, collabs Collaborators, n DbInsertOp) (Value, error) {
	doc, err := evalValueMap(ctx, c, collabs, n.Document)
	if err != nil {
		return nil, err
	}
	inserted, err := collabs.Storage.Insert(ctx, n.Collection, doc)
	if err != nil {
		return nil, errDatabase(err.Error())
	}
	return inserted, nil
}

func evalDbUpdate(ctx context.Context, c *Context, collabs Collaborators, n DbUpdateOp) (Value, error) {
	filter, err := evalValueMap(ctx, c, collabs, n.Filter)
	if err != nil {
		return nil, err
	}
	update, err := evalValueMap(ctx, c, collabs, n.Update)
	if err != nil {
		return nil, err
	}
	docs, err := collabs.Storage.Update(ctx, n.Collection, filter, update)
	if err != nil {
		return nil, errDatabase(err.Error())
	}
	return docs, nil
}

func evalDbDelete(ctx context.Context, c *Context, collabs Collaborators, n DbDeleteOp) (Value, error) {
	filter, err := evalValueMap(ctx, c, collabs, n.Filter)
	if err != nil {
		return nil, err
	}
	docs, err := collabs.Storage.Delete(ctx, n.Collection, filter)
	if err != nil {
		return nil, errDatabase(err.Error())
	}
	return docs, nil
}

// renderTemplate substitutes {{dotted.path}} occurrences with
// C.getPath(path) stringified. A missing path renders as an empty string
// rather than raising — spec.md §9 leaves this Open Question to the
// implementation provided it stays consistent; this choice matches the
// rest of the template surface (no operator silently raises on a
// presentation-layer miss).
func renderTemplate(c *Context, tmpl string) string {
	var sb strings.Builder
	i := 0
	for i < len(tmpl) {
		start := strings.Index(tmpl[i:], "{{")
		if start < 0 {
			sb.WriteString(tmpl[i:])
			break
		}
		start += i
		sb.WriteString(tmpl[i:start])
		end := strings.Index(tmpl[start:], "}}")
		if end < 0 {
			sb.WriteString(tmpl[start:])
			break
		}
		end += start
		path := strings.TrimSpace(tmpl[start+2 : end])
		if v, ok := c.GetPath(path); ok {
			sb.WriteString(stringifyValue(v))
		}
		i = end + 2
	}
	return sb.String()
}

func stringifyValue(v Value) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return trimFloat(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%g", f)
	return s
}
