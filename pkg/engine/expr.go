package engine

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/arnavsurve/agentblocks/pkg/core"
	"github.com/arnavsurve/agentblocks/pkg/types"
)

// MalformedStepError describes a reference that could not be resolved to
// the expected shape. It never fails a run; the value resolves to empty.
type MalformedStepError struct {
	Step   string
	Reason string
}

func (e *MalformedStepError) Error() string {
	return fmt.Sprintf("malformed step %q: %s", e.Step, e.Reason)
}

// eval resolves an expression. Unresolvable references yield nil and are
// reported through in.malformed.
func (in *interpreter) eval(step string, expr *types.Expr) any {
	if expr == nil {
		return nil
	}

	switch expr.Kind {
	case types.ExprLiteral:
		return expr.Text
	case types.ExprVar:
		v, _ := in.env.Get(expr.Name)
		return v
	case types.ExprInput:
		v, ok := in.env.Input(expr.Name)
		if !ok {
			in.malformed(step, fmt.Sprintf("input %q is not set", expr.Name))
		}
		return v
	case types.ExprField:
		item, ok := in.env.CurrentItem()
		if !ok {
			in.malformed(step, fmt.Sprintf("field %q used outside a for_each_email body", expr.Name))
			return nil
		}
		v, ok := fieldOf(item, expr.Name)
		if !ok {
			in.malformed(step, fmt.Sprintf("current item has no field %q", expr.Name))
			return nil
		}
		return v
	case types.ExprConcat:
		parts := make([]string, 0, len(expr.Parts))
		for _, p := range expr.Parts {
			parts = append(parts, toText(in.eval(step, p)))
		}
		return strings.Join(parts, " ")
	default:
		in.malformed(step, fmt.Sprintf("unknown expression kind %q", expr.Kind))
		return nil
	}
}

func (in *interpreter) evalText(step string, expr *types.Expr) string {
	return toText(in.eval(step, expr))
}

// fieldOf reads a named field from a loop element. Emails expose their
// fields by name; maps are traversed with dotted paths.
func fieldOf(item any, name string) (any, bool) {
	switch it := item.(type) {
	case types.Email:
		return it.Field(name)
	case *types.Email:
		if it == nil {
			return nil, false
		}
		return it.Field(name)
	case map[string]any, map[string]string:
		return core.GetNestedValue(it, strings.Split(name, "."))
	default:
		return nil, false
	}
}

func fieldText(item any, name string) string {
	v, _ := fieldOf(item, name)
	return toText(v)
}

// toText coerces any value to display text. Unset values become "".
func toText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// asList converts a bound value to its elements. It reports false for
// anything that is not a slice or array.
func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case []any:
		return t, true
	case []types.Email:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
