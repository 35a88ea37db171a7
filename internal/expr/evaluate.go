// Package expr evaluates IR expression trees against a runtime scope.
//
// The scope exposes the three roots of the expression sublanguage: self
// (the entity instance), args (command arguments), and context (tenant,
// user, role). Clock and ID generation route through the scope so callers
// can inject deterministic implementations in tests.
package expr

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eventops/manifest/internal/ir"
)

// Scope is the evaluation environment for one expression.
type Scope struct {
	Self    ir.Object
	Args    ir.Object
	Context ir.Object

	// Now backs the now() builtin; nil falls back to time.Now.
	Now func() time.Time
	// NewID backs the uuid() builtin; nil falls back to uuid.NewString.
	NewID func() string
}

func (s Scope) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Scope) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

// Evaluate computes the value of an expression. All failures are *Error
// values; the function never panics on any input tree.
func Evaluate(node ir.Expr, scope Scope) (ir.Value, error) {
	switch node.Kind {
	case ir.ExprLiteral:
		if node.Value == nil {
			return ir.Null{}, nil
		}
		return node.Value, nil

	case ir.ExprIdent:
		return evalIdent(node.Name, scope)

	case ir.ExprMember:
		return evalMember(node, scope)

	case ir.ExprUnary:
		return evalUnary(node, scope)

	case ir.ExprBinary:
		return evalBinary(node, scope)

	case ir.ExprConditional:
		cond, err := Evaluate(*node.Cond, scope)
		if err != nil {
			return nil, err
		}
		if ir.Truthy(cond) {
			return Evaluate(*node.Then, scope)
		}
		return Evaluate(*node.Else, scope)

	case ir.ExprCall:
		return evalCall(node, scope)

	case ir.ExprArray:
		arr := make(ir.Array, 0, len(node.Elems))
		for _, elem := range node.Elems {
			v, err := Evaluate(elem, scope)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil

	case ir.ExprObject:
		obj := make(ir.Object, len(node.Fields))
		for _, f := range node.Fields {
			v, err := Evaluate(f.Value, scope)
			if err != nil {
				return nil, err
			}
			obj[f.Key] = v
		}
		return obj, nil

	default:
		return nil, newErr(UnknownOperator, "unknown expression kind %q", node.Kind)
	}
}

func evalIdent(name string, scope Scope) (ir.Value, error) {
	switch name {
	case "self":
		return orEmpty(scope.Self), nil
	case "args":
		return orEmpty(scope.Args), nil
	case "context":
		return orEmpty(scope.Context), nil
	}
	// Bare identifiers are command arguments.
	if v, ok := scope.Args[name]; ok {
		return v, nil
	}
	return nil, newErr(UndefinedReference, "undefined identifier %q", name)
}

func orEmpty(o ir.Object) ir.Object {
	if o == nil {
		return ir.Object{}
	}
	return o
}

// evalMember resolves object.name. A missing key yields null rather than
// an error: context is an open map and instance properties may legitimately
// be absent before their first mutation. Optional chaining (?.) additionally
// absorbs a null receiver.
func evalMember(node ir.Expr, scope Scope) (ir.Value, error) {
	recv, err := Evaluate(*node.Object, scope)
	if err != nil {
		return nil, err
	}
	if _, isNull := recv.(ir.Null); isNull {
		if node.Optional {
			return ir.Null{}, nil
		}
		return nil, newErr(TypeMismatch, "cannot access %q on null", node.Name)
	}
	obj, ok := recv.(ir.Object)
	if !ok {
		return nil, newErr(TypeMismatch, "cannot access %q on %s", node.Name, kindName(recv))
	}
	if v, ok := obj[node.Name]; ok {
		return v, nil
	}
	return ir.Null{}, nil
}

func evalUnary(node ir.Expr, scope Scope) (ir.Value, error) {
	operand, err := Evaluate(*node.Right, scope)
	if err != nil {
		return nil, err
	}
	switch node.Op {
	case "!", "not":
		return ir.Bool(!ir.Truthy(operand)), nil
	case "-":
		n, ok := operand.(ir.Number)
		if !ok {
			return nil, newErr(TypeMismatch, "cannot negate %s", kindName(operand))
		}
		return ir.Number(-float64(n)), nil
	default:
		return nil, newErr(UnknownOperator, "unknown unary operator %q", node.Op)
	}
}

func evalBinary(node ir.Expr, scope Scope) (ir.Value, error) {
	// Boolean combinators short-circuit: the right operand is not
	// evaluated (and cannot fail) when the left side decides.
	switch node.Op {
	case "&&", "and":
		left, err := Evaluate(*node.Left, scope)
		if err != nil {
			return nil, err
		}
		if !ir.Truthy(left) {
			return ir.Bool(false), nil
		}
		right, err := Evaluate(*node.Right, scope)
		if err != nil {
			return nil, err
		}
		return ir.Bool(ir.Truthy(right)), nil
	case "||", "or":
		left, err := Evaluate(*node.Left, scope)
		if err != nil {
			return nil, err
		}
		if ir.Truthy(left) {
			return ir.Bool(true), nil
		}
		right, err := Evaluate(*node.Right, scope)
		if err != nil {
			return nil, err
		}
		return ir.Bool(ir.Truthy(right)), nil
	}

	left, err := Evaluate(*node.Left, scope)
	if err != nil {
		return nil, err
	}
	right, err := Evaluate(*node.Right, scope)
	if err != nil {
		return nil, err
	}

	switch node.Op {
	case "==":
		return ir.Bool(ir.Equal(left, right)), nil
	case "!=":
		return ir.Bool(!ir.Equal(left, right)), nil
	case "<", "<=", ">", ">=":
		return compare(node.Op, left, right)
	case "+":
		if l, ok := left.(ir.Number); ok {
			if r, ok := right.(ir.Number); ok {
				return ir.Number(float64(l) + float64(r)), nil
			}
		}
		if l, ok := left.(ir.String); ok {
			if r, ok := right.(ir.String); ok {
				return ir.String(string(l) + string(r)), nil
			}
		}
		return nil, newErr(TypeMismatch, "cannot add %s and %s", kindName(left), kindName(right))
	case "-", "*", "/", "%":
		return arithmetic(node.Op, left, right)
	case "contains":
		return contains(left, right)
	case "in":
		return contains(right, left)
	default:
		return nil, newErr(UnknownOperator, "unknown operator %q", node.Op)
	}
}

func compare(op string, left, right ir.Value) (ir.Value, error) {
	var cmp float64
	switch l := left.(type) {
	case ir.Number:
		r, ok := right.(ir.Number)
		if !ok {
			return nil, newErr(TypeMismatch, "cannot compare number with %s", kindName(right))
		}
		cmp = float64(l) - float64(r)
	case ir.String:
		r, ok := right.(ir.String)
		if !ok {
			return nil, newErr(TypeMismatch, "cannot compare string with %s", kindName(right))
		}
		cmp = float64(strings.Compare(string(l), string(r)))
	default:
		return nil, newErr(TypeMismatch, "cannot order %s values", kindName(left))
	}

	switch op {
	case "<":
		return ir.Bool(cmp < 0), nil
	case "<=":
		return ir.Bool(cmp <= 0), nil
	case ">":
		return ir.Bool(cmp > 0), nil
	default:
		return ir.Bool(cmp >= 0), nil
	}
}

func arithmetic(op string, left, right ir.Value) (ir.Value, error) {
	l, ok := left.(ir.Number)
	if !ok {
		return nil, newErr(TypeMismatch, "operator %q needs numbers, got %s", op, kindName(left))
	}
	r, ok := right.(ir.Number)
	if !ok {
		return nil, newErr(TypeMismatch, "operator %q needs numbers, got %s", op, kindName(right))
	}
	switch op {
	case "-":
		return ir.Number(float64(l) - float64(r)), nil
	case "*":
		return ir.Number(float64(l) * float64(r)), nil
	case "/":
		if r == 0 {
			return nil, newErr(DivisionByZero, "division by zero")
		}
		return ir.Number(float64(l) / float64(r)), nil
	default: // %
		if r == 0 {
			return nil, newErr(DivisionByZero, "modulo by zero")
		}
		return ir.Number(math.Mod(float64(l), float64(r))), nil
	}
}

// contains implements both `haystack contains needle` and (with swapped
// operands) `needle in haystack`: substring for strings, membership for
// arrays, key presence for objects.
func contains(haystack, needle ir.Value) (ir.Value, error) {
	switch h := haystack.(type) {
	case ir.String:
		n, ok := needle.(ir.String)
		if !ok {
			return nil, newErr(TypeMismatch, "string containment needs a string, got %s", kindName(needle))
		}
		return ir.Bool(strings.Contains(string(h), string(n))), nil
	case ir.Array:
		for _, elem := range h {
			if ir.Equal(elem, needle) {
				return ir.Bool(true), nil
			}
		}
		return ir.Bool(false), nil
	case ir.Object:
		key, ok := needle.(ir.String)
		if !ok {
			return nil, newErr(TypeMismatch, "object containment needs a string key, got %s", kindName(needle))
		}
		_, present := h[string(key)]
		return ir.Bool(present), nil
	default:
		return nil, newErr(TypeMismatch, "cannot test containment on %s", kindName(haystack))
	}
}

func evalCall(node ir.Expr, scope Scope) (ir.Value, error) {
	switch node.Name {
	case "now":
		if len(node.Args) != 0 {
			return nil, newErr(UnknownFunction, "now() takes no arguments")
		}
		return ir.String(scope.now().UTC().Format(time.RFC3339)), nil
	case "uuid":
		if len(node.Args) != 0 {
			return nil, newErr(UnknownFunction, "uuid() takes no arguments")
		}
		return ir.String(scope.newID()), nil
	case "length":
		if len(node.Args) != 1 {
			return nil, newErr(UnknownFunction, "length() takes exactly one argument")
		}
		arg, err := Evaluate(node.Args[0], scope)
		if err != nil {
			return nil, err
		}
		switch v := arg.(type) {
		case ir.String:
			return ir.Number(len([]rune(string(v)))), nil
		case ir.Array:
			return ir.Number(len(v)), nil
		case ir.Object:
			return ir.Number(len(v)), nil
		default:
			return nil, newErr(TypeMismatch, "length() needs a string, array, or object, got %s", kindName(arg))
		}
	default:
		return nil, newErr(UnknownFunction, "unknown function %q", node.Name)
	}
}

func kindName(v ir.Value) string {
	switch v.(type) {
	case ir.Null:
		return "null"
	case ir.String:
		return "string"
	case ir.Number:
		return "number"
	case ir.Bool:
		return "boolean"
	case ir.Array:
		return "array"
	case ir.Object:
		return "object"
	default:
		return "unknown"
	}
}
