package ir

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExprKind discriminates the node variants of the expression tree.
type ExprKind string

const (
	ExprLiteral     ExprKind = "literal"
	ExprIdent       ExprKind = "ident"
	ExprMember      ExprKind = "member"
	ExprUnary       ExprKind = "unary"
	ExprBinary      ExprKind = "binary"
	ExprConditional ExprKind = "conditional"
	ExprCall        ExprKind = "call"
	ExprArray       ExprKind = "array"
	ExprObject      ExprKind = "object"
)

// Expr is a node of the guard/constraint expression sublanguage, stored in
// the IR in serializable form. Which fields are populated depends on Kind:
//
//	literal      Value
//	ident        Name
//	member       Object, Name, Optional
//	unary        Op, Right
//	binary       Op, Left, Right
//	conditional  Cond, Then, Else
//	call         Name, Args
//	array        Elems
//	object       Fields (ordered)
type Expr struct {
	Kind     ExprKind    `json:"kind"`
	Value    Value       `json:"value,omitempty"`
	Name     string      `json:"name,omitempty"`
	Object   *Expr       `json:"object,omitempty"`
	Optional bool        `json:"optional,omitempty"`
	Op       string      `json:"op,omitempty"`
	Left     *Expr       `json:"left,omitempty"`
	Right    *Expr       `json:"right,omitempty"`
	Cond     *Expr       `json:"cond,omitempty"`
	Then     *Expr       `json:"then,omitempty"`
	Else     *Expr       `json:"else,omitempty"`
	Args     []Expr      `json:"args,omitempty"`
	Elems    []Expr      `json:"elems,omitempty"`
	Fields   []ExprField `json:"fields,omitempty"`
}

// ExprField is one key/value pair of an object-literal expression.
// Declaration order is preserved.
type ExprField struct {
	Key   string `json:"key"`
	Value Expr   `json:"value"`
}

// Constructors used by the compiler and tests.

// Lit builds a literal node.
func Lit(v Value) *Expr { return &Expr{Kind: ExprLiteral, Value: v} }

// Ident builds an identifier node.
func Ident(name string) *Expr { return &Expr{Kind: ExprIdent, Name: name} }

// Member builds a member-access node (object.name).
func Member(object *Expr, name string) *Expr {
	return &Expr{Kind: ExprMember, Object: object, Name: name}
}

// Binary builds a binary-operator node.
func Binary(op string, left, right *Expr) *Expr {
	return &Expr{Kind: ExprBinary, Op: op, Left: left, Right: right}
}

// Unary builds a unary-operator node.
func Unary(op string, operand *Expr) *Expr {
	return &Expr{Kind: ExprUnary, Op: op, Right: operand}
}

// Call builds a builtin-call node.
func Call(name string, args ...Expr) *Expr {
	return &Expr{Kind: ExprCall, Name: name, Args: args}
}

// UnmarshalJSON implements json.Unmarshaler for Expr. A custom decoder is
// required because Value is an interface.
func (e *Expr) UnmarshalJSON(data []byte) error {
	type shadow struct {
		Kind     ExprKind        `json:"kind"`
		Value    json.RawMessage `json:"value,omitempty"`
		Name     string          `json:"name,omitempty"`
		Object   *Expr           `json:"object,omitempty"`
		Optional bool            `json:"optional,omitempty"`
		Op       string          `json:"op,omitempty"`
		Left     *Expr           `json:"left,omitempty"`
		Right    *Expr           `json:"right,omitempty"`
		Cond     *Expr           `json:"cond,omitempty"`
		Then     *Expr           `json:"then,omitempty"`
		Else     *Expr           `json:"else,omitempty"`
		Args     []Expr          `json:"args,omitempty"`
		Elems    []Expr          `json:"elems,omitempty"`
		Fields   []ExprField     `json:"fields,omitempty"`
	}
	var s shadow
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*e = Expr{
		Kind:     s.Kind,
		Name:     s.Name,
		Object:   s.Object,
		Optional: s.Optional,
		Op:       s.Op,
		Left:     s.Left,
		Right:    s.Right,
		Cond:     s.Cond,
		Then:     s.Then,
		Else:     s.Else,
		Args:     s.Args,
		Elems:    s.Elems,
		Fields:   s.Fields,
	}
	if s.Kind == ExprLiteral {
		if len(s.Value) == 0 {
			e.Value = Null{}
			return nil
		}
		val, err := UnmarshalValue(s.Value)
		if err != nil {
			return fmt.Errorf("literal value: %w", err)
		}
		e.Value = val
	}
	return nil
}

// String renders the expression back to source-like text. Used to format
// guard failures and policy denials for callers; not guaranteed to be
// re-parseable (string escaping is minimal).
func (e *Expr) String() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case ExprLiteral:
		b, err := MarshalValue(e.Value)
		if err != nil {
			return "<invalid literal>"
		}
		return string(b)
	case ExprIdent:
		return e.Name
	case ExprMember:
		dot := "."
		if e.Optional {
			dot = "?."
		}
		return e.Object.String() + dot + e.Name
	case ExprUnary:
		if e.Op == "not" {
			return "not " + e.Right.String()
		}
		return e.Op + e.Right.String()
	case ExprBinary:
		return fmt.Sprintf("%s %s %s", e.Left.String(), e.Op, e.Right.String())
	case ExprConditional:
		return fmt.Sprintf("%s ? %s : %s", e.Cond.String(), e.Then.String(), e.Else.String())
	case ExprCall:
		parts := make([]string, len(e.Args))
		for i := range e.Args {
			parts[i] = e.Args[i].String()
		}
		return e.Name + "(" + strings.Join(parts, ", ") + ")"
	case ExprArray:
		parts := make([]string, len(e.Elems))
		for i := range e.Elems {
			parts[i] = e.Elems[i].String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case ExprObject:
		parts := make([]string, len(e.Fields))
		for i, f := range e.Fields {
			parts[i] = f.Key + ": " + f.Value.String()
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	default:
		return fmt.Sprintf("<unknown expr kind %q>", e.Kind)
	}
}
