// Package ast defines the syntax tree produced by the manifest parser.
//
// Declaration nodes carry source positions so the compiler can attach
// diagnostics to the offending line. Expressions are represented directly
// as ir.Expr nodes: the expression sublanguage needs no desugaring between
// parse and IR, so a separate expression AST would only be copied verbatim.
package ast

import (
	"fmt"

	"github.com/eventops/manifest/internal/ir"
)

// Pos is a 1-based source position.
type Pos struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// String renders "line:column".
func (p Pos) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Column) }

// Program is the root node: the ordered top-level declarations of one
// manifest source file.
type Program struct {
	Entities []*EntityDecl
	Commands []*CommandDecl
	Policies []*PolicyDecl
	Events   []*EventDecl
}

// EntityDecl is an `entity Name { ... }` block.
type EntityDecl struct {
	Pos         Pos
	Name        string
	Properties  []*PropertyDecl
	Constraints []*ConstraintDecl
	Commands    []*CommandDecl // nested command blocks; Entity is implied
	Policies    []*PolicyDecl  // nested policies, hoisted to the global namespace
}

// PropertyDecl is a `property [required|optional] name: type [= default]`
// declaration inside an entity.
type PropertyDecl struct {
	Pos      Pos
	Name     string
	Type     string
	Required bool
	Default  *ir.Expr
}

// ConstraintDecl is a `constraint name[:severity] <expr> ["message"]`
// declaration, optionally followed by a `{ messageTemplate / details }`
// block. Severity is kept as source text; the compiler validates it.
type ConstraintDecl struct {
	Pos      Pos
	Name     string
	Severity string // empty means block
	Expr     ir.Expr
	Message  string
	Details  []ir.ExprField
}

// CommandDecl is a `command name(params) [requires policy] { ... }` block,
// either nested in an entity or top-level with an explicit `on Entity`.
type CommandDecl struct {
	Pos         Pos
	Name        string
	Entity      string // owning entity; filled in by the parser for nested commands
	Params      []*ParamDecl
	Requires    string // policy name, empty if unguarded
	Guards      []*GuardDecl
	Constraints []*ConstraintDecl
	Mutations   []*MutationDecl
	Emits       []*EmitDecl
}

// ParamDecl is one `name: type [= default]` command parameter. Parameters
// are required unless marked optional or given a default.
type ParamDecl struct {
	Pos      Pos
	Name     string
	Type     string
	Optional bool
	Default  *ir.Expr
}

// GuardDecl is a `guard <expr>` (or `when <expr>`) precondition.
type GuardDecl struct {
	Pos  Pos
	Expr ir.Expr
}

// MutationDecl is a `mutate property = <expr>` statement.
type MutationDecl struct {
	Pos    Pos
	Target string
	Expr   ir.Expr
}

// EmitDecl is an `emit EventName [with <expr>]` statement.
type EmitDecl struct {
	Pos     Pos
	Event   string
	Payload *ir.Expr
}

// PolicyDecl is a `policy name: <expr> ["message"]` declaration.
type PolicyDecl struct {
	Pos     Pos
	Name    string
	Expr    ir.Expr
	Message string
}

// EventDecl is an `event Name: { field: type, ... }` or `event Name: type`
// declaration.
type EventDecl struct {
	Pos    Pos
	Name   string
	Fields []EventField
	Type   string // set for the scalar form, mutually exclusive with Fields
}

// EventField is one field of an event payload shape.
type EventField struct {
	Name string
	Type string
}
