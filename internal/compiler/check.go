package compiler

import (
	"github.com/eventops/manifest/internal/ast"
	"github.com/eventops/manifest/internal/ir"
)

// usage tracks one command parameter and whether any expression read it.
type usage struct {
	decl *ast.ParamDecl
	used bool
}

// builtins maps each builtin function to its arity.
var builtins = map[string]int{
	"now":    0,
	"uuid":   0,
	"length": 1,
}

// checkExpr validates every reference in an expression. entity is the
// owning entity for self.<prop> checks (nil for policies), params the
// command's parameters (nil outside commands). Reports findings and returns
// false when the expression is definitely wrong.
func (c *compilation) checkExpr(e *ir.Expr, pos ast.Pos, entity *ir.EntityDef, params map[string]*usage) bool {
	ok := true
	switch e.Kind {
	case ir.ExprLiteral:
		// nothing to resolve

	case ir.ExprIdent:
		switch e.Name {
		case "self", "args", "context":
			// scope roots
		default:
			u, isParam := params[e.Name]
			if !isParam {
				c.report(errorf(ErrUnknownParameter, pos,
					"unknown identifier %q (not a parameter, self, args, or context)", e.Name))
				return false
			}
			u.used = true
		}

	case ir.ExprMember:
		// Only the first hop off a scope root is statically checkable;
		// deeper members depend on runtime values.
		if e.Object.Kind == ir.ExprIdent {
			switch e.Object.Name {
			case "self":
				if entity != nil && entity.Property(e.Name) == nil {
					c.report(errorf(ErrUnknownProperty, pos,
						"unknown property %q on entity %q", e.Name, entity.Name))
					return false
				}
				return true
			case "args":
				if params != nil {
					u, isParam := params[e.Name]
					if !isParam {
						c.report(errorf(ErrUnknownParameter, pos,
							"unknown parameter %q", e.Name))
						return false
					}
					u.used = true
				}
				return true
			case "context":
				return true
			}
		}
		ok = c.checkExpr(e.Object, pos, entity, params)

	case ir.ExprUnary:
		ok = c.checkExpr(e.Right, pos, entity, params)

	case ir.ExprBinary:
		ok = c.checkExpr(e.Left, pos, entity, params)
		ok = c.checkExpr(e.Right, pos, entity, params) && ok

	case ir.ExprConditional:
		ok = c.checkExpr(e.Cond, pos, entity, params)
		ok = c.checkExpr(e.Then, pos, entity, params) && ok
		ok = c.checkExpr(e.Else, pos, entity, params) && ok

	case ir.ExprCall:
		arity, known := builtins[e.Name]
		if !known {
			c.report(errorf(ErrUnknownBuiltin, pos, "unknown function %q", e.Name))
			return false
		}
		if len(e.Args) != arity {
			c.report(errorf(ErrUnknownBuiltin, pos,
				"%s() takes %d argument(s), got %d", e.Name, arity, len(e.Args)))
			return false
		}
		for i := range e.Args {
			ok = c.checkExpr(&e.Args[i], pos, entity, params) && ok
		}

	case ir.ExprArray:
		for i := range e.Elems {
			ok = c.checkExpr(&e.Elems[i], pos, entity, params) && ok
		}

	case ir.ExprObject:
		for i := range e.Fields {
			ok = c.checkExpr(&e.Fields[i].Value, pos, entity, params) && ok
		}
	}
	return ok
}
