// Package parser implements the lexer and recursive-descent parser for
// manifest source. Parsing never panics; malformed input produces positioned
// errors and the parser recovers at the next declaration so independent
// declarations still parse.
package parser

import (
	"fmt"

	"github.com/eventops/manifest/internal/ast"
	"github.com/eventops/manifest/internal/ir"
)

// Error is one positioned parse error.
type Error struct {
	Pos     ast.Pos
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// maxErrors bounds error accumulation so pathological input cannot produce
// an unbounded diagnostic list.
const maxErrors = 25

// Parse parses manifest source into a Program. The returned program holds
// every declaration that parsed cleanly; errs holds one entry per problem
// found. A nil program is only returned when nothing parsed at all.
func Parse(source string) (*ast.Program, []Error) {
	p := &parser{lex: newLexer(source)}
	p.cur = p.lex.next()
	p.peek = p.lex.next()

	prog := p.parseProgram()
	if len(prog.Entities) == 0 && len(prog.Commands) == 0 &&
		len(prog.Policies) == 0 && len(prog.Events) == 0 && len(p.errs) > 0 {
		return nil, p.errs
	}
	return prog, p.errs
}

type parser struct {
	lex  *lexer
	cur  token
	peek token
	errs []Error
	done bool // set when maxErrors is hit; parsing stops
}

func (p *parser) next() {
	p.cur = p.peek
	p.peek = p.lex.next()
}

func (p *parser) errorf(pos ast.Pos, format string, args ...any) {
	if len(p.errs) >= maxErrors {
		p.done = true
		return
	}
	p.errs = append(p.errs, Error{Pos: pos, Message: fmt.Sprintf(format, args...)})
}

// expect consumes the current token if it matches, otherwise records an
// error and leaves the token in place for recovery.
func (p *parser) expect(kind tokenKind, what string) (token, bool) {
	if p.cur.Kind == kind {
		t := p.cur
		p.next()
		return t, true
	}
	p.errorf(p.cur.Pos, "expected %s, found %s", what, p.cur.describe())
	return p.cur, false
}

func (p *parser) expectIdent(what string) (token, bool) {
	return p.expect(tokIdent, what)
}

func (p *parser) parseProgram() *ast.Program {
	prog := &ast.Program{}
	for p.cur.Kind != tokEOF && !p.done {
		switch {
		case p.cur.Kind == tokError:
			p.errorf(p.cur.Pos, "%s", p.cur.Text)
			p.next()
		case p.cur.isKeyword("entity"):
			if e := p.parseEntity(); e != nil {
				prog.Entities = append(prog.Entities, e)
				for _, c := range e.Commands {
					prog.Commands = append(prog.Commands, c)
				}
				prog.Policies = append(prog.Policies, e.Policies...)
			}
		case p.cur.isKeyword("command"):
			if c := p.parseCommand(""); c != nil {
				prog.Commands = append(prog.Commands, c)
			}
		case p.cur.isKeyword("policy"):
			if pol := p.parsePolicy(); pol != nil {
				prog.Policies = append(prog.Policies, pol)
			}
		case p.cur.isKeyword("event"):
			if ev := p.parseEvent(); ev != nil {
				prog.Events = append(prog.Events, ev)
			}
		default:
			p.errorf(p.cur.Pos, "expected a declaration (entity, command, policy, or event), found %s", p.cur.describe())
			p.syncTopLevel()
		}
	}
	return prog
}

// syncTopLevel skips tokens until the next top-level declaration keyword at
// the current nesting depth, so one bad declaration does not cascade.
func (p *parser) syncTopLevel() {
	depth := 0
	for p.cur.Kind != tokEOF {
		switch {
		case p.cur.Kind == tokLBrace:
			depth++
		case p.cur.Kind == tokRBrace:
			if depth > 0 {
				depth--
			}
		case depth == 0 && (p.cur.isKeyword("entity") || p.cur.isKeyword("command") ||
			p.cur.isKeyword("policy") || p.cur.isKeyword("event")):
			return
		}
		p.next()
	}
}

// syncBlock skips to the end of the current brace block (or EOF).
func (p *parser) syncBlock() {
	depth := 0
	for p.cur.Kind != tokEOF {
		switch p.cur.Kind {
		case tokLBrace:
			depth++
		case tokRBrace:
			if depth == 0 {
				p.next()
				return
			}
			depth--
		}
		p.next()
	}
}

func (p *parser) parseEntity() *ast.EntityDecl {
	pos := p.cur.Pos
	p.next() // entity

	name, ok := p.expectIdent("entity name")
	if !ok {
		p.syncTopLevel()
		return nil
	}
	if _, ok := p.expect(tokLBrace, "'{'"); !ok {
		p.syncTopLevel()
		return nil
	}

	decl := &ast.EntityDecl{Pos: pos, Name: name.Text}
	for p.cur.Kind != tokRBrace && p.cur.Kind != tokEOF && !p.done {
		switch {
		case p.cur.isKeyword("property"):
			if prop := p.parseProperty(); prop != nil {
				decl.Properties = append(decl.Properties, prop)
			}
		case p.cur.isKeyword("constraint"):
			if c := p.parseConstraint(); c != nil {
				decl.Constraints = append(decl.Constraints, c)
			}
		case p.cur.isKeyword("command"):
			if c := p.parseCommand(decl.Name); c != nil {
				decl.Commands = append(decl.Commands, c)
			}
		case p.cur.isKeyword("policy"):
			if pol := p.parsePolicy(); pol != nil {
				decl.Policies = append(decl.Policies, pol)
			}
		default:
			p.errorf(p.cur.Pos, "expected property, constraint, command, or policy in entity %s, found %s", decl.Name, p.cur.describe())
			p.syncEntityBody()
		}
	}
	p.expect(tokRBrace, "'}' closing entity "+decl.Name)
	return decl
}

func (p *parser) syncEntityBody() {
	depth := 0
	for p.cur.Kind != tokEOF {
		switch {
		case p.cur.Kind == tokLBrace:
			depth++
		case p.cur.Kind == tokRBrace:
			if depth == 0 {
				return
			}
			depth--
		case depth == 0 && (p.cur.isKeyword("property") || p.cur.isKeyword("constraint") ||
			p.cur.isKeyword("command") || p.cur.isKeyword("policy")):
			return
		}
		p.next()
	}
}

func (p *parser) parseProperty() *ast.PropertyDecl {
	pos := p.cur.Pos
	p.next() // property

	decl := &ast.PropertyDecl{Pos: pos}
	switch {
	case p.cur.isKeyword("required"):
		decl.Required = true
		p.next()
	case p.cur.isKeyword("optional"):
		p.next()
	}

	name, ok := p.expectIdent("property name")
	if !ok {
		p.syncEntityBody()
		return nil
	}
	decl.Name = name.Text

	if _, ok := p.expect(tokColon, "':' after property name"); !ok {
		p.syncEntityBody()
		return nil
	}
	typ, ok := p.parseTypeName()
	if !ok {
		p.syncEntityBody()
		return nil
	}
	decl.Type = typ

	if p.cur.Kind == tokAssign {
		p.next()
		expr, ok := p.parseExpr()
		if !ok {
			p.syncEntityBody()
			return nil
		}
		decl.Default = expr
	}
	return decl
}

// validTypeNames is the closed set of property/parameter/event field types.
var validTypeNames = map[string]bool{
	"string":  true,
	"number":  true,
	"boolean": true,
	"list":    true,
	"map":     true,
	"any":     true,
}

func (p *parser) parseTypeName() (string, bool) {
	name, ok := p.expectIdent("type name")
	if !ok {
		return "", false
	}
	if !validTypeNames[name.Text] {
		p.errorf(name.Pos, "unknown type %q (expected string, number, boolean, list, map, or any)", name.Text)
		return "", false
	}
	return name.Text, true
}

// severityWords are the constraint severity modifiers. A bare identifier
// after the constraint colon is only treated as a severity when the token
// after it can begin an expression; this keeps `warn > 3` parsing as an
// expression over a property named warn.
var severityWords = map[string]bool{"block": true, "warn": true, "info": true}

func (p *parser) parseConstraint() *ast.ConstraintDecl {
	pos := p.cur.Pos
	p.next() // constraint

	name, ok := p.expectIdent("constraint name")
	if !ok {
		p.syncEntityBody()
		return nil
	}
	if _, ok := p.expect(tokColon, "':' after constraint name"); !ok {
		p.syncEntityBody()
		return nil
	}

	decl := &ast.ConstraintDecl{Pos: pos, Name: name.Text}
	if p.cur.Kind == tokIdent && severityWords[p.cur.Text] && p.startsExpr(p.peek) {
		decl.Severity = p.cur.Text
		p.next()
	}

	expr, ok := p.parseExpr()
	if !ok {
		p.syncEntityBody()
		return nil
	}
	decl.Expr = *expr

	if p.cur.Kind == tokString {
		decl.Message = p.cur.Text
		p.next()
	}
	if p.cur.Kind == tokLBrace {
		p.parseConstraintBlock(decl)
	}
	return decl
}

// parseConstraintBlock parses the optional
// `{ messageTemplate: "..." details: { ... } }` tail of a constraint.
func (p *parser) parseConstraintBlock(decl *ast.ConstraintDecl) {
	p.next() // {
	for p.cur.Kind != tokRBrace && p.cur.Kind != tokEOF && !p.done {
		key, ok := p.expectIdent("messageTemplate or details")
		if !ok {
			p.syncBlock()
			return
		}
		if _, ok := p.expect(tokColon, "':'"); !ok {
			p.syncBlock()
			return
		}
		switch key.Text {
		case "messageTemplate":
			tmpl, ok := p.expect(tokString, "string template")
			if !ok {
				p.syncBlock()
				return
			}
			decl.Message = tmpl.Text
		case "details":
			obj, ok := p.parseExpr()
			if !ok {
				p.syncBlock()
				return
			}
			if obj.Kind != ir.ExprObject {
				p.errorf(key.Pos, "details must be an object literal")
				continue
			}
			decl.Details = obj.Fields
		default:
			p.errorf(key.Pos, "unknown constraint option %q (expected messageTemplate or details)", key.Text)
			p.syncBlock()
			return
		}
		if p.cur.Kind == tokComma {
			p.next()
		}
	}
	p.expect(tokRBrace, "'}' closing constraint block")
}

// parseCommand parses a command declaration. entityName is the enclosing
// entity for nested commands; top-level commands bind with `on Entity`.
func (p *parser) parseCommand(entityName string) *ast.CommandDecl {
	pos := p.cur.Pos
	p.next() // command

	name, ok := p.expectIdent("command name")
	if !ok {
		p.syncTopLevel()
		return nil
	}
	decl := &ast.CommandDecl{Pos: pos, Name: name.Text, Entity: entityName}

	if _, ok := p.expect(tokLParen, "'(' after command name"); !ok {
		p.syncTopLevel()
		return nil
	}
	for p.cur.Kind != tokRParen && p.cur.Kind != tokEOF && !p.done {
		param := p.parseParam()
		if param == nil {
			p.syncTopLevel()
			return nil
		}
		decl.Params = append(decl.Params, param)
		if p.cur.Kind == tokComma {
			p.next()
		} else if p.cur.Kind != tokRParen {
			p.errorf(p.cur.Pos, "expected ',' or ')' in parameter list, found %s", p.cur.describe())
			p.syncTopLevel()
			return nil
		}
	}
	p.expect(tokRParen, "')'")

	if p.cur.isKeyword("on") {
		onPos := p.cur.Pos
		p.next()
		target, ok := p.expectIdent("entity name after 'on'")
		if !ok {
			p.syncTopLevel()
			return nil
		}
		if entityName != "" {
			p.errorf(onPos, "nested command %s cannot use 'on'; it already belongs to entity %s", decl.Name, entityName)
		} else {
			decl.Entity = target.Text
		}
	}

	if p.cur.isKeyword("requires") {
		p.next()
		pol, ok := p.expectIdent("policy name after 'requires'")
		if !ok {
			p.syncTopLevel()
			return nil
		}
		decl.Requires = pol.Text
	}

	if _, ok := p.expect(tokLBrace, "'{' opening command body"); !ok {
		p.syncTopLevel()
		return nil
	}
	for p.cur.Kind != tokRBrace && p.cur.Kind != tokEOF && !p.done {
		switch {
		case p.cur.isKeyword("guard") || p.cur.isKeyword("when"):
			gpos := p.cur.Pos
			p.next()
			expr, ok := p.parseExpr()
			if !ok {
				p.syncCommandBody()
				continue
			}
			decl.Guards = append(decl.Guards, &ast.GuardDecl{Pos: gpos, Expr: *expr})
		case p.cur.isKeyword("constraint"):
			if c := p.parseConstraint(); c != nil {
				decl.Constraints = append(decl.Constraints, c)
			}
		case p.cur.isKeyword("mutate"):
			if m := p.parseMutation(); m != nil {
				decl.Mutations = append(decl.Mutations, m)
			}
		case p.cur.isKeyword("emit"):
			if e := p.parseEmit(); e != nil {
				decl.Emits = append(decl.Emits, e)
			}
		default:
			p.errorf(p.cur.Pos, "expected guard, constraint, mutate, or emit in command %s, found %s", decl.Name, p.cur.describe())
			p.syncCommandBody()
		}
	}
	p.expect(tokRBrace, "'}' closing command "+decl.Name)
	return decl
}

func (p *parser) syncCommandBody() {
	depth := 0
	for p.cur.Kind != tokEOF {
		switch {
		case p.cur.Kind == tokLBrace:
			depth++
		case p.cur.Kind == tokRBrace:
			if depth == 0 {
				return
			}
			depth--
		case depth == 0 && (p.cur.isKeyword("guard") || p.cur.isKeyword("when") ||
			p.cur.isKeyword("constraint") || p.cur.isKeyword("mutate") || p.cur.isKeyword("emit")):
			return
		}
		p.next()
	}
}

func (p *parser) parseParam() *ast.ParamDecl {
	decl := &ast.ParamDecl{Pos: p.cur.Pos}
	if p.cur.isKeyword("optional") {
		decl.Optional = true
		p.next()
	}
	name, ok := p.expectIdent("parameter name")
	if !ok {
		return nil
	}
	decl.Name = name.Text
	if _, ok := p.expect(tokColon, "':' after parameter name"); !ok {
		return nil
	}
	typ, ok := p.parseTypeName()
	if !ok {
		return nil
	}
	decl.Type = typ
	if p.cur.Kind == tokAssign {
		p.next()
		expr, ok := p.parseExpr()
		if !ok {
			return nil
		}
		decl.Default = expr
		decl.Optional = true
	}
	return decl
}

func (p *parser) parseMutation() *ast.MutationDecl {
	pos := p.cur.Pos
	p.next() // mutate

	target, ok := p.expectIdent("property name after 'mutate'")
	if !ok {
		p.syncCommandBody()
		return nil
	}
	if _, ok := p.expect(tokAssign, "'=' in mutation"); !ok {
		p.syncCommandBody()
		return nil
	}
	expr, ok := p.parseExpr()
	if !ok {
		p.syncCommandBody()
		return nil
	}
	return &ast.MutationDecl{Pos: pos, Target: target.Text, Expr: *expr}
}

func (p *parser) parseEmit() *ast.EmitDecl {
	pos := p.cur.Pos
	p.next() // emit

	name, ok := p.expectIdent("event name after 'emit'")
	if !ok {
		p.syncCommandBody()
		return nil
	}
	decl := &ast.EmitDecl{Pos: pos, Event: name.Text}
	if p.cur.isKeyword("with") {
		p.next()
		expr, ok := p.parseExpr()
		if !ok {
			p.syncCommandBody()
			return nil
		}
		decl.Payload = expr
	}
	return decl
}

func (p *parser) parsePolicy() *ast.PolicyDecl {
	pos := p.cur.Pos
	p.next() // policy

	name, ok := p.expectIdent("policy name")
	if !ok {
		p.syncTopLevel()
		return nil
	}
	if _, ok := p.expect(tokColon, "':' after policy name"); !ok {
		p.syncTopLevel()
		return nil
	}
	expr, ok := p.parseExpr()
	if !ok {
		p.syncTopLevel()
		return nil
	}
	decl := &ast.PolicyDecl{Pos: pos, Name: name.Text, Expr: *expr}
	if p.cur.Kind == tokString {
		decl.Message = p.cur.Text
		p.next()
	}
	return decl
}

func (p *parser) parseEvent() *ast.EventDecl {
	pos := p.cur.Pos
	p.next() // event

	name, ok := p.expectIdent("event name")
	if !ok {
		p.syncTopLevel()
		return nil
	}
	if _, ok := p.expect(tokColon, "':' after event name"); !ok {
		p.syncTopLevel()
		return nil
	}

	decl := &ast.EventDecl{Pos: pos, Name: name.Text}
	if p.cur.Kind == tokLBrace {
		p.next()
		for p.cur.Kind != tokRBrace && p.cur.Kind != tokEOF && !p.done {
			fname, ok := p.expectIdent("field name")
			if !ok {
				p.syncBlock()
				return decl
			}
			if _, ok := p.expect(tokColon, "':' after field name"); !ok {
				p.syncBlock()
				return decl
			}
			ftype, ok := p.parseTypeName()
			if !ok {
				p.syncBlock()
				return decl
			}
			decl.Fields = append(decl.Fields, ast.EventField{Name: fname.Text, Type: ftype})
			if p.cur.Kind == tokComma {
				p.next()
			} else if p.cur.Kind != tokRBrace {
				p.errorf(p.cur.Pos, "expected ',' or '}' in event fields, found %s", p.cur.describe())
				p.syncBlock()
				return decl
			}
		}
		p.expect(tokRBrace, "'}' closing event "+decl.Name)
		return decl
	}

	typ, ok := p.parseTypeName()
	if !ok {
		p.syncTopLevel()
		return nil
	}
	decl.Type = typ
	return decl
}

// startsExpr reports whether a token can begin an expression.
func (p *parser) startsExpr(t token) bool {
	switch t.Kind {
	case tokNumber, tokString, tokLParen, tokLBracket, tokLBrace, tokBang, tokMinus:
		return true
	case tokIdent:
		return true
	default:
		return false
	}
}
