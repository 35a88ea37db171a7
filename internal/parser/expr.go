package parser

import (
	"strconv"

	"github.com/eventops/manifest/internal/ir"
)

// Expression parsing, precedence climbing. Lowest to highest:
// ternary, or/||, and/&&, equality, comparison (incl. contains/in),
// additive, multiplicative, unary, member access, primary.

func (p *parser) parseExpr() (*ir.Expr, bool) {
	return p.parseTernary()
}

func (p *parser) parseTernary() (*ir.Expr, bool) {
	cond, ok := p.parseOr()
	if !ok {
		return nil, false
	}
	if p.cur.Kind != tokQuestion {
		return cond, true
	}
	p.next()
	then, ok := p.parseExpr()
	if !ok {
		return nil, false
	}
	if _, ok := p.expect(tokColon, "':' in conditional expression"); !ok {
		return nil, false
	}
	// Right-associative: a ? b : c ? d : e groups the tail.
	els, ok := p.parseTernary()
	if !ok {
		return nil, false
	}
	return &ir.Expr{Kind: ir.ExprConditional, Cond: cond, Then: then, Else: els}, true
}

func (p *parser) parseOr() (*ir.Expr, bool) {
	left, ok := p.parseAnd()
	if !ok {
		return nil, false
	}
	for p.cur.Kind == tokOrOr || p.cur.isKeyword("or") {
		op := p.cur.Text
		p.next()
		right, ok := p.parseAnd()
		if !ok {
			return nil, false
		}
		left = ir.Binary(op, left, right)
	}
	return left, true
}

func (p *parser) parseAnd() (*ir.Expr, bool) {
	left, ok := p.parseEquality()
	if !ok {
		return nil, false
	}
	for p.cur.Kind == tokAndAnd || p.cur.isKeyword("and") {
		op := p.cur.Text
		p.next()
		right, ok := p.parseEquality()
		if !ok {
			return nil, false
		}
		left = ir.Binary(op, left, right)
	}
	return left, true
}

func (p *parser) parseEquality() (*ir.Expr, bool) {
	left, ok := p.parseComparison()
	if !ok {
		return nil, false
	}
	for p.cur.Kind == tokEq || p.cur.Kind == tokNeq {
		op := p.cur.Text
		p.next()
		right, ok := p.parseComparison()
		if !ok {
			return nil, false
		}
		left = ir.Binary(op, left, right)
	}
	return left, true
}

func (p *parser) parseComparison() (*ir.Expr, bool) {
	left, ok := p.parseAdditive()
	if !ok {
		return nil, false
	}
	for {
		var op string
		switch {
		case p.cur.Kind == tokLt, p.cur.Kind == tokLte, p.cur.Kind == tokGt, p.cur.Kind == tokGte:
			op = p.cur.Text
		case p.cur.isKeyword("contains"), p.cur.isKeyword("in"):
			op = p.cur.Text
		default:
			return left, true
		}
		p.next()
		right, ok := p.parseAdditive()
		if !ok {
			return nil, false
		}
		left = ir.Binary(op, left, right)
	}
}

func (p *parser) parseAdditive() (*ir.Expr, bool) {
	left, ok := p.parseMultiplicative()
	if !ok {
		return nil, false
	}
	for p.cur.Kind == tokPlus || p.cur.Kind == tokMinus {
		op := p.cur.Text
		p.next()
		right, ok := p.parseMultiplicative()
		if !ok {
			return nil, false
		}
		left = ir.Binary(op, left, right)
	}
	return left, true
}

func (p *parser) parseMultiplicative() (*ir.Expr, bool) {
	left, ok := p.parseUnary()
	if !ok {
		return nil, false
	}
	for p.cur.Kind == tokStar || p.cur.Kind == tokSlash || p.cur.Kind == tokPercent {
		op := p.cur.Text
		p.next()
		right, ok := p.parseUnary()
		if !ok {
			return nil, false
		}
		left = ir.Binary(op, left, right)
	}
	return left, true
}

func (p *parser) parseUnary() (*ir.Expr, bool) {
	switch {
	case p.cur.Kind == tokBang, p.cur.isKeyword("not"):
		op := p.cur.Text
		p.next()
		operand, ok := p.parseUnary()
		if !ok {
			return nil, false
		}
		return ir.Unary(op, operand), true
	case p.cur.Kind == tokMinus:
		p.next()
		operand, ok := p.parseUnary()
		if !ok {
			return nil, false
		}
		return ir.Unary("-", operand), true
	}
	return p.parseMember()
}

func (p *parser) parseMember() (*ir.Expr, bool) {
	expr, ok := p.parsePrimary()
	if !ok {
		return nil, false
	}
	for p.cur.Kind == tokDot || p.cur.Kind == tokQDot {
		optional := p.cur.Kind == tokQDot
		p.next()
		name, ok := p.expectIdent("member name after '.'")
		if !ok {
			return nil, false
		}
		expr = &ir.Expr{Kind: ir.ExprMember, Object: expr, Name: name.Text, Optional: optional}
	}
	return expr, true
}

func (p *parser) parsePrimary() (*ir.Expr, bool) {
	switch p.cur.Kind {
	case tokNumber:
		f, err := strconv.ParseFloat(p.cur.Text, 64)
		if err != nil {
			p.errorf(p.cur.Pos, "invalid number %q", p.cur.Text)
			p.next()
			return nil, false
		}
		p.next()
		return ir.Lit(ir.Number(f)), true

	case tokString:
		v := p.cur.Text
		p.next()
		return ir.Lit(ir.String(v)), true

	case tokIdent:
		switch p.cur.Text {
		case "true":
			p.next()
			return ir.Lit(ir.Bool(true)), true
		case "false":
			p.next()
			return ir.Lit(ir.Bool(false)), true
		case "null":
			p.next()
			return ir.Lit(ir.Null{}), true
		}
		name := p.cur
		p.next()
		if p.cur.Kind == tokLParen {
			return p.parseCall(name.Text)
		}
		return ir.Ident(name.Text), true

	case tokLParen:
		p.next()
		inner, ok := p.parseExpr()
		if !ok {
			return nil, false
		}
		if _, ok := p.expect(tokRParen, "')'"); !ok {
			return nil, false
		}
		return inner, true

	case tokLBracket:
		return p.parseArrayLiteral()

	case tokLBrace:
		return p.parseObjectLiteral()

	case tokError:
		p.errorf(p.cur.Pos, "%s", p.cur.Text)
		p.next()
		return nil, false

	default:
		p.errorf(p.cur.Pos, "expected an expression, found %s", p.cur.describe())
		return nil, false
	}
}

func (p *parser) parseCall(name string) (*ir.Expr, bool) {
	p.next() // (
	call := &ir.Expr{Kind: ir.ExprCall, Name: name}
	for p.cur.Kind != tokRParen && p.cur.Kind != tokEOF {
		arg, ok := p.parseExpr()
		if !ok {
			return nil, false
		}
		call.Args = append(call.Args, *arg)
		if p.cur.Kind == tokComma {
			p.next()
		} else if p.cur.Kind != tokRParen {
			p.errorf(p.cur.Pos, "expected ',' or ')' in call to %s, found %s", name, p.cur.describe())
			return nil, false
		}
	}
	if _, ok := p.expect(tokRParen, "')' closing call to "+name); !ok {
		return nil, false
	}
	return call, true
}

func (p *parser) parseArrayLiteral() (*ir.Expr, bool) {
	p.next() // [
	arr := &ir.Expr{Kind: ir.ExprArray}
	for p.cur.Kind != tokRBracket && p.cur.Kind != tokEOF {
		elem, ok := p.parseExpr()
		if !ok {
			return nil, false
		}
		arr.Elems = append(arr.Elems, *elem)
		if p.cur.Kind == tokComma {
			p.next()
		} else if p.cur.Kind != tokRBracket {
			p.errorf(p.cur.Pos, "expected ',' or ']' in array literal, found %s", p.cur.describe())
			return nil, false
		}
	}
	if _, ok := p.expect(tokRBracket, "']'"); !ok {
		return nil, false
	}
	return arr, true
}

// parseObjectLiteral parses `{ key: expr, ... }`. Keys are identifiers or
// string literals; declaration order is preserved in the node.
func (p *parser) parseObjectLiteral() (*ir.Expr, bool) {
	p.next() // {
	obj := &ir.Expr{Kind: ir.ExprObject}
	for p.cur.Kind != tokRBrace && p.cur.Kind != tokEOF {
		var key string
		switch p.cur.Kind {
		case tokIdent, tokString:
			key = p.cur.Text
			p.next()
		default:
			p.errorf(p.cur.Pos, "expected object key, found %s", p.cur.describe())
			return nil, false
		}
		if _, ok := p.expect(tokColon, "':' after object key"); !ok {
			return nil, false
		}
		val, ok := p.parseExpr()
		if !ok {
			return nil, false
		}
		obj.Fields = append(obj.Fields, ir.ExprField{Key: key, Value: *val})
		if p.cur.Kind == tokComma {
			p.next()
		} else if p.cur.Kind != tokRBrace {
			p.errorf(p.cur.Pos, "expected ',' or '}' in object literal, found %s", p.cur.describe())
			return nil, false
		}
	}
	if _, ok := p.expect(tokRBrace, "'}'"); !ok {
		return nil, false
	}
	return obj, true
}
