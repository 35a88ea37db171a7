package parser

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/eventops/manifest/internal/ast"
)

// lexer turns manifest source into tokens. It never fails hard: malformed
// input produces a tokError token carrying the message, which the parser
// converts into a positioned diagnostic.
type lexer struct {
	src    string
	offset int
	line   int
	column int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, column: 1}
}

func (l *lexer) pos() ast.Pos { return ast.Pos{Line: l.line, Column: l.column} }

func (l *lexer) peek() rune {
	if l.offset >= len(l.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.offset:])
	return r
}

func (l *lexer) peekAt(n int) rune {
	off := l.offset
	for ; n > 0 && off < len(l.src); n-- {
		_, size := utf8.DecodeRuneInString(l.src[off:])
		off += size
	}
	if off >= len(l.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[off:])
	return r
}

func (l *lexer) advance() rune {
	r, size := utf8.DecodeRuneInString(l.src[l.offset:])
	l.offset += size
	if r == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return r
}

func (l *lexer) skipSpaceAndComments() {
	for l.offset < len(l.src) {
		r := l.peek()
		switch {
		case r == ' ' || r == '\t' || r == '\r' || r == '\n':
			l.advance()
		case r == '/' && l.peekAt(1) == '/':
			for l.offset < len(l.src) && l.peek() != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

// next returns the next token. After tokEOF it keeps returning tokEOF.
func (l *lexer) next() token {
	l.skipSpaceAndComments()
	start := l.pos()
	if l.offset >= len(l.src) {
		return token{Kind: tokEOF, Pos: start}
	}

	r := l.peek()
	switch {
	case isIdentStart(r):
		return l.lexIdent(start)
	case unicode.IsDigit(r):
		return l.lexNumber(start)
	case r == '"' || r == '\'':
		return l.lexString(start)
	}

	l.advance()
	two := func(second rune, withKind, withoutKind tokenKind, withText, withoutText string) token {
		if l.peek() == second {
			l.advance()
			return token{Kind: withKind, Text: withText, Pos: start}
		}
		return token{Kind: withoutKind, Text: withoutText, Pos: start}
	}

	switch r {
	case '{':
		return token{Kind: tokLBrace, Text: "{", Pos: start}
	case '}':
		return token{Kind: tokRBrace, Text: "}", Pos: start}
	case '(':
		return token{Kind: tokLParen, Text: "(", Pos: start}
	case ')':
		return token{Kind: tokRParen, Text: ")", Pos: start}
	case '[':
		return token{Kind: tokLBracket, Text: "[", Pos: start}
	case ']':
		return token{Kind: tokRBracket, Text: "]", Pos: start}
	case ':':
		return token{Kind: tokColon, Text: ":", Pos: start}
	case ',':
		return token{Kind: tokComma, Text: ",", Pos: start}
	case '.':
		return token{Kind: tokDot, Text: ".", Pos: start}
	case '?':
		return two('.', tokQDot, tokQuestion, "?.", "?")
	case '=':
		return two('=', tokEq, tokAssign, "==", "=")
	case '!':
		return two('=', tokNeq, tokBang, "!=", "!")
	case '<':
		return two('=', tokLte, tokLt, "<=", "<")
	case '>':
		return two('=', tokGte, tokGt, ">=", ">")
	case '+':
		return token{Kind: tokPlus, Text: "+", Pos: start}
	case '-':
		return token{Kind: tokMinus, Text: "-", Pos: start}
	case '*':
		return token{Kind: tokStar, Text: "*", Pos: start}
	case '/':
		return token{Kind: tokSlash, Text: "/", Pos: start}
	case '%':
		return token{Kind: tokPercent, Text: "%", Pos: start}
	case '&':
		if l.peek() == '&' {
			l.advance()
			return token{Kind: tokAndAnd, Text: "&&", Pos: start}
		}
		return token{Kind: tokError, Text: "unexpected '&' (did you mean '&&'?)", Pos: start}
	case '|':
		if l.peek() == '|' {
			l.advance()
			return token{Kind: tokOrOr, Text: "||", Pos: start}
		}
		return token{Kind: tokError, Text: "unexpected '|' (did you mean '||'?)", Pos: start}
	}
	return token{Kind: tokError, Text: fmt.Sprintf("unexpected character %q", r), Pos: start}
}

func (l *lexer) lexIdent(start ast.Pos) token {
	var b strings.Builder
	for l.offset < len(l.src) && isIdentPart(l.peek()) {
		b.WriteRune(l.advance())
	}
	return token{Kind: tokIdent, Text: b.String(), Pos: start}
}

func (l *lexer) lexNumber(start ast.Pos) token {
	var b strings.Builder
	for l.offset < len(l.src) && unicode.IsDigit(l.peek()) {
		b.WriteRune(l.advance())
	}
	if l.peek() == '.' && unicode.IsDigit(l.peekAt(1)) {
		b.WriteRune(l.advance())
		for l.offset < len(l.src) && unicode.IsDigit(l.peek()) {
			b.WriteRune(l.advance())
		}
	}
	return token{Kind: tokNumber, Text: b.String(), Pos: start}
}

// lexString handles double- and single-quoted strings with \n \t \\ \" \'
// escapes. Unterminated strings produce a tokError at the opening quote.
func (l *lexer) lexString(start ast.Pos) token {
	quote := l.advance()
	var b strings.Builder
	for l.offset < len(l.src) {
		r := l.advance()
		switch r {
		case quote:
			return token{Kind: tokString, Text: b.String(), Pos: start}
		case '\n':
			return token{Kind: tokError, Text: "unterminated string literal", Pos: start}
		case '\\':
			if l.offset >= len(l.src) {
				return token{Kind: tokError, Text: "unterminated string literal", Pos: start}
			}
			esc := l.advance()
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\', '"', '\'':
				b.WriteRune(esc)
			default:
				return token{Kind: tokError, Text: fmt.Sprintf("invalid escape sequence \\%c", esc), Pos: start}
			}
		default:
			b.WriteRune(r)
		}
	}
	return token{Kind: tokError, Text: "unterminated string literal", Pos: start}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
