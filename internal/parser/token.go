package parser

import "github.com/eventops/manifest/internal/ast"

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokLBrace   // {
	tokRBrace   // }
	tokLParen   // (
	tokRParen   // )
	tokLBracket // [
	tokRBracket // ]
	tokColon    // :
	tokComma    // ,
	tokDot      // .
	tokQDot     // ?.
	tokQuestion // ?
	tokAssign   // =
	tokEq       // ==
	tokNeq      // !=
	tokLt       // <
	tokLte      // <=
	tokGt       // >
	tokGte      // >=
	tokPlus     // +
	tokMinus    // -
	tokStar     // *
	tokSlash    // /
	tokPercent  // %
	tokBang     // !
	tokAndAnd   // &&
	tokOrOr     // ||
	tokError    // lexer error; Text holds the message
)

// token is one lexeme with its source position. For tokString, Text holds
// the decoded string value; for everything else it holds the raw text.
type token struct {
	Kind tokenKind
	Text string
	Pos  ast.Pos
}

func (t token) is(kind tokenKind) bool { return t.Kind == kind }

// isKeyword reports whether the token is the given bare keyword. Keywords
// are not reserved: the lexer emits them as tokIdent and the parser checks
// the text in declaration position, so `status` or `event` remain usable as
// property names inside expressions.
func (t token) isKeyword(word string) bool {
	return t.Kind == tokIdent && t.Text == word
}

// describe renders a token for error messages.
func (t token) describe() string {
	switch t.Kind {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "'" + t.Text + "'"
	case tokNumber:
		return "number " + t.Text
	case tokString:
		return "string literal"
	case tokError:
		return t.Text
	default:
		return "'" + t.Text + "'"
	}
}
