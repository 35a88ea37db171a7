package expr

import "fmt"

// ErrorKind classifies evaluation failures.
type ErrorKind string

const (
	TypeMismatch       ErrorKind = "type_mismatch"
	UndefinedReference ErrorKind = "undefined_reference"
	DivisionByZero     ErrorKind = "division_by_zero"
	UnknownOperator    ErrorKind = "unknown_operator"
	UnknownFunction    ErrorKind = "unknown_function"
)

// Error is an evaluation failure. Evaluation never panics on malformed
// input or mismatched operands; everything surfaces as one of these.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newErr(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
