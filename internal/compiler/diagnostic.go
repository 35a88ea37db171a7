package compiler

import (
	"fmt"

	"github.com/eventops/manifest/internal/ast"
)

// Diagnostic codes (E100-E199 errors, W100-W199 warnings)
const (
	// Parse errors (E100)
	ErrParse = "E100" // lexer/parser failure

	// Duplicate declarations (E110-E119)
	ErrDuplicateEntity   = "E110"
	ErrDuplicateProperty = "E111"
	ErrDuplicateCommand  = "E112"
	ErrDuplicatePolicy   = "E113"
	ErrDuplicateEvent    = "E114"

	// Unresolved references (E120-E129)
	ErrUnknownEntity         = "E120" // command targets an undeclared entity
	ErrUnknownMutationTarget = "E121" // mutate names a property not on the entity
	ErrUnknownPolicy         = "E122" // requires names an undeclared policy
	ErrUnknownEvent          = "E123" // emit names an undeclared event
	ErrUnboundEntity         = "E124" // top-level command with no 'on' clause

	// Expression errors (E130-E139)
	ErrUnknownProperty    = "E130" // self.<name> not declared on the entity
	ErrUnknownParameter   = "E131" // args.<name> or bare ident not a parameter
	ErrUnknownBuiltin     = "E132" // call to an undeclared function
	ErrInvalidSeverity    = "E133"
	ErrNonConstantDefault = "E134" // default referencing runtime state

	// Advisory warnings (W100-W199)
	WarnUnusedParameter = "W100"
	WarnUnusedPolicy    = "W101"
	WarnNoEffect        = "W102" // command with no mutations and no emissions
)

// Severity of a diagnostic. Error-level diagnostics exclude the offending
// declaration from the IR; warnings never do.
type DiagSeverity string

const (
	DiagError   DiagSeverity = "error"
	DiagWarning DiagSeverity = "warning"
)

// Diagnostic is one compiler finding, positioned in the source.
type Diagnostic struct {
	Severity DiagSeverity `json:"severity"`
	Code     string       `json:"code"`
	Message  string       `json:"message"`
	Pos      ast.Pos      `json:"pos"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: [%s] %s: %s", d.Pos, d.Code, d.Severity, d.Message)
}

// HasErrors reports whether any diagnostic in the slice is error-level.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == DiagError {
			return true
		}
	}
	return false
}

func errorf(code string, pos ast.Pos, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: DiagError, Code: code, Pos: pos, Message: fmt.Sprintf(format, args...)}
}

func warnf(code string, pos ast.Pos, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: DiagWarning, Code: code, Pos: pos, Message: fmt.Sprintf(format, args...)}
}
