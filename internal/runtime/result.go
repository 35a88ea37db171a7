package runtime

import (
	"github.com/eventops/manifest/internal/ir"
)

// PolicyDenial reports a failed authorization check. Nothing else about the
// command was evaluated.
type PolicyDenial struct {
	PolicyName string `json:"policyName"`
	Formatted  string `json:"formatted"` // policy expression rendered as source
	Message    string `json:"message,omitempty"`
}

// GuardFailure reports the first guard that evaluated falsy. Index is
// 1-based: the first guard of a command is guard 1.
type GuardFailure struct {
	Index     int    `json:"index"`
	Formatted string `json:"formatted"` // guard expression rendered as source
}

// ConstraintOutcome is the evaluation result of one constraint. Every
// constraint of a command produces exactly one outcome; constraints do not
// short-circuit each other.
type ConstraintOutcome struct {
	Name     string              `json:"name"`
	Severity ir.Severity         `json:"severity"`
	Passed   bool                `json:"passed"`
	Message  string              `json:"message,omitempty"`
	Details  map[string]ir.Value `json:"details,omitempty"`
}

// Event is one emitted domain event. Provenance is the content hash of the
// IR the command ran against.
type Event struct {
	Name       string   `json:"name"`
	Payload    ir.Value `json:"payload"`
	Provenance string   `json:"provenance,omitempty"`
}

// CommandResult is the full outcome of one RunCommand call. At most one of
// PolicyDenial, GuardFailure, and Err is set; ConstraintOutcomes always
// carries every evaluated constraint in order. Business rejections live
// here as data; only store transport failures travel as Go errors.
type CommandResult struct {
	Success  bool `json:"success"`
	Replayed bool `json:"replayed,omitempty"` // idempotency key seen before; no new effect

	PolicyDenial *PolicyDenial `json:"policyDenial,omitempty"`
	GuardFailure *GuardFailure `json:"guardFailure,omitempty"`
	// Err is a generic evaluation failure (type mismatch, division by
	// zero), distinct from the structured business rejections above.
	Err error `json:"-"`

	ConstraintOutcomes []ConstraintOutcome `json:"constraintOutcomes,omitempty"`
	EmittedEvents      []Event             `json:"emittedEvents,omitempty"`

	// Instance is the post-command state on success.
	Instance *Instance `json:"instance,omitempty"`
}

// Blocked reports whether any failed outcome carries block severity.
func Blocked(outcomes []ConstraintOutcome) bool {
	for _, o := range outcomes {
		if !o.Passed && o.Severity.Blocks() {
			return true
		}
	}
	return false
}
