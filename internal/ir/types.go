package ir

import (
	"encoding/json"
	"fmt"
)

// IRVersion is the IR schema version, recorded in every serialized IR.
const IRVersion = "1"

// Severity classifies a constraint's downstream effect. It is a closed set;
// consumers must switch exhaustively over the three members.
type Severity string

const (
	// SeverityBlock prevents mutation and event emission when the
	// constraint fails.
	SeverityBlock Severity = "block"
	// SeverityWarn records a failed outcome without preventing execution.
	SeverityWarn Severity = "warn"
	// SeverityInfo is purely informational.
	SeverityInfo Severity = "info"
)

// ParseSeverity validates a severity string from manifest source.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityBlock, SeverityWarn, SeverityInfo:
		return Severity(s), nil
	default:
		return "", fmt.Errorf("invalid severity %q: must be block, warn, or info", s)
	}
}

// Blocks reports whether a failed constraint of this severity prevents the
// command's mutation and event emission.
func (s Severity) Blocks() bool { return s == SeverityBlock }

// PropertyDef describes one property of an entity.
type PropertyDef struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
	Default  *Expr  `json:"default,omitempty"`
}

// EntityDef is a named record type. Property names are unique within the
// entity; Commands lists the names of commands whose Entity field names
// this entity.
type EntityDef struct {
	Name        string          `json:"name"`
	Properties  []PropertyDef   `json:"properties"`
	Constraints []ConstraintDef `json:"constraints,omitempty"`
	Commands    []string        `json:"commands,omitempty"`
}

// Property returns the named property definition, or nil.
func (e *EntityDef) Property(name string) *PropertyDef {
	for i := range e.Properties {
		if e.Properties[i].Name == name {
			return &e.Properties[i]
		}
	}
	return nil
}

// ParamDef describes one declared command parameter.
type ParamDef struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
	Default  *Expr  `json:"default,omitempty"`
}

// GuardDef is a boolean precondition on a command. Guards are evaluated in
// declaration order and the first failure stops execution; they are distinct
// from constraints, which always all evaluate.
type GuardDef struct {
	Expr Expr `json:"expr"`
}

// Assignment is one property mutation of a command. The right-hand side is
// evaluated against the pre-mutation instance snapshot.
type Assignment struct {
	Target string `json:"target"`
	Expr   Expr   `json:"expr"`
}

// EventEmission names a declared event and optionally a payload expression
// evaluated against the post-mutation state. With no payload expression the
// emitted payload is the post-mutation property map.
type EventEmission struct {
	Event   string `json:"event"`
	Payload *Expr  `json:"payload,omitempty"`
}

// ConstraintDef is a severity-tagged business rule. Message is a template;
// {placeholder} segments are substituted from Details first, then from the
// evaluation scope.
type ConstraintDef struct {
	Name     string      `json:"name"`
	Severity Severity    `json:"severity"`
	Expr     Expr        `json:"expr"`
	Message  string      `json:"message,omitempty"`
	Details  []ExprField `json:"details,omitempty"`
}

// CommandDef is a state-transition operation owned by an entity.
// Mutation targets may only name properties declared on the owning entity;
// the compiler enforces this.
type CommandDef struct {
	Name        string          `json:"name"`
	Entity      string          `json:"entity,omitempty"`
	Params      []ParamDef      `json:"params,omitempty"`
	Guards      []GuardDef      `json:"guards,omitempty"`
	Constraints []ConstraintDef `json:"constraints,omitempty"`
	Policy      string          `json:"policy,omitempty"`
	Mutations   []Assignment    `json:"mutations,omitempty"`
	Emits       []EventEmission `json:"emits,omitempty"`
}

// PolicyDef is an authorization expression over the execution context.
// At most one policy gates a given command.
type PolicyDef struct {
	Name    string `json:"name"`
	Expr    Expr   `json:"expr"`
	Message string `json:"message,omitempty"`
}

// FieldDef is one field of an event payload shape.
type FieldDef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// EventDef declares an emittable domain event. The payload shape is either
// a field list or a single scalar type name.
type EventDef struct {
	Name   string     `json:"name"`
	Fields []FieldDef `json:"fields,omitempty"`
	Type   string     `json:"type,omitempty"`
}

// IR is the compiled, serializable aggregate of a manifest. A successful
// compile yields a closed graph: every name referenced by a member resolves
// to a declaration in the same IR.
type IR struct {
	Version  string       `json:"version"`
	Entities []EntityDef  `json:"entities"`
	Commands []CommandDef `json:"commands"`
	Policies []PolicyDef  `json:"policies"`
	Events   []EventDef   `json:"events"`
}

// Entity returns the named entity definition, or nil.
func (doc *IR) Entity(name string) *EntityDef {
	for i := range doc.Entities {
		if doc.Entities[i].Name == name {
			return &doc.Entities[i]
		}
	}
	return nil
}

// Command looks a command up by name, optionally scoped to an entity.
// With an empty entityName the first command with a matching name wins.
func (doc *IR) Command(name, entityName string) *CommandDef {
	for i := range doc.Commands {
		c := &doc.Commands[i]
		if c.Name != name {
			continue
		}
		if entityName == "" || c.Entity == entityName {
			return c
		}
	}
	return nil
}

// Policy returns the named policy definition, or nil.
func (doc *IR) Policy(name string) *PolicyDef {
	for i := range doc.Policies {
		if doc.Policies[i].Name == name {
			return &doc.Policies[i]
		}
	}
	return nil
}

// Event returns the named event definition, or nil.
func (doc *IR) Event(name string) *EventDef {
	for i := range doc.Events {
		if doc.Events[i].Name == name {
			return &doc.Events[i]
		}
	}
	return nil
}

// Marshal serializes an IR to its stable interchange form: two-space
// indented JSON with struct fields in declaration order and object values
// with sorted keys. Serializing the same IR twice yields identical bytes,
// so IR drift between compiles of unchanged source is detectable by
// byte equality.
func Marshal(doc *IR) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal IR: %w", err)
	}
	return append(data, '\n'), nil
}

// Unmarshal parses a serialized IR. Together with Marshal it round-trips:
// Unmarshal(Marshal(doc)) is deeply equal to doc.
func Unmarshal(data []byte) (*IR, error) {
	var doc IR
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal IR: %w", err)
	}
	return &doc, nil
}
