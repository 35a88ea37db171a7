// Package compiler lowers parsed manifest source to IR. Compilation never
// panics: every problem becomes a positioned Diagnostic, and failure is
// localized: an invalid declaration is excluded from the IR together with
// the declarations depending on it, while independent declarations still
// compile.
package compiler

import (
	"sort"

	"github.com/eventops/manifest/internal/ast"
	"github.com/eventops/manifest/internal/ir"
	"github.com/eventops/manifest/internal/parser"
)

// CompileToIR compiles manifest source. The returned IR holds every
// declaration that compiled cleanly; diags holds every finding. ir is nil
// only when nothing compiled at all: a top-level parse failure, or a source
// whose every declaration failed.
func CompileToIR(source string) (*ir.IR, []Diagnostic) {
	prog, parseErrs := parser.Parse(source)

	var diags []Diagnostic
	for _, pe := range parseErrs {
		diags = append(diags, errorf(ErrParse, pe.Pos, "%s", pe.Message))
	}
	if prog == nil {
		return nil, diags
	}

	c := &compilation{
		entities:     make(map[string]*ast.EntityDecl),
		policies:     make(map[string]*ast.PolicyDecl),
		events:       make(map[string]*ast.EventDecl),
		usedPolicies: make(map[string]bool),
	}
	c.collectSymbols(prog)
	c.compileEntities(prog)
	c.compileCommands(prog)
	c.compilePolicies(prog)
	c.compileEvents(prog)
	c.warnUnusedPolicies(prog)
	diags = append(diags, c.diags...)

	doc := c.assemble()
	if len(doc.Entities) == 0 && len(doc.Commands) == 0 &&
		len(doc.Policies) == 0 && len(doc.Events) == 0 && HasErrors(diags) {
		return nil, diags
	}
	return doc, diags
}

type compilation struct {
	diags []Diagnostic

	// Symbol tables, first declaration wins on duplicates.
	entities map[string]*ast.EntityDecl
	policies map[string]*ast.PolicyDecl
	events   map[string]*ast.EventDecl

	usedPolicies map[string]bool

	outEntities []ir.EntityDef
	outCommands []ir.CommandDef
	outPolicies []ir.PolicyDef
	outEvents   []ir.EventDef
}

func (c *compilation) report(d Diagnostic) { c.diags = append(c.diags, d) }

// collectSymbols builds the name tables before any body is compiled, so
// forward references (a command emitting an event declared later) resolve.
func (c *compilation) collectSymbols(prog *ast.Program) {
	for _, e := range prog.Entities {
		if _, dup := c.entities[e.Name]; dup {
			c.report(errorf(ErrDuplicateEntity, e.Pos, "duplicate entity %q", e.Name))
			continue
		}
		c.entities[e.Name] = e
	}
	for _, p := range prog.Policies {
		if _, dup := c.policies[p.Name]; dup {
			c.report(errorf(ErrDuplicatePolicy, p.Pos, "duplicate policy %q", p.Name))
			continue
		}
		c.policies[p.Name] = p
	}
	for _, ev := range prog.Events {
		if _, dup := c.events[ev.Name]; dup {
			c.report(errorf(ErrDuplicateEvent, ev.Pos, "duplicate event %q", ev.Name))
			continue
		}
		c.events[ev.Name] = ev
	}

	seen := make(map[string]bool)
	for _, cmd := range prog.Commands {
		key := cmd.Entity + "." + cmd.Name
		if seen[key] {
			c.report(errorf(ErrDuplicateCommand, cmd.Pos, "duplicate command %q on entity %q", cmd.Name, cmd.Entity))
		}
		seen[key] = true
	}
}

func (c *compilation) compileEntities(prog *ast.Program) {
	for _, e := range prog.Entities {
		if c.entities[e.Name] != e {
			continue // duplicate, first declaration already compiled
		}
		c.outEntities = append(c.outEntities, c.compileEntity(e))
	}
}

func (c *compilation) compileEntity(e *ast.EntityDecl) ir.EntityDef {
	def := ir.EntityDef{Name: e.Name}

	seen := make(map[string]bool)
	for _, p := range e.Properties {
		if seen[p.Name] {
			c.report(errorf(ErrDuplicateProperty, p.Pos, "duplicate property %q on entity %q", p.Name, e.Name))
			continue
		}
		seen[p.Name] = true

		prop := ir.PropertyDef{Name: p.Name, Type: p.Type, Required: p.Required}
		if p.Default != nil {
			if !c.checkConstantDefault(p.Default, p.Pos, p.Name) {
				continue
			}
			prop.Default = p.Default
		}
		def.Properties = append(def.Properties, prop)
	}

	// Entity constraints see self and context but no command parameters.
	// An invalid constraint is dropped; the entity keeps the rest.
	for _, con := range e.Constraints {
		out, ok := c.compileConstraint(con, &def, nil)
		if !ok {
			continue
		}
		def.Constraints = append(def.Constraints, out)
	}
	return def
}

// checkConstantDefault rejects defaults that reference runtime state.
// Literals, literal collections, and the nullary builtins are allowed.
func (c *compilation) checkConstantDefault(e *ir.Expr, pos ast.Pos, propName string) bool {
	switch e.Kind {
	case ir.ExprLiteral:
		return true
	case ir.ExprArray:
		for i := range e.Elems {
			if !c.checkConstantDefault(&e.Elems[i], pos, propName) {
				return false
			}
		}
		return true
	case ir.ExprObject:
		for i := range e.Fields {
			if !c.checkConstantDefault(&e.Fields[i].Value, pos, propName) {
				return false
			}
		}
		return true
	case ir.ExprCall:
		if (e.Name == "now" || e.Name == "uuid") && len(e.Args) == 0 {
			return true
		}
	}
	c.report(errorf(ErrNonConstantDefault, pos,
		"default for property %q must be a literal value (or now()/uuid())", propName))
	return false
}

func (c *compilation) compileConstraint(con *ast.ConstraintDecl, entity *ir.EntityDef, params map[string]*usage) (ir.ConstraintDef, bool) {
	severity := ir.SeverityBlock
	if con.Severity != "" {
		parsed, err := ir.ParseSeverity(con.Severity)
		if err != nil {
			c.report(errorf(ErrInvalidSeverity, con.Pos, "constraint %q: %v", con.Name, err))
			return ir.ConstraintDef{}, false
		}
		severity = parsed
	}

	if !c.checkExpr(&con.Expr, con.Pos, entity, params) {
		return ir.ConstraintDef{}, false
	}
	for i := range con.Details {
		if !c.checkExpr(&con.Details[i].Value, con.Pos, entity, params) {
			return ir.ConstraintDef{}, false
		}
	}
	return ir.ConstraintDef{
		Name:     con.Name,
		Severity: severity,
		Expr:     con.Expr,
		Message:  con.Message,
		Details:  con.Details,
	}, true
}

func (c *compilation) compileCommands(prog *ast.Program) {
	seen := make(map[string]bool)
	for _, cmd := range prog.Commands {
		key := cmd.Entity + "." + cmd.Name
		if seen[key] {
			continue // duplicate reported in collectSymbols
		}
		seen[key] = true
		if out, ok := c.compileCommand(cmd); ok {
			c.outCommands = append(c.outCommands, out)
		}
	}
}

func (c *compilation) compileCommand(cmd *ast.CommandDecl) (ir.CommandDef, bool) {
	if cmd.Entity == "" {
		c.report(errorf(ErrUnboundEntity, cmd.Pos,
			"command %q is not bound to an entity (use 'on <Entity>')", cmd.Name))
		return ir.CommandDef{}, false
	}
	entityDecl, ok := c.entities[cmd.Entity]
	if !ok {
		c.report(errorf(ErrUnknownEntity, cmd.Pos,
			"command %q references undeclared entity %q", cmd.Name, cmd.Entity))
		return ir.CommandDef{}, false
	}
	entity := c.entityDef(entityDecl.Name)

	def := ir.CommandDef{Name: cmd.Name, Entity: cmd.Entity}

	params := make(map[string]*usage)
	for _, p := range cmd.Params {
		if _, dup := params[p.Name]; dup {
			c.report(errorf(ErrDuplicateProperty, p.Pos,
				"duplicate parameter %q in command %q", p.Name, cmd.Name))
			return ir.CommandDef{}, false
		}
		params[p.Name] = &usage{decl: p}
		pd := ir.ParamDef{Name: p.Name, Type: p.Type, Required: !p.Optional}
		if p.Default != nil {
			if !c.checkConstantDefault(p.Default, p.Pos, p.Name) {
				return ir.CommandDef{}, false
			}
			pd.Default = p.Default
		}
		def.Params = append(def.Params, pd)
	}

	if cmd.Requires != "" {
		if _, ok := c.policies[cmd.Requires]; !ok {
			c.report(errorf(ErrUnknownPolicy, cmd.Pos,
				"command %q requires undeclared policy %q", cmd.Name, cmd.Requires))
			return ir.CommandDef{}, false
		}
		c.usedPolicies[cmd.Requires] = true
		def.Policy = cmd.Requires
	}

	for _, g := range cmd.Guards {
		if !c.checkExpr(&g.Expr, g.Pos, entity, params) {
			return ir.CommandDef{}, false
		}
		def.Guards = append(def.Guards, ir.GuardDef{Expr: g.Expr})
	}

	for _, con := range cmd.Constraints {
		out, ok := c.compileConstraint(con, entity, params)
		if !ok {
			return ir.CommandDef{}, false
		}
		def.Constraints = append(def.Constraints, out)
	}

	for _, m := range cmd.Mutations {
		if entity.Property(m.Target) == nil {
			c.report(errorf(ErrUnknownMutationTarget, m.Pos,
				"command %q mutates unknown property %q on entity %q", cmd.Name, m.Target, cmd.Entity))
			return ir.CommandDef{}, false
		}
		if !c.checkExpr(&m.Expr, m.Pos, entity, params) {
			return ir.CommandDef{}, false
		}
		def.Mutations = append(def.Mutations, ir.Assignment{Target: m.Target, Expr: m.Expr})
	}

	for _, em := range cmd.Emits {
		if _, ok := c.events[em.Event]; !ok {
			c.report(errorf(ErrUnknownEvent, em.Pos,
				"command %q emits undeclared event %q", cmd.Name, em.Event))
			return ir.CommandDef{}, false
		}
		emission := ir.EventEmission{Event: em.Event}
		if em.Payload != nil {
			if !c.checkExpr(em.Payload, em.Pos, entity, params) {
				return ir.CommandDef{}, false
			}
			emission.Payload = em.Payload
		}
		def.Emits = append(def.Emits, emission)
	}

	for name, u := range params {
		if !u.used {
			c.report(warnf(WarnUnusedParameter, u.decl.Pos,
				"parameter %q of command %q is never used", name, cmd.Name))
		}
	}
	if len(def.Mutations) == 0 && len(def.Emits) == 0 {
		c.report(warnf(WarnNoEffect, cmd.Pos,
			"command %q has no mutations and no emissions", cmd.Name))
	}
	return def, true
}

func (c *compilation) compilePolicies(prog *ast.Program) {
	for _, p := range prog.Policies {
		if c.policies[p.Name] != p {
			continue
		}
		// Policies see only the execution context.
		if !c.checkExpr(&p.Expr, p.Pos, nil, nil) {
			continue
		}
		c.outPolicies = append(c.outPolicies, ir.PolicyDef{Name: p.Name, Expr: p.Expr, Message: p.Message})
	}
}

func (c *compilation) compileEvents(prog *ast.Program) {
	for _, ev := range prog.Events {
		if c.events[ev.Name] != ev {
			continue
		}
		def := ir.EventDef{Name: ev.Name, Type: ev.Type}
		for _, f := range ev.Fields {
			def.Fields = append(def.Fields, ir.FieldDef{Name: f.Name, Type: f.Type})
		}
		c.outEvents = append(c.outEvents, def)
	}
}

func (c *compilation) warnUnusedPolicies(prog *ast.Program) {
	for _, p := range prog.Policies {
		if c.policies[p.Name] == p && !c.usedPolicies[p.Name] {
			c.report(warnf(WarnUnusedPolicy, p.Pos, "policy %q is never required by a command", p.Name))
		}
	}
}

// entityDef returns the already-compiled output definition for an entity.
// Entities compile before commands, so lookups against compiled properties
// (rather than raw declarations) see duplicate properties already dropped.
func (c *compilation) entityDef(name string) *ir.EntityDef {
	for i := range c.outEntities {
		if c.outEntities[i].Name == name {
			return &c.outEntities[i]
		}
	}
	return nil
}

// assemble orders the output deterministically: each kind sorted by name
// (commands by entity then name), declaration order preserved inside each
// definition. Equal source therefore always yields byte-equal IR.
func (c *compilation) assemble() *ir.IR {
	doc := &ir.IR{
		Version:  ir.IRVersion,
		Entities: c.outEntities,
		Commands: c.outCommands,
		Policies: c.outPolicies,
		Events:   c.outEvents,
	}
	sort.SliceStable(doc.Entities, func(i, j int) bool {
		return doc.Entities[i].Name < doc.Entities[j].Name
	})
	sort.SliceStable(doc.Commands, func(i, j int) bool {
		a, b := doc.Commands[i], doc.Commands[j]
		if a.Entity != b.Entity {
			return a.Entity < b.Entity
		}
		return a.Name < b.Name
	})
	sort.SliceStable(doc.Policies, func(i, j int) bool {
		return doc.Policies[i].Name < doc.Policies[j].Name
	})
	sort.SliceStable(doc.Events, func(i, j int) bool {
		return doc.Events[i].Name < doc.Events[j].Name
	})

	// Back-fill each entity's command name list from the surviving commands.
	for i := range doc.Entities {
		e := &doc.Entities[i]
		for _, cmd := range doc.Commands {
			if cmd.Entity == e.Name {
				e.Commands = append(e.Commands, cmd.Name)
			}
		}
	}
	return doc
}
