package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/eventops/manifest/internal/expr"
	"github.com/eventops/manifest/internal/ir"
	"github.com/eventops/manifest/internal/store"
)

// Invocation addresses one command call.
type Invocation struct {
	EntityName string
	InstanceID string
	// IdempotencyKey enables at-most-once effect when non-empty. Use
	// IdempotencyKey() to derive one deterministically.
	IdempotencyKey string
}

// RunCommand executes a command against an instance. Business rejections
// (policy denial, guard failure, blocking constraint) come back inside the
// CommandResult; a non-nil Go error means the command could not be
// attempted or persisted (unknown command, missing instance, store
// transport failure).
//
// The pipeline is terminal on the first blocking condition:
// policy, then guards in order, then all constraints, then mutations
// against the pre-mutation snapshot, then emissions against the
// post-mutation state, then one atomic store handoff.
func (e *Engine) RunCommand(ctx context.Context, commandName string, args ir.Object, inv Invocation) (*CommandResult, error) {
	cmd := e.doc.Command(commandName, inv.EntityName)
	if cmd == nil {
		return nil, fmt.Errorf("runtime: unknown command %q on entity %q", commandName, inv.EntityName)
	}
	entity := e.doc.Entity(cmd.Entity)
	if entity == nil {
		return nil, fmt.Errorf("runtime: command %q references unknown entity %q", commandName, cmd.Entity)
	}

	rec, err := e.provider.Get(ctx, e.ctx.TenantID, cmd.Entity, inv.InstanceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("runtime: load %s/%s: %w", cmd.Entity, inv.InstanceID, err)
	}

	// The snapshot is cloned once; every mutation expression reads this
	// frozen pre-mutation state, so assignment order cannot matter.
	snapshot := rec.Properties.Clone()

	callArgs, err := e.resolveArgs(cmd, args)
	if err != nil {
		return &CommandResult{Success: false, Err: err}, nil
	}
	scope := e.scope(snapshot, callArgs)

	// 1. Policy. On denial nothing else is evaluated.
	if cmd.Policy != "" {
		policy := e.doc.Policy(cmd.Policy)
		if policy == nil {
			return nil, fmt.Errorf("runtime: command %q requires unknown policy %q", commandName, cmd.Policy)
		}
		allowed, err := expr.Evaluate(policy.Expr, scope)
		if err != nil {
			return &CommandResult{Success: false, Err: fmt.Errorf("policy %q: %w", policy.Name, err)}, nil
		}
		if !ir.Truthy(allowed) {
			e.log.Debug("policy denied command",
				"tenant", e.ctx.TenantID,
				"command", commandName,
				"policy", policy.Name)
			return &CommandResult{
				Success: false,
				PolicyDenial: &PolicyDenial{
					PolicyName: policy.Name,
					Formatted:  policy.Expr.String(),
					Message:    policy.Message,
				},
			}, nil
		}
	}

	// 2. Guards, in order, first failure wins.
	for i := range cmd.Guards {
		v, err := expr.Evaluate(cmd.Guards[i].Expr, scope)
		if err != nil {
			return &CommandResult{Success: false, Err: fmt.Errorf("guard %d: %w", i+1, err)}, nil
		}
		if !ir.Truthy(v) {
			return &CommandResult{
				Success:      false,
				GuardFailure: &GuardFailure{Index: i + 1, Formatted: cmd.Guards[i].Expr.String()},
			}, nil
		}
	}

	// 3. All constraints, entity-level first, no short-circuit.
	constraints := make([]ir.ConstraintDef, 0, len(entity.Constraints)+len(cmd.Constraints))
	constraints = append(constraints, entity.Constraints...)
	constraints = append(constraints, cmd.Constraints...)
	outcomes, err := e.evalConstraints(constraints, scope)
	if err != nil {
		return &CommandResult{Success: false, Err: err, ConstraintOutcomes: outcomes}, nil
	}
	if Blocked(outcomes) {
		e.log.Debug("constraint blocked command",
			"tenant", e.ctx.TenantID,
			"command", commandName)
		return &CommandResult{Success: false, ConstraintOutcomes: outcomes}, nil
	}

	// 4. Mutations read the frozen snapshot, write the new state.
	next := snapshot.Clone()
	for i := range cmd.Mutations {
		m := &cmd.Mutations[i]
		v, err := expr.Evaluate(m.Expr, scope)
		if err != nil {
			return &CommandResult{
				Success:            false,
				Err:                fmt.Errorf("mutation %q: %w", m.Target, err),
				ConstraintOutcomes: outcomes,
			}, nil
		}
		next[m.Target] = v
	}

	// 5. Emissions see the post-mutation state.
	postScope := e.scope(next, callArgs)
	emittedAt := e.now()
	var emitted []Event
	var records []store.EventRecord
	for i := range cmd.Emits {
		em := &cmd.Emits[i]
		var payload ir.Value
		if em.Payload != nil {
			payload, err = expr.Evaluate(*em.Payload, postScope)
			if err != nil {
				return &CommandResult{
					Success:            false,
					Err:                fmt.Errorf("emit %q: %w", em.Event, err),
					ConstraintOutcomes: outcomes,
				}, nil
			}
		} else {
			payload = next.Clone()
		}
		emitted = append(emitted, Event{Name: em.Event, Payload: payload, Provenance: e.provenance})
		records = append(records, store.EventRecord{
			Name:       em.Event,
			InstanceID: inv.InstanceID,
			Payload:    payload,
			Provenance: e.provenance,
			EmittedAt:  emittedAt,
		})
	}

	// 6. Single atomic persistence handoff.
	newRec := &store.Record{ID: rec.ID, Properties: next, Version: rec.Version + 1}
	err = e.provider.Apply(ctx, e.ctx.TenantID, cmd.Entity, newRec, records, inv.IdempotencyKey)
	if errors.Is(err, store.ErrDuplicateInvocation) {
		e.log.Debug("replayed command",
			"tenant", e.ctx.TenantID,
			"command", commandName,
			"idempotencyKey", inv.IdempotencyKey)
		return &CommandResult{
			Success:            true,
			Replayed:           true,
			ConstraintOutcomes: outcomes,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("runtime: persist %s/%s: %w", cmd.Entity, inv.InstanceID, err)
	}

	e.log.Debug("command applied",
		"tenant", e.ctx.TenantID,
		"entity", cmd.Entity,
		"command", commandName,
		"instance", inv.InstanceID,
		"events", len(emitted))

	return &CommandResult{
		Success:            true,
		ConstraintOutcomes: outcomes,
		EmittedEvents:      emitted,
		Instance: &Instance{
			ID:         rec.ID,
			EntityName: cmd.Entity,
			TenantID:   e.ctx.TenantID,
			Properties: next,
			Version:    newRec.Version,
		},
	}, nil
}

// resolveArgs applies parameter defaults and checks required parameters.
func (e *Engine) resolveArgs(cmd *ir.CommandDef, args ir.Object) (ir.Object, error) {
	out := ir.Object{}
	if args != nil {
		out = args.Clone()
	}
	scope := e.scope(nil, out)
	for i := range cmd.Params {
		p := &cmd.Params[i]
		if _, set := out[p.Name]; set {
			continue
		}
		if p.Default != nil {
			v, err := expr.Evaluate(*p.Default, scope)
			if err != nil {
				return nil, fmt.Errorf("default for parameter %q: %w", p.Name, err)
			}
			out[p.Name] = v
			continue
		}
		if p.Required {
			return nil, fmt.Errorf("missing required argument %q for command %q", p.Name, cmd.Name)
		}
		out[p.Name] = ir.Null{}
	}
	return out, nil
}
