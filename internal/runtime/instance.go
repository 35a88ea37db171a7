package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/eventops/manifest/internal/expr"
	"github.com/eventops/manifest/internal/ir"
	"github.com/eventops/manifest/internal/store"
)

// ErrNotFound is returned by GetInstance for an absent instance. An
// instance owned by another tenant is indistinguishable from an absent one.
var ErrNotFound = errors.New("runtime: instance not found")

// Instance is one persisted entity instance, scoped to a tenant.
type Instance struct {
	ID         string    `json:"id"`
	EntityName string    `json:"entityName"`
	TenantID   string    `json:"tenantId"`
	Properties ir.Object `json:"properties"`
	Version    int64     `json:"version"`
}

// ConstraintError reports entity constraints that blocked instance
// creation. Outcomes holds every evaluated constraint, passed or not.
type ConstraintError struct {
	EntityName string
	Outcomes   []ConstraintOutcome
}

func (e *ConstraintError) Error() string {
	for _, o := range e.Outcomes {
		if !o.Passed && o.Severity.Blocks() {
			return fmt.Sprintf("runtime: constraint %q blocked creating %s: %s", o.Name, e.EntityName, o.Message)
		}
	}
	return fmt.Sprintf("runtime: constraints blocked creating %s", e.EntityName)
}

// CreateInstance materializes a new instance of an entity: property
// defaults are evaluated, a UUID is assigned when the values carry no id,
// the tenant is stamped from the engine context, entity constraints are
// checked, and the result is persisted. A blocking constraint failure
// returns a *ConstraintError and persists nothing.
func (e *Engine) CreateInstance(ctx context.Context, entityName string, values ir.Object) (*Instance, error) {
	entity := e.doc.Entity(entityName)
	if entity == nil {
		return nil, fmt.Errorf("runtime: unknown entity %q", entityName)
	}

	props := ir.Object{}
	if values != nil {
		props = values.Clone()
	}

	// The id is assigned before defaults so a required id property never
	// trips the missing-required check.
	id, ok := props["id"].(ir.String)
	if !ok || string(id) == "" {
		id = ir.String(e.newID())
		props["id"] = id
	}

	scope := e.scope(props, nil)
	for i := range entity.Properties {
		p := &entity.Properties[i]
		if _, set := props[p.Name]; set {
			continue
		}
		if p.Default != nil {
			v, err := expr.Evaluate(*p.Default, scope)
			if err != nil {
				return nil, fmt.Errorf("runtime: default for %s.%s: %w", entityName, p.Name, err)
			}
			props[p.Name] = v
			continue
		}
		if p.Required {
			return nil, fmt.Errorf("runtime: missing required property %q for entity %s", p.Name, entityName)
		}
	}

	outcomes, err := e.evalConstraints(entity.Constraints, e.scope(props, nil))
	if err != nil {
		return nil, fmt.Errorf("runtime: entity constraint on %s: %w", entityName, err)
	}
	if Blocked(outcomes) {
		return nil, &ConstraintError{EntityName: entityName, Outcomes: outcomes}
	}

	inst := &Instance{
		ID:         string(id),
		EntityName: entityName,
		TenantID:   e.ctx.TenantID,
		Properties: props,
		Version:    1,
	}
	rec := &store.Record{ID: inst.ID, Properties: props, Version: 1}
	if err := e.provider.Put(ctx, e.ctx.TenantID, entityName, rec); err != nil {
		return nil, fmt.Errorf("runtime: persist %s/%s: %w", entityName, inst.ID, err)
	}

	e.log.Debug("instance created",
		"tenant", e.ctx.TenantID,
		"entity", entityName,
		"id", inst.ID)
	return inst, nil
}

// GetInstance loads an instance by id, scoped to the engine's tenant.
func (e *Engine) GetInstance(ctx context.Context, entityName, id string) (*Instance, error) {
	if e.doc.Entity(entityName) == nil {
		return nil, fmt.Errorf("runtime: unknown entity %q", entityName)
	}
	rec, err := e.provider.Get(ctx, e.ctx.TenantID, entityName, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("runtime: load %s/%s: %w", entityName, id, err)
	}
	return &Instance{
		ID:         rec.ID,
		EntityName: entityName,
		TenantID:   e.ctx.TenantID,
		Properties: rec.Properties,
		Version:    rec.Version,
	}, nil
}

// evalConstraints evaluates a constraint list without short-circuiting,
// producing one outcome per constraint. Only evaluation errors abort.
func (e *Engine) evalConstraints(constraints []ir.ConstraintDef, scope expr.Scope) ([]ConstraintOutcome, error) {
	var outcomes []ConstraintOutcome
	for i := range constraints {
		c := &constraints[i]
		v, err := expr.Evaluate(c.Expr, scope)
		if err != nil {
			return outcomes, fmt.Errorf("constraint %q: %w", c.Name, err)
		}

		outcome := ConstraintOutcome{Name: c.Name, Severity: c.Severity, Passed: ir.Truthy(v)}
		if !outcome.Passed {
			details := make(map[string]ir.Value, len(c.Details))
			for _, f := range c.Details {
				dv, err := expr.Evaluate(f.Value, scope)
				if err != nil {
					return outcomes, fmt.Errorf("constraint %q detail %q: %w", c.Name, f.Key, err)
				}
				details[f.Key] = dv
			}
			if len(details) > 0 {
				outcome.Details = details
			}
			if c.Message != "" {
				outcome.Message = expr.Interpolate(c.Message, details, scope)
			}
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}
