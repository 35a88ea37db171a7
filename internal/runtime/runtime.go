// Package runtime executes compiled manifest commands against persisted
// entity instances.
//
// An Engine is scoped to one tenant context and one compiled IR. Command
// execution is a fixed pipeline: policy check, guards in order, all
// constraints, mutations against the pre-mutation snapshot, event
// emissions against the post-mutation state, then a single atomic
// persistence handoff to the store provider.
package runtime

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/eventops/manifest/internal/expr"
	"github.com/eventops/manifest/internal/ir"
	"github.com/eventops/manifest/internal/store"
)

// Context identifies the caller for the lifetime of an Engine. Every store
// access is keyed by TenantID; Role feeds policy expressions.
type Context struct {
	TenantID string
	UserID   string
	Role     string
}

// Engine runs commands for one tenant against one compiled manifest.
type Engine struct {
	doc      *ir.IR
	ctx      Context
	provider store.Provider

	now        func() time.Time
	newID      func() string
	log        *slog.Logger
	provenance string // content hash of doc
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects the time source behind now() and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator injects the generator behind uuid() and instance IDs.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New builds an Engine over a compiled IR. The IR is treated as immutable;
// its content hash is computed once and stamped on every emitted event.
func New(doc *ir.IR, ctx Context, provider store.Provider, opts ...Option) *Engine {
	e := &Engine{
		doc:      doc,
		ctx:      ctx,
		provider: provider,
		now:      time.Now,
		newID:    uuid.NewString,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if hash, err := ir.ContentHash(doc); err == nil {
		e.provenance = hash
	}
	return e
}

// IRSource resolves a named compiled manifest; *ircache.Cache implements it.
type IRSource interface {
	Get(name string) (*ir.IR, bool)
}

// NewFromSource builds an Engine from the current snapshot of a named
// manifest in an IR source. The engine keeps the snapshot it was built
// with; a later recompile in the source does not affect running engines.
func NewFromSource(src IRSource, name string, ctx Context, provider store.Provider, opts ...Option) (*Engine, error) {
	doc, ok := src.Get(name)
	if !ok {
		return nil, fmt.Errorf("runtime: manifest %q not loaded", name)
	}
	return New(doc, ctx, provider, opts...), nil
}

// Provenance returns the content hash of the engine's IR.
func (e *Engine) Provenance() string { return e.provenance }

// scope builds the evaluation environment for an instance snapshot and
// argument set. The context object mirrors the engine's tenant context.
func (e *Engine) scope(self, args ir.Object) expr.Scope {
	return expr.Scope{
		Self: self,
		Args: args,
		Context: ir.Object{
			"tenantId": ir.String(e.ctx.TenantID),
			"userId":   ir.String(e.ctx.UserID),
			"role":     ir.String(e.ctx.Role),
		},
		Now:   e.now,
		NewID: e.newID,
	}
}
