// Package store defines the persistence boundary of the command runtime
// and ships two reference providers: an in-memory map and SQLite.
//
// The runtime hands the provider one atomic unit per successful command:
// the new instance state, the emitted events, and the idempotency key.
// Providers must persist all three as one logical write and enforce
// at-most-once effect per non-empty key. Every call is keyed by tenant;
// a record belonging to another tenant must be indistinguishable from an
// absent one.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/eventops/manifest/internal/ir"
)

var (
	// ErrNotFound is returned by Get when no record exists under the
	// tenant/entity/id key.
	ErrNotFound = errors.New("store: record not found")

	// ErrDuplicateInvocation is returned by Apply when the idempotency key
	// has already been applied. The write must have no effect.
	ErrDuplicateInvocation = errors.New("store: duplicate invocation")
)

// Record is the persisted state of one entity instance.
type Record struct {
	ID         string
	Properties ir.Object
	Version    int64
}

// EventRecord is one emitted domain event awaiting persistence.
type EventRecord struct {
	Name       string
	InstanceID string
	Payload    ir.Value
	Provenance string // content hash of the IR that produced the event
	EmittedAt  time.Time
}

// Provider is the storage contract the runtime executes against.
type Provider interface {
	// Get loads an instance record. Returns ErrNotFound when absent or
	// owned by a different tenant.
	Get(ctx context.Context, tenantID, entityName, id string) (*Record, error)

	// Put stores an instance record, overwriting any existing state.
	Put(ctx context.Context, tenantID, entityName string, rec *Record) error

	// Apply persists the instance state and appends the events as one
	// atomic unit. A non-empty idempotencyKey that was already applied
	// returns ErrDuplicateInvocation and leaves everything unchanged.
	Apply(ctx context.Context, tenantID, entityName string, rec *Record, events []EventRecord, idempotencyKey string) error
}
