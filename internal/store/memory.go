package store

import (
	"context"
	"sync"
)

// Memory is a map-backed Provider for tests and embedded use. Records are
// deep-copied on the way in and out so callers cannot alias internal state.
type Memory struct {
	mu        sync.RWMutex
	instances map[memKey]*Record
	events    []appliedEvent
	dedup     map[string]bool
}

type memKey struct {
	tenantID string
	entity   string
	id       string
}

type appliedEvent struct {
	tenantID string
	entity   string
	event    EventRecord
}

// NewMemory returns an empty in-memory provider.
func NewMemory() *Memory {
	return &Memory{
		instances: make(map[memKey]*Record),
		dedup:     make(map[string]bool),
	}
}

func (m *Memory) Get(_ context.Context, tenantID, entityName, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.instances[memKey{tenantID, entityName, id}]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *Memory) Put(_ context.Context, tenantID, entityName string, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.instances[memKey{tenantID, entityName, rec.ID}] = cloneRecord(rec)
	return nil
}

func (m *Memory) Apply(_ context.Context, tenantID, entityName string, rec *Record, events []EventRecord, idempotencyKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if idempotencyKey != "" {
		if m.dedup[idempotencyKey] {
			return ErrDuplicateInvocation
		}
		m.dedup[idempotencyKey] = true
	}
	m.instances[memKey{tenantID, entityName, rec.ID}] = cloneRecord(rec)
	for _, ev := range events {
		m.events = append(m.events, appliedEvent{tenantID: tenantID, entity: entityName, event: ev})
	}
	return nil
}

// Events returns the events applied for a tenant, in emission order.
func (m *Memory) Events(tenantID string) []EventRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []EventRecord
	for _, ae := range m.events {
		if ae.tenantID == tenantID {
			out = append(out, ae.event)
		}
	}
	return out
}

func cloneRecord(rec *Record) *Record {
	out := &Record{ID: rec.ID, Version: rec.Version}
	if rec.Properties != nil {
		out.Properties = rec.Properties.Clone()
	}
	return out
}
