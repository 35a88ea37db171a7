package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventops/manifest/internal/ir"
)

// openFunc builds a fresh provider plus an accessor for its applied events,
// so the contract suite runs identically against every implementation.
type openFunc func(t *testing.T) (Provider, func(t *testing.T, tenantID string) []EventRecord)

func providers() map[string]openFunc {
	return map[string]openFunc{
		"memory": func(t *testing.T) (Provider, func(*testing.T, string) []EventRecord) {
			m := NewMemory()
			return m, func(_ *testing.T, tenantID string) []EventRecord {
				return m.Events(tenantID)
			}
		},
		"sqlite": func(t *testing.T) (Provider, func(*testing.T, string) []EventRecord) {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "store.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s, func(t *testing.T, tenantID string) []EventRecord {
				evs, err := s.Events(context.Background(), tenantID)
				require.NoError(t, err)
				return evs
			}
		},
	}
}

func sampleRecord() *Record {
	return &Record{
		ID:      "task-1",
		Version: 1,
		Properties: ir.Object{
			"id":     ir.String("task-1"),
			"title":  ir.String("plate canapés"),
			"status": ir.String("open"),
			"tags":   ir.Array{ir.String("vip")},
			"nested": ir.Object{"a": ir.Number(1)},
		},
	}
}

func TestProviderContract(t *testing.T) {
	for name, open := range providers() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("put then get round-trips", func(t *testing.T) {
				p, _ := open(t)
				rec := sampleRecord()
				require.NoError(t, p.Put(ctx, "t1", "PrepTask", rec))

				got, err := p.Get(ctx, "t1", "PrepTask", "task-1")
				require.NoError(t, err)
				assert.Equal(t, rec.ID, got.ID)
				assert.Equal(t, rec.Version, got.Version)
				assert.True(t, ir.Equal(rec.Properties, got.Properties))
			})

			t.Run("get missing returns ErrNotFound", func(t *testing.T) {
				p, _ := open(t)
				_, err := p.Get(ctx, "t1", "PrepTask", "nope")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("cross-tenant read is indistinguishable from absent", func(t *testing.T) {
				p, _ := open(t)
				require.NoError(t, p.Put(ctx, "t1", "PrepTask", sampleRecord()))

				_, err := p.Get(ctx, "t2", "PrepTask", "task-1")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("put overwrites existing state", func(t *testing.T) {
				p, _ := open(t)
				require.NoError(t, p.Put(ctx, "t1", "PrepTask", sampleRecord()))

				updated := sampleRecord()
				updated.Properties["status"] = ir.String("claimed")
				updated.Version = 2
				require.NoError(t, p.Put(ctx, "t1", "PrepTask", updated))

				got, err := p.Get(ctx, "t1", "PrepTask", "task-1")
				require.NoError(t, err)
				assert.Equal(t, int64(2), got.Version)
				assert.Equal(t, ir.String("claimed"), got.Properties["status"])
			})

			t.Run("apply persists instance and events in order", func(t *testing.T) {
				p, events := open(t)
				rec := sampleRecord()
				rec.Version = 2
				emitted := []EventRecord{
					{Name: "TaskClaimed", InstanceID: "task-1", Payload: ir.Object{"station": ir.String("grill")}, Provenance: "abc", EmittedAt: time.Now()},
					{Name: "TaskAudited", InstanceID: "task-1", Payload: ir.Null{}, EmittedAt: time.Now()},
				}
				require.NoError(t, p.Apply(ctx, "t1", "PrepTask", rec, emitted, "key-1"))

				got, err := p.Get(ctx, "t1", "PrepTask", "task-1")
				require.NoError(t, err)
				assert.Equal(t, int64(2), got.Version)

				persisted := events(t, "t1")
				require.Len(t, persisted, 2)
				assert.Equal(t, "TaskClaimed", persisted[0].Name)
				assert.Equal(t, "TaskAudited", persisted[1].Name)
				assert.Equal(t, "abc", persisted[0].Provenance)
				assert.True(t, ir.Equal(ir.Object{"station": ir.String("grill")}, persisted[0].Payload))
			})

			t.Run("duplicate idempotency key has no effect", func(t *testing.T) {
				p, events := open(t)
				rec := sampleRecord()
				ev := []EventRecord{{Name: "TaskClaimed", InstanceID: "task-1", Payload: ir.Null{}, EmittedAt: time.Now()}}
				require.NoError(t, p.Apply(ctx, "t1", "PrepTask", rec, ev, "dup-key"))

				replay := sampleRecord()
				replay.Version = 99
				err := p.Apply(ctx, "t1", "PrepTask", replay, ev, "dup-key")
				assert.ErrorIs(t, err, ErrDuplicateInvocation)

				got, err := p.Get(ctx, "t1", "PrepTask", "task-1")
				require.NoError(t, err)
				assert.Equal(t, int64(1), got.Version, "replay must not overwrite state")
				assert.Len(t, events(t, "t1"), 1, "replay must not append events")
			})

			t.Run("empty idempotency key skips dedup", func(t *testing.T) {
				p, _ := open(t)
				rec := sampleRecord()
				require.NoError(t, p.Apply(ctx, "t1", "PrepTask", rec, nil, ""))
				rec.Version = 2
				require.NoError(t, p.Apply(ctx, "t1", "PrepTask", rec, nil, ""))

				got, err := p.Get(ctx, "t1", "PrepTask", "task-1")
				require.NoError(t, err)
				assert.Equal(t, int64(2), got.Version)
			})

			t.Run("events are tenant-scoped", func(t *testing.T) {
				p, events := open(t)
				ev := []EventRecord{{Name: "TaskClaimed", InstanceID: "task-1", Payload: ir.Null{}, EmittedAt: time.Now()}}
				require.NoError(t, p.Apply(ctx, "t1", "PrepTask", sampleRecord(), ev, ""))

				assert.Len(t, events(t, "t1"), 1)
				assert.Empty(t, events(t, "t2"))
			})
		})
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Put(ctx, "t1", "PrepTask", sampleRecord()))

	got, err := m.Get(ctx, "t1", "PrepTask", "task-1")
	require.NoError(t, err)
	got.Properties["status"] = ir.String("tampered")
	got.Properties["nested"].(ir.Object)["a"] = ir.Number(99)

	fresh, err := m.Get(ctx, "t1", "PrepTask", "task-1")
	require.NoError(t, err)
	assert.Equal(t, ir.String("open"), fresh.Properties["status"])
	assert.Equal(t, ir.Number(1), fresh.Properties["nested"].(ir.Object)["a"])
}

func TestSQLiteReopenKeepsState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "t1", "PrepTask", sampleRecord()))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "t1", "PrepTask", "task-1")
	require.NoError(t, err)
	assert.Equal(t, ir.String("open"), got.Properties["status"])
}
