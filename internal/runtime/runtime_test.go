package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eventops/manifest/internal/compiler"
	"github.com/eventops/manifest/internal/ir"
	"github.com/eventops/manifest/internal/store"
	"github.com/eventops/manifest/internal/testutil"
)

// kitchenManifest is the shared fixture: a prep-board entity with entity-
// and command-level constraints, a guarded admin-only command, and a
// command whose guard would divide by zero if a denied policy ever leaked
// into guard evaluation.
const kitchenManifest = `
entity PrepTask {
  property required id: string
  property title: string = "untitled"
  property status: string = "open"
  property station: string = ""
  property priority: number = 1

  constraint titleRequired: length(self.title) > 0 "Title must not be empty"
  constraint warnHighPriority:warn self.priority <= 3 {
    messageTemplate: "Priority {priority} is unusually high"
    details: { priority: self.priority }
  }

  command claim(stationId: string) requires adminOnly {
    guard self.status == "open"
    guard self.station == ""
    constraint stationSet: length(stationId) > 0 "Station required"
    mutate status = "claimed"
    mutate station = stationId
    emit TaskClaimed with { taskId: self.id, station: stationId, at: now() }
  }

  command retitle(title: string) {
    constraint newTitleSet: length(title) > 0 "New title must not be empty"
    mutate title = title
    emit TaskUpdated
  }

  command swap() {
    mutate title = self.status
    mutate status = self.title
  }

  command corrupt() {
    mutate priority = self.priority / 0
  }

  command poisoned() requires adminOnly {
    guard self.priority / 0 > 1
    mutate status = "never"
  }
}

entity Station {
  property required id: string
  property required name: string

  constraint nameSet: length(self.name) > 0 "Name required"
}

policy adminOnly: context.role == "admin" or context.role == "owner" "Admin access required"

event TaskClaimed: { taskId: string, station: string, at: string }
event TaskUpdated: { taskId: string, title: string }
`

func compileKitchen(t *testing.T) *ir.IR {
	t.Helper()
	doc, diags := compiler.CompileToIR(kitchenManifest)
	require.NotNil(t, doc, "compile failed: %v", diags)
	require.False(t, compiler.HasErrors(diags), "compile failed: %v", diags)
	return doc
}

// fixedBase is the deterministic clock epoch shared by the runtime tests.
var fixedBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestEngine builds an engine over an in-memory store with a frozen
// clock and sequential IDs.
func newTestEngine(t *testing.T, ctx Context, provider store.Provider) *Engine {
	t.Helper()
	clock := testutil.NewClock(fixedBase, 0)
	ids := testutil.NewIDGenerator("gen")
	return New(compileKitchen(t), ctx, provider,
		WithClock(clock.Now),
		WithIDGenerator(ids.Next),
	)
}

func adminContext() Context {
	return Context{TenantID: "tenant-a", UserID: "user-1", Role: "admin"}
}
