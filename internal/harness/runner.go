// Package harness runs declarative conformance scenarios against the real
// compile-and-execute pipeline. Each scenario compiles a manifest, builds a
// runtime over an in-memory store with a deterministic clock and ID
// generator, creates the setup instances, and checks every command step's
// outcome against its expectation.
package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventops/manifest/internal/compiler"
	"github.com/eventops/manifest/internal/ir"
	"github.com/eventops/manifest/internal/runtime"
	"github.com/eventops/manifest/internal/store"
	"github.com/eventops/manifest/internal/testutil"
)

// baseTime anchors the deterministic clock; every Now() call advances it by
// one second so event timestamps within a scenario are distinct but stable.
var baseTime = time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

// RunFile loads and runs one scenario file as a subtest named after the
// scenario.
func RunFile(t *testing.T, path string) {
	t.Helper()
	sc, err := LoadScenario(path)
	require.NoError(t, err)
	t.Run(sc.Name, func(t *testing.T) {
		Run(t, sc, filepath.Dir(path))
	})
}

// Run executes a loaded scenario. Manifest paths resolve against baseDir.
func Run(t *testing.T, sc *Scenario, baseDir string) {
	t.Helper()

	source, err := os.ReadFile(filepath.Join(baseDir, sc.Manifest))
	require.NoError(t, err, "scenario manifest must be readable")

	doc, diags := compiler.CompileToIR(string(source))
	require.False(t, compiler.HasErrors(diags), "scenario manifest must compile: %v", diags)
	require.NotNil(t, doc)

	clock := testutil.NewClock(baseTime, time.Second)
	ids := testutil.NewIDGenerator("inst")
	eng := runtime.New(doc, runtime.Context{
		TenantID: sc.Context.TenantID,
		UserID:   sc.Context.UserID,
		Role:     sc.Context.Role,
	}, store.NewMemory(),
		runtime.WithClock(clock.Now),
		runtime.WithIDGenerator(ids.Next),
	)

	ctx := context.Background()
	for i, setup := range sc.Setup {
		values := ir.Object{}
		if setup.Values != nil {
			v, err := ir.FromGo(setup.Values)
			require.NoError(t, err, "setup %d values", i+1)
			obj, ok := v.(ir.Object)
			require.True(t, ok, "setup %d values must decode to an object", i+1)
			values = obj
		}
		_, err := eng.CreateInstance(ctx, setup.Entity, values)
		require.NoError(t, err, "setup %d: create %s", i+1, setup.Entity)
	}

	for i, step := range sc.Steps {
		runStep(t, eng, ctx, i+1, step)
	}
}

func runStep(t *testing.T, eng *runtime.Engine, ctx context.Context, n int, step CommandStep) {
	t.Helper()

	args := ir.Object{}
	if step.Args != nil {
		v, err := ir.FromGo(step.Args)
		require.NoError(t, err, "step %d args", n)
		obj, ok := v.(ir.Object)
		require.True(t, ok, "step %d args must decode to an object", n)
		args = obj
	}

	res, err := eng.RunCommand(ctx, step.Command, args, runtime.Invocation{
		EntityName:     step.Entity,
		InstanceID:     step.Instance,
		IdempotencyKey: step.IdempotencyKey,
	})
	require.NoError(t, err, "step %d: %s.%s", n, step.Entity, step.Command)
	require.NotNil(t, res)

	want := step.Expect
	assert.Equal(t, want.Success, res.Success, "step %d success", n)
	assert.Equal(t, want.Replayed, res.Replayed, "step %d replayed", n)

	if want.Policy != "" {
		if assert.NotNil(t, res.PolicyDenial, "step %d expects a policy denial", n) {
			assert.Equal(t, want.Policy, res.PolicyDenial.PolicyName, "step %d policy", n)
		}
	} else {
		assert.Nil(t, res.PolicyDenial, "step %d expects no policy denial", n)
	}

	if want.GuardIndex != 0 {
		if assert.NotNil(t, res.GuardFailure, "step %d expects a guard failure", n) {
			assert.Equal(t, want.GuardIndex, res.GuardFailure.Index, "step %d guard index", n)
		}
	} else {
		assert.Nil(t, res.GuardFailure, "step %d expects no guard failure", n)
	}

	if want.BlockedBy != "" {
		found := false
		for _, o := range res.ConstraintOutcomes {
			if o.Name == want.BlockedBy {
				found = true
				assert.False(t, o.Passed, "step %d: constraint %q must fail", n, o.Name)
				assert.True(t, o.Severity.Blocks(), "step %d: constraint %q must block", n, o.Name)
			}
		}
		assert.True(t, found, "step %d: constraint %q must be evaluated", n, want.BlockedBy)
	}

	if want.ErrorContains != "" {
		if assert.Error(t, res.Err, "step %d expects an evaluation error", n) {
			assert.Contains(t, res.Err.Error(), want.ErrorContains, "step %d error", n)
		}
	} else {
		assert.NoError(t, res.Err, "step %d evaluation error", n)
	}

	if want.Events != nil {
		names := make([]string, 0, len(res.EmittedEvents))
		for _, ev := range res.EmittedEvents {
			names = append(names, ev.Name)
		}
		assert.Equal(t, want.Events, names, "step %d emitted events", n)
	}

	if want.Properties != nil {
		inst, err := eng.GetInstance(ctx, step.Entity, step.Instance)
		require.NoError(t, err, "step %d: reload %s/%s", n, step.Entity, step.Instance)
		for key, wantVal := range want.Properties {
			got, present := inst.Properties[key]
			if !assert.True(t, present, "step %d: property %q must exist", n, key) {
				continue
			}
			wantIR, err := ir.FromGo(wantVal)
			require.NoError(t, err, "step %d: property %q expectation", n, key)
			assert.True(t, ir.Equal(wantIR, got),
				"step %d: property %q = %v, want %v", n, key, got, wantVal)
		}
	}
}
