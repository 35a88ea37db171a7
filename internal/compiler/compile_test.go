package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventops/manifest/internal/ir"
)

const demoManifest = `
entity PrepTask {
  property required id: string
  property title: string = "untitled"
  property status: string = "open"
  property station: string = ""

  constraint titleRequired: length(self.title) > 0 "Title must not be empty"
  constraint warnLongTitle:warn length(self.title) <= 80 {
    messageTemplate: "Title '{title}' is long"
    details: { title: self.title }
  }

  command claim(stationId: string) requires adminOnly {
    guard self.status == "open"
    constraint stationSet: length(stationId) > 0 "Station required"
    mutate status = "claimed"
    mutate station = stationId
    emit TaskClaimed with { taskId: self.id, station: stationId }
  }
}

policy adminOnly: context.role == "admin" or context.role == "owner" "Admin access required"

event TaskClaimed: { taskId: string, station: string }
`

func errorCodes(diags []Diagnostic) []string {
	var codes []string
	for _, d := range diags {
		if d.Severity == DiagError {
			codes = append(codes, d.Code)
		}
	}
	return codes
}

func TestCompileDemoManifest(t *testing.T) {
	doc, diags := CompileToIR(demoManifest)
	require.NotNil(t, doc)
	require.False(t, HasErrors(diags), "unexpected errors: %v", diags)

	assert.Equal(t, ir.IRVersion, doc.Version)

	entity := doc.Entity("PrepTask")
	require.NotNil(t, entity)
	assert.Len(t, entity.Properties, 4)
	assert.Equal(t, []string{"claim"}, entity.Commands)

	require.Len(t, entity.Constraints, 2)
	assert.Equal(t, ir.SeverityBlock, entity.Constraints[0].Severity, "severity defaults to block")
	assert.Equal(t, ir.SeverityWarn, entity.Constraints[1].Severity)

	cmd := doc.Command("claim", "PrepTask")
	require.NotNil(t, cmd)
	assert.Equal(t, "adminOnly", cmd.Policy)
	assert.Len(t, cmd.Guards, 1)
	assert.Len(t, cmd.Constraints, 1)
	assert.Len(t, cmd.Mutations, 2)
	assert.Len(t, cmd.Emits, 1)

	require.NotNil(t, doc.Policy("adminOnly"))
	require.NotNil(t, doc.Event("TaskClaimed"))
}

func TestCompileDeterministic(t *testing.T) {
	first, diags := CompileToIR(demoManifest)
	require.False(t, HasErrors(diags))
	firstBytes, err := ir.Marshal(first)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, _ := CompileToIR(demoManifest)
		againBytes, err := ir.Marshal(again)
		require.NoError(t, err)
		assert.Equal(t, string(firstBytes), string(againBytes),
			"equal source must produce byte-equal serialized IR")
	}
}

func TestCompileUndeclaredEntity(t *testing.T) {
	// The command depends on a missing entity: it is excluded with a
	// diagnostic naming the entity, while the independent event compiles.
	src := `
command ship() on Warehouse {
  mutate status = "shipped"
}

event Shipped: { orderId: string }
`
	doc, diags := CompileToIR(src)
	require.NotNil(t, doc)
	assert.Contains(t, errorCodes(diags), ErrUnknownEntity)

	found := false
	for _, d := range diags {
		if d.Code == ErrUnknownEntity {
			assert.Contains(t, d.Message, "Warehouse")
			found = true
		}
	}
	require.True(t, found)

	assert.Empty(t, doc.Commands)
	require.NotNil(t, doc.Event("Shipped"))
}

func TestCompileOnlyInvalidContentYieldsNil(t *testing.T) {
	doc, diags := CompileToIR(`command ship() on Warehouse { mutate x = 1 }`)
	assert.Nil(t, doc, "a manifest whose every declaration fails compiles to nil")
	assert.True(t, HasErrors(diags))
}

func TestCompileParseFailureYieldsNil(t *testing.T) {
	doc, diags := CompileToIR(`{{{{`)
	assert.Nil(t, doc)
	require.NotEmpty(t, diags)
	assert.Equal(t, ErrParse, diags[0].Code)
	assert.Greater(t, diags[0].Pos.Line, 0)
}

func TestCompileEmptySource(t *testing.T) {
	doc, diags := CompileToIR("")
	require.NotNil(t, doc)
	assert.Empty(t, diags)
	assert.Empty(t, doc.Entities)
}

func TestCompileDuplicates(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{
			"duplicate entity",
			`entity A { property x: string }
			 entity A { property y: string }`,
			ErrDuplicateEntity,
		},
		{
			"duplicate property",
			`entity A { property x: string
			            property x: number }`,
			ErrDuplicateProperty,
		},
		{
			"duplicate command",
			`entity A { property x: string
			   command go() { mutate x = "1" }
			   command go() { mutate x = "2" } }`,
			ErrDuplicateCommand,
		},
		{
			"duplicate policy",
			`policy p: true
			 policy p: false`,
			ErrDuplicatePolicy,
		},
		{
			"duplicate event",
			`event E: { a: string }
			 event E: { b: string }`,
			ErrDuplicateEvent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, diags := CompileToIR(tt.src)
			assert.Contains(t, errorCodes(diags), tt.code)
			require.NotNil(t, doc, "first declaration survives the duplicate")
		})
	}
}

func TestCompileDuplicateKeepsFirst(t *testing.T) {
	src := `
entity A { property x: string = "first" }
entity A { property x: string = "second" }
`
	doc, _ := CompileToIR(src)
	require.NotNil(t, doc)
	require.Len(t, doc.Entities, 1)
	require.NotNil(t, doc.Entities[0].Property("x").Default)
	assert.Equal(t, ir.String("first"), doc.Entities[0].Property("x").Default.Value)
}

func TestCompileReferenceErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{
			"unknown mutation target",
			`entity A { property x: string
			   command go() { mutate missing = "v" } }`,
			ErrUnknownMutationTarget,
		},
		{
			"unknown policy",
			`entity A { property x: string
			   command go() requires ghost { mutate x = "v" } }`,
			ErrUnknownPolicy,
		},
		{
			"unknown event",
			`entity A { property x: string
			   command go() { emit Ghost } }`,
			ErrUnknownEvent,
		},
		{
			"unknown property on self",
			`entity A { property x: string
			   constraint c: self.ghost == "v" }`,
			ErrUnknownProperty,
		},
		{
			"unknown parameter via args",
			`entity A { property x: string
			   command go(a: string) { guard args.ghost == "v"
			     mutate x = a } }`,
			ErrUnknownParameter,
		},
		{
			"unknown bare identifier",
			`entity A { property x: string
			   command go() { guard ghost == "v"
			     mutate x = "v" } }`,
			ErrUnknownParameter,
		},
		{
			"unknown builtin",
			`entity A { property x: string
			   constraint c: checksum(self.x) != null }`,
			ErrUnknownBuiltin,
		},
		{
			"builtin arity",
			`entity A { property x: string
			   constraint c: length() > 0 }`,
			ErrUnknownBuiltin,
		},
		{
			"non-constant default",
			`entity A { property x: string
			   property y: string = self.x }`,
			ErrNonConstantDefault,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, diags := CompileToIR(tt.src)
			assert.Contains(t, errorCodes(diags), tt.code)
		})
	}
}

func TestCompileLocalizedFailure(t *testing.T) {
	// The bad command is excluded; the entity, its other command, and the
	// rest of the manifest still compile.
	src := `
entity Task {
  property required id: string
  property status: string = "open"

  command good() {
    mutate status = "done"
  }

  command bad() {
    mutate missing = "x"
  }
}
`
	doc, diags := CompileToIR(src)
	require.NotNil(t, doc)
	assert.Contains(t, errorCodes(diags), ErrUnknownMutationTarget)

	entity := doc.Entity("Task")
	require.NotNil(t, entity)
	assert.Equal(t, []string{"good"}, entity.Commands, "only the valid command is listed")
	assert.NotNil(t, doc.Command("good", "Task"))
	assert.Nil(t, doc.Command("bad", "Task"))
}

func TestCompileInvalidConstraintDropsOnlyConstraint(t *testing.T) {
	src := `
entity Task {
  property required id: string
  constraint bad: self.ghost == 1
  constraint good: length(self.id) > 0
}
`
	doc, diags := CompileToIR(src)
	require.NotNil(t, doc)
	assert.True(t, HasErrors(diags))

	entity := doc.Entity("Task")
	require.NotNil(t, entity)
	require.Len(t, entity.Constraints, 1)
	assert.Equal(t, "good", entity.Constraints[0].Name)
}

func TestCompileNowUuidDefaultsAllowed(t *testing.T) {
	src := `
entity Task {
  property required id: string = uuid()
  property createdAt: string = now()
}
`
	doc, diags := CompileToIR(src)
	require.NotNil(t, doc)
	assert.False(t, HasErrors(diags), "diags: %v", diags)
}

func TestCompileWarnings(t *testing.T) {
	src := `
entity Task {
  property required id: string
  property status: string = "open"

  command idle(unusedArg: string) {
    guard self.status == "open"
  }
}

policy lonely: context.role == "admin"
`
	doc, diags := CompileToIR(src)
	require.NotNil(t, doc)
	assert.False(t, HasErrors(diags), "warnings must not be errors: %v", diags)

	var codes []string
	for _, d := range diags {
		require.Equal(t, DiagWarning, d.Severity)
		codes = append(codes, d.Code)
	}
	assert.Contains(t, codes, WarnUnusedParameter)
	assert.Contains(t, codes, WarnUnusedPolicy)
	assert.Contains(t, codes, WarnNoEffect)

	// Warnings never exclude declarations.
	assert.NotNil(t, doc.Command("idle", "Task"))
	assert.NotNil(t, doc.Policy("lonely"))
}

func TestCompileEntityOrderingIsSorted(t *testing.T) {
	src := `
entity Zebra { property x: string }
entity Alpha { property x: string }
entity Mango { property x: string }
`
	doc, diags := CompileToIR(src)
	require.NotNil(t, doc)
	require.False(t, HasErrors(diags))

	var names []string
	for _, e := range doc.Entities {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"Alpha", "Mango", "Zebra"}, names)
}
