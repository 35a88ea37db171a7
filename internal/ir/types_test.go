package ir

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleIR builds a small but representative IR covering every definition
// kind: entity with properties and an entity constraint, a guarded command
// with mutations and emissions, a policy, and an event.
func sampleIR() *IR {
	return &IR{
		Version: IRVersion,
		Entities: []EntityDef{
			{
				Name: "PrepTask",
				Properties: []PropertyDef{
					{Name: "id", Type: "string", Required: true},
					{Name: "title", Type: "string", Default: Lit(String("untitled"))},
					{Name: "status", Type: "string", Default: Lit(String("open"))},
				},
				Constraints: []ConstraintDef{
					{
						Name:     "titleRequired",
						Severity: SeverityBlock,
						Expr:     *Binary(">", Call("length", *Member(Ident("self"), "title")), Lit(Number(0))),
						Message:  "Title must not be empty",
					},
				},
				Commands: []string{"claim"},
			},
		},
		Commands: []CommandDef{
			{
				Name:   "claim",
				Entity: "PrepTask",
				Params: []ParamDef{{Name: "stationId", Type: "string", Required: true}},
				Guards: []GuardDef{
					{Expr: *Binary("==", Member(Ident("self"), "status"), Lit(String("open")))},
				},
				Constraints: []ConstraintDef{
					{
						Name:     "stationSet",
						Severity: SeverityBlock,
						Expr:     *Binary(">", Call("length", *Ident("stationId")), Lit(Number(0))),
						Message:  "Station required",
					},
				},
				Policy: "adminOnly",
				Mutations: []Assignment{
					{Target: "status", Expr: *Lit(String("claimed"))},
				},
				Emits: []EventEmission{
					{
						Event: "TaskClaimed",
						Payload: &Expr{Kind: ExprObject, Fields: []ExprField{
							{Key: "taskId", Value: *Member(Ident("self"), "id")},
							{Key: "station", Value: *Ident("stationId")},
						}},
					},
				},
			},
		},
		Policies: []PolicyDef{
			{
				Name: "adminOnly",
				Expr: *Binary("or",
					Binary("==", Member(Ident("context"), "role"), Lit(String("admin"))),
					Binary("==", Member(Ident("context"), "role"), Lit(String("owner"))),
				),
				Message: "Admin access required",
			},
		},
		Events: []EventDef{
			{Name: "TaskClaimed", Fields: []FieldDef{
				{Name: "taskId", Type: "string"},
				{Name: "station", Type: "string"},
			}},
		},
	}
}

func TestMarshalDeterministic(t *testing.T) {
	doc := sampleIR()

	first, err := Marshal(doc)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := Marshal(doc)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again), "serialized IR must be byte-stable")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	doc := sampleIR()

	data, err := Marshal(doc)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)

	if diff := cmp.Diff(doc, decoded); diff != "" {
		t.Fatalf("round-trip mismatch (-want +got):\n%s", diff)
	}

	// A second round-trip through serialization must also be byte-identical.
	again, err := Marshal(decoded)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}

func TestContentHashStability(t *testing.T) {
	doc := sampleIR()

	h1, err := ContentHash(doc)
	require.NoError(t, err)
	h2, err := ContentHash(sampleIR())
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "identical IRs must hash identically")
	assert.Len(t, h1, 64)

	// Any semantic change must change the hash.
	changed := sampleIR()
	changed.Commands[0].Policy = ""
	h3, err := ContentHash(changed)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestIRLookupHelpers(t *testing.T) {
	doc := sampleIR()

	require.NotNil(t, doc.Entity("PrepTask"))
	assert.Nil(t, doc.Entity("Missing"))

	cmd := doc.Command("claim", "PrepTask")
	require.NotNil(t, cmd)
	assert.Equal(t, "PrepTask", cmd.Entity)
	assert.Nil(t, doc.Command("claim", "Other"))
	assert.NotNil(t, doc.Command("claim", ""), "unscoped lookup matches by name")

	require.NotNil(t, doc.Policy("adminOnly"))
	require.NotNil(t, doc.Event("TaskClaimed"))

	entity := doc.Entity("PrepTask")
	require.NotNil(t, entity.Property("title"))
	assert.Nil(t, entity.Property("missing"))
}

func TestParseSeverity(t *testing.T) {
	for _, valid := range []string{"block", "warn", "info"} {
		sev, err := ParseSeverity(valid)
		require.NoError(t, err)
		assert.Equal(t, Severity(valid), sev)
	}

	_, err := ParseSeverity("ok")
	require.Error(t, err)

	assert.True(t, SeverityBlock.Blocks())
	assert.False(t, SeverityWarn.Blocks())
	assert.False(t, SeverityInfo.Blocks())
}

func TestExprString(t *testing.T) {
	tests := []struct {
		name string
		expr *Expr
		want string
	}{
		{
			"comparison",
			Binary("==", Member(Ident("self"), "status"), Lit(String("open"))),
			`self.status == "open"`,
		},
		{
			"boolean combinator",
			Binary("or", Ident("a"), Unary("not", Ident("b"))),
			"a or not b",
		},
		{
			"call",
			Binary(">", Call("length", *Ident("title")), Lit(Number(0))),
			"length(title) > 0",
		},
		{
			"ternary",
			&Expr{Kind: ExprConditional, Cond: Ident("x"), Then: Lit(String("y")), Else: Lit(String("n"))},
			`x ? "y" : "n"`,
		},
		{
			"null literal",
			Lit(Null{}),
			"null",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.expr.String())
		})
	}
}
