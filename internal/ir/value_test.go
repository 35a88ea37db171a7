package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalValueKinds(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		want string
	}{
		{"null", Null{}, `null`},
		{"string", String("hello"), `"hello"`},
		{"integral number", Number(42), `42`},
		{"fractional number", Number(3.14), `3.14`},
		{"negative integral", Number(-7), `-7`},
		{"bool true", Bool(true), `true`},
		{"bool false", Bool(false), `false`},
		{"array", Array{Number(1), String("a")}, `[1,"a"]`},
		{"empty array", Array{}, `[]`},
		{"object sorted keys", Object{"b": Number(2), "a": Number(1)}, `{"a":1,"b":2}`},
		{"nested", Object{"x": Array{Object{"k": Bool(true)}}}, `{"x":[{"k":true}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalValue(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestUnmarshalValueRoundTrip(t *testing.T) {
	original := Object{
		"title":    String("Hello"),
		"priority": Number(1),
		"tags":     Array{String("a"), String("b")},
		"done":     Bool(false),
		"notes":    Null{},
	}

	data, err := MarshalValue(original)
	require.NoError(t, err)

	decoded, err := UnmarshalValue(data)
	require.NoError(t, err)

	assert.True(t, Equal(original, decoded), "round-trip must preserve value")
}

func TestFromGoConvertsJSONShapes(t *testing.T) {
	v, err := FromGo(map[string]any{
		"name":  "widget",
		"count": float64(3),
		"tags":  []any{"x", "y"},
		"meta":  nil,
	})
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, String("widget"), obj["name"])
	assert.Equal(t, Number(3), obj["count"])
	assert.Equal(t, Array{String("x"), String("y")}, obj["tags"])
	assert.Equal(t, Null{}, obj["meta"])
}

func TestFromGoRejectsUnsupportedTypes(t *testing.T) {
	_, err := FromGo(make(chan int))
	require.Error(t, err)
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		want bool
	}{
		{"null is falsy", Null{}, false},
		{"false is falsy", Bool(false), false},
		{"true is truthy", Bool(true), true},
		{"zero is falsy", Number(0), false},
		{"nonzero is truthy", Number(0.1), true},
		{"empty string is falsy", String(""), false},
		{"string is truthy", String("x"), true},
		{"empty array is falsy", Array{}, false},
		{"array is truthy", Array{Number(1)}, true},
		{"empty object is falsy", Object{}, false},
		{"object is truthy", Object{"k": Null{}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truthy(tt.in))
		})
	}
}

func TestEqualNoCrossKindCoercion(t *testing.T) {
	assert.False(t, Equal(Number(1), String("1")))
	assert.False(t, Equal(Bool(true), Number(1)))
	assert.True(t, Equal(Null{}, Null{}))
	assert.True(t, Equal(
		Object{"a": Array{Number(1)}},
		Object{"a": Array{Number(1)}},
	))
	assert.False(t, Equal(
		Object{"a": Number(1)},
		Object{"a": Number(1), "b": Number(2)},
	))
}
