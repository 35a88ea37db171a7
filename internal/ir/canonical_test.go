package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalSortsKeys(t *testing.T) {
	obj := Object{
		"zebra": Number(1),
		"alpha": Number(2),
		"mango": Number(3),
	}

	data, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"mango":3,"zebra":1}`, string(data))
}

func TestMarshalCanonicalNoHTMLEscaping(t *testing.T) {
	data, err := MarshalCanonical(String("a < b && c > d"))
	require.NoError(t, err)
	assert.Equal(t, `"a < b && c > d"`, string(data))
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	// "é" as a single code point vs "e" + combining acute accent.
	composed := String("café")
	decomposed := String("café")

	a, err := MarshalCanonical(composed)
	require.NoError(t, err)
	b, err := MarshalCanonical(decomposed)
	require.NoError(t, err)

	assert.Equal(t, string(a), string(b), "NFC normalization must unify equivalent strings")
}

func TestMarshalCanonicalDeterministic(t *testing.T) {
	obj := Object{
		"nested": Object{"b": Number(2), "a": Number(1)},
		"list":   Array{String("x"), Null{}, Bool(true)},
	}

	first, err := MarshalCanonical(obj)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := MarshalCanonical(obj)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestHashWithDomainSeparation(t *testing.T) {
	data := []byte(`{"a":1}`)

	h1 := HashWithDomain(DomainIR, data)
	h2 := HashWithDomain(DomainIdempotency, data)

	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
	assert.NotEqual(t, h1, h2, "different domains must produce different hashes")
	assert.Equal(t, h1, HashWithDomain(DomainIR, data), "hash must be deterministic")
}
