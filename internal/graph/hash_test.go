package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHash_Stable(t *testing.T) {
	doc := validDocument()
	first, err := ContentHash(doc)
	require.NoError(t, err)
	require.Len(t, first, 64)

	for i := 0; i < 20; i++ {
		again, err := ContentHash(doc)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestContentHash_DistinguishesContent(t *testing.T) {
	a := validDocument()
	b := validDocument()
	b.Nodes[0].Label = "billing service"

	ha, err := ContentHash(a)
	require.NoError(t, err)
	hb, err := ContentHash(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}

func TestContentHash_EqualForClones(t *testing.T) {
	doc := validDocument()
	clone := doc.Clone()

	ha, err := ContentHash(doc)
	require.NoError(t, err)
	hb, err := ContentHash(clone)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestHashBytes_DomainSeparated(t *testing.T) {
	// The domain prefix means HashBytes never collides with a plain
	// SHA-256 of the same payload.
	h1 := HashBytes([]byte("{}"))
	h2 := HashBytes([]byte("{}"))
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	assert.NotEqual(t, HashBytes([]byte("{} ")), h1)
}
