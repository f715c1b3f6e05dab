package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	box := NewBox("k3y")

	sealed, err := box.Seal("ya29.access-token")
	require.NoError(t, err)
	assert.NotEqual(t, "ya29.access-token", sealed)
	assert.Contains(t, sealed, prefix)

	plain, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "ya29.access-token", plain)
}

func TestPassthroughWithoutKey(t *testing.T) {
	box := NewBox("")

	sealed, err := box.Seal("token")
	require.NoError(t, err)
	assert.Equal(t, "token", sealed)

	plain, err := box.Open("token")
	require.NoError(t, err)
	assert.Equal(t, "token", plain)
}

func TestOpenWithWrongKey(t *testing.T) {
	sealed, err := NewBox("one").Seal("token")
	require.NoError(t, err)

	_, err = NewBox("two").Open(sealed)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestOpenSealedWithoutKey(t *testing.T) {
	sealed, err := NewBox("one").Seal("token")
	require.NoError(t, err)

	_, err = NewBox("").Open(sealed)
	assert.Error(t, err)
}
