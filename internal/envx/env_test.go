package envx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupString_Set(t *testing.T) {
	t.Setenv("ENVX_TEST_STR", "value")

	v, ok := LookupString("ENVX_TEST_STR")
	require.True(t, ok)
	assert.Equal(t, "value", v)
}

func TestLookupString_Unset(t *testing.T) {
	_, ok := LookupString("ENVX_TEST_MISSING")
	assert.False(t, ok)
}

func TestLookupString_EmptyCountsAsUnset(t *testing.T) {
	t.Setenv("ENVX_TEST_EMPTY", "")

	_, ok := LookupString("ENVX_TEST_EMPTY")
	assert.False(t, ok)
}

func TestLookupInt_Set(t *testing.T) {
	t.Setenv("ENVX_TEST_INT", "42")

	n, ok := LookupInt("ENVX_TEST_INT")
	require.True(t, ok)
	assert.Equal(t, 42, n)
}

func TestLookupInt_Unset(t *testing.T) {
	_, ok := LookupInt("ENVX_TEST_INT_MISSING")
	assert.False(t, ok)
}

func TestLookupInt_MalformedPanics(t *testing.T) {
	t.Setenv("ENVX_TEST_BAD_INT", "forty-two")

	assert.Panics(t, func() {
		LookupInt("ENVX_TEST_BAD_INT")
	})
}
