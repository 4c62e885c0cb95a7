package oauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegotiateScopeSubset(t *testing.T) {
	granted, err := NegotiateScope("read write", []string{"read", "write", "admin"}, "read")
	require.NoError(t, err)
	assert.Equal(t, []string{"read", "write"}, granted)
}

func TestNegotiateScopeEmptyFallsBackToDefault(t *testing.T) {
	granted, err := NegotiateScope("", []string{"read", "write"}, "read")
	require.NoError(t, err)
	assert.Equal(t, []string{"read"}, granted)
}

func TestNegotiateScopeEmptyWithoutDefaultGrantsRegisteredSet(t *testing.T) {
	granted, err := NegotiateScope("", []string{"tasks", "projects"}, "read")
	require.NoError(t, err)
	assert.Equal(t, []string{"tasks", "projects"}, granted)
}

func TestNegotiateScopeRejectsUnregistered(t *testing.T) {
	_, err := NegotiateScope("read admin", []string{"read"}, "read")
	oe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeInvalidScope, oe.Code)
}

func TestNegotiateScopeNeverWidens(t *testing.T) {
	// Requesting a strict subset must not grant the rest of the set.
	granted, err := NegotiateScope("read", []string{"read", "write", "admin"}, "read")
	require.NoError(t, err)
	assert.Equal(t, []string{"read"}, granted)
}

func TestParseScopeDropsExtraWhitespace(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, ParseScope("  a   b  "))
	assert.Nil(t, ParseScope("   "))
}

func TestScopesContain(t *testing.T) {
	granted := []string{"read", "write"}
	assert.True(t, ScopesContain(granted, []string{"read"}))
	assert.True(t, ScopesContain(granted, nil))
	assert.False(t, ScopesContain(granted, []string{"admin"}))
	assert.False(t, ScopesContain(nil, []string{"read"}))
}
