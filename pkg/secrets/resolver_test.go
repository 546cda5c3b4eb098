package secrets

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveReturnsLiteralsUnchanged(t *testing.T) {
	r := New(Config{})
	got, err := r.Resolve("plain-password")
	require.NoError(t, err)
	assert.Equal(t, "plain-password", got)
}

func TestResolveReadsReferencedEnvVar(t *testing.T) {
	os.Setenv("SECRET_LOKI_PASSWORD", "s3kret")
	defer os.Unsetenv("SECRET_LOKI_PASSWORD")

	r := New(Config{})
	got, err := r.Resolve("secret://loki/password")
	require.NoError(t, err)
	assert.Equal(t, "s3kret", got)
}

func TestResolveErrorsWhenEnvVarMissing(t *testing.T) {
	r := New(Config{})
	_, err := r.Resolve("secret://missing/value")
	assert.Error(t, err)
}

func TestIsReference(t *testing.T) {
	assert.True(t, IsReference("secret://x"))
	assert.False(t, IsReference("x"))
}
