package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	first, err := gen.NewID()
	require.NoError(t, err)
	second, err := gen.NewID()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	parsed, err := goUUID.Parse(first)
	require.NoError(t, err)
	assert.Equal(t, goUUID.Version(7), parsed.Version())
	assert.True(t, Valid(second))
}

func TestValid(t *testing.T) {
	t.Parallel()

	assert.False(t, Valid("run-1"))
	assert.False(t, Valid(""))
	assert.True(t, Valid("018f3a6e-7b52-7cc1-9e4f-3f1f2c9d5a10"))
}
