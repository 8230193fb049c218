package shared

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	got, err := NormalizeEmail("  Ivy.Chen@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "ivy.chen@example.com", got)

	_, err = NormalizeEmail("not-an-email")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = NormalizeEmail("   ")
	require.Error(t, err)
}
