package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelLimiter(t *testing.T) {
	l := NewModelLimiter(2)
	require.NoError(t, l.Increment())
	require.NoError(t, l.Increment())
	assert.Equal(t, 0, l.Remaining())
	assert.ErrorIs(t, l.Increment(), ErrLimitExceeded)
	assert.Equal(t, 2, l.Count())
}

func TestModelLimiter_Unlimited(t *testing.T) {
	l := NewModelLimiter(0)
	for range 100 {
		require.NoError(t, l.Increment())
	}
	assert.Equal(t, -1, l.Remaining())
}
