package rafterrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapErrorNilIsNil(t *testing.T) {
	require.NoError(t, WrapError(nil, "context"))
}

func TestWrapErrorUnwraps(t *testing.T) {
	base := New("boom")
	wrapped := WrapError(base, "while doing something")
	require.True(t, errors.Is(wrapped, base))
	require.Contains(t, wrapped.Error(), "while doing something")
	require.Contains(t, wrapped.Error(), "boom")
}
