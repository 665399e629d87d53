package assert

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssertions(t *testing.T) {
	require.Panics(t, func() { NotNil(nil) })
	require.NotPanics(t, func() { NotNil(1) })

	require.Panics(t, func() { NotEmptyStr("") })
	require.NotPanics(t, func() { NotEmptyStr("x") })

	require.Panics(t, func() { Positive(0) })
	require.Panics(t, func() { Positive(-3) })
	require.NotPanics(t, func() { Positive(1) })
}
