package enforce

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnforce(t *testing.T) {
	require.NotPanics(t, func() { ENFORCE(true, "fine") })
	require.NotPanics(t, func() { ENFORCE(nil) })
	require.NotPanics(t, func() { ENFORCE(error(nil)) })
	require.Panics(t, func() { ENFORCE(false, "bad ", 1) })
	require.Panics(t, func() { ENFORCE(errors.New("boom")) })
	require.Panics(t, func() { ENFORCE("stop") })
	require.Panics(t, func() { ENFORCE(42) })
}
