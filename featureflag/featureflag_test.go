package featureflag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeatureFlag(t *testing.T) {
	f := New([]string{"DISABLE_RAYCAST", " disable_modules ", ""})

	t.Run("is set", func(t *testing.T) {
		require.True(t, f.IsSet(FlagDisableRaycast))
		require.True(t, f.IsSet(FlagDisableModules))
		require.False(t, f.IsSet(FlagDisableRegionQuery))
	})

	t.Run("strings", func(t *testing.T) {
		require.Equal(t, []string{
			string(FlagDisableModules),
			string(FlagDisableRaycast),
		}, f.Strings())
	})

	t.Run("nil feature flags", func(t *testing.T) {
		var empty FeatureFlag
		require.False(t, empty.IsSet(FlagDisableRaycast))
		require.Empty(t, empty.Strings())
	})
}
