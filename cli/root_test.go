package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd(t *testing.T) {
	t.Run("Should register the operational subcommands", func(t *testing.T) {
		root := RootCmd()
		names := make([]string, 0)
		for _, sub := range root.Commands() {
			names = append(names, sub.Name())
		}
		assert.Contains(t, names, "health")
		assert.Contains(t, names, "migrate")
		assert.Contains(t, names, "version")
	})

	t.Run("Should expose the logging flags on every subcommand", func(t *testing.T) {
		root := RootCmd()
		for _, flag := range []string{"log-level", "log-json", "log-source"} {
			assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
		}
	})

	t.Run("Should run the version command", func(t *testing.T) {
		root := RootCmd()
		root.SetArgs([]string{"version"})
		require.NoError(t, root.Execute())
	})
}
