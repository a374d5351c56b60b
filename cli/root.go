// Package cli wires the mnemora commands: operational entry points over
// the tiered memory engine.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mnemora/mnemora/pkg/config"
	"github.com/mnemora/mnemora/pkg/logger"
)

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mnemora",
		Short:         "Tiered memory storage engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("log-json", false, "emit logs as JSON")
	root.PersistentFlags().Bool("log-source", false, "include source locations in logs")

	root.AddCommand(
		HealthCmd(),
		MigrateCmd(),
		VersionCmd(),
	)
	return root
}

// commandContext loads configuration and attaches a configured logger to
// the command context. Flags override the environment-derived log
// settings.
func commandContext(cmd *cobra.Command) (context.Context, *config.Config, error) {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	level := cfg.Log.Level
	if flag, _ := cmd.Flags().GetString("log-level"); flag != "" {
		level = flag
	}
	jsonOut := cfg.Log.JSON
	if cmd.Flags().Changed("log-json") {
		jsonOut, _ = cmd.Flags().GetBool("log-json")
	}
	source := cfg.Log.Source
	if cmd.Flags().Changed("log-source") {
		source, _ = cmd.Flags().GetBool("log-source")
	}
	log := logger.SetupLogger(level, jsonOut, source)
	return logger.ContextWithLogger(cmd.Context(), log), cfg, nil
}
