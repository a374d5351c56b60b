package cli

import (
	"github.com/spf13/cobra"

	"github.com/mnemora/mnemora/pkg/logger"
)

func MigrateCmd() *cobra.Command {
	var cleanup bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Force one tier-migration pass and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := commandContext(cmd)
			if err != nil {
				return err
			}
			// A one-shot pass; the periodic ticker stays off.
			cfg.Tier.MigrationInterval = 0
			eng, err := buildEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer eng.close(ctx)
			log := logger.FromContext(ctx)
			if cleanup {
				removed, err := eng.coord.CleanupExpiredItems(ctx)
				if err != nil {
					return err
				}
				log.Info("cleanup and migration complete", "expired_removed", removed)
				return nil
			}
			if err := eng.coord.RunMigration(ctx); err != nil {
				return err
			}
			log.Info("migration pass complete")
			return nil
		},
	}
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "also drop expired cache entries before migrating")
	return cmd
}
