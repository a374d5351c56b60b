package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func HealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check every storage tier and print a structured report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cfg, err := commandContext(cmd)
			if err != nil {
				return err
			}
			eng, err := buildEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer eng.close(ctx)
			report := eng.coord.HealthCheck(ctx)
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if report["status"] != "healthy" {
				return fmt.Errorf("system degraded")
			}
			return nil
		},
	}
}
