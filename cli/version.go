package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemora/mnemora/pkg/version"
)

func VersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(_ *cobra.Command, _ []string) {
			info := version.Get()
			fmt.Printf("mnemora %s (commit %s, built %s)\n", info.Version, info.CommitHash, info.BuildDate)
		},
	}
}
