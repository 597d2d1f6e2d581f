package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ekisa-team/voxclone/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "voxclone", version.Version)
	},
}
