package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GoZippy/ZippyViewer-sub003/internal/version"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pairctl version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}
