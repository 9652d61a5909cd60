package cmd

import (
	"github.com/spf13/cobra"

	"github.com/praetorian-inc/cloudshovel/internal/message"
	"github.com/praetorian-inc/cloudshovel/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of CloudShovel",
	Run: func(cmd *cobra.Command, args []string) {
		message.Info("%s", version.FullVersion())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
