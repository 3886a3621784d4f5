package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information, injected at build time via ldflags.
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "libris %s\nBuild Time: %s\nGit Commit: %s\n",
			AppVersion, BuildTime, GitCommit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
