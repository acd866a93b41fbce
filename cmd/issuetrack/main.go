// Package main provides the entry point for the issuetrack CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/issuetrack/cmd/issuetrack/commands"
	"github.com/Sumatoshi-tech/issuetrack/pkg/version"
)

var (
	verbose    bool
	quiet      bool
	configPath string
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "issuetrack",
		Short: "Issue continuity across analyses and branches",
		Long: `issuetrack matches the issues of a fresh analysis against the issues
stored for a branch, so that every issue keeps its identity, history and
resolution from one analysis to the next.

Commands:
  track     Track an analysis report and persist the result`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./issuetrack.yaml)")

	rootCmd.AddCommand(commands.NewTrackCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintln(os.Stdout, version.String())
		},
	}
}
