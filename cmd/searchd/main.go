package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/lazysearch/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "searchd",
	Short: "searchd - lazy best-first graph search runner",
	Long: `searchd runs a best-first search described by a run.yaml file.

Available commands:
  run     - Run a search and print its solutions
  replay  - Summarize a run from the postgres journal
  version - Print the version

Examples:
  searchd run -c run.yaml
  searchd run -c run.yaml --strategy bnb --parallelism 4
  searchd replay --run-id nightly-queens`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}

func init() {
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newReplayCmd())
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
