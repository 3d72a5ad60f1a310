// Package cmd implements the wikiwalk CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var wiki string

var rootCmd = &cobra.Command{
	Use:           "wikiwalk",
	Short:         "Compute all shortest paths between Wikipedia articles",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&wiki, "wiki", "enwiki", "Wiki identifier")
}

// Execute runs the CLI and exits nonzero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
