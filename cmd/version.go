package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Build identity, injected at link time:
//
//	go build -ldflags "-X github.com/wikiwalk/wikiwalk/cmd.commit=$(git rev-parse HEAD)"
var (
	commit     = "unknown"
	commitDate = "unknown"
)

var versionCommitOnly bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build identifier",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if versionCommitOnly {
			fmt.Println(commit)
			return
		}
		fmt.Printf("wikiwalk %s (%s)\n", commit, commitDate)
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionCommitOnly, "commit", false, "Print only the commit hash")
	rootCmd.AddCommand(versionCmd)
}
