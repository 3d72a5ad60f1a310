package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wikiwalk/wikiwalk/internal/dump"
)

var (
	findLatestDate bool
	findLatestURLs bool
)

var findLatestCmd = &cobra.Command{
	Use:   "find-latest",
	Short: "Print the most recent complete dump date or its file URLs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		locator := dump.NewLocator(wiki)
		status, err := locator.FindLatest(cmd.Context())
		if err != nil {
			return err
		}
		if findLatestURLs {
			for _, url := range status.FileURLs(locator.BaseURL) {
				fmt.Println(url)
			}
			return nil
		}
		// --date is the default output
		fmt.Println(status.DumpDate)
		return nil
	},
}

func init() {
	findLatestCmd.Flags().BoolVar(&findLatestDate, "date", false, "Print the dump date (default)")
	findLatestCmd.Flags().BoolVar(&findLatestURLs, "urls", false, "Print the dump file URLs")
	rootCmd.AddCommand(findLatestCmd)
}
