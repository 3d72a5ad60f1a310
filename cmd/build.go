package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/wikiwalk/wikiwalk/internal/build"
	"github.com/wikiwalk/wikiwalk/internal/store"
)

var (
	buildDumpDate  string
	buildPage      string
	buildRedirects string
	buildPagelinks string
	buildNoPromote bool
)

var buildCmd = &cobra.Command{
	Use:   "build --dump-date YYYYMMDD",
	Short: "Build a graph generation from downloaded SQL dumps",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(buildDumpDate) != 8 {
			return fmt.Errorf("--dump-date must be YYYYMMDD, got %q", buildDumpDate)
		}
		paths, err := store.NewPaths()
		if err != nil {
			return err
		}
		gen := paths.Generation(buildDumpDate)

		b := &build.Builder{
			Gen:           gen,
			PagePath:      orDefault(buildPage, paths.DumpFile(wiki, buildDumpDate, "page")),
			RedirectPath:  orDefault(buildRedirects, paths.DumpFile(wiki, buildDumpDate, "redirect")),
			PagelinksPath: orDefault(buildPagelinks, paths.DumpFile(wiki, buildDumpDate, "pagelinks")),
		}
		if err := b.Run(cmd.Context()); err != nil {
			return err
		}
		if buildNoPromote {
			return nil
		}
		if err := paths.Promote(gen); err != nil {
			return err
		}
		log.Printf("promoted generation %s to current", gen.Date)
		return nil
	},
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func init() {
	buildCmd.Flags().StringVar(&buildDumpDate, "dump-date", "", "Dump date (YYYYMMDD)")
	buildCmd.Flags().StringVar(&buildPage, "page", "", "Path to the page table dump")
	buildCmd.Flags().StringVar(&buildRedirects, "redirects", "", "Path to the redirect table dump")
	buildCmd.Flags().StringVar(&buildPagelinks, "pagelinks", "", "Path to the pagelinks table dump")
	buildCmd.Flags().BoolVar(&buildNoPromote, "no-promote", false, "Do not repoint the current symlink")
	_ = buildCmd.MarkFlagRequired("dump-date")
	rootCmd.AddCommand(buildCmd)
}
