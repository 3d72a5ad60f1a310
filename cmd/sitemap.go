package cmd

import (
	"github.com/spf13/cobra"

	"github.com/wikiwalk/wikiwalk/internal/graph"
	"github.com/wikiwalk/wikiwalk/internal/sitemap"
	"github.com/wikiwalk/wikiwalk/internal/store"
)

var (
	sitemapBaseURL  string
	sitemapTopPages int
)

var sitemapCmd = &cobra.Command{
	Use:   "sitemap",
	Short: "Export sitemaps and the top-N landing graph for the current generation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := store.NewPaths()
		if err != nil {
			return err
		}
		gen, err := paths.Current()
		if err != nil {
			return err
		}
		sc, err := store.OpenSidecarRead(gen.GraphDB())
		if err != nil {
			return err
		}
		defer func() { _ = sc.Close() }()
		db, err := graph.Open(gen.VertexAL(), gen.VertexALIx())
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		if err := sitemap.WriteSitemaps(db, gen.Sitemaps(), sitemapBaseURL, sitemapTopPages); err != nil {
			return err
		}
		return sitemap.WriteTopGraph(cmd.Context(), db, sc, sitemapTopPages, gen.TopGraph())
	},
}

func init() {
	sitemapCmd.Flags().StringVar(&sitemapBaseURL, "base-url", "https://wikiwalk.app", "Site base URL")
	sitemapCmd.Flags().IntVar(&sitemapTopPages, "top", sitemap.DefaultTopPages, "Top page count")
	rootCmd.AddCommand(sitemapCmd)
}
