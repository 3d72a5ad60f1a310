package cmd

import (
	"log"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wikiwalk/wikiwalk/internal/graph"
	"github.com/wikiwalk/wikiwalk/internal/server"
	"github.com/wikiwalk/wikiwalk/internal/store"
)

var (
	serveCacheSize int
	serveTimeout   time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve path queries over HTTP for the current generation",
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
		log.Printf("serving generation %s", gen.Date)

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

		srv, err := server.New(db, sc, serveCacheSize, serveTimeout)
		if err != nil {
			return err
		}

		port := os.Getenv("PORT")
		if port == "" {
			port = "8000"
		}
		addr := net.JoinHostPort(os.Getenv("ADDRESS"), port)
		log.Printf("listening on %s", addr)
		return srv.Router().Run(addr)
	},
}

func init() {
	serveCmd.Flags().IntVar(&serveCacheSize, "cache-size", 1024, "Path cache entry bound")
	serveCmd.Flags().DurationVar(&serveTimeout, "timeout", graph.DefaultTimeout, "Per-query wall-clock budget")
	rootCmd.AddCommand(serveCmd)
}
