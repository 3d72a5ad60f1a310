package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wikiwalk/wikiwalk/internal/graph"
	"github.com/wikiwalk/wikiwalk/internal/store"
)

var (
	queryByTitle bool
	queryTimeout time.Duration
)

var queryCmd = &cobra.Command{
	Use:   "query <source_id> <target_id>",
	Short: "Run one shortest-path query against the current graph",
	Args:  cobra.ExactArgs(2),
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

		ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
		defer cancel()

		source, err := resolveArg(ctx, sc, args[0])
		if err != nil {
			return err
		}
		target, err := resolveArg(ctx, sc, args[1])
		if err != nil {
			return err
		}

		start := time.Now()
		res, err := db.FindPaths(ctx, source, target)
		if err != nil {
			return err
		}
		out := struct {
			Paths    [][]uint32 `json:"paths"`
			Degrees  int        `json:"degrees"`
			Count    int        `json:"count"`
			Duration int64      `json:"duration"`
		}{res.Paths, res.Degrees, res.Count, time.Since(start).Milliseconds()}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(&out)
	},
}

// resolveArg accepts either a numeric vertex id or, with --title, an article
// title (underscores or spaces).
func resolveArg(ctx context.Context, sc *store.Sidecar, arg string) (uint32, error) {
	if !queryByTitle {
		id, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid vertex id %q", arg)
		}
		return uint32(id), nil
	}
	v, err := sc.VertexByTitle(ctx, normalizeTitle(arg))
	if err != nil {
		return 0, fmt.Errorf("resolve title %q: %w", arg, err)
	}
	return v.ID, nil
}

// normalizeTitle converts spaces to Wikipedia's stored underscore form.
func normalizeTitle(title string) []byte {
	b := []byte(title)
	for i, c := range b {
		if c == ' ' {
			b[i] = '_'
		}
	}
	return b
}

func init() {
	queryCmd.Flags().BoolVar(&queryByTitle, "title", false, "Interpret arguments as article titles")
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", graph.DefaultTimeout, "Per-query wall-clock budget")
	rootCmd.AddCommand(queryCmd)
}
