package graph_test

import (
	"context"
	"math/rand"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikiwalk/wikiwalk/internal/build"
	"github.com/wikiwalk/wikiwalk/internal/graph"
)

// openGraph builds the adjacency pair for the given edges and opens it.
func openGraph(t *testing.T, edges []build.Edge, maxID uint32) *graph.EdgeDB {
	t.Helper()
	dir := t.TempDir()
	outSort := build.NewSorter(dir, "out", build.BySrc, 64)
	inSort := build.NewSorter(dir, "in", build.ByDst, 64)
	require.NoError(t, outSort.AddBatch(edges))
	require.NoError(t, inSort.AddBatch(edges))

	outIter, err := outSort.Merge()
	require.NoError(t, err)
	defer outIter.Close()
	inIter, err := inSort.Merge()
	require.NoError(t, err)
	defer inIter.Close()

	alPath := filepath.Join(dir, "vertex_al")
	ixPath := filepath.Join(dir, "vertex_al_ix")
	_, err = build.WriteAdjacency(outIter, inIter, maxID, alPath, ixPath)
	require.NoError(t, err)

	db, err := graph.Open(alPath, ixPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sortPaths(paths [][]uint32) {
	sort.Slice(paths, func(i, j int) bool {
		a, b := paths[i], paths[j]
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return len(a) < len(b)
	})
}

func TestShortcutWins(t *testing.T) {
	// 1→2→3 plus the shortcut 1→3: only the one-hop path is shortest
	db := openGraph(t, []build.Edge{{Src: 1, Dst: 2}, {Src: 2, Dst: 3}, {Src: 1, Dst: 3}}, 3)

	res, err := db.FindPaths(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.Equal(t, [][]uint32{{1, 3}}, res.Paths)
	assert.Equal(t, 1, res.Degrees)
	assert.Equal(t, 1, res.Count)
}

func TestDiamondBothPaths(t *testing.T) {
	db := openGraph(t, []build.Edge{
		{Src: 1, Dst: 2}, {Src: 1, Dst: 3}, {Src: 2, Dst: 4}, {Src: 3, Dst: 4},
	}, 4)

	res, err := db.FindPaths(context.Background(), 1, 4)
	require.NoError(t, err)
	sortPaths(res.Paths)
	assert.Equal(t, [][]uint32{{1, 2, 4}, {1, 3, 4}}, res.Paths)
	assert.Equal(t, 2, res.Degrees)
	assert.Equal(t, 2, res.Count)
}

func TestNoPath(t *testing.T) {
	// both 1 and 3 point at 2; 3 is unreachable from 1
	db := openGraph(t, []build.Edge{{Src: 1, Dst: 2}, {Src: 3, Dst: 2}}, 3)

	_, err := db.FindPaths(context.Background(), 1, 3)
	assert.ErrorIs(t, err, graph.ErrNoPath)
}

func TestSourceEqualsTarget(t *testing.T) {
	db := openGraph(t, []build.Edge{{Src: 42, Dst: 7}}, 42)

	res, err := db.FindPaths(context.Background(), 42, 42)
	require.NoError(t, err)
	assert.Equal(t, [][]uint32{{42}}, res.Paths)
	assert.Equal(t, 0, res.Degrees)
	assert.Equal(t, 1, res.Count)
}

func TestNoSuchVertex(t *testing.T) {
	db := openGraph(t, []build.Edge{{Src: 1, Dst: 2}}, 5)

	_, err := db.FindPaths(context.Background(), 4, 1)
	var nsv *graph.NoSuchVertexError
	require.ErrorAs(t, err, &nsv)
	assert.Equal(t, uint32(4), nsv.ID)

	_, err = db.FindPaths(context.Background(), 1, 4)
	require.ErrorAs(t, err, &nsv)
	assert.Equal(t, uint32(4), nsv.ID)
}

func TestCancelled(t *testing.T) {
	db := openGraph(t, []build.Edge{{Src: 1, Dst: 2}, {Src: 2, Dst: 3}}, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := db.FindPaths(ctx, 1, 3)
	assert.ErrorIs(t, err, graph.ErrCancelled)
}

func TestTimeout(t *testing.T) {
	db := openGraph(t, []build.Edge{{Src: 1, Dst: 2}, {Src: 2, Dst: 3}}, 3)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err := db.FindPaths(ctx, 1, 3)
	assert.ErrorIs(t, err, graph.ErrTimeout)
}

func TestLongChainWithSiblings(t *testing.T) {
	// two parallel chains of length 4 sharing endpoints:
	// 1→2→4→6, 1→3→5→6, plus a longer decoy 1→7, 7→8, 8→9, 9→6
	db := openGraph(t, []build.Edge{
		{Src: 1, Dst: 2}, {Src: 2, Dst: 4}, {Src: 4, Dst: 6},
		{Src: 1, Dst: 3}, {Src: 3, Dst: 5}, {Src: 5, Dst: 6},
		{Src: 1, Dst: 7}, {Src: 7, Dst: 8}, {Src: 8, Dst: 9}, {Src: 9, Dst: 6},
	}, 9)

	res, err := db.FindPaths(context.Background(), 1, 6)
	require.NoError(t, err)
	sortPaths(res.Paths)
	assert.Equal(t, [][]uint32{{1, 2, 4, 6}, {1, 3, 5, 6}}, res.Paths)
	assert.Equal(t, 3, res.Degrees)
}

// referenceBFS is an independent unidirectional all-shortest-paths search
// used to cross-check the bidirectional engine on random graphs.
func referenceBFS(adj map[uint32][]uint32, source, target uint32) (int, [][]uint32) {
	depth := map[uint32]int{source: 0}
	parents := map[uint32][]uint32{}
	frontier := []uint32{source}
	d := 0
	for len(frontier) > 0 {
		if _, ok := depth[target]; ok {
			break
		}
		var next []uint32
		for _, u := range frontier {
			for _, v := range adj[u] {
				if dv, seen := depth[v]; !seen {
					depth[v] = d + 1
					parents[v] = []uint32{u}
					next = append(next, v)
				} else if dv == d+1 {
					parents[v] = append(parents[v], u)
				}
			}
		}
		frontier = next
		d++
	}
	if _, ok := depth[target]; !ok {
		return -1, nil
	}
	var walk func(v uint32) [][]uint32
	walk = func(v uint32) [][]uint32 {
		if v == source {
			return [][]uint32{{source}}
		}
		var out [][]uint32
		for _, p := range parents[v] {
			for _, prefix := range walk(p) {
				path := append(append([]uint32{}, prefix...), v)
				out = append(out, path)
			}
		}
		return out
	}
	return depth[target], walk(target)
}

func TestRandomGraphsAgainstReference(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 25; trial++ {
		const n = 30
		adj := map[uint32][]uint32{}
		var edges []build.Edge
		seen := map[build.Edge]struct{}{}
		for i := 0; i < 120; i++ {
			e := build.Edge{Src: uint32(rng.Intn(n) + 1), Dst: uint32(rng.Intn(n) + 1)}
			if e.Src == e.Dst {
				continue
			}
			if _, dup := seen[e]; dup {
				continue
			}
			seen[e] = struct{}{}
			edges = append(edges, e)
			adj[e.Src] = append(adj[e.Src], e.Dst)
		}
		for _, l := range adj {
			sort.Slice(l, func(i, j int) bool { return l[i] < l[j] })
		}
		db := openGraph(t, edges, n)

		for q := 0; q < 20; q++ {
			s := uint32(rng.Intn(n) + 1)
			d := uint32(rng.Intn(n) + 1)
			if !db.Exists(s) || !db.Exists(d) || s == d {
				continue
			}
			wantDeg, wantPaths := referenceBFS(adj, s, d)
			res, err := db.FindPaths(context.Background(), s, d)
			if wantDeg < 0 {
				assert.ErrorIs(t, err, graph.ErrNoPath, "query %d->%d", s, d)
				continue
			}
			require.NoError(t, err, "query %d->%d", s, d)
			assert.Equal(t, wantDeg, res.Degrees, "degree mismatch %d->%d", s, d)
			assert.Equal(t, len(wantPaths), res.Count, "count mismatch %d->%d", s, d)
			assert.Len(t, res.Paths, res.Count)
			sortPaths(res.Paths)
			sortPaths(wantPaths)
			assert.Equal(t, wantPaths, res.Paths, "paths mismatch %d->%d", s, d)
			for _, p := range res.Paths {
				assert.Len(t, p, res.Degrees+1)
			}
		}
	}
}
