package build

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikiwalk/wikiwalk/internal/graph"
)

// writeTestGraph sorts the given edges both ways and writes the adjacency
// pair into dir, returning the opened store.
func writeTestGraph(t *testing.T, edges []Edge, maxID uint32) *graph.EdgeDB {
	t.Helper()
	dir := t.TempDir()
	outSort := NewSorter(dir, "out", BySrc, 8)
	inSort := NewSorter(dir, "in", ByDst, 8)
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
	_, err = WriteAdjacency(outIter, inIter, maxID, alPath, ixPath)
	require.NoError(t, err)

	db, err := graph.Open(alPath, ixPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestAdjacencyRoundTrip(t *testing.T) {
	edges := []Edge{
		{1, 2}, {1, 3}, {2, 3}, {3, 1}, {7, 2},
		// duplicate collapses
		{1, 2},
	}
	db := writeTestGraph(t, edges, 10)

	assert.Equal(t, []uint32{2, 3}, db.NeighborsOut(1))
	assert.Equal(t, []uint32{3}, db.NeighborsOut(2))
	assert.Equal(t, []uint32{1}, db.NeighborsOut(3))
	assert.Empty(t, db.NeighborsOut(4))
	assert.Equal(t, []uint32{2}, db.NeighborsOut(7))

	assert.Equal(t, []uint32{3}, db.NeighborsIn(1))
	assert.Equal(t, []uint32{1, 7}, db.NeighborsIn(2))
	assert.Equal(t, []uint32{1, 2}, db.NeighborsIn(3))
	assert.Empty(t, db.NeighborsIn(7))

	assert.True(t, db.Exists(7)) // outgoing only
	assert.False(t, db.Exists(4))
	assert.False(t, db.Exists(0))
	assert.Equal(t, uint32(10), db.MaxID())

	require.NoError(t, db.Check())

	// Round-trip: enumerating all (u,v) pairs must reproduce the unique
	// input multiset exactly.
	want := map[Edge]struct{}{}
	for _, e := range edges {
		want[e] = struct{}{}
	}
	got := map[Edge]struct{}{}
	for id := uint32(0); id <= db.MaxID(); id++ {
		for _, dst := range db.NeighborsOut(id) {
			got[Edge{Src: id, Dst: dst}] = struct{}{}
		}
	}
	assert.Equal(t, want, got)
}

func TestAdjacencyEdgeCount(t *testing.T) {
	dir := t.TempDir()
	outSort := NewSorter(dir, "out", BySrc, 8)
	inSort := NewSorter(dir, "in", ByDst, 8)
	edges := []Edge{{1, 2}, {2, 1}, {2, 3}}
	require.NoError(t, outSort.AddBatch(edges))
	require.NoError(t, inSort.AddBatch(edges))

	outIter, err := outSort.Merge()
	require.NoError(t, err)
	defer outIter.Close()
	inIter, err := inSort.Merge()
	require.NoError(t, err)
	defer inIter.Close()

	count, err := WriteAdjacency(outIter, inIter, 3,
		filepath.Join(dir, "vertex_al"), filepath.Join(dir, "vertex_al_ix"))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
}

func TestAdjacencyRejectsOutOfRangeVertex(t *testing.T) {
	dir := t.TempDir()
	outSort := NewSorter(dir, "out", BySrc, 8)
	inSort := NewSorter(dir, "in", ByDst, 8)
	edges := []Edge{{1, 9}}
	require.NoError(t, outSort.AddBatch(edges))
	require.NoError(t, inSort.AddBatch(edges))

	outIter, err := outSort.Merge()
	require.NoError(t, err)
	defer outIter.Close()
	inIter, err := inSort.Merge()
	require.NoError(t, err)
	defer inIter.Close()

	_, err = WriteAdjacency(outIter, inIter, 5,
		filepath.Join(dir, "vertex_al"), filepath.Join(dir, "vertex_al_ix"))
	assert.Error(t, err)
}

func TestAdjacencyIndexLength(t *testing.T) {
	db := writeTestGraph(t, []Edge{{1, 2}}, 6)
	// index covers ids 0..6 inclusive
	assert.Equal(t, uint32(6), db.MaxID())
	assert.False(t, db.Exists(6))
}
