package sitemap_test

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikiwalk/wikiwalk/internal/build"
	"github.com/wikiwalk/wikiwalk/internal/graph"
	"github.com/wikiwalk/wikiwalk/internal/sitemap"
	"github.com/wikiwalk/wikiwalk/internal/store"
)

// graph: 3 is the most linked-to vertex, then 2, then 4
func testGraphAndSidecar(t *testing.T) (*graph.EdgeDB, *store.Sidecar) {
	t.Helper()
	dir := t.TempDir()
	edges := []build.Edge{
		{Src: 1, Dst: 3}, {Src: 2, Dst: 3}, {Src: 4, Dst: 3},
		{Src: 1, Dst: 2}, {Src: 3, Dst: 2},
		{Src: 3, Dst: 4},
	}
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
	_, err = build.WriteAdjacency(outIter, inIter, 4, alPath, ixPath)
	require.NoError(t, err)
	db, err := graph.Open(alPath, ixPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sc, err := store.OpenSidecar(filepath.Join(dir, "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Close() })
	w, err := sc.NewVertexWriter()
	require.NoError(t, err)
	for id, title := range map[uint32]string{1: "One", 2: "Two", 3: "Three", 4: "Four"} {
		require.NoError(t, w.Write(store.Vertex{ID: id, Title: []byte(title)}))
	}
	require.NoError(t, w.Commit())
	return db, sc
}

func TestTopByInDegree(t *testing.T) {
	db, _ := testGraphAndSidecar(t)
	top := sitemap.TopByInDegree(db, 2)
	assert.Equal(t, []uint32{3, 2}, top)
}

func TestWriteTopGraph(t *testing.T) {
	db, sc := testGraphAndSidecar(t)
	path := filepath.Join(t.TempDir(), "topgraph.json")
	require.NoError(t, sitemap.WriteTopGraph(context.Background(), db, sc, 2, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var tg sitemap.TopGraph
	require.NoError(t, json.Unmarshal(data, &tg))

	require.Len(t, tg.Pages, 2)
	assert.Equal(t, uint32(3), tg.Pages[0].ID)
	assert.Equal(t, "Three", tg.Pages[0].Title)
	assert.Equal(t, 3, tg.Pages[0].InDegree)
	// within the top set {3,2}: 3→2 survives, 3→4 does not
	assert.Equal(t, []uint32{2}, tg.Links["3"])
}

func TestWriteSitemaps(t *testing.T) {
	db, _ := testGraphAndSidecar(t)
	dir := t.TempDir()
	require.NoError(t, sitemap.WriteSitemaps(db, dir, "https://example.org", 3))

	// 3 top pages → 6 ordered pairs + 1 root URL = 7 URLs in one chunk
	chunk := readGz(t, filepath.Join(dir, "sitemap-0.xml.gz"))
	var set struct {
		URLs []struct {
			Loc string `xml:"loc"`
		} `xml:"url"`
	}
	require.NoError(t, xml.Unmarshal(chunk, &set))
	assert.Len(t, set.URLs, 7)
	assert.Equal(t, "https://example.org", set.URLs[0].Loc)
	for _, u := range set.URLs[1:] {
		assert.True(t, strings.HasPrefix(u.Loc, "https://example.org/paths/"), u.Loc)
	}

	index := readGz(t, filepath.Join(dir, "sitemap-index.xml.gz"))
	assert.Contains(t, string(index), "sitemap-0.xml.gz")
}

func TestWriteVertexList(t *testing.T) {
	_, sc := testGraphAndSidecar(t)
	path := filepath.Join(t.TempDir(), "vertexes.jsonl")
	require.NoError(t, sitemap.WriteVertexList(context.Background(), sc, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	var first struct {
		ID    uint32 `json:"id"`
		Title string `json:"title"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, uint32(1), first.ID)
	assert.Equal(t, "One", first.Title)
}

func readGz(t *testing.T, path string) []byte {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer func() { _ = zr.Close() }()
	var out []byte
	buf := make([]byte, 4096)
	for {
		n, rerr := zr.Read(buf)
		out = append(out, buf[:n]...)
		if rerr != nil {
			return out
		}
	}
}
