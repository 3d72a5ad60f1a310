// Package sitemap derives the auxiliary artifacts the surrounding web
// service serves: gzipped sitemap files over the popular query URLs, and the
// landing page's top-N graph.
package sitemap

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/RoaringBitmap/roaring"

	"github.com/wikiwalk/wikiwalk/internal/graph"
	"github.com/wikiwalk/wikiwalk/internal/store"
)

// TopPage is one vertex of the landing-page graph.
type TopPage struct {
	ID       uint32 `json:"id"`
	Title    string `json:"title"`
	InDegree int    `json:"in_degree"`
}

// TopGraph is the exported landing-page graph: the top-N vertices by raw
// in-degree and the edges among them.
type TopGraph struct {
	Pages []TopPage           `json:"pages"`
	Links map[string][]uint32 `json:"links"`
}

// TopByInDegree scans the whole index and returns the n vertex ids with the
// largest incoming lists, descending. One sequential pass with a size-n
// min-heap.
func TopByInDegree(db *graph.EdgeDB, n int) []uint32 {
	h := &degreeHeap{}
	maxID := db.MaxID()
	for id := uint32(0); ; id++ {
		if db.Exists(id) {
			d := len(db.NeighborsIn(id))
			if h.Len() < n {
				heap.Push(h, degreeEntry{id: id, degree: d})
			} else if d > (*h)[0].degree {
				(*h)[0] = degreeEntry{id: id, degree: d}
				heap.Fix(h, 0)
			}
		}
		if id == maxID {
			break
		}
	}
	out := make([]uint32, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(degreeEntry).id
	}
	return out
}

// WriteTopGraph exports the top-n landing-page graph as JSON.
func WriteTopGraph(ctx context.Context, db *graph.EdgeDB, sc *store.Sidecar, n int, path string) error {
	ids := TopByInDegree(db, n)
	topSet := roaring.BitmapOf(ids...)

	tg := TopGraph{Links: make(map[string][]uint32, len(ids))}
	for _, id := range ids {
		v, err := sc.VertexByID(ctx, id)
		if err != nil {
			return fmt.Errorf("top graph: vertex %d: %w", id, err)
		}
		tg.Pages = append(tg.Pages, TopPage{
			ID:       id,
			Title:    string(v.Title),
			InDegree: len(db.NeighborsIn(id)),
		})
		var links []uint32
		for _, dst := range db.NeighborsOut(id) {
			if topSet.Contains(dst) {
				links = append(links, dst)
			}
		}
		tg.Links[fmt.Sprintf("%d", id)] = links
	}

	data, err := json.MarshalIndent(&tg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write top graph: %w", err)
	}
	return nil
}

type degreeEntry struct {
	id     uint32
	degree int
}

type degreeHeap []degreeEntry

func (h degreeHeap) Len() int           { return len(h) }
func (h degreeHeap) Less(i, j int) bool { return h[i].degree < h[j].degree }
func (h degreeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *degreeHeap) Push(x any)        { *h = append(*h, x.(degreeEntry)) }
func (h *degreeHeap) Pop() any {
	old := *h
	last := old[len(old)-1]
	*h = old[:len(old)-1]
	return last
}
