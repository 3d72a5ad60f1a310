package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/RoaringBitmap/roaring"
)

var (
	// ErrNoPath is returned when the target is unreachable from the source.
	ErrNoPath = errors.New("no path exists")
	// ErrTimeout is returned when a query exceeds its wall-clock budget.
	ErrTimeout = errors.New("query timed out")
	// ErrCancelled is returned when the caller abandons the query.
	ErrCancelled = errors.New("query cancelled")
)

// NoSuchVertexError identifies a query endpoint that is not in the graph.
type NoSuchVertexError struct {
	ID uint32
}

func (e *NoSuchVertexError) Error() string {
	return fmt.Sprintf("no such vertex %d", e.ID)
}

// DefaultTimeout is the per-query wall-clock budget.
const DefaultTimeout = 30 * time.Second

// Result is the full set of shortest paths between two vertices. Paths is
// never empty: the degenerate source==target query yields one single-vertex
// path, and an unreachable target is an ErrNoPath rather than an empty
// Result.
type Result struct {
	Paths   [][]uint32 `json:"paths"`
	Degrees int        `json:"degrees"`
	Count   int        `json:"count"`
}

// FindPaths enumerates every shortest path from source to target using a
// layered bidirectional BFS.
//
// Each iteration expands the side with the smaller frontier (ties forward):
// the forward side walks outgoing edges, the backward side incoming edges.
// Parent links record every same-layer predecessor, so once the frontiers
// meet, the parent DAGs contain all shortest paths, which are enumerated by
// DFS and stitched together at the meet vertices.
//
// Cancellation and the deadline are observed between layer expansions, not
// inside the neighbor loops.
func (db *EdgeDB) FindPaths(ctx context.Context, source, target uint32) (*Result, error) {
	if !db.Exists(source) {
		return nil, &NoSuchVertexError{ID: source}
	}
	if source == target {
		return &Result{Paths: [][]uint32{{source}}, Degrees: 0, Count: 1}, nil
	}
	if !db.Exists(target) {
		return nil, &NoSuchVertexError{ID: target}
	}

	fwd := newSide(source)
	bwd := newSide(target)

	for {
		if err := checkBudget(ctx); err != nil {
			return nil, err
		}
		if len(fwd.frontier) == 0 || len(bwd.frontier) == 0 {
			return nil, ErrNoPath
		}

		if len(fwd.frontier) <= len(bwd.frontier) {
			fwd.expand(db.NeighborsOut)
		} else {
			bwd.expand(db.NeighborsIn)
		}

		meet := roaring.And(fwd.visited, bwd.visited)
		if !meet.IsEmpty() {
			return stitch(fwd, bwd, meet), nil
		}
	}
}

func checkBudget(ctx context.Context) error {
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ErrCancelled
	default:
		return nil
	}
}

// side is one direction's search state. Parent lists for all vertices live
// in a single shared arena, indexed by per-vertex spans, instead of one heap
// allocation per vertex.
type side struct {
	root     uint32
	frontier []uint32
	visited  *roaring.Bitmap
	depth    map[uint32]int32
	parents  map[uint32]span
	arena    []uint32

	// scratch for one expansion
	pairs []parentPair
}

type span struct {
	off uint32
	n   uint32
}

type parentPair struct {
	vertex uint32
	parent uint32
}

func newSide(root uint32) *side {
	s := &side{
		root:     root,
		frontier: []uint32{root},
		visited:  roaring.New(),
		depth:    map[uint32]int32{root: 0},
		parents:  map[uint32]span{},
	}
	s.visited.Add(root)
	return s
}

// expand advances the side one layer. Newly reached vertices collect every
// parent that discovered them in this layer, which makes the parent
// structure a DAG of all shortest subpaths rather than a tree.
func (s *side) expand(neighbors func(uint32) []uint32) {
	s.pairs = s.pairs[:0]
	for _, u := range s.frontier {
		for _, v := range neighbors(u) {
			if !s.visited.Contains(v) {
				s.pairs = append(s.pairs, parentPair{vertex: v, parent: u})
			}
		}
	}
	sort.Slice(s.pairs, func(i, j int) bool {
		if s.pairs[i].vertex != s.pairs[j].vertex {
			return s.pairs[i].vertex < s.pairs[j].vertex
		}
		return s.pairs[i].parent < s.pairs[j].parent
	})

	newDepth := s.depth[s.frontier[0]] + 1
	s.frontier = s.frontier[:0]
	for i := 0; i < len(s.pairs); {
		v := s.pairs[i].vertex
		start := uint32(len(s.arena))
		for i < len(s.pairs) && s.pairs[i].vertex == v {
			s.arena = append(s.arena, s.pairs[i].parent)
			i++
		}
		s.visited.Add(v)
		s.depth[v] = newDepth
		s.parents[v] = span{off: start, n: uint32(len(s.arena)) - start}
		s.frontier = append(s.frontier, v)
	}
}

// parentsOf returns the recorded predecessors of v on this side.
func (s *side) parentsOf(v uint32) []uint32 {
	sp := s.parents[v]
	return s.arena[sp.off : sp.off+sp.n]
}

// pathsTo enumerates every shortest path from the side's root to v, root
// first, by DFS through the parent DAG.
func (s *side) pathsTo(v uint32) [][]uint32 {
	if v == s.root {
		return [][]uint32{{s.root}}
	}
	var out [][]uint32
	for _, p := range s.parentsOf(v) {
		for _, prefix := range s.pathsTo(p) {
			path := make([]uint32, len(prefix)+1)
			copy(path, prefix)
			path[len(prefix)] = v
			out = append(out, path)
		}
	}
	return out
}

// stitch assembles full paths through the meet vertices. Only meet vertices
// at the minimal combined depth lie on shortest paths; later-layer meets in
// the same iteration are longer and discarded.
func stitch(fwd, bwd *side, meet *roaring.Bitmap) *Result {
	minDepth := int32(-1)
	it := meet.Iterator()
	for it.HasNext() {
		m := it.Next()
		d := fwd.depth[m] + bwd.depth[m]
		if minDepth < 0 || d < minDepth {
			minDepth = d
		}
	}

	var paths [][]uint32
	it = meet.Iterator()
	for it.HasNext() {
		m := it.Next()
		if fwd.depth[m]+bwd.depth[m] != minDepth {
			continue
		}
		fromSource := fwd.pathsTo(m)
		fromTarget := bwd.pathsTo(m)
		for _, head := range fromSource {
			for _, tail := range fromTarget {
				path := make([]uint32, 0, len(head)+len(tail)-1)
				path = append(path, head...)
				for i := len(tail) - 2; i >= 0; i-- {
					path = append(path, tail[i])
				}
				paths = append(paths, path)
			}
		}
	}
	return &Result{Paths: paths, Degrees: int(minDepth), Count: len(paths)}
}
