package build

import (
	"context"
	"io"
	"log"
	"runtime"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring"
	"golang.org/x/sync/errgroup"

	"github.com/wikiwalk/wikiwalk/internal/dump"
	"github.com/wikiwalk/wikiwalk/internal/metrics"
	"github.com/wikiwalk/wikiwalk/internal/store"
)

// Counters tracks recoverable build drops. Snapshotted into build_info at
// completion; the same events also feed the prometheus counters.
type Counters struct {
	RedirectCycle      atomic.Uint64
	RedirectTooDeep    atomic.Uint64
	RedirectUnresolved atomic.Uint64
	LinkUnresolved     atomic.Uint64
	SelfLoops          atomic.Uint64
	Edges              atomic.Uint64
}

type linkRow struct {
	from  uint32
	title []byte
}

// ResolveEdges streams the pagelinks table, resolves both endpoints to
// canonical vertices, and feeds the resulting (src,dst) pairs into both
// external sorters (outgoing and incoming order). Fan-out parallel across
// CPU cores; the sorters serialize their own writes.
//
// Resolution per admitted row (both namespaces 0):
//   - a src that is itself a redirect page attributes the link to the
//     redirect's canonical target (one step through the redirects map);
//   - the dst title resolves through vertexes and, if it names a redirect
//     source, through the redirects map;
//   - unresolved endpoints and self-loops drop the row under a counter.
func ResolveEdges(ctx context.Context, lr *dump.PageLinkReader, sc *store.Sidecar,
	canonicalSet, redirectSet *roaring.Bitmap, redirects map[uint32]uint32,
	outSort, inSort *Sorter, c *Counters) error {

	chunks := make(chan []linkRow, 4)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < runtime.NumCPU(); i++ {
		g.Go(func() error {
			for chunk := range chunks {
				if err := resolveEdgeChunk(gctx, sc, chunk, canonicalSet, redirectSet, redirects, outSort, inSort, c); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := func() error {
		defer close(chunks)
		chunk := make([]linkRow, 0, lookupChunk)
		var rows uint64
		for {
			row, err := lr.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			if row.FromNamespace != 0 || row.Namespace != 0 {
				continue
			}
			title := make([]byte, len(row.Title))
			copy(title, row.Title)
			chunk = append(chunk, linkRow{from: row.From, title: title})
			rows++
			if rows%10_000_000 == 0 {
				log.Printf("edge resolve: %d pagelinks read, %d edges emitted", rows, c.Edges.Load())
			}
			if len(chunk) == lookupChunk {
				select {
				case chunks <- chunk:
				case <-gctx.Done():
					return gctx.Err()
				}
				chunk = make([]linkRow, 0, lookupChunk)
			}
		}
		if len(chunk) > 0 {
			select {
			case chunks <- chunk:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	}()
	// A worker failure cancels gctx and surfaces through Wait; prefer it
	// over the producer's resulting context error.
	if werr := g.Wait(); werr != nil {
		err = werr
	}
	if err != nil {
		return err
	}
	log.Printf("edge resolve complete: %d edges, %d unresolved, %d self-loops",
		c.Edges.Load(), c.LinkUnresolved.Load(), c.SelfLoops.Load())
	return nil
}

func resolveEdgeChunk(ctx context.Context, sc *store.Sidecar, chunk []linkRow,
	canonicalSet, redirectSet *roaring.Bitmap, redirects map[uint32]uint32,
	outSort, inSort *Sorter, c *Counters) error {

	titles := make([][]byte, 0, len(chunk))
	seen := make(map[string]struct{}, len(chunk))
	for _, r := range chunk {
		if _, ok := seen[string(r.title)]; ok {
			continue
		}
		seen[string(r.title)] = struct{}{}
		titles = append(titles, r.title)
	}
	found, err := sc.LookupTitles(ctx, titles)
	if err != nil {
		return err
	}

	// title → canonical destination id
	destByTitle := make(map[string]uint32, len(found))
	for title, v := range found {
		if !v.IsRedirect {
			destByTitle[title] = v.ID
			continue
		}
		if to, ok := redirects[v.ID]; ok {
			destByTitle[title] = to
		}
	}

	edges := make([]Edge, 0, len(chunk))
	for _, r := range chunk {
		src := r.from
		if redirectSet.Contains(src) {
			to, ok := redirects[src]
			if !ok {
				c.LinkUnresolved.Add(1)
				metrics.LinksDroppedUnresolved.Inc()
				continue
			}
			src = to
		} else if !canonicalSet.Contains(src) {
			// source page is outside the canonical set (deleted or
			// non-article id referenced by a stale link row)
			c.LinkUnresolved.Add(1)
			metrics.LinksDroppedUnresolved.Inc()
			continue
		}
		dst, ok := destByTitle[string(r.title)]
		if !ok {
			c.LinkUnresolved.Add(1)
			metrics.LinksDroppedUnresolved.Inc()
			continue
		}
		if src == dst {
			c.SelfLoops.Add(1)
			metrics.LinksDroppedSelfLoop.Inc()
			continue
		}
		edges = append(edges, Edge{Src: src, Dst: dst})
	}

	if err := outSort.AddBatch(edges); err != nil {
		return err
	}
	if err := inSort.AddBatch(edges); err != nil {
		return err
	}
	c.Edges.Add(uint64(len(edges)))
	metrics.EdgesWritten.Add(float64(len(edges)))
	return nil
}
