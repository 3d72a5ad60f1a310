package build

import (
	"context"
	"io"
	"log"
	"runtime"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"golang.org/x/sync/errgroup"

	"github.com/wikiwalk/wikiwalk/internal/dump"
	"github.com/wikiwalk/wikiwalk/internal/metrics"
	"github.com/wikiwalk/wikiwalk/internal/store"
)

// MaxRedirectDepth bounds transitive redirect resolution. Chains longer than
// this (including cycles, which never terminate) are dropped.
const MaxRedirectDepth = 8

// lookupChunk keeps title batches under SQLite's bound-parameter limit.
const lookupChunk = 2000

type redirectRow struct {
	from  uint32
	title []byte
}

// ResolveRedirects streams the redirect table, resolves every namespace-0
// redirect transitively to a canonical vertex, and writes the result to the
// sidecar's redirects table. Chains that cycle, exceed MaxRedirectDepth, or
// point at titles with no page entry are dropped under a warning counter.
//
// redirectSet is the set of page ids with is_redirect=1 from the vertex
// load; it decides whether a resolved target needs another hop.
func ResolveRedirects(ctx context.Context, rr *dump.RedirectReader, sc *store.Sidecar, redirectSet *roaring.Bitmap, c *Counters) (uint32, error) {
	// Phase 1: fan out title lookups to produce the one-hop map
	// from_id → immediate target id.
	chunks := make(chan []redirectRow, 4)
	results := make(chan map[uint32]uint32, 4)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < runtime.NumCPU(); i++ {
		g.Go(func() error {
			for chunk := range chunks {
				hop, err := resolveChunk(gctx, sc, chunk, c)
				if err != nil {
					return err
				}
				select {
				case results <- hop:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	firstHop := make(map[uint32]uint32)
	var reduceWG sync.WaitGroup
	reduceWG.Add(1)
	go func() {
		defer reduceWG.Done()
		for hop := range results {
			for k, v := range hop {
				firstHop[k] = v
			}
		}
	}()

	err := func() error {
		defer close(chunks)
		chunk := make([]redirectRow, 0, lookupChunk)
		for {
			row, err := rr.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			if row.Namespace != 0 {
				continue
			}
			title := make([]byte, len(row.Title))
			copy(title, row.Title)
			chunk = append(chunk, redirectRow{from: row.From, title: title})
			if len(chunk) == lookupChunk {
				select {
				case chunks <- chunk:
				case <-gctx.Done():
					return gctx.Err()
				}
				chunk = make([]redirectRow, 0, lookupChunk)
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
	close(results)
	reduceWG.Wait()
	if err != nil {
		return 0, err
	}
	log.Printf("redirect resolve: %d one-hop entries", len(firstHop))

	// Phase 2: walk chains to canonical targets and persist.
	w, err := sc.NewRedirectWriter()
	if err != nil {
		return 0, err
	}
	var written uint32
	for from, target := range firstHop {
		to, ok := resolveChain(from, target, redirectSet, firstHop, c)
		if !ok {
			continue
		}
		if err := w.Write(from, to); err != nil {
			w.Rollback()
			return 0, err
		}
		written++
	}
	if err := w.Commit(); err != nil {
		return 0, err
	}
	log.Printf("redirect resolve complete: %d resolved, %d cycle, %d too deep, %d unresolved",
		written, c.RedirectCycle.Load(), c.RedirectTooDeep.Load(), c.RedirectUnresolved.Load())
	return written, nil
}

// resolveChunk looks up one batch of redirect target titles.
func resolveChunk(ctx context.Context, sc *store.Sidecar, chunk []redirectRow, c *Counters) (map[uint32]uint32, error) {
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
		return nil, err
	}
	hop := make(map[uint32]uint32, len(chunk))
	for _, r := range chunk {
		v, ok := found[string(r.title)]
		if !ok {
			c.RedirectUnresolved.Add(1)
			metrics.RedirectsDroppedUnresolved.Inc()
			continue
		}
		hop[r.from] = v.ID
	}
	return hop, nil
}

// resolveChain follows the one-hop map until it leaves the redirect set.
// Returns (canonical id, true), or false when the chain cycles, runs past
// MaxRedirectDepth, or dead-ends on a redirect page with no parsed row.
func resolveChain(from, target uint32, redirectSet *roaring.Bitmap, firstHop map[uint32]uint32, c *Counters) (uint32, bool) {
	visited := [MaxRedirectDepth]uint32{from}
	cur := target
	for depth := 1; ; depth++ {
		if !redirectSet.Contains(cur) {
			return cur, true
		}
		for _, v := range visited[:depth] {
			if v == cur {
				c.RedirectCycle.Add(1)
				metrics.RedirectsDroppedCycle.Inc()
				return 0, false
			}
		}
		if depth == MaxRedirectDepth {
			c.RedirectTooDeep.Add(1)
			metrics.RedirectsDroppedTooDeep.Inc()
			return 0, false
		}
		next, ok := firstHop[cur]
		if !ok {
			c.RedirectUnresolved.Add(1)
			metrics.RedirectsDroppedUnresolved.Inc()
			return 0, false
		}
		visited[depth] = cur
		cur = next
	}
}
