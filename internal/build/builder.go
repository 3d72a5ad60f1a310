package build

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/wikiwalk/wikiwalk/internal/dump"
	"github.com/wikiwalk/wikiwalk/internal/graph"
	"github.com/wikiwalk/wikiwalk/internal/store"
)

// Builder runs the full pipeline for one dump generation:
//
//	page.sql      → sidecar vertexes        (vertex loader)
//	redirect.sql  → sidecar redirects       (redirect resolver)
//	pagelinks.sql → sorted unique edges     (edge resolver + external sort)
//	edges         → vertex_al/vertex_al_ix  (adjacency writer)
//
// The generation directory is immutable once status.json reports
// build_complete; intermediates live under the generation's work/ directory
// and are removed on success, kept on failure for diagnosis.
type Builder struct {
	Gen store.Generation

	PagePath      string
	RedirectPath  string
	PagelinksPath string

	// RunSize overrides the external-sort run size (edges per run);
	// 0 means DefaultRunSize.
	RunSize int
}

// Run executes the pipeline. A generation whose status reports vertexes
// already loaded skips the page pass, so a failed build can resume.
func (b *Builder) Run(ctx context.Context) error {
	start := time.Now()
	if err := b.Gen.Ensure(); err != nil {
		return fmt.Errorf("create generation dir: %w", err)
	}
	status, err := store.LoadStatus(b.Gen.Status())
	if err != nil {
		return err
	}
	if status.BuildComplete {
		log.Printf("build: generation %s already complete", b.Gen.Date)
		return nil
	}
	status.DumpDate = b.Gen.Date

	sc, err := store.OpenSidecar(b.Gen.GraphDB())
	if err != nil {
		return err
	}
	defer func() { _ = sc.Close() }()

	var c Counters

	if !status.VertexesLoaded {
		if err := b.loadVertexes(sc); err != nil {
			return err
		}
		status.VertexesLoaded = true
		if err := status.Save(); err != nil {
			return err
		}
	} else {
		log.Printf("build: vertexes already loaded, skipping page pass")
	}

	canonicalSet, redirectSet, err := loadIDSets(ctx, sc)
	if err != nil {
		return err
	}
	log.Printf("build: %d canonical vertexes, %d redirect sources",
		canonicalSet.GetCardinality(), redirectSet.GetCardinality())

	if err := b.resolveRedirects(ctx, sc, redirectSet, &c); err != nil {
		return err
	}

	workDir := b.Gen.Workspace()
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	edgeCount, err := b.buildAdjacency(ctx, sc, canonicalSet, redirectSet, workDir, status, &c)
	if err != nil {
		return err
	}

	// Verify the freshly written store before declaring success.
	gdb, err := graph.Open(b.Gen.VertexAL(), b.Gen.VertexALIx())
	if err != nil {
		return fmt.Errorf("reopen built graph: %w", err)
	}
	checkErr := gdb.Check()
	_ = gdb.Close()
	if checkErr != nil {
		return fmt.Errorf("built graph failed verification: %w", checkErr)
	}

	if err := b.writeBuildInfo(ctx, sc, canonicalSet.GetCardinality(), edgeCount, &c); err != nil {
		return err
	}
	status.BuildComplete = true
	if err := status.Save(); err != nil {
		return err
	}
	if err := os.RemoveAll(workDir); err != nil {
		log.Printf("build: leaving workspace behind: %v", err)
	}
	log.Printf("build: generation %s complete in %s (%d edges)", b.Gen.Date, time.Since(start).Round(time.Second), edgeCount)
	return nil
}

func (b *Builder) loadVertexes(sc *store.Sidecar) error {
	log.Printf("build: loading %s", b.PagePath)
	src, err := dump.OpenSQL(b.PagePath)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()
	_, err = LoadVertexes(dump.NewPageReader(src), sc)
	return err
}

func (b *Builder) resolveRedirects(ctx context.Context, sc *store.Sidecar, redirectSet *roaring.Bitmap, c *Counters) error {
	log.Printf("build: resolving %s", b.RedirectPath)
	src, err := dump.OpenSQL(b.RedirectPath)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()
	_, err = ResolveRedirects(ctx, dump.NewRedirectReader(src), sc, redirectSet, c)
	return err
}

func (b *Builder) buildAdjacency(ctx context.Context, sc *store.Sidecar,
	canonicalSet, redirectSet *roaring.Bitmap, workDir string,
	status *store.DBStatus, c *Counters) (uint64, error) {

	redirects, err := sc.LoadRedirects(ctx)
	if err != nil {
		return 0, err
	}

	log.Printf("build: resolving %s", b.PagelinksPath)
	src, err := dump.OpenSQL(b.PagelinksPath)
	if err != nil {
		return 0, err
	}
	defer func() { _ = src.Close() }()

	outSort := NewSorter(workDir, "out", BySrc, b.RunSize)
	inSort := NewSorter(workDir, "in", ByDst, b.RunSize)
	if err := ResolveEdges(ctx, dump.NewPageLinkReader(src), sc,
		canonicalSet, redirectSet, redirects, outSort, inSort, c); err != nil {
		return 0, err
	}
	status.EdgesResolved = true
	if err := status.Save(); err != nil {
		return 0, err
	}

	log.Printf("build: merging %d outgoing and %d incoming runs", outSort.RunCount(), inSort.RunCount())
	outIter, err := outSort.Merge()
	if err != nil {
		return 0, err
	}
	defer outIter.Close()
	inIter, err := inSort.Merge()
	if err != nil {
		return 0, err
	}
	defer inIter.Close()
	status.EdgesSorted = true
	if err := status.Save(); err != nil {
		return 0, err
	}

	maxID, err := sc.MaxVertexID(ctx)
	if err != nil {
		return 0, err
	}
	log.Printf("build: writing adjacency store for ids 0..%d", maxID)
	edgeCount, err := WriteAdjacency(outIter, inIter, maxID, b.Gen.VertexAL(), b.Gen.VertexALIx())
	if err != nil {
		return 0, err
	}
	return edgeCount, nil
}

func (b *Builder) writeBuildInfo(ctx context.Context, sc *store.Sidecar, vertexCount, edgeCount uint64, c *Counters) error {
	info := map[string]string{
		"dump_date":           b.Gen.Date,
		"vertex_count":        strconv.FormatUint(vertexCount, 10),
		"edge_count":          strconv.FormatUint(edgeCount, 10),
		"build_complete_at":   time.Now().UTC().Format(time.RFC3339),
		"redirects_cycle":     strconv.FormatUint(c.RedirectCycle.Load(), 10),
		"redirects_too_deep":  strconv.FormatUint(c.RedirectTooDeep.Load(), 10),
		"redirects_no_target": strconv.FormatUint(c.RedirectUnresolved.Load(), 10),
		"links_unresolved":    strconv.FormatUint(c.LinkUnresolved.Load(), 10),
		"links_self_loop":     strconv.FormatUint(c.SelfLoops.Load(), 10),
	}
	for k, v := range info {
		if err := sc.SetBuildInfo(k, v); err != nil {
			return err
		}
	}
	return nil
}

func loadIDSets(ctx context.Context, sc *store.Sidecar) (canonical, redirect *roaring.Bitmap, err error) {
	canonical = roaring.New()
	if err := sc.IterateIDs(ctx, false, func(id uint32) error {
		canonical.Add(id)
		return nil
	}); err != nil {
		return nil, nil, err
	}
	redirect = roaring.New()
	if err := sc.IterateIDs(ctx, true, func(id uint32) error {
		redirect.Add(id)
		return nil
	}); err != nil {
		return nil, nil, err
	}
	return canonical, redirect, nil
}
