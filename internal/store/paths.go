package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths resolves the on-disk layout rooted at DATA_ROOT:
//
//	<root>/<date>/graph.db
//	<root>/<date>/vertex_al
//	<root>/<date>/vertex_al_ix
//	<root>/<date>/status.json
//	<root>/current -> <date>
//	<root>/dumps/<wiki>-<date>-<table>.sql.gz
type Paths struct {
	Base string
}

// NewPaths reads DATA_ROOT, falling back to ~/data/wikiwalk, and creates the
// root directory.
func NewPaths() (Paths, error) {
	base := os.Getenv("DATA_ROOT")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, fmt.Errorf("resolve home dir: %w", err)
		}
		base = filepath.Join(home, "data", "wikiwalk")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return Paths{}, fmt.Errorf("create data root: %w", err)
	}
	return Paths{Base: base}, nil
}

// Generation is the directory of one immutable build, identified by dump
// date. A generation resolved through the current symlink carries the date
// the symlink points at.
type Generation struct {
	Dir  string
	Date string
}

func (p Paths) Generation(date string) Generation {
	return Generation{Dir: filepath.Join(p.Base, date), Date: date}
}

// Current resolves the current symlink to its generation. Fails when no
// build has been promoted yet.
func (p Paths) Current() (Generation, error) {
	link := filepath.Join(p.Base, "current")
	target, err := os.Readlink(link)
	if err != nil {
		return Generation{}, fmt.Errorf("resolve current generation: %w", err)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(p.Base, target)
	}
	return Generation{Dir: target, Date: filepath.Base(target)}, nil
}

// Promote atomically repoints the current symlink at the given generation.
func (p Paths) Promote(gen Generation) error {
	link := filepath.Join(p.Base, "current")
	tmp := link + ".tmp"
	_ = os.Remove(tmp)
	if err := os.Symlink(gen.Date, tmp); err != nil {
		return fmt.Errorf("create generation symlink: %w", err)
	}
	if err := os.Rename(tmp, link); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("promote generation %s: %w", gen.Date, err)
	}
	return nil
}

// DumpDir is where fetched dump files live, shared across generations.
func (p Paths) DumpDir() string { return filepath.Join(p.Base, "dumps") }

// DumpFile names a downloaded dump table file.
func (p Paths) DumpFile(wiki, date, table string) string {
	return filepath.Join(p.DumpDir(), fmt.Sprintf("%s-%s-%s.sql.gz", wiki, date, table))
}

func (g Generation) Ensure() error { return os.MkdirAll(g.Dir, 0o755) }

func (g Generation) GraphDB() string    { return filepath.Join(g.Dir, "graph.db") }
func (g Generation) VertexAL() string   { return filepath.Join(g.Dir, "vertex_al") }
func (g Generation) VertexALIx() string { return filepath.Join(g.Dir, "vertex_al_ix") }
func (g Generation) Status() string     { return filepath.Join(g.Dir, "status.json") }
func (g Generation) Sitemaps() string   { return filepath.Join(g.Dir, "sitemaps") }
func (g Generation) TopGraph() string   { return filepath.Join(g.Dir, "topgraph.json") }

// Workspace is the scratch directory for build intermediates (edge runs,
// sort output). Removed on success, kept on failure for diagnosis.
func (g Generation) Workspace() string { return filepath.Join(g.Dir, "work") }
