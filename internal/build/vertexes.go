package build

import (
	"fmt"
	"io"
	"log"

	"github.com/wikiwalk/wikiwalk/internal/dump"
	"github.com/wikiwalk/wikiwalk/internal/store"
)

// DuplicateTitleError aborts a build: two canonical vertices share a title,
// so title-based link resolution would be ambiguous.
type DuplicateTitleError struct {
	Title string
}

func (e *DuplicateTitleError) Error() string {
	return fmt.Sprintf("duplicate canonical title %q", e.Title)
}

// LoadVertexes streams the page table into the sidecar. Namespace-0
// non-redirect rows become canonical vertices; namespace-0 redirect rows are
// retained as redirect sources; everything else is dropped. Returns the
// number of canonical vertices loaded.
//
// Vertex id 0 is the adjacency-list null sentinel and must never be
// assigned; Wikipedia page ids start at 1, so a 0 id marks a corrupt dump.
func LoadVertexes(pages *dump.PageReader, sc *store.Sidecar) (uint32, error) {
	w, err := sc.NewVertexWriter()
	if err != nil {
		return 0, err
	}
	var canonical, redirects uint32
	for {
		row, err := pages.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			w.Rollback()
			return 0, err
		}
		if row.Namespace != 0 {
			continue
		}
		if row.ID == 0 {
			w.Rollback()
			return 0, fmt.Errorf("page row has reserved id 0 (title %q)", row.Title)
		}
		if err := w.Write(store.Vertex{ID: row.ID, Title: row.Title, IsRedirect: row.IsRedirect}); err != nil {
			w.Rollback()
			return 0, fmt.Errorf("insert vertex %d: %w", row.ID, err)
		}
		if row.IsRedirect {
			redirects++
		} else {
			canonical++
		}
		if total := canonical + redirects; total%1_000_000 == 0 {
			log.Printf("vertex load: %d pages (%d canonical)", total, canonical)
		}
	}
	if err := w.Commit(); err != nil {
		return 0, fmt.Errorf("commit vertex load: %w", err)
	}
	log.Printf("vertex load complete: %d canonical, %d redirect sources", canonical, redirects)

	if err := sc.CreateTitleIndex(); err != nil {
		return 0, err
	}
	if dupe, err := sc.FirstDuplicateTitle(); err != nil {
		return 0, err
	} else if dupe != nil {
		return 0, &DuplicateTitleError{Title: string(dupe)}
	}
	return canonical, nil
}
