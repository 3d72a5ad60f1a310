package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/wikiwalk/wikiwalk/internal/graph"
	"github.com/wikiwalk/wikiwalk/internal/store"
)

// urlsPerChunk is the sitemap protocol's per-file URL limit.
const urlsPerChunk = 50_000

// DefaultTopPages bounds the pair space: the full cartesian product over all
// canonical vertices is astronomically large, so sitemaps cover only pairs
// of the most-linked pages.
const DefaultTopPages = 1000

const xmlns = "http://www.sitemaps.org/schemas/sitemap/0.9"

// WriteSitemaps emits sitemap-<n>.xml.gz chunks plus sitemap-index.xml.gz
// into dir. URLs are the site root plus every ordered pair of the top
// topPages vertices by in-degree.
func WriteSitemaps(db *graph.EdgeDB, dir, baseURL string, topPages int) error {
	if topPages <= 0 {
		topPages = DefaultTopPages
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sitemap dir: %w", err)
	}

	ids := TopByInDegree(db, topPages)
	log.Printf("sitemap: %d top pages, %d candidate pairs", len(ids), len(ids)*(len(ids)-1))

	urls := make(chan string, 1024)
	go func() {
		defer close(urls)
		urls <- baseURL
		for _, s := range ids {
			for _, t := range ids {
				if s != t {
					urls <- fmt.Sprintf("%s/paths/%d/%d", baseURL, s, t)
				}
			}
		}
	}()

	chunk := make([]string, 0, urlsPerChunk)
	chunks := 0
	for u := range urls {
		chunk = append(chunk, u)
		if len(chunk) == urlsPerChunk {
			if err := writeChunk(dir, chunks, chunk); err != nil {
				return err
			}
			chunks++
			chunk = chunk[:0]
		}
	}
	if len(chunk) > 0 {
		if err := writeChunk(dir, chunks, chunk); err != nil {
			return err
		}
		chunks++
	}
	log.Printf("sitemap: wrote %d chunks", chunks)
	return writeIndex(dir, baseURL, chunks)
}

type urlset struct {
	XMLName xml.Name `xml:"urlset"`
	Xmlns   string   `xml:"xmlns,attr"`
	URLs    []urlLoc `xml:"url"`
}

type urlLoc struct {
	Loc string `xml:"loc"`
}

type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Xmlns    string   `xml:"xmlns,attr"`
	Sitemaps []urlRef `xml:"sitemap"`
}

type urlRef struct {
	Loc string `xml:"loc"`
}

func writeChunk(dir string, n int, locs []string) error {
	set := urlset{Xmlns: xmlns, URLs: make([]urlLoc, len(locs))}
	for i, l := range locs {
		set.URLs[i] = urlLoc{Loc: l}
	}
	return writeGzXML(filepath.Join(dir, fmt.Sprintf("sitemap-%d.xml.gz", n)), &set)
}

func writeIndex(dir, baseURL string, chunks int) error {
	idx := sitemapIndex{Xmlns: xmlns}
	for i := 0; i < chunks; i++ {
		idx.Sitemaps = append(idx.Sitemaps, urlRef{
			Loc: fmt.Sprintf("%s/sitemaps/sitemap-%d.xml.gz", baseURL, i),
		})
	}
	return writeGzXML(filepath.Join(dir, "sitemap-index.xml.gz"), &idx)
}

func writeGzXML(path string, doc any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write([]byte(xml.Header)); err != nil {
		_ = f.Close()
		return err
	}
	enc := xml.NewEncoder(zw)
	if err := enc.Encode(doc); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := zw.Close(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteVertexList dumps every canonical vertex id and title as JSON lines
// for the web service's URL generation.
func WriteVertexList(ctx context.Context, sc *store.Sidecar, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create vertex list: %w", err)
	}
	defer func() { _ = f.Close() }()
	err = sc.IterateCanonical(ctx, func(v store.Vertex) error {
		_, werr := fmt.Fprintf(f, "{\"id\":%d,\"title\":%q}\n", v.ID, v.Title)
		return werr
	})
	if err != nil {
		return err
	}
	return f.Close()
}
