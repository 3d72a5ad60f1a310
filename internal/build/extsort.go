package build

import (
	"bufio"
	"container/heap"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Edge is one directed (src, dst) pair of canonical vertex ids. On disk an
// edge is 8 bytes: both ids little-endian u32.
type Edge struct {
	Src uint32
	Dst uint32
}

const edgeBytes = 8

// Less orders edges for one sort direction.
type Less func(a, b Edge) bool

// BySrc orders by (src, dst), the outgoing-list order.
func BySrc(a, b Edge) bool {
	if a.Src != b.Src {
		return a.Src < b.Src
	}
	return a.Dst < b.Dst
}

// ByDst orders by (dst, src), the incoming-list order.
func ByDst(a, b Edge) bool {
	if a.Dst != b.Dst {
		return a.Dst < b.Dst
	}
	return a.Src < b.Src
}

// DefaultRunSize is the number of edges buffered per sorted run: 4M edges,
// 32 MB of RAM per run buffer.
const DefaultRunSize = 4 << 20

// Sorter is a bounded-memory external sorter for edges. Adds accumulate in
// an in-memory buffer; each full buffer is sorted and written as one run
// file; Merge streams the k-way merged, deduplicated result. Add is safe for
// concurrent use by the resolver workers.
type Sorter struct {
	dir     string
	prefix  string
	less    Less
	runSize int

	mu   sync.Mutex
	buf  []Edge
	runs []string
}

func NewSorter(dir, prefix string, less Less, runSize int) *Sorter {
	if runSize <= 0 {
		runSize = DefaultRunSize
	}
	return &Sorter{dir: dir, prefix: prefix, less: less, runSize: runSize}
}

func (s *Sorter) Add(e Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, e)
	if len(s.buf) >= s.runSize {
		return s.flushLocked()
	}
	return nil
}

// AddBatch appends a chunk of edges under one lock acquisition.
func (s *Sorter) AddBatch(edges []Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range edges {
		s.buf = append(s.buf, e)
		if len(s.buf) >= s.runSize {
			if err := s.flushLocked(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Sorter) flushLocked() error {
	if len(s.buf) == 0 {
		return nil
	}
	run := s.buf
	sort.Slice(run, func(i, j int) bool { return s.less(run[i], run[j]) })

	path := filepath.Join(s.dir, fmt.Sprintf("%s-run-%04d", s.prefix, len(s.runs)))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create sort run: %w", err)
	}
	w := bufio.NewWriterSize(f, 1<<20)
	var rec [edgeBytes]byte
	for _, e := range run {
		binary.LittleEndian.PutUint32(rec[0:4], e.Src)
		binary.LittleEndian.PutUint32(rec[4:8], e.Dst)
		if _, err := w.Write(rec[:]); err != nil {
			_ = f.Close()
			return fmt.Errorf("write sort run: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush sort run: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close sort run: %w", err)
	}
	s.runs = append(s.runs, path)
	s.buf = s.buf[:0]
	return nil
}

// Merge flushes the remaining buffer and returns an iterator over the merged
// runs in sort order with exact duplicates removed. The sorter must not be
// Added to afterwards.
func (s *Sorter) Merge() (*EdgeIterator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flushLocked(); err != nil {
		return nil, err
	}
	it := &EdgeIterator{less: s.less}
	for _, path := range s.runs {
		r, err := openRun(path)
		if err != nil {
			it.Close()
			return nil, err
		}
		it.srcs = append(it.srcs, r)
	}
	if err := it.init(); err != nil {
		it.Close()
		return nil, err
	}
	return it, nil
}

// RunCount reports how many run files have been written so far.
func (s *Sorter) RunCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

type runReader struct {
	f   *os.File
	r   *bufio.Reader
	cur Edge
	ok  bool
}

func openRun(path string) (*runReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sort run: %w", err)
	}
	return &runReader{f: f, r: bufio.NewReaderSize(f, 1<<20)}, nil
}

func (r *runReader) advance() error {
	var rec [edgeBytes]byte
	_, err := io.ReadFull(r.r, rec[:])
	if err == io.EOF {
		r.ok = false
		return nil
	}
	if err != nil {
		return fmt.Errorf("read sort run: %w", err)
	}
	r.cur = Edge{
		Src: binary.LittleEndian.Uint32(rec[0:4]),
		Dst: binary.LittleEndian.Uint32(rec[4:8]),
	}
	r.ok = true
	return nil
}

func (r *runReader) close() { _ = r.f.Close() }

// EdgeIterator streams the k-way merge of sorted runs, deduplicated. It
// supports one-edge lookahead for the merge-join in the adjacency writer.
type EdgeIterator struct {
	less Less
	srcs []*runReader
	h    runHeap

	peeked  bool
	peekVal Edge

	havePrev bool
	prev     Edge
}

func (it *EdgeIterator) init() error {
	it.h = runHeap{less: it.less}
	for _, r := range it.srcs {
		if err := r.advance(); err != nil {
			return err
		}
		if r.ok {
			it.h.readers = append(it.h.readers, r)
		}
	}
	heap.Init(&it.h)
	return nil
}

// Next returns the next unique edge; ok=false at end of stream.
func (it *EdgeIterator) Next() (Edge, bool, error) {
	if it.peeked {
		it.peeked = false
		return it.peekVal, true, nil
	}
	for {
		e, ok, err := it.rawNext()
		if err != nil || !ok {
			return Edge{}, false, err
		}
		if it.havePrev && e == it.prev {
			continue
		}
		it.havePrev = true
		it.prev = e
		return e, true, nil
	}
}

// Peek returns the next unique edge without consuming it.
func (it *EdgeIterator) Peek() (Edge, bool, error) {
	if it.peeked {
		return it.peekVal, true, nil
	}
	e, ok, err := it.Next()
	if err != nil || !ok {
		return Edge{}, false, err
	}
	it.peeked = true
	it.peekVal = e
	return e, true, nil
}

func (it *EdgeIterator) rawNext() (Edge, bool, error) {
	if it.h.Len() == 0 {
		return Edge{}, false, nil
	}
	r := it.h.readers[0]
	e := r.cur
	if err := r.advance(); err != nil {
		return Edge{}, false, err
	}
	if r.ok {
		heap.Fix(&it.h, 0)
	} else {
		heap.Pop(&it.h)
	}
	return e, true, nil
}

func (it *EdgeIterator) Close() {
	for _, r := range it.srcs {
		r.close()
	}
	it.srcs = nil
}

type runHeap struct {
	less    Less
	readers []*runReader
}

func (h *runHeap) Len() int { return len(h.readers) }
func (h *runHeap) Less(i, j int) bool {
	return h.less(h.readers[i].cur, h.readers[j].cur)
}
func (h *runHeap) Swap(i, j int) { h.readers[i], h.readers[j] = h.readers[j], h.readers[i] }
func (h *runHeap) Push(x any)    { h.readers = append(h.readers, x.(*runReader)) }

func (h *runHeap) Pop() any {
	last := h.readers[len(h.readers)-1]
	h.readers = h.readers[:len(h.readers)-1]
	return last
}

var _ heap.Interface = (*runHeap)(nil)
