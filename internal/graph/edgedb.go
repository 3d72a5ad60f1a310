// Package graph is the read path of the adjacency store: a memory-mapped
// accessor over the vertex_al / vertex_al_ix pair and the bidirectional BFS
// that runs against it.
package graph

import (
	"encoding/binary"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// EdgeDB is the read-only, memory-mapped adjacency store. It holds no
// mutable state beyond the mappings, so a single instance is shared freely
// across query goroutines for the process lifetime.
//
// vertex_al_ix is an array of little-endian u64 byte offsets indexed by
// vertex id; 0 means the vertex has no record. vertex_al holds per-vertex
// records [out…, 0, in…, 0] of little-endian u32.
type EdgeDB struct {
	al []byte
	ix []byte

	// alWords aliases al as host-order u32 words. The store is little-endian
	// on disk and the accessor only runs on little-endian hosts; Open
	// verifies the byte order once instead of decoding per word.
	alWords []uint32
}

// Open maps both files. The returned EdgeDB is valid until Close.
func Open(alPath, ixPath string) (*EdgeDB, error) {
	al, err := mmapFile(alPath)
	if err != nil {
		return nil, err
	}
	ix, err := mmapFile(ixPath)
	if err != nil {
		_ = unix.Munmap(al)
		return nil, err
	}
	db := &EdgeDB{al: al, ix: ix}
	if len(al) >= 4 {
		if hostOrderIsLittleEndian() {
			db.alWords = unsafe.Slice((*uint32)(unsafe.Pointer(&al[0])), len(al)/4)
		} else {
			_ = db.Close()
			return nil, fmt.Errorf("adjacency store requires a little-endian host")
		}
	}
	return db, nil
}

func mmapFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("mmap %s: empty file", path)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	// Queries hop across the file; readahead buys nothing.
	_ = unix.Madvise(data, unix.MADV_RANDOM)
	return data, nil
}

func hostOrderIsLittleEndian() bool {
	x := uint16(1)
	return *(*byte)(unsafe.Pointer(&x)) == 1
}

// Close unmaps both files. No reads may be in flight.
func (db *EdgeDB) Close() error {
	err := unix.Munmap(db.al)
	if err2 := unix.Munmap(db.ix); err == nil {
		err = err2
	}
	db.al, db.ix, db.alWords = nil, nil, nil
	return err
}

// MaxID returns the highest vertex id covered by the index.
func (db *EdgeDB) MaxID() uint32 {
	n := len(db.ix) / 8
	if n == 0 {
		return 0
	}
	return uint32(n - 1)
}

func (db *EdgeDB) recordOffset(id uint32) uint64 {
	pos := int(id) * 8
	if pos+8 > len(db.ix) {
		return 0
	}
	return binary.LittleEndian.Uint64(db.ix[pos : pos+8])
}

// Exists reports whether the vertex has an adjacency record (at least one
// edge in either direction).
func (db *EdgeDB) Exists(id uint32) bool {
	return db.recordOffset(id) != 0
}

// NeighborsOut returns the vertex's outgoing neighbors, ascending. The slice
// aliases the mapping and must not be modified or retained past Close.
func (db *EdgeDB) NeighborsOut(id uint32) []uint32 {
	off := db.recordOffset(id)
	if off == 0 {
		return nil
	}
	start := int(off / 4)
	return db.run(start)
}

// NeighborsIn returns the vertex's incoming neighbors, ascending.
func (db *EdgeDB) NeighborsIn(id uint32) []uint32 {
	off := db.recordOffset(id)
	if off == 0 {
		return nil
	}
	start := int(off / 4)
	// skip the outgoing run and its sentinel
	i := start
	for i < len(db.alWords) && db.alWords[i] != 0 {
		i++
	}
	return db.run(i + 1)
}

// run returns the words from start up to the next 0 sentinel.
func (db *EdgeDB) run(start int) []uint32 {
	if start >= len(db.alWords) {
		return nil
	}
	end := start
	for end < len(db.alWords) && db.alWords[end] != 0 {
		end++
	}
	return db.alWords[start:end]
}
