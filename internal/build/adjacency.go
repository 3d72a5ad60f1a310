package build

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
)

// alHeader pads the start of vertex_al so no record can begin at byte
// offset 0, which the index file reserves to mean "absent".
var alHeader = [8]byte{'W', 'W', 'A', 'L', 'K', 0, 0, 1}

// WriteAdjacency consumes two sorted, deduplicated edge streams (outgoing
// ordered by (src,dst), incoming ordered by (dst,src)) in lock-step over
// ascending vertex ids, and writes the vertex_al / vertex_al_ix pair.
//
// Per vertex with any edges the record is [out…, 0, in…, 0] as little-endian
// u32; the index holds the record's byte offset as little-endian u64, or 0
// for vertices with no edges. The index covers ids 0..maxID inclusive.
//
// Returns the number of edges written to outgoing lists (the graph's edge
// count).
func WriteAdjacency(out, in *EdgeIterator, maxID uint32, alPath, ixPath string) (uint64, error) {
	alFile, err := os.Create(alPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", alPath, err)
	}
	defer func() { _ = alFile.Close() }()
	ixFile, err := os.Create(ixPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", ixPath, err)
	}
	defer func() { _ = ixFile.Close() }()

	alw := bufio.NewWriterSize(alFile, 1<<20)
	ixw := bufio.NewWriterSize(ixFile, 1<<20)

	if _, err := alw.Write(alHeader[:]); err != nil {
		return 0, err
	}
	offset := uint64(len(alHeader))

	var edgeCount uint64
	var outBuf, inBuf []uint32
	var word [4]byte
	var ixWord [8]byte

	for id := uint32(0); ; id++ {
		outBuf = outBuf[:0]
		inBuf = inBuf[:0]

		// Collect this vertex's outgoing group. The stream is sorted and
		// unique, so the group is a contiguous ascending run of dst ids.
		for {
			e, ok, err := out.Peek()
			if err != nil {
				return 0, err
			}
			if !ok || e.Src != id {
				break
			}
			_, _, _ = out.Next()
			outBuf = append(outBuf, e.Dst)
		}
		// Collect this vertex's incoming group.
		for {
			e, ok, err := in.Peek()
			if err != nil {
				return 0, err
			}
			if !ok || e.Dst != id {
				break
			}
			_, _, _ = in.Next()
			inBuf = append(inBuf, e.Src)
		}

		if len(outBuf) == 0 && len(inBuf) == 0 {
			binary.LittleEndian.PutUint64(ixWord[:], 0)
		} else {
			binary.LittleEndian.PutUint64(ixWord[:], offset)
			recorded, err := writeRecord(alw, outBuf, inBuf, &word)
			if err != nil {
				return 0, err
			}
			offset += recorded
			edgeCount += uint64(len(outBuf))
		}
		if _, err := ixw.Write(ixWord[:]); err != nil {
			return 0, err
		}

		if id == maxID {
			break
		}
	}

	// Both streams must be exhausted: a leftover edge names a vertex above
	// maxID, which would make the store unindexable.
	if e, ok, err := out.Peek(); err != nil {
		return 0, err
	} else if ok {
		return 0, fmt.Errorf("outgoing edge %d->%d exceeds max vertex id %d", e.Src, e.Dst, maxID)
	}
	if e, ok, err := in.Peek(); err != nil {
		return 0, err
	} else if ok {
		return 0, fmt.Errorf("incoming edge %d->%d exceeds max vertex id %d", e.Src, e.Dst, maxID)
	}

	if err := alw.Flush(); err != nil {
		return 0, err
	}
	if err := ixw.Flush(); err != nil {
		return 0, err
	}
	if err := alFile.Sync(); err != nil {
		return 0, err
	}
	if err := ixFile.Sync(); err != nil {
		return 0, err
	}
	return edgeCount, nil
}

func writeRecord(w *bufio.Writer, out, in []uint32, word *[4]byte) (uint64, error) {
	write := func(v uint32) error {
		binary.LittleEndian.PutUint32(word[:], v)
		_, err := w.Write(word[:])
		return err
	}
	for _, v := range out {
		if err := write(v); err != nil {
			return 0, err
		}
	}
	if err := write(0); err != nil {
		return 0, err
	}
	for _, v := range in {
		if err := write(v); err != nil {
			return 0, err
		}
	}
	if err := write(0); err != nil {
		return 0, err
	}
	return uint64((len(out) + len(in) + 2) * 4), nil
}
