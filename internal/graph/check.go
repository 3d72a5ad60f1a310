package graph

import (
	"fmt"
	"sort"
)

// Check verifies the structural invariants of the mapped store:
//
//   - both files are non-empty and a whole multiple of their word size;
//   - every index entry points inside vertex_al, past the file header;
//   - every adjacency list is strictly ascending;
//   - every listed neighbor has its own record (closed under reference);
//   - for each edge (u,v), u appears in v's incoming list and
//     vice versa.
//
// Reciprocity is verified exhaustively; at Wikipedia scale this is one
// sequential pass over the mapping, which a build can afford once.
func (db *EdgeDB) Check() error {
	if len(db.al) == 0 || len(db.al)%4 != 0 {
		return fmt.Errorf("vertex_al size %d is not a positive multiple of 4", len(db.al))
	}
	if len(db.ix) == 0 || len(db.ix)%8 != 0 {
		return fmt.Errorf("vertex_al_ix size %d is not a positive multiple of 8", len(db.ix))
	}

	maxOffset := uint64(len(db.al) - 4)
	maxID := db.MaxID()
	for id := uint32(0); ; id++ {
		off := db.recordOffset(id)
		if off != 0 {
			if off%4 != 0 {
				return fmt.Errorf("vertex %d: offset %d is not word-aligned", id, off)
			}
			if off < 8 || off > maxOffset {
				return fmt.Errorf("vertex %d: offset %d outside vertex_al (max %d)", id, off, maxOffset)
			}
			if err := db.checkVertex(id); err != nil {
				return err
			}
		}
		if id == maxID {
			break
		}
	}
	return nil
}

func (db *EdgeDB) checkVertex(id uint32) error {
	out := db.NeighborsOut(id)
	in := db.NeighborsIn(id)
	if err := checkAscending(id, "outgoing", out); err != nil {
		return err
	}
	if err := checkAscending(id, "incoming", in); err != nil {
		return err
	}
	for _, v := range out {
		if !db.Exists(v) {
			return fmt.Errorf("vertex %d: outgoing neighbor %d has no record", id, v)
		}
		if !contains(db.NeighborsIn(v), id) {
			return fmt.Errorf("edge (%d,%d) missing from %d's incoming list", id, v, v)
		}
	}
	for _, u := range in {
		if !db.Exists(u) {
			return fmt.Errorf("vertex %d: incoming neighbor %d has no record", id, u)
		}
		if !contains(db.NeighborsOut(u), id) {
			return fmt.Errorf("edge (%d,%d) missing from %d's outgoing list", u, id, u)
		}
	}
	return nil
}

func checkAscending(id uint32, direction string, list []uint32) error {
	for i, v := range list {
		if v == 0 {
			return fmt.Errorf("vertex %d: %s list contains sentinel value 0", id, direction)
		}
		if i > 0 && list[i-1] >= v {
			return fmt.Errorf("vertex %d: %s list not strictly ascending at %d", id, direction, i)
		}
	}
	return nil
}

func contains(list []uint32, v uint32) bool {
	i := sort.Search(len(list), func(i int) bool { return list[i] >= v })
	return i < len(list) && list[i] == v
}
