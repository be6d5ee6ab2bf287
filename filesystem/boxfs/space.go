package boxfs

import (
	"sort"

	"github.com/Joyfolk/boxfs/boxerr"
)

// spaceManager is a first-fit free-list allocator over [0, totalBlocks).
// The free list is always kept sorted by startBlock with no two entries
// adjacent or overlapping (maximally coalesced).
type spaceManager struct {
	totalBlocks uint64
	freeList    extentList
}

// newSpaceManager creates an empty space manager for the given capacity.
func newSpaceManager(totalBlocks uint64) *spaceManager {
	return &spaceManager{totalBlocks: totalBlocks}
}

// initializeNew sets the free list to a single extent covering
// [reservedBlocks, totalBlocks). Used when creating a brand new container.
func (s *spaceManager) initializeNew(reservedBlocks uint64) {
	if reservedBlocks >= s.totalBlocks {
		s.freeList = extentList{}
		return
	}
	s.freeList = extentList{{startBlock: reservedBlocks, blockCount: uint32(s.totalBlocks - reservedBlocks)}}
}

// setFreeExtents replaces the free list wholesale (used by deserialization),
// re-sorting and coalescing to restore the class invariant regardless of how
// the extents were ordered on disk.
func (s *spaceManager) setFreeExtents(list extentList) {
	s.freeList = list.clone()
	s.normalize()
}

// freeExtents returns a defensive copy of the current free list.
func (s *spaceManager) freeExtents() extentList {
	return s.freeList.clone()
}

// totalFreeBlocks returns the sum of free blocks across the whole free list.
func (s *spaceManager) totalFreeBlocks() uint64 {
	return s.freeList.totalBlocks()
}

// largestFreeExtent returns the largest single free extent, or the zero
// extent with ok=false if the free list is empty.
func (s *spaceManager) largestFreeExtent() (extent, bool) {
	if len(s.freeList) == 0 {
		return extent{}, false
	}
	best := s.freeList[0]
	for _, e := range s.freeList[1:] {
		if e.blockCount > best.blockCount {
			best = e
		}
	}
	return best, true
}

// allocate performs first-fit allocation of count contiguous blocks: it
// walks the free list in sorted order and returns the first extent with
// blockCount >= count, shrinking it from the front. Returns ok=false if no
// single free extent is large enough.
func (s *spaceManager) allocate(count uint32) (extent, bool) {
	if count == 0 {
		return extent{}, false
	}
	for i, e := range s.freeList {
		if e.blockCount >= count {
			alloc := extent{startBlock: e.startBlock, blockCount: count}
			if e.blockCount == count {
				s.freeList = append(s.freeList[:i], s.freeList[i+1:]...)
			} else {
				s.freeList[i] = extent{startBlock: e.startBlock + uint64(count), blockCount: e.blockCount - count}
			}
			return alloc, true
		}
	}
	return extent{}, false
}

// allocateMultiple greedily consumes the smallest-indexed free extents until
// count blocks have been handed out, splitting the last one as needed. It
// either returns exactly count blocks worth of extents, or (on insufficient
// total free space) rolls back anything it took and returns an empty list.
func (s *spaceManager) allocateMultiple(count uint32) extentList {
	if count == 0 {
		return nil
	}
	if uint64(count) > s.totalFreeBlocks() {
		return nil
	}

	var taken extentList
	remaining := count
	for remaining > 0 {
		e, ok := s.allocate(minUint32(remaining, s.freeList[0].blockCount))
		if !ok {
			// shouldn't happen given the totalFreeBlocks check above, but
			// roll back defensively rather than leak allocated blocks.
			s.freeAll(taken)
			return nil
		}
		taken = append(taken, e)
		remaining -= e.blockCount
	}
	return taken
}

// free returns a single extent to the free list, re-sorting and coalescing.
func (s *spaceManager) free(e extent) {
	s.freeList = append(s.freeList, e)
	s.normalize()
}

// freeAll returns a list of extents to the free list in one pass.
func (s *spaceManager) freeAll(list extentList) {
	if len(list) == 0 {
		return
	}
	s.freeList = append(s.freeList, list...)
	s.normalize()
}

// normalize restores the free-list invariant: sorted by startBlock, no two
// entries adjacent or overlapping. Coalesces to a fixpoint.
func (s *spaceManager) normalize() {
	if len(s.freeList) == 0 {
		return
	}
	sort.Slice(s.freeList, func(i, j int) bool { return s.freeList[i].startBlock < s.freeList[j].startBlock })

	merged := make(extentList, 0, len(s.freeList))
	cur := s.freeList[0]
	for _, next := range s.freeList[1:] {
		if m, err := mergeExtents(cur, next); err == nil {
			cur = m
			continue
		}
		merged = append(merged, cur)
		cur = next
	}
	merged = append(merged, cur)
	s.freeList = merged
}

// validate fails with InvalidFormat if the free list invariant does not
// hold. It is not called when metadata is loaded; tests exercise it directly.
func (s *spaceManager) validate() error {
	for i := 0; i < len(s.freeList); i++ {
		if s.freeList[i].endBlock() > s.totalBlocks {
			return boxerr.Newf(boxerr.InvalidFormat, "", "free extent %v exceeds total blocks %d", s.freeList[i], s.totalBlocks)
		}
		if i > 0 {
			prev := s.freeList[i-1]
			cur := s.freeList[i]
			if prev.startBlock >= cur.startBlock {
				return boxerr.Newf(boxerr.InvalidFormat, "", "free list out of order at index %d", i)
			}
			if prev.overlaps(cur) || prev.adjacentTo(cur) {
				return boxerr.Newf(boxerr.InvalidFormat, "", "free list has overlapping/adjacent entries at index %d", i)
			}
		}
	}
	return nil
}

func minUint32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
