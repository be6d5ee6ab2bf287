package boxfs

import "github.com/Joyfolk/boxfs/boxerr"

// extent is a contiguous run of blocks (startBlock, blockCount). It is an
// immutable value type, mirroring the leaf-extent shape used for ext4-style
// extent trees but flattened to the plain ordered list this container's
// metadata format uses.
type extent struct {
	startBlock uint64
	blockCount uint32
}

// newExtent validates and constructs an extent.
func newExtent(startBlock uint64, blockCount uint32) (extent, error) {
	if blockCount == 0 {
		return extent{}, boxerr.Newf(boxerr.Invalid, "", "extent block count must be > 0")
	}
	return extent{startBlock: startBlock, blockCount: blockCount}, nil
}

// endBlock returns the first block past the end of the extent (exclusive).
func (e extent) endBlock() uint64 {
	return e.startBlock + uint64(e.blockCount)
}

// sizeBytes returns the size in bytes of the extent, given a block size.
func (e extent) sizeBytes(blockSize uint32) uint64 {
	return uint64(e.blockCount) * uint64(blockSize)
}

// adjacentTo reports whether e immediately precedes other on disk.
func (e extent) adjacentTo(other extent) bool {
	return e.endBlock() == other.startBlock
}

// overlaps reports whether e and other share any block.
func (e extent) overlaps(other extent) bool {
	return e.startBlock < other.endBlock() && other.startBlock < e.endBlock()
}

// mergeExtents merges two adjacent extents into their union. It fails with
// Invalid if the extents are not adjacent (in either order).
func mergeExtents(a, b extent) (extent, error) {
	switch {
	case a.adjacentTo(b):
		return extent{startBlock: a.startBlock, blockCount: a.blockCount + b.blockCount}, nil
	case b.adjacentTo(a):
		return extent{startBlock: b.startBlock, blockCount: b.blockCount + a.blockCount}, nil
	default:
		return extent{}, boxerr.Newf(boxerr.Invalid, "", "extents %v and %v are not adjacent", a, b)
	}
}

// extentList is a slice of extents, ordered as they appear in an inode's
// data map (logical order), or as a free list (physical order by
// startBlock, depending on context).
type extentList []extent

// totalBlocks sums the block counts of every extent in the list.
func (l extentList) totalBlocks() uint64 {
	var total uint64
	for _, e := range l {
		total += uint64(e.blockCount)
	}
	return total
}

// totalBytes sums the byte size of every extent in the list, given a block size.
func (l extentList) totalBytes(blockSize uint32) uint64 {
	return l.totalBlocks() * uint64(blockSize)
}

// clone returns a defensive copy of the list.
func (l extentList) clone() extentList {
	out := make(extentList, len(l))
	copy(out, l)
	return out
}
