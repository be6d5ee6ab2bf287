package boxfs

import (
	"encoding/binary"

	"github.com/Joyfolk/boxfs/boxerr"
)

const (
	superblockMagic   uint32 = 0x424F5846 // "BOXF"
	superblockVersion uint32 = 1

	// superblockFixedHeaderSize is the size in bytes of the fixed portion of
	// the superblock, before the variable-length metadata-extent array.
	superblockFixedHeaderSize = 24
	// superblockExtentEntrySize is the encoded size of one {startBlock,blockCount} pair.
	superblockExtentEntrySize = 12

	minBlockSize uint32 = 512
)

// superblock is the fixed, one-block header stored at container offset 0.
type superblock struct {
	blockSize      uint32
	totalBlocks    uint64
	metadataExtent extentList
}

// maxMetadataExtents returns the maximum number of metadata extents that fit
// in a single block of the given size: floor((blockSize-24)/12).
func maxMetadataExtents(blockSize uint32) int {
	if blockSize < superblockFixedHeaderSize {
		return 0
	}
	return int((blockSize - superblockFixedHeaderSize) / superblockExtentEntrySize)
}

// isPowerOfTwo reports whether n is a power of two.
func isPowerOfTwo(n uint32) bool {
	return n != 0 && n&(n-1) == 0
}

// newSuperblock creates a superblock with an empty metadata-extent list.
func newSuperblock(blockSize uint32, totalBlocks uint64) (*superblock, error) {
	if blockSize < minBlockSize || !isPowerOfTwo(blockSize) {
		return nil, boxerr.Newf(boxerr.Invalid, "", "block size %d must be a power of two >= %d", blockSize, minBlockSize)
	}
	return &superblock{blockSize: blockSize, totalBlocks: totalBlocks}, nil
}

// setMetadataExtents replaces the superblock's metadata-extent list.
func (s *superblock) setMetadataExtents(list extentList) error {
	if len(list) > maxMetadataExtents(s.blockSize) {
		return boxerr.Newf(boxerr.Invalid, "", "too many metadata extents: %d > max %d", len(list), maxMetadataExtents(s.blockSize))
	}
	s.metadataExtent = list.clone()
	return nil
}

// serialize encodes the superblock into a blockSize-byte buffer, zero-padded
// past the used header and extent array.
func (s *superblock) serialize() []byte {
	buf := make([]byte, s.blockSize)
	binary.BigEndian.PutUint32(buf[0:4], superblockMagic)
	binary.BigEndian.PutUint32(buf[4:8], superblockVersion)
	binary.BigEndian.PutUint32(buf[8:12], s.blockSize)
	binary.BigEndian.PutUint64(buf[12:20], s.totalBlocks)
	binary.BigEndian.PutUint32(buf[20:24], uint32(len(s.metadataExtent)))

	off := superblockFixedHeaderSize
	for _, e := range s.metadataExtent {
		binary.BigEndian.PutUint64(buf[off:off+8], e.startBlock)
		binary.BigEndian.PutUint32(buf[off+8:off+12], e.blockCount)
		off += superblockExtentEntrySize
	}
	return buf
}

// deserializeSuperblock decodes a superblock from its on-disk bytes,
// validating magic, version, and extent-count bounds.
func deserializeSuperblock(buf []byte) (*superblock, error) {
	if len(buf) < superblockFixedHeaderSize {
		return nil, boxerr.Newf(boxerr.InvalidFormat, "", "superblock buffer too short: %d bytes", len(buf))
	}
	magic := binary.BigEndian.Uint32(buf[0:4])
	if magic != superblockMagic {
		return nil, boxerr.Newf(boxerr.InvalidFormat, "", "bad superblock magic 0x%08x", magic)
	}
	version := binary.BigEndian.Uint32(buf[4:8])
	if version != superblockVersion {
		return nil, boxerr.Newf(boxerr.InvalidFormat, "", "unsupported superblock version %d", version)
	}
	blockSize := binary.BigEndian.Uint32(buf[8:12])
	if blockSize < minBlockSize || !isPowerOfTwo(blockSize) {
		return nil, boxerr.Newf(boxerr.InvalidFormat, "", "invalid block size %d in superblock", blockSize)
	}
	totalBlocks := binary.BigEndian.Uint64(buf[12:20])
	extentCount := binary.BigEndian.Uint32(buf[20:24])

	maxExtents := maxMetadataExtents(blockSize)
	if int(extentCount) > maxExtents {
		return nil, boxerr.Newf(boxerr.InvalidFormat, "", "metadata extent count %d exceeds max %d", extentCount, maxExtents)
	}

	need := superblockFixedHeaderSize + int(extentCount)*superblockExtentEntrySize
	if len(buf) < need {
		return nil, boxerr.Newf(boxerr.InvalidFormat, "", "superblock buffer too short for %d extents", extentCount)
	}

	list := make(extentList, extentCount)
	off := superblockFixedHeaderSize
	for i := 0; i < int(extentCount); i++ {
		start := binary.BigEndian.Uint64(buf[off : off+8])
		count := binary.BigEndian.Uint32(buf[off+8 : off+12])
		list[i] = extent{startBlock: start, blockCount: count}
		off += superblockExtentEntrySize
	}

	return &superblock{blockSize: blockSize, totalBlocks: totalBlocks, metadataExtent: list}, nil
}
