package boxfs

import (
	"encoding/binary"

	"github.com/Joyfolk/boxfs/boxerr"
)

// serializeMetadata encodes the full metadata region: inodes, directory
// entries, then free extents, big-endian throughout.
func serializeMetadata(inodes *inodeTable, dirs *directoryTable, space *spaceManager) []byte {
	buf := make([]byte, 0, 4096)

	all := inodes.all()
	buf = appendUint32(buf, uint32(len(all)))
	for _, n := range all {
		buf = appendUint64(buf, n.id)
		buf = append(buf, byte(n.typ))
		buf = appendUint64(buf, n.size)
		buf = appendInt64(buf, n.createdMillis)
		buf = appendInt64(buf, n.modifiedMillis)
		buf = appendInt64(buf, n.accessedMillis)
		buf = appendUint32(buf, uint32(len(n.extents)))
		for _, e := range n.extents {
			buf = appendUint64(buf, e.startBlock)
			buf = appendUint32(buf, e.blockCount)
		}
	}

	entries := dirs.all()
	buf = appendUint32(buf, uint32(len(entries)))
	for _, e := range entries {
		buf = appendUint64(buf, e.parentID)
		buf = appendUint64(buf, e.childID)
		nameBytes := []byte(e.name)
		buf = appendUint16(buf, uint16(len(nameBytes)))
		buf = append(buf, nameBytes...)
	}

	free := space.freeExtents()
	buf = appendUint32(buf, uint32(len(free)))
	for _, e := range free {
		buf = appendUint64(buf, e.startBlock)
		buf = appendUint32(buf, e.blockCount)
	}

	return buf
}

// deserializeMetadata decodes the metadata region produced by
// serializeMetadata. It clears the target tables first, then populates them
// in the sequence inodes -> directory entries -> free extents, handing the
// free extents to the space manager via setFreeExtents so it re-sorts and
// coalesces.
func deserializeMetadata(buf []byte, inodes *inodeTable, dirs *directoryTable, space *spaceManager) error {
	inodes.clear()
	dirs.clear()

	r := &byteReader{buf: buf}

	inodeCount, err := r.uint32()
	if err != nil {
		return boxerr.Wrap(boxerr.InvalidFormat, "", err)
	}
	for i := uint32(0); i < inodeCount; i++ {
		n := &inode{}
		id, err := r.uint64()
		if err != nil {
			return boxerr.Wrap(boxerr.InvalidFormat, "", err)
		}
		n.id = id

		typByte, err := r.byte()
		if err != nil {
			return boxerr.Wrap(boxerr.InvalidFormat, "", err)
		}
		switch typByte {
		case byte(inodeTypeFile):
			n.typ = inodeTypeFile
		case byte(inodeTypeDir):
			n.typ = inodeTypeDir
		default:
			return boxerr.Newf(boxerr.InvalidFormat, "", "invalid inode type code %d", typByte)
		}

		if n.size, err = r.uint64(); err != nil {
			return boxerr.Wrap(boxerr.InvalidFormat, "", err)
		}
		if n.createdMillis, err = r.int64(); err != nil {
			return boxerr.Wrap(boxerr.InvalidFormat, "", err)
		}
		if n.modifiedMillis, err = r.int64(); err != nil {
			return boxerr.Wrap(boxerr.InvalidFormat, "", err)
		}
		if n.accessedMillis, err = r.int64(); err != nil {
			return boxerr.Wrap(boxerr.InvalidFormat, "", err)
		}

		extentCount, err := r.uint32()
		if err != nil {
			return boxerr.Wrap(boxerr.InvalidFormat, "", err)
		}
		// bound the count against the remaining buffer before allocating,
		// so a corrupt count can't trigger a huge allocation
		if err := r.need(int(extentCount) * 12); err != nil {
			return err
		}
		n.extents = make(extentList, extentCount)
		for j := uint32(0); j < extentCount; j++ {
			start, err := r.uint64()
			if err != nil {
				return boxerr.Wrap(boxerr.InvalidFormat, "", err)
			}
			count, err := r.uint32()
			if err != nil {
				return boxerr.Wrap(boxerr.InvalidFormat, "", err)
			}
			n.extents[j] = extent{startBlock: start, blockCount: count}
		}

		inodes.register(n)
	}

	dirEntryCount, err := r.uint32()
	if err != nil {
		return boxerr.Wrap(boxerr.InvalidFormat, "", err)
	}
	for i := uint32(0); i < dirEntryCount; i++ {
		parentID, err := r.uint64()
		if err != nil {
			return boxerr.Wrap(boxerr.InvalidFormat, "", err)
		}
		childID, err := r.uint64()
		if err != nil {
			return boxerr.Wrap(boxerr.InvalidFormat, "", err)
		}
		nameLen, err := r.uint16()
		if err != nil {
			return boxerr.Wrap(boxerr.InvalidFormat, "", err)
		}
		nameBytes, err := r.bytes(int(nameLen))
		if err != nil {
			return boxerr.Wrap(boxerr.InvalidFormat, "", err)
		}
		dirs.addEntry(&directoryEntry{parentID: parentID, name: string(nameBytes), childID: childID})
	}

	freeCount, err := r.uint32()
	if err != nil {
		return boxerr.Wrap(boxerr.InvalidFormat, "", err)
	}
	if err := r.need(int(freeCount) * 12); err != nil {
		return err
	}
	free := make(extentList, freeCount)
	for i := uint32(0); i < freeCount; i++ {
		start, err := r.uint64()
		if err != nil {
			return boxerr.Wrap(boxerr.InvalidFormat, "", err)
		}
		count, err := r.uint32()
		if err != nil {
			return boxerr.Wrap(boxerr.InvalidFormat, "", err)
		}
		free[i] = extent{startBlock: start, blockCount: count}
	}
	space.setFreeExtents(free)

	return nil
}

// byteReader is a minimal cursor-based reader over a metadata buffer,
// failing with an InvalidFormat error on any short read, so every decode
// failure surfaces as InvalidFormat.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return boxerr.Newf(boxerr.InvalidFormat, "", "short read: need %d bytes at offset %d, have %d", n, r.pos, len(r.buf))
	}
	return nil
}

func (r *byteReader) byte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *byteReader) bytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, boxerr.Newf(boxerr.InvalidFormat, "", "negative length %d", n)
	}
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *byteReader) uint16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *byteReader) uint32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *byteReader) uint64() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *byteReader) int64() (int64, error) {
	v, err := r.uint64()
	return int64(v), err
}

func appendUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendInt64(buf []byte, v int64) []byte {
	return appendUint64(buf, uint64(v))
}
