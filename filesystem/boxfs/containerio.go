package boxfs

import (
	"os"

	"github.com/Joyfolk/boxfs/backend"
	boxfsfile "github.com/Joyfolk/boxfs/backend/file"
	"github.com/Joyfolk/boxfs/boxerr"
)

// containerIO wraps a backend.Storage with explicit positioned block I/O;
// all access goes through ReadAt/WriteAt at computed byte offsets, never
// through a buffered stream.
type containerIO struct {
	store     backend.Storage
	blockSize uint32
	total     uint64 // totalBlocks
	closed    bool
}

// blockOffset returns the byte offset of block index b: blockSize*(1+b).
func (c *containerIO) blockOffset(b uint64) int64 {
	return int64(c.blockSize) * int64(1+b)
}

func (c *containerIO) checkOpen() error {
	if c.closed {
		return boxerr.New(boxerr.Closed, "")
	}
	return nil
}

func (c *containerIO) checkRange(startBlock uint64, count uint64) error {
	if count == 0 {
		return nil
	}
	if startBlock >= c.total || startBlock+count > c.total {
		return boxerr.Newf(boxerr.Invalid, "", "block range [%d,%d) out of bounds [0,%d)", startBlock, startBlock+count, c.total)
	}
	return nil
}

// createContainerIO creates a new host file at path, writes the given
// superblock at offset 0, and pre-allocates the whole container by writing
// one byte at the final offset. Fails AlreadyExists if the file exists.
func createContainerIO(path string, sb *superblock) (*containerIO, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, boxerr.New(boxerr.AlreadyExists, path)
	}
	totalSize := int64(sb.blockSize) * int64(1+sb.totalBlocks)
	store, err := boxfsfile.CreateFromPath(path, totalSize)
	if err != nil {
		return nil, boxerr.Wrap(boxerr.IoFailure, path, err)
	}
	c := &containerIO{store: store, blockSize: sb.blockSize, total: sb.totalBlocks}
	if err := c.writeSuperblock(sb); err != nil {
		_ = c.close()
		return nil, err
	}
	return c, nil
}

// openContainerIO opens an existing host file at path, reads and validates
// its superblock, and returns both.
func openContainerIO(path string, readOnly bool) (*containerIO, *superblock, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil, boxerr.New(boxerr.NotFound, path)
	}
	store, err := boxfsfile.OpenFromPath(path, readOnly)
	if err != nil {
		return nil, nil, boxerr.Wrap(boxerr.IoFailure, path, err)
	}
	header := make([]byte, superblockFixedHeaderSize)
	if _, err := store.ReadAt(header, 0); err != nil {
		return nil, nil, boxerr.Wrap(boxerr.InvalidFormat, path, err)
	}
	blockSize := beUint32(header[8:12])
	if blockSize < minBlockSize {
		_ = store.Close()
		return nil, nil, boxerr.Newf(boxerr.InvalidFormat, path, "invalid block size in superblock")
	}
	full := make([]byte, blockSize)
	if _, err := store.ReadAt(full, 0); err != nil {
		_ = store.Close()
		return nil, nil, boxerr.Wrap(boxerr.InvalidFormat, path, err)
	}
	sb, err := deserializeSuperblock(full)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	c := &containerIO{store: store, blockSize: sb.blockSize, total: sb.totalBlocks}
	return c, sb, nil
}

// readBlocks reads count*blockSize bytes starting at block startBlock.
func (c *containerIO) readBlocks(startBlock uint64, count uint32) ([]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if err := c.checkRange(startBlock, uint64(count)); err != nil {
		return nil, err
	}
	buf := make([]byte, uint64(count)*uint64(c.blockSize))
	if len(buf) == 0 {
		return buf, nil
	}
	if _, err := c.store.ReadAt(buf, c.blockOffset(startBlock)); err != nil {
		return nil, boxerr.Wrap(boxerr.IoFailure, "", err)
	}
	return buf, nil
}

// writeBlocks writes data at block startBlock, zero-padding to whole-block granularity.
func (c *containerIO) writeBlocks(startBlock uint64, data []byte) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	count := (uint64(len(data)) + uint64(c.blockSize) - 1) / uint64(c.blockSize)
	if err := c.checkRange(startBlock, count); err != nil {
		return err
	}
	padded := data
	if rem := len(data) % int(c.blockSize); rem != 0 {
		padded = make([]byte, len(data)+int(c.blockSize)-rem)
		copy(padded, data)
	}
	w, err := c.store.Writable()
	if err != nil {
		return boxerr.Wrap(boxerr.IoFailure, "", err)
	}
	if _, err := w.WriteAt(padded, c.blockOffset(startBlock)); err != nil {
		return boxerr.Wrap(boxerr.IoFailure, "", err)
	}
	return nil
}

// readFromExtent performs positioned reads clamped to the bounds of ext,
// returning the number of bytes actually transferred, or -1 if offsetInExtent
// is at or past the extent's end.
func (c *containerIO) readFromExtent(ext extent, offsetInExtent int64, dest []byte) (int, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	extBytes := int64(ext.sizeBytes(c.blockSize))
	if offsetInExtent >= extBytes {
		return -1, nil
	}
	n := int64(len(dest))
	if offsetInExtent+n > extBytes {
		n = extBytes - offsetInExtent
	}
	if n <= 0 {
		return -1, nil
	}
	off := c.blockOffset(ext.startBlock) + offsetInExtent
	read, err := c.store.ReadAt(dest[:n], off)
	if err != nil {
		return read, boxerr.Wrap(boxerr.IoFailure, "", err)
	}
	return read, nil
}

// writeToExtent performs positioned writes clamped to the bounds of ext,
// returning the number of bytes actually transferred.
func (c *containerIO) writeToExtent(ext extent, offsetInExtent int64, src []byte) (int, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	extBytes := int64(ext.sizeBytes(c.blockSize))
	if offsetInExtent >= extBytes {
		return 0, boxerr.Newf(boxerr.Invalid, "", "write offset %d past extent bounds %d", offsetInExtent, extBytes)
	}
	n := int64(len(src))
	if offsetInExtent+n > extBytes {
		n = extBytes - offsetInExtent
	}
	w, err := c.store.Writable()
	if err != nil {
		return 0, boxerr.Wrap(boxerr.IoFailure, "", err)
	}
	off := c.blockOffset(ext.startBlock) + offsetInExtent
	wrote, err := w.WriteAt(src[:n], off)
	if err != nil {
		return wrote, boxerr.Wrap(boxerr.IoFailure, "", err)
	}
	return wrote, nil
}

// writeSuperblock serializes and writes sb to block 0 of the container.
func (c *containerIO) writeSuperblock(sb *superblock) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	w, err := c.store.Writable()
	if err != nil {
		return boxerr.Wrap(boxerr.IoFailure, "", err)
	}
	if _, err := w.WriteAt(sb.serialize(), 0); err != nil {
		return boxerr.Wrap(boxerr.IoFailure, "", err)
	}
	return nil
}

// sync forces host-file buffers to stable storage. It prefers Fdatasync on
// the underlying *os.File when the backend exposes one (the container's
// length never changes after creation, so syncing the inode is wasted work),
// falling back to a plain Sync.
func (c *containerIO) sync() error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	f, err := c.store.Sys()
	if err != nil || f == nil {
		return nil // backend not suitable for fsync (e.g. in-memory stub); nothing to flush
	}
	if err := datasync(f); err != nil {
		if serr := f.Sync(); serr != nil {
			return boxerr.Wrap(boxerr.IoFailure, "", serr)
		}
	}
	return nil
}

// close releases the host file handle. Idempotent.
func (c *containerIO) close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.store.Close(); err != nil {
		return boxerr.Wrap(boxerr.IoFailure, "", err)
	}
	return nil
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
