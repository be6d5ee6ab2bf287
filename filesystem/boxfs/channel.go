package boxfs

import (
	"io"

	"github.com/Joyfolk/boxfs/boxerr"
)

// Channel is a random-access byte channel onto one file's data. It holds
// the file's inode id and a back-reference to its FileSystem rather than a
// live pointer to the inode itself, so it can detect the inode having been
// deleted or the container having been closed out from under it, and so
// every call can re-enter the FileSystem's single lock rather than holding
// one across calls.
type Channel struct {
	fsRef   *FileSystem
	inodeID uint64

	position int64
	closed   bool
}

var (
	_ io.Reader = (*Channel)(nil)
	_ io.Writer = (*Channel)(nil)
	_ io.Seeker = (*Channel)(nil)
	_ io.Closer = (*Channel)(nil)
)

// Read implements io.Reader.
func (c *Channel) Read(b []byte) (int, error) {
	c.fsRef.mu.RLock()
	defer c.fsRef.mu.RUnlock()
	if c.closed {
		return 0, boxerr.New(boxerr.Closed, "")
	}
	if err := c.fsRef.checkOpenLocked(); err != nil {
		return 0, err
	}
	ino, ok := c.fsRef.inodes.get(c.inodeID)
	if !ok {
		return 0, boxerr.New(boxerr.NotFound, "")
	}
	n, err := c.fsRef.readInode(ino, c.position, b)
	c.position += int64(n)
	return n, err
}

// Write implements io.Writer.
func (c *Channel) Write(b []byte) (int, error) {
	if err := c.fsRef.checkWritable(); err != nil {
		return 0, err
	}
	c.fsRef.mu.Lock()
	defer c.fsRef.mu.Unlock()
	if c.closed {
		return 0, boxerr.New(boxerr.Closed, "")
	}
	if err := c.fsRef.checkOpenLocked(); err != nil {
		return 0, err
	}
	ino, ok := c.fsRef.inodes.get(c.inodeID)
	if !ok {
		return 0, boxerr.New(boxerr.NotFound, "")
	}
	n, err := c.fsRef.writeInode(ino, c.position, b)
	c.position += int64(n)
	return n, err
}

// Seek implements io.Seeker. Seeking past the end of the file is allowed;
// the gap is filled with allocated-but-unwritten space on the next Write.
func (c *Channel) Seek(offset int64, whence int) (int64, error) {
	c.fsRef.mu.RLock()
	var size uint64
	ino, ok := c.fsRef.inodes.get(c.inodeID)
	if ok {
		size = ino.size
	}
	fsClosed := c.fsRef.closed
	c.fsRef.mu.RUnlock()

	if c.closed || fsClosed {
		return 0, boxerr.New(boxerr.Closed, "")
	}
	if !ok {
		return 0, boxerr.New(boxerr.NotFound, "")
	}

	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = c.position + offset
	case io.SeekEnd:
		newPos = int64(size) + offset
	default:
		return 0, boxerr.Newf(boxerr.Invalid, "", "invalid whence %d", whence)
	}
	if newPos < 0 {
		return 0, boxerr.Newf(boxerr.Invalid, "", "negative seek result %d", newPos)
	}
	c.position = newPos
	return newPos, nil
}

// Truncate resizes the underlying file. Growing is a no-op; see
// truncateInode.
func (c *Channel) Truncate(size int64) error {
	if size < 0 {
		return boxerr.Newf(boxerr.Invalid, "", "negative truncate size %d", size)
	}
	if err := c.fsRef.checkWritable(); err != nil {
		return err
	}
	c.fsRef.mu.Lock()
	defer c.fsRef.mu.Unlock()
	if c.closed {
		return boxerr.New(boxerr.Closed, "")
	}
	if err := c.fsRef.checkOpenLocked(); err != nil {
		return err
	}
	ino, ok := c.fsRef.inodes.get(c.inodeID)
	if !ok {
		return boxerr.New(boxerr.NotFound, "")
	}
	return c.fsRef.truncateInode(ino, uint64(size))
}

// Close marks the channel closed. Idempotent; does not touch the
// underlying file system, which may still be serving other channels.
func (c *Channel) Close() error {
	c.closed = true
	return nil
}
