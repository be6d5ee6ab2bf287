// Package boxfs implements a hierarchical file system whose entire state -
// superblock, metadata index, and file data - lives in a single regular
// host file, addressed through a path-based API over a random-access byte
// channel.
package boxfs

import (
	"io"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Joyfolk/boxfs/boxerr"
	"github.com/Joyfolk/boxfs/filesystem"
	"github.com/Joyfolk/boxfs/util/timestamp"
)

// Default geometry used when OpenOptions leaves BlockSize/TotalBlocks unset.
const (
	DefaultBlockSize   uint32 = 4096
	DefaultTotalBlocks uint64 = 256
)

// OpenOptions configures Open. TotalBlocks and BlockSize are only consulted
// when a new container is being created; they are ignored when opening an
// existing one, whose geometry is read back from its own superblock.
type OpenOptions struct {
	Create      bool
	TotalBlocks uint64
	BlockSize   uint32
	ReadOnly    bool
	Logger      *logrus.Logger
}

// FileSystem is an open single-container file system. The zero value is not
// usable; construct with Open or Create.
//
// Every exported method acquires mu in shared mode for pure lookups and in
// exclusive mode for anything that mutates the inode table, the directory
// table, the free list, or the container itself, per the single-lock
// discipline described alongside Channel.
type FileSystem struct {
	mu sync.RWMutex

	io *containerIO
	sb *superblock

	inodes *inodeTable
	dirs   *directoryTable
	space  *spaceManager

	readOnly bool
	closed   bool

	registryKey string
	logger      *logrus.Logger
}

func defaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Create initializes a brand new container at containerPath and returns it
// open. Fails AlreadyExists if the host file is already there.
func Create(containerPath string, opts OpenOptions) (*FileSystem, error) {
	blockSize := opts.BlockSize
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	totalBlocks := opts.TotalBlocks
	if totalBlocks == 0 {
		totalBlocks = DefaultTotalBlocks
	}

	sb, err := newSuperblock(blockSize, totalBlocks)
	if err != nil {
		return nil, err
	}

	cio, err := createContainerIO(containerPath, sb)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = defaultLogger()
	}

	fs := &FileSystem{
		io:     cio,
		sb:     sb,
		inodes: newInodeTable(),
		dirs:   newDirectoryTable(),
		space:  newSpaceManager(totalBlocks),
		logger: logger,
	}
	fs.space.initializeNew(0)

	key, err := registryInsert(containerPath, fs)
	if err != nil {
		_ = cio.close()
		return nil, err
	}
	fs.registryKey = key

	now := currentMillis()
	if _, err := fs.inodes.createRootInode(now); err != nil {
		registryRemove(key)
		_ = cio.close()
		return nil, err
	}

	fs.mu.Lock()
	perr := fs.persistMetadataLocked()
	fs.mu.Unlock()
	if perr != nil {
		registryRemove(key)
		_ = cio.close()
		return nil, perr
	}

	logger.WithFields(logrus.Fields{"path": containerPath, "blockSize": blockSize, "totalBlocks": totalBlocks}).
		Debug("boxfs: created container")
	return fs, nil
}

// Open opens containerPath. If the file does not exist and opts.Create is
// set, it is created with opts' geometry; otherwise a missing file fails
// NotFound.
func Open(containerPath string, opts OpenOptions) (*FileSystem, error) {
	if _, err := os.Stat(containerPath); err != nil {
		if opts.Create {
			if opts.ReadOnly {
				return nil, boxerr.Newf(boxerr.Invalid, containerPath, "cannot create a container read-only")
			}
			return Create(containerPath, opts)
		}
		return nil, boxerr.New(boxerr.NotFound, containerPath)
	}

	cio, sb, err := openContainerIO(containerPath, opts.ReadOnly)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = defaultLogger()
	}

	fs := &FileSystem{
		io:       cio,
		sb:       sb,
		inodes:   newInodeTable(),
		dirs:     newDirectoryTable(),
		space:    newSpaceManager(sb.totalBlocks),
		readOnly: opts.ReadOnly,
		logger:   logger,
	}

	key, err := registryInsert(containerPath, fs)
	if err != nil {
		_ = cio.close()
		return nil, err
	}
	fs.registryKey = key

	fs.mu.Lock()
	lerr := fs.loadMetadataLocked()
	fs.mu.Unlock()
	if lerr != nil {
		registryRemove(key)
		_ = cio.close()
		return nil, lerr
	}

	logger.WithFields(logrus.Fields{"path": containerPath, "readOnly": opts.ReadOnly}).
		Debug("boxfs: opened container")
	return fs, nil
}

func currentMillis() int64 {
	return timestamp.Millis()
}

func ceilDivU64(n, d uint64) uint64 {
	if n == 0 {
		return 0
	}
	return (n + d - 1) / d
}

func typeWord(n *inode) string {
	if n.isDir() {
		return "directory"
	}
	return "file"
}

// normalizePath lexically normalizes . and .. the same way path.Clean does,
// independent of container state.
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}

func splitComponents(p string) []string {
	cleaned := normalizePath(p)
	if cleaned == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(cleaned, "/"), "/")
}

func (fs *FileSystem) checkWritable() error {
	if fs.readOnly {
		return boxerr.New(boxerr.ReadOnly, "")
	}
	return nil
}

func (fs *FileSystem) checkOpenLocked() error {
	if fs.closed {
		return boxerr.New(boxerr.Closed, "")
	}
	return nil
}

// resolveLocked walks from the root inode through the directory table,
// component by component. Caller must hold mu.
func (fs *FileSystem) resolveLocked(p string) (*inode, error) {
	cur, ok := fs.inodes.get(rootInodeID)
	if !ok {
		return nil, boxerr.New(boxerr.NotFound, p)
	}
	for _, name := range splitComponents(p) {
		if !cur.isDir() {
			return nil, boxerr.New(boxerr.NotDirectory, p)
		}
		entry, ok := fs.dirs.lookup(cur.id, name)
		if !ok {
			return nil, boxerr.New(boxerr.NotFound, p)
		}
		child, ok := fs.inodes.get(entry.childID)
		if !ok {
			return nil, boxerr.New(boxerr.NotFound, p)
		}
		cur = child
	}
	return cur, nil
}

// isDescendantLocked reports whether id equals ancestorID or sits somewhere
// below it in the tree. Caller must hold mu.
func (fs *FileSystem) isDescendantLocked(ancestorID, id uint64) bool {
	for {
		if id == ancestorID {
			return true
		}
		if id == rootInodeID {
			return false
		}
		entry, ok := fs.dirs.parentOf(id)
		if !ok {
			return false
		}
		id = entry.parentID
	}
}

// resolveParentLocked resolves the parent directory of p and returns it
// along with p's leaf name. Fails Invalid for the root itself, which has no
// parent.
func (fs *FileSystem) resolveParentLocked(p string) (*inode, string, error) {
	comps := splitComponents(p)
	if len(comps) == 0 {
		return nil, "", boxerr.Newf(boxerr.Invalid, p, "root has no parent")
	}
	parentPath := "/" + strings.Join(comps[:len(comps)-1], "/")
	leaf := comps[len(comps)-1]
	parent, err := fs.resolveLocked(parentPath)
	if err != nil {
		return nil, "", err
	}
	return parent, leaf, nil
}

// CreateFile creates an empty file at p. Fails NotFound/NotDirectory if the
// parent doesn't resolve to a directory, AlreadyExists if p is already
// bound.
func (fs *FileSystem) CreateFile(p string) error {
	return fs.createNode(p, inodeTypeFile)
}

// CreateDirectory creates an empty directory at p.
func (fs *FileSystem) CreateDirectory(p string) error {
	return fs.createNode(p, inodeTypeDir)
}

func (fs *FileSystem) createNode(p string, typ inodeType) error {
	if err := fs.checkWritable(); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.checkOpenLocked(); err != nil {
		return err
	}
	if normalizePath(p) == "/" {
		return boxerr.New(boxerr.AlreadyExists, "/")
	}
	parent, leaf, err := fs.resolveParentLocked(p)
	if err != nil {
		return err
	}
	if !parent.isDir() {
		return boxerr.New(boxerr.NotDirectory, p)
	}
	if err := validateName(leaf); err != nil {
		return err
	}
	if _, exists := fs.dirs.lookup(parent.id, leaf); exists {
		return boxerr.New(boxerr.AlreadyExists, p)
	}
	now := currentMillis()
	n := fs.inodes.createInode(typ, now)
	fs.dirs.addEntry(&directoryEntry{parentID: parent.id, name: leaf, childID: n.id})
	return nil
}

// Delete removes the file or empty directory at p. Fails DirectoryNotEmpty
// for a non-empty directory, Invalid for the root.
func (fs *FileSystem) Delete(p string) error {
	if err := fs.checkWritable(); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.checkOpenLocked(); err != nil {
		return err
	}
	if normalizePath(p) == "/" {
		return boxerr.Newf(boxerr.Invalid, "/", "cannot delete the root")
	}
	parent, leaf, err := fs.resolveParentLocked(p)
	if err != nil {
		return err
	}
	entry, ok := fs.dirs.lookup(parent.id, leaf)
	if !ok {
		return boxerr.New(boxerr.NotFound, p)
	}
	target, ok := fs.inodes.get(entry.childID)
	if !ok {
		return boxerr.New(boxerr.NotFound, p)
	}
	if target.isDir() && fs.dirs.hasChildren(target.id) {
		return boxerr.New(boxerr.DirectoryNotEmpty, p)
	}
	fs.space.freeAll(target.extents)
	fs.dirs.removeEntry(parent.id, leaf)
	_ = fs.inodes.remove(target.id)
	return nil
}

// Move rebinds the node at oldPath to newPath, a pure metadata operation
// with no data copy. If newPath is already bound, Move fails AlreadyExists
// unless replaceExisting is set; with replaceExisting, mismatched
// file/directory kinds fail Invalid, a non-empty directory target fails
// DirectoryNotEmpty, and any other target is evicted first.
func (fs *FileSystem) Move(oldPath, newPath string, replaceExisting bool) error {
	if err := fs.checkWritable(); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.checkOpenLocked(); err != nil {
		return err
	}

	srcParent, srcLeaf, err := fs.resolveParentLocked(oldPath)
	if err != nil {
		return err
	}
	srcEntry, ok := fs.dirs.lookup(srcParent.id, srcLeaf)
	if !ok {
		return boxerr.New(boxerr.NotFound, oldPath)
	}
	srcInode, ok := fs.inodes.get(srcEntry.childID)
	if !ok {
		return boxerr.New(boxerr.NotFound, oldPath)
	}

	dstParent, dstLeaf, err := fs.resolveParentLocked(newPath)
	if err != nil {
		return err
	}
	if !dstParent.isDir() {
		return boxerr.New(boxerr.NotDirectory, newPath)
	}
	if srcParent.id == dstParent.id && srcLeaf == dstLeaf {
		return nil
	}
	if srcInode.isDir() && fs.isDescendantLocked(srcInode.id, dstParent.id) {
		return boxerr.Newf(boxerr.Invalid, newPath, "cannot move a directory into its own subtree")
	}

	if dstEntry, exists := fs.dirs.lookup(dstParent.id, dstLeaf); exists {
		dstInode, _ := fs.inodes.get(dstEntry.childID)
		if !replaceExisting {
			return boxerr.New(boxerr.AlreadyExists, newPath)
		}
		if dstInode.isDir() != srcInode.isDir() {
			return boxerr.Newf(boxerr.Invalid, newPath, "Cannot replace %s with %s", typeWord(dstInode), typeWord(srcInode))
		}
		if dstInode.isDir() && fs.dirs.hasChildren(dstInode.id) {
			return boxerr.New(boxerr.DirectoryNotEmpty, newPath)
		}
		fs.space.freeAll(dstInode.extents)
		fs.dirs.removeEntry(dstParent.id, dstLeaf)
		_ = fs.inodes.remove(dstInode.id)
	} else if err := validateName(dstLeaf); err != nil {
		return err
	}

	return fs.dirs.move(srcParent.id, srcLeaf, dstParent.id, dstLeaf)
}

// Copy duplicates the file at srcPath's data into a new node at dstPath.
// Directories cannot be copied. replaceExisting behaves as in Move.
func (fs *FileSystem) Copy(srcPath, dstPath string, replaceExisting bool) error {
	if err := fs.checkWritable(); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.checkOpenLocked(); err != nil {
		return err
	}

	srcParent, srcLeaf, err := fs.resolveParentLocked(srcPath)
	if err != nil {
		return err
	}
	srcEntry, ok := fs.dirs.lookup(srcParent.id, srcLeaf)
	if !ok {
		return boxerr.New(boxerr.NotFound, srcPath)
	}
	srcInode, ok := fs.inodes.get(srcEntry.childID)
	if !ok {
		return boxerr.New(boxerr.NotFound, srcPath)
	}
	if srcInode.isDir() {
		return boxerr.Newf(boxerr.Invalid, srcPath, "cannot copy a directory")
	}

	dstParent, dstLeaf, err := fs.resolveParentLocked(dstPath)
	if err != nil {
		return err
	}
	if !dstParent.isDir() {
		return boxerr.New(boxerr.NotDirectory, dstPath)
	}

	if dstEntry, exists := fs.dirs.lookup(dstParent.id, dstLeaf); exists {
		dstInode, _ := fs.inodes.get(dstEntry.childID)
		if !replaceExisting {
			return boxerr.New(boxerr.AlreadyExists, dstPath)
		}
		if dstInode.isDir() {
			return boxerr.Newf(boxerr.Invalid, dstPath, "Cannot replace %s with %s", typeWord(dstInode), typeWord(srcInode))
		}
		fs.space.freeAll(dstInode.extents)
		fs.dirs.removeEntry(dstParent.id, dstLeaf)
		_ = fs.inodes.remove(dstInode.id)
	} else if err := validateName(dstLeaf); err != nil {
		return err
	}

	now := currentMillis()
	target := fs.inodes.createInode(inodeTypeFile, now)
	if srcInode.size > 0 {
		blocksNeeded := ceilDivU64(srcInode.size, uint64(fs.sb.blockSize))
		newExtents := fs.space.allocateMultiple(uint32(blocksNeeded))
		if newExtents == nil {
			_ = fs.inodes.remove(target.id)
			return boxerr.New(boxerr.NoSpace, dstPath)
		}
		target.extents = newExtents
		target.size = srcInode.size
		if err := fs.streamCopy(srcInode, target); err != nil {
			fs.space.freeAll(target.extents)
			_ = fs.inodes.remove(target.id)
			return err
		}
	}
	fs.dirs.addEntry(&directoryEntry{parentID: dstParent.id, name: dstLeaf, childID: target.id})
	return nil
}

func (fs *FileSystem) streamCopy(src, dst *inode) error {
	const bufSize = 64 * 1024
	buf := make([]byte, bufSize)
	var pos uint64
	for pos < src.size {
		n := bufSize
		if remaining := src.size - pos; uint64(n) > remaining {
			n = int(remaining)
		}
		read, err := fs.readInode(src, int64(pos), buf[:n])
		if err != nil && err != io.EOF {
			return err
		}
		if read == 0 {
			break
		}
		if _, err := fs.writeInode(dst, int64(pos), buf[:read]); err != nil {
			return err
		}
		pos += uint64(read)
	}
	return nil
}

// ReadDir lists the entries of the directory at p.
func (fs *FileSystem) ReadDir(p string) ([]os.FileInfo, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if err := fs.checkOpenLocked(); err != nil {
		return nil, err
	}
	dirIno, err := fs.resolveLocked(p)
	if err != nil {
		return nil, err
	}
	if !dirIno.isDir() {
		return nil, boxerr.New(boxerr.NotDirectory, p)
	}
	entries := fs.dirs.listChildren(dirIno.id)
	out := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		child, ok := fs.inodes.get(e.childID)
		if !ok {
			continue
		}
		out = append(out, fs.infoFor(e.name, child))
	}
	return out, nil
}

// Stat returns the attributes of the node at p.
func (fs *FileSystem) Stat(p string) (os.FileInfo, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if err := fs.checkOpenLocked(); err != nil {
		return nil, err
	}
	n, err := fs.resolveLocked(p)
	if err != nil {
		return nil, err
	}
	return fs.infoFor(path.Base(normalizePath(p)), n), nil
}

func (fs *FileSystem) infoFor(name string, n *inode) os.FileInfo {
	return &fileInfo{
		name:    name,
		size:    int64(n.size),
		isDir:   n.isDir(),
		modTime: time.UnixMilli(n.modifiedMillis),
	}
}

// FreeBlocks reports the number of unallocated blocks left in the container.
func (fs *FileSystem) FreeBlocks() uint64 {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.space.totalFreeBlocks()
}

// BlockSize reports the container's block size in bytes.
func (fs *FileSystem) BlockSize() uint32 { return fs.sb.blockSize }

// TotalBlocks reports the container's total data-block capacity.
func (fs *FileSystem) TotalBlocks() uint64 { return fs.sb.totalBlocks }

// OpenChannel opens a byte channel onto the file at p. If create is set and
// p doesn't exist, an empty file is created first (its parent must already
// exist and be a directory).
func (fs *FileSystem) OpenChannel(p string, create bool) (*Channel, error) {
	if create {
		if err := fs.checkWritable(); err != nil {
			return nil, err
		}
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.checkOpenLocked(); err != nil {
		return nil, err
	}
	n, err := fs.resolveLocked(p)
	if err != nil {
		if !create || !boxerr.Is(err, boxerr.NotFound) {
			return nil, err
		}
		parent, leaf, perr := fs.resolveParentLocked(p)
		if perr != nil {
			return nil, perr
		}
		if !parent.isDir() {
			return nil, boxerr.New(boxerr.NotDirectory, p)
		}
		if err := validateName(leaf); err != nil {
			return nil, err
		}
		now := currentMillis()
		created := fs.inodes.createInode(inodeTypeFile, now)
		fs.dirs.addEntry(&directoryEntry{parentID: parent.id, name: leaf, childID: created.id})
		n = created
	}
	if n.isDir() {
		return nil, boxerr.Newf(boxerr.Invalid, p, "cannot open a directory as a byte channel")
	}
	return &Channel{fsRef: fs, inodeID: n.id}, nil
}

// readInode reads from ino starting at position into dest, extent-aware,
// never buffering through an intermediate full-file copy. Returns io.EOF
// once position reaches ino.size.
func (fs *FileSystem) readInode(ino *inode, position int64, dest []byte) (int, error) {
	if position < 0 {
		return 0, boxerr.Newf(boxerr.Invalid, "", "negative read position %d", position)
	}
	pos := uint64(position)
	if pos >= ino.size {
		return 0, io.EOF
	}

	ranges := extentRanges(ino.extents, fs.sb.blockSize)
	total := 0
	remaining := len(dest)
	for idx, rg := range ranges {
		if remaining == 0 || pos >= ino.size {
			break
		}
		if pos >= rg.end {
			continue
		}
		if pos < rg.start {
			break
		}
		offsetInExtent := int64(pos - rg.start)
		avail := rg.end - pos
		if sizeRemaining := ino.size - pos; avail > sizeRemaining {
			avail = sizeRemaining
		}
		toRead := avail
		if uint64(remaining) < toRead {
			toRead = uint64(remaining)
		}
		if toRead == 0 {
			continue
		}
		n, err := fs.io.readFromExtent(ino.extents[idx], offsetInExtent, dest[total:total+int(toRead)])
		if err != nil {
			return total, err
		}
		if n <= 0 {
			break
		}
		total += n
		pos += uint64(n)
		remaining -= n
	}

	var err error
	if pos >= ino.size {
		err = io.EOF
	}
	return total, err
}

// writeInode writes src into ino starting at position, extent-aware,
// allocating new extents first if position+len(src) exceeds what is
// currently allocated. Fails NoSpace if growth can't be satisfied.
func (fs *FileSystem) writeInode(ino *inode, position int64, src []byte) (int, error) {
	if position < 0 {
		return 0, boxerr.Newf(boxerr.Invalid, "", "negative write position %d", position)
	}
	pos := uint64(position)
	end := pos + uint64(len(src))

	allocated := ino.allocatedBytes(fs.sb.blockSize)
	if end > allocated {
		blocksNeeded := ceilDivU64(end-allocated, uint64(fs.sb.blockSize))
		newExtents := fs.space.allocateMultiple(uint32(blocksNeeded))
		if newExtents == nil {
			return 0, boxerr.New(boxerr.NoSpace, "")
		}
		ino.extents = append(ino.extents, newExtents...)
	}

	ranges := extentRanges(ino.extents, fs.sb.blockSize)
	total := 0
	remaining := len(src)
	for idx, rg := range ranges {
		if remaining == 0 {
			break
		}
		if pos >= rg.end {
			continue
		}
		if pos < rg.start {
			break
		}
		offsetInExtent := int64(pos - rg.start)
		avail := rg.end - pos
		toWrite := avail
		if uint64(remaining) < toWrite {
			toWrite = uint64(remaining)
		}
		n, err := fs.io.writeToExtent(ino.extents[idx], offsetInExtent, src[total:total+int(toWrite)])
		if err != nil {
			return total, err
		}
		total += n
		pos += uint64(n)
		remaining -= n
	}

	if end > ino.size {
		ino.size = end
	}
	now := currentMillis()
	ino.modifiedMillis = now
	ino.accessedMillis = now
	return total, nil
}

// truncateInode shrinks ino to newSize, freeing whatever extents fall
// entirely or partially past the new boundary. Growing via truncate is a
// no-op: newSize >= currentSize leaves the inode untouched.
func (fs *FileSystem) truncateInode(ino *inode, newSize uint64) error {
	if newSize >= ino.size {
		return nil
	}

	blockSize := fs.sb.blockSize
	blocksNeeded := ceilDivU64(newSize, uint64(blockSize))

	var kept, toFree extentList
	var accumulated uint64
	for _, e := range ino.extents {
		switch {
		case accumulated >= blocksNeeded:
			toFree = append(toFree, e)
		case accumulated+uint64(e.blockCount) <= blocksNeeded:
			kept = append(kept, e)
			accumulated += uint64(e.blockCount)
		default:
			keepCount := blocksNeeded - accumulated
			freeCount := uint64(e.blockCount) - keepCount
			kept = append(kept, extent{startBlock: e.startBlock, blockCount: uint32(keepCount)})
			toFree = append(toFree, extent{startBlock: e.startBlock + keepCount, blockCount: uint32(freeCount)})
			accumulated += keepCount
		}
	}

	ino.extents = kept
	ino.size = newSize
	ino.modifiedMillis = currentMillis()
	fs.space.freeAll(toFree)
	return nil
}

type logicalRange struct {
	start, end uint64
}

// extentRanges maps an inode's ordered extent list to cumulative logical
// byte ranges, so a logical position can be located to an (extent, offset)
// pair without scanning the container.
func extentRanges(exts extentList, blockSize uint32) []logicalRange {
	ranges := make([]logicalRange, len(exts))
	var cum uint64
	for i, e := range exts {
		sz := e.sizeBytes(blockSize)
		ranges[i] = logicalRange{start: cum, end: cum + sz}
		cum += sz
	}
	return ranges
}

// persistMetadataLocked serializes the inode table, directory table, and
// free list, and writes the result back into the superblock's metadata
// extents - reallocating them first if the serialized form has grown past
// what they currently hold. Caller must hold mu for writing.
func (fs *FileSystem) persistMetadataLocked() error {
	current := fs.sb.metadataExtent.clone()
	for {
		data := serializeMetadata(fs.inodes, fs.dirs, fs.space)
		blocksNeeded := ceilDivU64(uint64(len(data)), uint64(fs.sb.blockSize))
		if current.totalBlocks() >= blocksNeeded {
			if err := fs.writeMetadataBytes(current, data); err != nil {
				return err
			}
			break
		}

		fs.logger.WithFields(logrus.Fields{"have": current.totalBlocks(), "need": blocksNeeded}).
			Debug("boxfs: metadata region too small, reallocating")
		fs.space.freeAll(current)
		newExtents := fs.space.allocateMultiple(uint32(blocksNeeded))
		if newExtents == nil {
			fs.logger.WithField("need", blocksNeeded).Warn("boxfs: no space left for metadata")
			return boxerr.New(boxerr.NoSpace, "")
		}
		current = newExtents
	}

	if err := fs.sb.setMetadataExtents(current); err != nil {
		return err
	}
	return fs.io.writeSuperblock(fs.sb)
}

func (fs *FileSystem) writeMetadataBytes(exts extentList, data []byte) error {
	padded := make([]byte, exts.totalBytes(fs.sb.blockSize))
	copy(padded, data)
	offset := 0
	for _, e := range exts {
		n := int(e.sizeBytes(fs.sb.blockSize))
		if err := fs.io.writeBlocks(e.startBlock, padded[offset:offset+n]); err != nil {
			return err
		}
		offset += n
	}
	return nil
}

// loadMetadataLocked reads the superblock's metadata extents and decodes
// them into the inode table, directory table, and free list. Caller must
// hold mu for writing.
func (fs *FileSystem) loadMetadataLocked() error {
	exts := fs.sb.metadataExtent
	if len(exts) == 0 {
		return boxerr.Newf(boxerr.InvalidFormat, "", "superblock has no metadata extents")
	}
	var buf []byte
	for _, e := range exts {
		chunk, err := fs.io.readBlocks(e.startBlock, e.blockCount)
		if err != nil {
			return err
		}
		buf = append(buf, chunk...)
	}
	return deserializeMetadata(buf, fs.inodes, fs.dirs, fs.space)
}

// Sync flushes pending metadata and file data to stable storage. A no-op on
// a read-only filesystem, since nothing can have been mutated.
func (fs *FileSystem) Sync() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.checkOpenLocked(); err != nil {
		return err
	}
	if fs.readOnly {
		return nil
	}
	if err := fs.persistMetadataLocked(); err != nil {
		return err
	}
	return fs.io.sync()
}

// Close persists pending metadata (unless read-only), flushes, and releases
// the host file handle. Idempotent.
func (fs *FileSystem) Close() error {
	fs.mu.Lock()
	if fs.closed {
		fs.mu.Unlock()
		return nil
	}

	var persistErr error
	if !fs.readOnly {
		if persistErr = fs.persistMetadataLocked(); persistErr == nil {
			persistErr = fs.io.sync()
		}
	}
	closeErr := fs.io.close()
	fs.closed = true
	key := fs.registryKey
	fs.mu.Unlock()

	registryRemove(key)
	if persistErr != nil {
		return persistErr
	}
	return closeErr
}

var (
	_ filesystem.FileSystem = (*FileSystem)(nil)
	_ filesystem.File       = (*Channel)(nil)
)

// Type reports this package's filesystem.Type constant.
func (fs *FileSystem) Type() filesystem.Type { return filesystem.TypeBoxFS }

// Mkdir implements filesystem.FileSystem: it creates pathname and any
// missing parents, and succeeds if the full path already exists as a
// directory. Use CreateDirectory for the strict single-level operation.
func (fs *FileSystem) Mkdir(pathname string) error {
	if err := fs.checkWritable(); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.checkOpenLocked(); err != nil {
		return err
	}
	cur, ok := fs.inodes.get(rootInodeID)
	if !ok {
		return boxerr.New(boxerr.NotFound, pathname)
	}
	for _, name := range splitComponents(pathname) {
		if !cur.isDir() {
			return boxerr.New(boxerr.NotDirectory, pathname)
		}
		if entry, ok := fs.dirs.lookup(cur.id, name); ok {
			child, ok := fs.inodes.get(entry.childID)
			if !ok {
				return boxerr.New(boxerr.NotFound, pathname)
			}
			cur = child
			continue
		}
		if err := validateName(name); err != nil {
			return err
		}
		child := fs.inodes.createInode(inodeTypeDir, currentMillis())
		fs.dirs.addEntry(&directoryEntry{parentID: cur.id, name: name, childID: child.id})
		cur = child
	}
	if !cur.isDir() {
		return boxerr.New(boxerr.NotDirectory, pathname)
	}
	return nil
}

// Remove implements filesystem.FileSystem.
func (fs *FileSystem) Remove(pathname string) error { return fs.Delete(pathname) }

// Rename implements filesystem.FileSystem, always replacing an existing target.
func (fs *FileSystem) Rename(oldpath, newpath string) error {
	return fs.Move(oldpath, newpath, true)
}

// OpenFile implements filesystem.FileSystem, translating the standard
// os.O_* flags onto OpenChannel plus Truncate/Seek.
func (fs *FileSystem) OpenFile(pathname string, flag int) (filesystem.File, error) {
	ch, err := fs.OpenChannel(pathname, flag&os.O_CREATE != 0)
	if err != nil {
		return nil, err
	}
	if flag&os.O_TRUNC != 0 {
		if err := ch.Truncate(0); err != nil {
			return nil, err
		}
	}
	if flag&os.O_APPEND != 0 {
		if _, err := ch.Seek(0, io.SeekEnd); err != nil {
			return nil, err
		}
	}
	return ch, nil
}

// WriteFile writes data to the file at p, creating it if missing and
// discarding any previous content.
func (fs *FileSystem) WriteFile(p string, data []byte) error {
	ch, err := fs.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_RDWR)
	if err != nil {
		return err
	}
	if _, err := ch.Write(data); err != nil {
		_ = ch.Close()
		return err
	}
	return ch.Close()
}

// ReadFile reads the whole content of the file at p.
func (fs *FileSystem) ReadFile(p string) ([]byte, error) {
	ch, err := fs.OpenChannel(p, false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = ch.Close() }()
	return io.ReadAll(ch)
}
