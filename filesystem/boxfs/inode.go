package boxfs

import "github.com/Joyfolk/boxfs/boxerr"

// inodeType distinguishes files from directories. Immutable after creation.
type inodeType uint8

const (
	inodeTypeFile inodeType = 0
	inodeTypeDir  inodeType = 1
)

const rootInodeID uint64 = 0

// inode is the mutable descriptor for a file or directory.
type inode struct {
	id      uint64
	typ     inodeType
	size    uint64
	extents extentList

	createdMillis  int64
	modifiedMillis int64
	accessedMillis int64
}

func (i *inode) isDir() bool  { return i.typ == inodeTypeDir }
func (i *inode) isFile() bool { return i.typ == inodeTypeFile }

// allocatedBytes returns the sum of the byte sizes of the inode's extents.
func (i *inode) allocatedBytes(blockSize uint32) uint64 {
	return i.extents.totalBytes(blockSize)
}

// inodeTable is the in-memory map inodeId -> Inode, with a monotonic id
// generator. Lookup is O(1).
type inodeTable struct {
	byID   map[uint64]*inode
	nextID uint64
}

func newInodeTable() *inodeTable {
	return &inodeTable{byID: make(map[uint64]*inode), nextID: rootInodeID + 1}
}

// createRootInode creates the root directory inode (id 0). Fails if a root
// inode already exists.
func (t *inodeTable) createRootInode(now int64) (*inode, error) {
	if _, ok := t.byID[rootInodeID]; ok {
		return nil, boxerr.Newf(boxerr.Invalid, "", "root inode already exists")
	}
	root := &inode{id: rootInodeID, typ: inodeTypeDir, createdMillis: now, modifiedMillis: now, accessedMillis: now}
	t.byID[rootInodeID] = root
	return root, nil
}

// createInode assigns a new monotonic id and registers a fresh inode of the given type.
func (t *inodeTable) createInode(typ inodeType, now int64) *inode {
	id := t.nextID
	t.nextID++
	n := &inode{id: id, typ: typ, createdMillis: now, modifiedMillis: now, accessedMillis: now}
	t.byID[id] = n
	return n
}

// register inserts an inode produced by deserialization, bumping nextID past it.
func (t *inodeTable) register(n *inode) {
	t.byID[n.id] = n
	if n.id+1 > t.nextID {
		t.nextID = n.id + 1
	}
}

// get looks up an inode by id.
func (t *inodeTable) get(id uint64) (*inode, bool) {
	n, ok := t.byID[id]
	return n, ok
}

// remove deletes an inode by id. Refuses to remove the root.
func (t *inodeTable) remove(id uint64) error {
	if id == rootInodeID {
		return boxerr.Newf(boxerr.Invalid, "", "cannot remove root inode")
	}
	delete(t.byID, id)
	return nil
}

// all returns every inode in the table, in unspecified order. Used by the
// metadata serializer.
func (t *inodeTable) all() []*inode {
	out := make([]*inode, 0, len(t.byID))
	for _, n := range t.byID {
		out = append(out, n)
	}
	return out
}

// clear empties the table and resets the id generator, used before
// repopulating from deserialized bytes.
func (t *inodeTable) clear() {
	t.byID = make(map[uint64]*inode)
	t.nextID = rootInodeID + 1
}

func (t *inodeTable) count() int { return len(t.byID) }
