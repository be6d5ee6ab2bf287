package boxfs

import "github.com/Joyfolk/boxfs/boxerr"

const maxNameBytes = 255

// directoryEntry binds a child inode into its parent directory under a name.
type directoryEntry struct {
	parentID uint64
	name     string
	childID  uint64
}

// validateName checks the name invariants from the data model: non-empty,
// no '/' byte, and at most 255 UTF-8 bytes.
func validateName(name string) error {
	if name == "" {
		return boxerr.Newf(boxerr.Invalid, "", "directory entry name must not be empty")
	}
	if len(name) > maxNameBytes {
		return boxerr.Newf(boxerr.Invalid, name, "name exceeds %d bytes", maxNameBytes)
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			return boxerr.Newf(boxerr.Invalid, name, "name must not contain '/'")
		}
	}
	return nil
}

// directoryTable keeps two indices in sync: parentId -> (name -> entry), and
// childId -> entry, so parent-of-a-child lookups are O(1). Entries are plain
// records owned by the table; neither index owns a pointer back into the
// other direction of the tree.
type directoryTable struct {
	byParent map[uint64]map[string]*directoryEntry
	byChild  map[uint64]*directoryEntry
}

func newDirectoryTable() *directoryTable {
	return &directoryTable{
		byParent: make(map[uint64]map[string]*directoryEntry),
		byChild:  make(map[uint64]*directoryEntry),
	}
}

// addEntry inserts an entry. The caller is responsible for having already
// ensured (parentId, name) uniqueness.
func (t *directoryTable) addEntry(e *directoryEntry) {
	children, ok := t.byParent[e.parentID]
	if !ok {
		children = make(map[string]*directoryEntry)
		t.byParent[e.parentID] = children
	}
	children[e.name] = e
	t.byChild[e.childID] = e
}

// lookup finds the entry for (parentId, name).
func (t *directoryTable) lookup(parentID uint64, name string) (*directoryEntry, bool) {
	children, ok := t.byParent[parentID]
	if !ok {
		return nil, false
	}
	e, ok := children[name]
	return e, ok
}

// parentOf finds the entry describing childId's binding into its parent.
func (t *directoryTable) parentOf(childID uint64) (*directoryEntry, bool) {
	e, ok := t.byChild[childID]
	return e, ok
}

// listChildren returns a snapshot of all entries under parentId, in
// unspecified order. Returning a copy rather than a live view keeps callers
// safe to mutate the table while iterating the listing.
func (t *directoryTable) listChildren(parentID uint64) []*directoryEntry {
	children, ok := t.byParent[parentID]
	if !ok {
		return nil
	}
	out := make([]*directoryEntry, 0, len(children))
	for _, e := range children {
		out = append(out, e)
	}
	return out
}

// hasChildren reports whether parentId has any children at all.
func (t *directoryTable) hasChildren(parentID uint64) bool {
	children, ok := t.byParent[parentID]
	return ok && len(children) > 0
}

// removeEntry deletes the (parentId, name) binding.
func (t *directoryTable) removeEntry(parentID uint64, name string) {
	children, ok := t.byParent[parentID]
	if !ok {
		return
	}
	if e, ok := children[name]; ok {
		delete(t.byChild, e.childID)
	}
	delete(children, name)
	if len(children) == 0 {
		delete(t.byParent, parentID)
	}
}

// rename changes the name of an existing (parentId, oldName) binding,
// keeping the same childId.
func (t *directoryTable) rename(parentID uint64, oldName, newName string) error {
	children, ok := t.byParent[parentID]
	if !ok {
		return boxerr.New(boxerr.NotFound, oldName)
	}
	e, ok := children[oldName]
	if !ok {
		return boxerr.New(boxerr.NotFound, oldName)
	}
	delete(children, oldName)
	e.name = newName
	children[newName] = e
	return nil
}

// move is a pure metadata swap: the same childId is rebound under a new
// (parent, name) with no data copy.
func (t *directoryTable) move(oldParent uint64, oldName string, newParent uint64, newName string) error {
	oldChildren, ok := t.byParent[oldParent]
	if !ok {
		return boxerr.New(boxerr.NotFound, oldName)
	}
	e, ok := oldChildren[oldName]
	if !ok {
		return boxerr.New(boxerr.NotFound, oldName)
	}
	delete(oldChildren, oldName)
	if len(oldChildren) == 0 {
		delete(t.byParent, oldParent)
	}

	e.parentID = newParent
	e.name = newName
	newChildren, ok := t.byParent[newParent]
	if !ok {
		newChildren = make(map[string]*directoryEntry)
		t.byParent[newParent] = newChildren
	}
	newChildren[newName] = e
	t.byChild[e.childID] = e
	return nil
}

// all returns a snapshot of every directory entry, used by the metadata serializer.
func (t *directoryTable) all() []*directoryEntry {
	out := make([]*directoryEntry, 0, len(t.byChild))
	for _, e := range t.byChild {
		out = append(out, e)
	}
	return out
}

// clear empties both indices, used before repopulating from deserialized bytes.
func (t *directoryTable) clear() {
	t.byParent = make(map[uint64]map[string]*directoryEntry)
	t.byChild = make(map[uint64]*directoryEntry)
}
