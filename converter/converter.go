package converter

import (
	"io/fs"
	"os"
	"path"

	"github.com/Joyfolk/boxfs/filesystem"
)

type fsCompatible struct {
	filesystem.FileSystem
}

type fsFileWrapper struct {
	filesystem.File
	stat *os.FileInfo
}

func (f *fsFileWrapper) Stat() (fs.FileInfo, error) {
	if f.stat == nil {
		return nil, fs.ErrInvalid
	}
	return *f.stat, nil
}

func (f *fsCompatible) Open(name string) (fs.File, error) {
	file, err := f.OpenFile(name, os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	dirname := path.Dir(name)
	var stat *os.FileInfo
	if info, err := f.FileSystem.ReadDir(dirname); err == nil {
		for i := range info {
			if info[i].Name() == path.Base(name) {
				stat = &info[i]
			}
		}
	}
	return &fsFileWrapper{File: file, stat: stat}, nil
}

// dirEntry adapts an os.FileInfo (as returned by filesystem.FileSystem's
// path-based ReadDir) to fs.DirEntry, which io/fs walkers require.
type dirEntry struct {
	fs.FileInfo
}

func (d dirEntry) Type() fs.FileMode          { return d.FileInfo.Mode().Type() }
func (d dirEntry) Info() (fs.FileInfo, error) { return d.FileInfo, nil }

// ReadDir overrides the promoted filesystem.FileSystem.ReadDir (which
// returns []os.FileInfo) so fsCompatible satisfies io/fs.ReadDirFS.
func (f *fsCompatible) ReadDir(name string) ([]fs.DirEntry, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	infos, err := f.FileSystem.ReadDir(name)
	if err != nil {
		return nil, err
	}
	entries := make([]fs.DirEntry, len(infos))
	for i, info := range infos {
		entries[i] = dirEntry{info}
	}
	return entries, nil
}

// Stat satisfies io/fs.StatFS; directories cannot be opened as files, so
// walkers need a Stat that bypasses Open.
func (f *fsCompatible) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	return f.FileSystem.Stat(name)
}

func FS(f filesystem.FileSystem) fs.FS {
	return &fsCompatible{f}
}
