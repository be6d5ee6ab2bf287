package boxfs

import (
	"io/fs"
	"os"
	"time"
)

// fileInfo adapts an inode and its binding name to os.FileInfo, for ReadDir
// and Stat results.
type fileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
}

var _ os.FileInfo = (*fileInfo)(nil)

func (f *fileInfo) Name() string       { return f.name }
func (f *fileInfo) Size() int64        { return f.size }
func (f *fileInfo) ModTime() time.Time { return f.modTime }
func (f *fileInfo) IsDir() bool        { return f.isDir }
func (f *fileInfo) Sys() any           { return nil }

func (f *fileInfo) Mode() fs.FileMode {
	if f.isDir {
		return fs.ModeDir | 0o755
	}
	return 0o644
}
