package testhelper

import (
	"fmt"
	"os"

	"github.com/Joyfolk/boxfs/backend"
)

type reader func(b []byte, offset int64) (int, error)
type writer func(b []byte, offset int64) (int, error)

// FileImpl implements backend.Storage so containerio tests can stub out the
// backing file and inject short reads, write failures, or closed-resource
// errors without touching a real file.
type FileImpl struct {
	Reader reader
	Writer writer
}

var _ backend.Storage = (*FileImpl)(nil)

// Sys returns nil; FileImpl backs no real *os.File, so containerIO.sync
// has nothing to flush and skips both Fdatasync and Sync.
func (f *FileImpl) Sys() (*os.File, error) {
	return nil, nil
}

// Writable returns f itself: FileImpl always exposes WriteAt regardless of
// whether a Writer func was supplied.
func (f *FileImpl) Writable() (backend.WritableFile, error) {
	return f, nil
}

func (f *FileImpl) Stat() (os.FileInfo, error) {
	return nil, nil
}

func (f *FileImpl) Read(b []byte) (int, error) {
	return f.Reader(b, 0)
}

func (f *FileImpl) Close() error {
	return nil
}

// ReadAt read at a particular offset
func (f *FileImpl) ReadAt(b []byte, offset int64) (int, error) {
	return f.Reader(b, offset)
}

// WriteAt write at a particular offset
func (f *FileImpl) WriteAt(b []byte, offset int64) (int, error) {
	return f.Writer(b, offset)
}

// Seek seek a particular offset - does not actually work
//
//nolint:unused,revive // to implement the interface
func (f *FileImpl) Seek(offset int64, whence int) (int64, error) {
	return 0, fmt.Errorf("FileImpl does not implement Seek()")
}
