package sync

import (
	"bytes"
	"io/fs"
	"os"
	"testing"
	"testing/fstest"
	"time"

	"github.com/Joyfolk/boxfs/filesystem"
)

// fakeFS implements filesystem.FileSystem for testing CopyFileSystem.
type fakeFS struct {
	dirs  []string
	files map[string][]byte
}

// fakeFile satisfies filesystem.File.
type fakeFile struct {
	path string
	buf  *bytes.Buffer
	fs   *fakeFS
}

// Mkdir records directory creations.
func (f *fakeFS) Mkdir(path string) error {
	f.dirs = append(f.dirs, path)
	return nil
}

// Remove satisfies filesystem.FileSystem interface (no-op).
//
//nolint:revive // keeping args for clarity of intent.
func (f *fakeFS) Remove(path string) error { return nil }

// Rename satisfies filesystem.FileSystem interface (no-op).
//
//nolint:revive // keeping args for clarity of intent.
func (f *fakeFS) Rename(oldpath, newpath string) error { return nil }

// Stat satisfies filesystem.FileSystem interface (no-op).
//
//nolint:revive // keeping args for clarity of intent.
func (f *fakeFS) Stat(path string) (os.FileInfo, error) { return nil, nil }

// Type satisfies filesystem.FileSystem interface.
func (f *fakeFS) Type() filesystem.Type { return filesystem.TypeBoxFS }

// ReadDir satisfies filesystem.FileSystem interface (no-op).
//
//nolint:revive // keeping args for clarity of intent.
func (f *fakeFS) ReadDir(name string) ([]os.FileInfo, error) { return nil, nil }

// OpenFile satisfies filesystem.FileSystem interface for writing files.
//
//nolint:revive // flag is unused, keeping for clarity of intent.
func (f *fakeFS) OpenFile(pathname string, flag int) (filesystem.File, error) {
	buf := &bytes.Buffer{}
	ff := &fakeFile{path: pathname, buf: buf, fs: f}
	if f.files == nil {
		f.files = make(map[string][]byte)
	}
	return ff, nil
}

// Write implements io.Writer.
func (f *fakeFile) Write(p []byte) (int, error) {
	n, err := f.buf.Write(p)
	f.fs.files[f.path] = f.buf.Bytes()
	return n, err
}

// Read implements io.Reader (unused here).
func (f *fakeFile) Read(p []byte) (int, error) { return f.buf.Read(p) }

// Close is a no-op.
func (f *fakeFile) Close() error { return nil }

// Seek is a no-op.
//
//nolint:revive // keeping args for clarity of intent.
func (f *fakeFile) Seek(offset int64, whence int) (int64, error) { return 0, nil }

// Truncate is a no-op.
//
//nolint:revive // keeping args for clarity of intent.
func (f *fakeFile) Truncate(size int64) error { return nil }

// Stat returns a minimal FileInfo.
func (f *fakeFile) Stat() (os.FileInfo, error) {
	return f, nil
}

// The fakeFile itself implements os.FileInfo for simplicity.
func (f *fakeFile) Name() string       { return f.path }
func (f *fakeFile) Size() int64        { return int64(f.buf.Len()) }
func (f *fakeFile) Mode() os.FileMode  { return 0 }
func (f *fakeFile) ModTime() time.Time { return time.Time{} }
func (f *fakeFile) IsDir() bool        { return false }
func (f *fakeFile) Sys() interface{}   { return nil }

// TestCopyFileSystem_Basic verifies directories and files are copied.
func TestCopyFileSystem_Basic(t *testing.T) {
	now := time.Now()
	src := fstest.MapFS{
		"foo.txt": {Data: []byte("hello"), ModTime: now},
		"dir":     {Mode: fs.ModeDir, ModTime: now},
		"dir/bar": {Data: []byte("world"), ModTime: now},
	}
	dst := &fakeFS{}
	if err := CopyFileSystem(src, dst); err != nil {
		t.Fatalf("CopyFileSystem failed: %v", err)
	}
	found := false
	for _, d := range dst.dirs {
		if d == "/dir" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Mkdir(\"/dir\"), got %v", dst.dirs)
	}
	if string(dst.files["/foo.txt"]) != "hello" {
		t.Errorf("foo.txt = %q, want %q", dst.files["/foo.txt"], "hello")
	}
	if string(dst.files["/dir/bar"]) != "world" {
		t.Errorf("dir/bar = %q, want %q", dst.files["/dir/bar"], "world")
	}
}

// TestCopyFileSystem_SkipNonRegular ensures non-regular entries (symlinks) are skipped.
func TestCopyFileSystem_SkipNonRegular(t *testing.T) {
	src := fstest.MapFS{
		"sl": {Data: []byte(""), Mode: fs.ModeSymlink},
	}
	dst := &fakeFS{}
	if err := CopyFileSystem(src, dst); err != nil {
		t.Fatalf("CopyFileSystem failed: %v", err)
	}
	if _, ok := dst.files["/sl"]; ok {
		t.Errorf("expected non-regular file to be skipped, but copied")
	}
}

// TestCopyFileSystem_ExcludedPaths ensures filesystem-image cruft is skipped.
func TestCopyFileSystem_ExcludedPaths(t *testing.T) {
	src := fstest.MapFS{
		"lost+found/junk": {Data: []byte("junk")},
		"keep.txt":        {Data: []byte("keep")},
	}
	dst := &fakeFS{}
	if err := CopyFileSystem(src, dst); err != nil {
		t.Fatalf("CopyFileSystem failed: %v", err)
	}
	if _, ok := dst.files["/lost+found/junk"]; ok {
		t.Errorf("expected lost+found to be excluded")
	}
	if string(dst.files["/keep.txt"]) != "keep" {
		t.Errorf("keep.txt = %q, want %q", dst.files["/keep.txt"], "keep")
	}
}
