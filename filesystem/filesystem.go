// Package filesystem provides the interfaces shared by the BoxFS
// filesystem implementation. The implementation itself lives in the
// subpackage github.com/Joyfolk/boxfs/filesystem/boxfs.
package filesystem

import "os"

// Type represents the type of filesystem stored in a container.
type Type int

const (
	// TypeBoxFS is the single-container file system implemented by this module.
	TypeBoxFS Type = iota
)

// FileSystem is a reference to a single filesystem living inside a container.
//
// Unlike the disk-oriented filesystems this interface originally described
// (FAT32, ISO9660, ext4, ...), BoxFS has no device special files, hard or
// symbolic links, or a permission model, so those methods are not part of
// the contract.
type FileSystem interface {
	// Type returns the type of filesystem.
	Type() Type
	// Mkdir makes a directory, including any missing parents.
	Mkdir(pathname string) error
	// ReadDir reads the contents of a directory.
	ReadDir(pathname string) ([]os.FileInfo, error)
	// OpenFile opens a handle to read or write to a file.
	OpenFile(pathname string, flag int) (File, error)
	// Rename renames (moves) oldpath to newpath. If newpath already exists,
	// Rename replaces it; BoxFS refuses to replace a file with a directory or
	// a directory with a file, and refuses a non-empty directory target.
	Rename(oldpath, newpath string) error
	// Remove removes the named file or (empty) directory.
	Remove(pathname string) error
	// Stat returns file info for the named path.
	Stat(pathname string) (os.FileInfo, error)
}
