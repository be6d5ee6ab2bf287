//go:build !linux

package boxfs

import "os"

// datasync falls back to a full Sync on platforms without fdatasync.
func datasync(f *os.File) error {
	return f.Sync()
}
