package filesystem

import "io"

// File is a reference to an open byte channel onto a single file inside a container.
type File interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
	// Truncate changes the size of the file.
	Truncate(size int64) error
}
