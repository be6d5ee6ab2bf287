package sync

import (
	"bytes"
	"io"
	"io/fs"
	"path"

	"github.com/Joyfolk/boxfs/boxerr"
)

// CompareFS compares two fs.FS instances for identical structure and
// contents. Mismatches carry the error kinds used across the module:
// NotFound for a path missing in the target, AlreadyExists for an extra
// path only the target has, Invalid for a shape/size/content difference,
// and IoFailure for errors reading either side.
func CompareFS(origFS, targetFS fs.FS) error {
	seen := make(map[string]struct{})

	err := fs.WalkDir(origFS, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return boxerr.Wrap(boxerr.IoFailure, p, err)
		}
		seen[p] = struct{}{}

		td, err := fs.Stat(targetFS, p)
		if err != nil {
			return boxerr.Wrap(boxerr.NotFound, p, err)
		}

		if d.IsDir() != td.IsDir() {
			return boxerr.Newf(boxerr.Invalid, p, "file/directory mismatch")
		}
		if d.IsDir() {
			return nil
		}

		od, err := d.Info()
		if err != nil {
			return boxerr.Wrap(boxerr.IoFailure, p, err)
		}
		if od.Size() != td.Size() {
			return boxerr.Newf(boxerr.Invalid, p, "size mismatch: %d != %d", od.Size(), td.Size())
		}

		return compareFileContents(origFS, targetFS, p)
	})
	if err != nil {
		return err
	}

	return fs.WalkDir(targetFS, ".", func(p string, _ fs.DirEntry, err error) error {
		if err != nil {
			return boxerr.Wrap(boxerr.IoFailure, p, err)
		}
		if _, ok := seen[p]; !ok {
			return boxerr.Newf(boxerr.AlreadyExists, p, "extra path in target")
		}
		return nil
	})
}

func compareFileContents(a, b fs.FS, name string) error {
	af, err := a.Open(name)
	if err != nil {
		return boxerr.Wrap(boxerr.IoFailure, name, err)
	}
	defer func() { _ = af.Close() }()

	bf, err := b.Open(name)
	if err != nil {
		return boxerr.Wrap(boxerr.IoFailure, name, err)
	}
	defer func() { _ = bf.Close() }()

	const bufSize = 32 * 1024
	bufA := make([]byte, bufSize)
	bufB := make([]byte, bufSize)

	for {
		na, ea := af.Read(bufA)
		nb, eb := bf.Read(bufB)

		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return boxerr.Newf(boxerr.Invalid, path.Clean(name), "content mismatch")
		}

		if ea == io.EOF && eb == io.EOF {
			return nil
		}
		if ea != nil && ea != io.EOF {
			return boxerr.Wrap(boxerr.IoFailure, name, ea)
		}
		if eb != nil && eb != io.EOF {
			return boxerr.Wrap(boxerr.IoFailure, name, eb)
		}
	}
}
