package boxfs

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/Joyfolk/boxfs/boxerr"
)

func newChannelTestFS(t *testing.T) *FileSystem {
	t.Helper()
	path := filepath.Join(t.TempDir(), "channel.box")
	fs, err := Create(path, OpenOptions{TotalBlocks: 256, BlockSize: 512})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { _ = fs.Close() })
	return fs
}

func TestChannelOpenCreateOnMissingFile(t *testing.T) {
	fs := newChannelTestFS(t)

	ch, err := fs.OpenChannel("/new.txt", true)
	if err != nil {
		t.Fatalf("OpenChannel(create=true): %v", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := fs.Stat("/new.txt"); err != nil {
		t.Fatalf("Stat after OpenChannel(create=true): %v", err)
	}
}

func TestChannelOpenWithoutCreateFailsOnMissing(t *testing.T) {
	fs := newChannelTestFS(t)
	if _, err := fs.OpenChannel("/missing.txt", false); !boxerr.Is(err, boxerr.NotFound) {
		t.Fatalf("OpenChannel(create=false) on missing file = %v, want NotFound", err)
	}
}

func TestChannelOpenRejectsDirectory(t *testing.T) {
	fs := newChannelTestFS(t)
	if err := fs.CreateDirectory("/dir"); err != nil {
		t.Fatalf("CreateDirectory: %v", err)
	}
	if _, err := fs.OpenChannel("/dir", false); !boxerr.Is(err, boxerr.Invalid) {
		t.Fatalf("OpenChannel on a directory = %v, want Invalid", err)
	}
}

func TestChannelSeekAndReadWrite(t *testing.T) {
	fs := newChannelTestFS(t)
	if err := fs.CreateFile("/f.txt"); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	ch, err := fs.OpenChannel("/f.txt", false)
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.Write([]byte("0123456789")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	pos, err := ch.Seek(0, io.SeekStart)
	if err != nil || pos != 0 {
		t.Fatalf("Seek(0, SeekStart) = %d, %v", pos, err)
	}

	buf := make([]byte, 4)
	n, err := ch.Read(buf)
	if err != nil || n != 4 || string(buf) != "0123" {
		t.Fatalf("Read = %d, %v, buf=%q", n, err, buf)
	}

	pos, err = ch.Seek(-2, io.SeekEnd)
	if err != nil || pos != 8 {
		t.Fatalf("Seek(-2, SeekEnd) = %d, %v, want 8", pos, err)
	}
	n, err = ch.Read(buf)
	if err != nil && err != io.EOF {
		t.Fatalf("Read at tail: %v", err)
	}
	if n != 2 || string(buf[:2]) != "89" {
		t.Fatalf("Read at tail = %d bytes %q, want 2 bytes \"89\"", n, buf[:n])
	}

	if _, err := ch.Seek(-1, io.SeekStart); !boxerr.Is(err, boxerr.Invalid) {
		t.Fatalf("Seek to negative position = %v, want Invalid", err)
	}
}

func TestChannelWriteFailsOnReadOnlyChannel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ro.box")
	fs, err := Create(path, OpenOptions{TotalBlocks: 64, BlockSize: 512})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := fs.CreateFile("/f.txt"); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := fs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ro, err := Open(path, OpenOptions{ReadOnly: true})
	if err != nil {
		t.Fatalf("Open read-only: %v", err)
	}
	defer func() { _ = ro.Close() }()

	ch, err := ro.OpenChannel("/f.txt", false)
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.Write([]byte("x")); !boxerr.Is(err, boxerr.ReadOnly) {
		t.Fatalf("Write on read-only channel = %v, want ReadOnly", err)
	}
}

func TestChannelCloseIsIdempotentAndBlocksFurtherUse(t *testing.T) {
	fs := newChannelTestFS(t)
	if err := fs.CreateFile("/f.txt"); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	ch, err := fs.OpenChannel("/f.txt", false)
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}

	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := ch.Read(make([]byte, 1)); !boxerr.Is(err, boxerr.Closed) {
		t.Fatalf("Read after Close = %v, want Closed", err)
	}
}

func TestChannelTruncate(t *testing.T) {
	fs := newChannelTestFS(t)
	if err := fs.CreateFile("/f.txt"); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	ch, err := fs.OpenChannel("/f.txt", false)
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.Write([]byte("0123456789")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := ch.Truncate(-1); !boxerr.Is(err, boxerr.Invalid) {
		t.Fatalf("Truncate(-1) = %v, want Invalid", err)
	}
	if err := ch.Truncate(4); err != nil {
		t.Fatalf("Truncate(4): %v", err)
	}

	info, err := fs.Stat("/f.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 4 {
		t.Fatalf("Size() after truncate = %d, want 4", info.Size())
	}
}
