package boxfs

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Joyfolk/boxfs/backend"
	backendfile "github.com/Joyfolk/boxfs/backend/file"
	"github.com/Joyfolk/boxfs/boxerr"
	"github.com/Joyfolk/boxfs/testhelper"
)

func newTestContainerIO(t *testing.T) (*containerIO, *superblock) {
	t.Helper()
	sb, err := newSuperblock(512, 16)
	if err != nil {
		t.Fatalf("newSuperblock: %v", err)
	}
	path := filepath.Join(t.TempDir(), "test.box")
	c, err := createContainerIO(path, sb)
	if err != nil {
		t.Fatalf("createContainerIO: %v", err)
	}
	t.Cleanup(func() { _ = c.close() })
	return c, sb
}

func TestCreateContainerIORejectsExistingFile(t *testing.T) {
	sb, err := newSuperblock(512, 16)
	if err != nil {
		t.Fatalf("newSuperblock: %v", err)
	}
	path := filepath.Join(t.TempDir(), "test.box")
	c, err := createContainerIO(path, sb)
	if err != nil {
		t.Fatalf("createContainerIO: %v", err)
	}
	defer func() { _ = c.close() }()

	if _, err := createContainerIO(path, sb); err == nil {
		t.Fatalf("expected AlreadyExists creating over an existing container")
	}
}

func TestContainerIOWriteReadBlocksRoundTrip(t *testing.T) {
	c, _ := newTestContainerIO(t)

	data := bytes.Repeat([]byte{0xAB}, 512*2)
	if err := c.writeBlocks(1, data); err != nil {
		t.Fatalf("writeBlocks: %v", err)
	}

	got, err := c.readBlocks(1, 2)
	if err != nil {
		t.Fatalf("readBlocks: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("readBlocks() did not round-trip writeBlocks()")
	}
}

func TestContainerIOWriteBlocksZeroPads(t *testing.T) {
	c, _ := newTestContainerIO(t)

	if err := c.writeBlocks(0, []byte{1, 2, 3}); err != nil {
		t.Fatalf("writeBlocks: %v", err)
	}
	got, err := c.readBlocks(0, 1)
	if err != nil {
		t.Fatalf("readBlocks: %v", err)
	}
	if len(got) != 512 || got[0] != 1 || got[3] != 0 {
		t.Fatalf("expected zero-padded block, got first bytes %v", got[:4])
	}
}

func TestContainerIOCheckRangeRejectsOutOfBounds(t *testing.T) {
	c, _ := newTestContainerIO(t)
	if _, err := c.readBlocks(15, 2); err == nil {
		t.Fatalf("expected error reading block range past total")
	}
}

func TestContainerIOReadFromExtentClampsAndSignalsEnd(t *testing.T) {
	c, _ := newTestContainerIO(t)
	if err := c.writeBlocks(0, bytes.Repeat([]byte{0xCD}, 512)); err != nil {
		t.Fatalf("writeBlocks: %v", err)
	}
	ext := extent{startBlock: 0, blockCount: 1}

	dest := make([]byte, 10)
	n, err := c.readFromExtent(ext, 0, dest)
	if err != nil || n != 10 {
		t.Fatalf("readFromExtent(0) = %d, %v", n, err)
	}

	n, err = c.readFromExtent(ext, 512, dest)
	if err != nil || n != -1 {
		t.Fatalf("readFromExtent at extent end = %d, %v, want -1, nil", n, err)
	}

	n, err = c.readFromExtent(ext, 508, dest)
	if err != nil || n != 4 {
		t.Fatalf("readFromExtent clamped = %d, %v, want 4, nil", n, err)
	}
}

func TestContainerIOWriteToExtentRejectsOutOfBounds(t *testing.T) {
	c, _ := newTestContainerIO(t)
	ext := extent{startBlock: 0, blockCount: 1}
	if _, err := c.writeToExtent(ext, 512, []byte{1}); err == nil {
		t.Fatalf("expected error writing at or past extent bounds")
	}
}

func TestContainerIOSuperblockRoundTripViaOpen(t *testing.T) {
	sb, err := newSuperblock(512, 16)
	if err != nil {
		t.Fatalf("newSuperblock: %v", err)
	}
	if err := sb.setMetadataExtents(extentList{{startBlock: 2, blockCount: 1}}); err != nil {
		t.Fatalf("setMetadataExtents: %v", err)
	}
	path := filepath.Join(t.TempDir(), "test.box")
	c, err := createContainerIO(path, sb)
	if err != nil {
		t.Fatalf("createContainerIO: %v", err)
	}
	if err := c.close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, gotSb, err := openContainerIO(path, false)
	if err != nil {
		t.Fatalf("openContainerIO: %v", err)
	}
	defer func() { _ = reopened.close() }()

	if gotSb.blockSize != sb.blockSize || gotSb.totalBlocks != sb.totalBlocks {
		t.Fatalf("reopened superblock header mismatch: %+v", gotSb)
	}
	if len(gotSb.metadataExtent) != 1 || gotSb.metadataExtent[0].startBlock != 2 {
		t.Fatalf("reopened metadata extents mismatch: %+v", gotSb.metadataExtent)
	}
}

func TestOpenContainerIOMissingFile(t *testing.T) {
	if _, _, err := openContainerIO(filepath.Join(t.TempDir(), "missing.box"), false); err == nil {
		t.Fatalf("expected NotFound opening a missing container")
	}
}

func TestContainerIOCloseIsIdempotent(t *testing.T) {
	c, _ := newTestContainerIO(t)
	if err := c.close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := c.checkOpen(); err == nil {
		t.Fatalf("expected checkOpen to fail after close")
	}
}

func TestContainerIOWrapsBackendReadFailure(t *testing.T) {
	failing := &testhelper.FileImpl{
		Reader: func(_ []byte, _ int64) (int, error) { return 0, errors.New("backing store gone") },
		Writer: func(b []byte, _ int64) (int, error) { return len(b), nil },
	}
	c := &containerIO{store: failing, blockSize: 512, total: 8}

	if _, err := c.readBlocks(0, 1); !boxerr.Is(err, boxerr.IoFailure) {
		t.Fatalf("readBlocks over failing backend = %v, want IoFailure", err)
	}
	ext := extent{startBlock: 0, blockCount: 1}
	if _, err := c.readFromExtent(ext, 0, make([]byte, 10)); !boxerr.Is(err, boxerr.IoFailure) {
		t.Fatalf("readFromExtent over failing backend = %v, want IoFailure", err)
	}
}

func TestContainerIOSyncSkipsBackendsWithoutRealFile(t *testing.T) {
	stub := &testhelper.FileImpl{
		Reader: func(_ []byte, _ int64) (int, error) { return 0, nil },
		Writer: func(b []byte, _ int64) (int, error) { return len(b), nil },
	}
	c := &containerIO{store: stub, blockSize: 512, total: 8}
	if err := c.sync(); err != nil {
		t.Fatalf("sync over a stub backend should be a no-op, got %v", err)
	}
}

// TestContainerIOOverSubStorageWindow runs a container inside a byte window
// of a larger host file, checking all I/O is offset into the window.
func TestContainerIOOverSubStorageWindow(t *testing.T) {
	const (
		blockSize    = 512
		totalBlocks  = 16
		windowOffset = 8192
	)
	hostPath := filepath.Join(t.TempDir(), "host.bin")
	host, err := os.Create(hostPath)
	if err != nil {
		t.Fatalf("os.Create: %v", err)
	}
	defer func() { _ = host.Close() }()
	if err := host.Truncate(1 << 20); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	sub := backend.Sub(backendfile.New(host, false), windowOffset, (1+totalBlocks)*blockSize)
	sb, err := newSuperblock(blockSize, totalBlocks)
	if err != nil {
		t.Fatalf("newSuperblock: %v", err)
	}
	c := &containerIO{store: sub, blockSize: blockSize, total: totalBlocks}
	if err := c.writeSuperblock(sb); err != nil {
		t.Fatalf("writeSuperblock: %v", err)
	}

	data := bytes.Repeat([]byte{0x5A}, blockSize)
	if err := c.writeBlocks(3, data); err != nil {
		t.Fatalf("writeBlocks: %v", err)
	}
	got, err := c.readBlocks(3, 1)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("readBlocks through window did not round-trip: %v", err)
	}

	// the block must land inside the window, not at the host file's start
	raw := make([]byte, blockSize)
	if _, err := host.ReadAt(raw, windowOffset+int64(blockSize)*(1+3)); err != nil {
		t.Fatalf("host ReadAt: %v", err)
	}
	if !bytes.Equal(raw, data) {
		t.Fatalf("block not written inside the sub-storage window")
	}
	head := make([]byte, 4)
	if _, err := host.ReadAt(head, 0); err != nil {
		t.Fatalf("host ReadAt(0): %v", err)
	}
	if bytes.Equal(head, []byte{0x42, 0x4F, 0x58, 0x46}) {
		t.Fatalf("superblock written at host offset 0 instead of the window")
	}
}
