package testsupport

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"discburn/internal/media"
)

// WriteImage creates an image file of size bytes made of sectors whose
// first eight bytes hold their address, so two images of the same size
// differ in digest when their sectors are out of order. A size <= 0 writes
// one byte.
func WriteImage(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	sector := make([]byte, media.SectorSize)
	for lba := int64(0); size > 0; lba++ {
		binary.BigEndian.PutUint64(sector, uint64(lba))
		for i := 8; i < len(sector); i++ {
			sector[i] = byte(lba)
		}
		n := min(size, int64(len(sector)))
		if _, err := f.Write(sector[:n]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		size -= n
	}
}
