package testsupport

import (
	"path/filepath"
	"testing"

	"discburn/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.TmpDir = filepath.Join(base, "tmp")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithDevice overrides the default burner device.
func WithDevice(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Drive.Device = path
	}
}

// WithChecksum sets the default checksum algorithm.
func WithChecksum(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Burn.Checksum = name
	}
}

// WithStubTools points every external tool at a path under the test base
// directory so nothing on the host is executed by accident.
func WithStubTools() ConfigOption {
	return func(b *configBuilder) {
		bin := filepath.Join(b.baseDir, "bin")
		t := &b.cfg.Tools
		t.Xorriso = filepath.Join(bin, "xorriso")
		t.Wodim = filepath.Join(bin, "wodim")
		t.Growisofs = filepath.Join(bin, "growisofs")
		t.DVDRWFormat = filepath.Join(bin, "dvd+rw-format")
		t.DVDRWMediaInfo = filepath.Join(bin, "dvd+rw-mediainfo")
		t.Eject = filepath.Join(bin, "eject")
		t.Lsblk = filepath.Join(bin, "lsblk")
		t.Umount = filepath.Join(bin, "umount")
	}
}
