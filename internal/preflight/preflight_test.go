package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"discburn/internal/config"
	"discburn/internal/procexec"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDirectoryAccess_Empty(t *testing.T) {
	if result := CheckDirectoryAccess("test", " "); result.Passed {
		t.Fatal("expected failure for unset path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("space", dir, 1); !result.Passed {
		t.Fatalf("expected a byte to be available, got: %s", result.Detail)
	}
	result := CheckFreeSpace("space", dir, 1<<62)
	if result.Passed {
		t.Fatal("expected failure for an impossible requirement")
	}
	if !strings.Contains(result.Detail, "need") {
		t.Fatalf("expected detail to name the requirement, got %q", result.Detail)
	}
	if result := CheckFreeSpace("space", filepath.Join(dir, "missing"), 1); result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_DirectoryChecks(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.TmpDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Paths.StateDir = filepath.Join(t.TempDir(), "missing")
	cfg.Burn.NoTmpFiles = true

	results := RunAll(context.Background(), &cfg)
	names := map[string]Result{}
	for _, r := range results {
		names[r.Name] = r
	}
	if !names["Temporary directory"].Passed || !names["Log directory"].Passed {
		t.Fatalf("expected directory checks to pass: %#v", results)
	}
	if names["State directory"].Passed {
		t.Fatal("expected missing state directory to fail")
	}
	if _, ok := names["Temporary space"]; ok {
		t.Fatal("space check should be skipped when writing on the fly")
	}
	if len(Failed(results)) == 0 {
		t.Fatal("expected at least one failed check")
	}
}

func TestProbeDrive_NotFound(t *testing.T) {
	cfg := config.Default()
	cfg.Drive.Device = "/dev/sr9"
	fake := procexec.NewFake(map[string]procexec.Script{
		"lsblk": {Stdout: []string{`NAME="/dev/sr0" TYPE="rom" VENDOR="HL-DT-ST" MODEL="BD-RE" MOUNTPOINT=""`}},
	})

	probe := ProbeDrive(context.Background(), fake, &cfg)
	if probe.Found {
		t.Fatal("expected /dev/sr9 to be missing")
	}
	if !strings.Contains(probe.Detail(), "not found") {
		t.Fatalf("unexpected detail %q", probe.Detail())
	}
}

func TestProbeDrive_LsblkFailure(t *testing.T) {
	cfg := config.Default()
	fake := procexec.NewFake(map[string]procexec.Script{
		"lsblk": {Err: errors.New("boom")},
	})
	probe := ProbeDrive(context.Background(), fake, &cfg)
	if probe.ProbeErr == nil || probe.Found {
		t.Fatalf("expected probe error, got %#v", probe)
	}
	if !strings.Contains(probe.Detail(), "error") {
		t.Fatalf("unexpected detail %q", probe.Detail())
	}
}
