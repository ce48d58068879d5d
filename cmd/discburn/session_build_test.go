package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"discburn/internal/config"
	"discburn/internal/media"
	"discburn/internal/session"
	"discburn/internal/testsupport"
)

func fakeResolver(drives map[string]*testsupport.FakeDrive) session.DriveResolver {
	return func(device string) (media.Drive, error) {
		if d, ok := drives[device]; ok {
			return d, nil
		}
		return nil, errors.New("no such drive " + device)
	}
}

func TestBuildRecordSessionData(t *testing.T) {
	cfg := config.Default()
	cfg.Burn.Checksum = "sha1"
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR())
	resolve := fakeResolver(map[string]*testsupport.FakeDrive{"/dev/sr0": drive})

	s, err := buildRecordSession(&cfg, recordOptions{data: []string{"/srv/a", "/srv/b"}, label: "BACKUP", speed: 8}, resolve)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if s.Burner() != drive {
		t.Fatal("expected the configured drive to be the burner")
	}
	tracks := s.Tracks()
	if len(tracks) != 1 || tracks[0].Kind != session.KindData || len(tracks[0].Roots) != 2 {
		t.Fatalf("unexpected tracks: %#v", tracks)
	}
	if tracks[0].FS&session.FSJoliet == 0 {
		t.Fatal("data tracks from the command line carry Joliet names")
	}
	if tracks[0].Checksum.Type != session.ChecksumSHA1 {
		t.Fatalf("checksum = %v, want config default sha1", tracks[0].Checksum.Type)
	}
	if s.Label() != "BACKUP" {
		t.Fatalf("label = %q", s.Label())
	}
	if s.Rate() != media.SpeedToRate(media.StatusCD, 8) {
		t.Fatalf("rate = %d", s.Rate())
	}
	if !s.HasFlag(session.FlagEject | session.FlagCheckSize | session.FlagBurnProof) {
		t.Fatalf("missing default flags: %s", s.Flags())
	}
}

func TestBuildRecordSessionCueImageToFile(t *testing.T) {
	cfg := config.Default()
	s, err := buildRecordSession(&cfg, recordOptions{
		image:    "/isos/album.cue",
		output:   "/out/copy.cue",
		format:   "cue",
		noEject:  true,
		onTheFly: true,
	}, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	track := s.Tracks()[0]
	if track.Format != session.FormatCUE || track.TOCPath != "/isos/album.cue" || track.ImagePath != "/isos/album.bin" {
		t.Fatalf("unexpected image track: %#v", track)
	}
	image, toc := s.OutputPath()
	if image != "/out/copy.bin" || toc != "/out/copy.cue" || s.OutputFormat() != session.FormatCUE {
		t.Fatalf("unexpected output %q %q %v", image, toc, s.OutputFormat())
	}
	if s.HasFlag(session.FlagEject) || !s.HasFlag(session.FlagNoTmpFiles) {
		t.Fatalf("unexpected flags: %s", s.Flags())
	}
}

func TestBuildRecordSessionRejectsAmbiguousInput(t *testing.T) {
	cfg := config.Default()
	cases := []recordOptions{
		{},
		{data: []string{"/a"}, image: "/b.iso"},
		{image: "/b.iso", output: "/c.iso", device: "/dev/sr0"},
		{image: "/b.iso", output: "/c.iso", checksum: "crc32"},
	}
	for _, opts := range cases {
		if _, err := buildRecordSession(&cfg, opts, fakeResolver(nil)); err == nil {
			t.Fatalf("expected error for %+v", opts)
		}
	}
}

func TestBuildRecordSessionFromFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.TmpDir = t.TempDir()
	dir := t.TempDir()
	path := filepath.Join(dir, "backup.toml")
	body := `label = "NIGHTLY"
flags = ["dummy"]

[[track]]
kind = "data"
roots = ["docs"]
checksum = "md5"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	drive := testsupport.NewFakeDrive(cfg.Drive.Device, testsupport.BlankDVDRW())
	s, err := buildRecordSession(&cfg, recordOptions{sessionFile: path}, fakeResolver(map[string]*testsupport.FakeDrive{cfg.Drive.Device: drive}))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if s.Burner() != drive || s.TmpDir() != cfg.Paths.TmpDir {
		t.Fatal("session file without output falls back to the configured drive and tmp dir")
	}
	if got := s.Tracks()[0].Roots[0]; got != filepath.Join(dir, "docs") {
		t.Fatalf("root = %q, want it relative to the session file", got)
	}
	if !s.Dummy() {
		t.Fatal("expected the dummy flag from the file")
	}
}

func TestSessionFileTmpDirOverridesConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.TmpDir = t.TempDir()
	dir := t.TempDir()
	path := filepath.Join(dir, "scratch.toml")
	body := `tmp_dir = "spool"

[output]
image = "out.iso"

[[track]]
kind = "image"
path = "in.iso"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := buildRecordSession(&cfg, recordOptions{sessionFile: path}, fakeResolver(nil))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := s.TmpDir(); got != filepath.Join(dir, "spool") {
		t.Fatalf("tmp dir = %q, want the one named in the file", got)
	}
}
