package session_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"discburn/internal/media"
	"discburn/internal/session"
	"discburn/internal/testsupport"
)

func TestFlagsStringAndParse(t *testing.T) {
	f := session.FlagEject | session.FlagDummy | session.FlagCheckSize
	if got := f.String(); got != "eject|dummy|check_size" {
		t.Fatalf("String() = %q", got)
	}
	if session.FlagNone.String() != "none" {
		t.Fatalf("FlagNone.String() = %q", session.FlagNone.String())
	}
	flag, err := session.ParseFlag("no-tmp-files")
	if err != nil || flag != session.FlagNoTmpFiles {
		t.Fatalf("ParseFlag = %v, %v", flag, err)
	}
	if _, err := session.ParseFlag("turbo"); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestSettingsPushPopRestoresExactly(t *testing.T) {
	s := session.New()
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankCDR())
	s.SetBurner(drive)
	s.SetFlags(session.FlagEject | session.FlagMerge)
	s.SetRate(1234)
	before := s.Settings()

	s.PushSettings()
	s.SetFlags(session.FlagDummy)
	s.SetImageOutput(session.FormatCUE, "/tmp/out.bin", "/tmp/out.cue")
	s.SetRate(0)
	if !s.IsDestFile() {
		t.Fatal("expected image output after SetImageOutput")
	}
	s.PopSettings()

	if s.Settings() != before {
		t.Fatalf("settings not restored: got %+v want %+v", s.Settings(), before)
	}
	// Pop on an empty stack is a no-op.
	s.PopSettings()
	if s.Settings() != before {
		t.Fatal("empty pop changed settings")
	}
}

func TestTracksPushPop(t *testing.T) {
	s := session.New()
	track := session.NewImageTrack("/tmp/a.iso", "", session.FormatBIN)
	if err := s.AddTrack(track); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	s.PushTracks()
	if len(s.Tracks()) != 0 {
		t.Fatal("PushTracks should empty the list")
	}
	if err := s.AddTrack(session.NewDataTrack("/srv")); err != nil {
		t.Fatalf("AddTrack after push: %v", err)
	}
	s.PopTracks()
	got := s.Tracks()
	if len(got) != 1 || got[0] != track {
		t.Fatalf("PopTracks restored %v", got)
	}
	s.PopTracks()
	if len(s.Tracks()) != 1 {
		t.Fatal("empty pop changed tracks")
	}
}

func TestAddTrackHomogeneity(t *testing.T) {
	s := session.New()
	if err := s.AddTrack(session.NewStreamTrack("/a.wav")); err != nil {
		t.Fatal(err)
	}
	if err := s.AddTrack(session.NewStreamTrack("/b.wav")); err != nil {
		t.Fatalf("second stream track rejected: %v", err)
	}
	if err := s.AddTrack(session.NewDataTrack("/srv")); err == nil {
		t.Fatal("mixing data into an audio session should fail")
	}

	data := session.New()
	if err := data.AddTrack(session.NewDataTrack("/srv")); err != nil {
		t.Fatal(err)
	}
	if err := data.AddTrack(session.NewDataTrack("/home")); err == nil {
		t.Fatal("two data tracks should fail")
	}
	if err := data.AddTrack(&session.Track{}); err == nil {
		t.Fatal("empty track should fail")
	}
}

func TestOutputTargetsAreExclusive(t *testing.T) {
	s := session.New()
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankDVDRW())
	s.SetImageOutput(session.FormatBIN, "/tmp/out.iso", "")
	s.SetBurner(drive)
	if s.IsDestFile() {
		t.Fatal("burner should clear image output")
	}
	if image, _ := s.OutputPath(); image != "" {
		t.Fatalf("output path = %q", image)
	}
	out := s.OutputType()
	if out.Kind != session.KindDisc || !out.Medium.Has(media.StatusDVD) {
		t.Fatalf("OutputType = %s", out)
	}

	s.SetImageOutput(session.FormatCDRDAO, "/tmp/out.bin", "/tmp/out.toc")
	if s.Burner() != nil {
		t.Fatal("image output should clear burner")
	}
	if !s.OutputType().Equal(session.ImageType(session.FormatCDRDAO)) {
		t.Fatalf("OutputType = %s", s.OutputType())
	}
}

func TestSameSrcDestDrive(t *testing.T) {
	drive := testsupport.NewFakeDrive("/dev/sr0", testsupport.DataCDROM(1<<20))
	s := session.New()
	if err := s.AddTrack(session.NewDiscTrack(drive)); err != nil {
		t.Fatal(err)
	}
	s.SetBurner(drive)
	if !s.SameSrcDestDrive() {
		t.Fatal("expected same drive")
	}
	s.SetBurner(testsupport.NewFakeDrive("/dev/sr1", testsupport.BlankCDR()))
	if s.SameSrcDestDrive() {
		t.Fatal("different drives reported as same")
	}
	if s.SrcDrive() != drive {
		t.Fatal("SrcDrive mismatch")
	}
}

func TestTrackTypeEqual(t *testing.T) {
	cdr := session.DiscType(media.StatusCD | media.StatusWritable | media.StatusBlank)
	cdrw := session.DiscType(media.StatusCD | media.StatusRewritable | media.StatusAppendable)
	dvd := session.DiscType(media.StatusDVD | media.StatusWritable)
	if !cdr.Equal(cdrw) {
		t.Fatal("disc types of one family should match")
	}
	if cdr.Equal(dvd) {
		t.Fatal("CD and DVD types should differ")
	}
	if session.ImageType(session.FormatBIN).Equal(session.ImageType(session.FormatCUE)) {
		t.Fatal("image formats should differ")
	}
	data := session.TrackType{Kind: session.KindData, FS: session.FSJoliet}
	if !data.Equal(session.TrackType{Kind: session.KindData}) {
		t.Fatal("FS flags must not take part in equality")
	}
}

func TestTrackSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.iso")
	testsupport.WriteImage(t, path, 5000)

	track := session.NewImageTrack(path, "", session.FormatBIN)
	blocks, bytes := track.Size()
	if bytes != 5000 || blocks != 3 {
		t.Fatalf("Size() = %d, %d", blocks, bytes)
	}
	track.DeclaredBlocks = 10
	if blocks, _ := track.Size(); blocks != 10 {
		t.Fatalf("declared blocks ignored: %d", blocks)
	}

	disc := session.NewDiscTrack(testsupport.NewFakeDrive("/dev/sr0", testsupport.DataCDROM(4096)))
	if blocks, _ := disc.Size(); blocks != 2 {
		t.Fatalf("disc size = %d", blocks)
	}
	disc.SetTag(session.TagStartAddress, int64(100))
	disc.SetTag(session.TagEndAddress, int64(150))
	if blocks, bytes := disc.Size(); blocks != 50 || bytes != 50*media.SectorSize {
		t.Fatalf("tagged disc size = %d, %d", blocks, bytes)
	}
}

func TestTmpImageAndClean(t *testing.T) {
	s := session.New()
	s.SetTmpDir(t.TempDir())

	image, toc, err := s.TmpImage(session.FormatCUE)
	if err != nil {
		t.Fatalf("TmpImage: %v", err)
	}
	if !strings.HasSuffix(image, ".bin") || !strings.HasSuffix(toc, ".cue") {
		t.Fatalf("paths = %q, %q", image, toc)
	}
	iso, noTOC, err := s.TmpImage(session.FormatBIN)
	if err != nil || noTOC != "" || !strings.HasSuffix(iso, ".iso") {
		t.Fatalf("TmpImage(BIN) = %q, %q, %v", iso, noTOC, err)
	}
	if len(s.TmpFiles()) != 3 {
		t.Fatalf("registered %d files", len(s.TmpFiles()))
	}
	// A stage may already have removed one.
	if err := os.Remove(iso); err != nil {
		t.Fatal(err)
	}
	if err := s.CleanTmpFiles(); err != nil {
		t.Fatalf("CleanTmpFiles: %v", err)
	}
	for _, p := range []string{image, toc} {
		if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("%s still exists", p)
		}
	}
	if len(s.TmpFiles()) != 0 {
		t.Fatal("registry not cleared")
	}
}

func TestParseSessionFile(t *testing.T) {
	dir := t.TempDir()
	burner := testsupport.NewFakeDrive("/dev/sr0", testsupport.BlankDVDRW())
	resolve := func(device string) (media.Drive, error) {
		if device != "/dev/sr0" {
			return nil, errors.New("unknown drive")
		}
		return burner, nil
	}
	data := []byte(`
label = "Backup"
flags = ["eject", "dummy", "check-size"]
speed = 4

[output]
device = "/dev/sr0"

[[track]]
kind = "data"
roots = ["photos", "/srv/music"]
filesystems = ["joliet", "udf"]
checksum = "SHA256"
`)
	s, err := session.Parse(data, dir, resolve)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.Label() != "Backup" {
		t.Fatalf("label = %q", s.Label())
	}
	if want := session.FlagEject | session.FlagDummy | session.FlagCheckSize; s.Flags() != want {
		t.Fatalf("flags = %s", s.Flags())
	}
	if s.Burner() != burner {
		t.Fatal("burner not resolved")
	}
	if s.Rate() != 4*media.DVDRate {
		t.Fatalf("rate = %d", s.Rate())
	}
	track := s.Tracks()[0]
	if track.Roots[0] != filepath.Join(dir, "photos") || track.Roots[1] != "/srv/music" {
		t.Fatalf("roots = %v", track.Roots)
	}
	if track.FS != session.FSISO9660|session.FSJoliet|session.FSUDF {
		t.Fatalf("fs = %b", track.FS)
	}
	if track.Checksum.Type != session.ChecksumSHA256 {
		t.Fatalf("checksum = %s", track.Checksum.Type)
	}
}

func TestSessionFileTmpDirIsExplicitOnlyWhenGiven(t *testing.T) {
	dir := t.TempDir()
	s, err := session.Parse([]byte("[[track]]\nkind = \"image\"\npath = \"a.iso\"\n"), dir, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if s.HasTmpDir() || s.TmpDir() != os.TempDir() {
		t.Fatalf("tmp dir = %q, explicit = %v", s.TmpDir(), s.HasTmpDir())
	}

	s, err = session.Parse([]byte("tmp_dir = \"scratch\"\n[[track]]\nkind = \"image\"\npath = \"a.iso\"\n"), dir, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !s.HasTmpDir() || s.TmpDir() != filepath.Join(dir, "scratch") {
		t.Fatalf("tmp dir = %q, explicit = %v", s.TmpDir(), s.HasTmpDir())
	}
}

func TestParseSessionFileErrors(t *testing.T) {
	cases := map[string]string{
		"unknown key":   "colour = 1",
		"unknown flag":  `flags = ["turbo"]`,
		"both outputs":  "[output]\ndevice = \"/dev/sr0\"\nimage = \"/tmp/x.iso\"",
		"unknown kind":  "[[track]]\nkind = \"tape\"",
		"two data":      "[[track]]\nkind = \"data\"\nroots = [\"/a\"]\n[[track]]\nkind = \"data\"\nroots = [\"/b\"]",
		"empty roots":   "[[track]]\nkind = \"data\"",
		"bad checksum":  "[[track]]\nkind = \"image\"\npath = \"/a.iso\"\nchecksum = \"crc\"",
		"no resolver":   "[[track]]\nkind = \"disc\"\ndevice = \"/dev/sr0\"",
		"image format":  "[output]\nimage = \"/tmp/x\"\nformat = \"vhd\"",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := session.Parse([]byte(body), t.TempDir(), nil); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestLoadFileResolvesRelativeToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.toml")
	body := "[output]\nimage = \"out.bin\"\ntoc = \"out.cue\"\nformat = \"cue\"\n\n[[track]]\nkind = \"image\"\npath = \"in.iso\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := session.LoadFile(path, nil)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	image, toc := s.OutputPath()
	if image != filepath.Join(dir, "out.bin") || toc != filepath.Join(dir, "out.cue") {
		t.Fatalf("output = %q, %q", image, toc)
	}
	if s.OutputFormat() != session.FormatCUE {
		t.Fatalf("format = %s", s.OutputFormat())
	}
	if s.Tracks()[0].ImagePath != filepath.Join(dir, "in.iso") {
		t.Fatalf("image path = %q", s.Tracks()[0].ImagePath)
	}
}
