package isoimage

import (
	"errors"
	"slices"
	"testing"

	"discburn/internal/burnerr"
	"discburn/internal/procexec"
	"discburn/internal/session"
)

func TestBuildArgs(t *testing.T) {
	track := session.NewDataTrack("/srv/photos", "/srv/notes.txt")
	track.FS |= session.FSJoliet

	got := BuildArgs(track, "HOLIDAY")
	want := []string{"-as", "mkisofs", "-r", "-J", "-joliet-long", "-V", "HOLIDAY", "/srv/photos", "/srv/notes.txt"}
	if !slices.Equal(got, want) {
		t.Fatalf("BuildArgs = %v, want %v", got, want)
	}
}

func TestBuildArgsPlainISO(t *testing.T) {
	track := &session.Track{Kind: session.KindData, Roots: []string{"/a"}, FS: session.FSISO9660}
	got := BuildArgs(track, "")
	want := []string{"-as", "mkisofs", "/a"}
	if !slices.Equal(got, want) {
		t.Fatalf("BuildArgs = %v, want %v", got, want)
	}
}

func TestParseProgress(t *testing.T) {
	tests := []struct {
		line string
		want float64
		ok   bool
	}{
		{"xorriso : UPDATE :  45.30% done", 45.3, true},
		{" 12.5% done, estimate finish Mon Oct 19 10:00:00 2026", 12.5, true},
		{"xorriso : NOTE : Writing to 'stdio:/tmp/x.iso'", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseProgress(tt.line)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("ParseProgress(%q) = %v, %v; want %v, %v", tt.line, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParsePrintSize(t *testing.T) {
	tests := []struct {
		out  string
		want int64
	}{
		{"1234\n", 1234},
		{"xorriso 1.5.6 : RockRidge filesystem manipulator\nsize=9876\n", 9876},
	}
	for _, tt := range tests {
		got, err := ParsePrintSize(tt.out)
		if err != nil {
			t.Fatalf("ParsePrintSize(%q) error: %v", tt.out, err)
		}
		if got != tt.want {
			t.Fatalf("ParsePrintSize(%q) = %d, want %d", tt.out, got, tt.want)
		}
	}
	if _, err := ParsePrintSize("garbage"); err == nil {
		t.Fatal("expected error for output without a sector count")
	}
}

func TestClassify(t *testing.T) {
	base := &procexec.ExitError{Binary: "xorriso", Code: 5}
	tests := []struct {
		name   string
		stderr []string
		want   burnerr.Kind
	}{
		{"joliet", []string{"xorriso : FAILURE : Joliet file name too long"}, burnerr.KindImageJoliet},
		{"space", []string{"libburn : SORRY : No space left on device"}, burnerr.KindDiskSpace},
		{"permission", []string{"cannot open '/out.iso': Permission denied"}, burnerr.KindPermission},
		{"other", []string{"something broke"}, burnerr.KindGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(base, tt.stderr)
			if got := burnerr.KindOf(err); got != tt.want {
				t.Fatalf("kind = %v, want %v (err %v)", got, tt.want, err)
			}
			if !errors.Is(err, base) {
				t.Fatalf("classified error lost its cause: %v", err)
			}
		})
	}
}
