package growisofs

import (
	"context"
	"slices"
	"testing"

	"discburn/internal/burnerr"
	"discburn/internal/media"
	"discburn/internal/pipeline"
	"discburn/internal/procexec"
	"discburn/internal/session"
	"discburn/internal/testsupport"
)

type nopReport struct {
	actions   []pipeline.Action
	written   int64
	rate      int64
	progress  float64
	dangerous bool
}

func (r *nopReport) SetCurrentAction(a pipeline.Action, _ string, _ bool) {
	r.actions = append(r.actions, a)
}
func (r *nopReport) SetWrittenTrack(w int64) { r.written = w }
func (r *nopReport) SetProgress(p float64)   { r.progress = p }
func (r *nopReport) SetRate(rate int64)      { r.rate = rate }
func (r *nopReport) SetDangerous(on bool)    { r.dangerous = on }

func TestParserWriteProgress(t *testing.T) {
	r := &nopReport{}
	p := NewParser(r, media.StatusDVD)
	p.Line(" 1671168/4700372992 ( 0.0%) @0.0x, remaining ??:?? RBU 100.0% UBU   2.4%")
	p.Line(" 2350186496/4700372992 (50.0%) @4.0x, remaining 6:10 RBU 100.0% UBU  99.8%")
	p.Line("builtin_dd: 2295104*2KB out @ average 3.9x1352KBps")
	p.Line("/dev/sr0: flushing cache")

	if r.written != 2350186496 {
		t.Fatalf("written = %d", r.written)
	}
	if r.rate != 4*media.DVDRate {
		t.Fatalf("rate = %d, want %d", r.rate, 4*media.DVDRate)
	}
	if !r.dangerous {
		t.Fatal("expected a dangerous section while writing")
	}
	if last := r.actions[len(r.actions)-1]; last != pipeline.ActionFixating {
		t.Fatalf("last action = %v, want fixating", last)
	}
	p.Done()
	if r.dangerous {
		t.Fatal("Done must close the dangerous section")
	}
}

func TestParserFormatProgress(t *testing.T) {
	r := &nopReport{}
	p := NewParser(r, media.StatusDVD)
	p.Line("* blanking 42.5%")
	if r.progress != 0.425 {
		t.Fatalf("progress = %v, want 0.425", r.progress)
	}
}

func TestParserFailures(t *testing.T) {
	tests := []struct {
		line string
		want burnerr.Kind
	}{
		{":-( /dev/sr0: no media mounted, exiting...", burnerr.KindMediumNone},
		{":-( /dev/sr0: 2400000 blocks are free, 2500000 to be written!", burnerr.KindMediumSpace},
		{"/dev/sr1: 359344 blocks are free, 2295104 to be written!", burnerr.KindMediumSpace},
		{":-( image.iso is larger than the free space on /dev/sr0", burnerr.KindMediumSpace},
		{":-( /dev/sr0: media is not appendable", burnerr.KindMediumInvalid},
		{":-( write failed: buffer underrun", burnerr.KindSlowDMA},
	}
	for _, tt := range tests {
		p := NewParser(&nopReport{}, media.StatusDVD)
		p.Line(tt.line)
		kind, _, ok := p.Failure()
		if !ok || kind != tt.want {
			t.Fatalf("Failure after %q = %v, %v; want %v", tt.line, kind, ok, tt.want)
		}
	}
}

func TestRecordArgs(t *testing.T) {
	s := session.New()
	s.SetFlags(session.FlagDummy)
	s.SetRate(4 * media.DVDRate)
	got := RecordArgs(s, "/dev/sr0", media.StatusDVD, "/tmp/a.iso", 0)
	want := []string{"-use-the-force-luke=tty", "-use-the-force-luke=dummy", "-speed=4", "-dvd-compat", "-Z", "/dev/sr0=/tmp/a.iso"}
	if !slices.Equal(got, want) {
		t.Fatalf("args = %v\nwant  %v", got, want)
	}

	s.SetFlags(session.FlagAppend)
	s.SetRate(0)
	got = RecordArgs(s, "/dev/sr0", media.StatusDVD, "", 1000)
	want = []string{"-use-the-force-luke=tty", "-use-the-force-luke=tracksize:1000", "-M", "/dev/sr0=/dev/stdin"}
	if !slices.Equal(got, want) {
		t.Fatalf("args = %v\nwant  %v", got, want)
	}
}

func TestBlankArgs(t *testing.T) {
	s := session.New()
	s.SetFlags(session.FlagFastBlank)
	if got := BlankArgs(s, "/dev/sr0", testsupport.BlankDVDRW()); !slices.Equal(got, []string{"-blank", "/dev/sr0"}) {
		t.Fatalf("DVD-RW args = %v", got)
	}
	plus := &media.Medium{Status: media.StatusDVD | media.StatusRewritable, Type: "DVD+RW"}
	if got := BlankArgs(s, "/dev/sr0", plus); !slices.Equal(got, []string{"-force", "/dev/sr0"}) {
		t.Fatalf("DVD+RW args = %v", got)
	}
}

func TestEraseRunsFormatter(t *testing.T) {
	fake := procexec.NewFake(map[string]procexec.Script{
		"dvd+rw-format": {Stdout: []string{"* blanking 50.0%", "* blanking 100.0%"}},
	})
	drive := testsupport.NewFakeDrive("/dev/sr1", testsupport.BlankDVDRW())
	s := session.New()
	s.SetBurner(drive)
	task := pipeline.NewTask("blank", s, pipeline.TaskActionErase, nil)
	if err := task.AddItem(pipeline.NewJob(stageName, New("", "", fake), session.DiscType(media.StatusDVD))); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(fake.Calls) != 1 || fake.Calls[0].Binary != "dvd+rw-format" {
		t.Fatalf("unexpected calls: %+v", fake.Calls)
	}
	if task.Progress() != 1 {
		t.Fatalf("progress = %v, want 1", task.Progress())
	}
}
