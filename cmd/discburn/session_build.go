package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"discburn/internal/config"
	"discburn/internal/media"
	"discburn/internal/session"
)

// recordOptions mirrors the record command's flags.
type recordOptions struct {
	sessionFile string

	data   []string
	image  string
	toc    string
	audio  []string
	source string

	device string
	output string
	format string

	label     string
	speed     float64
	checksum  string
	dummy     bool
	noEject   bool
	onTheFly  bool
	multi     bool
	appendTo  bool
	merge     bool
	blank     bool
	overburn  bool
	noCheck   bool
	assumeYes bool
}

// buildRecordSession turns the flags into a session. Config values are the
// defaults; explicit flags override them.
func buildRecordSession(cfg *config.Config, opts recordOptions, resolve session.DriveResolver) (*session.Session, error) {
	if opts.sessionFile != "" {
		s, err := session.LoadFile(opts.sessionFile, resolve)
		if err != nil {
			return nil, err
		}
		if !s.HasTmpDir() {
			s.SetTmpDir(cfg.Paths.TmpDir)
		}
		if s.Burner() == nil && !s.IsDestFile() {
			drive, err := resolve(cfg.Drive.Device)
			if err != nil {
				return nil, err
			}
			s.SetBurner(drive)
		}
		return s, nil
	}

	s := session.New()
	s.SetTmpDir(cfg.Paths.TmpDir)
	s.SetLabel(strings.TrimSpace(opts.label))

	tracks, err := buildTracks(opts, resolve)
	if err != nil {
		return nil, err
	}
	checksum, err := session.ParseChecksumType(firstNonEmpty(opts.checksum, cfg.Burn.Checksum))
	if err != nil {
		return nil, err
	}
	for _, t := range tracks {
		if len(tracks) == 1 {
			t.Checksum.Type = checksum
		}
		if err := s.AddTrack(t); err != nil {
			return nil, err
		}
	}

	if opts.output != "" {
		if opts.device != "" {
			return nil, fmt.Errorf("--device and --output are mutually exclusive")
		}
		format, err := session.ParseImageFormat(firstNonEmpty(opts.format, "iso"))
		if err != nil {
			return nil, err
		}
		image, toc := opts.output, ""
		if format == session.FormatCUE {
			ext, _ := format.Extensions()
			toc = image
			image = strings.TrimSuffix(toc, filepath.Ext(toc)) + ext
		}
		s.SetImageOutput(format, image, toc)
	} else {
		drive, err := resolve(firstNonEmpty(opts.device, cfg.Drive.Device))
		if err != nil {
			return nil, err
		}
		s.SetBurner(drive)
	}

	s.SetFlags(recordFlags(cfg, opts))
	speed := opts.speed
	if speed <= 0 {
		speed = float64(cfg.Drive.Speed)
	}
	if speed > 0 {
		status := media.StatusCD
		if burner := s.Burner(); burner != nil && burner.Medium() != nil {
			status = burner.Medium().Status
		}
		s.SetRate(media.SpeedToRate(status, speed))
	}
	return s, nil
}

func buildTracks(opts recordOptions, resolve session.DriveResolver) ([]*session.Track, error) {
	sources := 0
	for _, set := range []bool{len(opts.data) > 0, opts.image != "", len(opts.audio) > 0, opts.source != ""} {
		if set {
			sources++
		}
	}
	switch {
	case sources == 0:
		return nil, fmt.Errorf("nothing to record: pass --data, --image, --audio, --copy or --session")
	case sources > 1:
		return nil, fmt.Errorf("--data, --image, --audio and --copy are mutually exclusive")
	}

	switch {
	case len(opts.data) > 0:
		roots := make([]string, 0, len(opts.data))
		for _, r := range opts.data {
			p, err := config.ExpandPath(r)
			if err != nil {
				return nil, err
			}
			roots = append(roots, p)
		}
		t := session.NewDataTrack(roots...)
		t.FS |= session.FSJoliet
		return []*session.Track{t}, nil
	case opts.image != "":
		image, err := config.ExpandPath(opts.image)
		if err != nil {
			return nil, err
		}
		toc := opts.toc
		format := session.FormatBIN
		if strings.EqualFold(filepath.Ext(image), ".cue") {
			toc = image
			image = ""
		}
		if toc != "" {
			format = session.FormatCUE
			if image == "" {
				image = strings.TrimSuffix(toc, filepath.Ext(toc)) + ".bin"
			}
		}
		return []*session.Track{session.NewImageTrack(image, toc, format)}, nil
	case len(opts.audio) > 0:
		tracks := make([]*session.Track, 0, len(opts.audio))
		for _, a := range opts.audio {
			p, err := config.ExpandPath(a)
			if err != nil {
				return nil, err
			}
			tracks = append(tracks, session.NewStreamTrack(p))
		}
		return tracks, nil
	default:
		drive, err := resolve(opts.source)
		if err != nil {
			return nil, err
		}
		return []*session.Track{session.NewDiscTrack(drive)}, nil
	}
}

// recordFlags combines the config defaults with the command line.
func recordFlags(cfg *config.Config, opts recordOptions) session.Flags {
	flags := session.FlagBurnProof | session.FlagNoGrace
	if cfg.Drive.Eject && !opts.noEject {
		flags |= session.FlagEject
	}
	if cfg.Burn.CheckSize && !opts.noCheck {
		flags |= session.FlagCheckSize
	}
	if cfg.Burn.NoTmpFiles || opts.onTheFly {
		flags |= session.FlagNoTmpFiles
	}
	if cfg.Burn.Dummy || opts.dummy {
		flags |= session.FlagDummy
	}
	if cfg.Burn.MultiSession || opts.multi {
		flags |= session.FlagMulti
	}
	if opts.appendTo {
		flags |= session.FlagAppend
	}
	if opts.merge {
		flags |= session.FlagMerge
	}
	if opts.blank {
		flags |= session.FlagBlankBeforeWrite | session.FlagFastBlank
	}
	if opts.overburn {
		flags |= session.FlagOverburn
	}
	return flags
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
