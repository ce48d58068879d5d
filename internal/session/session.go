package session

import (
	"errors"
	"fmt"
	"os"

	"discburn/internal/media"
)

// Settings is the part of a session that push/pop saves and restores.
type Settings struct {
	Burner     media.Drive
	OutputPath string
	TOCPath    string
	Format     ImageFormat
	Label      string
	// Rate is in bytes per second; 0 lets the recorder pick.
	Rate  int64
	Flags Flags
}

// Session describes one record, blank or check request: tracks, flags and
// the single active output target (a burner or an image path).
type Session struct {
	settings      Settings
	settingsStack []Settings

	tracks      []*Track
	tracksStack [][]*Track

	tags     map[string]any
	tmpDir   string
	tmpFiles []string
}

// New returns an empty session writing temporary files to os.TempDir until
// SetTmpDir is called.
func New() *Session {
	return &Session{tags: make(map[string]any)}
}

// Tracks returns the current track list. The slice is a copy; the tracks are
// shared.
func (s *Session) Tracks() []*Track {
	return append([]*Track(nil), s.tracks...)
}

// AddTrack appends t. Sessions hold a single track unless every track is an
// audio stream.
func (s *Session) AddTrack(t *Track) error {
	if t == nil || t.Kind == KindNone {
		return errors.New("add track: track has no content")
	}
	if len(s.tracks) > 0 {
		if t.Kind != KindStream || s.tracks[0].Kind != KindStream {
			return fmt.Errorf("add track: session already holds a %s track", s.tracks[0].Kind)
		}
	}
	s.tracks = append(s.tracks, t)
	return nil
}

// RemoveTrack drops t, reporting whether it was present.
func (s *Session) RemoveTrack(t *Track) bool {
	for i, cur := range s.tracks {
		if cur == t {
			s.tracks = append(s.tracks[:i], s.tracks[i+1:]...)
			return true
		}
	}
	return false
}

// ClearTracks removes every track.
func (s *Session) ClearTracks() {
	s.tracks = nil
}

// PushTracks saves the track list and empties it.
func (s *Session) PushTracks() {
	s.tracksStack = append(s.tracksStack, s.tracks)
	s.tracks = nil
}

// PopTracks restores the list saved by the matching PushTracks. Popping an
// empty stack does nothing.
func (s *Session) PopTracks() {
	n := len(s.tracksStack)
	if n == 0 {
		return
	}
	s.tracks = s.tracksStack[n-1]
	s.tracksStack = s.tracksStack[:n-1]
}

// PushSettings saves the current settings.
func (s *Session) PushSettings() {
	s.settingsStack = append(s.settingsStack, s.settings)
}

// PopSettings restores the settings saved by the matching PushSettings.
// Popping an empty stack does nothing.
func (s *Session) PopSettings() {
	n := len(s.settingsStack)
	if n == 0 {
		return
	}
	s.settings = s.settingsStack[n-1]
	s.settingsStack = s.settingsStack[:n-1]
}

// Settings returns a copy of the current settings.
func (s *Session) Settings() Settings { return s.settings }

func (s *Session) Flags() Flags { return s.settings.Flags }

func (s *Session) SetFlags(f Flags) { s.settings.Flags = f }

func (s *Session) AddFlag(f Flags) { s.settings.Flags |= f }

func (s *Session) RemoveFlag(f Flags) { s.settings.Flags &^= f }

func (s *Session) HasFlag(f Flags) bool { return s.settings.Flags.Has(f) }

func (s *Session) Eject() bool { return s.HasFlag(FlagEject) }

func (s *Session) Dummy() bool { return s.HasFlag(FlagDummy) }

func (s *Session) CheckSize() bool { return s.HasFlag(FlagCheckSize) }

func (s *Session) NoTmpFiles() bool { return s.HasFlag(FlagNoTmpFiles) }

func (s *Session) Overburn() bool { return s.HasFlag(FlagOverburn) }

// AppendOrMerge reports whether the write goes after existing sessions.
func (s *Session) AppendOrMerge() bool { return s.settings.Flags.Any(FlagAppend | FlagMerge) }

// Burner returns the destination drive, nil when writing to a file.
func (s *Session) Burner() media.Drive { return s.settings.Burner }

// SetBurner makes d the output target and clears any image output.
func (s *Session) SetBurner(d media.Drive) {
	s.settings.Burner = d
	s.settings.OutputPath = ""
	s.settings.TOCPath = ""
	s.settings.Format = FormatNone
}

// SetImageOutput makes an image file the output target and clears the burner.
func (s *Session) SetImageOutput(format ImageFormat, path, toc string) {
	s.settings.Burner = nil
	s.settings.OutputPath = path
	s.settings.TOCPath = toc
	s.settings.Format = format
}

// OutputPath returns the image output path and its TOC path.
func (s *Session) OutputPath() (image, toc string) {
	return s.settings.OutputPath, s.settings.TOCPath
}

// OutputFormat returns the format of the image output.
func (s *Session) OutputFormat() ImageFormat { return s.settings.Format }

// IsDestFile reports whether the session writes an image file.
func (s *Session) IsDestFile() bool {
	return s.settings.Burner == nil && s.settings.OutputPath != ""
}

// SrcDrive returns the drive of the first disc track, if any.
func (s *Session) SrcDrive() media.Drive {
	for _, t := range s.tracks {
		if t.Kind == KindDisc {
			return t.Drive
		}
	}
	return nil
}

// SameSrcDestDrive reports whether a disc copy reads and writes one drive.
func (s *Session) SameSrcDestDrive() bool {
	return media.SameDrive(s.SrcDrive(), s.settings.Burner)
}

func (s *Session) Rate() int64 { return s.settings.Rate }

func (s *Session) SetRate(rate int64) { s.settings.Rate = rate }

func (s *Session) Label() string { return s.settings.Label }

func (s *Session) SetLabel(label string) { s.settings.Label = label }

// TmpDir returns the directory for temporary files.
func (s *Session) TmpDir() string {
	if s.tmpDir == "" {
		return os.TempDir()
	}
	return s.tmpDir
}

// HasTmpDir reports whether a temporary directory was chosen explicitly.
func (s *Session) HasTmpDir() bool { return s.tmpDir != "" }

func (s *Session) SetTmpDir(dir string) { s.tmpDir = dir }

// InputType is the type of the first track.
func (s *Session) InputType() TrackType {
	if len(s.tracks) == 0 {
		return TrackType{}
	}
	return s.tracks[0].Type()
}

// OutputType is what the session writes: a disc of the burner's medium or
// an image file.
func (s *Session) OutputType() TrackType {
	switch {
	case s.settings.Burner != nil:
		return DiscType(media.StatusOf(s.settings.Burner.Medium()))
	case s.settings.OutputPath != "":
		return ImageType(s.settings.Format)
	default:
		return TrackType{}
	}
}

// Size sums the sizes of all tracks.
func (s *Session) Size() (blocks, bytes int64) {
	for _, t := range s.tracks {
		b, n := t.Size()
		blocks += b
		bytes += n
	}
	return blocks, bytes
}

// TagAdd stores a typed side-channel value for stages.
func (s *Session) TagAdd(key string, value any) {
	if s.tags == nil {
		s.tags = make(map[string]any)
	}
	s.tags[key] = value
}

// TagLookup returns a side-channel value.
func (s *Session) TagLookup(key string) (any, bool) {
	v, ok := s.tags[key]
	return v, ok
}

// TagRemove drops a side-channel value.
func (s *Session) TagRemove(key string) {
	delete(s.tags, key)
}

// TmpFile creates an empty temporary file that CleanTmpFiles will remove.
func (s *Session) TmpFile(suffix string) (string, error) {
	f, err := os.CreateTemp(s.TmpDir(), "discburn-*"+suffix)
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	s.tmpFiles = append(s.tmpFiles, name)
	return name, nil
}

// TmpImage creates a temporary image path (and TOC path when the format has
// one) that CleanTmpFiles will remove.
func (s *Session) TmpImage(format ImageFormat) (image, toc string, err error) {
	imageExt, tocExt := format.Extensions()
	if image, err = s.TmpFile(imageExt); err != nil {
		return "", "", err
	}
	if tocExt != "" {
		if toc, err = s.TmpFile(tocExt); err != nil {
			return "", "", err
		}
	}
	return image, toc, nil
}

// TmpFiles returns the registered temporary paths.
func (s *Session) TmpFiles() []string {
	return append([]string(nil), s.tmpFiles...)
}

// CleanTmpFiles removes every registered temporary file and returns the
// first removal error.
func (s *Session) CleanTmpFiles() error {
	var firstErr error
	for _, path := range s.tmpFiles {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) && firstErr == nil {
			firstErr = err
		}
	}
	s.tmpFiles = nil
	return firstErr
}
