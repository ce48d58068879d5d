package session

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"discburn/internal/config"
	"discburn/internal/media"
)

// DriveResolver maps a device path named in a session file to a Drive.
type DriveResolver func(device string) (media.Drive, error)

type fileSpec struct {
	Label  string      `toml:"label"`
	Flags  []string    `toml:"flags"`
	Speed  float64     `toml:"speed"`
	TmpDir string      `toml:"tmp_dir"`
	Output outputSpec  `toml:"output"`
	Tracks []trackSpec `toml:"track"`
}

type outputSpec struct {
	Device string `toml:"device"`
	Image  string `toml:"image"`
	TOC    string `toml:"toc"`
	Format string `toml:"format"`
}

type trackSpec struct {
	Kind        string   `toml:"kind"`
	Roots       []string `toml:"roots"`
	Filesystems []string `toml:"filesystems"`
	Path        string   `toml:"path"`
	TOC         string   `toml:"toc"`
	Format      string   `toml:"format"`
	Device      string   `toml:"device"`
	Checksum    string   `toml:"checksum"`
	Digest      string   `toml:"digest"`
	Blocks      int64    `toml:"blocks"`
}

// LoadFile reads a TOML session description.
func LoadFile(path string, resolve DriveResolver) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	return Parse(data, filepath.Dir(path), resolve)
}

// Parse builds a session from TOML. Relative paths are resolved against
// baseDir.
func Parse(data []byte, baseDir string, resolve DriveResolver) (*Session, error) {
	var desc fileSpec
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&desc); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}

	s := New()
	s.SetLabel(strings.TrimSpace(desc.Label))
	if desc.TmpDir != "" {
		dir, err := resolvePath(baseDir, desc.TmpDir)
		if err != nil {
			return nil, err
		}
		s.SetTmpDir(dir)
	}
	for _, name := range desc.Flags {
		flag, err := ParseFlag(name)
		if err != nil {
			return nil, err
		}
		s.AddFlag(flag)
	}

	switch {
	case desc.Output.Device != "" && desc.Output.Image != "":
		return nil, fmt.Errorf("output: device and image are mutually exclusive")
	case desc.Output.Device != "":
		drive, err := resolveDrive(resolve, desc.Output.Device)
		if err != nil {
			return nil, err
		}
		s.SetBurner(drive)
	case desc.Output.Image != "":
		format, err := ParseImageFormat(desc.Output.Format)
		if err != nil {
			return nil, fmt.Errorf("output: %w", err)
		}
		image, err := resolvePath(baseDir, desc.Output.Image)
		if err != nil {
			return nil, err
		}
		toc := ""
		if desc.Output.TOC != "" {
			if toc, err = resolvePath(baseDir, desc.Output.TOC); err != nil {
				return nil, err
			}
		}
		s.SetImageOutput(format, image, toc)
	}

	for i, ts := range desc.Tracks {
		track, err := buildTrack(ts, baseDir, resolve)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", i+1, err)
		}
		if err := s.AddTrack(track); err != nil {
			return nil, fmt.Errorf("track %d: %w", i+1, err)
		}
	}

	if desc.Speed > 0 {
		status := media.StatusCD
		if burner := s.Burner(); burner != nil && burner.Medium() != nil {
			status = burner.Medium().Status
		}
		s.SetRate(media.SpeedToRate(status, desc.Speed))
	}
	return s, nil
}

func buildTrack(ts trackSpec, baseDir string, resolve DriveResolver) (*Track, error) {
	var track *Track
	switch strings.ToLower(strings.TrimSpace(ts.Kind)) {
	case "data":
		if len(ts.Roots) == 0 {
			return nil, fmt.Errorf("data track needs at least one root")
		}
		roots := make([]string, 0, len(ts.Roots))
		for _, r := range ts.Roots {
			p, err := resolvePath(baseDir, r)
			if err != nil {
				return nil, err
			}
			roots = append(roots, p)
		}
		track = NewDataTrack(roots...)
		if len(ts.Filesystems) > 0 {
			fs, err := parseFilesystems(ts.Filesystems)
			if err != nil {
				return nil, err
			}
			track.FS = fs
		}
	case "image":
		format, err := ParseImageFormat(ts.Format)
		if err != nil {
			return nil, err
		}
		path, err := resolvePath(baseDir, ts.Path)
		if err != nil {
			return nil, err
		}
		toc := ""
		if ts.TOC != "" {
			if toc, err = resolvePath(baseDir, ts.TOC); err != nil {
				return nil, err
			}
		}
		track = NewImageTrack(path, toc, format)
	case "audio", "stream":
		path, err := resolvePath(baseDir, ts.Path)
		if err != nil {
			return nil, err
		}
		track = NewStreamTrack(path)
	case "disc":
		drive, err := resolveDrive(resolve, ts.Device)
		if err != nil {
			return nil, err
		}
		track = NewDiscTrack(drive)
	default:
		return nil, fmt.Errorf("unknown track kind %q", ts.Kind)
	}

	checksum, err := ParseChecksumType(ts.Checksum)
	if err != nil {
		return nil, err
	}
	track.Checksum = Checksum{Type: checksum, Digest: strings.ToLower(strings.TrimSpace(ts.Digest))}
	track.DeclaredBlocks = ts.Blocks
	return track, nil
}

func parseFilesystems(names []string) (FSFlags, error) {
	var fs FSFlags
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "iso9660":
			fs |= FSISO9660
		case "rockridge", "rock_ridge":
			fs |= FSRockRidge
		case "joliet":
			fs |= FSJoliet
		case "udf":
			fs |= FSUDF
		default:
			return 0, fmt.Errorf("unknown filesystem %q", n)
		}
	}
	return fs | FSISO9660, nil
}

func resolveDrive(resolve DriveResolver, device string) (media.Drive, error) {
	device = strings.TrimSpace(device)
	if device == "" {
		return nil, fmt.Errorf("device path required")
	}
	if resolve == nil {
		return nil, fmt.Errorf("no drive resolver for %s", device)
	}
	return resolve(device)
}

func resolvePath(baseDir, p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("path required")
	}
	if !strings.HasPrefix(p, "~") && !filepath.IsAbs(p) && baseDir != "" {
		p = filepath.Join(baseDir, p)
	}
	return config.ExpandPath(p)
}
