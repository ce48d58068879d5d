package session

import (
	"fmt"
	"os"
	"strings"

	"discburn/internal/media"
)

// TrackKind is the kind of content a track carries.
type TrackKind int

const (
	KindNone TrackKind = iota
	KindData
	KindImage
	KindStream
	KindDisc
)

func (k TrackKind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindImage:
		return "image"
	case KindStream:
		return "stream"
	case KindDisc:
		return "disc"
	default:
		return "none"
	}
}

// FSFlags selects the filesystems generated for a data track.
type FSFlags uint8

const (
	FSISO9660 FSFlags = 1 << iota
	FSRockRidge
	FSJoliet
	FSUDF
)

// ImageFormat is the on-disk layout of an image file.
type ImageFormat int

const (
	FormatNone ImageFormat = iota
	// FormatBIN is a plain ISO9660/UDF image.
	FormatBIN
	FormatCUE
	FormatCDRDAO
	FormatCLONE
)

func (f ImageFormat) String() string {
	switch f {
	case FormatBIN:
		return "bin"
	case FormatCUE:
		return "cue"
	case FormatCDRDAO:
		return "cdrdao"
	case FormatCLONE:
		return "clone"
	default:
		return "none"
	}
}

// Extensions returns the image and TOC file suffixes for the format.
func (f ImageFormat) Extensions() (image, toc string) {
	switch f {
	case FormatCUE:
		return ".bin", ".cue"
	case FormatCDRDAO:
		return ".bin", ".toc"
	case FormatCLONE:
		return ".raw", ".toc"
	default:
		return ".iso", ""
	}
}

// ParseImageFormat resolves a format name.
func ParseImageFormat(name string) (ImageFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "bin", "iso":
		return FormatBIN, nil
	case "cue":
		return FormatCUE, nil
	case "cdrdao", "toc":
		return FormatCDRDAO, nil
	case "clone", "raw":
		return FormatCLONE, nil
	default:
		return FormatNone, fmt.Errorf("unknown image format %q", name)
	}
}

// ChecksumType is the digest algorithm attached to a track.
type ChecksumType int

const (
	ChecksumNone ChecksumType = iota
	ChecksumMD5
	ChecksumSHA1
	ChecksumSHA256
)

func (c ChecksumType) String() string {
	switch c {
	case ChecksumMD5:
		return "md5"
	case ChecksumSHA1:
		return "sha1"
	case ChecksumSHA256:
		return "sha256"
	default:
		return "none"
	}
}

// ParseChecksumType resolves a checksum name.
func ParseChecksumType(name string) (ChecksumType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return ChecksumNone, nil
	case "md5":
		return ChecksumMD5, nil
	case "sha1":
		return ChecksumSHA1, nil
	case "sha256":
		return ChecksumSHA256, nil
	default:
		return ChecksumNone, fmt.Errorf("unknown checksum type %q", name)
	}
}

// Checksum is a digest and the algorithm that produced it.
type Checksum struct {
	Type   ChecksumType
	Digest string
}

// Track tag keys understood by the disc reader.
const (
	TagStartAddress = "track::start_address"
	TagEndAddress   = "track::end_address"
)

// Track is one unit of input content.
type Track struct {
	Kind TrackKind

	// Data tracks.
	Roots []string
	FS    FSFlags

	// Image tracks.
	ImagePath string
	TOCPath   string
	Format    ImageFormat

	// Stream tracks.
	AudioPath string

	// Disc tracks.
	Drive media.Drive

	// DeclaredBlocks is the size in 2048-byte sectors when known up front.
	DeclaredBlocks int64
	Checksum       Checksum

	tags map[string]any
}

// NewDataTrack returns a data track over roots with ISO9660 and Rock Ridge.
func NewDataTrack(roots ...string) *Track {
	return &Track{Kind: KindData, Roots: roots, FS: FSISO9660 | FSRockRidge}
}

// NewImageTrack returns an image track.
func NewImageTrack(path, toc string, format ImageFormat) *Track {
	return &Track{Kind: KindImage, ImagePath: path, TOCPath: toc, Format: format}
}

// NewStreamTrack returns an audio track.
func NewStreamTrack(path string) *Track {
	return &Track{Kind: KindStream, AudioPath: path}
}

// NewDiscTrack returns a track reading the disc in drive.
func NewDiscTrack(drive media.Drive) *Track {
	return &Track{Kind: KindDisc, Drive: drive}
}

// SetTag stores a typed side-channel value for stages.
func (t *Track) SetTag(key string, value any) {
	if t.tags == nil {
		t.tags = make(map[string]any)
	}
	t.tags[key] = value
}

// Tag looks up a side-channel value.
func (t *Track) Tag(key string) (any, bool) {
	v, ok := t.tags[key]
	return v, ok
}

// TagInt64 looks up an integer side-channel value.
func (t *Track) TagInt64(key string) (int64, bool) {
	v, ok := t.tags[key]
	if !ok {
		return 0, false
	}
	n, ok := v.(int64)
	return n, ok
}

// Size returns the track size in sectors and bytes. Declared sizes win; image
// tracks fall back to the file size and disc tracks to the recorded extent.
func (t *Track) Size() (blocks, bytes int64) {
	if t.DeclaredBlocks > 0 {
		return t.DeclaredBlocks, t.DeclaredBlocks * media.SectorSize
	}
	switch t.Kind {
	case KindImage:
		if info, err := os.Stat(t.ImagePath); err == nil {
			bytes = info.Size()
		}
	case KindDisc:
		if start, ok := t.TagInt64(TagStartAddress); ok {
			if end, ok := t.TagInt64(TagEndAddress); ok && end > start {
				return end - start, (end - start) * media.SectorSize
			}
		}
		if t.Drive != nil {
			bytes = t.Drive.Medium().UsedSpace()
		}
	case KindStream:
		if info, err := os.Stat(t.AudioPath); err == nil {
			bytes = info.Size()
		}
	}
	blocks = (bytes + media.SectorSize - 1) / media.SectorSize
	return blocks, bytes
}

// Type returns the track type tag of t.
func (t *Track) Type() TrackType {
	tt := TrackType{Kind: t.Kind}
	switch t.Kind {
	case KindImage:
		tt.Format = t.Format
	case KindData:
		tt.FS = t.FS
	case KindDisc:
		if t.Drive != nil {
			tt.Medium = media.StatusOf(t.Drive.Medium())
		}
	}
	return tt
}

// Clone returns a copy of t with its own tag map.
func (t *Track) Clone() *Track {
	cp := *t
	cp.Roots = append([]string(nil), t.Roots...)
	if t.tags != nil {
		cp.tags = make(map[string]any, len(t.tags))
		for k, v := range t.tags {
			cp.tags[k] = v
		}
	}
	return &cp
}
