package session

import (
	"fmt"

	"discburn/internal/media"
)

// TrackType tags the content flowing between stages: what a session takes
// as input, what a stage produces, and what the session writes.
type TrackType struct {
	Kind   TrackKind
	Format ImageFormat
	FS     FSFlags
	Medium media.Status
}

// Equal compares the fields relevant to kind. Disc types compare the disc
// family only; FS flags never take part.
func (t TrackType) Equal(o TrackType) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindImage:
		return t.Format == o.Format
	case KindDisc:
		return t.Medium.Family() == o.Medium.Family()
	default:
		return true
	}
}

// IsNone reports whether t carries nothing.
func (t TrackType) IsNone() bool { return t.Kind == KindNone }

func (t TrackType) String() string {
	switch t.Kind {
	case KindImage:
		return fmt.Sprintf("image(%s)", t.Format)
	case KindDisc:
		return fmt.Sprintf("disc(%s)", t.Medium)
	default:
		return t.Kind.String()
	}
}

// ImageType is a convenience constructor.
func ImageType(format ImageFormat) TrackType {
	return TrackType{Kind: KindImage, Format: format}
}

// DiscType is a convenience constructor.
func DiscType(status media.Status) TrackType {
	return TrackType{Kind: KindDisc, Medium: status}
}
