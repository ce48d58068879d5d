package media

import "strings"

// Status is a bitmask describing the medium inside a drive.
type Status uint32

const (
	StatusNone        Status = 0
	StatusUnsupported Status = 1 << 0
	StatusBusy        Status = 1 << 1
	StatusFile        Status = 1 << 2
	StatusCD          Status = 1 << 3
	StatusDVD         Status = 1 << 4
	StatusBD          Status = 1 << 5
	StatusWritable    Status = 1 << 6
	StatusRewritable  Status = 1 << 7
	StatusROM         Status = 1 << 8
	StatusBlank       Status = 1 << 9
	StatusClosed      Status = 1 << 10
	StatusAppendable  Status = 1 << 11
	StatusHasData     Status = 1 << 12
	StatusHasAudio    Status = 1 << 13
)

var statusNames = []struct {
	bit  Status
	name string
}{
	{StatusUnsupported, "unsupported"},
	{StatusBusy, "busy"},
	{StatusFile, "file"},
	{StatusCD, "cd"},
	{StatusDVD, "dvd"},
	{StatusBD, "bd"},
	{StatusWritable, "writable"},
	{StatusRewritable, "rewritable"},
	{StatusROM, "rom"},
	{StatusBlank, "blank"},
	{StatusClosed, "closed"},
	{StatusAppendable, "appendable"},
	{StatusHasData, "has_data"},
	{StatusHasAudio, "has_audio"},
}

// Has reports whether every bit of want is set.
func (s Status) Has(want Status) bool {
	return want != 0 && s&want == want
}

// Any reports whether at least one bit of want is set.
func (s Status) Any(want Status) bool {
	return s&want != 0
}

func (s Status) String() string {
	if s == StatusNone {
		return "none"
	}
	parts := make([]string, 0, 4)
	for _, n := range statusNames {
		if s&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Family returns the disc family bits (CD, DVD or BD).
func (s Status) Family() Status {
	return s & (StatusCD | StatusDVD | StatusBD)
}
