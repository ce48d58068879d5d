package media

// SectorSize is the size of one data block on an optical disc.
const SectorSize = 2048

// Medium is a point-in-time snapshot of the disc in a drive.
type Medium struct {
	Status Status
	// Type is the human-readable profile, e.g. "DVD+RW".
	Type string
	// Capacity and FreeSpace are in bytes.
	Capacity  int64
	FreeSpace int64
	// NextWritableAddress is in sectors; 0 when the disc is blank or closed.
	NextWritableAddress int64
	// MaxWriteRate is in bytes per second; 0 when unknown.
	MaxWriteRate int64
}

// Is reports whether every bit of status is set on m. A nil medium is only
// StatusNone.
func (m *Medium) Is(status Status) bool {
	if m == nil {
		return status == StatusNone
	}
	return m.Status.Has(status)
}

// StatusOf returns the status of m, StatusNone for nil.
func StatusOf(m *Medium) Status {
	if m == nil {
		return StatusNone
	}
	return m.Status
}

// CanBeWritten reports whether data can be added to the disc as it is.
func (m *Medium) CanBeWritten() bool {
	if m == nil || !m.Status.Has(StatusWritable) {
		return false
	}
	return m.Status.Any(StatusBlank | StatusAppendable)
}

// CanBeRewritten reports whether the disc can be blanked.
func (m *Medium) CanBeRewritten() bool {
	return m != nil && m.Status.Has(StatusRewritable)
}

// HasContent reports whether the disc carries data or audio tracks.
func (m *Medium) HasContent() bool {
	return m != nil && m.Status.Any(StatusHasData|StatusHasAudio)
}

// UsedSpace returns the bytes already recorded on the disc.
func (m *Medium) UsedSpace() int64 {
	if m == nil {
		return 0
	}
	used := m.Capacity - m.FreeSpace
	if used < 0 {
		return 0
	}
	return used
}
