package testsupport

import (
	"context"
	"sync"

	"discburn/internal/media"
)

// FakeDrive is an in-memory media.Drive for engine tests. Failures can be
// scripted per call and every side effect is counted.
type FakeDrive struct {
	mu sync.Mutex

	device    string
	medium    *media.Medium
	probing   bool
	locked    bool
	reason    string
	writable  bool
	exclusive bool
	mounted   bool

	// EjectFailures makes the next n Eject calls fail with EjectErr while
	// leaving the medium in place. A negative value fails forever.
	EjectFailures int
	EjectErr      error
	LockErr       error
	UnmountErr    error
	// OnReprobe runs under no lock when Reprobe is called.
	OnReprobe func(*FakeDrive)

	ejects   int
	locks    int
	unlocks  int
	unmounts int
	reprobes int
}

// NewFakeDrive returns a writable, idle drive holding m.
func NewFakeDrive(device string, m *media.Medium) *FakeDrive {
	return &FakeDrive{device: device, medium: m, writable: true, exclusive: true}
}

func (d *FakeDrive) Device() string      { return d.device }
func (d *FakeDrive) DisplayName() string { return "Fake " + d.device }

func (d *FakeDrive) Medium() *media.Medium {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.medium
}

// SetMedium swaps the medium, as if the user changed discs.
func (d *FakeDrive) SetMedium(m *media.Medium) {
	d.mu.Lock()
	d.medium = m
	d.mu.Unlock()
}

func (d *FakeDrive) Probing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.probing
}

func (d *FakeDrive) SetProbing(v bool) {
	d.mu.Lock()
	d.probing = v
	d.mu.Unlock()
}

func (d *FakeDrive) Reprobe(context.Context) error {
	d.mu.Lock()
	d.reprobes++
	hook := d.OnReprobe
	d.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return nil
}

func (d *FakeDrive) IsLocked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locked
}

func (d *FakeDrive) Lock(reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.LockErr != nil {
		return d.LockErr
	}
	if d.locked {
		return media.ErrLocked
	}
	d.locked = true
	d.reason = reason
	d.locks++
	return nil
}

func (d *FakeDrive) Unlock() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.locked {
		d.unlocks++
	}
	d.locked = false
	d.reason = ""
	return nil
}

// LockReason returns the reason passed to the current Lock.
func (d *FakeDrive) LockReason() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reason
}

func (d *FakeDrive) Eject(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ejects++
	if d.EjectFailures != 0 {
		if d.EjectFailures > 0 {
			d.EjectFailures--
		}
		return d.EjectErr
	}
	d.medium = nil
	return nil
}

func (d *FakeDrive) CanWrite() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writable
}

func (d *FakeDrive) SetWritable(v bool) {
	d.mu.Lock()
	d.writable = v
	d.mu.Unlock()
}

func (d *FakeDrive) CanUseExclusively() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exclusive
}

func (d *FakeDrive) SetExclusive(v bool) {
	d.mu.Lock()
	d.exclusive = v
	d.mu.Unlock()
}

func (d *FakeDrive) IsMounted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mounted
}

func (d *FakeDrive) SetMounted(v bool) {
	d.mu.Lock()
	d.mounted = v
	d.mu.Unlock()
}

func (d *FakeDrive) Unmount(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unmounts++
	if d.UnmountErr != nil {
		return d.UnmountErr
	}
	d.mounted = false
	return nil
}

// Counts reports how often each side-effecting call ran.
type Counts struct {
	Ejects, Locks, Unlocks, Unmounts, Reprobes int
}

func (d *FakeDrive) Counts() Counts {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Counts{d.ejects, d.locks, d.unlocks, d.unmounts, d.reprobes}
}

// BlankCDR returns an empty writable CD-R.
func BlankCDR() *media.Medium {
	return &media.Medium{
		Status:    media.StatusCD | media.StatusWritable | media.StatusBlank,
		Type:      "CD-R",
		Capacity:  359847 * media.SectorSize,
		FreeSpace: 359847 * media.SectorSize,
	}
}

// BlankDVDRW returns an empty rewritable DVD.
func BlankDVDRW() *media.Medium {
	return &media.Medium{
		Status:       media.StatusDVD | media.StatusWritable | media.StatusRewritable | media.StatusBlank,
		Type:         "DVD-RW",
		Capacity:     2295104 * media.SectorSize,
		FreeSpace:    2295104 * media.SectorSize,
		MaxWriteRate: 4 * media.DVDRate,
	}
}

// DataCDROM returns a closed pressed CD holding size bytes of data.
func DataCDROM(size int64) *media.Medium {
	return &media.Medium{
		Status:   media.StatusCD | media.StatusROM | media.StatusClosed | media.StatusHasData,
		Type:     "CD-ROM",
		Capacity: size,
	}
}

// AppendableCDRW returns a rewritable CD with one closed session of data.
func AppendableCDRW(used int64) *media.Medium {
	capacity := int64(359847 * media.SectorSize)
	return &media.Medium{
		Status:              media.StatusCD | media.StatusWritable | media.StatusRewritable | media.StatusAppendable | media.StatusHasData,
		Type:                "CD-RW",
		Capacity:            capacity,
		FreeSpace:           capacity - used,
		NextWritableAddress: used / media.SectorSize,
	}
}
