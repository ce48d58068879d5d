package media

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Linux CDROM ioctl request numbers.
const (
	ioctlCDROMEject       = 0x5309
	ioctlCDROMDriveStatus = 0x5326
	ioctlCDROMDiscStatus  = 0x5327
	ioctlCDROMLockDoor    = 0x5329
)

// TrayStatus represents the result of a CDROM_DRIVE_STATUS ioctl call.
type TrayStatus int

const (
	TrayNoInfo   TrayStatus = 0
	TrayNoDisc   TrayStatus = 1
	TrayOpen     TrayStatus = 2
	TrayNotReady TrayStatus = 3
	TrayDiscOK   TrayStatus = 4
)

// String returns a human-readable label for the tray status.
func (s TrayStatus) String() string {
	switch s {
	case TrayNoInfo:
		return "no_info"
	case TrayNoDisc:
		return "no_disc"
	case TrayOpen:
		return "tray_open"
	case TrayNotReady:
		return "not_ready"
	case TrayDiscOK:
		return "disc_ok"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// DiscKind is the result of a CDROM_DISC_STATUS ioctl call.
type DiscKind int

const (
	DiscNoInfo DiscKind = 0
	DiscAudio  DiscKind = 100
	DiscData1  DiscKind = 101
	DiscData2  DiscKind = 102
	DiscXA21   DiscKind = 103
	DiscXA22   DiscKind = 104
	DiscMixed  DiscKind = 105
)

func openNonBlocking(devicePath string) (int, error) {
	devicePath = strings.TrimSpace(devicePath)
	if devicePath == "" {
		return -1, fmt.Errorf("empty device path")
	}
	fd, err := unix.Open(devicePath, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return -1, fmt.Errorf("open %s: %w", devicePath, err)
	}
	return fd, nil
}

// CheckTrayStatus queries the drive state using the CDROM_DRIVE_STATUS ioctl.
func CheckTrayStatus(devicePath string) (TrayStatus, error) {
	fd, err := openNonBlocking(devicePath)
	if err != nil {
		return TrayNoInfo, err
	}
	defer unix.Close(fd) //nolint:errcheck

	r, err := unix.IoctlRetInt(fd, ioctlCDROMDriveStatus)
	if err != nil {
		return TrayNoInfo, fmt.Errorf("ioctl CDROM_DRIVE_STATUS on %s: %w", devicePath, err)
	}
	return TrayStatus(r), nil
}

// CheckDiscKind queries the track content classification of the inserted disc.
func CheckDiscKind(devicePath string) (DiscKind, error) {
	fd, err := openNonBlocking(devicePath)
	if err != nil {
		return DiscNoInfo, err
	}
	defer unix.Close(fd) //nolint:errcheck

	r, err := unix.IoctlRetInt(fd, ioctlCDROMDiscStatus)
	if err != nil {
		return DiscNoInfo, fmt.Errorf("ioctl CDROM_DISC_STATUS on %s: %w", devicePath, err)
	}
	return DiscKind(r), nil
}

func ejectTray(devicePath string) error {
	fd, err := openNonBlocking(devicePath)
	if err != nil {
		return err
	}
	defer unix.Close(fd) //nolint:errcheck
	if err := unix.IoctlSetInt(fd, ioctlCDROMEject, 0); err != nil {
		return fmt.Errorf("ioctl CDROMEJECT on %s: %w", devicePath, err)
	}
	return nil
}

func lockDoor(devicePath string, locked bool) error {
	fd, err := openNonBlocking(devicePath)
	if err != nil {
		return err
	}
	defer unix.Close(fd) //nolint:errcheck
	value := 0
	if locked {
		value = 1
	}
	if err := unix.IoctlSetInt(fd, ioctlCDROMLockDoor, value); err != nil {
		return fmt.Errorf("ioctl CDROM_LOCKDOOR on %s: %w", devicePath, err)
	}
	return nil
}

// openExclusive reports whether the device can be opened with O_EXCL, which
// fails while another process (or a mount) holds it.
func openExclusive(devicePath string) bool {
	fd, err := unix.Open(devicePath, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_EXCL, 0)
	if err != nil {
		return false
	}
	_ = unix.Close(fd)
	return true
}

// WaitForTray polls the drive at 1-second intervals until it leaves the
// not-ready state, the poll budget is spent, or the context is cancelled.
func WaitForTray(ctx context.Context, devicePath string, maxPolls int) (TrayStatus, error) {
	const pollInterval = 1 * time.Second
	if maxPolls <= 0 {
		maxPolls = 60
	}

	var lastStatus TrayStatus
	for i := 0; i < maxPolls; i++ {
		status, err := CheckTrayStatus(devicePath)
		if err != nil {
			return status, err
		}
		lastStatus = status
		if status != TrayNotReady {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return lastStatus, ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	return lastStatus, fmt.Errorf("drive %s not ready after %d polls (last status: %s)", devicePath, maxPolls, lastStatus)
}
