package media

import (
	"context"
	"errors"
)

// ErrLocked is returned by Lock when another holder owns the drive.
var ErrLocked = errors.New("drive is locked by another process")

// Drive is the narrow view of an optical drive the burn engine works with.
type Drive interface {
	Device() string
	DisplayName() string
	// Medium returns the last probed snapshot, nil when the tray is empty.
	Medium() *Medium
	Probing() bool
	Reprobe(ctx context.Context) error
	IsLocked() bool
	Lock(reason string) error
	Unlock() error
	Eject(ctx context.Context) error
	CanWrite() bool
	CanUseExclusively() bool
	IsMounted() bool
	Unmount(ctx context.Context) error
}

// SameDrive reports whether a and b address the same device.
func SameDrive(a, b Drive) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Device() == b.Device()
}
