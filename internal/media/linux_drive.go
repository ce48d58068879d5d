package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"discburn/internal/logging"
	"discburn/internal/procexec"
)

// Tools names the helper programs a LinuxDrive shells out to.
type Tools struct {
	MediaInfo string
	Eject     string
	Lsblk     string
	Umount    string
}

func (t Tools) withDefaults() Tools {
	if t.MediaInfo == "" {
		t.MediaInfo = "dvd+rw-mediainfo"
	}
	if t.Eject == "" {
		t.Eject = "eject"
	}
	if t.Lsblk == "" {
		t.Lsblk = "lsblk"
	}
	if t.Umount == "" {
		t.Umount = "umount"
	}
	return t
}

// LinuxDriveOptions configures NewLinuxDrive.
type LinuxDriveOptions struct {
	Tools   Tools
	Model   string
	LockDir string
	Exec    procexec.Executor
	Ejector Ejector
	Logger  *slog.Logger
}

// LinuxDrive drives a /dev/srN device through CDROM ioctls and the
// dvd+rw-tools helpers.
type LinuxDrive struct {
	device  string
	model   string
	tools   Tools
	exec    procexec.Executor
	ejector Ejector
	logger  *slog.Logger
	lock    *flock.Flock

	mu         sync.Mutex
	medium     *Medium
	lockReason string
	probing    atomic.Bool
}

// NewLinuxDrive returns a drive for device. No probing happens until
// Reprobe is called.
func NewLinuxDrive(device string, opts LinuxDriveOptions) *LinuxDrive {
	tools := opts.Tools.withDefaults()
	exec := opts.Exec
	if exec == nil {
		exec = procexec.New()
	}
	ejector := opts.Ejector
	if ejector == nil {
		ejector = NewEjector(exec, tools.Eject)
	}
	lockDir := opts.LockDir
	if lockDir == "" {
		lockDir = os.TempDir()
	}
	name := strings.ReplaceAll(strings.TrimPrefix(device, "/dev/"), "/", "_")
	return &LinuxDrive{
		device:  device,
		model:   strings.TrimSpace(opts.Model),
		tools:   tools,
		exec:    exec,
		ejector: ejector,
		logger:  logging.NewComponentLogger(opts.Logger, "drive").With(logging.String(logging.FieldDrive, device)),
		lock:    flock.New(filepath.Join(lockDir, "discburn-"+name+".lock")),
	}
}

func (d *LinuxDrive) Device() string { return d.device }

func (d *LinuxDrive) DisplayName() string {
	if d.model != "" {
		return d.model + " (" + d.device + ")"
	}
	return d.device
}

func (d *LinuxDrive) Medium() *Medium {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.medium == nil {
		return nil
	}
	cp := *d.medium
	return &cp
}

func (d *LinuxDrive) Probing() bool { return d.probing.Load() }

// Reprobe refreshes the medium snapshot.
func (d *LinuxDrive) Reprobe(ctx context.Context) error {
	d.probing.Store(true)
	defer d.probing.Store(false)

	medium, err := d.probe(ctx)
	d.mu.Lock()
	d.medium = medium
	d.mu.Unlock()
	if err != nil {
		return err
	}
	d.logger.Debug("medium probed",
		logging.String(logging.FieldEventType, "medium_probed"),
		logging.String("status", StatusOf(medium).String()),
		logging.String("type", typeOf(medium)),
	)
	return nil
}

func typeOf(m *Medium) string {
	if m == nil {
		return ""
	}
	return m.Type
}

func (d *LinuxDrive) probe(ctx context.Context) (*Medium, error) {
	tray, err := CheckTrayStatus(d.device)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return &Medium{Status: StatusBusy}, nil
		}
		return nil, err
	}
	if tray == TrayNotReady {
		if tray, err = WaitForTray(ctx, d.device, 30); err != nil {
			return nil, err
		}
	}
	if tray != TrayDiscOK {
		return nil, nil
	}

	output, err := d.exec.Output(ctx, d.tools.MediaInfo, d.device)
	if err != nil {
		var exitErr *procexec.ExitError
		if errors.As(err, &exitErr) {
			for _, line := range exitErr.Stderr {
				if strings.Contains(line, "busy") {
					return &Medium{Status: StatusBusy}, nil
				}
				if strings.Contains(line, "no media mounted") {
					return nil, nil
				}
			}
		}
		if len(output) == 0 {
			return nil, fmt.Errorf("probe %s: %w", d.device, err)
		}
	}
	medium, err := ParseMediaInfo(string(output))
	if errors.Is(err, ErrNoMedium) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse media info for %s: %w", d.device, err)
	}
	if medium.Status.Has(StatusHasData) {
		if kind, err := CheckDiscKind(d.device); err == nil {
			switch kind {
			case DiscAudio:
				medium.Status = medium.Status&^StatusHasData | StatusHasAudio
			case DiscMixed:
				medium.Status |= StatusHasAudio
			}
		}
	}
	return medium, nil
}

func (d *LinuxDrive) IsLocked() bool {
	return d.lock.Locked()
}

// Lock takes the per-device lock file and closes the tray door.
func (d *LinuxDrive) Lock(reason string) error {
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", d.device, err)
	}
	if !ok {
		return fmt.Errorf("lock %s: %w", d.device, ErrLocked)
	}
	d.mu.Lock()
	d.lockReason = reason
	d.mu.Unlock()
	if err := lockDoor(d.device, true); err != nil {
		d.logger.Debug("door lock unavailable", logging.Error(err))
	}
	d.logger.Debug("drive locked", logging.String("reason", reason))
	return nil
}

func (d *LinuxDrive) Unlock() error {
	if !d.lock.Locked() {
		return nil
	}
	if err := lockDoor(d.device, false); err != nil {
		d.logger.Debug("door unlock unavailable", logging.Error(err))
	}
	d.mu.Lock()
	reason := d.lockReason
	d.lockReason = ""
	d.mu.Unlock()
	d.logger.Debug("drive unlocked", logging.String("reason", reason))
	return d.lock.Unlock()
}

// Eject opens the tray, falling back to the eject utility.
func (d *LinuxDrive) Eject(ctx context.Context) error {
	if err := ejectTray(d.device); err != nil {
		d.logger.Debug("eject ioctl failed; trying eject utility", logging.Error(err))
		if err := d.ejector.Eject(ctx, d.device); err != nil {
			return err
		}
	}
	d.mu.Lock()
	d.medium = nil
	d.mu.Unlock()
	return nil
}

func (d *LinuxDrive) CanWrite() bool {
	file, err := os.Open(cdromInfoPath)
	if err != nil {
		return false
	}
	defer file.Close()
	caps, err := ParseCDROMInfo(file)
	if err != nil {
		return false
	}
	return caps[filepath.Base(d.device)].CanWrite()
}

func (d *LinuxDrive) CanUseExclusively() bool {
	return openExclusive(d.device)
}

func (d *LinuxDrive) IsMounted() bool {
	output, err := d.exec.Output(context.Background(), d.tools.Lsblk, "-P", "-p", "-o", "NAME,MOUNTPOINT", d.device)
	if err != nil {
		return false
	}
	return len(ParseLSBLKMountPoints(string(output))) > 0
}

func (d *LinuxDrive) Unmount(ctx context.Context) error {
	if _, err := d.exec.Output(ctx, d.tools.Umount, d.device); err != nil {
		return fmt.Errorf("unmount %s: %w", d.device, err)
	}
	return nil
}
