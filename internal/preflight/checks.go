package preflight

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"discburn/internal/config"
	"discburn/internal/deps"
	"discburn/internal/media"
	"discburn/internal/procexec"
)

// MinTmpSpace is the free space asked of the temporary directory, the size
// of a single layer DVD.
const MinTmpSpace = 4700372992

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies that the filesystem holding path has at least
// need bytes available.
func CheckFreeSpace(name, path string, need uint64) Result {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := st.Bavail * uint64(st.Bsize)
	detail := fmt.Sprintf("%s free in %s", humanize.IBytes(free), path)
	if free < need {
		return Result{Name: name, Detail: detail + fmt.Sprintf(" (need %s)", humanize.IBytes(need))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckSystemDeps evaluates the external tools for the given config.
// Both the record command and status use this to avoid duplicating the
// requirements list.
func CheckSystemDeps(_ context.Context, cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.Requirements(cfg.Tools))
}

// DriveProbe reports what the configured burner holds.
type DriveProbe struct {
	Device   string
	Name     string
	Found    bool
	Medium   *media.Medium
	ProbeErr error
}

// ProbeDrive looks the configured device up with lsblk and reads its medium.
func ProbeDrive(ctx context.Context, exec procexec.Executor, cfg *config.Config) DriveProbe {
	device := strings.TrimSpace(cfg.Drive.Device)
	probe := DriveProbe{Device: device, Name: device}
	drives, err := media.Discover(ctx, exec, cfg.Tools.Lsblk)
	if err != nil {
		probe.ProbeErr = err
		return probe
	}
	for _, d := range drives {
		if d.Device == device {
			probe.Found = true
			probe.Name = d.DisplayName()
		}
	}
	if !probe.Found {
		return probe
	}

	drive := media.NewLinuxDrive(device, media.LinuxDriveOptions{
		Model: probe.Name,
		Exec:  exec,
		Tools: media.Tools{
			MediaInfo: cfg.Tools.DVDRWMediaInfo,
			Eject:     cfg.Tools.Eject,
			Lsblk:     cfg.Tools.Lsblk,
			Umount:    cfg.Tools.Umount,
		},
		LockDir: cfg.Paths.StateDir,
	})
	if err := drive.Reprobe(ctx); err != nil {
		probe.ProbeErr = err
	}
	probe.Medium = drive.Medium()
	return probe
}

// Detail renders a display-friendly summary for status output.
func (p DriveProbe) Detail() string {
	switch {
	case p.ProbeErr != nil && !p.Found:
		return fmt.Sprintf("%s (error: %v)", p.Device, p.ProbeErr)
	case !p.Found:
		return fmt.Sprintf("%s not found", p.Device)
	case p.Medium == nil:
		return fmt.Sprintf("%s: no medium", p.Name)
	}
	m := p.Medium
	return fmt.Sprintf("%s: %s, %s (%s free)", p.Name, m.Type, m.Status, humanize.IBytes(uint64(max(m.FreeSpace, 0))))
}
