package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"discburn/internal/config"
)

// Requirement defines an external tool the burner relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// LookPathFunc resolves a command name to an executable path.
type LookPathFunc func(file string) (string, error)

// Requirements lists the tools named in the configuration. Only the DVD/BD
// tools are optional: without them CDs can still be written.
func Requirements(tools config.Tools) []Requirement {
	return []Requirement{
		{Name: "xorriso", Command: tools.Xorriso, Description: "Builds ISO9660 images from files"},
		{Name: "wodim", Command: tools.Wodim, Description: "Records and blanks CDs"},
		{Name: "growisofs", Command: tools.Growisofs, Description: "Records DVD and BD media", Optional: true},
		{Name: "dvd+rw-format", Command: tools.DVDRWFormat, Description: "Blanks and formats rewritable DVDs", Optional: true},
		{Name: "dvd+rw-mediainfo", Command: tools.DVDRWMediaInfo, Description: "Probes inserted media"},
		{Name: "lsblk", Command: tools.Lsblk, Description: "Discovers optical drives"},
		{Name: "umount", Command: tools.Umount, Description: "Unmounts media before writing"},
		{Name: "eject", Command: tools.Eject, Description: "Ejects media when the ioctl fails", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements against PATH.
func CheckBinaries(requirements []Requirement) []Status {
	return CheckBinariesWith(requirements, exec.LookPath)
}

// CheckBinariesWith evaluates the provided requirements using lookPath.
func CheckBinariesWith(requirements []Requirement, lookPath LookPathFunc) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := lookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}
