package media

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"discburn/internal/procexec"
)

// DriveInfo describes an optical drive found by Discover.
type DriveInfo struct {
	Device     string
	Model      string
	Vendor     string
	MountPoint string
}

// DisplayName combines vendor and model, falling back to the device path.
func (d DriveInfo) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(d.Vendor) + " " + strings.TrimSpace(d.Model))
	if name == "" {
		return d.Device
	}
	return name
}

// Discover lists optical drives through lsblk.
func Discover(ctx context.Context, exec procexec.Executor, lsblk string) ([]DriveInfo, error) {
	if lsblk == "" {
		lsblk = "lsblk"
	}
	output, err := exec.Output(ctx, lsblk, "-P", "-p", "-d", "-o", "NAME,TYPE,VENDOR,MODEL,MOUNTPOINT")
	if err != nil {
		return nil, fmt.Errorf("failed to run lsblk: %w", err)
	}
	return ParseLSBLKDrives(string(output)), nil
}

// ParseLSBLKDrives keeps the rom devices of lsblk -P output.
func ParseLSBLKDrives(output string) []DriveInfo {
	var drives []DriveInfo
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		data := parseLSBLKKeyValueLine(strings.TrimSpace(scanner.Text()))
		if data["TYPE"] != "rom" || data["NAME"] == "" {
			continue
		}
		drives = append(drives, DriveInfo{
			Device:     data["NAME"],
			Model:      data["MODEL"],
			Vendor:     data["VENDOR"],
			MountPoint: data["MOUNTPOINT"],
		})
	}
	return drives
}

// ParseLSBLKMountPoints returns every non-empty MOUNTPOINT of lsblk -P output.
func ParseLSBLKMountPoints(output string) []string {
	var points []string
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		data := parseLSBLKKeyValueLine(strings.TrimSpace(scanner.Text()))
		if mp := data["MOUNTPOINT"]; mp != "" {
			points = append(points, mp)
		}
	}
	return points
}

// parseLSBLKKeyValueLine splits KEY="value" pairs; values may contain spaces.
func parseLSBLKKeyValueLine(line string) map[string]string {
	result := make(map[string]string)
	for line != "" {
		line = strings.TrimLeft(line, " \t")
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			break
		}
		key := strings.TrimSpace(line[:eq])
		rest := line[eq+1:]
		var value string
		if strings.HasPrefix(rest, "\"") {
			end := strings.IndexByte(rest[1:], '"')
			if end < 0 {
				value, line = rest[1:], ""
			} else {
				value, line = rest[1:end+1], rest[end+2:]
			}
		} else {
			sp := strings.IndexAny(rest, " \t")
			if sp < 0 {
				value, line = rest, ""
			} else {
				value, line = rest[:sp], rest[sp:]
			}
		}
		result[key] = strings.TrimSpace(value)
	}
	return result
}
