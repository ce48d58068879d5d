package media

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// cdromInfoPath is the kernel's capability table for CD-ROM class drives.
var cdromInfoPath = "/proc/sys/dev/cdrom/info"

// Capabilities is one column of the kernel CD-ROM capability table.
type Capabilities struct {
	Speed    int
	WriteCD  bool
	WriteDVD bool
	ReadDVD  bool
}

// CanWrite reports whether the drive records any disc family.
func (c Capabilities) CanWrite() bool {
	return c.WriteCD || c.WriteDVD
}

// ParseCDROMInfo reads /proc/sys/dev/cdrom/info, keyed by kernel name
// ("sr0").
func ParseCDROMInfo(r io.Reader) (map[string]Capabilities, error) {
	var names []string
	caps := map[string]Capabilities{}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		fields := strings.Fields(value)
		if key == "drive name" {
			names = fields
			for _, n := range names {
				caps[n] = Capabilities{}
			}
			continue
		}
		for i, field := range fields {
			if i >= len(names) {
				break
			}
			c := caps[names[i]]
			n, _ := strconv.Atoi(field)
			switch key {
			case "drive speed":
				c.Speed = n
			case "Can write CD-R", "Can write CD-RW":
				c.WriteCD = c.WriteCD || n == 1
			case "Can write DVD-R", "Can write DVD-RAM":
				c.WriteDVD = c.WriteDVD || n == 1
			case "Can read DVD":
				c.ReadDVD = n == 1
			}
			caps[names[i]] = c
		}
	}
	return caps, scanner.Err()
}
