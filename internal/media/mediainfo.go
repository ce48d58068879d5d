package media

import (
	"bufio"
	"errors"
	"strconv"
	"strings"
)

// ErrNoMedium is returned when dvd+rw-mediainfo reports an empty drive.
var ErrNoMedium = errors.New("no medium mounted")

// ParseMediaInfo turns dvd+rw-mediainfo output into a Medium snapshot. Data
// and audio content is inferred from the disc state; callers refine it with
// the CDROM_DISC_STATUS ioctl when they can.
func ParseMediaInfo(output string) (*Medium, error) {
	var (
		profile    string
		discStatus string
		nwa        int64 = -1
		freeBlocks int64 = -1
		readCap    int64 = -1
		maxRate    int64
		foundMedia bool
	)

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.Contains(line, "no media mounted") {
			return nil, ErrNoMedium
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch {
		case key == "Mounted Media":
			foundMedia = true
			if _, name, ok := strings.Cut(value, ","); ok {
				profile = strings.TrimSpace(name)
			} else {
				profile = value
			}
		case key == "Disc status":
			discStatus = strings.ToLower(value)
		case key == "Next Writable Address":
			nwa = parseBlocks(value)
		case key == "Free Blocks":
			// The last track listed is the invisible/incomplete one.
			freeBlocks = parseBlocks(value)
		case key == "READ CAPACITY":
			readCap = parseCapacity(value)
		case strings.HasPrefix(key, "Write Speed #") || key == "Current Write Speed":
			if rate := parseWriteSpeed(value); rate > maxRate {
				maxRate = rate
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !foundMedia {
		return nil, ErrNoMedium
	}

	m := &Medium{Type: profile, MaxWriteRate: maxRate}
	m.Status = profileStatus(profile)
	if m.Status.Has(StatusUnsupported) {
		return m, nil
	}

	switch discStatus {
	case "blank":
		m.Status |= StatusBlank
	case "appendable":
		m.Status |= StatusAppendable | StatusHasData
	case "complete":
		m.Status |= StatusClosed | StatusHasData
	default:
		// "other" is reported by overwritable formats (DVD+RW, BD-RE).
		if readCap > 0 {
			m.Status |= StatusHasData
		} else if m.Status.Has(StatusWritable) {
			m.Status |= StatusBlank
		}
	}

	used := int64(0)
	if readCap > 0 && !m.Status.Has(StatusBlank) {
		used = readCap
	}
	free := int64(0)
	if freeBlocks > 0 && m.Status.Has(StatusWritable) {
		free = freeBlocks * SectorSize
	}
	if m.Status.Has(StatusClosed) {
		free = 0
	}
	m.Capacity = used + free
	m.FreeSpace = free
	if m.Status.Has(StatusAppendable) && nwa > 0 {
		m.NextWritableAddress = nwa
	}
	return m, nil
}

// profileStatus classifies an MMC profile name such as "DVD+R Double Layer".
func profileStatus(profile string) Status {
	fields := strings.Fields(profile)
	if len(fields) == 0 {
		return StatusUnsupported
	}
	name := strings.ToUpper(fields[0])
	var family Status
	var rest string
	switch {
	case strings.HasPrefix(name, "BD"):
		family, rest = StatusBD, name[2:]
	case strings.HasPrefix(name, "DVD"):
		family, rest = StatusDVD, name[3:]
	case strings.HasPrefix(name, "CD"):
		family, rest = StatusCD, name[2:]
	default:
		return StatusUnsupported
	}
	rest = strings.TrimLeft(rest, "+-")
	switch rest {
	case "ROM":
		return family | StatusROM
	case "R":
		return family | StatusWritable
	case "RW", "RE", "RAM":
		return family | StatusWritable | StatusRewritable
	default:
		return family | StatusUnsupported
	}
}

// parseBlocks reads values such as "359847*2KB".
func parseBlocks(value string) int64 {
	head, _, _ := strings.Cut(value, "*")
	n, err := strconv.ParseInt(strings.TrimSpace(head), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// parseCapacity reads values such as "2295104*2048=4700372992".
func parseCapacity(value string) int64 {
	_, total, ok := strings.Cut(value, "=")
	if !ok {
		return -1
	}
	n, err := strconv.ParseInt(strings.TrimSpace(total), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// parseWriteSpeed reads values such as "4.0x1385=5540KB/s" into bytes/s.
func parseWriteSpeed(value string) int64 {
	_, rhs, ok := strings.Cut(value, "=")
	if !ok {
		return 0
	}
	rhs = strings.TrimSpace(rhs)
	rhs = strings.TrimSuffix(rhs, "KB/s")
	n, err := strconv.ParseFloat(strings.TrimSpace(rhs), 64)
	if err != nil {
		return 0
	}
	return int64(n * 1000)
}
