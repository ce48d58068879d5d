package session

import (
	"fmt"
	"strings"
)

// Flags is the set of burn options attached to a session.
type Flags uint32

const (
	FlagNone             Flags = 0
	FlagEject            Flags = 1 << 0
	FlagNoGrace          Flags = 1 << 1
	FlagBurnProof        Flags = 1 << 2
	FlagOverburn         Flags = 1 << 3
	FlagDummy            Flags = 1 << 4
	FlagNoTmpFiles       Flags = 1 << 5
	FlagMerge            Flags = 1 << 6
	FlagMulti            Flags = 1 << 7
	FlagAppend           Flags = 1 << 8
	FlagBlankBeforeWrite Flags = 1 << 9
	FlagDAO              Flags = 1 << 10
	FlagRaw              Flags = 1 << 11
	FlagFastBlank        Flags = 1 << 12
	FlagCheckSize        Flags = 1 << 13
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagEject, "eject"},
	{FlagNoGrace, "nograce"},
	{FlagBurnProof, "burnproof"},
	{FlagOverburn, "overburn"},
	{FlagDummy, "dummy"},
	{FlagNoTmpFiles, "no_tmp_files"},
	{FlagMerge, "merge"},
	{FlagMulti, "multi"},
	{FlagAppend, "append"},
	{FlagBlankBeforeWrite, "blank_before_write"},
	{FlagDAO, "dao"},
	{FlagRaw, "raw"},
	{FlagFastBlank, "fast_blank"},
	{FlagCheckSize, "check_size"},
}

// Has reports whether every bit of want is set.
func (f Flags) Has(want Flags) bool {
	return want != 0 && f&want == want
}

// Any reports whether at least one bit of want is set.
func (f Flags) Any(want Flags) bool {
	return f&want != 0
}

// Each calls fn for every single flag set in f, lowest bit first.
func (f Flags) Each(fn func(Flags)) {
	for _, n := range flagNames {
		if f&n.flag != 0 {
			fn(n.flag)
		}
	}
}

func (f Flags) String() string {
	if f == FlagNone {
		return "none"
	}
	parts := make([]string, 0, 4)
	f.Each(func(flag Flags) {
		for _, n := range flagNames {
			if n.flag == flag {
				parts = append(parts, n.name)
			}
		}
	})
	return strings.Join(parts, "|")
}

// ParseFlag resolves a flag name as written in session files.
func ParseFlag(name string) (Flags, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, "-", "_")
	for _, n := range flagNames {
		if n.name == key {
			return n.flag, nil
		}
	}
	return FlagNone, fmt.Errorf("unknown burn flag %q", name)
}
