package gateway

import (
	"bufio"
	"strconv"
	"strings"
)

// Region is one parsed virtual memory region of a process.
type Region struct {
	Start      uint64
	End        uint64
	Protection string
	Path       string
}

// Readable reports whether the region can be read.
func (r Region) Readable() bool {
	return strings.HasPrefix(r.Protection, "r")
}

// Writable reports whether the region can be written.
func (r Region) Writable() bool {
	return len(r.Protection) > 1 && r.Protection[1] == 'w'
}

// Size returns the region size in bytes.
func (r Region) Size() uint64 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

// ParseRegions decodes the newline separated region listing produced by
// Gateway.Regions. Each line holds at least an address range and a
// protection string, optionally followed by a backing path. Malformed
// lines are skipped.
func ParseRegions(text string) []Region {
	var regions []Region
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		parts := strings.Fields(sc.Text())
		if len(parts) < 2 {
			continue
		}
		addrs := strings.Split(parts[0], "-")
		if len(addrs) != 2 {
			continue
		}
		start, err := strconv.ParseUint(addrs[0], 16, 64)
		if err != nil {
			continue
		}
		end, err := strconv.ParseUint(addrs[1], 16, 64)
		if err != nil {
			continue
		}
		r := Region{Start: start, End: end, Protection: parts[1]}
		if len(parts) > 2 {
			r.Path = parts[2]
		}
		regions = append(regions, r)
	}
	return regions
}
