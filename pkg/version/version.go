package version

import (
	"fmt"
	"runtime"
)

// Version represents the current version of memprobe.
type Version struct {
	Major    string
	Minor    string
	Patch    string
	Metadata string
	Build    string
}

// MemprobeVersion is the current version of memprobe.
var MemprobeVersion = Version{
	Major: "0", Minor: "9", Patch: "1", Metadata: "",
	Build: "$Id$",
}

func (v Version) String() string {
	ver := fmt.Sprintf("Version: %s.%s.%s", v.Major, v.Minor, v.Patch)
	if v.Metadata != "" {
		ver += "-" + v.Metadata
	}
	return ver
}

// BuildInfo returns the Go version used to build this binary.
func BuildInfo() string {
	return runtime.Version()
}
