// Package version provides the build version
package version

import "fmt"

// set by the linker with -X flags
var (
	major  = "0"
	minor  = "1"
	commit = "dev"
)

// Info describes the build version
type Info struct {
	Major  string `json:"major"`
	Minor  string `json:"minor"`
	Commit string `json:"commit"`
}

// Current returns the version of the build
func Current() Info {
	return Info{Major: major, Minor: minor, Commit: commit}
}

func (v Info) String() string {
	return fmt.Sprintf("%s.%s.%s", v.Major, v.Minor, v.Commit)
}
