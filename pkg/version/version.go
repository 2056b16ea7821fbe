// Package version carries the build metadata stamped into the vitrina
// binary.
package version

import (
	"fmt"
	"runtime"
)

// Stamped at build time via ldflags, for example
// -X github.com/vitrina-search/vitrina/pkg/version.Version=$(VERSION).
// A plain `go build` leaves the dev defaults.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info is the structured form of the build metadata, shaped for the
// JSON output of `vitrina version --json`.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetInfo collects the stamped metadata plus the runtime platform.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// String is the one-line human form shown by `vitrina version`.
func String() string {
	return fmt.Sprintf("vitrina %s (commit: %s, built: %s, go: %s)",
		Version, Commit, Date, runtime.Version())
}

// Short returns the bare version.
func Short() string {
	return Version
}

// UserAgent identifies the feed fetcher to upstream shops.
func UserAgent() string {
	return "vitrina-feed/" + Version
}
