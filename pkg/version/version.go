// Package version exposes the build metadata stamped into the quarry
// binary via -ldflags "-X github.com/quarrydocs/quarry/pkg/version.Version=...".
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the release tag, "dev" for unstamped builds.
	Version = "dev"

	// Commit is the git revision the binary was built from.
	Commit = "unknown"

	// Date is the build timestamp in RFC3339.
	Date = "unknown"

	// GoVersion comes from the runtime, not ldflags.
	GoVersion = runtime.Version()
)

// BuildInfo carries the full metadata for JSON output.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// String renders a one-line human-readable version.
func String() string {
	return fmt.Sprintf("quarry %s (commit: %s, built: %s, go: %s)",
		Version, Commit, Date, GoVersion)
}

// Short returns only the version tag.
func Short() string { return Version }

// GetInfo snapshots the build metadata.
func GetInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
