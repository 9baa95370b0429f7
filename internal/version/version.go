// Package version reports which build of ragcore is running. Release builds
// set the variables with -ldflags:
//
//	go build -ldflags="-X github.com/54b3r/ragcore-go/internal/version.Version=v1.2.3 \
//	                    -X github.com/54b3r/ragcore-go/internal/version.Commit=abc1234 \
//	                    -X github.com/54b3r/ragcore-go/internal/version.BuildDate=2025-01-01"
//
// Otherwise Commit and BuildDate come from the VCS stamp the Go toolchain
// embeds, when there is one.
package version

import (
	"runtime"
	"runtime/debug"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info is the build description printed by `ragcore version --json`.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Modified  bool   `json:"modified,omitempty"`
}

// Get returns the build description, filling unset fields from the
// embedded build info.
func Get() Info {
	info := Info{Version: Version, Commit: Commit, BuildDate: BuildDate, GoVersion: runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" && len(s.Value) >= 7 {
				info.Commit = s.Value[:7]
			}
		case "vcs.time":
			if info.BuildDate == "unknown" {
				info.BuildDate = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// String formats the build information on one line.
func String() string {
	i := Get()
	commit := i.Commit
	if i.Modified {
		commit += "-dirty"
	}
	return i.Version + " (commit " + commit + ", built " + i.BuildDate + ", " + i.GoVersion + ")"
}
