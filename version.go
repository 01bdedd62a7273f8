// Package coursewright exposes build and version metadata for the module.
package coursewright

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the semantic version of the module. Release builds override it
// via -ldflags.
var Version = "0.1.0"

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersion returns build information, filling commit and date from the
// binary's embedded VCS metadata when present.
func GetVersion() Info {
	info := Info{
		Version:   Version,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				info.GitCommit = setting.Value
			case "vcs.time":
				info.BuildDate = setting.Value
			}
		}
	}
	return info
}

// String returns the info as a single human-readable line.
func (i Info) String() string {
	s := fmt.Sprintf("coursewright %s (%s %s)", i.Version, i.GoVersion, i.Platform)
	if commit := i.GitCommit; commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		s += fmt.Sprintf(", commit %s", commit)
	}
	return s
}
