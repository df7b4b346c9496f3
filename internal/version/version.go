// Package version reports the build of the running binary.
//
// Release builds stamp the package variables with ldflags:
//
//	go build -ldflags "-X github.com/jmylchreest/companion-api/internal/version.Version=1.0.0 ..."
//
// Local builds fall back to the VCS settings the Go toolchain embeds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

const unknown = "unknown"

// Set via ldflags.
var (
	Version = "0.0.0-dev"
	Commit  = unknown
	Date    = unknown
	Dirty   = "false"
)

// Info describes a build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Dirty     bool   `json:"dirty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build info of the running binary.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		Dirty:     Dirty == "true",
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = info.withBuildSettings(bi.Settings)
	}
	return info
}

// withBuildSettings fills commit, date and dirty from embedded VCS settings
// when ldflags left them unset.
func (i Info) withBuildSettings(settings []debug.BuildSetting) Info {
	if i.Commit != unknown {
		return i
	}
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			i.Commit = s.Value
			if len(i.Commit) > 12 {
				i.Commit = i.Commit[:12]
			}
		case "vcs.time":
			if i.Date == unknown {
				i.Date = s.Value
			}
		case "vcs.modified":
			i.Dirty = i.Dirty || s.Value == "true"
		}
	}
	return i
}

// String renders "version (commit) built date".
func (i Info) String() string {
	commit := i.Commit
	if i.Dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s) built %s", i.Version, commit, i.Date)
}

// Short returns the version with a -dirty suffix for modified trees.
func (i Info) Short() string {
	if i.Dirty {
		return i.Version + "-dirty"
	}
	return i.Version
}

// LogAttrs returns the build info as slog key/value pairs.
func (i Info) LogAttrs() []any {
	return []any{
		"version", i.Short(),
		"commit", i.Commit,
		"built", i.Date,
		"go_version", i.GoVersion,
		"platform", i.Platform,
	}
}
