// Package version reports which harvest build is running. Release builds
// stamp the variables below with ldflags:
//
//	go build -ldflags "-X github.com/jmylchreest/harvest/internal/version.Version=0.3.0 \
//	  -X github.com/jmylchreest/harvest/internal/version.Commit=$(git rev-parse HEAD)"
//
// Anything left unstamped is taken from the VCS settings the Go toolchain
// embeds in the binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

var (
	Version   = "dev"
	Commit    = ""
	Dirty     = ""
	BuildDate = ""
)

// Info describes the running build, as printed by `harvest version --json`.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Dirty     bool   `json:"dirty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build information, filling gaps from the embedded
// build settings.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Dirty:     Dirty == "true",
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = withBuildInfo(info, bi, Dirty == "")
	}
	return info
}

func withBuildInfo(info Info, bi *debug.BuildInfo, dirtyUnset bool) Info {
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = strings.TrimPrefix(bi.Main.Version, "v")
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.BuildDate == "" {
				info.BuildDate = s.Value
			}
		case "vcs.modified":
			if dirtyUnset {
				info.Dirty = s.Value == "true"
			}
		}
	}
	return info
}

// String returns the version, suffixed with -dirty for modified trees.
func (i Info) String() string {
	if i.Dirty {
		return i.Version + "-dirty"
	}
	return i.Version
}

// String returns the running version.
func String() string {
	return Get().String()
}

// Full returns a one-line description for `harvest version`.
func Full() string {
	info := Get()
	details := []string{}
	if info.Commit != "" {
		details = append(details, shortCommit(info.Commit))
	}
	if info.BuildDate != "" {
		details = append(details, "built "+info.BuildDate)
	}
	details = append(details, info.GoVersion, info.Platform)
	return fmt.Sprintf("harvest %s (%s)", info, strings.Join(details, ", "))
}

// UserAgent returns the User-Agent header sent by the fetchers and API clients.
func UserAgent() string {
	return fmt.Sprintf("harvest/%s (+https://github.com/jmylchreest/harvest)", String())
}

func shortCommit(c string) string {
	if len(c) > 12 {
		return c[:12]
	}
	return c
}
