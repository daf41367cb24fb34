// Package version reports the wsdtool build.
//
// Release builds set the values with ldflags:
//
//	go build -ldflags="-X github.com/wsdtool/wsdtool/internal/version.Version=v0.3.0 \
//	                   -X github.com/wsdtool/wsdtool/internal/version.Commit=1a2b3c4"
//
// Otherwise they come from the module and VCS stamps of the binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

const devVersion = "dev"

var (
	// Version is the release, such as v0.3.0
	Version = ""
	// Commit is the short VCS revision, suffixed with -dirty for modified trees
	Commit = ""
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		fill(info)
	}
	if Version == "" {
		Version = devVersion
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

func fill(info *debug.BuildInfo) {
	if Version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
	if Commit != "" {
		return
	}

	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	rev := settings["vcs.revision"]
	if rev == "" {
		return
	}
	Commit = shortRevision(rev)
	if settings["vcs.modified"] == "true" {
		Commit += "-dirty"
	}
}

func shortRevision(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

// IsDev reports whether this is an unreleased build
func IsDev() bool {
	return Version == devVersion || strings.HasPrefix(Version, devVersion+"-")
}

// Full returns the version, commit and toolchain on one line
func Full() string {
	return fmt.Sprintf("%s (commit: %s, %s %s/%s)", Version, Commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
