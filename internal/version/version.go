package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// Version is the semantic version of the build. It can be overridden via ldflags.
	Version = "0.1.0"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// Short returns only the semantic version string.
func Short() string {
	return Version
}

// Full returns a human-readable version string with commit, build time and toolchain.
// Without ldflags the commit falls back to the VCS revision recorded by the Go toolchain.
func Full() string {
	return fmt.Sprintf("zonesync version: %s, commit: %s, built at: %s, go: %s",
		Version, commit(), BuildTime, runtime.Version())
}

func commit() string {
	if Commit != "none" {
		return Commit
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Commit
	}

	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && setting.Value != "" {
			const shortSHA = 7
			if len(setting.Value) > shortSHA {
				return setting.Value[:shortSHA]
			}

			return setting.Value
		}
	}

	return Commit
}
