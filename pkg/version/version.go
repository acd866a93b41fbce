// Package version holds the build information of the issuetrack binary.
package version

import (
	"fmt"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/Sumatoshi-tech/issuetrack/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const shortCommitLen = 12

// InitBinaryVersion fills the values not set by the linker from the module
// build info embedded by the go tool.
func InitBinaryVersion() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	apply(info)
}

func apply(info *debug.BuildInfo) {
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if Commit == "none" {
				Commit = s.Value[:min(len(s.Value), shortCommitLen)]
			}
		case "vcs.time":
			if Date == "unknown" {
				Date = s.Value
			}
		}
	}
}

// String renders the version line printed by "issuetrack version".
func String() string {
	return fmt.Sprintf("issuetrack %s (commit: %s, built: %s)", Version, Commit, Date)
}
