package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/frostdev-ops/pma-watch-bridge/pkg/version.Version=..."
var (
	Version   = "dev"
	GitCommit = ""
	BuildDate = "unknown"
)

// GetVersion returns the release version, or dev-<commit> for local builds.
// The commit falls back to the VCS stamp Go embeds in the binary.
func GetVersion() string {
	if Version != "dev" {
		return Version
	}
	commit := commit()
	if commit == "" {
		return "dev"
	}
	if len(commit) > 8 {
		commit = commit[:8]
	}
	return "dev-" + commit
}

// GetFullVersion is the startup banner form
func GetFullVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s, go: %s)",
		GetVersion(), orUnknown(commit()), BuildDate, runtime.Version())
}

func commit() string {
	if GitCommit != "" {
		return GitCommit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
