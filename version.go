package binny

import "runtime"

// Version is the semantic version of the binny library.
const Version = "0.3.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}

// VersionInfo contains detailed version information.
type VersionInfo struct {
	Version   string
	GitCommit string // set via ldflags
	BuildTime string // set via ldflags
	GoVersion string
}

// GetVersionInfo returns detailed version information.
//
// GitCommit and BuildTime are populated at build time via -ldflags and read
// "unknown" otherwise:
//
//	go build -ldflags="-X github.com/CDRayn/binny.gitCommit=$(git rev-parse HEAD) \
//	  -X github.com/CDRayn/binny.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
func GetVersionInfo() VersionInfo {
	goVer := goVersion
	if goVer == "unknown" {
		goVer = runtime.Version()
	}
	return VersionInfo{
		Version:   Version,
		GitCommit: gitCommit,
		BuildTime: buildTime,
		GoVersion: goVer,
	}
}

var (
	gitCommit = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)
