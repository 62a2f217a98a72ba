// Package version carries build metadata stamped in with -ldflags.
package version

import "fmt"

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is when the binary was linked.
	BuildTime = "unknown"
)

// String formats the build metadata for -version and the debug pages.
func String() string {
	return fmt.Sprintf("vrcore %s (%s, built %s)", Version, GitSHA, BuildTime)
}
