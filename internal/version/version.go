// Package version carries build identification, populated at link time via
// -ldflags "-X github.com/banshee-data/aisle.report/internal/version.Version=...".
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String renders the build identification for logs and the version endpoint.
func String() string {
	return fmt.Sprintf("aisle.report %s (%s, built %s)", Version, GitSHA, BuildTime)
}
