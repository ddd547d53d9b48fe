// Package version provides build information for lazysearch.
package version

// Version is the release version, set at build time with:
//
//	go build -ldflags "-X github.com/AaronLay10/lazysearch/internal/version.Version=x.y.z"
var Version = "0.3.0"

// Commit is the source revision, set at build time like Version.
var Commit = "unknown"

// String returns the version and commit in one line.
func String() string {
	return Version + " (" + Commit + ")"
}
