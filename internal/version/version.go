// Package version provides build-time version information.
package version

// Set via -ldflags at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// FullVersion returns the version with its commit, or just the version when
// the commit is not known.
func FullVersion() string {
	if Commit == "" || Commit == "unknown" {
		return Version
	}
	return Version + " (commit " + Commit + ")"
}
