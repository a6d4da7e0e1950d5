// Package buildinfo holds build-time metadata injected via -ldflags.
package buildinfo

// Version is the release tag for this build.
// Inject via: -X github.com/qchat-dev/qchat-go/internal/buildinfo.Version=...
var Version = ""

// Commit is the git commit SHA for this build.
// Inject via: -X github.com/qchat-dev/qchat-go/internal/buildinfo.Commit=...
var Commit = ""

// BuildDate is the RFC3339 build timestamp.
// Inject via: -X github.com/qchat-dev/qchat-go/internal/buildinfo.BuildDate=...
var BuildDate = ""

// String returns "version (commit, date)", with "dev" for unset fields.
func String() string {
	or := func(s, def string) string {
		if s == "" {
			return def
		}
		return s
	}
	return or(Version, "dev") + " (" + or(Commit, "unknown") + ", " + or(BuildDate, "unknown") + ")"
}
