// Package version holds the build version, overridable at link time with
// -ldflags "-X github.com/apostolou/hestia/internal/version.Version=...".
package version

// Version is the current application version
var Version = "0.1.0"
