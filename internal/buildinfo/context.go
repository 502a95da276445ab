// Package buildinfo holds build-time metadata injected through ldflags.
package buildinfo

import (
	"runtime"
	"runtime/debug"
)

// UnknownValue is reported for metadata that was not injected at build time.
const UnknownValue = "unknown"

// BuildInfo provides access to build-time metadata.
type BuildInfo interface {
	GetVersion() string
	GetBuildDate() string
	GetCommit() string
}

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string

	// Commit is the VCS revision, filled from the Go build info when empty
	Commit string
}

// NewContext returns a Context. An empty commit is looked up in the VCS
// stamp embedded by the Go toolchain.
func NewContext(version, buildDate, commit string) *Context {
	if commit == "" {
		commit = vcsRevision()
	}
	return &Context{Version: version, BuildDate: buildDate, Commit: commit}
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return ""
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownValue
	}
	return s
}

// GetVersion implements BuildInfo.GetVersion
func (c *Context) GetVersion() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.Version)
}

// GetBuildDate implements BuildInfo.GetBuildDate
func (c *Context) GetBuildDate() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.BuildDate)
}

// GetCommit implements BuildInfo.GetCommit
func (c *Context) GetCommit() string {
	if c == nil {
		return UnknownValue
	}
	return orUnknown(c.Commit)
}

// String formats the metadata for the version command.
func (c *Context) String() string {
	return "gwpe " + c.GetVersion() +
		" (commit " + c.GetCommit() +
		", built " + c.GetBuildDate() +
		", " + runtime.Version() + " " + runtime.GOOS + "/" + runtime.GOARCH + ")"
}
