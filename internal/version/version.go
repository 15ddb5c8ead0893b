// Package version contains AdGuard DHCP version information.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/AdguardTeam/golibs/stringutil"
)

// Channel constants.
const (
	ChannelDevelopment = "development"
	ChannelRelease     = "release"
)

// These are set by the linker.  Unfortunately we cannot set constants during
// linking, and Go doesn't have a concept of immutable variables, so to be
// thorough we have to only export them through getters.
var (
	channel string = ChannelDevelopment
	version string
)

// Channel returns the current AdGuard DHCP release channel.
func Channel() (v string) {
	return channel
}

// Full returns the full current version of AdGuard DHCP.
func Full() (v string) {
	return fmt.Sprintf("AdGuard DHCP, version %s", Version())
}

// Version returns the AdGuard DHCP build version.  It's "(devel)" for the
// builds without the version set by the linker.
func Version() (v string) {
	if version == "" {
		return "(devel)"
	}

	return version
}

// vcsInfo is the version control information embedded by the Go toolchain.
type vcsInfo struct {
	revision string
	time     string
	modified bool
}

// newVCSInfo returns the version control information from the build settings.
func newVCSInfo(settings []debug.BuildSetting) (vi *vcsInfo) {
	vi = &vcsInfo{}
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			vi.revision = s.Value
		case "vcs.time":
			vi.time = s.Value
		case "vcs.modified":
			vi.modified = s.Value == "true"
		}
	}

	return vi
}

// write writes the revision lines to b, if there is a revision.
func (vi *vcsInfo) write(b *strings.Builder) {
	if vi.revision == "" {
		return
	}

	rev := vi.revision
	if vi.modified {
		rev += "-dirty"
	}

	stringutil.WriteToBuilder(b, hdrRevision, rev, "\n")
	if vi.time != "" {
		stringutil.WriteToBuilder(b, hdrCommitTime, vi.time, "\n")
	}
}

// fmtModule returns formatted information about module.  The result looks like:
//
//	github.com/Username/module@v1.2.3 (sum: someHASHSUM=)
func fmtModule(m *debug.Module) (formatted string) {
	if m == nil {
		return ""
	}

	if m.Replace != nil {
		return fmtModule(m.Replace)
	}

	sep := "@"
	if m.Version == "(devel)" {
		sep = " "
	}

	formatted = m.Path
	if m.Version != "" {
		formatted += sep + m.Version
	}

	if m.Sum != "" {
		formatted += " (sum: " + m.Sum + ")"
	}

	return formatted
}

// Headers of the lines of the build information message.
const (
	hdrProduct    = "AdGuard DHCP"
	hdrVersion    = "Version: "
	hdrChannel    = "Channel: "
	hdrGo         = "Go version: "
	hdrRevision   = "Revision: "
	hdrCommitTime = "Commit time: "
	hdrPlatform   = "Platform: "
	hdrDeps       = "Dependencies:"
)

// Verbose returns formatted build information.  Output example:
//
//	AdGuard DHCP
//	Version: v0.1.0
//	Channel: development
//	Go version: go1.24.5
//	Revision: 0123456789abcdef0123456789abcdef01234567
//	Commit time: 2025-03-30T13:26:08Z
//	Platform: linux/amd64
//	Dependencies:
//	        ...
func Verbose() (v string) {
	b := &strings.Builder{}

	const nl = "\n"
	stringutil.WriteToBuilder(b, hdrProduct, nl)
	stringutil.WriteToBuilder(b, hdrVersion, Version(), nl)
	stringutil.WriteToBuilder(b, hdrChannel, channel, nl)
	stringutil.WriteToBuilder(b, hdrGo, runtime.Version(), nl)

	info, ok := debug.ReadBuildInfo()
	if ok {
		newVCSInfo(info.Settings).write(b)
	}

	stringutil.WriteToBuilder(b, hdrPlatform, runtime.GOOS, "/", runtime.GOARCH, nl)

	if !ok || len(info.Deps) == 0 {
		return b.String()
	}

	stringutil.WriteToBuilder(b, hdrDeps, nl)
	for _, dep := range info.Deps {
		stringutil.WriteToBuilder(b, "\t", fmtModule(dep), nl)
	}

	return b.String()
}
