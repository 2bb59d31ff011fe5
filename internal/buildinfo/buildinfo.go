// Package buildinfo resolves the version string stamped into session
// metadata and the version subcommand.
package buildinfo

import "runtime/debug"

// Overridden at build time via -ldflags "-X ...buildinfo.version=v1.2.3".
var version = "dev"

// SetVersion overrides the reported version; empty values are ignored.
func SetVersion(v string) {
	if v == "" {
		return
	}
	version = v
}

// Version reports the stamped version, falling back to the module version
// embedded by the toolchain.
func Version() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}
