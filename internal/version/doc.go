// Package version exposes build metadata for the packager binary.
//
// Version, Commit and BuildTime are injected at build time via ldflags.
// Full is printed by the version subcommand; Short tags uploads and the
// phase marker so artifacts can be traced to the tool that produced them.
package version
