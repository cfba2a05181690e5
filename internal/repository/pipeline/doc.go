// Package pipeline persists the build pipeline marker.
//
// The FileRepository stores the last completed phase in the workspace as
// YAML, which lets the packager reject a phase that would skip ahead when
// ordering is enforced.
package pipeline
