// Package archive assembles the deployable zip bundle.
//
// First-party sources are written at the archive root, followed by the
// packages installed in the dependency environment. An Excluder built from
// gitignore-style patterns decides which member paths are left out; it works
// on plain slash-separated names so it can be tested without any I/O.
//
// The archive is built in memory and swapped over the previous one in a single
// step, so members from an earlier run can never survive into a new archive.
package archive
