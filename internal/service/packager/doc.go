// Package packager implements the four build phases of the Lambda artifact
// packager: install, prebuild, build and postbuild.
//
// Run assembles the configuration once, takes the workspace lock, optionally
// checks the pipeline marker, and dispatches exactly one phase. Every step
// fails fast: the first error aborts the phase and is returned to the CLI.
package packager
