// Package shell runs the external tools the build phases depend on.
//
// Every command is echoed to the build log before it starts and its output
// is streamed through, so a failing build can be diagnosed from the linear
// command log alone. A non-zero exit stops the phase.
package shell
