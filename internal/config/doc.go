// Package config defines the packager configuration and helpers to load,
// validate and save it in YAML format.
//
// A Config is assembled once per invocation: defaults, then the optional
// YAML file, then environment variables, then CLI overrides. Phases receive
// it explicitly and never read the process environment themselves.
package config
