// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder suited to CI build logs,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration and parsing utilities,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// Every phase receives a context carrying a named logger and the build ID,
// so each echoed command in the build log can be traced to its run.
package logger
