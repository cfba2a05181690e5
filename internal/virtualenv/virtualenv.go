// Package virtualenv models the isolated dependency environment: a directory
// holding an interpreter and the third-party packages installed for one build.
package virtualenv

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
)

// Env is a virtual environment rooted at Dir.
type Env struct {
	// Dir is the absolute environment directory.
	Dir string
}

// New returns the environment rooted at dir.
func New(dir string) *Env {
	return &Env{Dir: filepath.Clean(dir)}
}

// BinDir returns the directory holding the environment's executables.
func (e *Env) BinDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(e.Dir, "Scripts")
	}

	return filepath.Join(e.Dir, "bin")
}

// Bin resolves name inside the environment when it exists there.
// Anything else, including names with a path separator, is returned unchanged.
func (e *Env) Bin(name string) string {
	if name == "" || strings.ContainsRune(name, '/') || strings.ContainsRune(name, filepath.Separator) {
		return name
	}

	candidate := filepath.Join(e.BinDir(), name)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate
	}

	return name
}

// Exists reports whether the environment directory is present.
func (e *Env) Exists() bool {
	info, err := os.Stat(e.Dir)
	return err == nil && info.IsDir()
}

// Reset removes a previous environment so the next one starts empty.
func (e *Env) Reset() error {
	if err := os.RemoveAll(e.Dir); err != nil {
		return fmt.Errorf("remove virtual environment %s: %w", e.Dir, err)
	}

	return nil
}

// Environ returns base with the environment activated: VIRTUAL_ENV set,
// the bin directory first on PATH and PYTHONHOME removed.
func (e *Env) Environ(base []string) []string {
	var (
		result = make([]string, 0, len(base)+2)
		path   string
	)

	for _, kv := range base {
		name, value, _ := strings.Cut(kv, "=")
		switch {
		case name == "VIRTUAL_ENV", name == "PYTHONHOME":
			continue
		case isPathVar(name):
			path = value
			continue
		}

		result = append(result, kv)
	}

	if path == "" {
		path = e.BinDir()
	} else {
		path = e.BinDir() + string(os.PathListSeparator) + path
	}

	return append(result, "VIRTUAL_ENV="+e.Dir, "PATH="+path)
}

// SitePackages returns the site-packages directories of the environment.
// lib64 is commonly a symlink to lib; such duplicates are reported once.
func (e *Env) SitePackages() ([]string, error) {
	patterns := []string{
		filepath.Join(e.Dir, "lib", "python*", "site-packages"),
		filepath.Join(e.Dir, "lib64", "python*", "site-packages"),
		filepath.Join(e.Dir, "Lib", "site-packages"),
	}

	var (
		dirs []string
		seen = make(map[string]struct{})
	)

	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}

		slices.Sort(matches)

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || !info.IsDir() {
				continue
			}

			resolved, err := filepath.EvalSymlinks(match)
			if err != nil {
				return nil, fmt.Errorf("resolve %s: %w", match, err)
			}

			if _, ok := seen[resolved]; ok {
				continue
			}

			seen[resolved] = struct{}{}
			dirs = append(dirs, match)
		}
	}

	return dirs, nil
}

// isPathVar matches PATH case-insensitively on Windows.
func isPathVar(name string) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(name, "PATH")
	}

	return name == "PATH"
}
