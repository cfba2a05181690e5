package virtualenv

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// makeEnv lays out a minimal environment tree under a temporary directory.
func makeEnv(t *testing.T) *Env {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "venv")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lib", "python3.12", "site-packages"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin", "python"), []byte("#!/bin/sh\n"), 0o755))

	return New(dir)
}

// TestBin resolves tools inside the environment and leaves the rest alone.
func TestBin(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("POSIX layout")
	}

	env := makeEnv(t)

	require.Equal(t, filepath.Join(env.Dir, "bin", "python"), env.Bin("python"))
	require.Equal(t, "nosetests", env.Bin("nosetests"))
	require.Equal(t, "./python", env.Bin("./python"))
	require.Empty(t, env.Bin(""))
}

// TestEnviron activates the environment on top of a base environment.
func TestEnviron(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("POSIX layout")
	}

	env := New("/work/venv")
	got := env.Environ([]string{
		"HOME=/root",
		"PATH=/usr/bin:/bin",
		"PYTHONHOME=/opt/python",
		"VIRTUAL_ENV=/old",
	})

	require.Equal(t, []string{
		"HOME=/root",
		"VIRTUAL_ENV=/work/venv",
		"PATH=/work/venv/bin:/usr/bin:/bin",
	}, got)

	require.Equal(t, []string{"VIRTUAL_ENV=/work/venv", "PATH=/work/venv/bin"}, env.Environ(nil))
}

// TestSitePackages collapses the lib64 symlink onto lib.
func TestSitePackages(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	env := makeEnv(t)
	require.NoError(t, os.Symlink("lib", filepath.Join(env.Dir, "lib64")))

	dirs, err := env.SitePackages()
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(env.Dir, "lib", "python3.12", "site-packages")}, dirs)
}

// TestReset removes the environment and tolerates a missing one.
func TestReset(t *testing.T) {
	t.Parallel()

	env := makeEnv(t)
	require.True(t, env.Exists())

	require.NoError(t, env.Reset())
	require.False(t, env.Exists())
	require.NoError(t, env.Reset())

	dirs, err := env.SitePackages()
	require.NoError(t, err)
	require.Empty(t, dirs)
}
