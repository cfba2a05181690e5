package cmd

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"
)

// executeArgsEnv carries the arguments for the child process in TestExecute_UsageErrorExitStatus.
const executeArgsEnv = "PACKAGER_TEST_EXECUTE_ARG"

// TestRootArgs accepts exactly one known phase name.
func TestRootArgs(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"install", "prebuild", "build", "postbuild"} {
		require.NoError(t, rootCmd.ValidateArgs([]string{name}), name)
	}

	invalid := [][]string{
		nil,
		{},
		{"deploy"},
		{"Build"},
		{" build"},
		{"build", "postbuild"},
	}

	for _, args := range invalid {
		require.Error(t, rootCmd.ValidateArgs(args), args)
	}
}

// TestExecuteC_UsageError prints guidance to stderr and runs no phase.
func TestExecuteC_UsageError(t *testing.T) {
	cases := [][]string{
		{"deploy"},
		{},
		{"build", "postbuild"},
	}

	for _, args := range cases {
		dir := t.TempDir()
		stderr := new(bytes.Buffer)

		rootCmd.SetArgs(append(args, "--workspace", dir))
		// Both streams default to stderr when not set.
		rootCmd.SetOut(stderr)
		rootCmd.SetErr(stderr)

		t.Cleanup(func() {
			rootCmd.SetArgs(nil)
			rootCmd.SetOut(nil)
			rootCmd.SetErr(nil)

			workspace = ""
		})

		_, err := rootCmd.ExecuteC()
		require.Error(t, err, args)
		require.Contains(t, stderr.String(), "Error:", args)
		require.Contains(t, stderr.String(), "Usage:", args)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Empty(t, entries, args)
	}
}

// TestExecute_UsageErrorExitStatus exits with status 1 on an unknown phase.
func TestExecute_UsageErrorExitStatus(t *testing.T) {
	if arg := os.Getenv(executeArgsEnv); arg != "" {
		os.Args = []string{"packager", arg}
		Execute()

		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestExecute_UsageErrorExitStatus$") //nolint:gosec // Re-runs the test binary.
	cmd.Dir = t.TempDir()
	cmd.Env = append(os.Environ(), executeArgsEnv+"=deploy")

	stderr := new(bytes.Buffer)
	cmd.Stderr = stderr

	err := cmd.Run()

	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "expected exit error, got %v", err)
	require.Equal(t, 1, exitErr.ExitCode())
	require.Contains(t, stderr.String(), `invalid argument "deploy"`)
	require.Contains(t, stderr.String(), "Usage:")

	entries, err := os.ReadDir(cmd.Dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

// TestApplyLogLevel rejects unknown levels.
func TestApplyLogLevel(t *testing.T) {
	logLevel = "verbose"
	require.Error(t, applyLogLevel(rootCmd, nil))

	logLevel = "info"
	require.NoError(t, applyLogLevel(rootCmd, nil))
}
