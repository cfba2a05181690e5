package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// envMap turns a map into a lookup function compatible with os.LookupEnv.
func envMap(values map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := values[name]
		return v, ok
	}
}

// TestValidate checks required fields and policy validation.
func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Validate(Default()))
	require.Error(t, Validate(nil))

	cfg := Default()
	cfg.Python = ""
	require.ErrorIs(t, Validate(cfg), ErrMissingSetting)

	cfg = Default()
	cfg.Sources = nil
	require.ErrorIs(t, Validate(cfg), ErrMissingSetting)

	cfg = Default()
	cfg.StackPolicy = "deny-all"
	require.ErrorIs(t, Validate(cfg), ErrInvalidSetting)

	cfg = Default()
	cfg.InstallCommands = [][]string{{}}
	require.ErrorIs(t, Validate(cfg), ErrInvalidSetting)

	cfg = Default()
	cfg.RunTests = true
	cfg.TestCommand = nil
	require.ErrorIs(t, Validate(cfg), ErrMissingSetting)
}

// TestValidateUpload ensures postbuild settings are only demanded by ValidateUpload.
func TestValidateUpload(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, Validate(cfg))
	require.ErrorIs(t, ValidateUpload(cfg), ErrMissingSetting)

	cfg.FromEnv(envMap(map[string]string{
		EnvBucket:  "my-bucket",
		EnvKey:     "v1/pkg.zip",
		EnvRoleARN: "arn:aws:iam::123:role/x",
	}))
	require.NoError(t, ValidateUpload(cfg))
}

// TestFromEnv verifies that set variables override and blank ones are ignored.
func TestFromEnv(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Bucket = "from-file"
	cfg.Region = "eu-west-1"

	cfg.FromEnv(envMap(map[string]string{
		EnvWorkspace: "/codebuild/src",
		EnvBucket:    " my-bucket ",
		EnvKey:       "v1/pkg.zip",
		EnvRoleARN:   "arn:aws:iam::123:role/x",
		EnvRegion:    "  ",
	}))

	require.Equal(t, "/codebuild/src", cfg.Workspace)
	require.Equal(t, "my-bucket", cfg.Bucket)
	require.Equal(t, "v1/pkg.zip", cfg.Key)
	require.Equal(t, "arn:aws:iam::123:role/x", cfg.RoleARN)
	require.Equal(t, "eu-west-1", cfg.Region)
}

// TestPath resolves relative paths against the workspace.
func TestPath(t *testing.T) {
	t.Parallel()

	cfg := &Config{Workspace: "/work"}
	require.Equal(t, filepath.Join("/work", "lambda.zip"), cfg.Path("lambda.zip"))
	require.Equal(t, "/abs/lambda.zip", cfg.Path("/abs/lambda.zip"))
	require.Empty(t, cfg.Path(""))
}

// TestClone ensures slices are not shared between copies.
func TestClone(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cloned := cfg.Clone()

	cloned.Sources[0] = "changed.py"
	cloned.InstallCommands[0][0] = "pip3"
	cloned.Exclusions = append(cloned.Exclusions, "extra/")

	require.Equal(t, "handler.py", cfg.Sources[0])
	require.Equal(t, "python3", cfg.InstallCommands[0][0])
	require.Equal(t, DefaultExclusions(), cfg.Exclusions)
}

// TestLoad_MissingDefaultFile falls back to defaults when no file was requested.
func TestLoad_MissingDefaultFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

// TestLoadOptional reads an existing file and tolerates a missing one.
func TestLoadOptional(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigFilename)

	cfg, err := LoadOptional(path)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	require.NoError(t, os.WriteFile(path, []byte("stack_policy: update-only\n"), 0o644))

	cfg, err = LoadOptional(path)
	require.NoError(t, err)
	require.Equal(t, StackPolicyUpdateOnly, cfg.StackPolicy)
}

// TestLoad_MissingExplicitFile fails when the named file does not exist.
func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestLoad_PartialFileKeepsDefaults overlays only the keys present in the file.
func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "packager.yaml")
	contents := "stack_policy: update-only\nrun_tests: true\nsources:\n  - handler.py\n  - hashparams.py\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), DefaultFilePermissions))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, StackPolicyUpdateOnly, cfg.StackPolicy)
	require.True(t, cfg.RunTests)
	require.Equal(t, []string{"handler.py", "hashparams.py"}, cfg.Sources)
	require.Equal(t, "venv", cfg.VirtualEnvDir)
	require.Equal(t, DefaultExclusions(), cfg.Exclusions)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "packager.yaml")

	cfg := Default()
	cfg.StackPolicy = StackPolicyUpdateOnly
	cfg.Exclusions = []string{"*.so", "!keep.so"}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}
