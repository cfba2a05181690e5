package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds everything a phase needs to run.
type Config struct {
	// Workspace is the build root; relative paths below resolve against it.
	Workspace string `yaml:"workspace,omitempty"`
	// VirtualEnvDir is the isolated dependency environment directory.
	VirtualEnvDir string `yaml:"virtualenv_dir"`
	// Python is the interpreter the environment is bound to.
	Python string `yaml:"python"`
	// Requirements is the dependency manifest installed during prebuild.
	Requirements string `yaml:"requirements"`
	// Sources lists first-party files and directories placed at the archive root.
	Sources []string `yaml:"sources"`
	// Exclusions are gitignore-style patterns omitted from the archive.
	Exclusions []string `yaml:"exclusions"`
	// InstallCommands are run in order by the install phase.
	InstallCommands [][]string `yaml:"install_commands"`
	// TestCommand is run inside the environment during build when RunTests is set.
	TestCommand []string `yaml:"test_command"`
	// RunTests toggles the test suite before packaging.
	RunTests bool `yaml:"run_tests"`
	// ArchiveFile is the archive path written by build and uploaded by postbuild.
	ArchiveFile string `yaml:"archive_file"`
	// ParametersFile is the local path of the generated parameter document.
	ParametersFile string `yaml:"parameters_file"`
	// ParametersKey is the storage key of the uploaded parameter document.
	ParametersKey string `yaml:"parameters_key"`
	// TemplateFile is the pre-existing infrastructure template uploaded by postbuild.
	TemplateFile string `yaml:"template_file"`
	// TemplateKey is the storage key of the uploaded template.
	TemplateKey string `yaml:"template_key"`
	// StackPolicy selects the policy statement embedded in the parameter document.
	StackPolicy string `yaml:"stack_policy"`
	// EnforceOrder rejects phases that skip ahead of the last completed one.
	EnforceOrder bool `yaml:"enforce_order"`
	// Bucket is the target storage bucket.
	Bucket string `yaml:"bucket,omitempty"`
	// Key is the storage key of the uploaded archive.
	Key string `yaml:"key,omitempty"`
	// RoleARN is the execution role identifier placed in the parameter document.
	RoleARN string `yaml:"role_arn,omitempty"`
	// Region is the storage region; empty defers to the SDK's own resolution.
	Region string `yaml:"region,omitempty"`
}

const (
	// DefaultConfigFilename is the optional per-project configuration file.
	DefaultConfigFilename = "packager.yaml"

	// DefaultFilePermissions is the permission for files the packager writes.
	DefaultFilePermissions = 0o644

	// Stack policy variants.
	StackPolicyAllowAll   = "allow-all"
	StackPolicyUpdateOnly = "update-only"
)

// Environment variables read by FromEnv.
const (
	EnvWorkspace = "CODEBUILD_SRC_DIR"
	EnvBucket    = "S3_BUCKET"
	EnvKey       = "S3_KEY"
	EnvRoleARN   = "LAMBDA_ROLE_ARN"
	EnvRegion    = "AWS_REGION"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// ErrMissingSetting is returned when a required field is empty.
	ErrMissingSetting = errors.New("required setting is missing")
	// ErrInvalidSetting is returned when a field holds an unsupported value.
	ErrInvalidSetting = errors.New("invalid setting")
)

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		VirtualEnvDir: "venv",
		Python:        "python3",
		Requirements:  "requirements.txt",
		Sources:       []string{"handler.py", "amifilter.py", "cfntoolkit"},
		Exclusions:    DefaultExclusions(),
		InstallCommands: [][]string{
			{"python3", "-m", "pip", "install", "--upgrade", "pip", "virtualenv"},
		},
		TestCommand:    []string{"python", "setup.py", "test"},
		ArchiveFile:    "lambda.zip",
		ParametersFile: "lambda-params.json",
		ParametersKey:  "lambda-params.json",
		TemplateFile:   "cloudformation.yml",
		TemplateKey:    "cloudformation.yml",
		StackPolicy:    StackPolicyAllowAll,
	}
}

// DefaultExclusions returns the archive exclusion patterns: SDK libraries the
// runtime already provides, test and packaging tooling, metadata directories
// and compiled shared objects.
func DefaultExclusions() []string {
	return []string{
		// Provided by the execution runtime.
		"boto3/",
		"botocore/",
		"s3transfer/",
		"jmespath/",
		"dateutil/",
		// Test, quality and packaging tooling.
		"nose/",
		"coverage/",
		"pytest/",
		"_pytest/",
		"pylint/",
		"pip/",
		"setuptools/",
		"wheel/",
		"pkg_resources/",
		"easy_install.py",
		// Metadata and bytecode.
		"*.dist-info/",
		"*.egg-info/",
		"__pycache__/",
		"*.pyc",
		// Platform-specific compiled binaries.
		"*.so",
	}
}

// Load reads the YAML file at path over the defaults.
// An empty path means packager.yaml in the current directory, which may be absent.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadOptional(DefaultConfigFilename)
	}

	return load(path, false)
}

// LoadOptional reads the file at path like Load, but returns the defaults when it does not exist.
func LoadOptional(path string) (*Config, error) {
	return load(path, true)
}

func load(path string, optional bool) (*Config, error) {
	cfg := Default()

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && optional {
			return cfg, nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	if err = yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	return cfg, nil
}

// Save writes cfg to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// FromEnv overlays non-empty environment values read through lookup.
func (c *Config) FromEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, name string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	set(&c.Workspace, EnvWorkspace)
	set(&c.Bucket, EnvBucket)
	set(&c.Key, EnvKey)
	set(&c.RoleARN, EnvRoleARN)
	set(&c.Region, EnvRegion)
}

// Path resolves p against the workspace unless it is already absolute.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}

	return filepath.Join(c.Workspace, p)
}

// Clone returns a deep copy so callers cannot mutate a shared configuration.
func (c *Config) Clone() *Config {
	cloned := *c
	cloned.Sources = slices.Clone(c.Sources)
	cloned.Exclusions = slices.Clone(c.Exclusions)
	cloned.TestCommand = slices.Clone(c.TestCommand)

	cloned.InstallCommands = make([][]string, 0, len(c.InstallCommands))
	for _, command := range c.InstallCommands {
		cloned.InstallCommands = append(cloned.InstallCommands, slices.Clone(command))
	}

	return &cloned
}

// Validate checks the settings every phase relies on.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	required := map[string]string{
		"virtualenv_dir":  cfg.VirtualEnvDir,
		"python":          cfg.Python,
		"requirements":    cfg.Requirements,
		"archive_file":    cfg.ArchiveFile,
		"parameters_file": cfg.ParametersFile,
	}

	for _, name := range slices.Sorted(maps.Keys(required)) {
		if strings.TrimSpace(required[name]) == "" {
			return fmt.Errorf("%s: %w", name, ErrMissingSetting)
		}
	}

	if len(cfg.Sources) == 0 {
		return fmt.Errorf("sources: %w", ErrMissingSetting)
	}

	if cfg.RunTests && len(cfg.TestCommand) == 0 {
		return fmt.Errorf("test_command: %w", ErrMissingSetting)
	}

	for i, command := range cfg.InstallCommands {
		if len(command) == 0 {
			return fmt.Errorf("install_commands[%d] is empty: %w", i, ErrInvalidSetting)
		}
	}

	switch cfg.StackPolicy {
	case StackPolicyAllowAll, StackPolicyUpdateOnly:
	default:
		return fmt.Errorf("stack_policy %q: %w", cfg.StackPolicy, ErrInvalidSetting)
	}

	return nil
}

// ValidateUpload checks the settings postbuild needs on top of Validate.
func ValidateUpload(cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}

	required := []struct {
		env   string
		value string
	}{
		{EnvBucket, cfg.Bucket},
		{EnvKey, cfg.Key},
		{EnvRoleARN, cfg.RoleARN},
		{"parameters_key", cfg.ParametersKey},
		{"template_file", cfg.TemplateFile},
		{"template_key", cfg.TemplateKey},
	}

	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s: %w", r.env, ErrMissingSetting)
		}
	}

	return nil
}
