package packager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/lambda-packager/internal/config"
	"github.com/oshokin/lambda-packager/internal/domain/phase"
	"github.com/oshokin/lambda-packager/internal/logger"
	"github.com/oshokin/lambda-packager/internal/repository/pipeline"
	"github.com/oshokin/lambda-packager/internal/shell"
	"github.com/oshokin/lambda-packager/internal/storage"
	"github.com/oshokin/lambda-packager/internal/version"
	"github.com/oshokin/lambda-packager/internal/virtualenv"
)

// Options contains inputs for the packager entry point.
type Options struct {
	// Phase is the phase name given on the command line.
	Phase string
	// ConfigPath is an optional YAML configuration file (defaults to packager.yaml in the workspace when present).
	ConfigPath string
	// Workspace overrides the workspace root from the file and environment.
	Workspace string
	// StackPolicy overrides the stack policy variant when non-empty.
	StackPolicy string
	// RunTests overrides the run_tests setting when non-nil.
	RunTests *bool
	// EnforceOrder overrides the enforce_order setting when non-nil.
	EnforceOrder *bool

	// LookupEnv reads configuration variables; nil means os.LookupEnv.
	LookupEnv func(string) (string, bool)
	// Environ is the base environment for child processes; nil means os.Environ().
	Environ []string
	// Runner executes external commands; nil means a shell.ExecRunner.
	Runner shell.Runner
	// Uploader stores artifacts; nil means an S3 uploader created on first use.
	Uploader storage.Uploader
	// Stdout receives the echoed parameter document; nil means os.Stdout.
	Stdout io.Writer
}

// packager runs a single phase against an immutable configuration.
// Callers use Run, which validates the configuration first.
type packager struct {
	// cfg is the configuration assembled at start.
	cfg *config.Config
	// buildID identifies this invocation in logs, uploads and the marker.
	buildID string
	// env is the isolated dependency environment of the workspace.
	env *virtualenv.Env
	// environ is the base environment for child processes.
	environ []string
	// runner executes external commands.
	runner shell.Runner
	// uploader stores artifacts; created lazily by objectStore().
	uploader storage.Uploader
	// stdout receives the echoed parameter document.
	stdout io.Writer
	// markers persists the last completed phase.
	markers pipeline.Repository
}

var (
	// ErrOutOfOrder is returned when ordering is enforced and a phase skips ahead.
	ErrOutOfOrder = errors.New("refusing to run phase out of order")
	// errNoVirtualEnv is returned by build when prebuild has not created the environment.
	errNoVirtualEnv = errors.New("virtual environment not found; run prebuild first")
	// errNoArchive is returned by postbuild when build has not produced the archive.
	errNoArchive = errors.New("archive not found; run build first")
)

// Run executes one phase.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "packager")

	current, err := phase.Parse(opts.Phase)
	if err != nil {
		return err
	}

	cfg, err := LoadConfig(opts)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	pkg := newPackager(cfg, opts)
	ctx = logger.WithKV(ctx, "phase", current.String(), "build_id", pkg.buildID)

	lock, err := acquireLock(ctx, cfg.Path(LockFilename))
	if err != nil {
		return err
	}

	defer lock.Release(ctx)

	if cfg.EnforceOrder {
		if err = pkg.checkOrder(ctx, current); err != nil {
			return err
		}
	}

	logger.InfoKV(ctx, "Starting phase", "workspace", cfg.Workspace, "version", version.Short())

	started := time.Now()

	if err = pkg.Run(ctx, current); err != nil {
		logger.ErrorKV(ctx, "Phase failed", "error", err)
		return fmt.Errorf("%s failed: %w", current, err)
	}

	if err = pkg.markers.Save(ctx, &pipeline.Marker{
		Phase:       current,
		BuildID:     pkg.buildID,
		CompletedAt: time.Now().UTC(),
		ToolVersion: version.Short(),
	}); err != nil {
		return fmt.Errorf("record completed phase: %w", err)
	}

	logger.InfoKV(ctx, "Phase completed", "duration", time.Since(started).Round(time.Millisecond))

	return nil
}

// LoadConfig assembles the configuration: defaults, file, environment, then overrides.
func LoadConfig(opts *Options) (*config.Config, error) {
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var (
		cfg *config.Config
		err error
	)

	if opts.ConfigPath != "" {
		cfg, err = config.Load(opts.ConfigPath)
	} else {
		cfg, err = config.LoadOptional(filepath.Join(workspaceHint(opts, lookup), config.DefaultConfigFilename))
	}

	if err != nil {
		return nil, err
	}

	cfg.FromEnv(lookup)

	if opts.Workspace != "" {
		cfg.Workspace = opts.Workspace
	}

	if opts.StackPolicy != "" {
		cfg.StackPolicy = opts.StackPolicy
	}

	if opts.RunTests != nil {
		cfg.RunTests = *opts.RunTests
	}

	if opts.EnforceOrder != nil {
		cfg.EnforceOrder = *opts.EnforceOrder
	}

	if cfg.Workspace == "" {
		if cfg.Workspace, err = os.Getwd(); err != nil {
			return nil, fmt.Errorf("resolve workspace: %w", err)
		}
	}

	if cfg.Workspace, err = filepath.Abs(cfg.Workspace); err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}

	if err = config.Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// workspaceHint is the directory searched for the default configuration file:
// the workspace flag, then the workspace variable, then the current directory.
func workspaceHint(opts *Options, lookup func(string) (string, bool)) string {
	if opts.Workspace != "" {
		return opts.Workspace
	}

	if v, ok := lookup(config.EnvWorkspace); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}

	return ""
}

// newPackager wires the collaborators for one invocation.
func newPackager(cfg *config.Config, opts *Options) *packager {
	pkg := &packager{
		cfg:      cfg.Clone(),
		buildID:  uuid.NewString(),
		env:      virtualenv.New(cfg.Path(cfg.VirtualEnvDir)),
		environ:  opts.Environ,
		runner:   opts.Runner,
		uploader: opts.Uploader,
		stdout:   opts.Stdout,
		markers:  pipeline.NewFileRepository(cfg.Path(pipeline.DefaultFilename)),
	}

	if pkg.environ == nil {
		pkg.environ = os.Environ()
	}

	if pkg.runner == nil {
		pkg.runner = shell.NewExecRunner()
	}

	if pkg.stdout == nil {
		pkg.stdout = os.Stdout
	}

	return pkg
}

// Run dispatches exactly one phase.
func (p *packager) Run(ctx context.Context, current phase.Phase) error {
	switch current {
	case phase.Install:
		return p.install(ctx)
	case phase.Prebuild:
		return p.prebuild(ctx)
	case phase.Build:
		return p.build(ctx)
	case phase.Postbuild:
		return p.postbuild(ctx)
	default:
		return fmt.Errorf("%q: %w", string(current), phase.ErrUnknown)
	}
}

// checkOrder rejects a phase that would skip ahead of the recorded marker.
func (p *packager) checkOrder(ctx context.Context, current phase.Phase) error {
	last, err := pipeline.LastCompleted(ctx, p.markers)
	if err != nil {
		return fmt.Errorf("read pipeline marker: %w", err)
	}

	if err = current.CanFollow(last); err != nil {
		return fmt.Errorf("%w: %w", ErrOutOfOrder, err)
	}

	logger.DebugKV(ctx, "Phase order verified", "last_completed", last.String())

	return nil
}

// objectStore returns the uploader, creating the S3 client on first use.
func (p *packager) objectStore() (storage.Uploader, error) {
	if p.uploader != nil {
		return p.uploader, nil
	}

	uploader, err := storage.NewS3Uploader(p.cfg.Region)
	if err != nil {
		return nil, err
	}

	p.uploader = uploader

	return uploader, nil
}

// command builds a command running in the workspace with the base environment.
func (p *packager) command(name string, args ...string) shell.Command {
	return shell.Command{
		Name: name,
		Args: args,
		Dir:  p.cfg.Workspace,
		Env:  p.environ,
	}
}

// activated builds a command running inside the virtual environment.
func (p *packager) activated(name string, args ...string) shell.Command {
	cmd := p.command(p.env.Bin(name), args...)
	cmd.Env = p.env.Environ(p.environ)

	return cmd
}
