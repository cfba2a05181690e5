package packager

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/oshokin/lambda-packager/internal/archive"
	"github.com/oshokin/lambda-packager/internal/logger"
	"github.com/oshokin/lambda-packager/internal/shell"
)

// build checks the first-party sources, optionally runs the tests, and writes the archive.
func (p *packager) build(ctx context.Context) error {
	if !p.env.Exists() {
		return fmt.Errorf("%s: %w", p.env.Dir, errNoVirtualEnv)
	}

	dependencyDirs, err := p.env.SitePackages()
	if err != nil {
		return fmt.Errorf("locate installed packages: %w", err)
	}

	excluder := archive.NewExcluder(p.cfg.Exclusions)
	logger.DebugKV(ctx, "Archive exclusions", "patterns", excluder.Patterns(), "site_packages", dependencyDirs)

	builder := &archive.Builder{
		Root:           p.cfg.Workspace,
		Sources:        p.cfg.Sources,
		DependencyDirs: dependencyDirs,
		Excluder:       excluder,
	}

	if err = p.compileSources(ctx, builder); err != nil {
		return err
	}

	if p.cfg.RunTests {
		if err = p.runTests(ctx); err != nil {
			return err
		}
	} else {
		logger.Info(ctx, "Skipping test suite")
	}

	data, manifest, err := builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("assemble archive: %w", err)
	}

	logger.DebugKV(ctx, "Archive members", "members", manifest.Names())

	target := p.cfg.Path(p.cfg.ArchiveFile)
	if err = archive.WriteFile(target, data, manifest.Checksum); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Archive written",
		"path", target,
		"sources", manifest.Count(archive.OriginSource),
		"dependencies", manifest.Count(archive.OriginDependency),
		"excluded", manifest.Excluded,
		"bytes", len(data),
	)

	return nil
}

// compileSources byte-compiles every first-party Python module as a syntax check.
func (p *packager) compileSources(ctx context.Context, builder *archive.Builder) error {
	files, err := builder.FirstPartyFiles(ctx)
	if err != nil {
		return fmt.Errorf("collect sources: %w", err)
	}

	modules := make([]string, 0, len(files))

	for _, file := range files {
		if strings.EqualFold(filepath.Ext(file), ".py") {
			modules = append(modules, file)
		}
	}

	if len(modules) == 0 {
		logger.Info(ctx, "No Python modules to compile")
		return nil
	}

	args := append([]string{"-m", "py_compile"}, modules...)
	if err = p.runner.Run(ctx, p.activated("python", args...)); err != nil {
		return fmt.Errorf("compile sources: %w", err)
	}

	return nil
}

// runTests runs the configured test command inside the virtual environment.
func (p *packager) runTests(ctx context.Context) error {
	cmd, err := shell.FromArgv(p.cfg.TestCommand)
	if err != nil {
		return fmt.Errorf("test command: %w", err)
	}

	if err = p.runner.Run(ctx, p.activated(cmd.Name, cmd.Args...)); err != nil {
		return fmt.Errorf("run tests: %w", err)
	}

	return nil
}
