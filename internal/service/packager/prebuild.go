package packager

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/oshokin/lambda-packager/internal/logger"
)

// prebuild creates a fresh virtual environment and installs the requirements into it.
func (p *packager) prebuild(ctx context.Context) error {
	requirements := p.cfg.Path(p.cfg.Requirements)
	if _, err := os.Stat(requirements); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("requirements manifest %s: %w", requirements, err)
		}

		return fmt.Errorf("stat requirements manifest: %w", err)
	}

	if p.env.Exists() {
		logger.InfoKV(ctx, "Removing previous virtual environment", "path", p.env.Dir)
	}

	if err := p.env.Reset(); err != nil {
		return err
	}

	if err := p.runner.Run(ctx, p.command("virtualenv", "--python", p.cfg.Python, p.env.Dir)); err != nil {
		return fmt.Errorf("create virtual environment: %w", err)
	}

	if err := p.runner.Run(ctx, p.activated("pip", "install", "-r", requirements)); err != nil {
		return fmt.Errorf("install requirements: %w", err)
	}

	return nil
}
