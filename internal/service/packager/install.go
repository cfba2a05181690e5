package packager

import (
	"context"
	"fmt"

	"github.com/oshokin/lambda-packager/internal/logger"
	"github.com/oshokin/lambda-packager/internal/shell"
)

// install runs the configured tool installation commands in order.
func (p *packager) install(ctx context.Context) error {
	if len(p.cfg.InstallCommands) == 0 {
		logger.Info(ctx, "No install commands configured")
		return nil
	}

	for i, argv := range p.cfg.InstallCommands {
		cmd, err := shell.FromArgv(argv)
		if err != nil {
			return fmt.Errorf("install command %d: %w", i, err)
		}

		if err = p.runner.Run(ctx, p.command(cmd.Name, cmd.Args...)); err != nil {
			return fmt.Errorf("install build tools: %w", err)
		}
	}

	return nil
}
