package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oshokin/lambda-packager/internal/config"
)

// force allows config-init to overwrite an existing file.
var force bool

// configInitCmd writes the default configuration so a project can start from it.
var configInitCmd = &cobra.Command{
	Use:   "config-init",
	Short: "Write the default configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cmd.SilenceUsage = true

		path := configPath
		if path == "" {
			path = config.DefaultConfigFilename
		}

		if !force {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("check %s: %w", path, err)
			}
		}

		if err := config.Save(path, config.Default()); err != nil {
			return err
		}

		cmd.Printf("Configuration written to %s\n", path)

		return nil
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	configInitCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing configuration file")
}
